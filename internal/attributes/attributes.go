// Package attributes turns raw request metadata into the canonical
// dimensions stored on click events. Everything here is pure: no I/O,
// no errors surfaced to callers.
package attributes

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Canonical values shared with the click store.
const (
	Unknown = "Unknown"

	DeviceDesktop = "Desktop"
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
)

// Attributes is the normalized view of a user agent.
type Attributes struct {
	Device  string `json:"device"`
	Browser string `json:"browser"`
	OS      string `json:"os"`
}

// Rule is one (predicate, value) row of a rule table.
type Rule struct {
	Pattern string `yaml:"pattern"`
	Value   string `yaml:"value"`
}

type ruleFile struct {
	Device  []Rule `yaml:"device"`
	Browser []Rule `yaml:"browser"`
	OS      []Rule `yaml:"os"`
}

//go:embed rules.yml
var rulesYAML []byte

type compiledRule struct {
	regex *pcre.Regexp
	value string
}

// RuleSet holds compiled rule tables evaluated top to bottom.
type RuleSet struct {
	device  []compiledRule
	browser []compiledRule
	os      []compiledRule
}

var (
	defaultRules *RuleSet
	loadOnce     sync.Once
)

// Rules returns the embedded rule set, compiling it on first use.
// The embedded file is part of the binary, so a compile failure is a
// programming error and panics.
func Rules() *RuleSet {
	loadOnce.Do(func() {
		rs, err := ParseRules(rulesYAML)
		if err != nil {
			panic(fmt.Sprintf("attributes: embedded rules: %v", err))
		}
		defaultRules = rs
	})
	return defaultRules
}

// ParseRules compiles a YAML rule document. Order within each table is kept.
func ParseRules(data []byte) (*RuleSet, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("error parsing rules: %w", err)
	}

	rs := &RuleSet{}
	var err error
	if rs.device, err = compileTable("device", file.Device); err != nil {
		return nil, err
	}
	if rs.browser, err = compileTable("browser", file.Browser); err != nil {
		return nil, err
	}
	if rs.os, err = compileTable("os", file.OS); err != nil {
		return nil, err
	}
	return rs, nil
}

func compileTable(name string, rules []Rule) ([]compiledRule, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if r.Pattern == "" || r.Value == "" {
			return nil, fmt.Errorf("%s rule %d: pattern and value are required", name, i)
		}
		regex, err := pcre.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%s rule %d (%s): %w", name, i, r.Value, err)
		}
		compiled = append(compiled, compiledRule{regex: regex, value: r.Value})
	}
	return compiled, nil
}

func firstMatch(rules []compiledRule, ua, fallback string) string {
	for _, r := range rules {
		if r.regex.MatchString(ua) {
			return r.value
		}
	}
	return fallback
}

// Normalize classifies ua with the rule set.
func (rs *RuleSet) Normalize(ua string) Attributes {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return Attributes{Device: DeviceDesktop, Browser: Unknown, OS: Unknown}
	}
	return Attributes{
		Device:  firstMatch(rs.device, ua, DeviceDesktop),
		Browser: firstMatch(rs.browser, ua, Unknown),
		OS:      firstMatch(rs.os, ua, Unknown),
	}
}

// Normalize classifies ua with the embedded rule set.
func Normalize(ua string) Attributes {
	return Rules().Normalize(ua)
}
