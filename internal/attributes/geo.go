package attributes

import (
	"net/url"
	"strings"
	"sync"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// LocalDevelopment marks traffic from loopback or private networks.
const LocalDevelopment = "Local Development"

// Location is a country/region/city triple. Empty fields are unresolved.
type Location struct {
	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`
}

// IsZero reports whether no field is set.
func (l Location) IsZero() bool {
	return l.Country == "" && l.Region == "" && l.City == ""
}

// Overlay copies the non-empty fields of other onto l.
func (l Location) Overlay(other Location) Location {
	if other.Country != "" {
		l.Country = other.Country
	}
	if other.Region != "" {
		l.Region = other.Region
	}
	if other.City != "" {
		l.City = other.City
	}
	return l
}

// Default locations edge networks report when they cannot place a client.
// An empty city matches any city for that country.
var genericLocations = []struct {
	country string
	city    string
}{
	{"US", "San Francisco"},
	{"United States", "San Francisco"},
	{"US", "Ashburn"},
	{"US", "Santa Clara"},
	{"XX", ""},
	{"T1", ""},
}

// IsGenericGeo reports whether an edge hint carries no real information
// about the visitor and should be replaced by a fallback lookup.
func IsGenericGeo(l Location) bool {
	country := strings.TrimSpace(l.Country)
	if country == "" || strings.EqualFold(country, Unknown) {
		return true
	}
	city := decodeHint(l.City)
	for _, g := range genericLocations {
		if !strings.EqualFold(country, g.country) {
			continue
		}
		if g.city == "" || strings.EqualFold(city, g.city) {
			return true
		}
	}
	return false
}

var (
	countries     *gountries.Query
	countriesOnce sync.Once
)

func countryQuery() *gountries.Query {
	countriesOnce.Do(func() {
		countries = gountries.New()
	})
	return countries
}

// CountryName maps an ISO 3166 alpha-2 or alpha-3 code to its common name.
// Names and unknown codes pass through unchanged.
func CountryName(country string) string {
	country = strings.TrimSpace(country)
	if len(country) != 2 && len(country) != 3 {
		return country
	}
	c, err := countryQuery().FindCountryByAlpha(strings.ToUpper(country))
	if err != nil {
		return country
	}
	return c.Name.Common
}

// CanonicalGeo cleans an edge hint into the form stored on click events.
func CanonicalGeo(l Location) Location {
	return Location{
		Country: CountryName(decodeHint(l.Country)),
		Region:  decodeHint(l.Region),
		City:    titleCase(decodeHint(l.City)),
	}
}

// Edge headers percent-encode non-ASCII names ("S%C3%A3o%20Paulo").
func decodeHint(s string) string {
	s = strings.TrimSpace(s)
	if decoded, err := url.PathUnescape(s); err == nil {
		s = decoded
	}
	return strings.TrimSpace(s)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	// Caser values carry state and are not safe to share.
	return cases.Title(language.Und).String(s)
}
