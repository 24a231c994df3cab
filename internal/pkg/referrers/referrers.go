package referrers

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

// knownReferrers maps the hosts that send traffic to bio links to display
// names. Subdomains resolve through their parent entry.
var knownReferrers = map[string]string{
	// Where bio links live
	"instagram.com":   "Instagram",
	"l.instagram.com": "Instagram",
	"tiktok.com":      "TikTok",
	"youtube.com":     "YouTube",
	"youtu.be":        "YouTube",
	"x.com":           "Twitter (X)",
	"twitter.com":     "Twitter (X)",
	"t.co":            "Twitter (X)",
	"facebook.com":    "Facebook",
	"fb.com":          "Facebook",
	"threads.net":     "Threads",
	"bsky.app":        "Bluesky",
	"linkedin.com":    "LinkedIn",
	"lnkd.in":         "LinkedIn",
	"pinterest.com":   "Pinterest",
	"pin.it":          "Pinterest",
	"snapchat.com":    "Snapchat",
	"kwai.com":        "Kwai",
	"twitch.tv":       "Twitch",
	"reddit.com":      "Reddit",

	// Messaging apps open links with a referrer of their own
	"whatsapp.com": "WhatsApp",
	"wa.me":        "WhatsApp",
	"t.me":         "Telegram",
	"telegram.org": "Telegram",
	"discord.com":  "Discord",

	// Search
	"google.com":     "Google",
	"google.com.br":  "Google",
	"google.pt":      "Google",
	"bing.com":       "Bing",
	"duckduckgo.com": "DuckDuckGo",

	// Newsletters
	"mail.google.com":  "Gmail",
	"outlook.live.com": "Outlook",
	"substack.com":     "Substack",

	// Other link pages and shorteners
	"linktr.ee":  "Linktree",
	"beacons.ai": "Beacons",
	"bit.ly":     "Bitly",
}

// Direct is the display name for visits without a referrer.
const Direct = "Direto"

// FriendlyName returns a human-friendly name for a referrer hostname.
// If the hostname is not in the known list, it returns the hostname
// with common prefixes like "www." removed and first letter capitalized.
func FriendlyName(hostname string) string {
	hostname = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(hostname)), ".")
	if hostname == "" {
		return Direct
	}
	hostname = strings.TrimPrefix(hostname, "www.")

	// Walk parent domains so the most specific entry wins
	// (mail.google.com before google.com).
	for candidate := hostname; candidate != ""; {
		if name, ok := knownReferrers[candidate]; ok {
			return name
		}
		idx := strings.Index(candidate, ".")
		if idx < 0 {
			break
		}
		candidate = candidate[idx+1:]
	}

	return capitalizeFirst(hostname)
}

// Label maps a stored referrer value (a raw URL, a bare hostname or the
// direct sentinel) to its display name.
func Label(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, Direct) || strings.EqualFold(raw, "direct") {
		return Direct
	}
	return FriendlyName(Hostname(raw))
}

// Hostname extracts the host part of a referrer. Values without a scheme
// are treated as hostnames.
func Hostname(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// capitalizeFirst upper-cases the first letter, which may be multi-byte in
// internationalized hostnames.
func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
