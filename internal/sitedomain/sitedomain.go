// Package sitedomain normalizes URLs and user-entered site names into the
// domain keys used for time accounting.
package sitedomain

import (
	"net/url"
	"strings"
)

// Unknown is the bucket for URLs that cannot be parsed or carry no host.
const Unknown = "unknown"

// FromURL returns the lowercased hostname of rawURL with a leading "www."
// removed. Anything without a scheme and host maps to Unknown.
func FromURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" {
		return Unknown
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Unknown
	}
	return strings.TrimPrefix(host, "www.")
}

// NormalizeSite lowercases and trims a user-entered site name.
func NormalizeSite(site string) string {
	return strings.ToLower(strings.TrimSpace(site))
}

// NormalizeSites normalizes every entry, drops empties and duplicates, and
// keeps first-seen order. The result is never nil.
func NormalizeSites(sites []string) []string {
	out := make([]string, 0, len(sites))
	seen := make(map[string]struct{}, len(sites))
	for _, s := range sites {
		n := NormalizeSite(s)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
