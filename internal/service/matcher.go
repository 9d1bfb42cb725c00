// internal/service/matcher.go
package service

import (
	"net/url"
	"strings"
)

// Hosts belonging to the search provider itself; links into these are
// navigation chrome, never organic results.
var providerMarkers = []string{"google.com", "accounts.google.com"}

// MatchSearchResult decides which candidate result link to click for a
// target host. Two passes over the filtered candidates, both preserving
// the engine's ranking order: first an exact normalized-host match, then
// a substring fallback for redirect- or tracking-decorated URLs. Exact
// matches always win over an earlier partial match.
func MatchSearchResult(candidates []string, targetHost string) (string, bool) {
	target := normalizeHost(targetHost)
	if target == "" {
		return "", false
	}

	viable := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if isProviderLink(c) || isPseudoLink(c) {
			continue
		}
		viable = append(viable, c)
	}

	for _, c := range viable {
		if hostOf(c) == target {
			return c, true
		}
	}

	for _, c := range viable {
		if strings.Contains(c, target) {
			return c, true
		}
	}

	return "", false
}

func isProviderLink(raw string) bool {
	host := rawHostOf(raw)
	for _, marker := range providerMarkers {
		if strings.Contains(host, marker) {
			return true
		}
	}
	return false
}

func isPseudoLink(raw string) bool {
	return strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, "javascript:")
}

// hostOf extracts the normalized (lowercased, www-stripped) host of a URL.
func hostOf(raw string) string {
	return normalizeHost(rawHostOf(raw))
}

func rawHostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func normalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}
