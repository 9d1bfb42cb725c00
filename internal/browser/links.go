// internal/browser/links.go
package browser

import (
	"net/url"
	"regexp"
	"strings"
)

// Hosts that never count as organic results.
var linkBlocklist = []string{
	"google.com", "gstatic.com", "youtube.com",
	"facebook.com", "twitter.com", "linkedin.com", "instagram.com",
}

// SERP markup varies; try the redirect-wrapped forms first, then any
// absolute link.
var linkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`href="/url\?q=([^"&]+)`),
	regexp.MustCompile(`href="https?://www\.google\.com/url\?q=([^"&]+)`),
	regexp.MustCompile(`data-href="/url\?q=([^"&]+)`),
	regexp.MustCompile(`href="(https?://[^"\s]+)"`),
}

const maxOrganicLinks = 10

// ExtractOrganicLinks pulls candidate organic result URLs out of a
// search result page, in document order, de-duplicated, capped at ten.
func ExtractOrganicLinks(html string) []string {
	seen := map[string]bool{}
	links := []string{}

	for _, re := range linkPatterns {
		for _, m := range re.FindAllStringSubmatch(html, -1) {
			decoded, err := url.QueryUnescape(m[1])
			if err != nil {
				continue
			}
			if !strings.HasPrefix(decoded, "http") {
				continue
			}
			if blocked(decoded) || seen[decoded] {
				continue
			}
			seen[decoded] = true
			links = append(links, decoded)
			if len(links) >= maxOrganicLinks {
				return links
			}
		}
		if len(links) >= maxOrganicLinks {
			break
		}
	}
	return links
}

func blocked(link string) bool {
	for _, b := range linkBlocklist {
		if strings.Contains(link, b) {
			return true
		}
	}
	return false
}
