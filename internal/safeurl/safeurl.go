// Package safeurl vets URLs scraped out of portal pages before they are followed.
package safeurl

import (
	"net/url"
	"strings"
)

// HasScheme reports whether u parses with a host and one of schemes (case-insensitive).
func HasScheme(u string, schemes ...string) bool {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return false
	}
	for _, s := range schemes {
		if strings.EqualFold(parsed.Scheme, s) {
			return true
		}
	}
	return false
}

// IsHTTPOrHTTPS returns true if u is an absolute http or https URL.
// Portal pages are vendor HTML; javascript:, file: and relative targets are never followed.
func IsHTTPOrHTTPS(u string) bool {
	return HasScheme(u, "http", "https")
}

// IsRTSP returns true if u is an absolute rtsp URL.
func IsRTSP(u string) bool {
	return HasScheme(u, "rtsp")
}
