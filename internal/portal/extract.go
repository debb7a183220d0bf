package portal

import (
	"regexp"
	"strings"

	"github.com/snapetech/iptvportal/internal/catalog"
)

var (
	tokenRe      = regexp.MustCompile(`GetAuthInfo\('(.*?)'\)`)
	formActionRe = regexp.MustCompile(`<form[^>]+action="([^"]+)"`)
	hostPortRe   = regexp.MustCompile(`://([^:/]+):(\d+)`)
	stbIPRe      = regexp.MustCompile(`<input[^>]+name="StbIP"[^>]+value="([^"]+)"`)
	locationRe   = regexp.MustCompile(`window\.location(?:\.href)?\s*=\s*'([^']+)'`)
	userTokenRe  = regexp.MustCompile(`UserToken=([A-Za-z0-9_\-.]+)`)
	channelRe    = regexp.MustCompile(`jsSetConfig\('Channel',\s*'([^']+)'\)`)
	attrRe       = regexp.MustCompile(`(\w+)="([^"]+)"`)
)

// ExtractToken returns the encrypt token from the GetAuthInfo('...') call of the login page.
func ExtractToken(page string) (string, error) {
	m := tokenRe.FindStringSubmatch(page)
	if m == nil {
		return "", &AuthError{Kind: TokenNotFound, Step: "token"}
	}
	return m[1], nil
}

// LoginForm is what the login page says about where to authenticate.
type LoginForm struct {
	Action string // authentication endpoint, absolute URL
	Host   string // EPG host taken from Action
	Port   string
	StbIP  string // device IP the portal expects in the authenticator
}

// ExtractLoginForm reads the form action and StbIP input. Fields not present are left empty.
func ExtractLoginForm(page string) LoginForm {
	var f LoginForm
	if m := formActionRe.FindStringSubmatch(page); m != nil {
		f.Action = m[1]
		if hp := hostPortRe.FindStringSubmatch(f.Action); hp != nil {
			f.Host, f.Port = hp[1], hp[2]
		}
	}
	if m := stbIPRe.FindStringSubmatch(page); m != nil {
		f.StbIP = m[1]
	}
	return f
}

// ExtractRedirect returns the window.location target of the authentication response.
func ExtractRedirect(page string) (string, error) {
	m := locationRe.FindStringSubmatch(page)
	if m == nil {
		return "", &AuthError{Kind: RedirectNotFound, Step: "auth"}
	}
	return m[1], nil
}

// ExtractUserToken returns the UserToken query value carried by the redirect URL.
func ExtractUserToken(redirectURL string) (string, error) {
	m := userTokenRe.FindStringSubmatch(redirectURL)
	if m == nil {
		return "", &AuthError{Kind: UserTokenMissing, Step: "redirect"}
	}
	return m[1], nil
}

// ParseChannels scans the catalog page line by line for jsSetConfig('Channel', '...') calls.
// Each call's key="value" list becomes one RawChannel. Lines without a call are ignored.
func ParseChannels(page string) []catalog.RawChannel {
	var out []catalog.RawChannel
	for line := range strings.Lines(page) {
		m := channelRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out = append(out, catalog.RawFromAttrs(ParseAttrs(m[1])))
	}
	return out
}

// ParseAttrs parses a flat key="value" list. A repeated key keeps its last value.
func ParseAttrs(s string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrRe.FindAllStringSubmatch(s, -1) {
		attrs[m[1]] = m[2]
	}
	return attrs
}
