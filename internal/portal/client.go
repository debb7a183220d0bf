// Package portal runs the set-top-box login handshake against the provider's EAS/EPG
// portal and fetches the channel catalog with the resulting session.
//
// The handshake is a chain of states: Client.FetchToken returns *TokenFetched, whose
// Authenticate returns *Authenticated, whose Register returns *Registered. Each state can
// only be built by the step before it.
package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/snapetech/iptvportal/internal/authcrypt"
	"github.com/snapetech/iptvportal/internal/config"
	"github.com/snapetech/iptvportal/internal/httpclient"
	"github.com/snapetech/iptvportal/internal/safeurl"
)

const (
	tokenPath    = "/iptvepg/platform/getencrypttoken.jsp"
	authPath     = "/iptvepg/platform/auth.jsp"
	registerPath = "/iptvepg/function/funcportalauth.jsp"
	catalogPath  = "/iptvepg/function/frameset_builder.jsp"
)

// Session is the result of a completed handshake. It is read-only once built.
type Session struct {
	EncryptToken string
	JSessionID   string
	UserToken    string
	DeviceIP     string
	// EPGBaseURL is http://host:port that registration and catalog requests go to.
	EPGBaseURL string
}

// Client talks to one provider portal. HTTP and Nonce may be replaced before the first call.
type Client struct {
	cfg   *config.Config
	HTTP  *http.Client
	Nonce func() int
}

// NewClient returns a client for cfg. Each request is bounded by cfg.PortalTimeout.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:   cfg,
		HTTP:  httpclient.WithTimeout(cfg.PortalTimeout),
		Nonce: randomNonce,
	}
}

// randomNonce returns a uniform 8-digit value in [10000000, 99999999].
func randomNonce() int { return 10_000_000 + rand.IntN(90_000_000) }

// TokenFetched holds the encrypt token and the login form details.
type TokenFetched struct {
	c        *Client
	token    string
	authURL  string
	epgBase  string
	deviceIP string
}

// Token returns the encrypt token from the login page.
func (t *TokenFetched) Token() string { return t.token }

// DeviceIP returns the StbIP the portal offered, or the configured device IP.
func (t *TokenFetched) DeviceIP() string { return t.deviceIP }

// Authenticated holds a session that has not been registered yet.
type Authenticated struct {
	c *Client
	s Session
}

// Registered is the final handshake state.
type Registered struct {
	s Session
}

// Session returns the completed session.
func (r *Registered) Session() Session { return r.s }

// FetchToken requests the login page and extracts the encrypt token, the authentication
// endpoint and the device IP. A missing form action or StbIP falls back to the configured
// EPG host and device IP.
func (c *Client) FetchToken(ctx context.Context) (*TokenFetched, error) {
	if _, err := authcrypt.PadKey(c.cfg.EncryptKey); err != nil {
		return nil, &AuthError{Kind: MisconfiguredKey, Step: "token", Err: err}
	}
	q := url.Values{
		"UserID":         {c.cfg.UserID},
		"Action":         {"Login"},
		"TerminalFlag":   {"1"},
		"TerminalOsType": {"0"},
		"STBID":          {""},
		"stbtype":        {""},
	}
	loginURL := c.cfg.EASBaseURL() + tokenPath + "?" + q.Encode()
	page, _, err := c.do(ctx, http.MethodGet, loginURL, nil, "")
	if err != nil {
		return nil, stepError("token", err)
	}
	token, err := ExtractToken(page)
	if err != nil {
		return nil, err
	}

	form := ExtractLoginForm(page)
	t := &TokenFetched{c: c, token: token, deviceIP: c.cfg.DeviceIP, epgBase: c.cfg.EPGBaseURL()}
	if form.StbIP != "" {
		t.deviceIP = form.StbIP
	}
	if form.Host != "" {
		t.epgBase = "http://" + form.Host + ":" + form.Port
	}
	if t.epgBase == "" {
		t.epgBase = c.cfg.EASBaseURL()
	}
	t.authURL = t.epgBase + authPath
	if form.Action != "" {
		if u, err := resolveRef(loginURL, form.Action); err == nil && safeurl.IsHTTPOrHTTPS(u) {
			t.authURL = u
		}
	}
	return t, nil
}

// Authenticate signs nonce$token$user$stb$ip$mac$custom with the configured key, posts it,
// follows the client-side redirect with the new JSESSIONID and keeps its UserToken.
func (t *TokenFetched) Authenticate(ctx context.Context) (*Authenticated, error) {
	cfg := t.c.cfg
	plain := strings.Join([]string{
		strconv.Itoa(t.c.Nonce()),
		t.token,
		cfg.UserID,
		cfg.STBID,
		t.deviceIP,
		cfg.MAC,
		cfg.CustomStr,
	}, "$")
	sig, err := authcrypt.Encrypt(plain, cfg.EncryptKey)
	if err != nil {
		return nil, &AuthError{Kind: MisconfiguredKey, Step: "auth", Err: err}
	}
	form := url.Values{
		"easip":         {cfg.EASHost},
		"ipVersion":     {"4"},
		"networkid":     {"1"},
		"serterminalno": {"311"},
		"UserID":        {cfg.UserID},
		"Authenticator": {sig},
		"StbIP":         {t.deviceIP},
	}
	page, cookies, err := t.c.do(ctx, http.MethodPost, t.authURL, form, "")
	if err != nil {
		return nil, stepError("auth", err)
	}
	var jsession string
	for _, ck := range cookies {
		if ck.Name == "JSESSIONID" {
			jsession = ck.Value
		}
	}
	redirect, err := ExtractRedirect(page)
	if err != nil {
		return nil, err
	}
	if u, err := resolveRef(t.authURL, redirect); err == nil {
		redirect = u
	}
	if !safeurl.IsHTTPOrHTTPS(redirect) {
		return nil, &AuthError{Kind: RedirectNotFound, Step: "auth", Err: fmt.Errorf("refusing to follow %q", redirect)}
	}
	if _, _, err := t.c.do(ctx, http.MethodPost, redirect, url.Values{}, jsession); err != nil {
		return nil, stepError("redirect", err)
	}
	userToken, err := ExtractUserToken(redirect)
	if err != nil {
		return nil, err
	}
	return &Authenticated{c: t.c, s: Session{
		EncryptToken: t.token,
		JSessionID:   jsession,
		UserToken:    userToken,
		DeviceIP:     t.deviceIP,
		EPGBaseURL:   t.epgBase,
	}}, nil
}

// Register posts the device identity to the portal registration endpoint. The returned
// *Registered is always usable; a non-nil error is a *RegistrationError to be logged.
func (a *Authenticated) Register(ctx context.Context) (*Registered, error) {
	cfg := a.c.cfg
	form := url.Values{
		"UserToken":   {a.s.UserToken},
		"UserID":      {cfg.UserID},
		"STBID":       {cfg.STBID},
		"stbinfo":     {""},
		"prmid":       {""},
		"easip":       {cfg.EASHost},
		"networkid":   {"1"},
		"stbtype":     {cfg.STBType},
		"drmsupplier": {""},
		"stbversion":  {cfg.STBVersion},
	}
	r := &Registered{s: a.s}
	if _, _, err := a.c.do(ctx, http.MethodPost, a.s.EPGBaseURL+registerPath, form, a.s.JSessionID); err != nil {
		return r, &RegistrationError{Err: err}
	}
	return r, nil
}

// Login runs the whole handshake. A registration failure is logged and ignored.
func (c *Client) Login(ctx context.Context) (Session, error) {
	t, err := c.FetchToken(ctx)
	if err != nil {
		return Session{}, err
	}
	a, err := t.Authenticate(ctx)
	if err != nil {
		return Session{}, err
	}
	r, err := a.Register(ctx)
	if err != nil {
		log.Printf("portal: %v (continuing without registration)", err)
	}
	return r.Session(), nil
}

// do sends one portal request and returns the decoded body and response cookies.
// A non-empty form is sent url-encoded; jsessionID, if set, goes in the Cookie header.
func (c *Client) do(ctx context.Context, method, target string, form url.Values, jsessionID string) (string, []*http.Cookie, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return "", nil, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if jsessionID != "" {
		req.Header.Set("Cookie", "JSESSIONID="+jsessionID)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", nil, &statusError{URL: req.URL.Redacted(), Code: resp.StatusCode}
	}
	page, err := decode(resp.Body, c.cfg.Encoding)
	if err != nil {
		return "", nil, fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return page, resp.Cookies(), nil
}

// decode reads body in the named charset. "" and utf-8 are read as-is.
func decode(body io.Reader, label string) (string, error) {
	switch strings.ToLower(label) {
	case "", "utf-8", "utf8":
		b, err := io.ReadAll(body)
		return string(b), err
	}
	r, err := charset.NewReaderLabel(label, body)
	if err != nil {
		return "", err
	}
	b, err := io.ReadAll(r)
	return string(b), err
}

func stepError(step string, err error) error {
	var se *statusError
	if errors.As(err, &se) {
		return &AuthError{Kind: BadStatus, Step: step, Err: err}
	}
	return &AuthError{Kind: Transport, Step: step, Err: err}
}

func resolveRef(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
