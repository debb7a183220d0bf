// Package httpclient builds the HTTP clients used against the provider portal.
package httpclient

import (
	"net/http"
	"time"
)

const (
	DefaultTimeout         = 5 * time.Second
	DefaultIdleConnTimeout = 30 * time.Second
	MaxIdleConnsPerHost    = 4

	// UserAgent is sent on portal requests that do not set one. Some EPG deployments
	// reject requests without a set-top-box style agent.
	UserAgent = "Mozilla/5.0 (X11; Linux armv7l) AppleWebKit/533.3 (KHTML, like Gecko) iptv-portal"
)

var defaultTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        16,
	MaxIdleConnsPerHost: MaxIdleConnsPerHost,
	IdleConnTimeout:     DefaultIdleConnTimeout,
}

// Default returns a portal client with DefaultTimeout.
func Default() *http.Client {
	return WithTimeout(DefaultTimeout)
}

// WithTimeout returns a client whose every request is bounded by timeout and carries
// UserAgent unless the request sets its own. timeout <= 0 uses DefaultTimeout.
func WithTimeout(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &agentTransport{base: defaultTransport.Clone(), agent: UserAgent},
	}
}

type agentTransport struct {
	base  http.RoundTripper
	agent string
}

func (t *agentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.agent)
	}
	return t.base.RoundTrip(req)
}
