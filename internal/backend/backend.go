package backend

import (
	"net/http/httputil"
	"net/url"
	"time"
)

// Backend describes one upstream service. All fields are fixed at
// startup; per-backend mutable state (breaker, rolling stats) lives in
// the health tracker, never here.
type Backend struct {
	name    string
	url     *url.URL
	timeout time.Duration
	proxy   *httputil.ReverseProxy
}

const DefaultTimeout = 10 * time.Second

// New creates a backend descriptor with a single-host reverse proxy
// rooted at the given base URL.
func New(name string, url *url.URL, timeout time.Duration) *Backend {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Backend{
		name:    name,
		url:     url,
		timeout: timeout,
		proxy:   httputil.NewSingleHostReverseProxy(url),
	}
}

// Name returns the unique backend identifier.
func (b *Backend) Name() string {
	return b.name
}

// URL returns the backend base URL.
func (b *Backend) URL() *url.URL {
	return b.url
}

// Timeout returns the per-call timeout budget for this backend.
func (b *Backend) Timeout() time.Duration {
	return b.timeout
}

// ReverseProxy returns the HTTP reverse proxy for this backend.
func (b *Backend) ReverseProxy() *httputil.ReverseProxy {
	return b.proxy
}
