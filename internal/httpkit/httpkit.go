// Package httpkit builds the outbound HTTP clients used by every
// Wayfarer integration. One place owns the timeout, pooling, and
// User-Agent policy so the REST clients stay small.
package httpkit

import (
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/wayfarerlabs/wayfarer/internal/buildinfo"
)

// NewTransport returns a transport with explicit dial and TLS deadlines
// and a modest idle pool. Callers that need a longer header wait (the
// LLM backend queues before responding) adjust the returned transport
// before passing it to NewClient.
func NewTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		ForceAttemptHTTP2:     true,
	}
}

type clientConfig struct {
	timeout       time.Duration
	transport     *http.Transport
	skipUserAgent bool
}

// ClientOption adjusts a client built by NewClient.
type ClientOption func(*clientConfig)

// WithTimeout sets the whole-request timeout. Zero disables it, which
// streaming callers need; they bound requests with context deadlines
// instead.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.timeout = d }
}

// WithTransport substitutes a caller-tuned transport for the default.
func WithTransport(t *http.Transport) ClientOption {
	return func(c *clientConfig) { c.transport = t }
}

// WithoutUserAgent leaves requests without the stamped User-Agent.
func WithoutUserAgent() ClientOption {
	return func(c *clientConfig) { c.skipUserAgent = true }
}

// NewClient assembles an *http.Client: 30s timeout unless overridden,
// shared transport defaults, and the build's User-Agent on every
// request that doesn't set its own.
func NewClient(opts ...ClientOption) *http.Client {
	cfg := clientConfig{timeout: 30 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}

	transport := cfg.transport
	if transport == nil {
		transport = NewTransport()
	}

	var rt http.RoundTripper = transport
	if !cfg.skipUserAgent {
		rt = uaRoundTripper{next: transport, agent: buildinfo.UserAgent()}
	}

	return &http.Client{Timeout: cfg.timeout, Transport: rt}
}

type uaRoundTripper struct {
	next  http.RoundTripper
	agent string
}

func (u uaRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		// RoundTrippers must not mutate the caller's request.
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", u.agent)
	}
	return u.next.RoundTrip(req)
}

// ReadErrorBody captures up to limit bytes of a failed response's body
// for error messages. It does not close the reader.
func ReadErrorBody(r io.Reader, limit int64) string {
	b, _ := io.ReadAll(io.LimitReader(r, limit))
	return strings.TrimSpace(string(b))
}

// DrainAndClose consumes up to limit leftover bytes and closes rc so
// the connection can return to the pool.
func DrainAndClose(rc io.ReadCloser, limit int64) {
	if rc == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, limit))
	rc.Close()
}
