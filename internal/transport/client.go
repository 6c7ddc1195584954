// Package transport is the HTTP layer used to talk to the remote record
// service: authenticated JSON requests, client-side rate limiting, and
// translation of failed responses into APIError values.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentstation/recordsync/pkg/constants"
	"github.com/agentstation/recordsync/pkg/errors"
	"github.com/agentstation/recordsync/pkg/logging"
)

// DefaultHTTPTimeout is the default timeout for HTTP requests.
var DefaultHTTPTimeout = constants.DefaultHTTPTimeout

// Client sends authenticated JSON requests to one base URL.
type Client struct {
	base      *url.URL
	http      *http.Client
	auth      Authenticator
	limiter   *rate.Limiter
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit caps outbound requests per second. Zero or less disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a transport client for baseURL.
func New(baseURL string, auth Authenticator, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.NewConfigError("remote", "invalid base_url "+baseURL, err)
	}
	if auth == nil {
		auth = NoAuth{}
	}
	c := &Client{
		base:      base,
		http:      &http.Client{Timeout: DefaultHTTPTimeout},
		auth:      auth,
		limiter:   rate.NewLimiter(rate.Limit(constants.DefaultRateLimit), 1),
		userAgent: "recordsync",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL resolves a path against the base URL.
func (c *Client) URL(path string) string {
	return c.base.ResolveReference(&url.URL{Path: strings.TrimPrefix(path, "/")}).String()
}

// Request describes one JSON call.
type Request struct {
	Op     string // operation name used in errors and logs
	Method string
	Path   string
	Body   any
}

// Do sends req and decodes a JSON response into out, which may be nil.
// A 401 response invalidates the cached credentials and the request is sent
// once more. Other failures are returned as *errors.APIError.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	var body []byte
	if req.Body != nil {
		var err error
		if body, err = json.Marshal(req.Body); err != nil {
			return errors.WrapParse("json", "request", err)
		}
	}

	endpoint := c.URL(req.Path)
	resp, err := c.send(ctx, req, endpoint, body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		c.auth.Invalidate()
		logging.FromContext(ctx).Debug().Str("endpoint", endpoint).Msg("Token rejected, re-authenticating")
		if resp, err = c.send(ctx, req, endpoint, body); err != nil {
			return err
		}
	}
	return decodeResponse(resp, req.Op, endpoint, out)
}

func (c *Client) send(ctx context.Context, req Request, endpoint string, body []byte) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.WrapAPI(req.Op, endpoint, err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, reader)
	if err != nil {
		return nil, errors.WrapResource("create", "request", req.Method+" "+endpoint, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if err := c.auth.Apply(ctx, httpReq); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.WrapAPI(req.Op, endpoint, err)
	}
	logging.FromContext(ctx).Trace().
		Str("method", req.Method).
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("HTTP request")
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
