// Package httpclient provides the HTTP client the CLI uses to talk to a
// running ExamWatch server.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/privacy"
)

const (
	// DefaultTimeout applies when the request context has no deadline.
	DefaultTimeout = 30 * time.Second

	defaultUserAgent       = "ExamWatch"
	defaultDialTimeout     = 10 * time.Second
	defaultHeaderTimeout   = 10 * time.Second
	defaultIdleConnTimeout = 90 * time.Second

	// maxResponseBody bounds JSON responses read by DoJSON.
	maxResponseBody = 4 << 20
)

// Config holds configuration for creating an HTTP client.
type Config struct {
	// DefaultTimeout is the timeout applied if request context has no deadline
	DefaultTimeout time.Duration
	// UserAgent is sent with every request
	UserAgent string
	// Transport replaces the default pooled transport when set
	Transport http.RoundTripper
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: DefaultTimeout,
		UserAgent:      defaultUserAgent,
	}
}

// Client wraps http.Client with per-request timeouts and JSON helpers.
// Safe for concurrent use.
type Client struct {
	client         *http.Client
	defaultTimeout time.Duration
	userAgent      string
}

// New creates a client. A nil cfg uses DefaultConfig; zero fields take
// their defaults.
func New(cfg *Config) *Client {
	c := DefaultConfig()
	if cfg != nil {
		if cfg.DefaultTimeout > 0 {
			c.DefaultTimeout = cfg.DefaultTimeout
		}
		if cfg.UserAgent != "" {
			c.UserAgent = cfg.UserAgent
		}
	}

	var transport http.RoundTripper = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       defaultIdleConnTimeout,
		ResponseHeaderTimeout: defaultHeaderTimeout,
	}
	if cfg != nil && cfg.Transport != nil {
		transport = cfg.Transport
	}

	return &Client{
		client:         &http.Client{Transport: transport},
		defaultTimeout: c.DefaultTimeout,
		userAgent:      c.UserAgent,
	}
}

// DoJSON sends body (nil for none) as JSON and decodes the response into
// out. Any status code is returned without error so callers can decode
// error envelopes; out may be nil. When ctx has no deadline the client's
// default timeout applies.
func (c *Client) DoJSON(ctx context.Context, method, url string, body, out any) (int, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.defaultTimeout)
		defer cancel()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, errors.New(err).
			Component("httpclient").
			Category(errors.CategoryValidation).
			Context("url", privacy.RedactURL(url)).
			Build()
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, errors.New(privacy.WrapError(err)).
			Component("httpclient").
			Category(errors.CategoryNetwork).
			Context("method", method).
			Context("url", privacy.RedactURL(url)).
			Build()
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		return resp.StatusCode, errors.New(err).
			Component("httpclient").
			Category(errors.CategoryHTTP).
			Context("status", resp.StatusCode).
			Build()
	}
	return resp.StatusCode, nil
}

// GetJSON is DoJSON for a GET without body.
func (c *Client) GetJSON(ctx context.Context, url string, out any) (int, error) {
	return c.DoJSON(ctx, http.MethodGet, url, nil, out)
}

// PostJSON is DoJSON for a POST.
func (c *Client) PostJSON(ctx context.Context, url string, body, out any) (int, error) {
	return c.DoJSON(ctx, http.MethodPost, url, body, out)
}

// Close closes idle connections in the connection pool.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}
