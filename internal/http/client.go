package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNoAttempts is returned when the client is configured with zero attempts.
var ErrNoAttempts = errors.New("http: attempts must be positive")

// TransportError is returned when every attempt failed at the transport level
// (connection refused, reset, timeout). It wraps the error of the last attempt.
type TransportError struct {
	Method   string
	URL      string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("http: %s %s failed after %d attempts: %v", e.Method, e.URL, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UnexpectedStatusError reports a response whose status code was not the one
// the caller required. It is never retried.
type UnexpectedStatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("http: unexpected status %d for %s", e.StatusCode, e.URL)
}

// Substitution replaces the URL prefix From with To.
type Substitution struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Substitutions is an ordered prefix substitution table.
type Substitutions []Substitution

// Rewrite applies the first substitution whose From is a prefix of url.
// Later entries are not consulted.
func (s Substitutions) Rewrite(url string) string {
	for _, sub := range s {
		if sub.From != "" && strings.HasPrefix(url, sub.From) {
			return sub.To + strings.TrimPrefix(url, sub.From)
		}
	}
	return url
}

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 16
	MaxIdleConnsPerHost int

	// Timeout bounds connecting and waiting for response headers. Reading
	// the body is not bounded, so a slow but steady transfer never times out.
	// Only applies to the built-in transport.
	// Default: 60s
	Timeout time.Duration

	// Attempts is the total number of attempts per request.
	// Default: 5
	Attempts int

	// Delay is the fixed wait between attempts.
	// Default: 5s
	Delay time.Duration

	// Substitutions rewrites URL prefixes before each request.
	Substitutions Substitutions

	// Transport overrides the round tripper. Nil builds a pooled transport.
	Transport http.RoundTripper

	// Logger receives retry warnings. Nil disables logging.
	Logger *zap.Logger
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 16,
		Timeout:             60 * time.Second,
		Attempts:            5,
		Delay:               5 * time.Second,
	}
}

// Client is an HTTP client that retries transport failures a fixed number of
// times with a fixed delay.
type Client struct {
	client *http.Client
	opts   Options
	logger *zap.Logger
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	transport := opts.Transport
	if transport == nil {
		dialer := &net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   opts.Timeout,
			ResponseHeaderTimeout: opts.Timeout,
			MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
			MaxIdleConns:          opts.MaxIdleConnsPerHost * 2,
			IdleConnTimeout:       90 * time.Second,
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		client: &http.Client{Transport: transport},
		opts:   opts,
		logger: logger.Named("http"),
	}
}

// Rewrite returns url after prefix substitution.
func (c *Client) Rewrite(url string) string {
	return c.opts.Substitutions.Rewrite(url)
}

// Do issues a request, retrying transport failures. Any response, whatever its
// status, is returned to the caller; the caller owns the body.
func (c *Client) Do(ctx context.Context, method, url string, body []byte, header http.Header) (*http.Response, error) {
	if c.opts.Attempts <= 0 {
		return nil, ErrNoAttempts
	}

	target := c.Rewrite(url)
	var lastErr error

	for attempt := 1; attempt <= c.opts.Attempts; attempt++ {
		if attempt > 1 {
			if err := c.wait(ctx); err != nil {
				return nil, err
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			c.logger.Warn("request failed",
				zap.String("method", method),
				zap.String("url", target),
				zap.Int("attempt", attempt),
				zap.Int("attempts", c.opts.Attempts),
				zap.Error(err),
			)
			continue
		}

		return resp, nil
	}

	return nil, &TransportError{
		Method:   method,
		URL:      target,
		Attempts: c.opts.Attempts,
		Err:      lastErr,
	}
}

// Head performs a HEAD request. The response body is already closed.
func (c *Client) Head(ctx context.Context, url string) (*http.Response, error) {
	resp, err := c.Do(ctx, http.MethodHead, url, nil, nil)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return resp, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil, nil)
}

// Post performs a POST request with the given body and content type.
func (c *Client) Post(ctx context.Context, url, contentType string, body []byte) (*http.Response, error) {
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return c.Do(ctx, http.MethodPost, url, body, header)
}

// CloseIdleConnections closes pooled connections that are not in use.
func (c *Client) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}

// wait sleeps for the fixed retry delay.
func (c *Client) wait(ctx context.Context) error {
	if c.opts.Delay <= 0 {
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.opts.Delay):
		return nil
	}
}

// CheckStatus returns an *UnexpectedStatusError if resp's status code is not want.
func CheckStatus(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}
	url := ""
	if resp.Request != nil && resp.Request.URL != nil {
		url = resp.Request.URL.String()
	}
	return &UnexpectedStatusError{
		URL:        url,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
	}
}
