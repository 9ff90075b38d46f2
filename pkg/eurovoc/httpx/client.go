// Package httpx provides the retrying HTTP client shared by the query engine,
// the taxonomy resolver and the body fetcher.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cognicore/eurovoc/pkg/eurovoc/metrics"
)

// DefaultUserAgent identifies the miner to remote services.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// DefaultMaxBodyBytes caps how much of a response body Fetch reads.
const DefaultMaxBodyBytes = 256 << 20

// RetryPolicy defines retry behavior.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns five attempts with 1s, 2s, 4s, 8s waits.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
	}
}

// StatusError reports a response status the caller could not accept.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Retryable reports whether a status belongs to the server error classes
// worth another attempt.
func Retryable(status int) bool {
	switch status {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Options configures a Client.
type Options struct {
	Timeout      time.Duration
	Retry        RetryPolicy
	UserAgent    string
	MaxBodyBytes int64
	Transport    http.RoundTripper
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Client is safe for concurrent use.
type Client struct {
	http         *http.Client
	policy       RetryPolicy
	userAgent    string
	maxBodyBytes int64
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// New creates a client. Zero option values fall back to defaults.
func New(opts Options) *Client {
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
		},
		policy:       opts.Retry,
		userAgent:    opts.UserAgent,
		maxBodyBytes: opts.MaxBodyBytes,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
	}
}

// UserAgent returns the identifying user-agent string.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// Get issues a GET request. Transport failures and 500/502/503/504 responses
// are retried with exponential backoff; any other response is returned as-is
// and the caller must close its body. When attempts run out on a server
// error, the result is a *StatusError.
func (c *Client) Get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var resp *http.Response
	attempt := 0
	op := func() error {
		attempt++
		r, err := c.http.Do(req.Clone(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("GET %s: %w", url, err)
		}
		if Retryable(r.StatusCode) {
			_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 64<<10))
			r.Body.Close()
			return &StatusError{URL: url, StatusCode: r.StatusCode}
		}
		resp = r
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.metrics.Retry()
		c.logger.Warn("retrying request", "url", url, "attempt", attempt, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, c.backOff(ctx), notify); err != nil {
		return nil, err
	}
	return resp, nil
}

// Fetch performs Get and reads the body. A non-200 final status is not an
// error: the status is returned with a nil body.
func (c *Client) Fetch(ctx context.Context, url string, header http.Header) (int, []byte, error) {
	resp, err := c.Get(ctx, url, header)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return resp.StatusCode, nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return resp.StatusCode, nil, fmt.Errorf("content too large (exceeds %d bytes)", c.maxBodyBytes)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.policy.InitialInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	if c.policy.MaxInterval > 0 {
		b.MaxInterval = c.policy.MaxInterval
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.policy.MaxAttempts-1)), ctx)
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == status
}
