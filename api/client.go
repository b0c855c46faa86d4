// Package api provides the rate-limited, retrying client for the upstream
// market-data API. All endpoint modules issue requests through it so that
// authentication, rate limiting, retry, and error classification behave
// identically everywhere.
package api

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/solvik/fetchq/config"
	"github.com/solvik/fetchq/errors"
	"github.com/solvik/fetchq/internal/httpclient"
	"github.com/solvik/fetchq/ratelimit"
)

// authHeader carries the API key on every request.
const authHeader = "X-API-Token"

// Doer abstracts the underlying HTTP client for testing.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client issues GET requests against the upstream API with rate limiting,
// bounded retry with exponential backoff and jitter, and error
// classification. Response schemas are owned by the calling operation;
// the client returns raw JSON.
type Client struct {
	http    Doer
	baseURL string
	key     string
	cfg     config.APIConfig
	limiter *ratelimit.Limiter
	log     *zap.SugaredLogger

	// Injectable for deterministic retry tests
	rnd   func() float64
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates an upstream API client using the hardened HTTP client.
func NewClient(cfg config.APIConfig, limiter *ratelimit.Limiter, log *zap.SugaredLogger) *Client {
	return NewClientWithHTTP(cfg, limiter, log, httpclient.New(cfg.RequestTimeout()))
}

// NewClientWithHTTP creates a client with a custom HTTP transport.
// Tests use this with httpclient.Wrap to reach loopback servers.
func NewClientWithHTTP(cfg config.APIConfig, limiter *ratelimit.Limiter, log *zap.SugaredLogger, doer Doer) *Client {
	return &Client{
		http:    doer,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		key:     cfg.Key,
		cfg:     cfg,
		limiter: limiter,
		log:     log,
		rnd:     rand.Float64,
		sleep:   sleepCtx,
	}
}

// Get performs a GET request against the upstream API and returns the raw
// JSON body. Transient failures (429, 5xx, network errors) are retried up
// to cfg.MaxRetries additional attempts; permanent failures return
// immediately. Every attempt passes through the rate limiter.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		// Cancellation is observed between attempts, before consuming
		// more rate budget.
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "request cancelled")
		}

		if attempt > 0 {
			delay := Backoff(attempt, c.cfg.RetryBaseDelay(), c.cfg.RetryJitter, c.cfg.RetryMaxDelay(), c.rnd)
			c.log.Warnw("retrying upstream request",
				"path", path,
				"attempt", attempt,
				"max_retries", c.cfg.MaxRetries,
				"backoff", delay,
				"error", lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, errors.Wrap(err, "request cancelled during backoff")
			}
		}

		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		attempts++

		body, err := c.do(ctx, path, params)
		if err == nil {
			return body, nil
		}
		if !IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}

	// Retries exhausted: surface the last classified error annotated
	// with the attempt count.
	var statusErr *StatusError
	if errors.As(lastErr, &statusErr) {
		statusErr.Attempts = attempts
	}
	return nil, errors.WithDetailf(
		errors.Wrapf(lastErr, "upstream request failed after %d attempts", attempts),
		"path: %s", path)
}

// do performs a single attempt and classifies the outcome.
func (c *Client) do(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set(authHeader, c.key)

	resp, err := c.http.Do(req)
	if err != nil {
		// Network failures and timeouts are transient
		return nil, errors.Mark(errors.Wrapf(err, "request to %s failed", path), ErrTransient)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, FromResponse(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to read response from %s", path), ErrTransient)
	}

	if !json.Valid(body) {
		// A 2xx with garbage will not improve on retry
		return nil, errors.Mark(errors.Newf("upstream returned malformed JSON for %s", path), ErrPermanent)
	}

	return json.RawMessage(body), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
