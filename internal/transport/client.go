// Package transport implements the HTTP client used to reach downstream
// agricultural services. One Client wraps one service descriptor; responses
// are duck-typed JSON objects, failures are *Error values. The client honors
// the descriptor's retry_attempts via retryablehttp.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/agrimesh/fieldlink/internal/registry"
)

const defaultMaxBytes int64 = 5 << 20

const (
	defaultRetryWaitMin = 200 * time.Millisecond
	defaultRetryWaitMax = 2 * time.Second
)

// Payload is a duck-typed JSON object returned by a downstream service.
type Payload = map[string]any

// Client issues JSON requests against one downstream service.
type Client struct {
	logger   zerolog.Logger
	desc     registry.Descriptor
	client   *retryablehttp.Client
	limiter  *rate.Limiter
	maxBytes int64
}

// Option customizes client behavior.
type Option func(*Client)

// WithRateLimit bounds outbound requests to this service.
func WithRateLimit(interval time.Duration, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Every(interval), burst)
	}
}

// WithMaxBytes bounds response body size.
func WithMaxBytes(maxBytes int64) Option {
	return func(c *Client) {
		if maxBytes > 0 {
			c.maxBytes = maxBytes
		}
	}
}

// WithRetryWait overrides the retry backoff window.
func WithRetryWait(min, max time.Duration) Option {
	return func(c *Client) {
		c.client.RetryWaitMin = min
		c.client.RetryWaitMax = max
	}
}

// NewClient constructs a Client for the given descriptor. The descriptor's
// retry_attempts becomes the retryablehttp retry budget, so one logical call
// may issue up to retry_attempts+1 requests on transient failures.
func NewClient(logger zerolog.Logger, desc registry.Descriptor) *Client {
	client := retryablehttp.NewClient()
	client.RetryMax = desc.RetryAttempts
	client.RetryWaitMin = defaultRetryWaitMin
	client.RetryWaitMax = defaultRetryWaitMax
	client.Logger = nil
	client.CheckRetry = checkRetry
	client.HTTPClient = &http.Client{Timeout: desc.Timeout}

	c := &Client{
		logger:   logger.With().Str("service", desc.Name).Logger(),
		desc:     desc,
		client:   client,
		limiter:  rate.NewLimiter(rate.Inf, 0),
		maxBytes: defaultMaxBytes,
	}
	return c
}

// Configure applies options after construction.
func (c *Client) Configure(opts ...Option) *Client {
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get issues a GET against the logical endpoint and returns the parsed JSON body.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (Payload, error) {
	target, err := c.resolve(endpoint)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		target = target + "?" + params.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, c.wrap("get "+endpoint, 0, err)
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, "get "+endpoint)
}

// Post issues a POST with a JSON-encoded body against the logical endpoint.
func (c *Client) Post(ctx context.Context, endpoint string, body any) (Payload, error) {
	target, err := c.resolve(endpoint)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, c.wrap("post "+endpoint, 0, fmt.Errorf("encode body: %w", err))
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(encoded))
	if err != nil {
		return nil, c.wrap("post "+endpoint, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req, "post "+endpoint)
}

// Probe performs a single liveness probe against the health endpoint.
// It reports (true, nil) on 2xx, (false, nil) on any other HTTP status,
// and (false, err) when the request itself failed.
func (c *Client) Probe(ctx context.Context) (bool, error) {
	target, err := c.resolve("health")
	if err != nil {
		return false, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, c.wrap("health probe", 0, err)
	}
	req.Header.Set("Accept", "application/json")

	if err := c.limiter.Wait(ctx); err != nil {
		return false, c.wrap("health probe", 0, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, c.wrap("health probe", 0, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBytes))

	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// HealthCheck reports whether the service answered its health endpoint with
// a 2xx. It never returns an error.
func (c *Client) HealthCheck(ctx context.Context) bool {
	healthy, err := c.Probe(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("health probe failed")
		return false
	}
	return healthy
}

// Name returns the descriptor name this client targets.
func (c *Client) Name() string {
	return c.desc.Name
}

func (c *Client) do(req *retryablehttp.Request, op string) (Payload, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, c.wrap(op, 0, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.wrap(op, 0, err)
	}
	defer resp.Body.Close()

	body, err := readWithLimit(resp.Body, c.maxBytes)
	if err != nil {
		return nil, c.wrap(op, resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.wrap(op, resp.StatusCode, fmt.Errorf("unexpected status: %s", resp.Status))
	}

	if len(body) == 0 {
		return Payload{}, nil
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, c.wrap(op, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return payload, nil
}

func (c *Client) resolve(endpoint string) (string, error) {
	path, ok := c.desc.Endpoint(endpoint)
	if !ok {
		if strings.HasPrefix(endpoint, "/") {
			path = endpoint
		} else {
			return "", c.wrap("resolve "+endpoint, 0, fmt.Errorf("endpoint %q not configured", endpoint))
		}
	}
	return strings.TrimSuffix(c.desc.BaseURL, "/") + path, nil
}

func (c *Client) wrap(op string, statusCode int, err error) *Error {
	return &Error{
		Service:    c.desc.Name,
		Op:         op,
		StatusCode: statusCode,
		Err:        err,
	}
}

// checkRetry applies the same classification as Error.Retryable: transport
// failures and 5xx responses retry, everything else returns immediately.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil || resp == nil {
		return true, nil
	}
	return retryableStatus(resp.StatusCode), nil
}

func readWithLimit(r io.Reader, maxBytes int64) ([]byte, error) {
	limited := io.LimitReader(r, maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxBytes)
	}
	return body, nil
}
