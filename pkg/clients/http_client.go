package clients

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/openaviary/birdfeed/pkg/errors"
)

// tokenHeader is the authentication header required by the upstream API.
const tokenHeader = "X-eBirdApiToken"

// maxErrorBody bounds how much of a failed response body is kept for
// error reporting.
const maxErrorBody = 4096

// APIConfig configures the upstream API client.
type APIConfig struct {
	// BaseURL is the versioned API base, e.g. https://api.ebird.org/v2.
	BaseURL string
	// Token is the API token. May be empty; calls then fail before any
	// network I/O with a credential error.
	Token string
	// Timeout bounds each request. Defaults to 10s.
	Timeout time.Duration
	// RateLimit is the maximum request rate per second (0 = unlimited).
	RateLimit float64
	// RateBurst is the token bucket burst size.
	RateBurst int
}

// APIClient issues authenticated GET requests against the upstream API.
// It performs no retries; retry policy belongs to callers. Transport
// failures and non-2xx responses are reported as distinct error types so
// callers can isolate them at the resource boundary.
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *TokenBucket
	logger     *zap.Logger

	requests       int64
	failedRequests int64
}

// NewAPIClient creates a new upstream API client.
func NewAPIClient(cfg APIConfig, logger *zap.Logger) *APIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &APIClient{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: NewTokenBucket(cfg.RateLimit, cfg.RateBurst),
		logger:  logger.With(zap.String("component", "api_client")),
	}
}

// CheckCredential verifies the API token is configured. This is a
// precondition check made before any network call; a missing token aborts
// the whole run rather than surfacing as a deferred API error.
func (c *APIClient) CheckCredential() error {
	if c.token == "" {
		return errors.New(errors.ErrorTypeCredential,
			"EBIRD_API_TOKEN not found in environment or configuration")
	}
	return nil
}

// GetJSON issues a GET against path with the given query parameters and
// decodes the JSON response body into out.
func (c *APIClient) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := c.CheckCredential(); err != nil {
		return err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeTransport, "rate limiter wait aborted")
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeTransport, "failed to build request for %s", path)
	}
	req.Header.Set(tokenHeader, c.token)
	req.Header.Set("Accept", "application/json")

	atomic.AddInt64(&c.requests, 1)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		atomic.AddInt64(&c.failedRequests, 1)
		return errors.Wrapf(err, errors.ErrorTypeTransport, "request to %s failed", path)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("upstream request completed",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		atomic.AddInt64(&c.failedRequests, 1)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errors.Newf(errors.ErrorTypeUpstream, "unexpected status %d from %s", resp.StatusCode, path).
			WithDetail("status_code", resp.StatusCode).
			WithDetail("body", string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		atomic.AddInt64(&c.failedRequests, 1)
		return errors.Wrapf(err, errors.ErrorTypeTransport, "failed to read response from %s", path)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeData, "failed to decode response from %s", path)
	}

	return nil
}

// Requests returns the number of network calls attempted. Credential
// failures happen before the counter is touched.
func (c *APIClient) Requests() int64 {
	return atomic.LoadInt64(&c.requests)
}

// FailedRequests returns the number of calls that failed at the transport
// layer or returned a non-2xx status.
func (c *APIClient) FailedRequests() int64 {
	return atomic.LoadInt64(&c.failedRequests)
}
