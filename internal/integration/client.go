package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/reclaimarr/reclaimarr/internal/logger"
)

// RateLimiter implements a token bucket rate limiter for API calls
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewRateLimiter creates a rate limiter with specified RPS and burst size
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rps,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or context is cancelled
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(r.lastRefill).Seconds()
		r.tokens += elapsed * r.refillRate
		if r.tokens > r.maxTokens {
			r.tokens = r.maxTokens
		}
		r.lastRefill = now

		if r.tokens >= 1 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}

		waitTime := time.Duration((1 - r.tokens) / r.refillRate * float64(time.Second))
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// isRetryableError checks if an error is a transient network error worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if os.IsTimeout(err) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"i/o timeout",
		"eof",
		"connection timed out",
		"temporary failure",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// baseClient carries the HTTP plumbing shared by the catalog and
// acquisition-manager clients: auth header, rate limiting, retry with
// backoff for transient failures, and a per-service circuit breaker.
type baseClient struct {
	name       string // instance display name, for logs
	baseURL    string
	apiKey     string
	authHeader string // X-Api-Key for *arr, X-Emby-Token for the catalog
	httpClient *http.Client
	limiter    *RateLimiter
	breaker    *CircuitBreaker
}

func newBaseClient(name, baseURL, apiKey, authHeader string, timeout time.Duration, rps float64, burst int) baseClient {
	return baseClient{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		authHeader: authHeader,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    NewRateLimiter(rps, burst),
		breaker:    NewCircuitBreaker(DefaultCircuitBreakerConfig()),
	}
}

const requestRetries = 3

// doRequest performs an HTTP request with automatic retry for transient
// errors and 5xx responses. The caller owns the returned response body.
func (c *baseClient) doRequest(ctx context.Context, method, endpoint string, bodyData interface{}) (*http.Response, error) {
	if !c.breaker.Allow() {
		logger.Warnf("Circuit breaker OPEN for %s - rejecting request to %s", c.name, endpoint)
		return nil, fmt.Errorf("%w: %s is unhealthy", ErrCircuitOpen, c.name)
	}

	var lastErr error

	for attempt := 0; attempt < requestRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			c.breaker.RecordFailure()
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		var body io.Reader
		if bodyData != nil {
			jsonBytes, err := json.Marshal(bodyData)
			if err != nil {
				return nil, err
			}
			body = bytes.NewBuffer(jsonBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set(c.authHeader, c.apiKey)
		req.Header.Set("Accept", "application/json")
		if bodyData != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err == nil {
			if resp.StatusCode >= 500 && resp.StatusCode < 600 {
				drainBody(resp)
				if attempt < requestRetries-1 {
					logger.Infof("%s returned %d, retrying (%d/%d)...", c.name, resp.StatusCode, attempt+1, requestRetries)
					if err := sleepCtx(ctx, time.Duration(attempt+1)*2*time.Second); err != nil {
						return nil, err
					}
					continue
				}
				c.breaker.RecordFailure()
				return nil, fmt.Errorf("%s returned %d after %d attempts", c.name, resp.StatusCode, requestRetries)
			}
			c.breaker.RecordSuccess()
			return resp, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			c.breaker.RecordFailure()
			return nil, ctx.Err()
		}
		if !isRetryableError(err) {
			c.breaker.RecordFailure()
			return nil, err
		}

		if attempt < requestRetries-1 {
			logger.Infof("%s request failed (attempt %d/%d): %v, retrying...", c.name, attempt+1, requestRetries, err)
			if err := sleepCtx(ctx, time.Duration(attempt+1)*2*time.Second); err != nil {
				return nil, err
			}
		}
	}

	c.breaker.RecordFailure()
	return nil, fmt.Errorf("%s unavailable after %d attempts: %w", c.name, requestRetries, lastErr)
}

// getJSON performs a GET and decodes the response into out.
func (c *baseClient) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	resp, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %s for %s", c.name, resp.Status, endpoint)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode %s: %w", c.name, endpoint, err)
	}
	return nil
}

// delete performs a DELETE and requires a 200 or 204 response.
func (c *baseClient) delete(ctx context.Context, endpoint string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%s: delete %s failed: %s", c.name, endpoint, resp.Status)
	}
	return nil
}

// drainBody reads the remainder of a response body and closes it so the
// underlying connection can be reused.
func drainBody(resp *http.Response) {
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		logger.Debugf("Failed to drain response body: %v", err)
	}
	if err := resp.Body.Close(); err != nil {
		logger.Debugf("Failed to close response body: %v", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
