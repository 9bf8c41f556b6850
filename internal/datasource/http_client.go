package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// HTTPClientConfig holds configuration for provider HTTP clients
type HTTPClientConfig struct {
	Timeout           time.Duration
	MaxRetries        int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	RateLimit         float64 // requests per second
	CircuitBreakerMax int     // consecutive failures before the circuit opens
}

// DefaultHTTPClientConfig returns recommended defaults
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:           30 * time.Second,
		MaxRetries:        3,
		RetryWaitMin:      time.Second,
		RetryWaitMax:      2 * time.Minute,
		RateLimit:         2.0,
		CircuitBreakerMax: 5,
	}
}

// RateLimitedHTTPClient wraps retryablehttp.Client with a token-bucket
// rate limiter and a consecutive-failure circuit breaker. A burst of 1
// means the limiter enforces a minimum delay between consecutive calls
// to the same provider.
type RateLimitedHTTPClient struct {
	client            *retryablehttp.Client
	limiter           *rate.Limiter
	circuitBreakerMax int
	log               *logrus.Logger

	mu                sync.Mutex
	consecutiveErrors int
	open              bool
	lastError         error
}

// NewRateLimitedHTTPClient creates a rate-limited HTTP client
func NewRateLimitedHTTPClient(cfg HTTPClientConfig, log *logrus.Logger) *RateLimitedHTTPClient {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.CheckRetry = retryPolicy()
	retryClient.Logger = nil

	return &RateLimitedHTTPClient{
		client:            retryClient,
		limiter:           rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		circuitBreakerMax: cfg.CircuitBreakerMax,
		log:               log,
	}
}

// Do executes a request after taking a rate-limiter token, tracking
// consecutive failures for the circuit breaker.
func (c *RateLimitedHTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	if c.open {
		lastErr := c.lastError
		c.mu.Unlock()
		return nil, fmt.Errorf("circuit breaker open: %v", lastErr)
	}
	c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	retryReq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap request: %w", err)
	}
	retryReq = retryReq.WithContext(ctx)

	resp, err := c.client.Do(retryReq)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.consecutiveErrors++
		c.lastError = err
		if c.consecutiveErrors >= c.circuitBreakerMax {
			c.open = true
			c.log.WithError(err).WithField("failures", c.consecutiveErrors).
				Warn("Circuit breaker opened")
		}
		return nil, err
	}

	if resp.StatusCode < 500 {
		c.consecutiveErrors = 0
		c.open = false
	}

	return resp, nil
}

// Get executes a GET request
func (c *RateLimitedHTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// Reset closes the circuit again after an operator intervention.
func (c *RateLimitedHTTPClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveErrors = 0
	c.open = false
	c.lastError = nil
}

// Close releases idle connections
func (c *RateLimitedHTTPClient) Close() error {
	c.client.HTTPClient.CloseIdleConnections()
	return nil
}

// retryPolicy retries network errors, 429 and 5xx; other client errors
// are final.
func retryPolicy() retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return true, nil
		}
		return false, nil
	}
}
