// Package api holds the retry policy and error types shared by outbound API clients.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"time"
)

// RetryPolicy defines the configuration for retry behavior
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	RetryableErrors   []int // HTTP status codes that should trigger retries
}

// DefaultRetryPolicy returns a sensible default retry policy
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		RetryableErrors:   []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
	}
}

// NoRetryPolicy returns a policy that makes a single attempt.
func NoRetryPolicy() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: 1}
}

// CalculateBackoff calculates the backoff duration for a given attempt
func (rp *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	backoff := float64(rp.InitialBackoff) * math.Pow(rp.BackoffMultiplier, float64(attempt-1))
	if rp.MaxBackoff > 0 && backoff > float64(rp.MaxBackoff) {
		backoff = float64(rp.MaxBackoff)
	}

	return time.Duration(backoff)
}

// IsRetryableError checks if an error should trigger a retry
func (rp *RetryPolicy) IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return rp.IsRetryableStatusCode(httpErr.StatusCode)
	}

	// Timeouts talking to the API are worth another try; a cancelled context is not.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() && !errors.Is(err, context.Canceled) {
		return true
	}

	return false
}

// IsRateLimitError checks if an error is specifically due to rate limiting
func (rp *RetryPolicy) IsRateLimitError(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// IsRetryableStatusCode checks if a status code should trigger retries
func (rp *RetryPolicy) IsRetryableStatusCode(statusCode int) bool {
	for _, code := range rp.RetryableErrors {
		if statusCode == code {
			return true
		}
	}
	return false
}

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	Message    string
	// RetryAfter is the server's requested wait before the next attempt, if it sent one.
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// RetryableOperation represents an operation that can be retried
type RetryableOperation func(ctx context.Context) error

// ExecuteWithRetry executes an operation with retry logic. Waiting between attempts stops
// early when ctx is done.
func ExecuteWithRetry(ctx context.Context, operation RetryableOperation, policy *RetryPolicy, operationName string) error {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	attempts := max(policy.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := operation(ctx)
		if err == nil {
			if attempt > 1 {
				slog.Info("Operation succeeded after retry",
					"operation", operationName,
					"attempt", attempt)
			}
			return nil
		}

		lastErr = err

		if !policy.IsRetryableError(err) {
			slog.Debug("Error is not retryable, stopping",
				"operation", operationName,
				"attempt", attempt,
				"error", err)
			return fmt.Errorf("operation %s failed: %w", operationName, err)
		}

		if attempt == attempts {
			break
		}

		backoff := policy.waitFor(err, attempt)
		slog.Warn("Retrying operation",
			"operation", operationName,
			"attempt", attempt+1,
			"maxAttempts", attempts,
			"backoff", backoff,
			"lastError", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("operation %s cancelled: %w", operationName, errors.Join(ctx.Err(), lastErr))
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("operation %s failed after %d attempts: %w", operationName, attempts, lastErr)
}

// waitFor picks the delay after a failed attempt. Rate limits honour the server's
// Retry-After when present and otherwise back off twice as long.
func (rp *RetryPolicy) waitFor(err error, attempt int) time.Duration {
	if rp.IsRateLimitError(err) {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
			return httpErr.RetryAfter
		}
		return rp.CalculateBackoff(attempt) * 2
	}
	return rp.CalculateBackoff(attempt)
}
