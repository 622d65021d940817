package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hanamal24/site-sync/pkg/utils"
)

// RetryPolicy bounds how often and how slowly a failed operation is repeated.
// MaxRetries counts retries after the first attempt, so 0 means one attempt.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// NoRetry is a policy that performs exactly one attempt
var NoRetry = RetryPolicy{}

// StatusError is returned for responses whose status code is not accepted.
// It wraps one of utils.ErrClientHTTPError, utils.ErrServerHTTPError or
// utils.ErrOtherHTTPError so callers can categorize it.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: status %d %s", e.Unwrap(), e.StatusCode, e.Status)
}

// Unwrap returns the sentinel matching the status class
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode >= 500:
		return utils.ErrServerHTTPError
	case e.StatusCode >= 400:
		return utils.ErrClientHTTPError
	default:
		return utils.ErrOtherHTTPError
	}
}

// NewStatusError builds a StatusError from a response
func NewStatusError(resp *http.Response) *StatusError {
	return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
}

// IsRetryable reports whether err is transient: network failures, per-request
// timeouts, 5xx and 429. Policy rejections, other 4xx and cancellation are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, utils.ErrTooManyRedirects),
		errors.Is(err, utils.ErrImageTooLarge),
		errors.Is(err, utils.ErrInvalidImageURL),
		errors.Is(err, utils.ErrRequestCreation),
		errors.Is(err, utils.ErrClientHTTPError),
		errors.Is(err, utils.ErrOtherHTTPError):
		return false
	}
	return true
}

// Backoff returns the delay before retry number attempt (1-based):
// initial * 2^(attempt-1), capped at max, with +/- 10% jitter
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	backoff := float64(p.InitialDelay) * math.Pow(2, float64(attempt-1))
	delay := time.Duration(backoff)
	if delay <= 0 || (p.MaxDelay > 0 && delay > p.MaxDelay) {
		delay = p.MaxDelay
	}
	if delay <= 0 {
		return 0
	}

	// +/- 10% range is delay/5 wide centered at 0
	var jitter time.Duration
	if jitterRange := int64(delay) / 5; jitterRange > 0 {
		jitter = time.Duration(rand.Int63n(jitterRange)) - (delay / 10)
	}
	if final := delay + jitter; final > 0 {
		return final
	}
	return 0
}

// Retry runs op until it succeeds, returns a non-retryable error, the policy
// is exhausted, or ctx is done. When retries were attempted and all failed,
// the last error is wrapped with utils.ErrRetryFailed.
func Retry(ctx context.Context, p RetryPolicy, log *logrus.Entry, op func(ctx context.Context, attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.Backoff(attempt)
			log.WithFields(logrus.Fields{
				"attempt": attempt, "max_retries": p.MaxRetries, "delay": delay, "error": lastErr,
			}).Debug("Retrying...")

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("context cancelled (%v) during retry delay after error: %w", ctx.Err(), lastErr)
			}
		}

		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
	}

	if p.MaxRetries > 0 {
		return fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
	}
	return lastErr
}
