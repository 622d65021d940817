package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanamal24/site-sync/pkg/utils"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"500", &StatusError{StatusCode: 500, Status: "500 Internal Server Error"}, true},
		{"503 wrapped", fmt.Errorf("download: %w", &StatusError{StatusCode: 503}), true},
		{"429", &StatusError{StatusCode: http.StatusTooManyRequests}, true},
		{"404", &StatusError{StatusCode: 404}, false},
		{"403", &StatusError{StatusCode: 403}, false},
		{"too many redirects", fmt.Errorf("get: %w", utils.ErrTooManyRedirects), false},
		{"too large", utils.ErrImageTooLarge, false},
		{"invalid url", utils.ErrInvalidImageURL, false},
		{"cancelled", context.Canceled, false},
		{"per-request timeout", context.DeadlineExceeded, true},
		{"network", errors.New("dial tcp: connection reset by peer"), true},
		{"body read", fmt.Errorf("%w: unexpected EOF", utils.ErrResponseBodyRead), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestStatusError_Categories(t *testing.T) {
	tests := []struct {
		code     int
		status   string
		sentinel error
		category string
	}{
		{404, "404 Not Found", utils.ErrClientHTTPError, "HTTP_404"},
		{403, "403 Forbidden", utils.ErrClientHTTPError, "HTTP_403"},
		{418, "418 I'm a teapot", utils.ErrClientHTTPError, "HTTP_4xx"},
		{502, "502 Bad Gateway", utils.ErrServerHTTPError, "HTTP_5xx"},
		{304, "304 Not Modified", utils.ErrOtherHTTPError, "HTTP_OtherStatus"},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			err := &StatusError{StatusCode: tt.code, Status: tt.status}
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.category, utils.CategorizeError(err))
		})
	}
}

func TestBackoff(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}

	assert.Equal(t, time.Duration(0), p.Backoff(0))

	within := func(d, center time.Duration) bool {
		return d >= center-center/10 && d <= center+center/10
	}
	assert.True(t, within(p.Backoff(1), 100*time.Millisecond))
	assert.True(t, within(p.Backoff(2), 200*time.Millisecond))
	assert.True(t, within(p.Backoff(3), 300*time.Millisecond), "capped at max")
	assert.True(t, within(p.Backoff(10), 300*time.Millisecond), "capped at max")

	assert.Equal(t, time.Duration(0), RetryPolicy{MaxRetries: 1}.Backoff(1))
}

func TestRetry_SucceedsAfterTransient(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), testPolicy(3), testLogger(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return &StatusError{StatusCode: 503}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), testPolicy(3), testLogger(), func(ctx context.Context, attempt int) error {
		calls++
		return &StatusError{StatusCode: 404, Status: "404 Not Found"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.NotErrorIs(t, err, utils.ErrRetryFailed)
	assert.Equal(t, "HTTP_404", utils.CategorizeError(err))
}

func TestRetry_NoRetryPolicyDoesNotWrap(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), NoRetry, testLogger(), func(ctx context.Context, attempt int) error {
		calls++
		return &StatusError{StatusCode: 500}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.NotErrorIs(t, err, utils.ErrRetryFailed)
	assert.Equal(t, "HTTP_5xx", utils.CategorizeError(err))
}

func TestRetry_ExhaustedWrapsRetryFailed(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), testPolicy(2), testLogger(), func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("dial tcp 10.0.0.1:443: connect: connection refused")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, utils.ErrRetryFailed)
	assert.Equal(t, "RetryFailed_ConnectionRefused", utils.CategorizeError(err))
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, RetryPolicy{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second}, testLogger(),
		func(ctx context.Context, attempt int) error {
			calls++
			cancel()
			return &StatusError{StatusCode: 503}
		})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
