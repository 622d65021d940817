package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/hanamal24/site-sync/pkg/utils"
)

// Fetcher makes API requests with retry on transient failures, using an
// underlying http.Client. Image downloads go through Downloader instead.
type Fetcher struct {
	client *http.Client
	policy RetryPolicy
	log    *logrus.Entry
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, policy RetryPolicy, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client: client,
		policy: policy,
		log:    log,
	}
}

// FetchWithRetry performs req under ctx, retrying network errors, 5xx and 429
// with exponential backoff and jitter. Requests with a body are replayed
// through req.GetBody; a body without GetBody is sent once.
//
// On success the caller must close the response body. On a non-retryable
// status the response is returned along with a *StatusError and the caller
// must close the body in that case too.
func (f *Fetcher) FetchWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	reqLog := f.log.WithFields(logrus.Fields{"method": req.Method, "url": req.URL.Redacted()})

	policy := f.policy
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		policy = NoRetry
	}

	var finalResp *http.Response
	err := Retry(ctx, policy, reqLog, func(ctx context.Context, attempt int) error {
		attemptReq := req.Clone(ctx)
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return fmt.Errorf("%w: replay body: %w", utils.ErrRequestCreation, err)
			}
			attemptReq.Body = body
		}

		resp, err := f.client.Do(attemptReq)
		if err != nil {
			reqLog.WithField("attempt", attempt).Warnf("Network error: %v", err)
			return err
		}

		resLog := reqLog.WithFields(logrus.Fields{"status_code": resp.StatusCode, "attempt": attempt})
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			resLog.Debug("Successfully fetched")
			finalResp = resp
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			resLog.Warn("Transient HTTP error")
			drainAndClose(resp)
			return NewStatusError(resp)
		default:
			// Non-retryable; the caller may inspect the body
			resLog.Warn("Non-retryable HTTP status")
			finalResp = resp
			return NewStatusError(resp)
		}
	})
	if err != nil {
		reqLog.WithField("error_category", utils.CategorizeError(err)).Debugf("Fetch failed: %v", err)
	}
	return finalResp, err
}

// drainAndClose discards the rest of the body so the connection can be reused
func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
