package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hanamal24/site-sync/pkg/utils"
)

// Download is the body and metadata of one successfully fetched image
type Download struct {
	SourceURL   string // URL as requested, before redirects
	FinalURL    string // URL that produced the body
	Body        []byte
	ContentHash string // Hex MD5 of Body
	ContentType string
	Size        int64
}

// DownloaderOptions configures a Downloader
type DownloaderOptions struct {
	MaxBytes       int64         // 0 = unlimited
	RequestTimeout time.Duration // Applied per attempt on top of any ctx deadline
	UserAgent      string
}

// Downloader performs single-attempt image GETs through a shared client.
// Retrying is left to the caller (see Retry).
type Downloader struct {
	client  *http.Client
	limiter *HostLimiter // nil = no per-host cap
	opts    DownloaderOptions
	log     *logrus.Entry
}

// NewDownloader creates a Downloader
func NewDownloader(client *http.Client, limiter *HostLimiter, opts DownloaderOptions, log *logrus.Entry) *Downloader {
	return &Downloader{
		client:  client,
		limiter: limiter,
		opts:    opts,
		log:     log.WithField("component", "downloader"),
	}
}

// Download fetches rawURL once. Any terminal status other than 200 is an
// error wrapping a *StatusError. Bodies over the size limit fail with
// utils.ErrImageTooLarge.
func (d *Downloader) Download(ctx context.Context, rawURL string) (*Download, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", utils.ErrInvalidImageURL, rawURL)
	}
	host := u.Hostname()

	if d.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.RequestTimeout)
		defer cancel()
	}

	if d.limiter != nil {
		if err := d.limiter.Acquire(ctx, host); err != nil {
			return nil, err
		}
		defer d.limiter.Release(host)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	if d.opts.UserAgent != "" {
		req.Header.Set("User-Agent", d.opts.UserAgent)
	}
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, NewStatusError(resp)
	}

	if d.opts.MaxBytes > 0 && resp.ContentLength > d.opts.MaxBytes {
		return nil, fmt.Errorf("%w: content-length %d > %d", utils.ErrImageTooLarge, resp.ContentLength, d.opts.MaxBytes)
	}

	var reader io.Reader = resp.Body
	if d.opts.MaxBytes > 0 {
		reader = io.LimitReader(resp.Body, d.opts.MaxBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
	}
	if d.opts.MaxBytes > 0 && int64(len(body)) > d.opts.MaxBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", utils.ErrImageTooLarge, d.opts.MaxBytes)
	}

	dl := &Download{
		SourceURL:   rawURL,
		FinalURL:    resp.Request.URL.String(),
		Body:        body,
		ContentHash: utils.ContentHash(body),
		ContentType: resp.Header.Get("Content-Type"),
		Size:        int64(len(body)),
	}
	d.log.WithFields(logrus.Fields{"url": rawURL, "final_url": dl.FinalURL, "bytes": dl.Size}).Debug("Downloaded image")
	return dl, nil
}
