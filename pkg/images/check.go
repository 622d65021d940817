package images

import (
	"context"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hanamal24/site-sync/pkg/storage"
	"github.com/hanamal24/site-sync/pkg/utils"
)

// SourceStatus is the health of one registry source URL
type SourceStatus struct {
	URL        string   `json:"url"`
	StatusCode int      `json:"statusCode,omitempty"`
	Accessible bool     `json:"accessible"`
	Error      string   `json:"error,omitempty"`
	Category   string   `json:"category,omitempty"`
	Slots      []string `json:"slots"` // Slot keys that were filled from this URL
}

// CheckReport splits checked source URLs into accessible and broken
type CheckReport struct {
	Accessible []SourceStatus `json:"accessible"`
	Broken     []SourceStatus `json:"broken"`
}

// CheckSources issues a GET for every distinct source URL in the registry
// and reports which are still reachable. Each request has its own timeout.
func CheckSources(ctx context.Context, client *http.Client, registry *storage.Registry, timeout time.Duration, workers int, log *logrus.Entry) (*CheckReport, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if workers <= 0 {
		workers = 4
	}

	slotsByURL := make(map[string][]string)
	for key, e := range registry.Snapshot().BySlotKey {
		if e.SourceURL != "" {
			slotsByURL[e.SourceURL] = append(slotsByURL[e.SourceURL], key)
		}
	}
	urls := make([]string, 0, len(slotsByURL))
	for u := range slotsByURL {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	statuses := make([]SourceStatus, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, u := range urls {
		g.Go(func() error {
			slots := slotsByURL[u]
			sort.Strings(slots)
			statuses[i] = checkOne(gctx, client, u, timeout)
			statuses[i].Slots = slots
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &CheckReport{}
	for _, s := range statuses {
		if s.Accessible {
			report.Accessible = append(report.Accessible, s)
		} else {
			report.Broken = append(report.Broken, s)
		}
	}
	log.WithFields(logrus.Fields{"accessible": len(report.Accessible), "broken": len(report.Broken)}).Info("Source check complete")
	return report, nil
}

func checkOne(ctx context.Context, client *http.Client, rawURL string, timeout time.Duration) SourceStatus {
	status := SourceStatus{URL: rawURL}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		status.Error = err.Error()
		status.Category = utils.CategorizeError(err)
		return status
	}
	resp, err := client.Do(req)
	if err != nil {
		status.Error = err.Error()
		status.Category = utils.CategorizeError(err)
		return status
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	status.StatusCode = resp.StatusCode
	status.Accessible = resp.StatusCode == http.StatusOK
	return status
}
