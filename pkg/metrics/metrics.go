// Package metrics exposes Prometheus collectors for syncs, image ingestion
// and lead submissions.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	imagesTotal             *prometheus.CounterVec
	imageFailuresTotal      *prometheus.CounterVec
	imageResolveSeconds     *prometheus.HistogramVec
	datasetRecordsTotal     *prometheus.CounterVec
	syncRunsTotal           *prometheus.CounterVec
	syncDurationSeconds     prometheus.Histogram
	registryEntries         *prometheus.GaugeVec
	leadsTotal              *prometheus.CounterVec
	lastSyncTimestampSecond prometheus.Gauge
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestSeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		imagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesync_images_total",
				Help: "Image slots resolved, labeled by dataset and outcome.",
			},
			[]string{"dataset", "outcome"},
		)

		imageFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesync_image_failures_total",
				Help: "Image slots left remote, labeled by dataset and error category.",
			},
			[]string{"dataset", "category"},
		)

		imageResolveSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitesync_image_resolve_seconds",
				Help:    "Time to resolve one image slot, labeled by outcome.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"outcome"},
		)

		datasetRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesync_dataset_records_total",
				Help: "Records fetched, labeled by dataset.",
			},
			[]string{"dataset"},
		)

		syncRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesync_runs_total",
				Help: "Sync runs, labeled by status.",
			},
			[]string{"status"},
		)

		syncDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sitesync_run_duration_seconds",
				Help:    "Histogram of full sync durations.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		)

		registryEntries = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sitesync_registry_entries",
				Help: "Entries in the image registry, labeled by index (slot or content).",
			},
			[]string{"index"},
		)

		leadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesync_leads_total",
				Help: "Lead submissions, labeled by result.",
			},
			[]string{"result"},
		)

		lastSyncTimestampSecond = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitesync_last_sync_timestamp_seconds",
				Help: "Unix time of the last successful sync.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesync_http_requests_total",
				Help: "HTTP requests served, labeled by route, method and status code.",
			},
			[]string{"route", "method", "code"},
		)

		httpRequestSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitesync_http_request_seconds",
				Help:    "HTTP request latency, labeled by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveImage records the outcome of one image slot
func ObserveImage(dataset, outcome, category string, duration time.Duration) {
	Init()
	imagesTotal.WithLabelValues(dataset, outcome).Inc()
	imageResolveSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
	if category != "" {
		imageFailuresTotal.WithLabelValues(dataset, category).Inc()
	}
}

// ObserveDatasetRecords adds the number of records fetched for a dataset
func ObserveDatasetRecords(dataset string, n int) {
	Init()
	datasetRecordsTotal.WithLabelValues(dataset).Add(float64(n))
}

// ObserveSync records a finished sync run
func ObserveSync(status string, duration time.Duration) {
	Init()
	syncRunsTotal.WithLabelValues(status).Inc()
	syncDurationSeconds.Observe(duration.Seconds())
	if status == "success" {
		lastSyncTimestampSecond.SetToCurrentTime()
	}
}

// SetRegistryEntries publishes the registry sizes
func SetRegistryEntries(slots, contents int) {
	Init()
	registryEntries.WithLabelValues("slot").Set(float64(slots))
	registryEntries.WithLabelValues("content").Set(float64(contents))
}

// ObserveLead records a lead submission result
func ObserveLead(result string) {
	Init()
	leadsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest records one served request. route should be a pattern,
// not the raw path, to keep label cardinality bounded.
func ObserveHTTPRequest(route, method string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	httpRequestSeconds.WithLabelValues(route).Observe(duration.Seconds())
}
