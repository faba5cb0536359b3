// Package metrics exposes Prometheus collectors for the music crawler service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlPagesTotal            *prometheus.CounterVec
	crawlItemsTotal            *prometheus.CounterVec
	mediaDownloadsTotal        *prometheus.CounterVec
	publishTotal               *prometheus.CounterVec
	jobsTotal                  *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musiccrawler_crawl_pages_total",
				Help: "Total number of list pages fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musiccrawler_crawl_items_total",
				Help: "Total number of detail items handled, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		mediaDownloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musiccrawler_media_downloads_total",
				Help: "Total number of media downloads, labeled by media field and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		publishTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musiccrawler_publish_total",
				Help: "Total number of CMS publish attempts, labeled by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musiccrawler_jobs_total",
				Help: "Total number of job invocations, labeled by job and outcome.",
			},
			[]string{"job", "outcome"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "musiccrawler_active_workers",
				Help: "Number of workers currently running a job.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "musiccrawler_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveListPage counts a fetched list page.
func ObserveListPage(site string) {
	if crawlPagesTotal == nil {
		return
	}
	crawlPagesTotal.WithLabelValues(site).Inc()
}

// ObserveItem counts a detail item by outcome (created, existing, failed).
func ObserveItem(site, outcome string) {
	if crawlItemsTotal == nil {
		return
	}
	crawlItemsTotal.WithLabelValues(site, outcome).Inc()
}

// ObserveMediaDownload counts a media fetch by field (mp3_128, mp3_320, thumbnail) and outcome.
func ObserveMediaDownload(kind, outcome string) {
	if mediaDownloadsTotal == nil {
		return
	}
	mediaDownloadsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObservePublish counts a publish attempt by kind (track, album) and outcome.
func ObservePublish(kind, outcome string) {
	if publishTotal == nil {
		return
	}
	publishTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveJob counts a job invocation by outcome (ran, skipped, failed).
func ObserveJob(job, outcome string) {
	if jobsTotal == nil {
		return
	}
	jobsTotal.WithLabelValues(job, outcome).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
