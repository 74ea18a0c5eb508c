// Package metrics exposes Prometheus collectors for the archive service.
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
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	waybackRequestsTotal       *prometheus.CounterVec
	rejectedSubmissionsTotal   *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
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
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)

		waybackRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_wayback_requests_total",
				Help: "Save requests sent to the archive, labeled by target site and result.",
			},
			[]string{"site", "result"},
		)

		rejectedSubmissionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_rejected_submissions_total",
				Help: "Archive submissions refused before scheduling, labeled by reason.",
			},
			[]string{"reason"},
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
	Init()
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveArchiveRequest counts one save request for target. result is one of
// "success", "rejected" or "error".
func ObserveArchiveRequest(target, result string) {
	Init()
	waybackRequestsTotal.WithLabelValues(SanitizeSite(target), result).Inc()
}

// ObserveRejectedSubmission counts a submission refused for reason.
func ObserveRejectedSubmission(reason string) {
	Init()
	rejectedSubmissionsTotal.WithLabelValues(reason).Inc()
}
