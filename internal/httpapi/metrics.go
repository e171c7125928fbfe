package httpapi

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ashkicharm/backend/internal/service"
)

var (
	HttpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	metricsOnce sync.Once
)

// InitMetrics registers the HTTP and business collectors with the default
// registry. Safe to call more than once.
func InitMetrics() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(HttpRequestsTotal, HttpRequestDuration)
		prometheus.MustRegister(service.Collectors()...)
	})
}

func observeRequest(method string, path string, status int, took time.Duration) {
	if path == "" {
		path = "undefined"
	}
	HttpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HttpRequestDuration.WithLabelValues(path).Observe(took.Seconds())
}
