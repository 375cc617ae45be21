package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChunksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chunks_received_total",
		Help: "Audio chunks received on the live path",
	})

	ChunksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chunks_skipped_total",
		Help: "Chunks below the minimum size, treated as silence",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Per-stage latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"stage"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})

	StorageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_errors_total",
		Help: "Isolated storage write failures by entity",
	}, []string{"entity"})

	SuggestionsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "suggestions_generated_total",
		Help: "Suggestions produced, by rule",
	}, []string{"rule"})

	EmotionDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emotion_degraded_total",
		Help: "Emotion scores replaced by a last-known or default vector",
	})

	VendorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vendor_request_duration_seconds",
		Help:    "Latency of external vendor calls",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"vendor", "operation"})

	VendorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vendor_errors_total",
		Help: "Failed external vendor calls",
	}, []string{"vendor", "operation"})

	LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live_sessions_active",
		Help: "Calls with recent live chunk activity",
	})

	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Connected dashboard websocket clients",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// ObserveStage records how long a pipeline stage took
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// ObserveVendor records a vendor call and counts it as failed when err is set
func ObserveVendor(vendor, operation string, start time.Time, err error) {
	VendorDuration.WithLabelValues(vendor, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		VendorErrors.WithLabelValues(vendor, operation).Inc()
	}
}

// RecordHTTPRequest records a completed HTTP request
func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler exposes the default registry in Prometheus text format
func Handler() http.Handler {
	return promhttp.Handler()
}
