package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patrolscan",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "patrolscan",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "patrolscan",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Patrol metrics
	PatrolTicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "patrolscan",
		Subsystem: "patrol",
		Name:      "ticks_total",
		Help:      "Total scheduler ticks processed",
	})

	PatrolState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "patrolscan",
		Subsystem: "patrol",
		Name:      "state",
		Help:      "1 for the scheduler's current scan state, 0 otherwise",
	}, []string{"state"})

	AnalysesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "patrolscan",
		Subsystem: "patrol",
		Name:      "analyses_skipped_total",
		Help:      "Analysis ticks skipped because a classification was already in flight",
	})

	StaleResults = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "patrolscan",
		Subsystem: "patrol",
		Name:      "stale_results_total",
		Help:      "Classification results discarded because the patrol was stopped or restarted",
	})

	// Classification metrics
	ClassificationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patrolscan",
		Subsystem: "classifier",
		Name:      "requests_total",
		Help:      "Classification calls by outcome",
	}, []string{"outcome"})

	ClassificationAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "patrolscan",
		Subsystem: "classifier",
		Name:      "attempts_total",
		Help:      "Individual upstream attempts, including retries",
	})

	ClassificationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "patrolscan",
		Subsystem: "classifier",
		Name:      "duration_seconds",
		Help:      "End-to-end classification latency including retries",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	CandidatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "patrolscan",
		Subsystem: "classifier",
		Name:      "candidates_dropped_total",
		Help:      "Classifier entries dropped for invalid geometry or attributes",
	})

	DetectionsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patrolscan",
		Subsystem: "detections",
		Name:      "accepted_total",
		Help:      "Detections appended to the store",
	}, []string{"kind"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "patrolscan",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})
)

// SetState marks state as the only active scan state.
func SetState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		PatrolState.WithLabelValues(s).Set(v)
	}
}

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}
