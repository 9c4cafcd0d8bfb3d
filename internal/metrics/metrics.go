// Package metrics 汇总任务引擎与 HTTP 层的 Prometheus 指标。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wellnesslog",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wellnesslog",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	missionUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wellnesslog",
			Subsystem: "missions",
			Name:      "updates_total",
			Help:      "Progress recomputations by outcome.",
		},
		[]string{"outcome"},
	)

	missionAssignments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wellnesslog",
			Subsystem: "missions",
			Name:      "assignments_total",
			Help:      "Starter missions created by auto-assignment.",
		},
	)

	trackingEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wellnesslog",
			Subsystem: "tracking",
			Name:      "events_total",
			Help:      "Tracking events written per category.",
		},
		[]string{"category"},
	)

	reconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "wellnesslog",
			Subsystem: "missions",
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of batch reconciliation passes.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)
)

// Mission update outcomes.
const (
	OutcomeUpdated     = "updated"
	OutcomeCompleted   = "completed"
	OutcomeUnchanged   = "unchanged"
	OutcomeConfigError = "config_error"
	OutcomeFailed      = "failed"
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		missionUpdates,
		missionAssignments,
		trackingEvents,
		reconcileDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency using the matched route path.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordMissionUpdate counts a single progress recomputation.
func RecordMissionUpdate(outcome string) {
	missionUpdates.WithLabelValues(outcome).Inc()
}

// RecordAssignments counts newly created starter missions.
func RecordAssignments(n int) {
	if n <= 0 {
		return
	}
	missionAssignments.Add(float64(n))
}

// RecordTrackingEvent counts a tracking write.
func RecordTrackingEvent(category string) {
	if category == "" {
		category = "unknown"
	}
	trackingEvents.WithLabelValues(category).Inc()
}

// ObserveReconcile records how long a reconciliation pass took.
func ObserveReconcile(d time.Duration) {
	if d <= 0 {
		d = time.Millisecond
	}
	reconcileDuration.Observe(d.Seconds())
}
