package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gallery",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served.",
		},
		[]string{"method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gallery",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	streamSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gallery",
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Open push channel subscribers.",
		},
	)
	streamPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gallery",
			Subsystem: "stream",
			Name:      "published_total",
			Help:      "Events published to subscribers, by delivery outcome.",
		},
		[]string{"outcome"},
	)
	engineEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gallery",
			Subsystem: "engine",
			Name:      "events_total",
			Help:      "Push events seen by the reconciliation engine.",
		},
		[]string{"kind", "outcome"},
	)
	engineDeletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gallery",
			Subsystem: "engine",
			Name:      "deletions_total",
			Help:      "Optimistic deletions by settlement state.",
		},
		[]string{"state"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			streamSubscribers, streamPublished,
			engineEvents, engineDeletions,
		)
	})
}

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}

func SetStreamSubscribers(n int) {
	RegisterMetrics()
	streamSubscribers.Set(float64(n))
}

func RecordPublished(delivered bool) {
	RegisterMetrics()
	outcome := "delivered"
	if !delivered {
		outcome = "dropped"
	}
	streamPublished.WithLabelValues(outcome).Inc()
}

// RecordEngineEvent counts one push event. kind is "add", "remove" or
// "malformed"; outcome is "applied", "noop", "suppressed" or "dropped".
func RecordEngineEvent(kind, outcome string) {
	RegisterMetrics()
	engineEvents.WithLabelValues(kind, outcome).Inc()
}

func RecordDeletion(state string) {
	RegisterMetrics()
	engineDeletions.WithLabelValues(state).Inc()
}
