package events

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector receives dispatcher measurements.
type MetricsCollector interface {
	RecordEventProcessed(eventType string, success bool, duration time.Duration)
	RecordPublishAttempt(eventType string, attempt int, success bool)
	RecordEventDropped(eventType string)
	RecordQueueDepth(depth int)
}

// NoOpMetricsCollector is used when metrics aren't needed.
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordEventProcessed(string, bool, time.Duration) {}
func (NoOpMetricsCollector) RecordPublishAttempt(string, int, bool)           {}
func (NoOpMetricsCollector) RecordEventDropped(string)                        {}
func (NoOpMetricsCollector) RecordQueueDepth(int)                             {}

type PrometheusMetrics struct {
	eventCounter    *prometheus.CounterVec
	eventDuration   *prometheus.HistogramVec
	publishAttempts *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	queueDepth      prometheus.Gauge
}

// NewPrometheusMetrics registers the dispatcher collectors on reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		eventCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tapchain",
			Subsystem: "events",
			Name:      "processed_total",
			Help:      "Events handed to the publisher, by type and outcome.",
		}, []string{"event_type", "status"}),
		eventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tapchain",
			Subsystem: "events",
			Name:      "publish_duration_seconds",
			Help:      "Time spent publishing one event, retries included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		publishAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tapchain",
			Subsystem: "events",
			Name:      "publish_attempts_total",
			Help:      "Individual publish attempts.",
		}, []string{"event_type", "attempt", "status"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tapchain",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events dropped because the queue was full.",
		}, []string{"event_type"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tapchain",
			Subsystem: "events",
			Name:      "queue_depth",
			Help:      "Events waiting to be published.",
		}),
	}
	reg.MustRegister(m.eventCounter, m.eventDuration, m.publishAttempts, m.dropped, m.queueDepth)
	return m
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func (m *PrometheusMetrics) RecordEventProcessed(eventType string, success bool, duration time.Duration) {
	m.eventCounter.WithLabelValues(eventType, status(success)).Inc()
	m.eventDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordPublishAttempt(eventType string, attempt int, success bool) {
	m.publishAttempts.WithLabelValues(eventType, strconv.Itoa(attempt), status(success)).Inc()
}

func (m *PrometheusMetrics) RecordEventDropped(eventType string) {
	m.dropped.WithLabelValues(eventType).Inc()
}

func (m *PrometheusMetrics) RecordQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}
