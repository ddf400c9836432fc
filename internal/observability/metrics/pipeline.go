package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineMetrics covers the worker side: message processing, collation
// outcomes and analysis dispatches.
type PipelineMetrics struct {
	registry *prometheus.Registry

	messageTotal    *prometheus.CounterVec
	messageDuration *prometheus.HistogramVec
	messageInFlight prometheus.Gauge
	collationTotal  *prometheus.CounterVec
	analysisTotal   *prometheus.CounterVec
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	return newPipelineMetrics(service, prometheus.NewRegistry())
}

// NewPipelineMetricsOn registers the pipeline collectors on an existing
// registry so api and worker surfaces can share one /metrics endpoint.
func NewPipelineMetricsOn(service string, registry *prometheus.Registry) *PipelineMetrics {
	return newPipelineMetrics(service, registry)
}

func newPipelineMetrics(service string, registry *prometheus.Registry) *PipelineMetrics {
	messageTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mga",
			Subsystem: "pipeline",
			Name:      "messages_total",
			Help:      "Total processed email messages by status.",
		},
		[]string{"service", "status"},
	)
	messageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mga",
			Subsystem: "pipeline",
			Name:      "message_duration_seconds",
			Help:      "End-to-end message processing duration by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	messageInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mga",
			Subsystem: "pipeline",
			Name:      "messages_in_flight",
			Help:      "Number of messages currently being processed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	collationTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mga",
			Subsystem: "pipeline",
			Name:      "collation_outcomes_total",
			Help:      "Total document ingests by collation outcome.",
		},
		[]string{"service", "outcome"},
	)
	analysisTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mga",
			Subsystem: "pipeline",
			Name:      "analyses_total",
			Help:      "Total analysis dispatches by status.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(messageTotal, messageDuration, messageInFlight, collationTotal, analysisTotal)

	return &PipelineMetrics{
		registry:        registry,
		messageTotal:    messageTotal,
		messageDuration: messageDuration,
		messageInFlight: messageInFlight,
		collationTotal:  collationTotal,
		analysisTotal:   analysisTotal,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) StartMessage() {
	m.messageInFlight.Inc()
}

func (m *PipelineMetrics) FinishMessage(service, status string, duration time.Duration) {
	m.messageInFlight.Dec()
	if status == "" {
		status = "unknown"
	}
	m.messageTotal.WithLabelValues(service, status).Inc()
	m.messageDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *PipelineMetrics) RecordCollationOutcome(service, outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.collationTotal.WithLabelValues(service, outcome).Inc()
}

func (m *PipelineMetrics) RecordAnalyses(service string, ok, failed int) {
	if ok > 0 {
		m.analysisTotal.WithLabelValues(service, "success").Add(float64(ok))
	}
	if failed > 0 {
		m.analysisTotal.WithLabelValues(service, "failed").Add(float64(failed))
	}
}
