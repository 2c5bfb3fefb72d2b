package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DetectionMetrics tracks detection workspaces and their outcomes.
type DetectionMetrics struct {
	outcomes        *prometheus.CounterVec
	persistFailures prometheus.Counter
	activeAnalyses  prometheus.Gauge
}

func NewDetectionMetrics(registry *prometheus.Registry) (*DetectionMetrics, error) {
	m := &DetectionMetrics{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "malariadx_detections_total",
				Help: "Completed detections partitioned by displayed status",
			},
			[]string{"status"},
		),
		persistFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "malariadx_detection_persist_failures_total",
				Help: "Detections whose result was shown but not saved",
			},
		),
		activeAnalyses: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "malariadx_detections_in_flight",
				Help: "Detections currently waiting on the inference service",
			},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register detection metrics: %w", err)
	}
	return m, nil
}

// AnalysisStarted returns the func that marks the analysis as finished.
func (m *DetectionMetrics) AnalysisStarted() func() {
	m.activeAnalyses.Inc()
	return m.activeAnalyses.Dec
}

// ObserveOutcome records a finished analysis. status is the display status,
// or "error" when inference failed.
func (m *DetectionMetrics) ObserveOutcome(status string, persisted bool) {
	m.outcomes.WithLabelValues(status).Inc()
	if status != "error" && !persisted {
		m.persistFailures.Inc()
	}
}

func (m *DetectionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.outcomes.Describe(ch)
	ch <- m.persistFailures.Desc()
	ch <- m.activeAnalyses.Desc()
}

func (m *DetectionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.outcomes.Collect(ch)
	ch <- m.persistFailures
	ch <- m.activeAnalyses
}
