package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// InferenceMetrics tracks calls made to the model-serving API.
type InferenceMetrics struct {
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	cacheHits    *prometheus.CounterVec
}

func NewInferenceMetrics(registry *prometheus.Registry) (*InferenceMetrics, error) {
	m := &InferenceMetrics{
		callsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "malariadx_inference_calls_total",
				Help: "Inference API calls partitioned by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "malariadx_inference_call_duration_seconds",
				Help:    "Latency of inference API calls",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"operation"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "malariadx_inference_cache_hits_total",
				Help: "Read-back calls answered from the local cache",
			},
			[]string{"operation"},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register inference metrics: %w", err)
	}
	return m, nil
}

// ObserveCall records one call. outcome is "success" or the error kind.
func (m *InferenceMetrics) ObserveCall(operation, outcome string, d time.Duration) {
	m.callsTotal.WithLabelValues(operation, outcome).Inc()
	m.callDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *InferenceMetrics) ObserveCacheHit(operation string) {
	m.cacheHits.WithLabelValues(operation).Inc()
}

func (m *InferenceMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.callsTotal.Describe(ch)
	m.callDuration.Describe(ch)
	m.cacheHits.Describe(ch)
}

func (m *InferenceMetrics) Collect(ch chan<- prometheus.Metric) {
	m.callsTotal.Collect(ch)
	m.callDuration.Collect(ch)
	m.cacheHits.Collect(ch)
}
