// Package metrics holds the Prometheus collectors for the HTTP API, the
// inference client and the detection workflow.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry  *prometheus.Registry
	HTTP      *HTTPMetrics
	Inference *InferenceMetrics
	Detection *DetectionMetrics
}

// New builds a private registry with process and Go runtime collectors plus
// the application collectors.
func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}

	m := &Metrics{Registry: reg}
	var err error
	if m.HTTP, err = NewHTTPMetrics(reg); err != nil {
		return nil, err
	}
	if m.Inference, err = NewInferenceMetrics(reg); err != nil {
		return nil, err
	}
	if m.Detection, err = NewDetectionMetrics(reg); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
