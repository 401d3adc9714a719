// Package metrics provides Prometheus instrumentation for configuration loading.
//
// # Basic Usage
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewLoaderMetrics(reg)
//
//	cfg, err := config.Load(data, config.WithMetrics(m))
//
// # Metric Types
//
// Counter: loads by result, rejected fields by error type
// Histogram: load duration
//
// A nil *LoaderMetrics is valid and records nothing, so callers never need to
// guard their calls.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ajitpratap0/prototrain/pkg/configerrors"
)

const namespace = "prototrain"

// Load results.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// LoaderMetrics tracks configuration load outcomes.
type LoaderMetrics struct {
	loads    *prometheus.CounterVec   // Loads by result
	errors   *prometheus.CounterVec   // Reported problems by error type
	duration *prometheus.HistogramVec // Load duration by result
}

// NewLoaderMetrics creates the loader metrics and registers them with reg.
// A nil reg uses the default Prometheus registerer.
func NewLoaderMetrics(reg prometheus.Registerer) *LoaderMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &LoaderMetrics{
		loads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "config",
				Name:      "loads_total",
				Help:      "Configuration loads by result",
			},
			[]string{"result"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "config",
				Name:      "errors_total",
				Help:      "Configuration problems reported, by error type",
			},
			[]string{"type"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "config",
				Name:      "load_duration_seconds",
				Help:      "Time spent parsing and validating a configuration",
				Buckets: []float64{
					0.0001, // 100μs - small documents
					0.001,  // 1ms - typical parameter file
					0.01,   // 10ms
					0.1,    // 100ms - slow file systems
					1,
				},
			},
			[]string{"result"},
		),
	}
}

// Observe records the outcome of one load.
func (m *LoaderMetrics) Observe(err error, d time.Duration) {
	if m == nil {
		return
	}
	result := Result(err)
	m.loads.WithLabelValues(result).Inc()
	m.duration.WithLabelValues(result).Observe(d.Seconds())

	var list *configerrors.List
	var single *configerrors.Error
	switch {
	case errors.As(err, &list):
		for _, e := range list.Errors() {
			m.errors.WithLabelValues(string(e.Type)).Inc()
		}
	case errors.As(err, &single):
		m.errors.WithLabelValues(string(single.Type)).Inc()
	}
}

// Result classifies a load error: nil is a success, a configuration problem is
// a rejection, anything else (unreadable file, cancelled context) a failure.
func Result(err error) string {
	if err == nil {
		return ResultSuccess
	}
	var list *configerrors.List
	if errors.As(err, &list) || configerrors.IsType(err, configerrors.ErrorTypeParse) {
		return ResultRejected
	}
	return ResultFailed
}
