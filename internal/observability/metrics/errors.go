package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/frigate-speciesid/speciesid/internal/errors"
)

// ErrorMetrics counts built enhanced errors by component and category.
type ErrorMetrics struct {
	Errors   *prometheus.CounterVec
	registry *prometheus.Registry
}

// NewErrorMetrics creates and registers error metrics.
func NewErrorMetrics(registry *prometheus.Registry) (*ErrorMetrics, error) {
	m := &ErrorMetrics{
		registry: registry,
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speciesid_errors_total",
			Help: "Total number of errors, by component and category",
		}, []string{"component", "category"}),
	}
	if err := registry.Register(m.Errors); err != nil {
		return nil, fmt.Errorf("failed to register error metrics: %w", err)
	}
	return m, nil
}

// Hook returns an errors.ErrorHook that feeds the counter.
func (m *ErrorMetrics) Hook() errors.ErrorHook {
	return func(ee *errors.EnhancedError) {
		m.Errors.WithLabelValues(ee.Component, string(ee.Category)).Inc()
	}
}
