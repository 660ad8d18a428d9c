// Package metrics provides HTTP client metrics for outbound Frigate calls
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HookedClient is an HTTP client exposing request and response hooks.
type HookedClient interface {
	SetBeforeRequestHook(fn func(*http.Request))
	SetAfterResponseHook(fn func(*http.Request, *http.Response, error))
}

// HTTPMetrics contains Prometheus metrics for requests sent to Frigate.
type HTTPMetrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestErrors   *prometheus.CounterVec

	inflight sync.Map // *http.Request -> time.Time
}

// NewHTTPMetrics creates and registers new HTTP client metrics
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register HTTP metrics: %w", err)
	}
	return m, nil
}

func (m *HTTPMetrics) initMetrics() {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speciesid_frigate_requests_total",
			Help: "Total number of requests sent to Frigate",
		},
		[]string{"operation", "status_code"}, // operation: snapshot, sub_label
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "speciesid_frigate_request_duration_seconds",
			Help:    "Time taken for requests sent to Frigate",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
		},
		[]string{"operation"},
	)

	m.requestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speciesid_frigate_request_errors_total",
			Help: "Total number of Frigate requests that failed without a response",
		},
		[]string{"operation"},
	)
}

// Instrument installs the metric hooks on client.
func (m *HTTPMetrics) Instrument(client HookedClient) {
	client.SetBeforeRequestHook(m.BeforeRequest)
	client.SetAfterResponseHook(m.AfterResponse)
}

// BeforeRequest notes the start time of req.
func (m *HTTPMetrics) BeforeRequest(req *http.Request) {
	m.inflight.Store(req, time.Now())
}

// AfterResponse records the outcome of req.
func (m *HTTPMetrics) AfterResponse(req *http.Request, resp *http.Response, err error) {
	op := operation(req)
	if start, ok := m.inflight.LoadAndDelete(req); ok {
		m.requestDuration.WithLabelValues(op).Observe(time.Since(start.(time.Time)).Seconds())
	}
	if err != nil || resp == nil {
		m.requestErrors.WithLabelValues(op).Inc()
		return
	}
	m.requestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()
}

// operation maps a Frigate API path to a bounded label value.
func operation(req *http.Request) string {
	if req == nil || req.URL == nil {
		return LabelOther
	}
	switch {
	case strings.HasSuffix(req.URL.Path, "/snapshot.jpg"):
		return LabelSnapshot
	case strings.HasSuffix(req.URL.Path, "/sub_label"):
		return LabelSubLabel
	default:
		return LabelOther
	}
}

// Collect implements the prometheus.Collector interface.
func (m *HTTPMetrics) Collect(ch chan<- prometheus.Metric) {
	m.requestsTotal.Collect(ch)
	m.requestDuration.Collect(ch)
	m.requestErrors.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *HTTPMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.requestsTotal.Describe(ch)
	m.requestDuration.Describe(ch)
	m.requestErrors.Describe(ch)
}
