package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/frigate-speciesid/speciesid/internal/reconcile"
)

// PipelineMetrics tracks each stage of event processing. It implements
// processor.Recorder and reconcile.Recorder.
type PipelineMetrics struct {
	SnapshotFetches        *prometheus.CounterVec
	ClassificationDuration *prometheus.HistogramVec
	ReconcileOutcomes      *prometheus.CounterVec
	SubLabelCallbacks      *prometheus.CounterVec
	LastDetectionTime      prometheus.Gauge
	registry               *prometheus.Registry
}

// NewPipelineMetrics creates and registers pipeline metrics.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.SnapshotFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "speciesid_snapshot_fetches_total",
		Help: "Total number of snapshot fetches, by result",
	}, []string{"result"})

	m.ClassificationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "speciesid_classification_duration_seconds",
		Help:    "Time taken to classify one snapshot",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
	}, []string{"status"})

	m.ReconcileOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "speciesid_reconcile_outcomes_total",
		Help: "Total number of reconciled classifications, by outcome",
	}, []string{"outcome"})

	m.SubLabelCallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "speciesid_sub_label_callbacks_total",
		Help: "Total number of sub_label callbacks sent to Frigate, by status",
	}, []string{"status"})

	m.LastDetectionTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "speciesid_last_detection_time_seconds",
		Help: "Timestamp of the last inserted or updated detection",
	})
}

// RecordSnapshot counts a snapshot fetch result.
func (m *PipelineMetrics) RecordSnapshot(result string) {
	m.SnapshotFetches.WithLabelValues(result).Inc()
}

// ObserveClassification records the duration of one classifier call.
func (m *PipelineMetrics) ObserveClassification(d time.Duration, err error) {
	m.ClassificationDuration.WithLabelValues(status(err == nil)).Observe(d.Seconds())
}

// RecordReconcile counts a reconcile outcome.
func (m *PipelineMetrics) RecordReconcile(outcome string) {
	m.ReconcileOutcomes.WithLabelValues(outcome).Inc()
	if outcome == string(reconcile.OutcomeInserted) || outcome == string(reconcile.OutcomeUpdated) {
		m.LastDetectionTime.SetToCurrentTime()
	}
}

// RecordSubLabel counts a sub_label callback.
func (m *PipelineMetrics) RecordSubLabel(success bool) {
	m.SubLabelCallbacks.WithLabelValues(status(success)).Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.SnapshotFetches.Collect(ch)
	m.ClassificationDuration.Collect(ch)
	m.ReconcileOutcomes.Collect(ch)
	m.SubLabelCallbacks.Collect(ch)
	ch <- m.LastDetectionTime
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.SnapshotFetches.Describe(ch)
	m.ClassificationDuration.Describe(ch)
	m.ReconcileOutcomes.Describe(ch)
	m.SubLabelCallbacks.Describe(ch)
	ch <- m.LastDetectionTime.Desc()
}

func status(ok bool) string {
	if ok {
		return LabelSuccess
	}
	return LabelError
}
