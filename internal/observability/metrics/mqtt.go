// Package metrics provides custom Prometheus metrics for the speciesid pipeline.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/frigate-speciesid/speciesid/internal/mqtt"
)

// MQTTMetrics contains all Prometheus metrics related to the event consumer.
// It implements mqtt.Recorder.
type MQTTMetrics struct {
	ConnectionState   *prometheus.GaugeVec
	Messages          *prometheus.CounterVec
	ReconnectAttempts prometheus.Counter
	LastConnectTime   prometheus.Gauge
	registry          *prometheus.Registry
}

// NewMQTTMetrics creates a new instance of MQTTMetrics.
// It requires a Prometheus registry to register the metrics.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

func (m *MQTTMetrics) initMetrics() {
	m.ConnectionState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "speciesid_mqtt_connection_state",
		Help: "Current consumer connection state, 1 for the active state",
	}, []string{"state"})

	m.Messages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "speciesid_mqtt_messages_total",
		Help: "Total number of event messages received, by outcome",
	}, []string{"result"})

	m.ReconnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "speciesid_mqtt_reconnect_attempts_total",
		Help: "Total number of MQTT reconnection attempts",
	})

	m.LastConnectTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "speciesid_mqtt_last_connect_time_seconds",
		Help: "Timestamp of the last successful subscription",
	})

	for _, s := range []mqtt.State{mqtt.StateDisconnected, mqtt.StateConnecting, mqtt.StateSubscribed} {
		m.ConnectionState.WithLabelValues(s.String()).Set(0)
	}
	m.ConnectionState.WithLabelValues(mqtt.StateDisconnected.String()).Set(1)
}

// RecordMessage counts a received message by outcome.
func (m *MQTTMetrics) RecordMessage(result string) {
	m.Messages.WithLabelValues(result).Inc()
}

// RecordConnectionState marks state as the active state.
func (m *MQTTMetrics) RecordConnectionState(state mqtt.State) {
	for _, s := range []mqtt.State{mqtt.StateDisconnected, mqtt.StateConnecting, mqtt.StateSubscribed} {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ConnectionState.WithLabelValues(s.String()).Set(v)
	}
	if state == mqtt.StateSubscribed {
		m.LastConnectTime.SetToCurrentTime()
	}
}

// RecordReconnectAttempt increments the count of MQTT reconnection attempts.
func (m *MQTTMetrics) RecordReconnectAttempt() {
	m.ReconnectAttempts.Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ConnectionState.Collect(ch)
	m.Messages.Collect(ch)
	ch <- m.ReconnectAttempts
	ch <- m.LastConnectTime
}

// Describe implements the prometheus.Collector interface.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ConnectionState.Describe(ch)
	m.Messages.Describe(ch)
	ch <- m.ReconnectAttempts.Desc()
	ch <- m.LastConnectTime.Desc()
}
