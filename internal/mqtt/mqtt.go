// mqtt.go: Package mqtt consumes Frigate event messages from an MQTT broker.
package mqtt

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/frigate-speciesid/speciesid/internal/conf"
	"github.com/frigate-speciesid/speciesid/internal/logger"
)

// Config holds the configuration for the broker connection and consumer.
type Config struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	Topic             string        // events topic to subscribe to
	ReconnectDelay    time.Duration // fixed delay between connection attempts
	ConnectTimeout    time.Duration
	SubscribeTimeout  time.Duration
	DisconnectTimeout time.Duration
	QueueSize         int // messages buffered for the worker
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ClientID:          "speciesid",
		Topic:             "frigate/events",
		ReconnectDelay:    conf.DefaultReconnectDelay,
		ConnectTimeout:    30 * time.Second,
		SubscribeTimeout:  10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
		QueueSize:         64,
	}
}

// ConfigFromSettings builds the consumer configuration. Credentials are
// only used when mqtt_auth is set. A random suffix keeps client ids unique
// when several instances share a broker.
func ConfigFromSettings(settings *conf.Settings) Config {
	cfg := DefaultConfig()
	cfg.Broker = settings.Frigate.BrokerURL()
	cfg.Topic = settings.Frigate.EventsTopic()
	if settings.MQTT.ClientID != "" {
		cfg.ClientID = settings.MQTT.ClientID
	}
	cfg.ClientID += "-" + uuid.NewString()[:8]
	if settings.Frigate.MQTTAuth {
		cfg.Username = settings.Frigate.MQTTUsername
		cfg.Password = settings.Frigate.MQTTPassword
	}
	if settings.MQTT.ReconnectDelay > 0 {
		cfg.ReconnectDelay = settings.MQTT.ReconnectDelay
	}
	if settings.MQTT.ConnectTimeout > 0 {
		cfg.ConnectTimeout = settings.MQTT.ConnectTimeout
	}
	if settings.MQTT.QueueSize > 0 {
		cfg.QueueSize = settings.MQTT.QueueSize
	}
	return cfg
}

var (
	serviceLogger logger.Logger
	loggerOnce    sync.Once
)

// GetLogger returns the mqtt module logger
func GetLogger() logger.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logger.Global().Module("mqtt")
	})
	return serviceLogger
}
