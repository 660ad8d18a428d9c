// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Defaults for values the original deployment hard-coded.
const (
	DefaultSentinelIndex  = 964
	DefaultObject         = "bird"
	DefaultReconnectDelay = 60 * time.Second
	DefaultInputSize      = 224
	SubLabelMaxLength     = 20
)

// setDefaultConfig sets default values for every configuration key.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("frigate.frigate_url", "http://127.0.0.1:5000")
	v.SetDefault("frigate.mqtt_server", "127.0.0.1")
	v.SetDefault("frigate.mqtt_port", 1883)
	v.SetDefault("frigate.mqtt_auth", false)
	v.SetDefault("frigate.mqtt_username", "")
	v.SetDefault("frigate.mqtt_password", "")
	v.SetDefault("frigate.main_topic", "frigate")
	v.SetDefault("frigate.camera", []string{})
	v.SetDefault("frigate.object", DefaultObject)
	v.SetDefault("frigate.timeout", 15*time.Second)
	v.SetDefault("frigate.rate_limit", 5.0)

	v.SetDefault("classification.model", "model.tflite")
	v.SetDefault("classification.labels", "labels.txt")
	v.SetDefault("classification.threshold", 0.7)
	v.SetDefault("classification.sentinel_index", DefaultSentinelIndex)
	v.SetDefault("classification.name_database", "birdnames.db")
	v.SetDefault("classification.threads", 0)
	v.SetDefault("classification.timeout", 10*time.Second)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "./data/speciesid.db")
	v.SetDefault("database.mysql.host", "localhost")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.database", "speciesid")

	v.SetDefault("webui.enabled", false)
	v.SetDefault("webui.host", "0.0.0.0")
	v.SetDefault("webui.port", 7766)

	v.SetDefault("mqtt.client_id", "speciesid")
	v.SetDefault("mqtt.reconnect_delay", DefaultReconnectDelay)
	v.SetDefault("mqtt.connect_timeout", 30*time.Second)
	v.SetDefault("mqtt.queue_size", 64)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/speciesid.log")
	v.SetDefault("logging.file_output.level", "info")
	v.SetDefault("logging.file_output.max_size", 100)
	v.SetDefault("logging.file_output.max_age", 30)
	v.SetDefault("logging.file_output.max_rotated_files", 10)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "0.0.0.0:9090")
}
