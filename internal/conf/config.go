// config.go: settings struct and loading for the species identification service.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// FrigateSettings describes the Frigate instance and its MQTT broker.
// Key names follow the original config.yml layout.
type FrigateSettings struct {
	URL          string        `mapstructure:"frigate_url" yaml:"frigate_url"`     // base URL of the Frigate HTTP API
	MQTTServer   string        `mapstructure:"mqtt_server" yaml:"mqtt_server"`     // broker host
	MQTTPort     int           `mapstructure:"mqtt_port" yaml:"mqtt_port"`         // broker port
	MQTTAuth     bool          `mapstructure:"mqtt_auth" yaml:"mqtt_auth"`         // true to send credentials
	MQTTUsername string        `mapstructure:"mqtt_username" yaml:"mqtt_username"` // broker username
	MQTTPassword string        `mapstructure:"mqtt_password" yaml:"mqtt_password"` // broker password
	MainTopic    string        `mapstructure:"main_topic" yaml:"main_topic"`       // Frigate topic prefix, events arrive on {main_topic}/events
	Cameras      []string      `mapstructure:"camera" yaml:"camera"`               // camera allow-list
	Object       string        `mapstructure:"object" yaml:"object"`               // tracked object label
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`             // per-request HTTP timeout
	RateLimit    float64       `mapstructure:"rate_limit" yaml:"rate_limit"`       // max requests per second to Frigate, 0 = unlimited
}

// ClassificationSettings configures the image classifier and acceptance rule.
type ClassificationSettings struct {
	Model         string        `mapstructure:"model" yaml:"model"`                   // tflite model path
	Labels        string        `mapstructure:"labels" yaml:"labels"`                 // label file path
	Threshold     float64       `mapstructure:"threshold" yaml:"threshold"`           // results must score strictly above this
	SentinelIndex int           `mapstructure:"sentinel_index" yaml:"sentinel_index"` // background class, never stored
	NameDatabase  string        `mapstructure:"name_database" yaml:"name_database"`   // sqlite file holding the birdnames table
	Threads       int           `mapstructure:"threads" yaml:"threads"`               // interpreter threads, 0 = auto
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`               // per-image classification timeout
}

// MySQLSettings is used when database.type is "mysql".
type MySQLSettings struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
}

// DatabaseSettings selects and configures the detection store backend.
type DatabaseSettings struct {
	Type  string        `mapstructure:"type" yaml:"type"` // sqlite or mysql
	Path  string        `mapstructure:"path" yaml:"path"` // sqlite database file
	MySQL MySQLSettings `mapstructure:"mysql" yaml:"mysql"`
}

// WebUISettings configures the read-only reporting API.
type WebUISettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

// MQTTSettings tunes the consumer connection lifecycle.
type MQTTSettings struct {
	ClientID       string        `mapstructure:"client_id" yaml:"client_id"`             // prefix, a random suffix is appended
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"` // fixed delay between reconnect attempts
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	QueueSize      int           `mapstructure:"queue_size" yaml:"queue_size"` // buffered messages awaiting the worker
}

// SentrySettings enables optional error telemetry.
type SentrySettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// MetricsSettings exposes Prometheus metrics.
type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"` // host:port for the /metrics endpoint
}

// Settings is the root configuration.
type Settings struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`

	Frigate        FrigateSettings        `mapstructure:"frigate" yaml:"frigate"`
	Classification ClassificationSettings `mapstructure:"classification" yaml:"classification"`
	Database       DatabaseSettings       `mapstructure:"database" yaml:"database"`
	WebUI          WebUISettings          `mapstructure:"webui" yaml:"webui"`
	MQTT           MQTTSettings           `mapstructure:"mqtt" yaml:"mqtt"`
	Logging        logger.LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Sentry         SentrySettings         `mapstructure:"sentry" yaml:"sentry"`
	Metrics        MetricsSettings        `mapstructure:"metrics" yaml:"metrics"`

	// ConfigFile is the file the settings were read from, runtime only
	ConfigFile string `mapstructure:"-" yaml:"-"`
}

// BrokerURL returns the paho broker URL built from server and port.
func (s *FrigateSettings) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", s.MQTTServer, s.MQTTPort)
}

// EventsTopic returns the topic Frigate publishes event changes on.
func (s *FrigateSettings) EventsTopic() string {
	return s.MainTopic + "/events"
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads configuration from configPath, or from the default search
// paths when configPath is empty, and validates it. A default config file
// is written to the first search path if none exists.
func Load(configPath string) (*Settings, error) {
	settings, err := Read(configPath)
	if err != nil {
		return nil, err
	}
	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// Read loads configuration like Load but skips validation, for tooling
// that reports on a config that may not be valid yet.
func Read(configPath string) (*Settings, error) {
	v := viper.New()
	setDefaultConfig(v)

	if err := loadDotEnv(configPath); err != nil {
		return nil, err
	}
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	if err := readConfig(v, configPath); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	settings.ConfigFile = v.ConfigFileUsed()

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()
	return settings, nil
}

// GetSettings returns the most recently loaded settings, or nil
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

func readConfig(v *viper.Viper, configPath string) error {
	if configPath == "" {
		configPath = os.Getenv(legacyConfigPathEnv)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return errors.New(fmt.Errorf("error reading config file %s: %w", configPath, err)).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("path", configPath).
				Build()
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(v, configPaths[0])
		}
		return errors.New(fmt.Errorf("fatal error reading config file: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// createDefaultConfig writes the embedded default config to dir and reads it back
func createDefaultConfig(v *viper.Viper, dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(fmt.Errorf("error creating directories for config file: %w", err)).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("path", dir).
			Build()
	}
	data, err := getDefaultConfig()
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.New(fmt.Errorf("error writing default config file: %w", err)).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("path", configPath).
			Build()
	}

	logger.Global().Module("conf").Info("created default config file", logger.String("path", configPath))
	v.SetConfigFile(configPath)
	return v.ReadInConfig()
}

// getDefaultConfig returns the embedded default config.yaml
func getDefaultConfig() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Build()
	}
	return data, nil
}
