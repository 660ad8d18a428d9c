package conf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frigate-speciesid/speciesid/internal/errors"
)

const minimalConfig = `
frigate:
  frigate_url: http://frigate.local:5000/
  mqtt_server: broker.local
  main_topic: frigate
  camera:
    - feeder
    - garden
classification:
  model: /models/bird.tflite
  threshold: 0.7
database:
  path: /tmp/speciesid.db
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Setenv(legacyConfigPathEnv, "")

	settings, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "http://frigate.local:5000", settings.Frigate.URL, "trailing slash trimmed")
	assert.Equal(t, 1883, settings.Frigate.MQTTPort)
	assert.Equal(t, "bird", settings.Frigate.Object)
	assert.Equal(t, []string{"feeder", "garden"}, settings.Frigate.Cameras)
	assert.Equal(t, "frigate/events", settings.Frigate.EventsTopic())
	assert.Equal(t, "tcp://broker.local:1883", settings.Frigate.BrokerURL())
	assert.Equal(t, DefaultSentinelIndex, settings.Classification.SentinelIndex)
	assert.Equal(t, 60*time.Second, settings.MQTT.ReconnectDelay)
	assert.Equal(t, 15*time.Second, settings.Frigate.Timeout)
	assert.Equal(t, "sqlite", settings.Database.Type)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
	assert.Same(t, settings, GetSettings())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SPECIESID_THRESHOLD", "0.85")
	t.Setenv("SPECIESID_MQTT_PASSWORD", "s3cret")

	settings, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.InDelta(t, 0.85, settings.Classification.Threshold, 1e-9)
	assert.Equal(t, "s3cret", settings.Frigate.MQTTPassword)
}

func TestLoad_DotEnvNextToConfig(t *testing.T) {
	// registers restoration, then unset so the .env file may supply it
	t.Setenv("SPECIESID_THRESHOLD", "")
	t.Setenv("SPECIESID_MQTT_PASSWORD", "from-environment")
	require.NoError(t, os.Unsetenv("SPECIESID_THRESHOLD"))

	path := writeConfig(t, minimalConfig)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), ".env"),
		[]byte("SPECIESID_THRESHOLD=0.9\nSPECIESID_MQTT_PASSWORD=from-dotenv\n"), 0o600))

	settings, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, settings.Classification.Threshold, 1e-9)
	assert.Equal(t, "from-environment", settings.Frigate.MQTTPassword, "environment wins over .env")
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	t.Setenv("SPECIESID_THRESHOLD", "1.5")

	_, err := Load(writeConfig(t, minimalConfig))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestLoad_LegacyConfigPathEnv(t *testing.T) {
	t.Setenv(legacyConfigPathEnv, writeConfig(t, minimalConfig))

	settings, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "broker.local", settings.Frigate.MQTTServer)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestRead_SkipsValidation(t *testing.T) {
	t.Setenv(legacyConfigPathEnv, "")
	path := writeConfig(t, strings.Replace(minimalConfig, "    - feeder\n    - garden\n", "", 1))

	_, err := Load(path)
	require.Error(t, err)

	settings, err := Read(path)
	require.NoError(t, err)
	assert.Empty(t, settings.Frigate.Cameras)
	assert.Equal(t, path, settings.ConfigFile)
}

func TestValidateSettings_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	settings := &Settings{
		Frigate: FrigateSettings{
			URL:       "not a url",
			MQTTPort:  0,
			MQTTAuth:  true,
			MainTopic: "frigate/#",
		},
		Classification: ClassificationSettings{Threshold: 1.2},
		Database:       DatabaseSettings{Type: "postgres"},
		MQTT:           MQTTSettings{ReconnectDelay: 0, QueueSize: 0},
		Sentry:         SentrySettings{Enabled: true},
	}

	err := ValidateSettings(settings)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Errors, "frigate.mqtt_server is required")
	assert.Contains(t, ve.Errors, "frigate.camera must list at least one camera")
	assert.Contains(t, ve.Errors, "frigate.mqtt_username is required when mqtt_auth is true")
	assert.Contains(t, ve.Errors, "frigate.main_topic must not contain MQTT wildcards")
	assert.Contains(t, ve.Errors, "classification.threshold must be in [0, 1)")
	assert.Contains(t, ve.Errors, "mqtt.reconnect_delay must be positive")
	assert.Contains(t, ve.Errors, "sentry.dsn is required when sentry is enabled")
	assert.GreaterOrEqual(t, len(ve.Errors), 10)
}

func TestSaveYAMLConfig_RoundTrip(t *testing.T) {
	t.Setenv(legacyConfigPathEnv, "")

	original, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, SaveYAMLConfig(out, original))

	reloaded, err := Load(out)
	require.NoError(t, err)
	assert.Equal(t, original.Frigate.Cameras, reloaded.Frigate.Cameras)
	assert.Equal(t, original.MQTT.ReconnectDelay, reloaded.MQTT.ReconnectDelay)
	assert.InDelta(t, original.Classification.Threshold, reloaded.Classification.Threshold, 1e-9)
}

func TestRedacted(t *testing.T) {
	t.Parallel()

	s := &Settings{
		Frigate: FrigateSettings{MQTTPassword: "pw", Cameras: []string{"a"}},
		Sentry:  SentrySettings{DSN: "https://key@sentry.io/1"},
	}
	r := s.Redacted()
	assert.Equal(t, redacted, r.Frigate.MQTTPassword)
	assert.Equal(t, redacted, r.Sentry.DSN)
	assert.Equal(t, "pw", s.Frigate.MQTTPassword, "original untouched")

	r.Frigate.Cameras[0] = "b"
	assert.Equal(t, "a", s.Frigate.Cameras[0])
}

func TestEmbeddedDefaultConfigIsValid(t *testing.T) {
	t.Setenv(legacyConfigPathEnv, "")

	data, err := getDefaultConfig()
	require.NoError(t, err)

	settings, err := Load(writeConfig(t, string(data)))
	require.NoError(t, err)
	assert.Equal(t, []string{"birdcam"}, settings.Frigate.Cameras)
}
