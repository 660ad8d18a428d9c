// env.go - environment variable bindings and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/frigate-speciesid/speciesid/internal/errors"
)

// legacyConfigPathEnv points at the config file, as the original container image expects.
const legacyConfigPathEnv = "CONFIG_PATH"

// dotEnvFile holds SPECIESID_ overrides for container deployments.
const dotEnvFile = ".env"

// loadDotEnv reads a .env file from the working directory and one next to
// an explicit config path. Variables already in the environment win, and
// the working directory file wins over the config directory file.
func loadDotEnv(configPath string) error {
	if configPath == "" {
		configPath = os.Getenv(legacyConfigPathEnv)
	}
	files := []string{dotEnvFile}
	if configPath != "" {
		if f := filepath.Join(filepath.Dir(configPath), dotEnvFile); f != dotEnvFile {
			files = append(files, f)
		}
	}

	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errors.New(fmt.Errorf("error reading %s: %w", f, err)).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("path", f).
				Build()
		}
	}
	return nil
}

// envBinding holds metadata for an environment variable binding
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"frigate.frigate_url", "SPECIESID_FRIGATE_URL", validateEnvURL},
		{"frigate.mqtt_server", "SPECIESID_MQTT_SERVER", nil},
		{"frigate.mqtt_port", "SPECIESID_MQTT_PORT", validateEnvPort},
		{"frigate.mqtt_auth", "SPECIESID_MQTT_AUTH", validateEnvBool},
		{"frigate.mqtt_username", "SPECIESID_MQTT_USERNAME", nil},
		{"frigate.mqtt_password", "SPECIESID_MQTT_PASSWORD", nil},
		{"frigate.main_topic", "SPECIESID_MAIN_TOPIC", nil},

		{"classification.model", "SPECIESID_MODEL", nil},
		{"classification.labels", "SPECIESID_LABELS", nil},
		{"classification.threshold", "SPECIESID_THRESHOLD", validateEnvThreshold},

		{"database.path", "SPECIESID_DATABASE_PATH", nil},
		{"database.mysql.password", "SPECIESID_MYSQL_PASSWORD", nil},

		{"sentry.dsn", "SPECIESID_SENTRY_DSN", nil},
	}
}

// bindEnvVars binds environment variables and validates the ones that are set
func bindEnvVars(v *viper.Viper) error {
	var problems []string
	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			problems = append(problems, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}
		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				problems = append(problems, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, value, err))
			}
		}
	}

	if len(problems) > 0 {
		return errors.Newf("environment variable issues:\n  - %s", strings.Join(problems, "\n  - ")).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("must be a port number between 1 and 65535")
	}
	return nil
}

func validateEnvThreshold(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 || f > 1 {
		return fmt.Errorf("must be a number between 0 and 1")
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	return nil
}
