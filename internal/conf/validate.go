// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/frigate-speciesid/speciesid/internal/errors"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct and reports every problem at once
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateFrigateSettings(&settings.Frigate)...)
	ve.Errors = append(ve.Errors, validateClassificationSettings(&settings.Classification)...)
	ve.Errors = append(ve.Errors, validateDatabaseSettings(&settings.Database)...)
	ve.Errors = append(ve.Errors, validateWebUISettings(&settings.WebUI)...)
	ve.Errors = append(ve.Errors, validateMQTTSettings(&settings.MQTT)...)

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry.dsn is required when sentry is enabled")
	}
	if settings.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(settings.Metrics.Listen); err != nil {
			ve.Errors = append(ve.Errors, fmt.Sprintf("metrics.listen %q is not host:port", settings.Metrics.Listen))
		}
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("conf").
			Category(errors.CategoryValidation).
			Context("error_count", len(ve.Errors)).
			Build()
	}
	return nil
}

func validateFrigateSettings(s *FrigateSettings) []string {
	var errs []string

	u, err := url.Parse(s.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("frigate.frigate_url %q must be an absolute URL", s.URL))
	}
	s.URL = strings.TrimRight(s.URL, "/")

	if s.MQTTServer == "" {
		errs = append(errs, "frigate.mqtt_server is required")
	}
	if s.MQTTPort < 1 || s.MQTTPort > 65535 {
		errs = append(errs, "frigate.mqtt_port must be between 1 and 65535")
	}
	if s.MQTTAuth && s.MQTTUsername == "" {
		errs = append(errs, "frigate.mqtt_username is required when mqtt_auth is true")
	}
	if s.MainTopic == "" {
		errs = append(errs, "frigate.main_topic is required")
	}
	if strings.ContainsAny(s.MainTopic, "+#") {
		errs = append(errs, "frigate.main_topic must not contain MQTT wildcards")
	}
	if len(s.Cameras) == 0 {
		errs = append(errs, "frigate.camera must list at least one camera")
	}
	if s.Object == "" {
		s.Object = DefaultObject
	}
	if s.Timeout < 0 {
		errs = append(errs, "frigate.timeout must not be negative")
	}
	if s.RateLimit < 0 {
		errs = append(errs, "frigate.rate_limit must not be negative")
	}
	return errs
}

func validateClassificationSettings(s *ClassificationSettings) []string {
	var errs []string
	if s.Model == "" {
		errs = append(errs, "classification.model is required")
	}
	if s.Threshold < 0 || s.Threshold >= 1 {
		errs = append(errs, "classification.threshold must be in [0, 1)")
	}
	if s.SentinelIndex < 0 {
		errs = append(errs, "classification.sentinel_index must not be negative")
	}
	if s.Threads < 0 {
		errs = append(errs, "classification.threads must not be negative")
	}
	return errs
}

func validateDatabaseSettings(s *DatabaseSettings) []string {
	switch s.Type {
	case "", "sqlite":
		if s.Path == "" {
			return []string{"database.path is required for sqlite"}
		}
	case "mysql":
		var errs []string
		if s.MySQL.Host == "" || s.MySQL.Database == "" {
			errs = append(errs, "database.mysql.host and database.mysql.database are required for mysql")
		}
		if s.MySQL.Port < 1 || s.MySQL.Port > 65535 {
			errs = append(errs, "database.mysql.port must be between 1 and 65535")
		}
		return errs
	default:
		return []string{fmt.Sprintf("database.type %q must be sqlite or mysql", s.Type)}
	}
	return nil
}

func validateWebUISettings(s *WebUISettings) []string {
	if !s.Enabled {
		return nil
	}
	if s.Port < 1 || s.Port > 65535 {
		return []string{"webui.port must be between 1 and 65535"}
	}
	return nil
}

func validateMQTTSettings(s *MQTTSettings) []string {
	var errs []string
	if s.ReconnectDelay <= 0 {
		errs = append(errs, "mqtt.reconnect_delay must be positive")
	}
	if s.QueueSize < 1 {
		errs = append(errs, "mqtt.queue_size must be at least 1")
	}
	return errs
}

// Addr returns the web UI listen address
func (s *WebUISettings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
