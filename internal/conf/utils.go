package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/frigate-speciesid/speciesid/internal/errors"
)

const redacted = "[REDACTED]"

// GetDefaultConfigPaths returns the config search paths. If a config.yaml
// exists in one of them, only that path is returned.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("operation", "get-home-directory").
			Build()
	}

	configPaths := []string{
		".",
		filepath.Join(homeDir, ".config", "speciesid"),
		"/etc/speciesid",
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}
	return configPaths, nil
}

// Redacted returns a copy of the settings with secrets masked, for display.
func (s *Settings) Redacted() *Settings {
	c := *s
	c.Frigate.Cameras = append([]string(nil), s.Frigate.Cameras...)
	if c.Frigate.MQTTPassword != "" {
		c.Frigate.MQTTPassword = redacted
	}
	if c.Database.MySQL.Password != "" {
		c.Database.MySQL.Password = redacted
	}
	if c.Sentry.DSN != "" {
		c.Sentry.DSN = redacted
	}
	return &c
}

// MarshalYAML renders settings as YAML.
func MarshalYAML(settings *Settings) ([]byte, error) {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return nil, errors.New(fmt.Errorf("error marshaling settings to YAML: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return data, nil
}

// SaveYAMLConfig writes settings to configPath atomically via a temp file.
// Comments and ordering of an existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	data, err := MarshalYAML(settings)
	if err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return errors.New(fmt.Errorf("error creating temporary file: %w", err)).
			Component("conf").
			Category(errors.CategoryFileIO).
			Build()
	}
	tempName := tempFile.Name()
	defer os.Remove(tempName)

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return errors.New(fmt.Errorf("error writing temporary file: %w", err)).
			Component("conf").
			Category(errors.CategoryFileIO).
			Build()
	}
	if err := tempFile.Close(); err != nil {
		return errors.New(err).Component("conf").Category(errors.CategoryFileIO).Build()
	}
	if err := os.Rename(tempName, configPath); err != nil {
		return errors.New(fmt.Errorf("error replacing config file: %w", err)).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("path", configPath).
			Build()
	}
	return nil
}
