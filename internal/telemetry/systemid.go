package telemetry

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/logger"
	"github.com/frigate-speciesid/speciesid/internal/privacy"
)

const systemIDFile = ".system_id"

// LoadOrCreateSystemID returns the anonymous ID stored in configDir. A
// missing or malformed file is replaced with a fresh ID.
func LoadOrCreateSystemID(configDir string) (string, error) {
	idFile := filepath.Join(configDir, systemIDFile)
	if data, err := os.ReadFile(idFile); err == nil {
		if id := strings.TrimSpace(string(data)); privacy.IsValidSystemID(id) {
			return id, nil
		}
	}

	id, err := privacy.GenerateSystemID()
	if err != nil {
		return "", err
	}
	if err := writeSystemID(configDir, idFile, id); err != nil {
		return "", err
	}
	GetLogger().Info("created system id", logger.String("file", idFile))
	return id, nil
}

// writeSystemID replaces idFile through a rename so a crash never leaves a
// truncated ID behind.
func writeSystemID(configDir, idFile, id string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return systemIDError(err, "create config directory", configDir)
	}
	tmp, err := os.CreateTemp(configDir, systemIDFile+".*")
	if err != nil {
		return systemIDError(err, "create temp file", configDir)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(id + "\n"); err != nil {
		_ = tmp.Close()
		return systemIDError(err, "write", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return systemIDError(err, "close", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), idFile); err != nil {
		return systemIDError(err, "rename", idFile)
	}
	return nil
}

func systemIDError(err error, op, path string) error {
	return errors.New(err).
		Component("telemetry").
		Category(errors.CategoryFileIO).
		Context("operation", op).
		Context("path", path).
		Build()
}
