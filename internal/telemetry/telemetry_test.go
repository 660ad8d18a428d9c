package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frigate-speciesid/speciesid/internal/buildinfo"
	"github.com/frigate-speciesid/speciesid/internal/conf"
	"github.com/frigate-speciesid/speciesid/internal/privacy"
)

func TestInitSentry_Disabled(t *testing.T) {
	settings := &conf.Settings{}

	flush, err := InitSentry(settings, buildinfo.NewContext("1.0.0", "", ""))
	require.NoError(t, err)
	require.NotNil(t, flush)
	flush()
}

func TestInitSentry_InvalidDSN(t *testing.T) {
	settings := &conf.Settings{}
	settings.Sentry.Enabled = true
	settings.Sentry.DSN = "::not a dsn"

	_, err := InitSentry(settings, buildinfo.NewContext("1.0.0", "", ""))
	require.Error(t, err)
}

func TestApplyPrivacyFilters(t *testing.T) {
	t.Parallel()

	event := &sentry.Event{
		Message:    "snapshot http://frigate.lan:5000/api/events/e1/snapshot.jpg returned 500",
		ServerName: "birdbox",
		User:       sentry.User{ID: "42", IPAddress: "192.168.1.5"},
		Request:    &sentry.Request{URL: "http://frigate.lan"},
		Contexts:   map[string]sentry.Context{"os": {"name": "linux"}, "custom": {"k": "v"}},
		Extra:      map[string]any{"component": "frigate", "camera": "feeder"},
		Tags:       map[string]string{"hostname": "birdbox", "category": "image-fetch"},
		Exception:  []sentry.Exception{{Value: "dial tcp://user:pw@10.0.0.2:1883"}},
	}

	got := applyPrivacyFilters(event)

	assert.Empty(t, got.ServerName)
	assert.True(t, got.User.IsEmpty())
	assert.Nil(t, got.Request)
	assert.NotContains(t, got.Message, "frigate.lan")
	assert.NotContains(t, got.Exception[0].Value, "pw@")
	assert.NotContains(t, got.Contexts, "os")
	assert.Contains(t, got.Contexts, "custom")
	assert.Equal(t, map[string]any{"component": "frigate"}, got.Extra)
	assert.Equal(t, map[string]string{"category": "image-fetch"}, got.Tags)
}

func TestLoadOrCreateSystemID(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "conf")

	id, err := LoadOrCreateSystemID(dir)
	require.NoError(t, err)
	assert.True(t, privacy.IsValidSystemID(id))

	again, err := LoadOrCreateSystemID(dir)
	require.NoError(t, err)
	assert.Equal(t, id, again, "id persists across starts")

	require.NoError(t, os.WriteFile(filepath.Join(dir, systemIDFile), []byte("garbage"), 0o644))
	replaced, err := LoadOrCreateSystemID(dir)
	require.NoError(t, err)
	assert.NotEqual(t, "garbage", replaced)
	assert.True(t, privacy.IsValidSystemID(replaced))
}
