package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Empty(t, cfg.UserID)
	assert.Equal(t, BackendSQLite, cfg.Backend.Kind)
	assert.Equal(t, 5, cfg.Backend.PollIntervalSec)
	assert.Equal(t, 15, cfg.Backend.TimeoutSec)
	assert.Equal(t, "default", cfg.Display.Theme)
}

func TestLoadConfig_FileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
user_id: alice
backend:
  kind: HTTP
  base_url: https://inbox.example.com
  poll_interval_sec: 0
`), 0o600))
	t.Setenv("INBOXSYNC_BACKEND_TIMEOUT_SEC", "42")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.UserID)
	assert.Equal(t, BackendHTTP, cfg.Backend.Kind)
	assert.Equal(t, "https://inbox.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, 5, cfg.Backend.PollIntervalSec, "non-positive interval falls back")
	assert.Equal(t, 42, cfg.Backend.TimeoutSec)
}

func TestLoadConfig_UnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend:\n  kind: ftp\n"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown backend kind "ftp"`)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	want := defaultAppConfig()
	want.UserID = "bob"
	want.Backend.DBPath = "/tmp/inbox.db"

	require.NoError(t, SaveConfig(path, want))
	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseTimestamp(t *testing.T) {
	assert.Equal(t, int64(0), ParseTimestamp("").Unix())
	assert.Equal(t, int64(0), ParseTimestamp("yesterday-ish").Unix())
	assert.Equal(t, int64(1704067200), ParseTimestamp("2024-01-01T00:00:00Z").Unix())
}
