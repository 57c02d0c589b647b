package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv(TokenEnv, "")
	dataDir := t.TempDir()

	cfg, err := Load(filepath.Join(dataDir, "nope.yaml"), dataDir)
	require.NoError(t, err)

	want := DefaultConfig()
	want.DataDir = dataDir
	assert.Equal(t, &want, cfg)
}

func TestLoad_File(t *testing.T) {
	t.Setenv(TokenEnv, "")
	path := writeConfig(t, `
store:
  backend: Postgres
  postgres:
    dsn: postgres://localhost/roadmap
github:
  token: file-token
  stale_after: 30m
  fetch_workers: 8
schedule:
  interval: 5m
refresh_key: s3cret
`)
	dataDir := t.TempDir()

	cfg, err := Load(path, dataDir)
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, "roadmap:", cfg.Store.KeyPrefix)
	assert.Equal(t, "postgres://localhost/roadmap", cfg.Store.Postgres.DSN)
	assert.Equal(t, "file-token", cfg.Github.Token)
	assert.Equal(t, 30*time.Minute, cfg.Github.StaleAfter)
	assert.Equal(t, 8, cfg.Github.FetchWorkers)
	assert.Equal(t, 5*time.Minute, cfg.Schedule.Interval)
	assert.Equal(t, "s3cret", cfg.RefreshKey)
	assert.Equal(t, 200, cfg.Events.MaxEvents)
	assert.Equal(t, dataDir, cfg.DataDir)
}

func TestLoad_TokenFromEnv(t *testing.T) {
	t.Setenv(TokenEnv, "env-token")
	path := writeConfig(t, "github:\n  token: file-token\n")

	cfg, err := Load(path, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Github.Token)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "bad yaml", body: "store: [", wantErr: "parse config file"},
		{name: "unknown backend", body: "store:\n  backend: redis\n", wantErr: "store.backend"},
		{name: "workers", body: "github:\n  fetch_workers: -1\n", wantErr: "fetch_workers"},
		{name: "interval", body: "schedule:\n  interval: 10s\n", wantErr: "schedule.interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), t.TempDir())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_RequiresDataDir(t *testing.T) {
	cfg := DefaultConfig()
	assert.ErrorContains(t, cfg.Validate(), "data directory")
}
