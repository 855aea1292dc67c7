package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, 5.0, cfg.Grading.MaxGrade)
	assert.Equal(t, 2, cfg.Grading.Decimals)
	assert.Equal(t, 2*time.Second, cfg.Scheduling.LockTimeout())
	assert.Equal(t, time.Hour, cfg.Auth.AccessTTL())
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	data := "http:\n  port: \"9090\"\ngrading:\n  max_grade: 10\ndb:\n  host: db.internal\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	t.Setenv("APP_DB__HOST", "override.internal")
	t.Setenv("APP_SCHEDULING__LOCK_TIMEOUT_MS", "500")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.HTTP.Port)
	assert.Equal(t, 10.0, cfg.Grading.MaxGrade)
	assert.Equal(t, "override.internal", cfg.DB.Host)
	assert.Equal(t, 500*time.Millisecond, cfg.Scheduling.LockTimeout())
	assert.Contains(t, cfg.DB.DSN(), "host=override.internal")
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"grading":{"decimals":3,"workers":2}}`), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Grading.Decimals)
	assert.Equal(t, 2, cfg.Grading.Workers)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "cfg.toml"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grading:\n  max_grade: -1\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}
