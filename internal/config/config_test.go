package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesFileThenEnvironmentOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store_dsn: file.db\nworkers: 3\nbind_addr: 0.0.0.0:9000\n"), 0o600))

	t.Setenv("FORGE_WORKERS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "file.db", cfg.StoreDSN)
	require.Equal(t, int64(7), cfg.Workers)
	require.Equal(t, "0.0.0.0:9000", cfg.BindAddr)
}

func TestLoadFallsBackToDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadRejectsInvalidWorkerCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store_dsn: file.db\nworkers: 0\nbind_addr: 127.0.0.1:8080\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestParseRejectsMissingRequiredField(t *testing.T) {
	_, err := Parse([]byte("workers: 2\nbind_addr: 127.0.0.1:8080\n"))
	require.Error(t, err)
}

func TestParseAcceptsWellFormedDocument(t *testing.T) {
	cfg, err := Parse([]byte("store_dsn: \":memory:\"\nworkers: 4\nbind_addr: 127.0.0.1:9090\nlog_level: debug\n"))
	require.NoError(t, err)
	require.Equal(t, int64(4), cfg.Workers)
	require.Equal(t, "debug", cfg.LogLevel)
}
