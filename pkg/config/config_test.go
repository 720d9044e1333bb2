package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 7733, cfg.Server.Port)
	assert.Equal(t, "modp1536", cfg.Group.ID)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 32, cfg.Token.Length)

	require.NoError(t, Validate(cfg))
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Driver)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: 127.0.0.1
  port: 9000
group:
  id: test23
logging:
  level: debug
  format: json
  output: stdout
shutdown_timeout: 5s
token:
  expiry: 2m
  length: 16
storage:
  driver: sqlite
  dsn: "file:test.db"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "test23", cfg.Group.ID)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "file:test.db", cfg.Storage.DSN)
	assert.Equal(t, 16, cfg.Token.Length)
}

func TestMustLoad_MissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := MustLoad(filepath.Join(dir, "nope.yaml"))
	require.Error(t, err)
}

func TestSaveAndReloadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Server.Port = 5555

	require.NoError(t, SaveConfig(cfg, path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5555, reloaded.Server.Port)
}
