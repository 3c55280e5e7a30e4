package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "vcat.db", cfg.DB)
	assert.Equal(t, 3, cfg.MaxWriteRetries)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
db: /var/lib/vcat/catalog.db
types_dir: /etc/vcat/types
actor: svc-catalog
max_write_retries: 5
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/vcat/catalog.db", cfg.DB)
	assert.Equal(t, "/etc/vcat/types", cfg.TypesDir)
	assert.Equal(t, "svc-catalog", cfg.Actor)
	assert.Equal(t, 5, cfg.MaxWriteRetries)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("actor: alice\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Actor)
	assert.Equal(t, Default().DB, cfg.DB)
	assert.Equal(t, Default().MaxWriteRetries, cfg.MaxWriteRetries)
	assert.Equal(t, Default().LogLevel, cfg.LogLevel)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db: [unclosed\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
