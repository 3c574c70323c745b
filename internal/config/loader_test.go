package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, resolved, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	assert.Equal(t, Default(), cfg)

	_, err = os.Stat(path)
	assert.NoError(t, err, "default config should be written")
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9000\"\npending_limit: 8\nclient:\n  nick: walter\n"), 0o600))

	t.Setenv("SUGARCHAT_PENDING_LIMIT", "16")
	t.Setenv("SUGARCHAT_CLIENT_ROOM", "sugar")

	cfg, _, err := Load(nil, path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 16, cfg.PendingLimit)
	assert.Equal(t, "walter", cfg.Client.Nick)
	assert.Equal(t, "sugar", cfg.Client.Room)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestUpdateFrom(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":1", Client: ClientConfig{Nick: "x"}})

	assert.Equal(t, ":1", cfg.Addr)
	assert.Equal(t, "x", cfg.Client.Nick)
	assert.Equal(t, "general", cfg.Client.Room)
}
