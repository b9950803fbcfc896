package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.False(t, cfg.Sync.Live)
	assert.Equal(t, 2, cfg.Remote.Retry.MaxAttempts)
	assert.Equal(t, 1500*time.Millisecond, cfg.RetryDelay())
}

func TestLoadFromAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("remote:\n  store: demo\nsync:\n  live: true\n"), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Remote.Store)
	assert.True(t, cfg.Sync.Live)
	assert.Equal(t, "SHOPIFY_ACCESS_TOKEN", cfg.Remote.APIKeyEnv)
	assert.Equal(t, 250, cfg.Remote.PageSize)
	assert.Equal(t, 5, cfg.Sync.BatchSize)
	assert.Equal(t, []string{"handle", "Product number", "sku_primary"}, cfg.Sync.BusinessKeys)
	assert.Equal(t, filepath.Join("data", "products.csv"), filepath.Clean(cfg.ProductsPath()))
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, InitAt(path))
	assert.True(t, Exists(path))
	assert.Error(t, InitAt(path))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Set("sync.pace_ms", "0"))
	require.NoError(t, cfg.Set("sync.business_keys", "handle, sku"))
	require.NoError(t, SaveTo(cfg, path))

	reloaded, err := LoadFrom(path)
	require.NoError(t, err)
	v, err := reloaded.Get("sync.business_keys")
	require.NoError(t, err)
	assert.Equal(t, "handle,sku", v)
	assert.Equal(t, time.Duration(0), reloaded.PaceDelay())
}

func TestSetRejectsUnknownKeyAndBadInt(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Set("remote.nope", "x"))
	assert.Error(t, cfg.Set("sync.batch_size", "many"))
	_, err := cfg.Get("nope")
	assert.Error(t, err)
}

func TestDerivedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Files.DataDir = "/srv/pim"
	assert.Equal(t, "/srv/pim/.pimsync-state.json", cfg.StatePath())
	assert.Equal(t, "/srv/pim/.pimsync.lock", cfg.LockPath())
	cfg.Sync.LockFile = "/tmp/x.lock"
	assert.Equal(t, "/tmp/x.lock", cfg.LockPath())
}
