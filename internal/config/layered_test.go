package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLayeredLoaderDefaultsOnly(t *testing.T) {
	l := NewLayeredLoader()
	cfg, err := l.Load("")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:7070", cfg.Listen.Address)
	require.Equal(t, "local", cfg.ObjectStore.Backend)
}

func TestLayeredLoaderFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("object_store:\n  backend: s3\n  bucket: profiles\n"), 0o600))

	l := NewLayeredLoader()
	cfg, err := l.Load(path)
	require.NoError(t, err)
	require.Equal(t, "s3", cfg.ObjectStore.Backend)
	require.Equal(t, "profiles", cfg.ObjectStore.Bucket)
}

func TestLayeredLoaderEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("object_store:\n  backend: s3\n  bucket: profiles\n"), 0o600))

	t.Setenv("PROFILESTORE_OBJECT_STORE_BACKEND", "local")
	t.Setenv("PROFILESTORE_DEBUGINFO_MAX_UPLOAD_DURATION", "5m")

	l := NewLayeredLoader()
	cfg, err := l.Load(path)
	require.NoError(t, err)
	require.Equal(t, "local", cfg.ObjectStore.Backend)
	require.Equal(t, 5*time.Minute, cfg.Debuginfo.MaxUploadDuration)
}

func TestValidateRejectsUnsupportedBackend(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.ObjectStore.Backend = "weird"
	err := cfg.Validate()
	require.Error(t, err)
}
