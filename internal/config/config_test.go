package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 30, cfg.Collection.TargetImages)
	require.Equal(t, int64(5*1024*1024), cfg.Collection.MaxFileSize)
	require.Equal(t, []string{"image/jpeg", "image/png", "image/webp"}, cfg.Collection.AllowedTypes)
	require.True(t, cfg.Features.AllowSkipping)
	require.Equal(t, StorageModeFunction, cfg.Storage.Mode)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HANDWRITING_TARGET_IMAGES", "3")
	t.Setenv("HANDWRITING_STORAGE_MODE", "direct")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Collection.TargetImages)
	require.Equal(t, StorageModeDirect, cfg.Storage.Mode)
}

func TestLoad_FileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("collection:\n  target_images: 5\nlog:\n  level: debug\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("HANDWRITING_CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Collection.TargetImages)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate_Rejections(t *testing.T) {
	base := func() Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Collection.TargetImages = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Collection.AllowedTypes = nil
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Collection.WorkerIDPattern = "["
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Storage.Mode = "ftp"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Email.Enabled = true
	cfg.Email.FunctionURL = ""
	require.Error(t, cfg.Validate())
}

func TestWorkerIDRegexp(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	re := cfg.WorkerIDRegexp()
	require.True(t, re.MatchString("worker7"))
	require.False(t, re.MatchString("ab"))
	require.False(t, re.MatchString("has spaces"))
}
