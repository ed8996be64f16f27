package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.ListenHost)
	assert.Equal(t, 7780, cfg.ListenPort)
	assert.Equal(t, DefaultFarmHost, cfg.FarmHost)
	assert.Equal(t, DefaultR2Endpoint, cfg.R2Endpoint)
	assert.Empty(t, cfg.DownloadDir)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TM_LISTEN_PORT", "8899")
	t.Setenv("TM_FARM_HOST", "https://farm.example/")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8899, cfg.ListenPort)
	assert.Equal(t, "https://farm.example", cfg.FarmHost)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_port: 9100\ndownload_dir: /tmp/renders\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.ListenPort)
	assert.Equal(t, "/tmp/renders", cfg.DownloadDir)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("TM_LISTEN_PORT", "-1")
	_, err := Load("")
	assert.Error(t, err)
}
