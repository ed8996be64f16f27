// Package config loads daemon settings from defaults, an optional config
// file, and TM_-prefixed environment variables, in increasing precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/octa-computer/transfer-manager/internal/constants"
)

// DefaultFarmHost is used when the UI does not send a farm_host header.
const DefaultFarmHost = "https://octa.computer"

// DefaultR2Endpoint is the public R2 worker fronting the render buckets.
const DefaultR2Endpoint = "https://r2-worker.artem-teslenko.workers.dev"

// Config holds all daemon settings.
type Config struct {
	// ListenHost is the control-plane bind address. The API is
	// unauthenticated, so anything other than loopback is a mistake.
	ListenHost string `mapstructure:"listen_host"`

	// ListenPort is the fixed control-plane port the host app probes.
	ListenPort int `mapstructure:"listen_port"`

	// LogFile is the rolling log path (empty = OS temp dir default).
	LogFile string `mapstructure:"log_file"`

	// LogLevel is the minimum log level.
	LogLevel string `mapstructure:"log_level"`

	// R2Endpoint is the object-storage worker base URL.
	R2Endpoint string `mapstructure:"r2_endpoint"`

	// FarmHost is the fallback farm host when requests omit the header.
	FarmHost string `mapstructure:"farm_host"`

	// DownloadDir is the fallback target when POST /api/download omits
	// local_dir_path (empty = reject such requests).
	DownloadDir string `mapstructure:"download_dir"`
}

// Load reads configuration. cfgFile may be empty; a missing explicit file
// is an error, a missing default file is not.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_host", constants.DefaultListenHost)
	v.SetDefault("listen_port", constants.DefaultListenPort)
	v.SetDefault("log_file", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("r2_endpoint", DefaultR2Endpoint)
	v.SetDefault("farm_host", DefaultFarmHost)
	v.SetDefault("download_dir", "")

	v.SetEnvPrefix("TM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.FarmHost = strings.TrimRight(cfg.FarmHost, "/")
	cfg.R2Endpoint = strings.TrimRight(cfg.R2Endpoint, "/")

	if cfg.ListenPort <= 0 || cfg.ListenPort > 65535 {
		return nil, fmt.Errorf("invalid listen port %d", cfg.ListenPort)
	}

	return &cfg, nil
}
