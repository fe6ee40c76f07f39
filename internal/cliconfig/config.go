// Package cliconfig resolves settings for the terminal client from flags,
// TABLETALK_* environment variables and an optional config.yaml.
package cliconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultServer = "http://localhost:8080"

	// StorageDisabled as the storage setting makes the client use the shared
	// fallback session.
	StorageDisabled = "none"

	envPrefix     = "TABLETALK"
	configFileEnv = "TABLETALK_CONFIG_FILE"
)

type Config struct {
	Server  string `mapstructure:"server"`
	Storage string `mapstructure:"storage"`
	Pretty  bool   `mapstructure:"pretty"`
}

// Load layers, lowest first: defaults, config.yaml, environment, then flags
// the user actually set. configDir may be empty to skip the per-user file.
func Load(flags *pflag.FlagSet, configDir string) (*Config, error) {
	v := viper.New()
	v.SetDefault("server", DefaultServer)
	v.SetDefault("storage", "")
	v.SetDefault("pretty", false)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if file := os.Getenv(configFileEnv); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", file, err)
		}
	} else if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.Server = strings.TrimRight(strings.TrimSpace(cfg.Server), "/")
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	return cfg, nil
}

// DefaultDir is <user config dir>/tabletalk, or "" when there is none.
func DefaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "tabletalk")
}
