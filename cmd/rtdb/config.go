package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// cliConfig holds the settings read from flags, environment, and an
// optional config.yaml. Precedence, highest first: flags, env (RTDB_*),
// config file, built-in defaults.
type cliConfig struct {
	URL       string `mapstructure:"url"`
	Token     string `mapstructure:"token"`
	ForceREST bool   `mapstructure:"force_rest"`
}

// loadConfig mirrors the teacher's own pattern of a scoped viper.New()
// reading one yaml file rather than a single global viper (see
// internal/labelmutex.ParseMutexGroups), extended with env var binding for
// credentials that shouldn't live in a file.
func loadConfig(configPath string) (*cliConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("rtdb")
	v.AutomaticEnv()

	if configPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configPath = filepath.Join(home, ".rtdb", "config.yaml")
		}
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", configPath, err)
			}
		}
	}

	cfg := &cliConfig{
		URL:       v.GetString("url"),
		Token:     v.GetString("token"),
		ForceREST: v.GetBool("force_rest"),
	}
	return cfg, nil
}
