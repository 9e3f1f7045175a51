package config

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrNoConfig is returned by Discover when no config file exists in any
// standard location. Callers fall back to LoadDefaults.
var ErrNoConfig = errors.New("no config found (checked: $RANORTV_CONFIG, ~/.config/ranortv, /etc/ranortv, ./config.yaml)")

// Discover finds the config file by checking standard locations.
// Priority order: $RANORTV_CONFIG, ~/.config/ranortv/config.yaml,
// /etc/ranortv/config.yaml, ./config.yaml.
func Discover() (string, error) {
	candidates := make([]string, 0, 4)
	if p := os.Getenv(EnvPrefix + "_CONFIG"); p != "" {
		candidates = append(candidates, p)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "ranortv", "config.yaml"))
	}
	candidates = append(candidates, "/etc/ranortv/config.yaml", "config.yaml")

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", ErrNoConfig
}
