package config

import (
	"time"

	"github.com/mattjoyce/ranortv/internal/catalog"
)

// Config represents the complete ranortv configuration.
type Config struct {
	Service   ServiceConfig  `yaml:"service"`
	AppsDir   string         `yaml:"apps_dir"`
	State     StateConfig    `yaml:"state"`
	Launcher  LauncherConfig `yaml:"launcher"`
	API       APIConfig      `yaml:"api,omitempty"`
	StoreFeed []catalog.App  `yaml:"store_feed,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// LogFile receives logs while the terminal front-end owns the screen.
	LogFile string `yaml:"log_file,omitempty"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path             string        `yaml:"path"`
	HistoryRetention time.Duration `yaml:"history_retention"`
}

// LauncherConfig defines catalog and spawn settings.
type LauncherConfig struct {
	FeaturedLimit int           `yaml:"featured_limit"`
	Sandbox       SandboxConfig `yaml:"sandbox"`
}

// SandboxConfig names the isolation wrapper.
type SandboxConfig struct {
	Tool  string   `yaml:"tool"`
	Flags []string `yaml:"flags"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is a single bearer token with full access.
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes. Name shows up as the
// launch source in history ("api:<name>").
type APIToken struct {
	Name   string   `yaml:"name,omitempty"`
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// Defaults returns a Config suitable for a stock kiosk image.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "ranortv",
			LogLevel:  "info",
			LogFormat: "json",
		},
		AppsDir: "/apps",
		State: StateConfig{
			Path:             "./data/state.db",
			HistoryRetention: 30 * 24 * time.Hour,
		},
		Launcher: LauncherConfig{
			FeaturedLimit: catalog.DefaultFeaturedLimit,
			Sandbox: SandboxConfig{
				Tool:  "unshare",
				Flags: []string{"--net", "--pid", "--fork"},
			},
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
		StoreFeed: DefaultStoreFeed(),
	}
}

// DefaultStoreFeed is the built-in list of apps offered by the store tab.
func DefaultStoreFeed() []catalog.App {
	return []catalog.App{
		{
			ID:          "spotify",
			Name:        "Spotify",
			Description: "Music streaming service",
			Target:      catalog.PathTarget("/apps/spotify/spotify"),
			Version:     "1.0.0",
			Category:    "Music",
		},
		{
			ID:          "youtube",
			Name:        "YouTube",
			Description: "Video streaming platform",
			Target:      catalog.PathTarget("/apps/youtube/youtube"),
			Version:     "2.1.0",
			Category:    "Entertainment",
		},
	}
}
