package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/ranortv/internal/catalog"
)

// EnvPrefix prefixes every environment override, e.g. RANORTV_APPS_DIR.
const EnvPrefix = "RANORTV"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// envOverrides are applied after the YAML file. Unset variables leave the
// pointer nil so they never clobber file values.
type envOverrides struct {
	LogLevel      *string  `envconfig:"LOG_LEVEL"`
	LogFormat     *string  `envconfig:"LOG_FORMAT"`
	LogFile       *string  `envconfig:"LOG_FILE"`
	AppsDir       *string  `envconfig:"APPS_DIR"`
	StatePath     *string  `envconfig:"STATE_PATH"`
	FeaturedLimit *int     `envconfig:"FEATURED_LIMIT"`
	SandboxTool   *string  `envconfig:"SANDBOX_TOOL"`
	SandboxFlags  []string `envconfig:"SANDBOX_FLAGS"`
	APIEnabled    *bool    `envconfig:"API_ENABLED"`
	APIListen     *string  `envconfig:"API_LISTEN"`
	APIKey        *string  `envconfig:"API_KEY"`
}

// Load reads configPath (a file, or a directory holding config.yaml), applies
// RANORTV_* overrides and validates the result.
func Load(configPath string) (*Config, error) {
	absPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.resolveRelative(filepath.Dir(absPath))
	return cfg, nil
}

// LoadDefaults builds a config without a file: defaults, then environment.
func LoadDefaults() (*Config, error) {
	cfg := Defaults()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML over Defaults, interpolating ${VAR} references first.
func Parse(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Defaults()
	expanded := interpolateEnv(string(raw))
	if strings.TrimSpace(expanded) != "" {
		dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveConfigPath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}

	setString := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setString(&cfg.Service.LogLevel, env.LogLevel)
	setString(&cfg.Service.LogFormat, env.LogFormat)
	setString(&cfg.Service.LogFile, env.LogFile)
	setString(&cfg.AppsDir, env.AppsDir)
	setString(&cfg.State.Path, env.StatePath)
	setString(&cfg.Launcher.Sandbox.Tool, env.SandboxTool)
	setString(&cfg.API.Listen, env.APIListen)
	setString(&cfg.API.Auth.APIKey, env.APIKey)
	if env.FeaturedLimit != nil {
		cfg.Launcher.FeaturedLimit = *env.FeaturedLimit
	}
	if env.SandboxFlags != nil {
		cfg.Launcher.Sandbox.Flags = env.SandboxFlags
	}
	if env.APIEnabled != nil {
		cfg.API.Enabled = *env.APIEnabled
	}
	return nil
}

// resolveRelative anchors relative paths at the config file's directory.
func (c *Config) resolveRelative(baseDir string) {
	for _, p := range []*string{&c.AppsDir, &c.State.Path, &c.Service.LogFile} {
		if *p == "" || filepath.IsAbs(*p) || *p == ":memory:" {
			continue
		}
		*p = filepath.Join(baseDir, *p)
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place so Validate can name the missing variable.
		return match
	})
}

// Validate performs basic validation on the configuration.
func Validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	switch strings.ToLower(cfg.Service.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.AppsDir == "" {
		return fmt.Errorf("apps_dir is required")
	}
	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	if cfg.State.HistoryRetention < 0 {
		return fmt.Errorf("state.history_retention must not be negative")
	}

	if cfg.Launcher.FeaturedLimit <= 0 {
		return fmt.Errorf("launcher.featured_limit must be positive (got %d)", cfg.Launcher.FeaturedLimit)
	}
	if strings.TrimSpace(cfg.Launcher.Sandbox.Tool) == "" {
		return fmt.Errorf("launcher.sandbox.tool is required")
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when the API is enabled")
		}
		if err := checkUnresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
		for i, tok := range cfg.API.Auth.Tokens {
			field := fmt.Sprintf("api.auth.tokens[%d].token", i)
			if tok.Token == "" {
				return fmt.Errorf("%s is required", field)
			}
			if err := checkUnresolved(field, tok.Token); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.auth.tokens[%d].scopes must be non-empty", i)
			}
		}
	}

	seen := make(map[string]bool, len(cfg.StoreFeed))
	for i, app := range cfg.StoreFeed {
		if err := app.Validate(); err != nil {
			return fmt.Errorf("store_feed[%d]: %w", i, err)
		}
		if catalog.IsBuiltinID(app.ID) {
			return fmt.Errorf("store_feed[%d]: id %q is reserved for a builtin app", i, app.ID)
		}
		if seen[app.ID] {
			return fmt.Errorf("store_feed[%d]: duplicate id %q", i, app.ID)
		}
		seen[app.ID] = true
	}
	return nil
}

func checkUnresolved(field, value string) error {
	if m := envVarPattern.FindStringSubmatch(value); len(m) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, m[1])
	}
	return nil
}
