package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DescriptorNames are the per-app descriptor files, in lookup order.
// app.json is the canonical format; the others exist for hand-edited installs.
var DescriptorNames = []string{"app.json", "app.yaml", "app.yml", "app.toml"}

// ErrNoDescriptor is returned when an app directory holds none of DescriptorNames.
var ErrNoDescriptor = errors.New("no app descriptor")

// LoadDescriptor reads and validates the descriptor inside dir.
func LoadDescriptor(dir string) (App, string, error) {
	for _, name := range DescriptorNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return App{}, path, fmt.Errorf("read descriptor: %w", err)
		}
		app, err := ParseDescriptor(name, data)
		if err != nil {
			return App{}, path, err
		}
		return app, path, nil
	}
	return App{}, "", ErrNoDescriptor
}

// ParseDescriptor decodes descriptor bytes according to the file name's extension.
func ParseDescriptor(name string, data []byte) (App, error) {
	var app App
	switch filepath.Ext(name) {
	case ".json":
		if err := json.Unmarshal(data, &app); err != nil {
			return App{}, fmt.Errorf("parse descriptor JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &app); err != nil {
			return App{}, fmt.Errorf("parse descriptor YAML: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &app); err != nil {
			return App{}, fmt.Errorf("parse descriptor TOML: %w", err)
		}
	default:
		return App{}, fmt.Errorf("unsupported descriptor format %q", name)
	}

	if err := app.Validate(); err != nil {
		return App{}, fmt.Errorf("invalid descriptor: %w", err)
	}
	return app, nil
}
