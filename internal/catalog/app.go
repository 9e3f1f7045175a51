package catalog

import (
	"fmt"
	"strings"
)

// BuiltinScheme prefixes launch targets that are handled inside the launcher.
const BuiltinScheme = "builtin://"

// Builtin is the tag of an internally handled app.
type Builtin string

const (
	BuiltinTV       Builtin = "tv"
	BuiltinMovies   Builtin = "movies"
	BuiltinMusic    Builtin = "music"
	BuiltinPhotos   Builtin = "photos"
	BuiltinSettings Builtin = "settings"
	BuiltinAppStore Builtin = "app_store"
)

// KnownBuiltins lists every tag the launcher ships a handler for.
var KnownBuiltins = []Builtin{
	BuiltinTV,
	BuiltinMovies,
	BuiltinMusic,
	BuiltinPhotos,
	BuiltinSettings,
	BuiltinAppStore,
}

// Known reports whether the tag belongs to the shipped enumeration.
func (b Builtin) Known() bool {
	for _, k := range KnownBuiltins {
		if b == k {
			return true
		}
	}
	return false
}

// TargetKind distinguishes builtin routing from external executables.
type TargetKind int

const (
	TargetPath TargetKind = iota
	TargetBuiltin
)

func (k TargetKind) String() string {
	switch k {
	case TargetBuiltin:
		return "builtin"
	case TargetPath:
		return "path"
	default:
		return fmt.Sprintf("TargetKind(%d)", int(k))
	}
}

// LaunchTarget is either a builtin tag or a filesystem path, never both.
// It is parsed once when a descriptor is read so routing never matches raw strings.
type LaunchTarget struct {
	Kind    TargetKind
	Builtin Builtin
	Path    string
}

// PathTarget builds an external launch target.
func PathTarget(path string) LaunchTarget {
	return LaunchTarget{Kind: TargetPath, Path: path}
}

// BuiltinTarget builds an internal launch target.
func BuiltinTarget(tag Builtin) LaunchTarget {
	return LaunchTarget{Kind: TargetBuiltin, Builtin: tag}
}

// ParseTarget decodes the executable_path descriptor field.
// Tags outside KnownBuiltins still parse; the dispatcher reports them when launched.
func ParseTarget(raw string) (LaunchTarget, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return LaunchTarget{}, fmt.Errorf("launch target is empty")
	}
	if tag, ok := strings.CutPrefix(raw, BuiltinScheme); ok {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return LaunchTarget{}, fmt.Errorf("builtin target %q has no tag", raw)
		}
		return BuiltinTarget(Builtin(tag)), nil
	}
	return PathTarget(raw), nil
}

func (t LaunchTarget) IsBuiltin() bool { return t.Kind == TargetBuiltin }

func (t LaunchTarget) String() string {
	if t.Kind == TargetBuiltin {
		return BuiltinScheme + string(t.Builtin)
	}
	return t.Path
}

// MarshalText implements encoding.TextMarshaler for JSON, YAML and TOML codecs.
func (t LaunchTarget) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *LaunchTarget) UnmarshalText(text []byte) error {
	parsed, err := ParseTarget(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// App is a single catalog record.
type App struct {
	ID          string       `json:"id" yaml:"id" toml:"id"`
	Name        string       `json:"name" yaml:"name" toml:"name"`
	Description string       `json:"description" yaml:"description" toml:"description"`
	Icon        string       `json:"icon_path,omitempty" yaml:"icon_path,omitempty" toml:"icon_path,omitempty"`
	Target      LaunchTarget `json:"executable_path" yaml:"executable_path" toml:"executable_path"`
	Installed   bool         `json:"installed" yaml:"installed" toml:"installed"`
	Version     string       `json:"version" yaml:"version" toml:"version"`
	Category    string       `json:"category" yaml:"category" toml:"category"`
	Background  string       `json:"background_path,omitempty" yaml:"background_path,omitempty" toml:"background_path,omitempty"`
}

// Validate checks the fields every record must carry.
func (a App) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.ContainsAny(a.ID, "/ \t\n") {
		return fmt.Errorf("id %q contains whitespace or '/'", a.ID)
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("name is required")
	}
	switch a.Target.Kind {
	case TargetBuiltin:
		if a.Target.Builtin == "" {
			return fmt.Errorf("builtin target has no tag")
		}
		if a.Target.Path != "" {
			return fmt.Errorf("builtin target must not carry a path")
		}
	case TargetPath:
		if a.Target.Path == "" {
			return fmt.Errorf("executable_path is required")
		}
	default:
		return fmt.Errorf("unknown target kind %v", a.Target.Kind)
	}
	return nil
}
