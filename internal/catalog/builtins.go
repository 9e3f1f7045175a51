package catalog

import (
	"errors"
	"fmt"
)

// ErrReservedID is returned when a record would replace a builtin app.
var ErrReservedID = errors.New("id is reserved for a builtin app")

// IsBuiltinID reports whether id belongs to one of Builtins.
func IsBuiltinID(id string) bool {
	return Builtin(id).Known()
}

// checkReserved lets a builtin ID through only with its own definition.
func checkReserved(app App) error {
	if !IsBuiltinID(app.ID) {
		return nil
	}
	for _, b := range Builtins() {
		if b.ID == app.ID && b == app {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrReservedID, app.ID)
}

// Builtins returns the launcher's core apps. They are rebuilt on every call so
// callers can never mutate the shared definitions.
func Builtins() []App {
	return []App{
		{
			ID:          "tv",
			Name:        "TV",
			Description: "Live TV and streaming",
			Icon:        "icons/tv.png",
			Target:      BuiltinTarget(BuiltinTV),
			Installed:   true,
			Version:     "1.0.0",
			Category:    "Entertainment",
		},
		{
			ID:          "movies",
			Name:        "Movies",
			Description: "Movie library",
			Icon:        "icons/movies.png",
			Target:      BuiltinTarget(BuiltinMovies),
			Installed:   true,
			Version:     "1.0.0",
			Category:    "Entertainment",
		},
		{
			ID:          "music",
			Name:        "Music",
			Description: "Music streaming",
			Icon:        "icons/music.png",
			Target:      BuiltinTarget(BuiltinMusic),
			Installed:   true,
			Version:     "1.0.0",
			Category:    "Entertainment",
		},
		{
			ID:          "photos",
			Name:        "Photos",
			Description: "Photo viewer",
			Icon:        "icons/photos.png",
			Target:      BuiltinTarget(BuiltinPhotos),
			Installed:   true,
			Version:     "1.0.0",
			Category:    "Media",
		},
		{
			ID:          "settings",
			Name:        "Settings",
			Description: "System settings",
			Icon:        "icons/settings.png",
			Target:      BuiltinTarget(BuiltinSettings),
			Installed:   true,
			Version:     "1.0.0",
			Category:    "System",
		},
		{
			ID:          "app_store",
			Name:        "App Store",
			Description: "Download apps",
			Icon:        "icons/app_store.png",
			Target:      BuiltinTarget(BuiltinAppStore),
			Installed:   true,
			Version:     "1.0.0",
			Category:    "System",
		},
	}
}
