// Package catalog owns the set of known apps and the views derived from it.
//
// A Catalog is built once at startup by Load (directory scan merged with the
// builtin set) and amended afterwards only through Upsert/UpsertMany. Every
// mutation re-derives the Installed, Store and Featured views before it
// returns, so readers never observe a view that disagrees with the mapping.
//
// Views are ordered by app ID. Featured is the first FeaturedLimit entries of
// Installed.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mattjoyce/ranortv/internal/log"
)

// DefaultFeaturedLimit caps the Featured view.
const DefaultFeaturedLimit = 6

// View names one of the derived lists.
type View int

const (
	ViewFeatured View = iota
	ViewInstalled
	ViewStore
)

// Views lists every derived view in tab order.
var Views = []View{ViewFeatured, ViewInstalled, ViewStore}

func (v View) String() string {
	switch v {
	case ViewFeatured:
		return "featured"
	case ViewInstalled:
		return "installed"
	case ViewStore:
		return "store"
	default:
		return fmt.Sprintf("View(%d)", int(v))
	}
}

// MarshalText renders the view name, including as a JSON map key.
func (v View) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *View) UnmarshalText(text []byte) error {
	parsed, err := ParseView(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseView maps a view name ("featured", "installed"/"apps", "store") to a View.
func ParseView(s string) (View, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "featured":
		return ViewFeatured, nil
	case "installed", "apps":
		return ViewInstalled, nil
	case "store":
		return ViewStore, nil
	default:
		return 0, fmt.Errorf("unknown view %q", s)
	}
}

// Skipped records an app directory that produced no record.
type Skipped struct {
	Dir    string `json:"dir"`
	Reason string `json:"reason"`
}

// Catalog maps app IDs to records and carries the derived views.
// It is not safe for concurrent use; the kiosk loop is its only owner.
type Catalog struct {
	apps          map[string]App
	installed     []App
	store         []App
	featured      []App
	featuredLimit int
	skipped       []Skipped
	logger        *slog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithFeaturedLimit overrides DefaultFeaturedLimit. Non-positive values are ignored.
func WithFeaturedLimit(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.featuredLimit = n
		}
	}
}

// New creates an empty catalog.
func New(opts ...Option) *Catalog {
	c := &Catalog{
		apps:          make(map[string]App),
		featuredLimit: DefaultFeaturedLimit,
		logger:        log.WithComponent("catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load scans appsDir for app descriptors and merges in the builtin set.
// Scan failures never abort the load: an unreadable appsDir yields no scanned
// records and a bad descriptor only skips its own directory.
func Load(appsDir string, opts ...Option) *Catalog {
	c := New(opts...)
	c.scan(appsDir)

	for _, app := range Builtins() {
		if existing, ok := c.apps[app.ID]; ok {
			c.logger.Info("builtin overrides scanned app", "app_id", app.ID, "scanned_target", existing.Target.String())
		}
		c.apps[app.ID] = app
	}
	c.Refresh()

	c.logger.Info("catalog loaded",
		"apps_dir", appsDir,
		"apps", len(c.apps),
		"installed", len(c.installed),
		"store", len(c.store),
		"skipped", len(c.skipped),
	)
	return c
}

func (c *Catalog) scan(appsDir string) {
	entries, err := os.ReadDir(appsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.logger.Info("apps directory does not exist", "apps_dir", appsDir)
		} else {
			c.logger.Warn("apps directory unreadable", "apps_dir", appsDir, "error", err)
		}
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(appsDir, entry.Name())
		app, path, err := LoadDescriptor(dir)
		if err != nil {
			c.skip(dir, err)
			continue
		}
		if existing, ok := c.apps[app.ID]; ok {
			// os.ReadDir is sorted, so the kept record is stable across runs.
			c.skip(dir, fmt.Errorf("duplicate app id %q (kept %s)", app.ID, existing.Name))
			continue
		}
		c.apps[app.ID] = app
		c.logger.Debug("loaded app", "app_id", app.ID, "descriptor", path, "installed", app.Installed)
	}
}

func (c *Catalog) skip(dir string, err error) {
	c.skipped = append(c.skipped, Skipped{Dir: dir, Reason: err.Error()})
	if errors.Is(err, ErrNoDescriptor) {
		c.logger.Debug("skipping directory without descriptor", "dir", dir)
		return
	}
	c.logger.Warn("skipping app directory", "dir", dir, "error", err)
}

// Refresh recomputes the derived views from the current mapping.
func (c *Catalog) Refresh() {
	ids := make([]string, 0, len(c.apps))
	for id := range c.apps {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	installed := make([]App, 0, len(ids))
	store := make([]App, 0)
	for _, id := range ids {
		app := c.apps[id]
		if app.Installed {
			installed = append(installed, app)
		} else {
			store = append(store, app)
		}
	}

	n := min(c.featuredLimit, len(installed))
	c.installed = installed
	c.store = store
	c.featured = installed[:n:n]
}

// Upsert inserts or replaces app by ID and refreshes the views.
func (c *Catalog) Upsert(app App) error {
	if err := admit(app); err != nil {
		return fmt.Errorf("upsert %q: %w", app.ID, err)
	}
	c.apps[app.ID] = app
	c.Refresh()
	return nil
}

// UpsertMany applies every valid record and refreshes once. Invalid records are
// skipped and reported together.
func (c *Catalog) UpsertMany(apps []App) (int, error) {
	var errs []error
	applied := 0
	for _, app := range apps {
		if err := admit(app); err != nil {
			errs = append(errs, fmt.Errorf("upsert %q: %w", app.ID, err))
			continue
		}
		c.apps[app.ID] = app
		applied++
	}
	c.Refresh()
	return applied, errors.Join(errs...)
}

// admit validates a runtime record. Builtin IDs stay bound to their builtin
// definitions.
func admit(app App) error {
	if err := app.Validate(); err != nil {
		return err
	}
	return checkReserved(app)
}

// Get looks up an app by ID.
func (c *Catalog) Get(id string) (App, bool) {
	app, ok := c.apps[id]
	return app, ok
}

// Len returns the number of records.
func (c *Catalog) Len() int { return len(c.apps) }

// FeaturedLimit returns the configured Featured cap.
func (c *Catalog) FeaturedLimit() int { return c.featuredLimit }

// All returns every record in ID order.
func (c *Catalog) All() []App {
	all := append(slices.Clone(c.installed), c.store...)
	slices.SortFunc(all, func(a, b App) int { return strings.Compare(a.ID, b.ID) })
	return all
}

// Installed returns a copy of the installed view.
func (c *Catalog) Installed() []App { return slices.Clone(c.installed) }

// Store returns a copy of the store view.
func (c *Catalog) Store() []App { return slices.Clone(c.store) }

// Featured returns a copy of the featured view.
func (c *Catalog) Featured() []App { return slices.Clone(c.featured) }

// View returns a copy of the named view.
func (c *Catalog) View(v View) []App { return slices.Clone(c.view(v)) }

// ViewLen returns the length of the named view without copying it.
func (c *Catalog) ViewLen(v View) int { return len(c.view(v)) }

// ViewAt returns the record at index i of the named view.
func (c *Catalog) ViewAt(v View, i int) (App, bool) {
	list := c.view(v)
	if i < 0 || i >= len(list) {
		return App{}, false
	}
	return list[i], true
}

func (c *Catalog) view(v View) []App {
	switch v {
	case ViewFeatured:
		return c.featured
	case ViewInstalled:
		return c.installed
	case ViewStore:
		return c.store
	default:
		return nil
	}
}

// Skipped returns the directories the last Load could not turn into records.
func (c *Catalog) Skipped() []Skipped { return slices.Clone(c.skipped) }
