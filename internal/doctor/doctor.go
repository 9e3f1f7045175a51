// Package doctor checks that a kiosk image is ready to boot.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/ranortv/internal/auth"
	"github.com/mattjoyce/ranortv/internal/catalog"
	"github.com/mattjoyce/ranortv/internal/config"
	"github.com/mattjoyce/ranortv/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// ToolChecker resolves the sandbox wrapper. *sandbox.Launcher satisfies it.
type ToolChecker interface {
	CheckTool() (string, error)
}

var knownScopes = map[string]bool{
	auth.ScopeAll:       true,
	auth.ScopeKioskRead: true,
	auth.ScopeKioskRW:   true,
	auth.ScopeHistory:   true,
	auth.ScopeEvents:    true,
	auth.ScopeMetrics:   true,
}

// Doctor validates configuration against the scanned catalog and the host.
type Doctor struct {
	cfg        *config.Config
	catalog    *catalog.Catalog
	tool       ToolChecker
	configPath string
	inspectFS  func(string) (storage.Filesystem, error)
}

// Option configures a Doctor.
type Option func(*Doctor)

// WithConfigPath enables the checksum check for the given config file.
func WithConfigPath(path string) Option {
	return func(d *Doctor) { d.configPath = path }
}

// WithFilesystemInspector replaces storage.InspectFilesystem for the state check.
func WithFilesystemInspector(fn func(string) (storage.Filesystem, error)) Option {
	return func(d *Doctor) { d.inspectFS = fn }
}

// New creates a Doctor from a loaded config and the catalog it produced.
func New(cfg *config.Config, cat *catalog.Catalog, tool ToolChecker, opts ...Option) *Doctor {
	d := &Doctor{cfg: cfg, catalog: cat, tool: tool, inspectFS: storage.InspectFilesystem}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateAppsDir(r)
	d.validateDescriptors(r)
	d.validateBuiltinTags(r)
	d.validateExecutables(r)
	d.validateSandboxTool(r)
	d.validateStatePath(r)
	d.validateAPIConfig(r)
	d.validateTokenScopes(r)
	d.warnStoreFeedCollisions(r)
	d.warnDeprecatedSyntax(r)
	d.verifyChecksums(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateAppsDir checks the scan root. A missing directory still boots with
// builtins only.
func (d *Doctor) validateAppsDir(r *Result) {
	info, err := os.Stat(d.cfg.AppsDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		d.addWarning(r, "apps", "apps_dir",
			fmt.Sprintf("%s does not exist; only builtin apps will be listed", d.cfg.AppsDir))
	case err != nil:
		d.addError(r, "apps", "apps_dir", fmt.Sprintf("cannot stat %s: %v", d.cfg.AppsDir, err))
	case !info.IsDir():
		d.addError(r, "apps", "apps_dir", fmt.Sprintf("%s is not a directory", d.cfg.AppsDir))
	}
}

// validateDescriptors reports app directories the scan skipped.
func (d *Doctor) validateDescriptors(r *Result) {
	if d.catalog == nil {
		return
	}
	for _, s := range d.catalog.Skipped() {
		d.addWarning(r, "descriptor", s.Dir, s.Reason)
	}
}

// validateBuiltinTags flags records routed to a builtin nobody handles.
func (d *Doctor) validateBuiltinTags(r *Result) {
	if d.catalog == nil {
		return
	}
	for _, app := range d.catalog.All() {
		if app.Target.IsBuiltin() && !app.Target.Builtin.Known() {
			d.addError(r, "builtin", "apps."+app.ID,
				fmt.Sprintf("unknown builtin %q; launching %s will fail", app.Target.Builtin, app.ID))
		}
	}
}

// validateExecutables warns about installed apps whose binary is missing or
// not executable.
func (d *Doctor) validateExecutables(r *Result) {
	if d.catalog == nil {
		return
	}
	for _, app := range d.catalog.Installed() {
		if app.Target.IsBuiltin() {
			continue
		}
		info, err := os.Stat(app.Target.Path)
		switch {
		case err != nil:
			d.addWarning(r, "executable", "apps."+app.ID, fmt.Sprintf("%s: %v", app.Target.Path, err))
		case info.IsDir() || info.Mode().Perm()&0o111 == 0:
			d.addWarning(r, "executable", "apps."+app.ID, fmt.Sprintf("%s is not executable", app.Target.Path))
		}
	}
}

func (d *Doctor) validateSandboxTool(r *Result) {
	if d.tool == nil {
		return
	}
	if _, err := d.tool.CheckTool(); err != nil {
		d.addError(r, "sandbox", "launcher.sandbox.tool", err.Error())
	}
}

// validateStatePath checks the history database location.
func (d *Doctor) validateStatePath(r *Result) {
	path := d.cfg.State.Path
	if path == "" {
		d.addError(r, "state", "state.path", "state.path is required")
		return
	}
	fs, err := d.inspectFS(path)
	if err != nil {
		d.addError(r, "state", "state.path", err.Error())
		return
	}
	switch fs.Kind {
	case storage.FSNetwork:
		d.addError(r, "state", "state.path",
			fmt.Sprintf("%s is on network filesystem %s; SQLite needs a local disk", path, fs.Type))
		return
	case storage.FSVolatile:
		d.addWarning(r, "state", "state.path",
			fmt.Sprintf("%s is on %s; launch history will not survive a reboot", path, fs.Type))
	}

	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		d.addWarning(r, "state", "state.path", fmt.Sprintf("%s does not exist yet and will be created", dir))
		return
	}
	f, err := os.CreateTemp(dir, ".ranortv-doctor-*")
	if err != nil {
		d.addError(r, "state", "state.path", fmt.Sprintf("%s is not writable: %v", dir, err))
		return
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
	}
	if d.cfg.API.Auth.APIKey == "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "api", "api.auth", "API enabled but no authentication configured")
	}
}

// validateTokenScopes checks every scope names something the API enforces.
func (d *Doctor) validateTokenScopes(r *Result) {
	for i, token := range d.cfg.API.Auth.Tokens {
		for j, scope := range token.Scopes {
			if !knownScopes[strings.TrimSpace(scope)] {
				d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].scopes[%d]", i, j),
					fmt.Sprintf("unknown scope %q", scope))
			}
		}
	}
}

// warnStoreFeedCollisions flags feed records that would replace an
// installed app on refresh. Builtin IDs are refused outright.
func (d *Doctor) warnStoreFeedCollisions(r *Result) {
	for i, app := range d.cfg.StoreFeed {
		if catalog.IsBuiltinID(app.ID) {
			d.addError(r, "store_feed", fmt.Sprintf("store_feed[%d]", i),
				fmt.Sprintf("%q is reserved for a builtin app; a store refresh will skip it", app.ID))
			continue
		}
		if d.catalog == nil {
			continue
		}
		if existing, ok := d.catalog.Get(app.ID); ok && existing.Installed && !app.Installed {
			d.addWarning(r, "store_feed", fmt.Sprintf("store_feed[%d]", i),
				fmt.Sprintf("%q is installed; a store refresh will move it to the store view", app.ID))
		}
	}
}

// warnDeprecatedSyntax warns about legacy config patterns.
func (d *Doctor) warnDeprecatedSyntax(r *Result) {
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) > 0 {
		d.addWarning(r, "deprecated", "api.auth",
			"both api_key and tokens configured; prefer tokens array only")
	}
}

// verifyChecksums compares the config against its lock manifest, if any.
func (d *Doctor) verifyChecksums(r *Result) {
	if d.configPath == "" {
		return
	}
	err := config.Verify(d.configPath)
	switch {
	case errors.Is(err, config.ErrNoChecksums):
		d.addWarning(r, "integrity", "", "config is not locked; run 'ranortv config lock'")
	case err != nil:
		d.addError(r, "integrity", "", err.Error())
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Kiosk ready.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Kiosk ready (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Kiosk not ready (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}
	return b.String()
}

func writeIssue(b *strings.Builder, level string, is Issue) {
	if is.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, is.Category, is.Field, is.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", level, is.Category, is.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
