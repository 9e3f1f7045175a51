package catalog

import (
	"encoding/json"
	"testing"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    LaunchTarget
		wantErr bool
	}{
		{name: "builtin", raw: "builtin://settings", want: BuiltinTarget(BuiltinSettings)},
		{name: "builtin unknown tag", raw: "builtin://radio", want: BuiltinTarget("radio")},
		{name: "absolute path", raw: "/apps/spotify/spotify", want: PathTarget("/apps/spotify/spotify")},
		{name: "trimmed", raw: "  /bin/true ", want: PathTarget("/bin/true")},
		{name: "empty", raw: "", wantErr: true},
		{name: "builtin without tag", raw: "builtin://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTarget(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTarget(%q): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParseTarget(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestLaunchTargetJSONRoundTrip(t *testing.T) {
	app := App{ID: "music", Name: "Music", Target: BuiltinTarget(BuiltinMusic), Installed: true}
	data, err := json.Marshal(app)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if raw["executable_path"] != "builtin://music" {
		t.Fatalf("expected builtin://music on the wire, got %v", raw["executable_path"])
	}
}

func TestAppValidate(t *testing.T) {
	tests := []struct {
		name    string
		app     App
		wantErr bool
	}{
		{name: "valid path", app: App{ID: "a", Name: "A", Target: PathTarget("/a")}},
		{name: "valid builtin", app: App{ID: "tv", Name: "TV", Target: BuiltinTarget(BuiltinTV)}},
		{name: "missing id", app: App{Name: "A", Target: PathTarget("/a")}, wantErr: true},
		{name: "slash in id", app: App{ID: "a/b", Name: "A", Target: PathTarget("/a")}, wantErr: true},
		{name: "missing name", app: App{ID: "a", Target: PathTarget("/a")}, wantErr: true},
		{name: "missing target", app: App{ID: "a", Name: "A"}, wantErr: true},
		{name: "both routes", app: App{ID: "a", Name: "A", Target: LaunchTarget{Kind: TargetBuiltin, Builtin: BuiltinTV, Path: "/a"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.app.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestKnownBuiltins(t *testing.T) {
	for _, b := range KnownBuiltins {
		if !b.Known() {
			t.Errorf("%q should be known", b)
		}
	}
	if Builtin("radio").Known() {
		t.Error("radio should not be known")
	}
	for _, app := range Builtins() {
		if !app.Target.IsBuiltin() || !app.Target.Builtin.Known() {
			t.Errorf("builtin app %q has target %v", app.ID, app.Target)
		}
		if err := app.Validate(); err != nil {
			t.Errorf("builtin app %q invalid: %v", app.ID, err)
		}
	}
}
