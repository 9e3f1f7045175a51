package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/ranortv/internal/config"
	"github.com/mattjoyce/ranortv/internal/kiosk"
	"github.com/mattjoyce/ranortv/internal/launch"
	"github.com/mattjoyce/ranortv/internal/lock"
	"github.com/mattjoyce/ranortv/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

// runForTest executes the CLI and returns the exit code with both streams.
func runForTest(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := runCLI(context.Background(), append([]string{"ranortv"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion := version
	origCommit := gitCommit
	origBuildDate := buildDate

	version = v
	gitCommit = commit
	buildDate = built

	t.Cleanup(func() {
		version = origVersion
		gitCommit = origCommit
		buildDate = origBuildDate
	})
}

type fixture struct {
	configPath string
	statePath  string
}

// writeFixture lays out an apps dir holding kodi and a config pointing at it.
func writeFixture(t *testing.T, sandboxTool string) fixture {
	t.Helper()
	root := t.TempDir()

	kodiDir := filepath.Join(root, "apps", "kodi")
	require.NoError(t, os.MkdirAll(kodiDir, 0o755))
	bin := filepath.Join(kodiDir, "kodi")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(kodiDir, "app.yaml"), []byte(
		"id: kodi\nname: Kodi\ncategory: Media\nversion: \"20.2\"\nexecutable_path: "+bin+"\ninstalled: true\n"), 0o644))

	statePath := filepath.Join(root, "data", "state.db")
	cfg := "apps_dir: " + filepath.Join(root, "apps") + "\n" +
		"state:\n  path: " + statePath + "\n" +
		"launcher:\n  sandbox:\n    tool: " + sandboxTool + "\n    flags: []\n"
	configPath := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o644))

	return fixture{configPath: configPath, statePath: statePath}
}

func assertLockFree(t *testing.T, statePath string) {
	t.Helper()
	l, err := lock.AcquirePIDLock(lock.PathFor(statePath))
	require.NoError(t, err, "instance lock still held")
	require.NoError(t, l.Release())
}

func TestVersionText(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef", "2026-03-01T10:20:30+02:00")

	code, stdout, _ := runForTest(t, "version")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "ranortv 1.2.3")
	assert.Contains(t, stdout, "commit: 0123456789ab")
	assert.Contains(t, stdout, "built_at: 2026-03-01T08:20:30Z")
}

func TestVersionJSON(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "abc", "not-a-time")

	code, stdout, _ := runForTest(t, "version", "--json")
	require.Equal(t, 0, code)

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "abc", info.Commit)
}

func TestNormalizeBuildTimeUTC(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{raw: "", wantOK: false},
		{raw: "unknown", wantOK: false},
		{raw: "yesterday", wantOK: false},
		{raw: "2026-01-02T03:04:05Z", want: "2026-01-02T03:04:05Z", wantOK: true},
		{raw: "2026-01-02T13:04:05.123+10:00", want: "2026-01-02T03:04:05Z", wantOK: true},
	}
	for _, tt := range tests {
		got, ok := normalizeBuildTimeUTC(tt.raw)
		assert.Equal(t, tt.wantOK, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestAppsInstalled(t *testing.T) {
	fx := writeFixture(t, "env")

	code, stdout, stderr := runForTest(t, "--config", fx.configPath, "apps")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "ID")
	assert.Contains(t, stdout, "Kodi")
	assert.Contains(t, stdout, "20.2")
	assert.Contains(t, stdout, "builtin://settings")
}

func TestAppsStoreRefreshJSON(t *testing.T) {
	fx := writeFixture(t, "env")

	code, stdout, _ := runForTest(t, "--config", fx.configPath, "apps", "--view", "store")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "No apps.")

	code, stdout, stderr := runForTest(t, "--config", fx.configPath, "apps", "--view", "store", "--refresh", "--json")
	require.Equal(t, 0, code, stderr)

	var resp struct {
		View        string `json:"view"`
		Fingerprint string `json:"fingerprint"`
		Apps        []struct {
			ID        string `json:"id"`
			Installed bool   `json:"installed"`
		} `json:"apps"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "store", resp.View)
	assert.NotEmpty(t, resp.Fingerprint)
	require.Len(t, resp.Apps, 2)
	assert.Equal(t, "spotify", resp.Apps[0].ID)
	assert.Equal(t, "youtube", resp.Apps[1].ID)
	assert.False(t, resp.Apps[0].Installed)
}

func TestAppsUnknownView(t *testing.T) {
	fx := writeFixture(t, "env")

	code, _, stderr := runForTest(t, "--config", fx.configPath, "apps", "--view", "recent")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Error:")
}

func TestLaunchBuiltin(t *testing.T) {
	fx := writeFixture(t, "env")

	code, stdout, stderr := runForTest(t, "--config", fx.configPath, "launch", "settings")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Opened settings (builtin://settings)\n", stdout)

	_, err := os.Stat(fx.statePath)
	assert.NoError(t, err, "state database created")
	assertLockFree(t, fx.statePath)
}

func TestLaunchUnknownApp(t *testing.T) {
	fx := writeFixture(t, "env")

	code, _, stderr := runForTest(t, "--config", fx.configPath, "launch", "netflix")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "launch netflix")
}

func TestLaunchRequiresOneArgument(t *testing.T) {
	fx := writeFixture(t, "env")

	code, _, stderr := runForTest(t, "--config", fx.configPath, "launch")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "usage: ranortv launch <app-id>")
}

func TestLaunchWhileKioskRunning(t *testing.T) {
	fx := writeFixture(t, "env")

	held, err := lock.AcquirePIDLock(lock.PathFor(fx.statePath))
	require.NoError(t, err)
	t.Cleanup(func() { _ = held.Release() })

	code, _, stderr := runForTest(t, "--config", fx.configPath, "launch", "settings")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "another kiosk is running")
}

func TestDoctorReady(t *testing.T) {
	fx := writeFixture(t, "env")

	code, stdout, stderr := runForTest(t, "--config", fx.configPath, "doctor")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Kiosk ready")
	assert.Contains(t, stdout, "[integrity]", "unlocked config is reported")
}

func TestDoctorNotReady(t *testing.T) {
	fx := writeFixture(t, "ranortv-no-such-sandbox-tool")

	code, stdout, stderr := runForTest(t, "--config", fx.configPath, "doctor", "--json")
	assert.Equal(t, 1, code)
	assert.Empty(t, stderr)

	var result struct {
		Valid  bool `json:"valid"`
		Errors []struct {
			Category string `json:"category"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, "sandbox", result.Errors[0].Category)
}

func TestConfigLockAndVerify(t *testing.T) {
	fx := writeFixture(t, "env")

	code, _, stderr := runForTest(t, "--config", fx.configPath, "config", "verify")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "config lock")

	code, stdout, stderr := runForTest(t, "--config", fx.configPath, "config", "lock")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Locked config.yaml (blake3 ")

	code, stdout, _ = runForTest(t, "--config", fx.configPath, "config", "verify")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "matches its checksums")

	f, err := os.OpenFile(fx.configPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("# edited\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	code, _, _ = runForTest(t, "--config", fx.configPath, "config", "verify")
	assert.Equal(t, 1, code)
}

func TestRunKioskStopsOnFrontExit(t *testing.T) {
	fx := writeFixture(t, "env")
	cfg, err := config.Load(fx.configPath)
	require.NoError(t, err)

	var sawApps int
	err = runKiosk(context.Background(), cfg, false, io.Discard, func(ctx context.Context, rt *kioskRuntime) error {
		sawApps = rt.catalog.Len()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, sawApps)

	assertLockFree(t, fx.statePath)
}

func TestRunKioskRoutesAppOutput(t *testing.T) {
	fx := writeFixture(t, "env")
	cfg, err := config.Load(fx.configPath)
	require.NoError(t, err)

	kodi := filepath.Join(cfg.AppsDir, "kodi", "kodi")
	require.NoError(t, os.WriteFile(kodi, []byte("#!/bin/sh\necho kodi-says-hello\n"), 0o755))

	sink, err := os.Create(filepath.Join(t.TempDir(), "apps.log"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	err = runKiosk(context.Background(), cfg, false, sink, func(ctx context.Context, rt *kioskRuntime) error {
		_, err := kiosk.Query(ctx, rt.loop, func(s *kiosk.Session) (launch.Outcome, error) {
			return s.Launch(ctx, "kodi")
		})
		return err
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(sink.Name())
		return err == nil && strings.Contains(string(data), "kodi-says-hello")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestLogLevelFlagIsValidated(t *testing.T) {
	fx := writeFixture(t, "env")

	code, _, stderr := runForTest(t, "--config", fx.configPath, "--log-level", "chatty", "apps")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "--log-level")
	assert.Contains(t, stderr, "service.log_level")

	code, _, stderr = runForTest(t, "--config", fx.configPath, "--log-level", "debug", "apps")
	assert.Equal(t, 0, code, stderr)
}
