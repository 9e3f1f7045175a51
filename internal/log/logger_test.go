package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func resetForTest() {
	logger = nil
	once = *new(sync.Once)
}

func TestSetupWriterJSON(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	var buf bytes.Buffer
	SetupWriter("DEBUG", "json", &buf)
	if logger == nil {
		t.Fatal("Logger should not be nil")
	}

	Get().Debug("scan started", "dir", "/apps")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if out["msg"] != "scan started" {
		t.Errorf("Expected msg 'scan started', got %v", out["msg"])
	}
	if out["dir"] != "/apps" {
		t.Errorf("Expected dir '/apps', got %v", out["dir"])
	}
}

func TestSetupWriterText(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	var buf bytes.Buffer
	SetupWriter("info", "text", &buf)
	Get().Info("kiosk ready")

	if !strings.Contains(buf.String(), "msg=\"kiosk ready\"") {
		t.Errorf("expected text handler output, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))
	t.Cleanup(resetForTest)

	WithComponent("catalog").Info("hello")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if out["component"] != "catalog" {
		t.Errorf("Expected component 'catalog', got %v", out["component"])
	}
}

func TestWithLaunch(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))
	t.Cleanup(resetForTest)

	WithLaunch("launch-123").Info("launch msg")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if out["launch_id"] != "launch-123" {
		t.Errorf("Expected launch_id 'launch-123', got %v", out["launch_id"])
	}
}
