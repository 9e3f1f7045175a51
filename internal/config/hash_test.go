package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLockAndVerify(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("apps_dir: /apps\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := Verify(path); !errors.Is(err, ErrNoChecksums) {
		t.Fatalf("Verify before lock = %v, want ErrNoChecksums", err)
	}

	manifest, err := Lock(dir)
	if err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if len(manifest.Hashes["config.yaml"]) != 64 {
		t.Fatalf("unexpected hash %q", manifest.Hashes["config.yaml"])
	}

	info, err := os.Stat(filepath.Join(dir, ChecksumFile))
	if err != nil {
		t.Fatalf("checksums not written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("checksums mode = %v, want 0600", info.Mode().Perm())
	}

	if err := Verify(path); err != nil {
		t.Fatalf("Verify after lock: %v", err)
	}

	if err := os.WriteFile(path, []byte("apps_dir: /tmp/evil\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	err = Verify(path)
	if err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("Verify after tamper = %v, want hash mismatch", err)
	}
}

func TestLoadChecksumsRejectsUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ChecksumFile), []byte("version: 2\nhashes: {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadChecksums(dir); err == nil {
		t.Fatal("expected version error")
	}
}

func TestComputeBlake3HashMissingFile(t *testing.T) {
	if _, err := ComputeBlake3Hash(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
