package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var errUnsupportedPlatform = errors.New("filesystem detection is unsupported on this platform")

// FSKind classifies the filesystem under the state database.
type FSKind int

const (
	FSUnknown  FSKind = iota
	FSLocal           // disk-backed, survives a reboot
	FSNetwork         // NFS/SMB; SQLite locking is unreliable
	FSVolatile        // tmpfs/ramfs; history is lost on reboot
)

func (k FSKind) String() string {
	switch k {
	case FSLocal:
		return "local"
	case FSNetwork:
		return "network"
	case FSVolatile:
		return "volatile"
	default:
		return "unknown"
	}
}

// Filesystem describes the mount holding a (possibly not yet created) path.
type Filesystem struct {
	// Path is the nearest existing ancestor that was inspected.
	Path string
	Type string
	Kind FSKind
}

// InspectFilesystem reports the filesystem that path will live on.
// Platforms without detection support report FSUnknown.
func InspectFilesystem(path string) (Filesystem, error) {
	return inspectWithDetector(path, detectFilesystem)
}

// CheckLocalFilesystem rejects database paths on network mounts.
func CheckLocalFilesystem(path string) error {
	fs, err := InspectFilesystem(path)
	if err != nil {
		return err
	}
	return requireLocal(path, fs)
}

func requireLocal(path string, fs Filesystem) error {
	if fs.Kind == FSNetwork {
		return fmt.Errorf(
			"state database %q is on network filesystem %q; SQLite requires a local filesystem for reliable locking. Set state.path (or RANORTV_STATE_PATH) to a local file",
			path, fs.Type,
		)
	}
	return nil
}

func inspectWithDetector(path string, detect func(string) (string, FSKind, error)) (Filesystem, error) {
	if path == "" {
		return Filesystem{}, fmt.Errorf("sqlite path is empty")
	}

	existing, err := nearestExistingPath(path)
	if err != nil {
		return Filesystem{}, fmt.Errorf("resolve database path %q: %w", path, err)
	}

	fsType, kind, err := detect(existing)
	if errors.Is(err, errUnsupportedPlatform) {
		return Filesystem{Path: existing, Kind: FSUnknown}, nil
	}
	if err != nil {
		return Filesystem{}, fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}
	return Filesystem{Path: existing, Type: fsType, Kind: kind}, nil
}

func nearestExistingPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	candidate := absPath
	for {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}

		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", absPath)
		}
		candidate = parent
	}
}
