// Package sandbox starts external apps inside fresh network and PID namespaces.
//
// Launches are fire-and-forget: LaunchSandboxed returns as soon as the
// isolation tool has been started, and the child is reaped in the background
// so it never lingers as a zombie. Nothing here waits for the app to exit.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/mattjoyce/ranortv/internal/log"
)

const (
	// DefaultTool is the isolation wrapper.
	DefaultTool = "unshare"
)

// DefaultFlags request new network and PID namespaces. --fork makes the app
// PID 1 of its namespace instead of the wrapper.
var DefaultFlags = []string{"--net", "--pid", "--fork"}

// Kind classifies a spawn failure.
type Kind int

const (
	// KindNotFound means the app executable does not exist.
	KindNotFound Kind = iota + 1
	// KindPermissionDenied means the executable exists but cannot be run.
	KindPermissionDenied
	// KindIsolationUnavailable means the isolation tool is missing.
	KindIsolationUnavailable
	// KindIsolationFailed covers every other start failure.
	KindIsolationFailed
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPermissionDenied:
		return "permission_denied"
	case KindIsolationUnavailable:
		return "isolation_unavailable"
	case KindIsolationFailed:
		return "isolation_failed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// SpawnError reports why an app could not be started.
type SpawnError struct {
	Kind Kind
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from err, or 0 if err is not a SpawnError.
func KindOf(err error) Kind {
	var se *SpawnError
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// Handle identifies a started app. The launcher keeps no reference to it.
type Handle struct {
	PID       int       `json:"pid"`
	Path      string    `json:"path"`
	StartedAt time.Time `json:"started_at"`
}

// Launcher wraps executables in the isolation tool.
type Launcher struct {
	tool     string
	flags    []string
	logger   *slog.Logger
	lookPath func(string) (string, error)
	now      func() time.Time
	stdout   io.Writer
	stderr   io.Writer
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithTool replaces the isolation tool and its flags.
func WithTool(tool string, flags ...string) Option {
	return func(l *Launcher) {
		l.tool = tool
		l.flags = flags
	}
}

// WithOutput sends every app's stdout and stderr to w instead of the
// launcher's own streams. A nil w or io.Discard connects them to the null device.
func WithOutput(w io.Writer) Option {
	return func(l *Launcher) {
		if w == io.Discard {
			w = nil
		}
		l.stdout = w
		l.stderr = w
	}
}

// New creates a Launcher that uses unshare --net --pid --fork by default.
func New(opts ...Option) *Launcher {
	l := &Launcher{
		tool:     DefaultTool,
		flags:    append([]string(nil), DefaultFlags...),
		logger:   log.WithComponent("sandbox"),
		lookPath: exec.LookPath,
		now:      time.Now,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Tool returns the configured isolation tool name.
func (l *Launcher) Tool() string { return l.tool }

// Command returns the full argv used to start path.
func (l *Launcher) Command(path string) []string {
	argv := make([]string, 0, len(l.flags)+2)
	argv = append(argv, l.tool)
	argv = append(argv, l.flags...)
	return append(argv, path)
}

// CheckTool resolves the isolation tool on PATH.
func (l *Launcher) CheckTool() (string, error) {
	resolved, err := l.lookPath(l.tool)
	if err != nil {
		return "", fmt.Errorf("isolation tool %q: %w", l.tool, err)
	}
	return resolved, nil
}

// LaunchSandboxed starts path under the isolation tool and returns once the
// process exists. The app's own exit status is never observed.
//
// ctx only bounds the pre-start checks; a started app outlives it.
func (l *Launcher) LaunchSandboxed(ctx context.Context, path string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	if err := checkExecutable(path); err != nil {
		return Handle{}, err
	}

	tool, err := l.CheckTool()
	if err != nil {
		return Handle{}, &SpawnError{Kind: KindIsolationUnavailable, Path: path, Err: err}
	}

	argv := l.Command(path)
	// Not CommandContext: the app must survive the request that launched it.
	cmd := exec.Command(tool, argv[1:]...)
	cmd.Stdout = l.stdout
	cmd.Stderr = l.stderr

	if err := cmd.Start(); err != nil {
		return Handle{}, &SpawnError{Kind: classifyStart(err), Path: path, Err: err}
	}

	h := Handle{PID: cmd.Process.Pid, Path: path, StartedAt: l.now()}
	l.logger.Info("app started", "path", path, "pid", h.PID, "tool", l.tool)

	go func() {
		err := cmd.Wait()
		l.logger.Debug("sandboxed process exited", "path", path, "pid", h.PID, "error", err)
	}()

	return h, nil
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &SpawnError{Kind: KindNotFound, Path: path, Err: err}
		}
		if errors.Is(err, fs.ErrPermission) {
			return &SpawnError{Kind: KindPermissionDenied, Path: path, Err: err}
		}
		return &SpawnError{Kind: KindIsolationFailed, Path: path, Err: err}
	}
	if info.IsDir() {
		return &SpawnError{Kind: KindPermissionDenied, Path: path, Err: errors.New("is a directory")}
	}
	if info.Mode().Perm()&0o111 == 0 {
		return &SpawnError{Kind: KindPermissionDenied, Path: path, Err: errors.New("not executable")}
	}
	return nil
}

func classifyStart(err error) Kind {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return KindIsolationUnavailable
	case errors.Is(err, fs.ErrPermission):
		return KindPermissionDenied
	default:
		return KindIsolationFailed
	}
}
