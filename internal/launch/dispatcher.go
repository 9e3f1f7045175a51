// Package launch routes a launch request to a builtin handler or the sandbox.
package launch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/ranortv/internal/catalog"
	"github.com/mattjoyce/ranortv/internal/events"
	"github.com/mattjoyce/ranortv/internal/log"
	"github.com/mattjoyce/ranortv/internal/sandbox"
)

//go:generate mockgen -destination=mocks/mock_spawner.go -package=mocks github.com/mattjoyce/ranortv/internal/launch Spawner

var (
	// ErrUnknownApp is returned when the requested ID is not in the catalog.
	ErrUnknownApp = errors.New("unknown app")
	// ErrUnknownBuiltin is returned for a builtin tag with no registered handler.
	ErrUnknownBuiltin = errors.New("unknown builtin")
)

// Spawner starts external executables.
type Spawner interface {
	LaunchSandboxed(ctx context.Context, path string) (sandbox.Handle, error)
}

// Lookup resolves app IDs. *catalog.Catalog satisfies it.
type Lookup interface {
	Get(id string) (catalog.App, bool)
}

// Handler opens a builtin app.
type Handler func(ctx context.Context, app catalog.App) error

// Route says which path a launch took.
type Route int

const (
	RouteBuiltin Route = iota + 1
	RouteSandbox
)

func (r Route) String() string {
	switch r {
	case RouteBuiltin:
		return "builtin"
	case RouteSandbox:
		return "sandbox"
	default:
		return "none"
	}
}

// MarshalText renders the route name in JSON payloads.
func (r Route) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Outcome describes a completed dispatch. Handle is set only for sandbox launches.
type Outcome struct {
	AppID  string          `json:"app_id"`
	Route  Route           `json:"route"`
	Target string          `json:"target"`
	Handle *sandbox.Handle `json:"handle,omitempty"`
}

// Dispatcher maps catalog records to launch routes.
type Dispatcher struct {
	spawner  Spawner
	handlers map[catalog.Builtin]Handler
	logger   *slog.Logger
}

// New creates a Dispatcher. A nil handlers map means no builtin can be opened.
func New(spawner Spawner, handlers map[catalog.Builtin]Handler) *Dispatcher {
	h := make(map[catalog.Builtin]Handler, len(handlers))
	for tag, fn := range handlers {
		h[tag] = fn
	}
	return &Dispatcher{
		spawner:  spawner,
		handlers: h,
		logger:   log.WithComponent("launch"),
	}
}

// Dispatch resolves appID and launches it. Builtin targets never reach the
// spawner; path targets always do.
func (d *Dispatcher) Dispatch(ctx context.Context, lookup Lookup, appID string) (Outcome, error) {
	app, ok := lookup.Get(appID)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownApp, appID)
	}

	out := Outcome{AppID: app.ID, Target: app.Target.String()}
	logger := d.logger.With("app_id", app.ID, "target", out.Target)

	if app.Target.IsBuiltin() {
		out.Route = RouteBuiltin
		handler, ok := d.handlers[app.Target.Builtin]
		if !ok {
			logger.Warn("no handler for builtin")
			return out, fmt.Errorf("%w: %q", ErrUnknownBuiltin, app.Target.Builtin)
		}
		if err := handler(ctx, app); err != nil {
			return out, fmt.Errorf("open builtin %q: %w", app.Target.Builtin, err)
		}
		logger.Info("builtin opened")
		return out, nil
	}

	out.Route = RouteSandbox
	h, err := d.spawner.LaunchSandboxed(ctx, app.Target.Path)
	if err != nil {
		logger.Error("launch failed", "error", err)
		return out, fmt.Errorf("launch %q: %w", app.ID, err)
	}
	out.Handle = &h
	return out, nil
}

// DefaultHandlers returns a handler for every known builtin. Each announces
// the opened app on pub; the screens themselves belong to the front-end.
func DefaultHandlers(pub events.Publisher) map[catalog.Builtin]Handler {
	if pub == nil {
		pub = events.Discard
	}
	handlers := make(map[catalog.Builtin]Handler, len(catalog.KnownBuiltins))
	for _, tag := range catalog.KnownBuiltins {
		handlers[tag] = func(_ context.Context, app catalog.App) error {
			pub.Publish(events.BuiltinOpened, map[string]string{
				"app_id":  app.ID,
				"builtin": string(tag),
				"name":    app.Name,
			})
			return nil
		}
	}
	return handlers
}
