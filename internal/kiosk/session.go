// Package kiosk owns the launcher state and serializes every access to it.
//
// A Session bundles the catalog, the navigation machine and the dispatcher.
// It is not safe for concurrent use; a Loop owns it and runs submitted
// closures one at a time, so front-ends never touch it directly.
package kiosk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/ranortv/internal/catalog"
	"github.com/mattjoyce/ranortv/internal/events"
	"github.com/mattjoyce/ranortv/internal/history"
	"github.com/mattjoyce/ranortv/internal/launch"
	"github.com/mattjoyce/ranortv/internal/log"
	"github.com/mattjoyce/ranortv/internal/metrics"
	"github.com/mattjoyce/ranortv/internal/nav"
	"github.com/mattjoyce/ranortv/internal/sandbox"
)

// Recorder persists launch attempts. *history.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) (string, error)
}

// Session is the single-owner launcher state.
type Session struct {
	catalog    *catalog.Catalog
	nav        *nav.Machine
	dispatcher *launch.Dispatcher
	recorder   Recorder
	pub        events.Publisher
	metrics    *metrics.Metrics
	storeFeed  []catalog.App
	logger     *slog.Logger
	rev        uint64
}

// Option configures a Session.
type Option func(*Session)

// WithRecorder persists every launch attempt.
func WithRecorder(r Recorder) Option { return func(s *Session) { s.recorder = r } }

// WithPublisher announces navigation, launch and catalog activity.
func WithPublisher(p events.Publisher) Option { return func(s *Session) { s.pub = p } }

// WithMetrics counts activity.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Session) { s.metrics = m } }

// WithStoreFeed sets the records RefreshStore applies.
func WithStoreFeed(feed []catalog.App) Option {
	return func(s *Session) { s.storeFeed = append([]catalog.App(nil), feed...) }
}

// NewSession wires a session around an already loaded catalog.
func NewSession(c *catalog.Catalog, d *launch.Dispatcher, opts ...Option) *Session {
	s := &Session{
		catalog:    c,
		nav:        nav.New(),
		dispatcher: d,
		pub:        events.Discard,
		logger:     log.WithComponent("kiosk"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.updateCatalogMetrics()
	return s
}

// Catalog returns the owned catalog. Callers must stay on the loop.
func (s *Session) Catalog() *catalog.Catalog { return s.catalog }

// Nav returns a snapshot of the navigation state.
func (s *Session) Nav() nav.State { return s.nav.State() }

// Focused returns the app under the cursor.
func (s *Session) Focused() (catalog.App, bool) { return s.nav.Focused(s.catalog) }

// Navigate applies one input event. A Select resolves to Launch; its error is
// returned but never changes catalog or navigation state.
func (s *Session) Navigate(ctx context.Context, ev nav.Event) (nav.State, error) {
	s.metrics.RecordNav(ev.Kind.String())

	err := s.nav.Handle(ctx, ev, s.catalog, nav.LauncherFunc(func(ctx context.Context, appID string) error {
		_, err := s.Launch(ctx, appID)
		return err
	}))
	state := s.nav.State()
	if ev.Kind != nav.Select {
		s.rev++
		s.pub.Publish(events.NavMoved, map[string]any{
			"event": ev.String(),
			"tab":   state.Tab,
			"focus": state.Current(),
		})
	}
	return state, err
}

// Launch dispatches appID and records the attempt. Failures are logged,
// counted and returned; the session stays usable.
func (s *Session) Launch(ctx context.Context, appID string) (launch.Outcome, error) {
	source := SourceFrom(ctx)
	logger := s.logger.With("app_id", appID, "source", source)
	s.pub.Publish(events.LaunchRequested, map[string]string{"app_id": appID, "source": source})

	out, err := s.dispatcher.Dispatch(ctx, s.catalog, appID)

	entry := history.Entry{
		AppID:  appID,
		Route:  out.Route.String(),
		Target: out.Target,
		Source: source,
	}
	switch {
	case err != nil:
		entry.Status = history.StatusFailed
		entry.Error = FailureReason(err)
		logger.Warn("launch failed", "route", out.Route.String(), "error", err)
		s.pub.Publish(events.LaunchFailed, map[string]string{
			"app_id": appID,
			"route":  out.Route.String(),
			"reason": entry.Error,
			"error":  err.Error(),
		})
	case out.Route == launch.RouteSandbox:
		entry.Status = history.StatusSpawned
		entry.PID = out.Handle.PID
		logger.Info("app launched", "pid", out.Handle.PID, "target", out.Target)
		s.pub.Publish(events.LaunchSpawned, out)
	default:
		entry.Status = history.StatusOpened
		logger.Info("builtin opened", "target", out.Target)
	}
	s.metrics.RecordLaunch(out.Route.String(), string(entry.Status))

	if s.recorder != nil {
		id, recErr := s.recorder.Record(ctx, entry)
		if recErr != nil {
			logger.Error("record launch", "error", recErr)
		} else {
			log.WithLaunch(id).Debug("launch recorded", "app_id", appID, "status", entry.Status)
		}
	}
	return out, err
}

// RefreshStore upserts the store feed, re-derives the views and re-clamps
// navigation. It returns how many records were applied.
func (s *Session) RefreshStore(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	applied, err := s.catalog.UpsertMany(s.storeFeed)
	s.nav.Sync(s.catalog)
	s.rev++
	s.updateCatalogMetrics()
	if s.metrics != nil {
		s.metrics.StoreRefreshes.Inc()
	}

	s.pub.Publish(events.CatalogRefreshed, map[string]any{
		"applied":     applied,
		"installed":   s.catalog.ViewLen(catalog.ViewInstalled),
		"store":       s.catalog.ViewLen(catalog.ViewStore),
		"fingerprint": s.catalog.Fingerprint(),
	})
	if err != nil {
		s.logger.Warn("store refresh skipped records", "applied", applied, "error", err)
		return applied, fmt.Errorf("refresh store: %w", err)
	}
	s.logger.Info("store refreshed", "applied", applied)
	return applied, nil
}

// Snapshot is a copy of everything a presentation layer renders. Rev counts
// navigation moves and store refreshes, so a lower Rev is an older snapshot.
type Snapshot struct {
	Nav         nav.State     `json:"nav"`
	Featured    []catalog.App `json:"featured"`
	Installed   []catalog.App `json:"installed"`
	Store       []catalog.App `json:"store"`
	Fingerprint string        `json:"fingerprint"`
	Rev         uint64        `json:"rev"`
}

// View returns the apps of tab.
func (s Snapshot) View(tab nav.Tab) []catalog.App {
	switch tab {
	case nav.TabFeatured:
		return s.Featured
	case nav.TabInstalled:
		return s.Installed
	case nav.TabStore:
		return s.Store
	default:
		return nil
	}
}

// Snapshot copies the current state.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Nav:         s.nav.State(),
		Featured:    s.catalog.Featured(),
		Installed:   s.catalog.Installed(),
		Store:       s.catalog.Store(),
		Fingerprint: s.catalog.Fingerprint(),
		Rev:         s.rev,
	}
}

func (s *Session) updateCatalogMetrics() {
	sizes := make(map[string]int, len(catalog.Views))
	for _, v := range catalog.Views {
		sizes[v.String()] = s.catalog.ViewLen(v)
	}
	s.metrics.SetCatalog(sizes, len(s.catalog.Skipped()))
}

// FailureReason condenses a dispatch error into a stable label.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, launch.ErrUnknownApp):
		return "unknown_app"
	case errors.Is(err, launch.ErrUnknownBuiltin):
		return "unknown_builtin"
	}
	if kind := sandbox.KindOf(err); kind != 0 {
		return kind.String()
	}
	return "error"
}

type sourceKey struct{}

// WithSource tags ctx with the front-end that issued a request.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFrom returns the tag set by WithSource, or "unknown".
func SourceFrom(ctx context.Context) string {
	if v, ok := ctx.Value(sourceKey{}).(string); ok && v != "" {
		return v
	}
	return "unknown"
}
