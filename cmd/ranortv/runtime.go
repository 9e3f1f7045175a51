package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/mattjoyce/ranortv/internal/api"
	"github.com/mattjoyce/ranortv/internal/auth"
	"github.com/mattjoyce/ranortv/internal/catalog"
	"github.com/mattjoyce/ranortv/internal/config"
	"github.com/mattjoyce/ranortv/internal/events"
	"github.com/mattjoyce/ranortv/internal/history"
	"github.com/mattjoyce/ranortv/internal/kiosk"
	"github.com/mattjoyce/ranortv/internal/launch"
	"github.com/mattjoyce/ranortv/internal/lock"
	"github.com/mattjoyce/ranortv/internal/log"
	"github.com/mattjoyce/ranortv/internal/metrics"
	"github.com/mattjoyce/ranortv/internal/sandbox"
	"github.com/mattjoyce/ranortv/internal/storage"
)

// loadConfig resolves --config (or discovers one) and applies --log-level.
// It returns the config file path, empty when running on defaults.
func loadConfig(cmd *cli.Command) (*config.Config, string, error) {
	path := cmd.String("config")
	if path == "" {
		found, err := config.Discover()
		switch {
		case errors.Is(err, config.ErrNoConfig):
		case err != nil:
			return nil, "", err
		default:
			path = found
		}
	}

	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg, err = config.LoadDefaults()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}

	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.Service.LogLevel = lvl
		if err := config.Validate(cfg); err != nil {
			return nil, "", fmt.Errorf("--log-level: %w", err)
		}
	}
	return cfg, path, nil
}

// setupLogging routes logs to w, or to service.log_file when one is set.
// It returns the sink in use and a closer that releases the log file.
func setupLogging(cfg *config.Config, w io.Writer) (io.Writer, func(), error) {
	if cfg.Service.LogFile == "" {
		log.SetupWriter(cfg.Service.LogLevel, cfg.Service.LogFormat, w)
		return w, func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Service.LogFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Service.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetupWriter(cfg.Service.LogLevel, cfg.Service.LogFormat, f)
	return f, func() { _ = f.Close() }, nil
}

// kioskRuntime is every long-lived component of a running kiosk.
type kioskRuntime struct {
	cfg     *config.Config
	lock    *lock.PIDLock
	db      *sql.DB
	history *history.Store
	catalog *catalog.Catalog
	sandbox *sandbox.Launcher
	hub     *events.Hub
	metrics *metrics.Metrics
	loop    *kiosk.Loop
}

// openRuntime takes the instance lock, opens state and builds the session.
// The loop is constructed but not started. A non-nil appOutput receives the
// output of launched apps; nil leaves them on the launcher's terminal.
func openRuntime(ctx context.Context, cfg *config.Config, appOutput io.Writer) (*kioskRuntime, error) {
	logger := log.WithComponent("kiosk")

	pidLock, err := lock.AcquirePIDLock(lock.PathFor(cfg.State.Path))
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return nil, fmt.Errorf("another kiosk is running: %w", err)
		}
		return nil, err
	}

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		_ = pidLock.Release()
		return nil, fmt.Errorf("open state: %w", err)
	}

	hist := history.New(db)
	if cfg.State.HistoryRetention > 0 {
		pruned, err := hist.Prune(ctx, cfg.State.HistoryRetention)
		if err != nil {
			logger.Warn("prune launch history", "error", err)
		} else if pruned > 0 {
			logger.Info("pruned launch history", "entries", pruned)
		}
	}

	cat := catalog.Load(cfg.AppsDir, catalog.WithFeaturedLimit(cfg.Launcher.FeaturedLimit))
	for _, s := range cat.Skipped() {
		logger.Warn("skipped app directory", "dir", s.Dir, "reason", s.Reason)
	}

	sbOpts := []sandbox.Option{sandbox.WithTool(cfg.Launcher.Sandbox.Tool, cfg.Launcher.Sandbox.Flags...)}
	if appOutput != nil {
		sbOpts = append(sbOpts, sandbox.WithOutput(appOutput))
	}
	sb := sandbox.New(sbOpts...)
	if _, err := sb.CheckTool(); err != nil {
		logger.Warn("sandbox tool unavailable; launches will fail", "tool", sb.Tool(), "error", err)
	}

	hub := events.NewHub(events.DefaultCapacity)
	m := metrics.New()
	session := kiosk.NewSession(cat, launch.New(sb, launch.DefaultHandlers(hub)),
		kiosk.WithRecorder(hist),
		kiosk.WithPublisher(hub),
		kiosk.WithMetrics(m),
		kiosk.WithStoreFeed(cfg.StoreFeed),
	)

	logger.Info("kiosk ready",
		"apps_dir", cfg.AppsDir,
		"apps", cat.Len(),
		"installed", cat.ViewLen(catalog.ViewInstalled),
		"fingerprint", cat.Fingerprint(),
	)

	return &kioskRuntime{
		cfg:     cfg,
		lock:    pidLock,
		db:      db,
		history: hist,
		catalog: cat,
		sandbox: sb,
		hub:     hub,
		metrics: m,
		loop:    kiosk.NewLoop(session),
	}, nil
}

// startLoop runs the kiosk loop until ctx ends. The returned channel closes
// once the loop has stopped.
func (rt *kioskRuntime) startLoop(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rt.loop.Run(ctx)
	}()
	return done
}

// apiServer builds the HTTP server from the api config section.
func (rt *kioskRuntime) apiServer() *api.Server {
	tokens := make([]auth.TokenConfig, 0, len(rt.cfg.API.Auth.Tokens))
	for _, t := range rt.cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{Name: t.Name, Token: t.Token, Scopes: t.Scopes})
	}
	return api.New(api.Config{
		Listen: rt.cfg.API.Listen,
		APIKey: rt.cfg.API.Auth.APIKey,
		Tokens: tokens,
	}, rt.loop, rt.hub, rt.history, rt.metrics, log.WithComponent("api"))
}

func (rt *kioskRuntime) Close() error {
	var errs []error
	if err := rt.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close state: %w", err))
	}
	if err := rt.lock.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release lock: %w", err))
	}
	return errors.Join(errs...)
}
