package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/mattjoyce/ranortv/internal/catalog"
	"github.com/mattjoyce/ranortv/internal/config"
	"github.com/mattjoyce/ranortv/internal/doctor"
	"github.com/mattjoyce/ranortv/internal/kiosk"
	"github.com/mattjoyce/ranortv/internal/launch"
	"github.com/mattjoyce/ranortv/internal/log"
	"github.com/mattjoyce/ranortv/internal/sandbox"
	"github.com/mattjoyce/ranortv/internal/tui"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Start the kiosk screen, plus the HTTP API when api.enabled is set",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			// The screen belongs to the TUI; logs and app output go to a file or nowhere.
			sink, closeLog, err := setupLogging(cfg, io.Discard)
			if err != nil {
				return err
			}
			defer closeLog()

			return runKiosk(ctx, cfg, cfg.API.Enabled, sink, func(ctx context.Context, rt *kioskRuntime) error {
				return tui.Run(ctx, rt.loop, rt.hub)
			})
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run headless with the HTTP API only",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "Override api.listen"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if listen := cmd.String("listen"); listen != "" {
				cfg.API.Listen = listen
			}
			_, closeLog, err := setupLogging(cfg, cmd.Root().Writer)
			if err != nil {
				return err
			}
			defer closeLog()

			return runKiosk(ctx, cfg, true, nil, nil)
		},
	}
}

// runKiosk owns the process lifecycle: it opens the runtime, starts the loop
// and the API, then waits for front, a signal or a component failure.
// A nil front waits for a signal only. appOutput is passed to openRuntime.
func runKiosk(ctx context.Context, cfg *config.Config, withAPI bool, appOutput io.Writer, front func(context.Context, *kioskRuntime) error) error {
	logger := log.WithComponent("main")

	rt, err := openRuntime(ctx, cfg, appOutput)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var wg sync.WaitGroup
	loopDone := rt.startLoop(ctx)
	defer func() {
		cancel()
		wg.Wait()
		<-loopDone
	}()

	errCh := make(chan error, 2)
	if withAPI {
		server := rt.apiServer()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	frontDone := make(chan error, 1)
	if front != nil {
		go func() { frontDone <- front(ctx, rt) }()
	}

	logger.Info("ranortv running", "api", withAPI, "screen", front != nil)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		return nil
	case err := <-frontDone:
		return err
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		return err
	}
}

func appsCommand() *cli.Command {
	return &cli.Command{
		Name:  "apps",
		Usage: "List the apps in one catalog view",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "view",
				Value: catalog.ViewInstalled.String(),
				Usage: "featured, installed or store",
			},
			&cli.BoolFlag{Name: "refresh", Usage: "Merge the store feed before listing"},
			&cli.BoolFlag{Name: "json", Usage: "Output as JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			view, err := catalog.ParseView(cmd.String("view"))
			if err != nil {
				return err
			}
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			_, closeLog, err := setupLogging(cfg, cmd.Root().ErrWriter)
			if err != nil {
				return err
			}
			defer closeLog()

			cat := catalog.Load(cfg.AppsDir, catalog.WithFeaturedLimit(cfg.Launcher.FeaturedLimit))
			if cmd.Bool("refresh") {
				if _, err := cat.UpsertMany(cfg.StoreFeed); err != nil {
					log.WithComponent("catalog").Warn("store feed partially applied", "error", err)
				}
			}
			apps := cat.View(view)

			w := cmd.Root().Writer
			if cmd.Bool("json") {
				return writeJSON(w, map[string]any{
					"view":        view,
					"fingerprint": cat.Fingerprint(),
					"apps":        apps,
				})
			}
			return printApps(w, apps)
		},
	}
}

func printApps(w io.Writer, apps []catalog.App) error {
	if len(apps) == 0 {
		fmt.Fprintln(w, "No apps.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tVERSION\tTARGET")
	for _, a := range apps {
		target := a.Target.String()
		if !a.Installed {
			target = "(not installed)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Name, dash(a.Category), dash(a.Version), target)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func launchCommand() *cli.Command {
	return &cli.Command{
		Name:      "launch",
		Usage:     "Launch one app and exit",
		ArgsUsage: "<app-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Output the launch outcome as JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("usage: ranortv launch <app-id>")
			}
			appID := cmd.Args().First()

			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			_, closeLog, err := setupLogging(cfg, cmd.Root().ErrWriter)
			if err != nil {
				return err
			}
			defer closeLog()

			rt, err := openRuntime(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			loopCtx, cancel := context.WithCancel(ctx)
			done := rt.startLoop(loopCtx)
			defer func() {
				cancel()
				<-done
			}()

			lctx := kiosk.WithSource(ctx, "cli")
			out, err := kiosk.Query(lctx, rt.loop, func(s *kiosk.Session) (launch.Outcome, error) {
				return s.Launch(lctx, appID)
			})
			if err != nil {
				return fmt.Errorf("launch %s: %w", appID, err)
			}

			w := cmd.Root().Writer
			if cmd.Bool("json") {
				return writeJSON(w, out)
			}
			if out.Route == launch.RouteSandbox && out.Handle != nil {
				fmt.Fprintf(w, "Launched %s (pid %d)\n", out.AppID, out.Handle.PID)
			} else {
				fmt.Fprintf(w, "Opened %s (%s)\n", out.AppID, out.Target)
			}
			return nil
		},
	}
}

func doctorCommand() *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Check the apps dir, sandbox tool, state path and API settings",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Output the report as JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			_, closeLog, err := setupLogging(cfg, cmd.Root().ErrWriter)
			if err != nil {
				return err
			}
			defer closeLog()

			cat := catalog.Load(cfg.AppsDir, catalog.WithFeaturedLimit(cfg.Launcher.FeaturedLimit))
			sb := sandbox.New(sandbox.WithTool(cfg.Launcher.Sandbox.Tool, cfg.Launcher.Sandbox.Flags...))

			var opts []doctor.Option
			if path != "" {
				opts = append(opts, doctor.WithConfigPath(path))
			}
			result := doctor.New(cfg, cat, sb, opts...).Validate()

			w := cmd.Root().Writer
			if cmd.Bool("json") {
				out, err := doctor.FormatJSON(result)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, out)
			} else {
				fmt.Fprint(w, doctor.FormatHuman(result))
			}
			if !result.Valid {
				return errNotReady
			}
			return nil
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Lock or verify the config file",
		Commands: []*cli.Command{
			{
				Name:  "lock",
				Usage: "Record the BLAKE3 hash of the config file",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					path, err := requireConfigPath(cmd)
					if err != nil {
						return err
					}
					manifest, err := config.Lock(path)
					if err != nil {
						return err
					}
					for name, hash := range manifest.Hashes {
						fmt.Fprintf(cmd.Root().Writer, "Locked %s (blake3 %s)\n", name, hash)
					}
					return nil
				},
			},
			{
				Name:  "verify",
				Usage: "Check the config file against its recorded hash",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					path, err := requireConfigPath(cmd)
					if err != nil {
						return err
					}
					if err := config.Verify(path); err != nil {
						return err
					}
					fmt.Fprintf(cmd.Root().Writer, "Config %s matches its checksums.\n", path)
					return nil
				},
			},
		},
	}
}

// requireConfigPath is --config or the discovered file; defaults cannot be locked.
func requireConfigPath(cmd *cli.Command) (string, error) {
	if path := cmd.String("config"); path != "" {
		return path, nil
	}
	return config.Discover()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
