package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/neox5/seqbox/internal/app"
	"github.com/neox5/seqbox/internal/config"
	"github.com/neox5/seqbox/internal/monitor"
	"github.com/neox5/seqbox/internal/version"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cmd := &cli.Command{
		Name:    "seqbox",
		Usage:   "Fake Prometheus metric generator driven by configured value sequences",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yml",
				Usage:   "path to configuration file",
				Sources: cli.EnvVars("PDG_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "log level (debug, info, warn, error)",
				Sources: cli.EnvVars("PDG_LOG_LEVEL"),
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "HTTP port, overrides export.prometheus.port",
				Sources: cli.EnvVars("PDG_PORT"),
			},
			&cli.DurationFlag{
				Name:  "monitor-interval",
				Value: monitor.DefaultInterval,
				Usage: "resource log interval, 0 disables",
			},
		},
		Action: serve,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	// Configure logging level
	logLevel := parseLevel(cmd.String("log-level"))
	if cmd.Bool("debug") {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting seqbox", "version", version.String(), "config", configPath)

	// Load configuration
	slog.Debug("--- Configuration Loading ---")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.IsSet("port") {
		cfg.Export.Prometheus.Port = int(cmd.Int("port"))
		if err := cfg.Export.Validate(); err != nil {
			return err
		}
	}
	for _, m := range cfg.Metrics {
		slog.Debug("loaded metric", "metric", m)
	}

	// Setup graceful shutdown
	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Debug("--- Generator Creation ---")
	application := app.New(configPath, cfg)
	if err := application.Start(); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := application.Shutdown(closeCtx); err != nil {
			slog.Warn("failed to flush metrics", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(shutdownCtx)

	g.Go(func() error {
		if err := application.PrometheusExporter.Start(gctx); err != nil {
			return fmt.Errorf("prometheus exporter: %w", err)
		}
		return nil
	})

	if interval := cmd.Duration("monitor-interval"); interval > 0 {
		mon, err := monitor.New(interval, logger, application.Supervisor.Running)
		if err != nil {
			slog.Warn("resource monitor disabled", "error", err)
		} else {
			g.Go(func() error { return mon.Run(gctx) })
		}
	}

	g.Go(func() error {
		reloadOnSignal(gctx, application)
		return nil
	})

	slog.Debug("--- Application Running ---")

	err = g.Wait()
	slog.Debug("--- Shutdown Initiated ---")
	if err != nil {
		return err
	}

	slog.Info("shutdown complete")
	return nil
}

// reloadOnSignal reloads the configuration on every SIGHUP until ctx is done.
func reloadOnSignal(ctx context.Context, application *app.App) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			slog.Info("received SIGHUP, reloading configuration")
			if err := application.Reload(ctx); err != nil {
				slog.Error("reload failed", "error", err)
				continue
			}
			slog.Info("configuration reloaded, metrics restarted")
		}
	}
}

// parseLevel maps a level name to a slog level. Unknown names yield info.
func parseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
