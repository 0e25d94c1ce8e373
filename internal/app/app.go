package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/neox5/seqbox/internal/config"
	"github.com/neox5/seqbox/internal/exporter"
	"github.com/neox5/seqbox/internal/generator"
	"github.com/neox5/seqbox/internal/metric"
)

// App holds initialized application components.
type App struct {
	ConfigPath         string
	Supervisor         *generator.Supervisor
	PrometheusExporter *exporter.PrometheusExporter

	mu     sync.Mutex
	config *config.Config
}

// New initializes the application from a loaded configuration. Export and
// settings are fixed for the lifetime of the App; reloads only replace the
// metric definitions.
func New(configPath string, cfg *config.Config) *App {
	a := &App{
		ConfigPath: configPath,
		config:     cfg,
	}

	var opts []generator.SupervisorOption
	if cfg.Settings.Seed != nil {
		opts = append(opts, generator.WithSeed(*cfg.Settings.Seed))
	}
	a.Supervisor = generator.NewSupervisor(registryFactory(cfg.Export), opts...)

	a.PrometheusExporter = exporter.NewPrometheusExporter(
		cfg.Export.Prometheus,
		a.Supervisor,
		a,
		cfg.Settings.InternalMetrics.Enabled,
	)

	return a
}

// Config returns the configuration of the running generation.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config
}

// Start launches a generator for every configured metric.
func (a *App) Start() error {
	return startError(a.Supervisor.Start(a.Config().Metrics))
}

// Reload re-reads the configuration file and restarts all generators.
// On any load error the running generation is left untouched.
func (a *App) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg, err := config.Load(a.ConfigPath)
	if err != nil {
		return fmt.Errorf("reload %s: %w", a.ConfigPath, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := startError(a.Supervisor.Reload(cfg.Metrics)); err != nil {
		return err
	}
	next := *a.config
	next.Metrics = cfg.Metrics
	a.config = &next

	slog.Debug("reloaded configuration", "path", a.ConfigPath, "metrics", len(cfg.Metrics))
	return nil
}

// Shutdown stops every generator and flushes the published registry.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Supervisor.Close(ctx)
}

// startError keeps registry failures and downgrades per-metric failures
// to warnings, since the remaining generators are already running.
func startError(err error) error {
	if err == nil || errors.Is(err, generator.ErrRegistry) {
		return err
	}
	slog.Warn("some metrics were not started", "error", err)
	return nil
}

// registryFactory builds registries that mirror into a fresh OTEL meter
// provider per generation when OTEL export is enabled.
func registryFactory(export config.ExportConfig) generator.RegistryFactory {
	if !export.OTELEnabled() {
		return func() (*metric.Registry, error) {
			return metric.NewRegistry(), nil
		}
	}

	otelCfg := export.OTEL
	return func() (*metric.Registry, error) {
		provider, err := exporter.NewMeterProvider(context.Background(), otelCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTEL meter provider: %w", err)
		}
		return metric.NewRegistry(metric.WithMeterProvider(provider)), nil
	}
}
