package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/neox5/seqbox/internal/config"
	"github.com/prometheus/client_golang/prometheus"
)

// Source is the generated metrics side: the currently published registry
// and the number of generators writing to it.
type Source interface {
	prometheus.Gatherer
	Running() int
}

// Reloader replaces the running generators with a freshly loaded
// configuration. It returns only after the new generators run.
type Reloader interface {
	Reload(ctx context.Context) error
}

// PrometheusExporter serves the pull endpoint and the reload control path.
type PrometheusExporter struct {
	addr     string
	path     string
	server   *http.Server
	internal *internalMetrics
}

// NewPrometheusExporter creates a new Prometheus HTTP exporter.
func NewPrometheusExporter(
	cfg config.PrometheusExportConfig,
	source Source,
	reloader Reloader,
	internalMetricsEnabled bool,
) *PrometheusExporter {
	addr := fmt.Sprintf(":%d", cfg.Port)

	e := &PrometheusExporter{
		addr: addr,
		path: cfg.Path,
	}

	gatherer := prometheus.Gatherer(source)
	var internalRegistry *prometheus.Registry
	if internalMetricsEnabled {
		internalRegistry, e.internal = createInternalRegistry(source)
		gatherer = prometheus.Gatherers{internalRegistry, source}
	}

	e.server = createHTTPServer(addr, cfg.Path, gatherer, internalRegistry, e.reloadHandler(reloader))
	return e
}

// Handler returns the HTTP handler with all routes.
func (e *PrometheusExporter) Handler() http.Handler {
	return e.server.Handler
}

// Start begins serving HTTP requests and blocks until ctx is cancelled.
func (e *PrometheusExporter) Start(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		slog.Info("starting prometheus exporter", "addr", e.addr, "path", e.path)
		if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return e.Stop()
	}
}

// Stop gracefully stops the exporter.
func (e *PrometheusExporter) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down prometheus exporter")
	return e.server.Shutdown(ctx)
}

// reloadHandler triggers a synchronous reload.
func (e *PrometheusExporter) reloadHandler(reloader Reloader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		err := reloader.Reload(r.Context())
		e.internal.observeReload(err)
		if err != nil {
			slog.Error("reload failed", "error", err)
			http.Error(w, fmt.Sprintf("reload failed: %v", err), http.StatusInternalServerError)
			return
		}

		slog.Info("configuration reloaded, metrics restarted")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("OK"))
	})
}
