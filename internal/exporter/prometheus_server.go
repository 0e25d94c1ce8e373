package exporter

import (
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"

	"github.com/neox5/seqbox/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// createHTTPServer creates an HTTP server with index, metrics and reload routes.
func createHTTPServer(
	addr string,
	path string,
	gatherer prometheus.Gatherer,
	internalRegistry *prometheus.Registry,
	reload http.Handler,
) *http.Server {
	mux := http.NewServeMux()

	// Create base handler
	baseHandler := promhttp.HandlerFor(
		gatherer,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	)

	// Conditionally wrap with instrumentation
	var handler http.Handler
	if internalRegistry != nil {
		handler = promhttp.InstrumentMetricHandler(internalRegistry, baseHandler)
	} else {
		handler = baseHandler
	}

	// Wrap with debug logging
	handler = loggingMiddleware("prometheus scrape", handler)

	mux.Handle(path, handler)
	// Serve both /metrics and /metrics/ without a redirect
	if trimmed := strings.TrimSuffix(path, "/"); trimmed != path && trimmed != "" {
		mux.Handle(trimmed, handler)
	}
	mux.Handle(config.ReloadPath, loggingMiddleware("reload request", reload))
	mux.Handle("/{$}", indexHandler(path))

	return &http.Server{
		Addr:    addr,
		Handler: mux,
	}
}

// indexHandler serves a page linking to the metrics path.
func indexHandler(path string) http.Handler {
	page := fmt.Sprintf("<a href=\"%s\">Metrics</a>", html.EscapeString(path))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	})
}

// loggingMiddleware logs requests when debug logging is enabled
func loggingMiddleware(msg string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.Debug(msg, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
