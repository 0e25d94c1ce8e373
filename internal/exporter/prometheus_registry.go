package exporter

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Internal metric names
const (
	reloadsTotalName      = "seqbox_reloads_total"
	lastReloadSuccessName = "seqbox_last_reload_success_timestamp_seconds"
	generatorsRunningName = "seqbox_generators_running"
	reloadResultSuccess   = "success"
	reloadResultFailure   = "failure"
)

// internalMetrics describes seqbox itself. They live in their own registry
// so they survive reloads of the generated metrics.
type internalMetrics struct {
	reloadsTotal      *prometheus.CounterVec
	lastReloadSuccess prometheus.Gauge
}

// createInternalRegistry creates and populates the self-monitoring registry.
func createInternalRegistry(source Source) (*prometheus.Registry, *internalMetrics) {
	reg := prometheus.NewRegistry()

	m := &internalMetrics{
		reloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: reloadsTotalName,
			Help: "Total number of configuration reloads by result",
		}, []string{"result"}),
		lastReloadSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: lastReloadSuccessName,
			Help: "Timestamp of the last successful configuration reload",
		}),
	}

	running := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: generatorsRunningName,
		Help: "Number of running metric generators",
	}, func() float64 {
		return float64(source.Running())
	})

	reg.MustRegister(m.reloadsTotal, m.lastReloadSuccess, running)

	// Both results show up from the first scrape
	m.reloadsTotal.WithLabelValues(reloadResultSuccess)
	m.reloadsTotal.WithLabelValues(reloadResultFailure)

	slog.Info("registered internal metrics",
		"metrics", []string{reloadsTotalName, lastReloadSuccessName, generatorsRunningName})

	return reg, m
}

// observeReload records a reload outcome. Safe on a nil receiver.
func (m *internalMetrics) observeReload(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.reloadsTotal.WithLabelValues(reloadResultFailure).Inc()
		return
	}
	m.reloadsTotal.WithLabelValues(reloadResultSuccess).Inc()
	m.lastReloadSuccess.Set(float64(time.Now().Unix()))
}
