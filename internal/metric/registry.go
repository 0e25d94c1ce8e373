package metric

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/neox5/seqbox/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// ErrUnknownType is returned for metric types outside the closed set.
var ErrUnknownType = errors.New("unknown metric type")

// MeterProvider is the push side of a registry: an OTEL provider that can
// be shut down together with the registry it feeds.
type MeterProvider interface {
	otelmetric.MeterProvider
	Shutdown(ctx context.Context) error
}

// Registry owns one generation of instruments. It is built once per
// configuration load and discarded as a whole on reload.
type Registry struct {
	registry *prometheus.Registry
	provider MeterProvider
	meter    otelmetric.Meter

	mu          sync.Mutex
	instruments map[string]*Instrument
}

// Option configures a Registry.
type Option func(*Registry)

// WithMeterProvider mirrors every instrument update into OTEL instruments
// created from provider. The provider is shut down by Close.
func WithMeterProvider(provider MeterProvider) Option {
	return func(r *Registry) {
		r.provider = provider
		r.meter = provider.Meter("seqbox")
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		registry:    prometheus.NewRegistry(),
		instruments: make(map[string]*Instrument),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates the type-appropriate instrument for a metric.
func (r *Registry) Register(m config.MetricConfig) (*Instrument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instruments[m.Name]; exists {
		return nil, fmt.Errorf("metric %q already registered", m.Name)
	}

	inst, err := newInstrument(m)
	if err != nil {
		return nil, err
	}

	if err := r.registry.Register(inst.collector); err != nil {
		return nil, fmt.Errorf("failed to register metric %q: %w", m.Name, err)
	}

	if r.meter != nil {
		if err := inst.mirrorTo(r.meter, m); err != nil {
			r.registry.Unregister(inst.collector)
			return nil, err
		}
	}

	r.instruments[m.Name] = inst

	slog.Debug("registered metric",
		"name", m.Name,
		"type", m.Type,
		"labels", m.Labels)

	return inst, nil
}

// Unregister removes a metric so it no longer appears in scrapes.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, exists := r.instruments[name]
	if !exists {
		return false
	}
	delete(r.instruments, name)
	return r.registry.Unregister(inst.collector)
}

// Len returns the number of registered metrics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instruments)
}

// Gather implements prometheus.Gatherer.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	return r.registry.Gather()
}

// Close flushes and shuts down the OTEL mirror, if any.
func (r *Registry) Close(ctx context.Context) error {
	if r.provider == nil {
		return nil
	}
	if err := r.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down meter provider: %w", err)
	}
	return nil
}
