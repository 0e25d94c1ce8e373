package metric

import (
	"context"
	"fmt"

	"github.com/neox5/seqbox/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Instrument is the write handle of one declared metric. Calls that do not
// fit the instrument's type are ignored; label values are positional in
// the metric's declared label order.
type Instrument struct {
	labelNames []string
	collector  prometheus.Collector

	counter  *prometheus.CounterVec
	gauge    *prometheus.GaugeVec
	observer prometheus.ObserverVec

	mirror *mirror
}

// mirror holds the OTEL side of an instrument.
type mirror struct {
	counter   otelmetric.Float64Counter
	gauge     otelmetric.Float64Gauge
	histogram otelmetric.Float64Histogram
}

func newInstrument(m config.MetricConfig) (*Instrument, error) {
	inst := &Instrument{
		labelNames: m.Labels,
	}

	switch m.Type {
	case config.MetricTypeCounter:
		inst.counter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: m.Name,
			Help: m.Description,
		}, m.Labels)
		inst.collector = inst.counter

	case config.MetricTypeGauge:
		inst.gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: m.Name,
			Help: m.Description,
		}, m.Labels)
		inst.collector = inst.gauge

	case config.MetricTypeSummary:
		vec := prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name: m.Name,
			Help: m.Description,
		}, m.Labels)
		inst.observer = vec
		inst.collector = vec

	case config.MetricTypeHistogram:
		buckets := m.Buckets
		if len(buckets) == 0 {
			buckets = prometheus.DefBuckets
		}
		vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    m.Name,
			Help:    m.Description,
			Buckets: buckets,
		}, m.Labels)
		inst.observer = vec
		inst.collector = vec

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}

	inst.precreate(m)
	return inst, nil
}

// precreate initializes every series the sequences will write, so a scrape
// taken before the first emission already shows the complete metric.
func (i *Instrument) precreate(m config.MetricConfig) {
	var sets [][]string
	if len(m.Labels) == 0 {
		sets = append(sets, nil)
	} else {
		for _, seq := range m.Sequences {
			if len(seq.LabelValues) == len(m.Labels) {
				sets = append(sets, seq.LabelValues)
			}
		}
	}

	for _, lvs := range sets {
		switch {
		case i.counter != nil:
			_, _ = i.counter.GetMetricWithLabelValues(lvs...)
		case i.gauge != nil:
			_, _ = i.gauge.GetMetricWithLabelValues(lvs...)
		case i.observer != nil:
			_, _ = i.observer.GetMetricWithLabelValues(lvs...)
		}
	}
}

// mirrorTo creates the OTEL counterpart of the instrument.
func (i *Instrument) mirrorTo(meter otelmetric.Meter, m config.MetricConfig) error {
	var (
		mir mirror
		err error
	)

	switch m.Type {
	case config.MetricTypeCounter:
		mir.counter, err = meter.Float64Counter(m.Name, otelmetric.WithDescription(m.Description))
	case config.MetricTypeGauge:
		mir.gauge, err = meter.Float64Gauge(m.Name, otelmetric.WithDescription(m.Description))
	case config.MetricTypeHistogram:
		opts := []otelmetric.Float64HistogramOption{otelmetric.WithDescription(m.Description)}
		if len(m.Buckets) > 0 {
			opts = append(opts, otelmetric.WithExplicitBucketBoundaries(m.Buckets...))
		}
		mir.histogram, err = meter.Float64Histogram(m.Name, opts...)
	case config.MetricTypeSummary:
		// OTLP has no summary instrument
		mir.histogram, err = meter.Float64Histogram(m.Name, otelmetric.WithDescription(m.Description))
	}
	if err != nil {
		return fmt.Errorf("failed to create otel instrument %q: %w", m.Name, err)
	}

	i.mirror = &mir
	return nil
}

// Add increases a counter or gauge.
func (i *Instrument) Add(v float64, labelValues ...string) {
	switch {
	case i.counter != nil:
		i.counter.WithLabelValues(labelValues...).Add(v)
		if i.mirror != nil {
			i.mirror.counter.Add(context.Background(), v, i.attributes(labelValues))
		}
	case i.gauge != nil:
		g := i.gauge.WithLabelValues(labelValues...)
		g.Add(v)
		i.recordGauge(g, labelValues)
	}
}

// Sub decreases a gauge.
func (i *Instrument) Sub(v float64, labelValues ...string) {
	if i.gauge == nil {
		return
	}
	g := i.gauge.WithLabelValues(labelValues...)
	g.Sub(v)
	i.recordGauge(g, labelValues)
}

// Set sets a gauge.
func (i *Instrument) Set(v float64, labelValues ...string) {
	if i.gauge == nil {
		return
	}
	g := i.gauge.WithLabelValues(labelValues...)
	g.Set(v)
	i.recordGauge(g, labelValues)
}

// Observe records an observation on a summary or histogram.
func (i *Instrument) Observe(v float64, labelValues ...string) {
	if i.observer == nil {
		return
	}
	i.observer.WithLabelValues(labelValues...).Observe(v)
	if i.mirror != nil {
		i.mirror.histogram.Record(context.Background(), v, i.attributes(labelValues))
	}
}

// recordGauge pushes the gauge's resulting value, since OTEL gauges only
// accept absolute values.
func (i *Instrument) recordGauge(g prometheus.Gauge, labelValues []string) {
	if i.mirror == nil {
		return
	}
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return
	}
	i.mirror.gauge.Record(context.Background(), m.GetGauge().GetValue(), i.attributes(labelValues))
}

func (i *Instrument) attributes(labelValues []string) otelmetric.MeasurementOption {
	attrs := make([]attribute.KeyValue, 0, len(labelValues))
	for idx, v := range labelValues {
		if idx < len(i.labelNames) {
			attrs = append(attrs, attribute.String(i.labelNames[idx], v))
		}
	}
	return otelmetric.WithAttributes(attrs...)
}
