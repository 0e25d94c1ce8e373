package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/neox5/seqbox/internal/value"
)

// resolveContext tracks resolution path for error messages
type resolveContext []string

func (ctx resolveContext) push(component, name string) resolveContext {
	return append(slices.Clip(ctx), fmt.Sprintf("%s %q", component, name))
}

func (ctx resolveContext) error(msg string) error {
	if len(ctx) == 0 {
		return errors.New(msg)
	}

	var b strings.Builder
	b.WriteString(msg)
	// Print stack top-down (sequence → metric)
	for i := len(ctx) - 1; i >= 0; i-- {
		b.WriteString("\n  in ")
		b.WriteString(ctx[i])
	}
	return errors.New(b.String())
}

func (ctx resolveContext) errorf(format string, args ...any) error {
	return ctx.error(fmt.Sprintf(format, args...))
}

// Resolve converts raw config into the final immutable config
func Resolve(raw *RawConfig) (*Config, error) {
	slog.Debug("resolving metrics", "count", len(raw.Metrics))

	metrics := make([]MetricConfig, 0, len(raw.Metrics))
	for i := range raw.Metrics {
		ctx := resolveContext{}.push("metric", raw.Metrics[i].Name)

		metric, err := resolveMetric(&raw.Metrics[i], ctx)
		if err != nil {
			return nil, err
		}

		metrics = append(metrics, metric)
		slog.Debug("resolved metric", "metric", metric)
	}

	export, err := resolveExport(&raw.Export)
	if err != nil {
		return nil, err
	}

	if export.OTELEnabled() {
		for _, m := range metrics {
			if !IsValidOTELInstrumentName(m.Name) {
				ctx := resolveContext{}.push("metric", m.Name)
				return nil, ctx.error("name is not a valid OTEL instrument name (letters, digits and _ . - / only, starting with a letter)")
			}
		}
	}

	return &Config{
		Metrics:  metrics,
		Export:   export,
		Settings: resolveSettings(&raw.Settings),
	}, nil
}

// resolveMetric resolves a single metric and its sequences
func resolveMetric(raw *RawMetricConfig, ctx resolveContext) (MetricConfig, error) {
	result := MetricConfig{
		Name:        raw.Name,
		Description: raw.Description,
		Type:        MetricType(strings.ToLower(strings.TrimSpace(raw.Type))),
		Labels:      slices.Clone(raw.Labels),
		Buckets:     slices.Clone(raw.Buckets),
	}

	for i := range raw.Sequence {
		seqCtx := ctx.push("sequence", fmt.Sprint(i))

		seq, err := resolveSequence(&raw.Sequence[i], &result, seqCtx)
		if err != nil {
			return MetricConfig{}, err
		}
		result.Sequences = append(result.Sequences, seq)
	}

	if err := validateMetric(result, ctx); err != nil {
		return MetricConfig{}, err
	}

	return result, nil
}

// resolveSequence resolves one phase against its owning metric
func resolveSequence(raw *RawSequenceConfig, metric *MetricConfig, ctx resolveContext) (SequenceConfig, error) {
	result := SequenceConfig{
		EvalTime: raw.EvalTime.Duration,
		Interval: raw.Interval.Duration,
	}

	if !raw.EvalTime.Set {
		return SequenceConfig{}, ctx.error("eval_time required")
	}
	if !raw.Interval.Set {
		return SequenceConfig{}, ctx.error("interval required")
	}

	// Exactly one of value / values
	switch {
	case raw.Value != nil && raw.Values != nil:
		return SequenceConfig{}, ctx.error("value and values are mutually exclusive")
	case raw.Value != nil:
		rule, err := value.ParseFixed(raw.Value.Text)
		if err != nil {
			return SequenceConfig{}, ctx.errorf("invalid value: %v", err)
		}
		result.Value = rule
	case raw.Values != nil:
		rule, err := value.ParseRange(raw.Values.Text)
		if err != nil {
			return SequenceConfig{}, ctx.errorf("invalid values: %v", err)
		}
		result.Value = rule
	default:
		return SequenceConfig{}, ctx.error("one of value or values required")
	}

	labelValues, err := resolveLabelValues(raw.Labels, metric.Labels, ctx)
	if err != nil {
		return SequenceConfig{}, err
	}
	result.LabelValues = labelValues

	// Operation only matters for gauges
	if metric.Type == MetricTypeGauge {
		op := Operation(strings.ToLower(strings.TrimSpace(raw.Operation)))
		switch op {
		case OperationInc, OperationDec, OperationSet:
			result.Operation = op
		case OperationNone:
			return SequenceConfig{}, ctx.error("operation required for gauge (inc, dec or set)")
		default:
			return SequenceConfig{}, ctx.errorf("invalid operation: %s (must be inc, dec or set)", raw.Operation)
		}
	}

	if metric.Type == MetricTypeCounter && result.Value.Min().Float64() < 0 {
		return SequenceConfig{}, ctx.errorf("counter value %s can be negative", result.Value)
	}

	return result, nil
}

// resolveLabelValues orders a sequence's label mapping by the metric's
// declared label names. The mapping must cover exactly that set.
func resolveLabelValues(values map[string]string, names []string, ctx resolveContext) ([]string, error) {
	if len(names) == 0 {
		if len(values) > 0 {
			return nil, ctx.error("labels set but metric declares no labels")
		}
		return nil, nil
	}

	if values == nil {
		return nil, ctx.errorf("labels required (metric declares %s)", strings.Join(names, ", "))
	}

	result := make([]string, len(names))
	for i, name := range names {
		v, exists := values[name]
		if !exists {
			return nil, ctx.errorf("missing value for label %q", name)
		}
		result[i] = v
	}

	if len(values) != len(names) {
		for key := range values {
			if !slices.Contains(names, key) {
				return nil, ctx.errorf("unknown label %q", key)
			}
		}
	}

	return result, nil
}

// validateMetric validates a resolved metric config
func validateMetric(metric MetricConfig, ctx resolveContext) error {
	if err := validateStruct(metric, ctx); err != nil {
		return err
	}

	if len(metric.Buckets) > 0 {
		if metric.Type != MetricTypeHistogram {
			return ctx.errorf("buckets only valid for histogram, not %s", metric.Type)
		}
		for i := 1; i < len(metric.Buckets); i++ {
			if metric.Buckets[i] <= metric.Buckets[i-1] {
				return ctx.error("buckets must be strictly increasing")
			}
		}
	}

	return nil
}
