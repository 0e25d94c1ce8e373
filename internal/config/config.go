package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/neox5/seqbox/internal/value"
)

// Config holds the complete application configuration.
type Config struct {
	Metrics  []MetricConfig
	Export   ExportConfig
	Settings SettingsConfig
}

// MetricType is the closed set of instrument kinds a metric can declare.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeSummary   MetricType = "summary"
	MetricTypeHistogram MetricType = "histogram"
)

// Operation selects how a gauge applies an emitted value.
type Operation string

const (
	OperationNone Operation = ""
	OperationInc  Operation = "inc"
	OperationDec  Operation = "dec"
	OperationSet  Operation = "set"
)

// MetricConfig defines a fully resolved metric. Type and Labels are fixed
// for the lifetime of the config; changing them requires a reload.
type MetricConfig struct {
	Name        string           `yaml:"name" validate:"required,metric_name"`
	Description string           `yaml:"description" validate:"required"`
	Type        MetricType       `yaml:"type" validate:"required,oneof=counter gauge summary histogram"`
	Labels      []string         `yaml:"labels" validate:"unique,dive,label_name"`
	Buckets     []float64        `yaml:"buckets"`
	Sequences   []SequenceConfig `yaml:"sequence" validate:"required,min=1,dive"`
}

// SequenceConfig defines one phase of a metric's emission schedule.
// LabelValues are ordered like the owning metric's Labels.
type SequenceConfig struct {
	EvalTime    time.Duration `yaml:"eval_time" validate:"gt=0"`
	Interval    time.Duration `yaml:"interval" validate:"gt=0"`
	Value       value.Rule    `yaml:"-"`
	LabelValues []string      `yaml:"labels"`
	Operation   Operation     `yaml:"operation"`
}

// LogValue implements slog.LogValuer for structured logging
func (m MetricConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", m.Name),
		slog.String("type", string(m.Type)),
		slog.String("labels", strings.Join(m.Labels, ",")),
		slog.Int("sequences", len(m.Sequences)),
	)
}

// LogValue implements slog.LogValuer for structured logging
func (s SequenceConfig) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Duration("eval_time", s.EvalTime),
		slog.Duration("interval", s.Interval),
		slog.String("value", s.Value.String()),
	}
	if s.Operation != OperationNone {
		attrs = append(attrs, slog.String("operation", string(s.Operation)))
	}
	if len(s.LabelValues) > 0 {
		attrs = append(attrs, slog.String("labels", strings.Join(s.LabelValues, ",")))
	}
	return slog.GroupValue(attrs...)
}
