package config

import (
	"time"

	"go.yaml.in/yaml/v4"
)

// RawExportConfig defines how metrics are exposed
type RawExportConfig struct {
	Prometheus RawPrometheusExportConfig `yaml:"prometheus"`
	OTEL       *RawOTELExportConfig      `yaml:"otel,omitempty"`
}

// RawPrometheusExportConfig defines Prometheus pull endpoint settings
type RawPrometheusExportConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// RawOTELExportConfig defines OTEL push settings
type RawOTELExportConfig struct {
	Enabled   bool              `yaml:"enabled"`
	Transport string            `yaml:"transport"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	Interval  time.Duration     `yaml:"interval"`
	Resource  map[string]string `yaml:"resource,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
}

// RawSettingsConfig holds general application settings
type RawSettingsConfig struct {
	Seed            *uint64                  `yaml:"seed,omitempty"`
	InternalMetrics RawInternalMetricsConfig `yaml:"internal_metrics"`
}

// RawInternalMetricsConfig controls seqbox's self-monitoring metrics
type RawInternalMetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// UnmarshalYAML accepts both `internal_metrics: true` and the object form
func (c *RawInternalMetricsConfig) UnmarshalYAML(value *yaml.Node) error {
	var simple bool
	if err := value.Decode(&simple); err == nil {
		c.Enabled = simple
		return nil
	}

	type internalMetricsConfig RawInternalMetricsConfig
	var full internalMetricsConfig
	if err := value.Decode(&full); err != nil {
		return err
	}
	*c = RawInternalMetricsConfig(full)
	return nil
}
