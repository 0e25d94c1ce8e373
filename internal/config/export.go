package config

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

const (
	// Prometheus defaults
	DefaultPrometheusPort = 9000
	DefaultPrometheusPath = "/metrics/"

	// OTEL defaults
	DefaultOTELPushInterval = 10 * time.Second
	DefaultOTELTransport    = "grpc"
	DefaultOTELHost         = "localhost"
	DefaultOTELPortGRPC     = 4317
	DefaultOTELPortHTTP     = 4318
	DefaultServiceName      = "seqbox"
)

// ExportConfig defines how metrics are exposed.
type ExportConfig struct {
	Prometheus PrometheusExportConfig
	OTEL       *OTELExportConfig
}

// Validate applies defaults and validates export configuration.
func (e *ExportConfig) Validate() error {
	if err := e.Prometheus.Validate(); err != nil {
		return err
	}
	if e.OTEL != nil && e.OTEL.Enabled {
		if err := e.OTEL.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// OTELEnabled reports whether generated values are mirrored over OTLP.
func (e *ExportConfig) OTELEnabled() bool {
	return e.OTEL != nil && e.OTEL.Enabled
}

// PrometheusExportConfig defines the pull endpoint. It is always served.
type PrometheusExportConfig struct {
	Port int
	Path string
}

// Validate applies defaults and validates Prometheus configuration.
func (c *PrometheusExportConfig) Validate() error {
	if c.Port == 0 {
		c.Port = DefaultPrometheusPort
	}
	if c.Path == "" {
		c.Path = DefaultPrometheusPath
	}

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid prometheus port: %d", c.Port)
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("invalid prometheus path %q: must start with /", c.Path)
	}
	if c.Path == "/" || c.Path == ReloadPath {
		return fmt.Errorf("invalid prometheus path %q: reserved", c.Path)
	}
	return nil
}

// ReloadPath is the HTTP path that triggers a configuration reload.
const ReloadPath = "/-/reload"

// OTELExportConfig defines OTLP push settings.
type OTELExportConfig struct {
	Enabled   bool
	Transport string
	Host      string
	Port      int
	Interval  time.Duration
	Resource  map[string]string
	Headers   map[string]string
}

// Validate applies defaults and validates OTEL configuration.
func (c *OTELExportConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Transport == "" {
		c.Transport = DefaultOTELTransport
	}
	if c.Transport != "grpc" && c.Transport != "http" {
		return fmt.Errorf("invalid transport: %s (must be grpc or http)", c.Transport)
	}

	if c.Host == "" {
		c.Host = DefaultOTELHost
	}

	// Port default depends on transport
	if c.Port == 0 {
		if c.Transport == "grpc" {
			c.Port = DefaultOTELPortGRPC
		} else {
			c.Port = DefaultOTELPortHTTP
		}
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid otel port: %d", c.Port)
	}

	if c.Interval == 0 {
		c.Interval = DefaultOTELPushInterval
	}
	if c.Interval < 0 {
		return fmt.Errorf("invalid otel interval: %s", c.Interval)
	}

	if c.Resource == nil {
		c.Resource = make(map[string]string)
	}
	if _, exists := c.Resource["service.name"]; !exists {
		c.Resource["service.name"] = DefaultServiceName
	}

	return nil
}

// Endpoint returns the collector address.
func (c *OTELExportConfig) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// resolveExport converts raw export config to resolved export config
func resolveExport(raw *RawExportConfig) (ExportConfig, error) {
	result := ExportConfig{
		Prometheus: PrometheusExportConfig{
			Port: raw.Prometheus.Port,
			Path: raw.Prometheus.Path,
		},
	}

	if raw.OTEL != nil {
		result.OTEL = &OTELExportConfig{
			Enabled:   raw.OTEL.Enabled,
			Transport: raw.OTEL.Transport,
			Host:      raw.OTEL.Host,
			Port:      raw.OTEL.Port,
			Interval:  raw.OTEL.Interval,
			Resource:  copyStringMap(raw.OTEL.Resource),
			Headers:   copyStringMap(raw.OTEL.Headers),
		}
	}

	if err := result.Validate(); err != nil {
		return ExportConfig{}, err
	}
	return result, nil
}

// copyStringMap creates a copy of a string map (handles nil)
func copyStringMap(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	maps.Copy(dst, src)
	return dst
}
