package exporter

import (
	"context"
	"testing"

	"github.com/neox5/seqbox/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNewMeterProvider(t *testing.T) {
	for _, transport := range []string{"grpc", "http"} {
		t.Run(transport, func(t *testing.T) {
			cfg := &config.OTELExportConfig{
				Enabled:   true,
				Transport: transport,
				Headers:   map[string]string{"x-tenant": "test"},
			}
			require.NoError(t, cfg.Validate())

			mp, err := NewMeterProvider(context.Background(), cfg)
			require.NoError(t, err)
			require.NotNil(t, mp)

			// No collector is listening, so the final flush is allowed to fail.
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_ = mp.Shutdown(ctx)
		})
	}
}

func TestNewMeterProviderRejectsUnknownTransport(t *testing.T) {
	cfg := &config.OTELExportConfig{Enabled: true, Transport: "udp", Host: "localhost", Port: 1}

	_, err := NewMeterProvider(context.Background(), cfg)
	assert.ErrorContains(t, err, "unsupported transport")
}

func TestCreateOTELResource(t *testing.T) {
	res, err := createOTELResource(context.Background(), map[string]string{
		"service.name": "seqbox",
		"env":          "test",
	})
	require.NoError(t, err)

	attrs := res.Set()
	v, ok := attrs.Value(attribute.Key("service.name"))
	require.True(t, ok)
	assert.Equal(t, "seqbox", v.AsString())
	v, ok = attrs.Value(attribute.Key("env"))
	require.True(t, ok)
	assert.Equal(t, "test", v.AsString())
}
