package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/neox5/seqbox/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const firstConfig = `
config:
  - name: jobs_total
    description: Jobs processed.
    type: counter
    sequence:
      - eval_time: 10
        interval: 10ms
        value: 1
`

const secondConfig = `
config:
  - name: queue_depth
    description: Items waiting.
    type: gauge
    labels: [queue]
    sequence:
      - eval_time: 10
        interval: 10ms
        values: 1-5
        operation: set
        labels:
          queue: default
settings:
  internal_metrics: true
`

const brokenConfig = `
config:
  - name: queue_depth
    description: Items waiting.
    type: gauge
    sequence:
      - eval_time: 10
        interval: 10ms
        value: 1
`

func writeConfig(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
}

func newApp(t *testing.T) (*App, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	writeConfig(t, path, firstConfig)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	a := New(path, cfg)
	require.NoError(t, a.Start())
	t.Cleanup(func() {
		require.NoError(t, a.Shutdown(context.Background()))
	})
	return a, path
}

func names(t *testing.T, a *App) []string {
	t.Helper()
	families, err := a.Supervisor.Gather()
	require.NoError(t, err)
	var out []string
	for _, f := range families {
		out = append(out, f.GetName())
	}
	return out
}

func TestReloadReplacesMetrics(t *testing.T) {
	a, path := newApp(t)
	assert.Equal(t, []string{"jobs_total"}, names(t, a))

	writeConfig(t, path, secondConfig)
	require.NoError(t, a.Reload(context.Background()))

	assert.Equal(t, []string{"queue_depth"}, names(t, a))
	assert.Equal(t, 1, a.Supervisor.Running())
	require.Len(t, a.Config().Metrics, 1)
	assert.Equal(t, "queue_depth", a.Config().Metrics[0].Name)

	// Settings are fixed at startup
	assert.False(t, a.Config().Settings.InternalMetrics.Enabled)
}

func TestReloadKeepsRunningOnInvalidFile(t *testing.T) {
	a, path := newApp(t)

	writeConfig(t, path, brokenConfig)
	err := a.Reload(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operation required")

	assert.Equal(t, []string{"jobs_total"}, names(t, a))
	assert.Equal(t, 1, a.Supervisor.Running())
	assert.Equal(t, "jobs_total", a.Config().Metrics[0].Name)
}

func TestReloadEndpoint(t *testing.T) {
	a, path := newApp(t)
	srv := httptest.NewServer(a.PrometheusExporter.Handler())
	defer srv.Close()

	reload := func() (int, string) {
		resp, err := http.Post(srv.URL+config.ReloadPath, "text/plain", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	writeConfig(t, path, brokenConfig)
	code, body := reload()
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, body, "queue_depth")
	assert.Equal(t, []string{"jobs_total"}, names(t, a))

	writeConfig(t, path, secondConfig)
	code, body = reload()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)
	assert.Equal(t, []string{"queue_depth"}, names(t, a))

	// Keep-alive connections would otherwise show up as leaked goroutines
	http.DefaultClient.CloseIdleConnections()
}

func TestReloadHonorsCancelledContext(t *testing.T) {
	a, path := newApp(t)
	writeConfig(t, path, secondConfig)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, a.Reload(ctx), context.Canceled)
	assert.Equal(t, []string{"jobs_total"}, names(t, a))
}
