package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// DefaultInterval is the resource log period.
const DefaultInterval = 30 * time.Second

// Monitor tracks process resource usage, saturation indicators and the
// number of running generators.
type Monitor struct {
	interval time.Duration
	logger   *slog.Logger
	proc     *process.Process
	running  func() int
}

// New creates a new monitor with specified collection interval. running
// reports the live generator count.
func New(interval time.Duration, logger *slog.Logger, running func() int) (*Monitor, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid monitor interval: %s", interval)
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to get process handle: %w", err)
	}

	return &Monitor{
		interval: interval,
		logger:   logger,
		proc:     proc,
		running:  running,
	}, nil
}

// Run collects immediately and then every interval.
// Blocks until context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Immediate first collection
	m.collect(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor shutdown complete")
			return nil
		case <-ticker.C:
			m.collect(ctx)
		}
	}
}

// saturationLevel classifies CPU utilization of the available cores.
func saturationLevel(utilization float64) string {
	switch {
	case utilization > 0.95:
		return "saturated"
	case utilization > 0.80:
		return "high"
	default:
		return "normal"
	}
}

// collect reads current metrics and logs resource usage.
func (m *Monitor) collect(ctx context.Context) {
	processCPU, err := m.proc.CPUPercentWithContext(ctx)
	if err != nil {
		m.logger.Warn("failed to get CPU percent", "error", err)
		processCPU = 0
	}

	cores := runtime.GOMAXPROCS(-1)
	maxCPU := float64(cores * 100)

	utilization := 0.0
	if maxCPU > 0 {
		utilization = processCPU / maxCPU
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	goroutines := runtime.NumGoroutine()

	saturation := saturationLevel(utilization)

	mb := func(b uint64) float64 {
		return float64(b) / (1024 * 1024)
	}
	kb := func(b uint64) float64 {
		return float64(b) / 1024
	}

	m.logger.LogAttrs(
		ctx,
		slog.LevelInfo,
		"resource",
		slog.String("cpu", fmt.Sprintf("%.4f%%", processCPU)),
		slog.String("util", fmt.Sprintf("%.4f%%", utilization*100)),
		slog.Int("cores", cores),
		slog.Int("gor", goroutines),
		slog.Int("gens", m.running()),
		slog.String(
			"mem",
			fmt.Sprintf(
				"alloc:%.2fMB sys:%.2fMB stack:%.0fKB",
				mb(ms.HeapAlloc),
				mb(ms.HeapSys),
				kb(ms.StackInuse),
			),
		),
		slog.Uint64("gc", uint64(ms.NumGC)),
		slog.String("gc_cpu", fmt.Sprintf("%.3f", ms.GCCPUFraction)),
		slog.String("sat", saturation),
	)

	if saturation == "saturated" {
		m.logger.Warn(
			"cpu saturation detected",
			"cpu", processCPU,
			"util_pct", utilization*100,
			"action", "reduce load or increase GOMAXPROCS",
		)
	}
}
