package generator

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/neox5/seqbox/internal/config"
	"github.com/neox5/seqbox/internal/metric"
	dto "github.com/prometheus/client_model/go"
)

var (
	// ErrAlreadyRunning is returned by Start while generators are running.
	ErrAlreadyRunning = errors.New("generators already running")
	// ErrRegistry wraps factory failures. The current generation is untouched.
	ErrRegistry = errors.New("failed to create registry")
)

// registryCloseTimeout bounds flushing a discarded registry.
const registryCloseTimeout = 5 * time.Second

// RegistryFactory builds an empty registry for a new generation.
type RegistryFactory func() (*metric.Registry, error)

// Supervisor owns the running generators and the registry they write to.
// Scrapes go through Gather, which always reads exactly one generation.
type Supervisor struct {
	factory RegistryFactory
	logger  *slog.Logger
	seed    *uint64

	mu      sync.Mutex
	loops   []*loop
	current atomic.Pointer[metric.Registry]
	running atomic.Int64
}

// loop tracks one running generator.
type loop struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithSupervisorLogger sets the logger passed to generators.
func WithSupervisorLogger(logger *slog.Logger) SupervisorOption {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithSeed makes range sampling reproducible. Each metric gets its own
// stream derived from seed and the metric name.
func WithSeed(seed uint64) SupervisorOption {
	return func(s *Supervisor) {
		s.seed = &seed
	}
}

// NewSupervisor creates a supervisor with no running generators.
func NewSupervisor(factory RegistryFactory, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		factory: factory,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates one instrument and one generator per metric and publishes
// the new registry. A metric that fails validation is skipped and reported
// in the returned error; the others keep running.
func (s *Supervisor) Start(specs []config.MetricConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.loops) > 0 {
		return ErrAlreadyRunning
	}
	return s.replace(specs)
}

// Reload stops every running generator, waits for them to exit, then
// starts the given metrics on a fresh registry. If the registry cannot be
// built the current generation keeps running.
func (s *Supervisor) Reload(specs []config.MetricConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.replace(specs)
}

// Stop cancels every generator and waits until all of them have exited.
// The last registry stays published.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
}

// Close stops all generators and releases the published registry.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	if reg := s.current.Load(); reg != nil {
		return reg.Close(ctx)
	}
	return nil
}

// Gather implements prometheus.Gatherer over the published registry.
func (s *Supervisor) Gather() ([]*dto.MetricFamily, error) {
	reg := s.current.Load()
	if reg == nil {
		return nil, nil
	}
	return reg.Gather()
}

// Running returns the number of live generators.
func (s *Supervisor) Running() int {
	return int(s.running.Load())
}

// replace builds the next generation and swaps it in. Caller holds mu.
func (s *Supervisor) replace(specs []config.MetricConfig) error {
	reg, err := s.factory()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRegistry, err)
	}

	s.stopLocked()

	loops, startErr := s.launch(reg, specs)
	s.loops = loops

	old := s.current.Swap(reg)
	if old != nil {
		ctx, cancel := context.WithTimeout(context.Background(), registryCloseTimeout)
		if err := old.Close(ctx); err != nil {
			s.logger.Warn("failed to close previous registry", "error", err)
		}
		cancel()
	}

	s.logger.Info("generators started",
		"metrics", len(loops),
		"instruments", reg.Len(),
		"failed", len(specs)-len(loops))
	return startErr
}

// launch starts a generator per metric against reg.
func (s *Supervisor) launch(reg *metric.Registry, specs []config.MetricConfig) ([]*loop, error) {
	var (
		loops  []*loop
		result *multierror.Error
	)

	for _, spec := range specs {
		// Reject before registering so a bad metric never shows up in scrapes
		if err := Validate(spec); err != nil {
			s.logger.Error("metric rejected", "metric", spec.Name, "error", err)
			result = multierror.Append(result, err)
			continue
		}

		inst, err := reg.Register(spec)
		if err != nil {
			s.logger.Error("metric rejected", "metric", spec.Name, "error", err)
			result = multierror.Append(result, err)
			continue
		}

		gen, err := New(spec, inst,
			WithRand(s.randFor(spec.Name)),
			WithLogger(s.logger))
		if err != nil {
			reg.Unregister(spec.Name)
			result = multierror.Append(result, err)
			continue
		}

		loops = append(loops, s.run(spec.Name, gen))
	}

	return loops, result.ErrorOrNil()
}

func (s *Supervisor) run(name string, gen *Generator) *loop {
	ctx, cancel := context.WithCancel(context.Background())
	l := &loop{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.running.Add(1)
	go func() {
		defer close(l.done)
		defer s.running.Add(-1)
		gen.Run(ctx)
	}()

	return l
}

// stopLocked cancels all loops, then joins them. Caller holds mu.
func (s *Supervisor) stopLocked() {
	if len(s.loops) == 0 {
		return
	}

	for _, l := range s.loops {
		l.cancel()
	}
	for _, l := range s.loops {
		<-l.done
	}

	s.logger.Info("generators stopped", "metrics", len(s.loops))
	s.loops = nil
}

func (s *Supervisor) randFor(name string) *rand.Rand {
	if s.seed == nil {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	h := fnv.New64a()
	h.Write([]byte(name))
	return rand.New(rand.NewPCG(*s.seed, h.Sum64()))
}
