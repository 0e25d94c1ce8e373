package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/neox5/seqbox/internal/config"
	"github.com/neox5/seqbox/internal/metric"
	"github.com/neox5/seqbox/internal/value"
)

var (
	// ErrMissingOperation is returned for gauge sequences without an operation.
	ErrMissingOperation = errors.New("gauge sequence requires an operation")
	// ErrUnknownOperation is returned for gauge operations other than inc, dec and set.
	ErrUnknownOperation = errors.New("unknown gauge operation")
	// ErrNegativeCounter is returned when a counter sequence can emit a negative value.
	ErrNegativeCounter = errors.New("counter sequence can emit a negative value")
	// ErrLabelMismatch is returned when sequence label values do not match the metric's labels.
	ErrLabelMismatch = errors.New("sequence labels do not match metric labels")
	// ErrNoSequences is returned for metrics without sequences.
	ErrNoSequences = errors.New("metric has no sequences")
)

// Instrument receives emitted values. *metric.Instrument implements it.
type Instrument interface {
	Add(v float64, labelValues ...string)
	Sub(v float64, labelValues ...string)
	Set(v float64, labelValues ...string)
	Observe(v float64, labelValues ...string)
}

// Generator drives one metric through its sequences until cancelled.
type Generator struct {
	name   string
	phases []phase
	rng    *rand.Rand
	now    func() time.Time
	logger *slog.Logger
}

// phase is a sequence with its emission bound to the instrument.
type phase struct {
	evalTime time.Duration
	interval time.Duration
	rule     value.Rule
	emit     func(v float64)
}

// Option configures a Generator.
type Option func(*Generator)

// WithRand sets the random source used for range sampling.
func WithRand(rng *rand.Rand) Option {
	return func(g *Generator) {
		g.rng = rng
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// WithClock replaces time.Now for phase deadlines.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// Validate checks a metric against the rules the generator enforces
// before anything is emitted.
func Validate(spec config.MetricConfig) error {
	_, err := buildPhases(spec, nopInstrument{})
	return err
}

// New creates a generator bound to inst. Configuration errors are
// returned here, never during Run.
func New(spec config.MetricConfig, inst Instrument, opts ...Option) (*Generator, error) {
	phases, err := buildPhases(spec, inst)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		name:   spec.Name,
		phases: phases,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return g, nil
}

func buildPhases(spec config.MetricConfig, inst Instrument) ([]phase, error) {
	if len(spec.Sequences) == 0 {
		return nil, fmt.Errorf("metric %q: %w", spec.Name, ErrNoSequences)
	}

	phases := make([]phase, 0, len(spec.Sequences))
	for i, seq := range spec.Sequences {
		if len(seq.LabelValues) != len(spec.Labels) {
			return nil, fmt.Errorf("metric %q sequence %d: %w: got %d values for %d labels",
				spec.Name, i, ErrLabelMismatch, len(seq.LabelValues), len(spec.Labels))
		}
		if seq.EvalTime <= 0 || seq.Interval <= 0 {
			return nil, fmt.Errorf("metric %q sequence %d: eval_time and interval must be positive", spec.Name, i)
		}

		emit, err := emitter(spec.Type, seq, inst)
		if err != nil {
			return nil, fmt.Errorf("metric %q sequence %d: %w", spec.Name, i, err)
		}

		phases = append(phases, phase{
			evalTime: seq.EvalTime,
			interval: seq.Interval,
			rule:     seq.Value,
			emit:     emit,
		})
	}
	return phases, nil
}

// emitter binds the per-type update to an instrument and label values.
func emitter(typ config.MetricType, seq config.SequenceConfig, inst Instrument) (func(float64), error) {
	labels := seq.LabelValues

	switch typ {
	case config.MetricTypeCounter:
		if seq.Value.Min().Float64() < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNegativeCounter, seq.Value)
		}
		return func(v float64) { inst.Add(v, labels...) }, nil

	case config.MetricTypeGauge:
		switch seq.Operation {
		case config.OperationInc:
			return func(v float64) { inst.Add(v, labels...) }, nil
		case config.OperationDec:
			return func(v float64) { inst.Sub(v, labels...) }, nil
		case config.OperationSet:
			return func(v float64) { inst.Set(v, labels...) }, nil
		case config.OperationNone:
			return nil, ErrMissingOperation
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, seq.Operation)
		}

	case config.MetricTypeSummary, config.MetricTypeHistogram:
		return func(v float64) { inst.Observe(v, labels...) }, nil

	default:
		return nil, fmt.Errorf("%w: %q", metric.ErrUnknownType, typ)
	}
}

// Run cycles through the sequences in order until ctx is cancelled.
// Cancellation is observed before each phase, before each emission and
// during the interval wait.
func (g *Generator) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for i := 0; ; i = (i + 1) % len(g.phases) {
		if ctx.Err() != nil {
			return
		}

		g.logger.Debug("changing sequence", "metric", g.name, "sequence", i)

		if !g.runPhase(ctx, timer, g.phases[i]) {
			return
		}
	}
}

// runPhase emits until the phase deadline passes. It returns false when
// the generator was cancelled.
func (g *Generator) runPhase(ctx context.Context, timer *time.Timer, p phase) bool {
	deadline := g.now().Add(p.evalTime)

	for {
		if ctx.Err() != nil {
			return false
		}
		if g.now().After(deadline) {
			return true
		}

		p.emit(p.rule.Generate(g.rng).Float64())

		timer.Reset(p.interval)
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
		}
	}
}

// nopInstrument lets Validate build phases without an instrument.
type nopInstrument struct{}

func (nopInstrument) Add(float64, ...string)     {}
func (nopInstrument) Sub(float64, ...string)     {}
func (nopInstrument) Set(float64, ...string)     {}
func (nopInstrument) Observe(float64, ...string) {}
