package generator

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/neox5/seqbox/internal/config"
	"github.com/neox5/seqbox/internal/metric"
	"github.com/neox5/seqbox/internal/value"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// call is one recorded instrument update.
type call struct {
	op     string
	value  float64
	labels []string
}

// recorder is an Instrument that remembers every update.
type recorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *recorder) record(op string, v float64, labels []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{op: op, value: v, labels: labels})
}

func (r *recorder) Add(v float64, labels ...string)     { r.record("add", v, labels) }
func (r *recorder) Sub(v float64, labels ...string)     { r.record("sub", v, labels) }
func (r *recorder) Set(v float64, labels ...string)     { r.record("set", v, labels) }
func (r *recorder) Observe(v float64, labels ...string) { r.record("observe", v, labels) }

func (r *recorder) snapshot() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func fixed(t *testing.T, s string) value.Rule {
	t.Helper()
	rule, err := value.ParseFixed(s)
	require.NoError(t, err)
	return rule
}

func ranged(t *testing.T, s string) value.Rule {
	t.Helper()
	rule, err := value.ParseRange(s)
	require.NoError(t, err)
	return rule
}

func sequence(rule value.Rule, evalTime, interval time.Duration) config.SequenceConfig {
	return config.SequenceConfig{
		EvalTime: evalTime,
		Interval: interval,
		Value:    rule,
	}
}

// runFor runs gen until d elapses and waits for it to return.
func runFor(gen *Generator, d time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	gen.Run(ctx)
}

func TestSequencesRunInOrderAndWrap(t *testing.T) {
	spec := config.MetricConfig{
		Name: "phases_total",
		Type: config.MetricTypeCounter,
		Sequences: []config.SequenceConfig{
			sequence(fixed(t, "1"), 60*time.Millisecond, 10*time.Millisecond),
			sequence(fixed(t, "2"), 60*time.Millisecond, 10*time.Millisecond),
		},
	}

	rec := &recorder{}
	gen, err := New(spec, rec)
	require.NoError(t, err)

	runFor(gen, 300*time.Millisecond)

	calls := rec.snapshot()
	require.NotEmpty(t, calls)

	// Collapse consecutive equal values into runs: 1,2,1,2...
	var runs []float64
	for _, c := range calls {
		assert.Equal(t, "add", c.op)
		if len(runs) == 0 || runs[len(runs)-1] != c.value {
			runs = append(runs, c.value)
		}
	}
	require.GreaterOrEqual(t, len(runs), 3, "expected wrap back to the first sequence")
	for i, v := range runs {
		assert.Equal(t, float64(i%2+1), v, "run %d", i)
	}
}

func TestEmissionsPerPhaseFollowInterval(t *testing.T) {
	spec := config.MetricConfig{
		Name: "ticks_total",
		Type: config.MetricTypeCounter,
		Sequences: []config.SequenceConfig{
			sequence(fixed(t, "1"), 200*time.Millisecond, 20*time.Millisecond),
			sequence(fixed(t, "2"), time.Hour, time.Hour),
		},
	}

	rec := &recorder{}
	gen, err := New(spec, rec)
	require.NoError(t, err)

	runFor(gen, 350*time.Millisecond)

	first := 0
	for _, c := range rec.snapshot() {
		if c.value == 1 {
			first++
		}
	}
	// eval_time / interval = 10, allow for timer slack on busy machines
	assert.GreaterOrEqual(t, first, 5)
	assert.LessOrEqual(t, first, 11)
}

func TestCancelDuringSleepReturnsPromptly(t *testing.T) {
	spec := config.MetricConfig{
		Name: "slow_total",
		Type: config.MetricTypeCounter,
		Sequences: []config.SequenceConfig{
			sequence(fixed(t, "1"), time.Hour, time.Hour),
		},
	}

	rec := &recorder{}
	gen, err := New(spec, rec)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		gen.Run(ctx)
	}()

	require.Eventually(t, func() bool { return rec.len() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("generator did not observe cancellation while sleeping")
	}
	assert.Equal(t, 1, rec.len())
}

func TestRunReturnsImmediatelyWhenAlreadyCancelled(t *testing.T) {
	spec := config.MetricConfig{
		Name:      "never_total",
		Type:      config.MetricTypeCounter,
		Sequences: []config.SequenceConfig{sequence(fixed(t, "1"), time.Second, time.Millisecond)},
	}

	rec := &recorder{}
	gen, err := New(spec, rec)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen.Run(ctx)

	assert.Zero(t, rec.len())
}

func TestGaugeOperations(t *testing.T) {
	tests := []struct {
		op   config.Operation
		want string
	}{
		{config.OperationInc, "add"},
		{config.OperationDec, "sub"},
		{config.OperationSet, "set"},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			seq := sequence(fixed(t, "5"), time.Hour, time.Hour)
			seq.Operation = tt.op
			spec := config.MetricConfig{
				Name:      "fruits",
				Type:      config.MetricTypeGauge,
				Sequences: []config.SequenceConfig{seq},
			}

			rec := &recorder{}
			gen, err := New(spec, rec)
			require.NoError(t, err)

			runFor(gen, 20*time.Millisecond)

			calls := rec.snapshot()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.want, calls[0].op)
			assert.Equal(t, 5.0, calls[0].value)
		})
	}
}

func TestObserverTypesRecordObservations(t *testing.T) {
	for _, typ := range []config.MetricType{config.MetricTypeSummary, config.MetricTypeHistogram} {
		t.Run(string(typ), func(t *testing.T) {
			spec := config.MetricConfig{
				Name:      "latency",
				Type:      typ,
				Labels:    []string{"route"},
				Sequences: []config.SequenceConfig{sequence(fixed(t, "0.25"), time.Hour, time.Hour)},
			}
			spec.Sequences[0].LabelValues = []string{"/home"}

			rec := &recorder{}
			gen, err := New(spec, rec)
			require.NoError(t, err)

			runFor(gen, 20*time.Millisecond)

			calls := rec.snapshot()
			require.Len(t, calls, 1)
			assert.Equal(t, call{op: "observe", value: 0.25, labels: []string{"/home"}}, calls[0])
		})
	}
}

func TestGaugeIncreaseAppliesToInstrument(t *testing.T) {
	seq := sequence(fixed(t, "5"), time.Hour, time.Hour)
	seq.Operation = config.OperationInc
	spec := config.MetricConfig{
		Name:        "room_temperature",
		Description: "Temperature.",
		Type:        config.MetricTypeGauge,
		Sequences:   []config.SequenceConfig{seq},
	}

	reg := metric.NewRegistry()
	inst, err := reg.Register(spec)
	require.NoError(t, err)

	gen, err := New(spec, inst)
	require.NoError(t, err)

	runFor(gen, 20*time.Millisecond)

	expected := `
# HELP room_temperature Temperature.
# TYPE room_temperature gauge
room_temperature 5
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))
}

func TestCounterRangeWithLabels(t *testing.T) {
	seq := sequence(ranged(t, "1-3"), time.Hour, 2*time.Millisecond)
	seq.LabelValues = []string{"ok"}
	spec := config.MetricConfig{
		Name:      "requests_total",
		Type:      config.MetricTypeCounter,
		Labels:    []string{"status"},
		Sequences: []config.SequenceConfig{seq},
	}

	rec := &recorder{}
	gen, err := New(spec, rec, WithRand(rand.New(rand.NewPCG(1, 1))))
	require.NoError(t, err)

	runFor(gen, 50*time.Millisecond)

	calls := rec.snapshot()
	require.NotEmpty(t, calls)
	for _, c := range calls {
		assert.Equal(t, "add", c.op)
		assert.Equal(t, []string{"ok"}, c.labels)
		assert.Contains(t, []float64{1, 2}, c.value)
	}
}

func TestClockDrivesPhaseDeadline(t *testing.T) {
	var (
		mu  sync.Mutex
		now = time.Unix(0, 0)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		// every reading advances the fake clock by one second
		now = now.Add(time.Second)
		return now
	}

	spec := config.MetricConfig{
		Name: "clocked_total",
		Type: config.MetricTypeCounter,
		Sequences: []config.SequenceConfig{
			sequence(fixed(t, "1"), 2500*time.Millisecond, time.Millisecond),
			sequence(fixed(t, "2"), 2500*time.Millisecond, time.Millisecond),
		},
	}

	rec := &recorder{}
	gen, err := New(spec, rec, WithClock(clock))
	require.NoError(t, err)

	runFor(gen, 30*time.Millisecond)

	calls := rec.snapshot()
	require.GreaterOrEqual(t, len(calls), 4)
	// deadline = entry+2.5s; checks at +1s and +2s pass, +3s ends the phase
	assert.Equal(t, []float64{1, 1, 2, 2}, []float64{calls[0].value, calls[1].value, calls[2].value, calls[3].value})
}

func TestNewRejectsInvalidSpecs(t *testing.T) {
	base := func() config.MetricConfig {
		return config.MetricConfig{
			Name:      "broken",
			Type:      config.MetricTypeGauge,
			Sequences: []config.SequenceConfig{sequence(fixed(t, "1"), time.Second, time.Second)},
		}
	}

	t.Run("missing gauge operation", func(t *testing.T) {
		rec := &recorder{}
		_, err := New(base(), rec)
		require.ErrorIs(t, err, ErrMissingOperation)
		assert.Contains(t, err.Error(), `"broken"`)
		assert.Zero(t, rec.len())
	})

	t.Run("unknown gauge operation", func(t *testing.T) {
		spec := base()
		spec.Sequences[0].Operation = "mul"
		_, err := New(spec, &recorder{})
		assert.ErrorIs(t, err, ErrUnknownOperation)
	})

	t.Run("negative counter", func(t *testing.T) {
		spec := base()
		spec.Type = config.MetricTypeCounter
		spec.Sequences[0].Value = fixed(t, "-1")
		_, err := New(spec, &recorder{})
		assert.ErrorIs(t, err, ErrNegativeCounter)
	})

	t.Run("label mismatch", func(t *testing.T) {
		spec := base()
		spec.Labels = []string{"name"}
		spec.Sequences[0].Operation = config.OperationSet
		_, err := New(spec, &recorder{})
		assert.ErrorIs(t, err, ErrLabelMismatch)
	})

	t.Run("no sequences", func(t *testing.T) {
		spec := base()
		spec.Sequences = nil
		_, err := New(spec, &recorder{})
		assert.ErrorIs(t, err, ErrNoSequences)
	})

	t.Run("unknown type", func(t *testing.T) {
		spec := base()
		spec.Type = "meter"
		_, err := New(spec, &recorder{})
		assert.ErrorIs(t, err, metric.ErrUnknownType)
	})
}
