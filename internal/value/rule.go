package value

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
)

// ErrMalformedRule is returned when a fixed value or range cannot be parsed.
var ErrMalformedRule = errors.New("malformed value rule")

type ruleKind int

const (
	ruleFixed ruleKind = iota
	ruleRange
)

// Rule describes how a sequence produces values: a fixed number, or a
// uniformly sampled number from the half-open range [low, high).
// The zero Rule is a fixed integer 0.
type Rule struct {
	kind ruleKind
	low  Number
	high Number
}

// Fixed returns a rule that always produces n.
func Fixed(n Number) Rule {
	return Rule{kind: ruleFixed, low: n}
}

// Range returns a rule sampling uniformly from [low, high).
// Both bounds must share the same kind and high must be greater than low.
func Range(low, high Number) (Rule, error) {
	if low.Kind != high.Kind {
		return Rule{}, fmt.Errorf("%w: range bounds %s and %s differ in kind", ErrMalformedRule, low, high)
	}
	if high.Float64() <= low.Float64() {
		return Rule{}, fmt.Errorf("%w: range upper bound %s must be greater than %s", ErrMalformedRule, high, low)
	}
	return Rule{kind: ruleRange, low: low, high: high}, nil
}

// ParseFixed parses a literal number. A literal containing a decimal point
// is a float, anything else must be an integer.
func ParseFixed(s string) (Rule, error) {
	n, err := parseNumber(s, strings.Contains(s, "."))
	if err != nil {
		return Rule{}, err
	}
	return Fixed(n), nil
}

// ParseRange parses "low-high", splitting on the first '-'. When low
// contains a decimal point both bounds are floats, otherwise integers.
func ParseRange(s string) (Rule, error) {
	lowStr, highStr, found := strings.Cut(s, "-")
	if !found {
		return Rule{}, fmt.Errorf("%w: range %q missing '-' separator", ErrMalformedRule, s)
	}

	float := strings.Contains(lowStr, ".")
	low, err := parseNumber(lowStr, float)
	if err != nil {
		return Rule{}, fmt.Errorf("range %q: %w", s, err)
	}
	high, err := parseNumber(highStr, float)
	if err != nil {
		return Rule{}, fmt.Errorf("range %q: %w", s, err)
	}

	return Range(low, high)
}

func parseNumber(s string, float bool) (Number, error) {
	s = strings.TrimSpace(s)
	if float {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return Number{}, fmt.Errorf("%w: %q is not a float", ErrMalformedRule, s)
		}
		return Float(f), nil
	}

	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Number{}, fmt.Errorf("%w: %q is not an integer", ErrMalformedRule, s)
	}
	return Int(i), nil
}

// IsRange reports whether the rule samples from a range.
func (r Rule) IsRange() bool {
	return r.kind == ruleRange
}

// Kind returns the numeric kind of produced values.
func (r Rule) Kind() Kind {
	return r.low.Kind
}

// Min returns the smallest value the rule can produce.
func (r Rule) Min() Number {
	return r.low
}

// Generate produces the next value. It only touches rng, so concurrent
// callers must each own their generator.
func (r Rule) Generate(rng *rand.Rand) Number {
	if r.kind == ruleFixed {
		return r.low
	}

	if r.low.Kind == KindInt {
		return Int(r.low.Int + rng.Int64N(r.high.Int-r.low.Int))
	}

	v := r.low.Float + rng.Float64()*(r.high.Float-r.low.Float)
	if v >= r.high.Float {
		// rounding can land on the open upper bound
		v = math.Nextafter(r.high.Float, r.low.Float)
	}
	return Float(v)
}

// String renders the rule in configuration syntax.
func (r Rule) String() string {
	if r.kind == ruleFixed {
		return r.low.String()
	}
	return r.low.String() + "-" + r.high.String()
}
