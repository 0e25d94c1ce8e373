package value

import (
	"strconv"
	"strings"
)

// Kind tags a Number as integer or floating-point.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
)

func (k Kind) String() string {
	if k == KindFloat {
		return "float"
	}
	return "int"
}

// Number is an integer or float value. Only the field matching Kind is set.
type Number struct {
	Kind  Kind
	Int   int64
	Float float64
}

// Int returns an integer Number.
func Int(v int64) Number {
	return Number{Kind: KindInt, Int: v}
}

// Float returns a floating-point Number.
func Float(v float64) Number {
	return Number{Kind: KindFloat, Float: v}
}

// Float64 converts the number for instrument updates.
func (n Number) Float64() float64 {
	if n.Kind == KindFloat {
		return n.Float
	}
	return float64(n.Int)
}

func (n Number) String() string {
	if n.Kind == KindFloat {
		s := strconv.FormatFloat(n.Float, 'f', -1, 64)
		if strings.Contains(s, ".") {
			return s
		}
		return s + ".0"
	}
	return strconv.FormatInt(n.Int, 10)
}
