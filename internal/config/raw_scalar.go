package config

import (
	"fmt"
	"strconv"
	"time"

	"go.yaml.in/yaml/v4"
)

// RawScalar keeps the literal text of a YAML scalar, so that `5` and `5.0`
// stay distinguishable.
type RawScalar struct {
	Text string
}

// UnmarshalYAML accepts any scalar node
func (s *RawScalar) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar value", value.Line)
	}
	s.Text = value.Value
	return nil
}

// RawDuration handles both seconds (5, 0.5) and duration strings (1m30s)
type RawDuration struct {
	Duration time.Duration
	Set      bool
}

// UnmarshalYAML handles both numeric and string forms
func (d *RawDuration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected seconds or a duration", value.Line)
	}

	// Plain numbers are seconds
	if secs, err := strconv.ParseFloat(value.Value, 64); err == nil {
		d.Duration = time.Duration(secs * float64(time.Second))
		d.Set = true
		return nil
	}

	// Fall back to Go duration syntax
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, value.Value)
	}
	d.Duration = parsed
	d.Set = true
	return nil
}
