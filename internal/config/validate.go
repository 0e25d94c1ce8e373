package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	metricNameRegex    = regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*$`)
	attributeNameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	otelNameRegex      = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_./-]{0,254}$`)
)

// Validate performs syntactic validation on raw config
func Validate(raw *RawConfig) error {
	return validateRawSyntax(raw)
}

// validateRawSyntax performs basic syntactic validation on raw config
func validateRawSyntax(raw *RawConfig) error {
	if len(raw.Metrics) == 0 {
		return fmt.Errorf("at least one metric must be defined under config")
	}

	seen := make(map[string]int, len(raw.Metrics))
	for i, metric := range raw.Metrics {
		if metric.Name == "" {
			return fmt.Errorf("metric at index %d: name cannot be empty", i)
		}
		if prev, exists := seen[metric.Name]; exists {
			return fmt.Errorf("metric %q at index %d: duplicate name (first defined at index %d)", metric.Name, i, prev)
		}
		seen[metric.Name] = i
	}

	return nil
}

// IsValidAttributeName checks if a label name follows conventions
func IsValidAttributeName(name string) bool {
	if len(name) == 0 {
		return false
	}
	if strings.HasPrefix(name, "__") {
		return false
	}
	return attributeNameRegex.MatchString(name)
}

// IsValidOTELInstrumentName checks a metric name against the OTEL
// instrument name syntax. Prometheus allows ':' and a leading '_', OTEL does not.
func IsValidOTELInstrumentName(name string) bool {
	return otelNameRegex.MatchString(name)
}

// validatorInstance returns the shared validator used for resolved configs.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
			if name == "" || name == "-" {
				return field.Name
			}
			return name
		})

		_ = v.RegisterValidation("metric_name", func(fl validator.FieldLevel) bool {
			return metricNameRegex.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("label_name", func(fl validator.FieldLevel) bool {
			return IsValidAttributeName(fl.Field().String())
		})

		validateInst = v
	})
	return validateInst
}

// validateStruct runs field rules and reports the first failure in ctx.
func validateStruct(s any, ctx resolveContext) error {
	err := validatorInstance().Struct(s)
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		fe := ves[0]
		return ctx.errorf("%s failed validation for tag '%s'", fieldPath(fe), fe.Tag())
	}
	return ctx.error(err.Error())
}

// fieldPath strips the struct type from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
