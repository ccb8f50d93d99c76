package ew

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrNumericFailure    = errors.New("non-finite objective value")
	ErrAlreadyFinished   = errors.New("optimizer already finished")
)

// ErrConfiguration matches every *ConfigError through errors.Is.
var ErrConfiguration = errors.New("invalid configuration")

// Kinds of configuration errors.
var (
	ErrInvalidProbability    = errors.New("invalid probability")
	ErrInvalidPopulationSize = errors.New("invalid population size")
	ErrInvalidVelocityLimit  = errors.New("invalid velocity limit")
	ErrInvalidDimension      = errors.New("invalid dimension")
	ErrInvalidBounds         = errors.New("invalid bounds")
	ErrInvalidIterations     = errors.New("invalid iteration count")
	ErrInvalidRunCount       = errors.New("invalid run count")
	ErrInvalidParameter      = errors.New("invalid parameter")
)

// ConfigError describes a single rejected configuration field.
type ConfigError struct {
	Kind  error
	Field string
	Value any
	Rule  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %v=%v violates %q", e.Kind, e.Field, e.Value, e.Rule)
}

func (e *ConfigError) Unwrap() error { return e.Kind }

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg against its struct tags.  Every failing field becomes
// a *ConfigError whose kind is looked up by struct field name in kinds
// (ErrInvalidParameter if absent).  Failures and any extra errors are
// returned together so that a configuration is rejected as a whole.
func Validate(cfg any, kinds map[string]error, extra ...error) error {
	var errs []error
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			name, _, _ := strings.Cut(fe.StructField(), "[")
			kind, ok := kinds[name]
			if !ok {
				kind = ErrInvalidParameter
			}
			errs = append(errs, &ConfigError{Kind: kind, Field: fe.Namespace(), Value: fe.Value(), Rule: fe.Tag()})
		}
	}
	errs = append(errs, extra...)
	return errors.Join(errs...)
}

// CheckBounds verifies that low and up describe a non-empty box.
func CheckBounds(low, up []float64) error {
	if len(low) == 0 {
		return &ConfigError{Kind: ErrInvalidDimension, Field: "low", Value: len(low), Rule: "min=1"}
	} else if len(low) != len(up) {
		return &ConfigError{Kind: ErrInvalidBounds, Field: "up", Value: len(up), Rule: fmt.Sprintf("len=%v", len(low))}
	}

	var errs []error
	for i := range low {
		l, u := low[i], up[i]
		if math.IsNaN(l) || math.IsInf(l, 0) || math.IsNaN(u) || math.IsInf(u, 0) || l > u {
			errs = append(errs, &ConfigError{Kind: ErrInvalidBounds, Field: fmt.Sprintf("bounds[%v]", i), Value: [2]float64{l, u}, Rule: "finite,low<=up"})
		}
	}
	return errors.Join(errs...)
}
