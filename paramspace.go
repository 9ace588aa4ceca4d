package race

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"golang.org/x/exp/constraints"
)

//////
// Parameter space declaration. A workflow declares the shape of its search
// space here; grid.go turns a finalized space into concrete candidates.
//////

// validate is the shared struct validator used by ParamSpec and Options.
var validate = validator.New()

// ParamKind is the kind of a declared hyperparameter.
type ParamKind string

const (
	// Continuous parameters take any float64 within [Min, Max].
	Continuous ParamKind = "continuous"

	// IntegerKind parameters take integer values within [Min, Max].
	IntegerKind ParamKind = "integer"

	// CategoricalKind parameters take one of a fixed set of string levels.
	CategoricalKind ParamKind = "categorical"
)

// BoundRule names a data-dependent bound that cannot be known until the
// actual dataset dimensions are available. Rules are resolved by
// ParamSpace.Finalize; generating a grid with an unresolved rule fails with
// ErrUnresolvedBound.
type BoundRule string

const (
	// BoundNone means the bound is a fixed literal.
	BoundNone BoundRule = ""

	// BoundPredictors resolves the bound to the number of predictor
	// columns (e.g. the classic mtry upper bound).
	BoundPredictors BoundRule = "predictors"

	// BoundRows resolves the bound to the number of observations.
	BoundRows BoundRule = "rows"
)

// resolve maps a rule onto a concrete value given the dataset shape.
func (r BoundRule) resolve(shape Shape) (float64, error) {
	switch r {
	case BoundPredictors:
		return float64(shape.Predictors), nil
	case BoundRows:
		return float64(shape.Rows), nil
	default:
		return 0, fmt.Errorf("race: unknown bound rule %q", string(r))
	}
}

// ParamSpec declares one hyperparameter: its kind, its range or levels, and
// optionally a data-dependent bound rule that replaces the literal bound at
// finalization time.
//
// Declarations are plain data: they validate cleanly and can be loaded from
// YAML alongside execution options, so a search space can live in a config
// file.
type ParamSpec struct {
	// Name is the parameter's unique name within its space.
	Name string `yaml:"name" validate:"required"`

	// Kind selects continuous, integer or categorical sampling.
	Kind ParamKind `yaml:"kind" validate:"required,oneof=continuous integer categorical"`

	// Min and Max bound numeric kinds (both inclusive). Ignored for
	// categorical parameters.
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`

	// MinRule and MaxRule, when set, override Min/Max with a value derived
	// from the dataset shape at Finalize time.
	MinRule BoundRule `yaml:"min_rule,omitempty"`
	MaxRule BoundRule `yaml:"max_rule,omitempty"`

	// Levels are the allowed values of a categorical parameter.
	Levels []string `yaml:"levels,omitempty"`
}

// Range declares a numeric parameter, inferring the kind from the Go type:
// integer types become IntegerKind, float types become Continuous. This is
// the usual way to declare numeric parameters in code:
//
//	space := race.NewParamSpace(
//	    race.Range("trees", 100, 2000),
//	    race.Range("learn_rate", 0.001, 0.3),
//	    race.Categorical("loss", "squared", "absolute"),
//	)
func Range[T constraints.Integer | constraints.Float](name string, min, max T) ParamSpec {
	kind := Continuous

	switch any(min).(type) {
	case float32, float64:
		// Keep Continuous.
	default:
		kind = IntegerKind
	}

	return ParamSpec{
		Name: name,
		Kind: kind,
		Min:  float64(min),
		Max:  float64(max),
	}
}

// Categorical declares a parameter drawn from a fixed set of levels.
func Categorical(name string, levels ...string) ParamSpec {
	return ParamSpec{
		Name:   name,
		Kind:   CategoricalKind,
		Levels: levels,
	}
}

// BoundedAbove returns a copy of the spec whose upper bound is resolved from
// the dataset shape at Finalize time instead of being a literal.
func (p ParamSpec) BoundedAbove(rule BoundRule) ParamSpec {
	p.MaxRule = rule

	return p
}

// Value is one concrete parameter value, either numeric or categorical
// depending on the declaring spec's kind.
type Value struct {
	Num float64
	Str string
}

// Float returns the numeric value.
func (v Value) Float() float64 { return v.Num }

// Int returns the numeric value as an int. Integer parameters are generated
// as exact integers, so no information is lost.
func (v Value) Int() int { return int(math.Round(v.Num)) }

// String returns the categorical level, or the numeric value formatted when
// the parameter is numeric.
func (v Value) String() string {
	if v.Str != "" {
		return v.Str
	}

	return fmt.Sprintf("%g", v.Num)
}

// Params maps parameter name to assigned value for one candidate.
type Params map[string]Value

// ParamSpace is an ordered set of parameter declarations. The order is the
// declaration order and is part of a candidate's canonical identity, which
// keeps grid generation deterministic.
type ParamSpace struct {
	specs     []ParamSpec
	finalized bool
}

// NewParamSpace builds a space from the given declarations. An empty space is
// valid and produces exactly one trivial candidate (plain resampling of a
// single configuration, no racing).
func NewParamSpace(specs ...ParamSpec) ParamSpace {
	s := ParamSpace{specs: make([]ParamSpec, len(specs))}
	copy(s.specs, specs)

	// A space with no data-dependent rules needs no finalization.
	s.finalized = !s.hasRules()

	return s
}

// Len returns the number of declared parameters.
func (s ParamSpace) Len() int { return len(s.specs) }

// Specs returns a copy of the declarations.
func (s ParamSpace) Specs() []ParamSpec {
	out := make([]ParamSpec, len(s.specs))
	copy(out, s.specs)

	return out
}

func (s ParamSpace) hasRules() bool {
	for _, p := range s.specs {
		if p.MinRule != BoundNone || p.MaxRule != BoundNone {
			return true
		}
	}

	return false
}

// Finalize resolves every data-dependent bound rule against the actual
// dataset shape and validates the resulting space. It must be called before
// grid generation whenever any spec carries a rule; calling it on a space
// without rules only re-runs validation.
//
// Returns a new, finalized space; the receiver is not modified.
func (s ParamSpace) Finalize(shape Shape) (ParamSpace, error) {
	out := ParamSpace{specs: make([]ParamSpec, len(s.specs)), finalized: true}
	copy(out.specs, s.specs)

	for i := range out.specs {
		p := &out.specs[i]

		if p.MinRule != BoundNone {
			v, err := p.MinRule.resolve(shape)
			if err != nil {
				return ParamSpace{}, err
			}

			p.Min, p.MinRule = v, BoundNone
		}

		if p.MaxRule != BoundNone {
			v, err := p.MaxRule.resolve(shape)
			if err != nil {
				return ParamSpace{}, err
			}

			p.Max, p.MaxRule = v, BoundNone
		}
	}

	if err := out.validateSpecs(); err != nil {
		return ParamSpace{}, err
	}

	return out, nil
}

// validateSpecs checks every declaration for structural validity.
func (s ParamSpace) validateSpecs() error {
	seen := make(map[string]bool, len(s.specs))

	for _, p := range s.specs {
		if err := validate.Struct(p); err != nil {
			return fmt.Errorf("race: parameter %q: %w", p.Name, err)
		}

		if seen[p.Name] {
			return fmt.Errorf("race: parameter %q declared twice", p.Name)
		}
		seen[p.Name] = true

		switch p.Kind {
		case CategoricalKind:
			if len(p.Levels) == 0 {
				return fmt.Errorf("race: categorical parameter %q has no levels", p.Name)
			}
		default:
			if p.Min > p.Max {
				return fmt.Errorf("race: parameter %q has min %g > max %g", p.Name, p.Min, p.Max)
			}
		}
	}

	return nil
}
