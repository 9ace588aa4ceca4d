package race

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

//////
// Execution options.
//////

// Options controls how one workflow is evaluated. A set-wide Options value is
// passed to WorkflowSet.Evaluate; individual workflows may override it via
// SetOptions. Zero fields are filled from DefaultOptions before use, so a
// partially populated Options is always safe.
//
// Usage example:
//
//	opts := race.DefaultOptions()
//	opts.GridSize = 40
//	opts.Alpha = 0.01
//	opts.Metrics = []race.Metric{{Name: "rmse", Direction: race.Minimize, Fn: rmse}}
//	opts.Seed = 42
type Options struct {
	// GridSize is the number of candidates generated per workflow.
	// Default 25.
	GridSize int `yaml:"grid_size" validate:"min=0"`

	// BurnIn is the number of initial folds evaluated for every candidate
	// with no statistical elimination, establishing the repeated-measures
	// baseline before any comparison is trusted. Default 3.
	BurnIn int `yaml:"burn_in" validate:"min=0"`

	// Alpha is the significance level for interval-based elimination
	// policies. Default 0.05.
	Alpha float64 `yaml:"alpha" validate:"gte=0,lt=1"`

	// MaxFitFailures is the number of failed (candidate, fold) evaluations
	// after which a candidate is eliminated for failure reasons,
	// independent of the statistical test. Default 3.
	MaxFitFailures int `yaml:"max_fit_failures" validate:"min=0"`

	// Parallelism bounds how many evaluations run concurrently within one
	// fold of one workflow. Default 1 (sequential). The per-fold barrier
	// holds regardless: elimination never runs before every active
	// candidate's score for the fold is in.
	Parallelism int `yaml:"parallelism" validate:"min=0"`

	// Seed drives candidate grid generation. The effective seed of each
	// workflow mixes Seed with the workflow id, so a set-wide seed still
	// gives every workflow its own deterministic grid. Default 1.
	Seed int64 `yaml:"seed"`

	// StopOnSingle, when set, skips the remaining folds once a single
	// active candidate is left. When unset (the default) the sole survivor
	// keeps being evaluated on every remaining fold so its final mean and
	// standard error come from the full plan. The two modes are never
	// mixed within a run.
	StopOnSingle bool `yaml:"stop_on_single"`

	// Metrics are the scoring capabilities to evaluate, first one primary.
	// Required; not loadable from YAML since metrics carry functions.
	Metrics []Metric `yaml:"-"`

	// Policy is the interim elimination test. Nil selects PairedT.
	Policy EliminationPolicy `yaml:"-"`

	// Logger receives policy-fallback and elimination diagnostics. Nil
	// disables logging.
	Logger *slog.Logger `yaml:"-"`

	// Progress, when non-nil, receives RaceUpdate events. Sends never
	// block; updates are dropped when the channel is full.
	Progress chan<- RaceUpdate `yaml:"-"`
}

// DefaultOptions returns the default execution options. Metrics must still
// be supplied by the caller.
func DefaultOptions() Options {
	return Options{
		GridSize:       25,
		BurnIn:         3,
		Alpha:          0.05,
		MaxFitFailures: 3,
		Parallelism:    1,
		Seed:           1,
	}
}

// Validate checks the options for structural validity, including that at
// least one metric is declared and every metric has a name and a formula.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("race: invalid options: %w", err)
	}

	if len(o.Metrics) == 0 {
		return fmt.Errorf("race: options declare no metrics")
	}

	seen := make(map[string]bool, len(o.Metrics))

	for _, m := range o.Metrics {
		if m.Name == "" || m.Fn == nil {
			return fmt.Errorf("race: metric %q is missing a name or formula", m.Name)
		}

		if seen[m.Name] {
			return fmt.Errorf("race: metric %q declared twice", m.Name)
		}
		seen[m.Name] = true
	}

	return nil
}

// withDefaults fills zero-valued fields from DefaultOptions.
func (o Options) withDefaults() Options {
	def := DefaultOptions()

	if o.GridSize == 0 {
		o.GridSize = def.GridSize
	}

	if o.BurnIn == 0 {
		o.BurnIn = def.BurnIn
	}

	if o.Alpha == 0 {
		o.Alpha = def.Alpha
	}

	if o.MaxFitFailures == 0 {
		o.MaxFitFailures = def.MaxFitFailures
	}

	if o.Parallelism == 0 {
		o.Parallelism = def.Parallelism
	}

	if o.Seed == 0 {
		o.Seed = def.Seed
	}

	if o.Policy == nil {
		o.Policy = PairedT
	}

	return o
}

// merge overlays a per-workflow override onto set-wide options. Scalar
// fields are taken from the override when non-zero; function-valued fields
// (metrics, policy, logger, progress) are taken from the override when set.
func (o Options) merge(override *Options) Options {
	if override == nil {
		return o.withDefaults()
	}

	out := o

	if override.GridSize != 0 {
		out.GridSize = override.GridSize
	}

	if override.BurnIn != 0 {
		out.BurnIn = override.BurnIn
	}

	if override.Alpha != 0 {
		out.Alpha = override.Alpha
	}

	if override.MaxFitFailures != 0 {
		out.MaxFitFailures = override.MaxFitFailures
	}

	if override.Parallelism != 0 {
		out.Parallelism = override.Parallelism
	}

	if override.Seed != 0 {
		out.Seed = override.Seed
	}

	if override.StopOnSingle {
		out.StopOnSingle = true
	}

	if len(override.Metrics) != 0 {
		out.Metrics = override.Metrics
	}

	if override.Policy != nil {
		out.Policy = override.Policy
	}

	if override.Logger != nil {
		out.Logger = override.Logger
	}

	if override.Progress != nil {
		out.Progress = override.Progress
	}

	return out.withDefaults()
}

// LoadOptions reads the YAML-representable subset of Options from a file and
// fills the rest with defaults. Metrics, the policy and the logger must be
// attached in code afterwards.
func LoadOptions(path string) (Options, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("race: read options: %w", err)
	}

	var o Options
	if err := yaml.Unmarshal(raw, &o); err != nil {
		return Options{}, fmt.Errorf("race: parse options: %w", err)
	}

	return o.withDefaults(), nil
}

// LoadParamSpace reads parameter declarations from a YAML file. The file is
// a list of ParamSpec documents:
//
//	- name: trees
//	  kind: integer
//	  min: 100
//	  max: 2000
//	- name: mtry
//	  kind: integer
//	  min: 1
//	  max_rule: predictors
func LoadParamSpace(path string) (ParamSpace, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ParamSpace{}, fmt.Errorf("race: read parameter space: %w", err)
	}

	var specs []ParamSpec
	if err := yaml.Unmarshal(raw, &specs); err != nil {
		return ParamSpace{}, fmt.Errorf("race: parse parameter space: %w", err)
	}

	return NewParamSpace(specs...), nil
}
