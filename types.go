package race

//////
// Core data model shared by grid generation, racing and ranking.
//////

// Direction declares whether a metric is better when smaller or when larger.
// Every Metric carries one, and all best-candidate selection, elimination and
// ranking decisions honor it.
type Direction int

const (
	// Minimize means lower metric values are better (e.g. RMSE, log-loss).
	Minimize Direction = iota

	// Maximize means higher metric values are better (e.g. accuracy, AUC).
	Maximize
)

// Metric is a scoring capability consumed by the tuners. The core never
// implements metric formulas itself; it calls Fn with the model's predictions
// and the matching ground truth and records the scalar it returns.
//
// Fields:
// - Name: unique within a run, used as the key in Score and Summary rows
// - Direction: optimization direction used for comparison and ranking
// - Fn: the formula, (predictions, truth) -> scalar
//
// The first metric in Options.Metrics is the primary metric: it drives the
// elimination decisions and the default ranking.
type Metric struct {
	Name      string
	Direction Direction
	Fn        func(pred, truth []float64) float64
}

// orient maps a metric value onto a "lower is better" scale so the rest of
// the code can compare without branching on Direction.
func (m Metric) orient(v float64) float64 {
	if m.Direction == Maximize {
		return -v
	}

	return v
}

// Candidate is one concrete hyperparameter assignment within a workflow's
// parameter space. IDs are small sequential integers assigned at grid
// generation time; generation order is the deterministic tie-break used by
// best-candidate selection and ranking. Candidates are never mutated after
// generation.
type Candidate struct {
	// ID is the candidate's index in generation order, starting at 0.
	ID int

	// Params maps parameter name to the concrete value assigned for this
	// candidate. Empty for the degenerate single candidate of an empty
	// parameter space.
	Params Params
}

// Grid is the set of candidates generated for one workflow.
type Grid []Candidate

// Score is one row of the append-only score table: the value of one metric
// for one candidate on one fold. At most one Score exists per
// (workflow, candidate, fold, metric). Immutable once recorded.
type Score struct {
	WorkflowID  string
	CandidateID int
	Fold        int
	Metric      string

	// Value is the metric value. Meaningless when Missing is set.
	Value float64

	// Missing marks a fit or predict failure for this (candidate, fold)
	// pair. Missing scores are excluded from all means and paired
	// comparisons and count toward the failure-elimination threshold.
	Missing bool
}

// Summary is one row of the derived summary table: per (workflow, candidate,
// metric), the mean and standard error over exactly the folds the candidate
// was actually scored on.
type Summary struct {
	WorkflowID  string
	CandidateID int
	Metric      string

	// Mean over the non-missing folds.
	Mean float64

	// StdErr is the standard error of the mean (sample stddev / sqrt(n)).
	// Zero when fewer than two folds were scored.
	StdErr float64

	// Folds is the number of folds with a non-missing score.
	Folds int

	// Failures is the number of folds whose evaluation failed.
	Failures int
}

// RankedEntry is one row of the ranking view produced by Rank: a summary row
// plus its assigned rank. Ranks start at 1 and have no gaps.
type RankedEntry struct {
	Rank        int
	WorkflowID  string
	CandidateID int
	Metric      string
	Mean        float64
	StdErr      float64
	Folds       int
}

// EliminationReason distinguishes why a candidate was dropped from the race.
type EliminationReason int

const (
	// EliminatedStatistical means the interim test concluded the candidate
	// is reliably worse than the current best.
	EliminatedStatistical EliminationReason = iota

	// EliminatedFailure means the candidate crossed the fit-failure
	// threshold, independent of any statistical comparison.
	EliminatedFailure
)

// String returns a short label for logs and progress updates.
func (r EliminationReason) String() string {
	if r == EliminatedFailure {
		return "failure"
	}

	return "statistical"
}

// Elimination records where and why a candidate left the race. Elimination is
// monotonic: once recorded, the candidate receives no further evaluations.
type Elimination struct {
	CandidateID int
	Fold        int
	Reason      EliminationReason
}

// Phase labels the stage a RaceUpdate was emitted from.
type Phase string

const (
	// PhaseBurnIn covers the first BurnIn folds, evaluated for every
	// candidate with no statistical elimination.
	PhaseBurnIn Phase = "burn-in"

	// PhaseRacing covers the folds where interim elimination runs.
	PhaseRacing Phase = "racing"

	// PhaseFallback marks a fold where the statistical test degenerated
	// (zero variance or too few paired folds) and a plain mean comparison
	// was used instead. Informational, not an error.
	PhaseFallback Phase = "fallback"

	// PhaseDone marks the end of a workflow's race.
	PhaseDone Phase = "done"
)

// RaceUpdate represents the current state of one workflow's race. Updates are
// sent on Options.Progress when it is non-nil; sends never block (updates are
// dropped when the channel is full).
type RaceUpdate struct {
	// WorkflowID identifies which workflow's race this update belongs to.
	WorkflowID string

	// Phase indicates the stage the race is in.
	Phase Phase

	// Fold is the fold index the update was emitted after.
	Fold int

	// Active is the number of candidates still in the race.
	Active int

	// Best is the id of the current best-performing active candidate, or
	// -1 when every candidate has been eliminated.
	Best int

	// Eliminated lists the candidate ids dropped at this fold, if any.
	Eliminated []int
}

// Status is the terminal state of one workflow's evaluation within a set.
type Status int

const (
	// StatusOK means the workflow's tuner ran to completion.
	StatusOK Status = iota

	// StatusFailed means an unrecoverable error aborted this workflow.
	// Other workflows in the set are unaffected.
	StatusFailed
)

// String returns "ok" or "failed".
func (s Status) String() string {
	if s == StatusFailed {
		return "failed"
	}

	return "ok"
}
