package race

import (
	"errors"
	"fmt"
)

//////
// Error taxonomy. Workflow-level failures are always isolated to their entry;
// fold-level fit failures are recorded as missing scores, never raised.
//////

var (
	// ErrUnknownWorkflow is returned when an operation references a
	// workflow id absent from the set.
	ErrUnknownWorkflow = errors.New("race: unknown workflow id")

	// ErrDuplicateWorkflow is returned by Add and Merge when a workflow id
	// collides and no disambiguation rule was enabled.
	ErrDuplicateWorkflow = errors.New("race: duplicate workflow id")

	// ErrUnresolvedBound is returned when a grid is generated from a
	// parameter space that still carries data-dependent bounds. Call
	// ParamSpace.Finalize against the plan's shape first.
	ErrUnresolvedBound = errors.New("race: data-dependent bound not finalized")

	// ErrEmptyPlan is returned when an evaluation is started with a
	// resample plan holding no folds.
	ErrEmptyPlan = errors.New("race: resample plan has no folds")
)

// ConfigurationError marks a workflow whose declared parameter space or
// options are invalid. It is fatal to the affected workflow only: the entry
// is marked failed and the rest of the set proceeds.
type ConfigurationError struct {
	WorkflowID string
	Err        error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("race: workflow %q configuration: %v", e.WorkflowID, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *ConfigurationError) Unwrap() error { return e.Err }

// FitError describes a single (candidate, fold) fit or predict failure. It is
// never returned from a tuner: the evaluator converts it into missing Score
// rows, and repeated occurrences push the candidate toward failure-based
// elimination.
type FitError struct {
	WorkflowID  string
	CandidateID int
	Fold        int
	Err         error
}

// Error implements the error interface.
func (e *FitError) Error() string {
	return fmt.Sprintf(
		"race: workflow %q candidate %d fold %d: %v",
		e.WorkflowID, e.CandidateID, e.Fold, e.Err,
	)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *FitError) Unwrap() error { return e.Err }

// WorkflowFailure wraps any uncaught error (including a recovered panic)
// raised during one workflow's evaluation. It is recorded on that workflow's
// Result and never propagates across workflow boundaries.
type WorkflowFailure struct {
	WorkflowID string
	Err        error
}

// Error implements the error interface.
func (e *WorkflowFailure) Error() string {
	return fmt.Sprintf("race: workflow %q failed: %v", e.WorkflowID, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *WorkflowFailure) Unwrap() error { return e.Err }
