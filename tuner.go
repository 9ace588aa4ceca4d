package race

import (
	"context"
	"hash/fnv"
)

//////
// Tuners: interchangeable evaluation strategies. The WorkflowSet maps one
// tuner over every entry; new strategies plug in without touching the
// container.
//////

// Tuner evaluates one workflow against a resample plan and produces its
// Result. Implementations must be stateless values: the same tuner is
// applied to many workflows, possibly concurrently.
//
// Built-in tuners:
// - RaceTuner: fold-ordered evaluation with interim statistical elimination
// - GridTuner: exhaustive full-grid evaluation, every candidate on every fold
type Tuner interface {
	// Name identifies the strategy in results and logs.
	Name() string

	// Tune runs the strategy. opts has already been merged and defaulted
	// by the caller. Errors are workflow-fatal; fit failures are not
	// errors and surface as missing scores instead.
	Tune(ctx context.Context, wf *Workflow, plan *ResamplePlan, opts Options) (*Result, error)
}

// Result is one workflow's evaluation outcome: the generated grid, the
// append-only score rows, the per-candidate summaries and the elimination
// ledger. Read-only once produced.
type Result struct {
	// WorkflowID identifies the workflow this result belongs to.
	WorkflowID string

	// RunID groups every result produced by one WorkflowSet.Evaluate call.
	// Empty for results produced by calling a Tuner directly.
	RunID string

	// Status reports whether the workflow's evaluation completed.
	Status Status

	// Err holds the workflow-fatal error when Status is StatusFailed.
	Err error

	// Grid is the candidate arena, in generation order.
	Grid Grid

	// Scores is this workflow's slice of the score table. Empty for a
	// failed workflow.
	Scores []Score

	// Summaries holds one row per (candidate, metric).
	Summaries []Summary

	elims map[int]Elimination
}

// Eliminations returns the audit view of the race: candidate id mapped to
// the fold it was dropped at and why. Empty for GridTuner results and for
// single-candidate grids.
func (r *Result) Eliminations() map[int]Elimination {
	out := make(map[int]Elimination, len(r.elims))
	for id, e := range r.elims {
		out[id] = e
	}

	return out
}

// Survivors returns the candidate ids never eliminated, in generation order.
func (r *Result) Survivors() []int {
	var out []int

	for _, cand := range r.Grid {
		if _, gone := r.elims[cand.ID]; !gone {
			out = append(out, cand.ID)
		}
	}

	return out
}

// RaceTuner is the racing strategy: burn-in, then per-fold interim
// elimination of candidates reliably worse than the current best. See the
// package documentation for the full algorithm.
type RaceTuner struct{}

// Name implements Tuner.
func (RaceTuner) Name() string { return "race" }

// Tune implements Tuner.
func (RaceTuner) Tune(ctx context.Context, wf *Workflow, plan *ResamplePlan, opts Options) (*Result, error) {
	return newRacingController(wf, plan, opts).run(ctx)
}

// GridTuner is the exhaustive strategy: every candidate is evaluated on
// every fold, no elimination. It shares the evaluator, the score table and
// the summary derivation with RaceTuner, so a racing run and a full-grid run
// over the same grid are directly comparable.
type GridTuner struct{}

// Name implements Tuner.
func (GridTuner) Name() string { return "grid" }

// Tune implements Tuner.
func (GridTuner) Tune(ctx context.Context, wf *Workflow, plan *ResamplePlan, opts Options) (*Result, error) {
	// A racing controller whose burn-in spans the whole plan never tests:
	// exhaustive evaluation falls out of the same state machine. The
	// failure threshold is lifted too; a full-grid run evaluates every
	// candidate on every fold no matter what.
	opts.BurnIn = plan.Len() + 1
	opts.MaxFitFailures = plan.Len() + 1
	opts.StopOnSingle = false

	return newRacingController(wf, plan, opts).run(ctx)
}

// generateGrid finalizes the workflow's parameter space against the plan's
// shape and generates the candidate grid with the workflow's effective seed.
// Any failure here is a ConfigurationError: fatal to this workflow only.
func generateGrid(wf *Workflow, plan *ResamplePlan, opts Options) (Grid, error) {
	space := wf.Space

	if !space.finalized {
		finalized, err := space.Finalize(plan.Shape())
		if err != nil {
			return nil, &ConfigurationError{WorkflowID: wf.ID, Err: err}
		}

		space = finalized
	}

	grid, err := NewGrid(space, opts.GridSize, mixSeed(opts.Seed, wf.ID))
	if err != nil {
		return nil, &ConfigurationError{WorkflowID: wf.ID, Err: err}
	}

	return grid, nil
}

// mixSeed derives a workflow-specific seed from the run seed, so a set-wide
// seed still gives every workflow its own deterministic grid.
func mixSeed(seed int64, workflowID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(workflowID))

	return seed ^ int64(h.Sum64())
}
