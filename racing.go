package race

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

//////
// Racing controller: the fold-ordered scheduling state machine with interim
// statistical elimination. One controller drives exactly one workflow; no
// state is shared between workflows.
//////

// raceState is the controller's position in its lifecycle.
type raceState int

const (
	stateInitializing raceState = iota
	stateBurnIn
	stateRacing
	stateFinalizing
	stateDone
)

// racingController holds the per-workflow race state: the generated grid,
// the active-candidate set, the elimination ledger and the accumulated score
// rows. Candidates are an arena indexed by small integer ids; elimination is
// recorded in a sparse map instead of removing entries, preserving the full
// audit history.
type racingController struct {
	wf      *Workflow
	plan    *ResamplePlan
	opts    Options
	primary Metric

	state raceState
	grid  Grid

	// active holds the ids still receiving evaluations. Monotonic: an id
	// removed here is never re-added.
	active map[int]bool

	// elims maps eliminated candidate id to where and why it was dropped.
	elims map[int]Elimination

	// failures counts failed (candidate, fold) evaluations per candidate.
	failures map[int]int

	// rows is the append-only score table for this workflow.
	rows []Score

	// primaryByCand maps candidate id -> fold index -> primary-metric
	// value, non-missing folds only. Backs best selection and the paired
	// comparisons.
	primaryByCand map[int]map[int]float64
}

// newRacingController prepares a controller in the Initializing state. Zero
// option fields are defaulted here so tuners can also be invoked directly,
// outside a WorkflowSet.
func newRacingController(wf *Workflow, plan *ResamplePlan, opts Options) *racingController {
	return &racingController{
		wf:            wf,
		plan:          plan,
		opts:          opts.withDefaults(),
		state:         stateInitializing,
		active:        make(map[int]bool),
		elims:         make(map[int]Elimination),
		failures:      make(map[int]int),
		primaryByCand: make(map[int]map[int]float64),
	}
}

// run drives the state machine to completion:
//
//	Initializing -> Burn-in -> Racing -> Finalizing -> Done
//
// Burn-in evaluates the first BurnIn folds for every candidate with no
// statistical elimination. From the last burn-in fold boundary onward, every
// fold ends with an elimination step over exactly the scores produced so far
// (the per-fold barrier). Failure-based elimination applies at every fold
// boundary, including burn-in: a candidate that cannot fit is dropped
// regardless of phase.
//
// Only context cancellation (or a panic inside a collaborator, recovered by
// the caller) aborts a run; fit failures become missing scores.
func (c *racingController) run(ctx context.Context) (*Result, error) {
	if err := c.opts.Validate(); err != nil {
		return nil, &ConfigurationError{WorkflowID: c.wf.ID, Err: err}
	}

	c.primary = c.opts.Metrics[0]

	grid, err := generateGrid(c.wf, c.plan, c.opts)
	if err != nil {
		return nil, err
	}

	c.grid = grid
	for _, cand := range grid {
		c.active[cand.ID] = true
	}

	c.state = stateBurnIn

	// Single-candidate grids degenerate to plain resampling: the
	// elimination policy is never invoked.
	racing := len(grid) > 1

	for foldIdx := 0; foldIdx < c.plan.Len(); foldIdx++ {
		if foldIdx >= c.opts.BurnIn {
			c.state = stateRacing
		}

		if err := c.evaluateFold(ctx, foldIdx); err != nil {
			return nil, err
		}

		// Fold barrier reached: every active candidate's score for
		// this fold is in.
		var dropped []int

		if racing {
			dropped = c.eliminateFailures(foldIdx)

			if foldIdx >= c.opts.BurnIn-1 && len(c.active) > 1 {
				dropped = append(dropped, c.eliminateStatistical(foldIdx)...)
			}
		}

		c.sendProgress(foldIdx, dropped)

		// Every candidate can fail out at the same boundary; nothing is
		// left to evaluate then.
		if len(c.active) == 0 {
			break
		}

		if c.opts.StopOnSingle && racing && len(c.active) == 1 {
			break
		}
	}

	c.state = stateFinalizing
	summaries := c.summarize()
	c.state = stateDone

	return &Result{
		WorkflowID: c.wf.ID,
		Status:     StatusOK,
		Grid:       c.grid,
		Scores:     c.rows,
		Summaries:  summaries,
		elims:      c.elims,
	}, nil
}

// evaluateFold evaluates every active candidate on one fold, concurrently up
// to Options.Parallelism, and records the resulting scores in candidate-id
// order so the score table stays deterministic.
func (c *racingController) evaluateFold(ctx context.Context, foldIdx int) error {
	ids := sortedIDs(c.active)
	fold := c.plan.Fold(foldIdx)
	results := make([]evalResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Parallelism)

	for i, id := range ids {
		i, cand := i, c.grid[id]

		g.Go(func() (err error) {
			// A panic inside a collaborator is workflow-fatal, not
			// process-fatal.
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic in evaluation of candidate %d: %v", cand.ID, r)
				}
			}()

			if err := gctx.Err(); err != nil {
				return err
			}

			results[i] = evaluate(gctx, c.wf, cand, fold, c.plan, c.opts.Metrics)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return &WorkflowFailure{WorkflowID: c.wf.ID, Err: err}
	}

	for _, res := range results {
		c.record(foldIdx, res)
	}

	return nil
}

// record appends one candidate's fold outcome to the score table and the
// paired-comparison index.
func (c *racingController) record(foldIdx int, res evalResult) {
	for i, m := range c.opts.Metrics {
		row := Score{
			WorkflowID:  c.wf.ID,
			CandidateID: res.candidateID,
			Fold:        foldIdx,
			Metric:      m.Name,
			Missing:     res.failed,
		}

		if !res.failed {
			row.Value = res.values[i]
		}

		c.rows = append(c.rows, row)
	}

	if res.failed {
		c.failures[res.candidateID]++

		if c.opts.Logger != nil {
			c.opts.Logger.Debug("race: fit failure",
				"workflow", c.wf.ID,
				"candidate", res.candidateID,
				"fold", foldIdx,
				"error", res.err,
			)
		}

		return
	}

	byFold := c.primaryByCand[res.candidateID]
	if byFold == nil {
		byFold = make(map[int]float64, c.plan.Len())
		c.primaryByCand[res.candidateID] = byFold
	}

	byFold[foldIdx] = res.values[0]
}

// eliminateFailures drops every active candidate whose failure count crossed
// Options.MaxFitFailures. Recorded distinctly from statistical elimination.
func (c *racingController) eliminateFailures(foldIdx int) []int {
	var dropped []int

	for _, id := range sortedIDs(c.active) {
		if c.failures[id] < c.opts.MaxFitFailures {
			continue
		}

		c.eliminate(id, foldIdx, EliminatedFailure)
		dropped = append(dropped, id)
	}

	return dropped
}

// eliminateStatistical runs the interim test at a fold boundary: it finds
// the best-performing active candidate and asks the policy, for every other
// active candidate, whether the paired difference versus the best excludes
// zero on the losing side over the folds the two share.
func (c *racingController) eliminateStatistical(foldIdx int) []int {
	bestID := c.bestActive()
	comparisons := len(c.active) - 1

	var dropped []int

	for _, id := range sortedIDs(c.active) {
		if id == bestID {
			continue
		}

		bestVec, otherVec := c.paired(bestID, id)

		decision := c.opts.Policy(bestVec, otherVec, PolicyParams{
			Alpha:       c.opts.Alpha,
			Comparisons: comparisons,
		})

		if decision.Fallback {
			c.logFallback(foldIdx, bestID, id)
		}

		if decision.Eliminate {
			c.eliminate(id, foldIdx, EliminatedStatistical)
			dropped = append(dropped, id)
		}
	}

	return dropped
}

// eliminate marks one candidate inactive. Monotonic: the id never returns to
// the active set and receives no scores on any later fold.
func (c *racingController) eliminate(id, foldIdx int, reason EliminationReason) {
	delete(c.active, id)
	c.elims[id] = Elimination{CandidateID: id, Fold: foldIdx, Reason: reason}

	if c.opts.Logger != nil {
		c.opts.Logger.Info("race: candidate eliminated",
			"workflow", c.wf.ID,
			"candidate", id,
			"fold", foldIdx,
			"reason", reason.String(),
		)
	}
}

// bestActive returns the active candidate with the best oriented mean of the
// primary metric over its own scored folds, ties broken by generation order.
func (c *racingController) bestActive() int {
	bestID := -1
	bestMean := 0.0

	for _, id := range sortedIDs(c.active) {
		byFold := c.primaryByCand[id]
		if len(byFold) == 0 {
			continue
		}

		vals := make([]float64, 0, len(byFold))
		for _, v := range byFold {
			vals = append(vals, c.primary.orient(v))
		}

		m := mean(vals)
		if bestID == -1 || m < bestMean {
			bestID, bestMean = id, m
		}
	}

	if bestID == -1 {
		// Every active candidate failed every fold so far; fall back to
		// generation order so the comparison step stays well-defined.
		bestID = sortedIDs(c.active)[0]
	}

	return bestID
}

// paired returns the two candidates' primary-metric scores restricted to the
// folds BOTH were scored on, index-aligned in fold order and oriented so
// lower is better. This is the repeated-measures pairing the interim test
// requires.
func (c *racingController) paired(bestID, otherID int) (bestVec, otherVec []float64) {
	bestByFold := c.primaryByCand[bestID]
	otherByFold := c.primaryByCand[otherID]

	folds := make([]int, 0, len(bestByFold))
	for f := range bestByFold {
		if _, ok := otherByFold[f]; ok {
			folds = append(folds, f)
		}
	}

	sort.Ints(folds)

	bestVec = make([]float64, len(folds))
	otherVec = make([]float64, len(folds))

	for i, f := range folds {
		bestVec[i] = c.primary.orient(bestByFold[f])
		otherVec[i] = c.primary.orient(otherByFold[f])
	}

	return bestVec, otherVec
}

// logFallback records that the configured test degenerated at this fold and
// a plain mean comparison was used. A policy fallback, not an error.
func (c *racingController) logFallback(foldIdx, bestID, otherID int) {
	if c.opts.Logger != nil {
		c.opts.Logger.Debug("race: elimination test fell back to mean comparison",
			"workflow", c.wf.ID,
			"fold", foldIdx,
			"best", bestID,
			"candidate", otherID,
		)
	}

	c.send(RaceUpdate{
		WorkflowID: c.wf.ID,
		Phase:      PhaseFallback,
		Fold:       foldIdx,
		Active:     len(c.active),
		Best:       bestID,
	})
}

// sendProgress emits the end-of-fold update. Best is -1 when no candidate
// is active anymore.
func (c *racingController) sendProgress(foldIdx int, dropped []int) {
	phase := PhaseBurnIn
	if c.state == stateRacing {
		phase = PhaseRacing
	}

	best := -1
	if len(c.active) > 0 {
		best = c.bestActive()
	}

	c.send(RaceUpdate{
		WorkflowID: c.wf.ID,
		Phase:      phase,
		Fold:       foldIdx,
		Active:     len(c.active),
		Best:       best,
		Eliminated: dropped,
	})
}

// send delivers an update without blocking, dropping it when the channel is
// full.
func (c *racingController) send(u RaceUpdate) {
	if c.opts.Progress == nil {
		return
	}

	select {
	case c.opts.Progress <- u:
	default:
		// Skip update if channel is full.
	}
}

// summarize computes, for every candidate (active or eliminated) and every
// metric, the mean and standard error over exactly the folds the candidate
// was scored on, plus its failure count.
func (c *racingController) summarize() []Summary {
	out := make([]Summary, 0, len(c.grid)*len(c.opts.Metrics))

	// Group the raw rows per (candidate, metric), preserving fold order.
	byKey := make(map[int]map[string][]float64, len(c.grid))
	missing := make(map[int]int, len(c.grid))

	for _, row := range c.rows {
		if row.Missing {
			continue
		}

		byMetric := byKey[row.CandidateID]
		if byMetric == nil {
			byMetric = make(map[string][]float64, len(c.opts.Metrics))
			byKey[row.CandidateID] = byMetric
		}

		byMetric[row.Metric] = append(byMetric[row.Metric], row.Value)
	}

	for _, row := range c.rows {
		if row.Missing && row.Metric == c.primary.Name {
			missing[row.CandidateID]++
		}
	}

	for _, cand := range c.grid {
		for _, m := range c.opts.Metrics {
			vals := byKey[cand.ID][m.Name]

			out = append(out, Summary{
				WorkflowID:  c.wf.ID,
				CandidateID: cand.ID,
				Metric:      m.Name,
				Mean:        mean(vals),
				StdErr:      stdErr(vals),
				Folds:       len(vals),
				Failures:    missing[cand.ID],
			})
		}
	}

	return out
}
