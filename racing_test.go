package race

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//////
// Test harness: a scripted evaluation pipeline with fully deterministic
// scores, so elimination decisions can be asserted exactly.
//
// The plan is built so fold i tests exactly row i, the truth is all zeros,
// and the scripted model predicts score(cfg, fold) directly, so the absolute
// error metric equals the scripted score.
//////

// testPlan builds a plan with n leave-one-out style folds over n rows.
func testPlan(t *testing.T, n int) *ResamplePlan {
	t.Helper()

	folds := make([]Fold, n)

	for i := 0; i < n; i++ {
		var train []int
		for r := 0; r < n; r++ {
			if r != i {
				train = append(train, r)
			}
		}

		folds[i] = Fold{Index: i, Train: train, Test: []int{i}}
	}

	plan, err := NewResamplePlan(folds, Shape{Rows: n, Predictors: 4}, func(rows []int) []float64 {
		return make([]float64, len(rows))
	})
	require.NoError(t, err)

	return plan
}

// cfgSpace declares a single categorical parameter with levels c0..c{n-1}.
// With GridSize == n the space-filling design assigns every level to exactly
// one candidate, giving the tests a stable handle on each candidate's
// scripted behavior.
func cfgSpace(levels ...string) ParamSpace {
	return NewParamSpace(Categorical("cfg", levels...))
}

// scriptedFitter builds a Fitter whose predictions on fold f are exactly
// score(cfg, f). A nil error from fail means the fit succeeds.
func scriptedFitter(score func(cfg string, fold int) float64, fail func(cfg string) error) Fitter {
	return FitterFunc(func(_ context.Context, _ Partition, params Params) (Predictor, error) {
		cfg := params["cfg"].Str

		if fail != nil {
			if err := fail(cfg); err != nil {
				return nil, err
			}
		}

		return PredictorFunc(func(test Partition) ([]float64, error) {
			out := make([]float64, len(test.Rows))
			for i, r := range test.Rows {
				out[i] = score(cfg, r)
			}

			return out, nil
		}), nil
	})
}

// absErr is the primary metric of the scripted pipeline: mean absolute
// error, which over a single zero test row is just the predicted value.
func absErr() Metric {
	return Metric{
		Name:      "err",
		Direction: Minimize,
		Fn: func(pred, truth []float64) float64 {
			var s float64
			for i := range pred {
				s += math.Abs(pred[i] - truth[i])
			}

			return s / float64(len(pred))
		},
	}
}

// cfgIdx maps a level "c3" to 3.
func cfgIdx(cfg string) int { return int(cfg[len(cfg)-1] - '0') }

// candidateByCfg finds the candidate carrying a given level.
func candidateByCfg(t *testing.T, grid Grid, cfg string) Candidate {
	t.Helper()

	for _, cand := range grid {
		if cand.Params["cfg"].Str == cfg {
			return cand
		}
	}

	t.Fatalf("no candidate with cfg %q", cfg)

	return Candidate{}
}

// separatedScore scripts one clearly best configuration (c0, mean 3.2) and
// four clearly worse ones (means 4.0 and up), with a small deterministic
// jitter so the paired differences have nonzero variance and the interval
// path is exercised rather than the fallback.
func separatedScore(cfg string, fold int) float64 {
	bases := []float64{3.2, 4.0, 4.1, 4.2, 4.3}
	idx := cfgIdx(cfg)

	jitter := 0.01 * float64(((idx+1)*(fold+1))%5)

	return bases[idx] + jitter
}

func raceOptions(metrics ...Metric) Options {
	opts := DefaultOptions()
	opts.GridSize = 5
	opts.Metrics = metrics
	opts.Seed = 7

	return opts
}

// Grid of 5, 10 folds, burn-in 3, alpha 0.05, one clear winner.
// Every inferior candidate must be eliminated at the first test boundary
// (fold index 2, i.e. after the third fold) and receive no scores afterward,
// while the winner is evaluated on the full plan.
func TestRaceEliminatesClearLosers(t *testing.T) {
	plan := testPlan(t, 10)
	wf := &Workflow{
		ID:    "boost",
		Model: scriptedFitter(separatedScore, nil),
		Space: cfgSpace("c0", "c1", "c2", "c3", "c4"),
	}

	res, err := RaceTuner{}.Tune(context.Background(), wf, plan, raceOptions(absErr()))
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)
	require.Len(t, res.Grid, 5)

	best := candidateByCfg(t, res.Grid, "c0")
	assert.Equal(t, []int{best.ID}, res.Survivors())

	elims := res.Eliminations()
	assert.Len(t, elims, 4)

	for cfg := 1; cfg <= 4; cfg++ {
		cand := candidateByCfg(t, res.Grid, "c"+string(rune('0'+cfg)))

		e, ok := elims[cand.ID]
		require.True(t, ok)
		assert.Equal(t, 2, e.Fold, "losers leave at the first test boundary")
		assert.Equal(t, EliminatedStatistical, e.Reason)
	}

	// The winner has 10 scores, each loser exactly 3 (folds 0..2).
	counts := make(map[int]int)
	for _, row := range res.Scores {
		counts[row.CandidateID]++

		if row.CandidateID != best.ID {
			assert.LessOrEqual(t, row.Fold, 2)
		}
	}

	assert.Equal(t, 10, counts[best.ID])
	for _, cand := range res.Grid {
		if cand.ID != best.ID {
			assert.Equal(t, 3, counts[cand.ID])
		}
	}

	// The winner's summary covers the full plan.
	for _, sum := range res.Summaries {
		if sum.CandidateID == best.ID {
			assert.Equal(t, 10, sum.Folds)
		}
	}
}

// Every candidate's scored folds form a gapless prefix
// of the fold sequence ending at its elimination fold, and nothing is ever
// scored past an elimination.
func TestScoredFoldsFormPrefix(t *testing.T) {
	plan := testPlan(t, 8)
	wf := &Workflow{
		ID:    "boost",
		Model: scriptedFitter(separatedScore, nil),
		Space: cfgSpace("c0", "c1", "c2", "c3", "c4"),
	}

	res, err := RaceTuner{}.Tune(context.Background(), wf, plan, raceOptions(absErr()))
	require.NoError(t, err)

	elims := res.Eliminations()

	byCand := make(map[int]map[int]bool)
	for _, row := range res.Scores {
		if byCand[row.CandidateID] == nil {
			byCand[row.CandidateID] = make(map[int]bool)
		}

		byCand[row.CandidateID][row.Fold] = true
	}

	for _, cand := range res.Grid {
		folds := byCand[cand.ID]

		last := plan.Len() - 1
		if e, gone := elims[cand.ID]; gone {
			last = e.Fold
		}

		require.Len(t, folds, last+1, "candidate %d", cand.ID)
		for f := 0; f <= last; f++ {
			assert.True(t, folds[f], "candidate %d missing fold %d", cand.ID, f)
		}
	}
}

// An empty parameter space yields exactly one candidate,
// the elimination policy is never consulted, and the lone candidate is
// scored on every fold.
func TestEmptySpaceIsPlainResampling(t *testing.T) {
	plan := testPlan(t, 10)
	wf := &Workflow{
		ID: "lm",
		Model: scriptedFitter(func(string, int) float64 { return 1 }, nil),
	}

	policyCalls := 0
	opts := raceOptions(absErr())
	opts.Policy = func(best, other []float64, params PolicyParams) Decision {
		policyCalls++

		return Decision{}
	}

	res, err := RaceTuner{}.Tune(context.Background(), wf, plan, opts)
	require.NoError(t, err)

	require.Len(t, res.Grid, 1)
	assert.Zero(t, policyCalls)
	assert.Empty(t, res.Eliminations())
	assert.Len(t, res.Scores, 10)

	require.Len(t, res.Summaries, 1)
	assert.Equal(t, 10, res.Summaries[0].Folds)
}

// Identical seed, plan and configuration reproduce the same
// grid and the same elimination decisions.
func TestRaceIsDeterministic(t *testing.T) {
	run := func() *Result {
		plan := testPlan(t, 10)
		wf := &Workflow{
			ID:    "boost",
			Model: scriptedFitter(separatedScore, nil),
			Space: cfgSpace("c0", "c1", "c2", "c3", "c4"),
		}

		res, err := RaceTuner{}.Tune(context.Background(), wf, plan, raceOptions(absErr()))
		require.NoError(t, err)

		return res
	}

	a, b := run(), run()

	assert.Equal(t, a.Grid, b.Grid)
	assert.Equal(t, a.Eliminations(), b.Eliminations())
	assert.Equal(t, a.Scores, b.Scores)
}

// Two statistically indistinguishable candidates must both survive the full
// plan: the paired interval keeps covering zero.
func TestCloseCandidatesBothSurvive(t *testing.T) {
	noise := []float64{0.05, -0.05, 0.04, -0.04, 0.03, -0.03, 0.02, -0.02, 0.01, -0.01}

	score := func(cfg string, fold int) float64 {
		idx := cfgIdx(cfg)

		return 3.2 + 0.01*float64(idx) + noise[fold]*float64(idx+1)
	}

	plan := testPlan(t, 10)
	wf := &Workflow{
		ID:    "boost",
		Model: scriptedFitter(score, nil),
		Space: cfgSpace("c0", "c1"),
	}

	opts := raceOptions(absErr())
	opts.GridSize = 2

	res, err := RaceTuner{}.Tune(context.Background(), wf, plan, opts)
	require.NoError(t, err)

	assert.Empty(t, res.Eliminations())
	assert.Len(t, res.Survivors(), 2)
	assert.Len(t, res.Scores, 20)
}

// StopOnSingle skips the remaining folds once one candidate is left; the
// survivor's summary reflects only the folds actually run.
func TestStopOnSingle(t *testing.T) {
	plan := testPlan(t, 10)
	wf := &Workflow{
		ID:    "boost",
		Model: scriptedFitter(separatedScore, nil),
		Space: cfgSpace("c0", "c1", "c2", "c3", "c4"),
	}

	opts := raceOptions(absErr())
	opts.StopOnSingle = true

	res, err := RaceTuner{}.Tune(context.Background(), wf, plan, opts)
	require.NoError(t, err)

	best := candidateByCfg(t, res.Grid, "c0")
	require.Equal(t, []int{best.ID}, res.Survivors())

	for _, sum := range res.Summaries {
		if sum.CandidateID == best.ID {
			assert.Equal(t, 3, sum.Folds, "race stopped at the first test boundary")
		}
	}
}

// A candidate that keeps failing to fit is eliminated for failure reasons,
// recorded distinctly from statistical elimination, and its failures show up
// in the summary.
func TestFailureElimination(t *testing.T) {
	score := func(string, int) float64 { return 1 }
	fail := func(cfg string) error {
		if cfg == "c1" {
			return assert.AnError
		}

		return nil
	}

	plan := testPlan(t, 10)
	wf := &Workflow{
		ID:    "boost",
		Model: scriptedFitter(score, fail),
		Space: cfgSpace("c0", "c1"),
	}

	opts := raceOptions(absErr())
	opts.GridSize = 2

	res, err := RaceTuner{}.Tune(context.Background(), wf, plan, opts)
	require.NoError(t, err)

	bad := candidateByCfg(t, res.Grid, "c1")

	e, ok := res.Eliminations()[bad.ID]
	require.True(t, ok)
	assert.Equal(t, EliminatedFailure, e.Reason)
	assert.Equal(t, 2, e.Fold, "dropped once the third failure lands")

	for _, row := range res.Scores {
		if row.CandidateID == bad.ID {
			assert.True(t, row.Missing)
			assert.LessOrEqual(t, row.Fold, 2)
		}
	}

	for _, sum := range res.Summaries {
		if sum.CandidateID == bad.ID {
			assert.Zero(t, sum.Folds)
			assert.Equal(t, 3, sum.Failures)
		}
	}
}

// A model that cannot fit any candidate empties the race at one boundary.
// The run must still complete normally with every candidate recorded as
// eliminated for failure, no scores past the final boundary, and the
// progress stream reporting no best candidate.
func TestAllCandidatesFailOut(t *testing.T) {
	fail := func(string) error { return assert.AnError }

	plan := testPlan(t, 10)
	wf := &Workflow{
		ID:    "boost",
		Model: scriptedFitter(func(string, int) float64 { return 1 }, fail),
		Space: cfgSpace("c0", "c1"),
	}

	progress := make(chan RaceUpdate, 64)
	opts := raceOptions(absErr())
	opts.GridSize = 2
	opts.Progress = progress

	res, err := RaceTuner{}.Tune(context.Background(), wf, plan, opts)
	require.NoError(t, err)
	close(progress)

	assert.Equal(t, StatusOK, res.Status)
	assert.Empty(t, res.Survivors())

	elims := res.Eliminations()
	require.Len(t, elims, 2)

	for _, cand := range res.Grid {
		e, ok := elims[cand.ID]
		require.True(t, ok)
		assert.Equal(t, EliminatedFailure, e.Reason)
		assert.Equal(t, 2, e.Fold, "dropped once the third failure lands")
	}

	for _, row := range res.Scores {
		assert.True(t, row.Missing)
		assert.LessOrEqual(t, row.Fold, 2)
	}

	for _, sum := range res.Summaries {
		assert.Zero(t, sum.Folds)
		assert.Equal(t, 3, sum.Failures)
	}

	var last RaceUpdate
	for u := range progress {
		last = u
	}

	assert.Zero(t, last.Active)
	assert.Equal(t, -1, last.Best)
}

// A zero-variance score distribution cannot support an interval; the policy
// falls back to a plain mean comparison and the fallback is surfaced on the
// progress channel.
func TestZeroVarianceFallsBackToMeanComparison(t *testing.T) {
	score := func(cfg string, _ int) float64 {
		if cfg == "c0" {
			return 3.2
		}

		return 4.0
	}

	progress := make(chan RaceUpdate, 64)

	plan := testPlan(t, 6)
	wf := &Workflow{
		ID:    "boost",
		Model: scriptedFitter(score, nil),
		Space: cfgSpace("c0", "c1"),
	}

	opts := raceOptions(absErr())
	opts.GridSize = 2
	opts.Progress = progress

	res, err := RaceTuner{}.Tune(context.Background(), wf, plan, opts)
	require.NoError(t, err)

	bad := candidateByCfg(t, res.Grid, "c1")

	e, ok := res.Eliminations()[bad.ID]
	require.True(t, ok)
	assert.Equal(t, EliminatedStatistical, e.Reason)

	close(progress)

	sawFallback := false
	for u := range progress {
		if u.Phase == PhaseFallback {
			sawFallback = true
		}
	}

	assert.True(t, sawFallback)
}

// With a Maximize metric the direction flips: the highest-scoring candidate
// leads and the lower one is eliminated.
func TestMaximizeMetricDirection(t *testing.T) {
	score := func(cfg string, fold int) float64 {
		base := 0.9
		if cfg == "c1" {
			base = 0.6
		}

		return base + 0.002*float64(((cfgIdx(cfg)+1)*(fold+1))%5)
	}

	plan := testPlan(t, 10)
	wf := &Workflow{
		ID:    "boost",
		Model: scriptedFitter(score, nil),
		Space: cfgSpace("c0", "c1"),
	}

	acc := Metric{Name: "accuracy", Direction: Maximize, Fn: absErr().Fn}

	opts := raceOptions(acc)
	opts.GridSize = 2

	res, err := RaceTuner{}.Tune(context.Background(), wf, plan, opts)
	require.NoError(t, err)

	best := candidateByCfg(t, res.Grid, "c0")
	assert.Equal(t, []int{best.ID}, res.Survivors())
}

// A racing run and a full-grid run over the same plan and grid
// select the same best candidate when one candidate is clearly separated.
func TestRaceAgreesWithFullGrid(t *testing.T) {
	plan := testPlan(t, 10)

	newWf := func() *Workflow {
		return &Workflow{
			ID:    "boost",
			Model: scriptedFitter(separatedScore, nil),
			Space: cfgSpace("c0", "c1", "c2", "c3", "c4"),
		}
	}

	raced, err := RaceTuner{}.Tune(context.Background(), newWf(), plan, raceOptions(absErr()))
	require.NoError(t, err)

	full, err := GridTuner{}.Tune(context.Background(), newWf(), plan, raceOptions(absErr()))
	require.NoError(t, err)

	// Same seed, same space: the two strategies share the grid.
	require.Equal(t, raced.Grid, full.Grid)

	assert.Len(t, full.Survivors(), 5, "full grid never eliminates")
	assert.Equal(t, bestByMean(raced, "err"), bestByMean(full, "err"))
}

// bestByMean returns the candidate id with the lowest mean for a metric,
// considering only candidates with at least one scored fold.
func bestByMean(res *Result, metric string) int {
	bestID, bestMean := -1, math.Inf(1)

	for _, sum := range res.Summaries {
		if sum.Metric != metric || sum.Folds == 0 {
			continue
		}

		if sum.Mean < bestMean {
			bestID, bestMean = sum.CandidateID, sum.Mean
		}
	}

	return bestID
}

// Parallel fold evaluation must produce byte-identical results to the
// sequential schedule: the barrier, not the goroutine interleaving, decides
// what gets evaluated.
func TestParallelismDoesNotChangeResults(t *testing.T) {
	run := func(parallelism int) *Result {
		plan := testPlan(t, 10)
		wf := &Workflow{
			ID:    "boost",
			Model: scriptedFitter(separatedScore, nil),
			Space: cfgSpace("c0", "c1", "c2", "c3", "c4"),
		}

		opts := raceOptions(absErr())
		opts.Parallelism = parallelism

		res, err := RaceTuner{}.Tune(context.Background(), wf, plan, opts)
		require.NoError(t, err)

		return res
	}

	assert.Equal(t, run(1).Scores, run(8).Scores)
}

// Cancelling the context aborts the race with a WorkflowFailure.
func TestCancellationAbortsRace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := testPlan(t, 10)
	wf := &Workflow{
		ID:    "boost",
		Model: scriptedFitter(separatedScore, nil),
		Space: cfgSpace("c0", "c1", "c2", "c3", "c4"),
	}

	_, err := RaceTuner{}.Tune(ctx, wf, plan, raceOptions(absErr()))

	var wfErr *WorkflowFailure
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, "boost", wfErr.WorkflowID)
}
