// Package race screens many candidate (preprocessing x model x
// hyperparameter) combinations against resampled data partitions and selects
// the best performer, without paying for a full evaluation of every
// combination on every partition. It does so by racing: candidates are
// evaluated fold by fold, and after a short burn-in an interim statistical
// test eliminates candidates that are already reliably worse than the
// current leader.
//
// # Features
//
// The package includes the following key features:
//
//   - Racing scheduler: fold-ordered evaluation with a per-fold barrier and
//     monotonic candidate elimination
//   - Pluggable elimination policies: Bonferroni-adjusted paired-t intervals
//     by default, plain mean comparison as an alternative or fallback
//   - Space-filling candidate grids: Latin hypercube sampling over mixed
//     continuous/integer/categorical spaces, with data-dependent bounds
//     resolved against the actual dataset shape
//   - Workflow sets: screen many preprocessing/model pairings in one run,
//     with per-workflow options and per-workflow failure isolation
//   - Interchangeable strategies: RaceTuner and GridTuner satisfy one Tuner
//     contract, so exhaustive and racing runs are directly comparable
//   - Relational results: an append-only score table plus derived summary
//     and ranking views with deterministic tie-breaking
//   - Deterministic: an explicit seed threads through grid generation; the
//     same seed, plan and configuration reproduce the same race
//   - Progress monitoring: real-time updates per fold via channels
//
// # The racing algorithm
//
// Per workflow, the controller moves through
// Initializing -> Burn-in -> Racing -> Finalizing -> Done:
//
//  1. A candidate grid is generated from the workflow's parameter space.
//  2. The first BurnIn folds are evaluated for every candidate with no
//     elimination, establishing a repeated-measures baseline.
//  3. From then on, each fold is evaluated for every active candidate (a
//     synchronization barrier), the best performer is identified, and every
//     other candidate's paired difference versus the best, over the folds
//     both share, is tested. Candidates whose interval excludes zero on the
//     losing side are eliminated and never evaluated again.
//  4. Finalizing computes each candidate's mean, standard error and
//     evaluated-fold count over exactly the folds it was scored on.
//
// When only one candidate remains, the race keeps evaluating it on the
// remaining folds so its final estimate is unbiased; Options.StopOnSingle
// trades that for an early stop.
//
// # Usage
//
//	plan, _ := race.NewResamplePlan(folds, race.Shape{Rows: 1000, Predictors: 20}, truth)
//
//	set := race.NewWorkflowSet()
//	_ = set.Add(&race.Workflow{
//	    ID:    "boost",
//	    Model: boostFitter,
//	    Space: race.NewParamSpace(
//	        race.Range("trees", 100, 2000),
//	        race.Range("learn_rate", 0.001, 0.3),
//	        race.Range("mtry", 1, 1).BoundedAbove(race.BoundPredictors),
//	    ),
//	})
//
//	opts := race.DefaultOptions()
//	opts.Metrics = []race.Metric{{Name: "rmse", Direction: race.Minimize, Fn: rmse}}
//	opts.Seed = 42
//
//	_ = set.Evaluate(ctx, race.RaceTuner{}, plan, opts)
//
//	for _, row := range set.Rank(opts.Metrics[0], true) {
//	    fmt.Println(row.Rank, row.WorkflowID, row.CandidateID, row.Mean)
//	}
//
// # Failure isolation
//
// A single fit or predict failure becomes a missing score, not an error;
// candidates crossing the failure threshold are eliminated for cause,
// recorded distinctly from statistical elimination. An unrecoverable error
// (or panic) inside one workflow marks only that entry failed; the set
// always completes with per-entry status.
//
// # Concurrency
//
// Evaluations for distinct (workflow, candidate, fold) triples share no
// mutable state and run concurrently, bounded by Options.Parallelism within
// each fold; workflows race each other independently. The per-fold
// elimination barrier is mandatory and always respected. A hung collaborator
// stalls only its own workflow's barrier; cancel the context to abandon it.
package race
