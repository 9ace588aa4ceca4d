package race

import (
	"context"
	"fmt"
)

//////
// Collaborator contracts and the per-(candidate, fold) evaluator.
//
// The core never implements learning algorithms, transforms or metric
// formulas; it orchestrates calls to them through the contracts below.
//////

// Partition is an opaque handle to a subset of the caller's dataset. The
// scheduler only ever fills Rows; preprocessing may attach transformed data
// to Data and downstream collaborators read it back. The core never inspects
// Data.
type Partition struct {
	// Rows holds the row indices of this partition.
	Rows []int

	// Data is a caller-owned payload threaded through the preprocessing
	// and model contracts untouched.
	Data any
}

// Preprocessor fits a transform on the training partition and returns the
// transformer state plus the transformed training partition. Implementations
// must not look at test rows during fitting.
type Preprocessor interface {
	FitTransform(ctx context.Context, train Partition) (Transformer, Partition, error)
}

// Transformer applies an already-fitted transform to a test partition.
type Transformer interface {
	Apply(test Partition) (Partition, error)
}

// Fitter trains a model on a (possibly transformed) training partition under
// one candidate's parameter assignment.
type Fitter interface {
	Fit(ctx context.Context, train Partition, params Params) (Predictor, error)
}

// Predictor scores a test partition, returning one prediction per test row.
type Predictor interface {
	Predict(test Partition) ([]float64, error)
}

// FitterFunc adapts an ordinary function to the Fitter interface.
type FitterFunc func(ctx context.Context, train Partition, params Params) (Predictor, error)

// Fit implements Fitter.
func (f FitterFunc) Fit(ctx context.Context, train Partition, params Params) (Predictor, error) {
	return f(ctx, train, params)
}

// PredictorFunc adapts an ordinary function to the Predictor interface.
type PredictorFunc func(test Partition) ([]float64, error)

// Predict implements Predictor.
func (f PredictorFunc) Predict(test Partition) ([]float64, error) {
	return f(test)
}

// evalResult is the outcome of evaluating one candidate on one fold: either
// one value per metric, or a failure that turns into missing scores.
type evalResult struct {
	candidateID int
	values      []float64
	failed      bool
	err         error
}

// evaluate fits the workflow's preprocessing and model under one candidate on
// one fold's training partition and scores it on the fold's test partition
// for every requested metric, in one pass.
//
// Failure handling: any fit, transform or predict error is captured in the
// result rather than returned: the caller records missing Scores and counts
// the failure toward the failure-elimination threshold. Only context
// cancellation aborts.
//
// evaluate is stateless: concurrent invocations for distinct
// (candidate, fold) pairs share no mutable state.
func evaluate(
	ctx context.Context,
	wf *Workflow,
	cand Candidate,
	fold Fold,
	plan *ResamplePlan,
	metrics []Metric,
) evalResult {
	res := evalResult{candidateID: cand.ID}

	fail := func(err error) evalResult {
		res.failed = true
		res.err = &FitError{
			WorkflowID:  wf.ID,
			CandidateID: cand.ID,
			Fold:        fold.Index,
			Err:         err,
		}

		return res
	}

	train := Partition{Rows: fold.Train}
	test := Partition{Rows: fold.Test}

	// Preprocessing is optional; a nil Preprocessor passes partitions
	// through untouched.
	if wf.Preprocessor != nil {
		tr, transformed, err := wf.Preprocessor.FitTransform(ctx, train)
		if err != nil {
			return fail(fmt.Errorf("preprocess: %w", err))
		}

		train = transformed

		test, err = tr.Apply(test)
		if err != nil {
			return fail(fmt.Errorf("transform: %w", err))
		}
	}

	predictor, err := wf.Model.Fit(ctx, train, cand.Params)
	if err != nil {
		return fail(fmt.Errorf("fit: %w", err))
	}

	preds, err := predictor.Predict(test)
	if err != nil {
		return fail(fmt.Errorf("predict: %w", err))
	}

	truth := plan.Truth(fold.Test)
	if len(preds) != len(truth) {
		return fail(fmt.Errorf("predicted %d values for %d test rows", len(preds), len(truth)))
	}

	res.values = make([]float64, len(metrics))
	for i, m := range metrics {
		res.values[i] = m.Fn(preds, truth)
	}

	return res
}
