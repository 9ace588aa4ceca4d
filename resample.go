package race

import "fmt"

//////
// Resample plan: the fixed train/test partitions every workflow is raced on.
// Plans are produced externally (stratification and splitting mechanics are
// out of scope) and consumed strictly read-only.
//////

// Fold is one fixed train/test partition. Folds are shared verbatim across
// every workflow of a run, which is what makes paired (repeated-measures)
// comparison between candidates valid.
type Fold struct {
	// Index is the fold's position in the plan, starting at 0. Folds are
	// always consumed in index order.
	Index int

	// Train holds the row indices the model is fit on.
	Train []int

	// Test holds the row indices the fitted model is scored on.
	Test []int

	// Repeat optionally groups folds into repeats (e.g. "rep1" for
	// repeated cross-validation). Opaque to the scheduler.
	Repeat string
}

// Shape describes the dimensions of the dataset a plan was built from. It is
// used to resolve data-dependent parameter bounds (e.g. "max equals the
// number of predictors") before grid generation.
type Shape struct {
	// Rows is the number of observations.
	Rows int

	// Predictors is the number of predictor columns.
	Predictors int
}

// ResamplePlan is an ordered, immutable collection of folds plus the two
// pieces of dataset context the scheduler needs: the shape (for finalizing
// data-dependent bounds) and an accessor for the outcome column (for
// scoring predictions against ground truth).
//
// The plan itself never touches feature data; features stay behind the
// caller's Preprocessor and Fitter collaborators.
type ResamplePlan struct {
	folds []Fold
	shape Shape
	truth func(rows []int) []float64
}

// NewResamplePlan builds a plan from externally constructed folds.
//
// Parameters:
// - folds: the partitions, in evaluation order; indices must be 0..len-1
// - shape: dataset dimensions, used by ParamSpace.Finalize
// - truth: returns the outcome values for a set of row indices
//
// Returns an error if folds is empty, a fold index is out of sequence, or a
// fold has an empty train or test set.
func NewResamplePlan(folds []Fold, shape Shape, truth func(rows []int) []float64) (*ResamplePlan, error) {
	if len(folds) == 0 {
		return nil, ErrEmptyPlan
	}

	if truth == nil {
		return nil, fmt.Errorf("race: resample plan requires a truth accessor")
	}

	for i, f := range folds {
		if f.Index != i {
			return nil, fmt.Errorf("race: fold at position %d has index %d, want %d", i, f.Index, i)
		}

		if len(f.Train) == 0 || len(f.Test) == 0 {
			return nil, fmt.Errorf("race: fold %d has an empty partition", i)
		}
	}

	p := &ResamplePlan{
		folds: make([]Fold, len(folds)),
		shape: shape,
		truth: truth,
	}
	copy(p.folds, folds)

	return p, nil
}

// Len returns the number of folds in the plan.
func (p *ResamplePlan) Len() int { return len(p.folds) }

// Fold returns the fold at index i.
func (p *ResamplePlan) Fold(i int) Fold { return p.folds[i] }

// Shape returns the dataset dimensions the plan was built from.
func (p *ResamplePlan) Shape() Shape { return p.shape }

// Truth returns the ground-truth outcome values for the given row indices.
func (p *ResamplePlan) Truth(rows []int) []float64 { return p.truth(rows) }
