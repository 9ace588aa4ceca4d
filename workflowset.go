package race

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

//////
// Workflow set: the named collection of workflows a tuner is mapped over.
//////

// Workflow is a named pairing of a preprocessing transform and a trainable
// model together with its hyperparameter space. Immutable once added to a
// set, except for attached options and accumulated results.
type Workflow struct {
	// ID is the workflow's unique name within its set.
	ID string

	// Preprocessor is the optional preprocessing capability. Nil means
	// partitions are passed to the model untouched.
	Preprocessor Preprocessor

	// Model is the model-fitting capability. Required.
	Model Fitter

	// Space declares the hyperparameter search space. An empty space
	// yields a single trivial candidate (plain resampling).
	Space ParamSpace

	// Options overrides the set-wide execution options for this workflow.
	// Nil inherits everything.
	Options *Options
}

// ModelSpec pairs a model capability with its parameter space, for the
// Workflows cross-product constructor.
type ModelSpec struct {
	Model Fitter
	Space ParamSpace
}

// entry is one workflow plus its accumulated result.
type entry struct {
	wf     *Workflow
	result *Result
}

// WorkflowSet maps workflow ids to workflows and accumulates per-entry
// results. Safe for concurrent use.
type WorkflowSet struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
	store   *ResultStore
}

// NewWorkflowSet returns an empty set.
func NewWorkflowSet() *WorkflowSet {
	return &WorkflowSet{
		entries: make(map[string]*entry),
		store:   NewResultStore(),
	}
}

// Workflows builds a set from the cross product of preprocessors and models,
// the usual way to screen many pipelines at once. Entry ids are derived as
// "<preproc>_<model>" ("<model>" alone when preprocs is nil or empty, in
// which case partitions pass through untouched). Iteration is over sorted
// names, so the set order is deterministic.
func Workflows(preprocs map[string]Preprocessor, models map[string]ModelSpec) (*WorkflowSet, error) {
	s := NewWorkflowSet()

	modelNames := make([]string, 0, len(models))
	for name := range models {
		modelNames = append(modelNames, name)
	}
	sort.Strings(modelNames)

	if len(preprocs) == 0 {
		preprocs = map[string]Preprocessor{"": nil}
	}

	preprocNames := make([]string, 0, len(preprocs))
	for name := range preprocs {
		preprocNames = append(preprocNames, name)
	}
	sort.Strings(preprocNames)

	for _, pn := range preprocNames {
		for _, mn := range modelNames {
			id := mn
			if pn != "" {
				id = pn + "_" + mn
			}

			spec := models[mn]

			err := s.Add(&Workflow{
				ID:           id,
				Preprocessor: preprocs[pn],
				Model:        spec.Model,
				Space:        spec.Space,
			})
			if err != nil {
				return nil, err
			}
		}
	}

	return s, nil
}

// Add inserts one workflow. Returns ErrDuplicateWorkflow if the id is taken.
func (s *WorkflowSet) Add(wf *Workflow) error {
	if wf == nil || wf.ID == "" {
		return fmt.Errorf("race: workflow requires a non-empty id")
	}

	if wf.Model == nil {
		return fmt.Errorf("race: workflow %q has no model", wf.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[wf.ID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateWorkflow, wf.ID)
	}

	s.order = append(s.order, wf.ID)
	s.entries[wf.ID] = &entry{wf: wf}

	return nil
}

// MergeOption tweaks Merge behavior.
type MergeOption func(*mergeConfig)

type mergeConfig struct {
	rename bool
}

// WithRenameOnCollision makes Merge disambiguate colliding ids by suffixing
// the incoming id with an ordinal ("id_2", "id_3", ...) instead of erroring.
func WithRenameOnCollision() MergeOption {
	return func(c *mergeConfig) { c.rename = true }
}

// Merge combines another set's workflows into this one, in the other set's
// order. Accumulated results are not carried over. An unresolved id
// collision fails with ErrDuplicateWorkflow and leaves the receiver
// unchanged.
func (s *WorkflowSet) Merge(other *WorkflowSet, opts ...MergeOption) error {
	var cfg mergeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	other.mu.RLock()
	incoming := make([]*Workflow, 0, len(other.order))
	for _, id := range other.order {
		incoming = append(incoming, other.entries[id].wf)
	}
	other.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check the whole batch first so a failed merge has no partial effect.
	if !cfg.rename {
		for _, wf := range incoming {
			if _, ok := s.entries[wf.ID]; ok {
				return fmt.Errorf("%w: %q", ErrDuplicateWorkflow, wf.ID)
			}
		}
	}

	for _, wf := range incoming {
		id := wf.ID

		for n := 2; ; n++ {
			if _, ok := s.entries[id]; !ok {
				break
			}

			id = fmt.Sprintf("%s_%d", wf.ID, n)
		}

		added := *wf
		added.ID = id

		s.order = append(s.order, id)
		s.entries[id] = &entry{wf: &added}
	}

	return nil
}

// SetOptions attaches execution options to one workflow, replacing any
// previous override. Fails with ErrUnknownWorkflow if the id is absent.
func (s *WorkflowSet) SetOptions(id string, opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownWorkflow, id)
	}

	e.wf.Options = &opts

	return nil
}

// Len returns the number of workflows in the set.
func (s *WorkflowSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.order)
}

// IDs returns the workflow ids in the order they were added.
func (s *WorkflowSet) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.order))
	copy(out, s.order)

	return out
}

// Result returns one workflow's result from the last Evaluate call. Fails
// with ErrUnknownWorkflow for an absent id; returns nil when the workflow
// has not been evaluated yet.
func (s *WorkflowSet) Result(id string) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkflow, id)
	}

	return e.result, nil
}

// Evaluate applies one tuner independently to every workflow in the set.
//
// Failure isolation is at workflow granularity: an unrecoverable error, or
// a panic inside a collaborator, in one workflow's evaluation marks only
// that entry failed; every other workflow proceeds. Evaluate itself errors
// only on unusable arguments (nil tuner, empty plan, options without
// metrics); once the run starts it always completes with per-entry status.
//
// Workflows run concurrently (each one internally bounded by
// Options.Parallelism per fold); results are committed in set order once all
// workflows finish, so the accumulated tables are deterministic for a fixed
// seed and plan.
func (s *WorkflowSet) Evaluate(ctx context.Context, tuner Tuner, plan *ResamplePlan, common Options) error {
	if tuner == nil {
		return fmt.Errorf("race: evaluate requires a tuner")
	}

	if plan == nil || plan.Len() == 0 {
		return ErrEmptyPlan
	}

	common = common.withDefaults()
	if err := common.Validate(); err != nil {
		return err
	}

	runID := uuid.NewString()

	s.mu.RLock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)

	wfs := make([]*Workflow, len(ids))
	for i, id := range ids {
		wfs[i] = s.entries[id].wf
	}
	s.mu.RUnlock()

	results := make([]*Result, len(ids))

	g := new(errgroup.Group)

	for i, wf := range wfs {
		i, wf := i, wf

		g.Go(func() error {
			results[i] = tuneOne(ctx, tuner, wf, plan, common)
			results[i].RunID = runID

			return nil
		})
	}

	// Per-entry errors live on the results; the group itself never fails.
	_ = g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, id := range ids {
		if e, ok := s.entries[id]; ok {
			e.result = results[i]
		}

		s.store.Append(results[i])
	}

	return nil
}

// tuneOne runs one workflow under panic isolation, always returning a
// Result.
func tuneOne(ctx context.Context, tuner Tuner, wf *Workflow, plan *ResamplePlan, common Options) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			res = failedResult(wf.ID, &WorkflowFailure{
				WorkflowID: wf.ID,
				Err:        fmt.Errorf("panic: %v", r),
			})
		}
	}()

	opts := common.merge(wf.Options)
	if err := opts.Validate(); err != nil {
		return failedResult(wf.ID, &ConfigurationError{WorkflowID: wf.ID, Err: err})
	}

	out, err := tuner.Tune(ctx, wf, plan, opts)
	if err != nil {
		return failedResult(wf.ID, err)
	}

	return out
}

// failedResult builds the failed-entry marker for one workflow.
func failedResult(id string, err error) *Result {
	return &Result{WorkflowID: id, Status: StatusFailed, Err: err}
}

// Store exposes the accumulated result store.
func (s *WorkflowSet) Store() *ResultStore { return s.store }

// CollectScores returns the full score table accumulated across every
// non-failed workflow.
func (s *WorkflowSet) CollectScores() []Score { return s.store.Scores() }

// Rank returns the ranking view over the accumulated results. Failed
// workflows are silently excluded. See ResultStore.Rank.
func (s *WorkflowSet) Rank(metric Metric, selectBest bool) []RankedEntry {
	return s.store.Rank(metric, selectBest)
}
