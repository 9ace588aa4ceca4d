package race

import (
	"sort"
	"sync"
)

//////
// Result store: the set-level relational view over everything the tuners
// produced. Rows are append-only; ranking is a derived, deterministic view.
//////

// ResultStore accumulates the score and summary tables across every
// non-failed workflow of a set, in workflow order. Appending is the only
// mutation; all reads return copies.
type ResultStore struct {
	mu sync.RWMutex

	// order is the append order of workflow ids, the outer tie-break for
	// ranking.
	order []string

	scores    []Score
	summaries []Summary

	// survivors maps workflow id -> candidate ids never eliminated.
	survivors map[string]map[int]bool
}

// NewResultStore returns an empty store.
func NewResultStore() *ResultStore {
	return &ResultStore{survivors: make(map[string]map[int]bool)}
}

// Append adds one workflow's result to the tables. Failed results contribute
// nothing: a failed workflow has no rows anywhere in the store.
//
// Re-appending a workflow id (a repeated Evaluate over the same set) keeps
// the score rows of every run but replaces the workflow's summary and
// survivor views with the latest run's, so ranking always reflects exactly
// one run per workflow. The id keeps its original tie-break position.
func (s *ResultStore) Append(res *Result) {
	if res == nil || res.Status != StatusOK {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.survivors[res.WorkflowID]; seen {
		s.dropSummaries(res.WorkflowID)
	} else {
		s.order = append(s.order, res.WorkflowID)
	}

	s.scores = append(s.scores, res.Scores...)
	s.summaries = append(s.summaries, res.Summaries...)

	alive := make(map[int]bool, len(res.Grid))
	for _, id := range res.Survivors() {
		alive[id] = true
	}

	s.survivors[res.WorkflowID] = alive
}

// dropSummaries removes one workflow's summary rows ahead of the latest
// run's replacements. Caller holds the write lock.
func (s *ResultStore) dropSummaries(workflowID string) {
	kept := s.summaries[:0]

	for _, sum := range s.summaries {
		if sum.WorkflowID != workflowID {
			kept = append(kept, sum)
		}
	}

	s.summaries = kept
}

// Scores returns a copy of the full score table.
func (s *ResultStore) Scores() []Score {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Score, len(s.scores))
	copy(out, s.scores)

	return out
}

// Summaries returns a copy of the full summary table.
func (s *ResultStore) Summaries() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, len(s.summaries))
	copy(out, s.summaries)

	return out
}

// Rank returns the ranking view for one metric.
//
// Parameters:
//   - metric: the metric to rank by; its Direction decides the order
//   - selectBest: when set, each workflow is first reduced to its single
//     best-performing candidate, so the view holds exactly one row per
//     non-failed workflow
//
// Ordering is a stable total order: by oriented metric value, ties broken by
// workflow append order and then candidate generation order, never by map
// iteration order. Ranks are assigned sequentially from 1 with no gaps.
//
// Only surviving candidates with at least one scored fold are ranked;
// eliminated candidates keep their summaries but do not appear here.
func (s *ResultStore) Rank(metric Metric, selectBest bool) []RankedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orderIdx := make(map[string]int, len(s.order))
	for i, id := range s.order {
		orderIdx[id] = i
	}

	var rows []Summary

	for _, sum := range s.summaries {
		if sum.Metric != metric.Name || sum.Folds == 0 {
			continue
		}

		if !s.survivors[sum.WorkflowID][sum.CandidateID] {
			continue
		}

		rows = append(rows, sum)
	}

	if selectBest {
		rows = bestPerWorkflow(rows, metric)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		vi, vj := metric.orient(rows[i].Mean), metric.orient(rows[j].Mean)
		if vi != vj {
			return vi < vj
		}

		oi, oj := orderIdx[rows[i].WorkflowID], orderIdx[rows[j].WorkflowID]
		if oi != oj {
			return oi < oj
		}

		return rows[i].CandidateID < rows[j].CandidateID
	})

	out := make([]RankedEntry, len(rows))
	for i, sum := range rows {
		out[i] = RankedEntry{
			Rank:        i + 1,
			WorkflowID:  sum.WorkflowID,
			CandidateID: sum.CandidateID,
			Metric:      sum.Metric,
			Mean:        sum.Mean,
			StdErr:      sum.StdErr,
			Folds:       sum.Folds,
		}
	}

	return out
}

// bestPerWorkflow reduces summary rows to each workflow's single best
// candidate by oriented mean, ties won by the first-generated candidate.
func bestPerWorkflow(rows []Summary, metric Metric) []Summary {
	best := make(map[string]Summary, len(rows))
	var order []string

	for _, sum := range rows {
		cur, ok := best[sum.WorkflowID]
		if !ok {
			best[sum.WorkflowID] = sum
			order = append(order, sum.WorkflowID)

			continue
		}

		v, cv := metric.orient(sum.Mean), metric.orient(cur.Mean)
		if v < cv || (v == cv && sum.CandidateID < cur.CandidateID) {
			best[sum.WorkflowID] = sum
		}
	}

	out := make([]Summary, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}

	return out
}
