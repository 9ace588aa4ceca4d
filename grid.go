package race

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
)

//////
// Candidate grid generation.
//
// Candidates are drawn with a space-filling design rather than plain uniform
// sampling: each numeric dimension is split into one stratum per candidate
// and every stratum is used exactly once (Latin hypercube), while
// categorical levels are spread evenly across the grid. This maximizes
// coverage of the space for a given grid size.
//////

// maxRedrawAttempts bounds how often a duplicate assignment is re-drawn
// before it is dropped. Small discrete spaces can hold fewer distinct
// assignments than the requested grid size.
const maxRedrawAttempts = 25

// NewGrid generates size distinct candidates from a finalized parameter
// space.
//
// Parameters:
// - size: the number of candidates to generate (Options.GridSize)
// - seed: the explicit random seed; identical seed, space and size always
//   produce an identical grid
//
// Returns:
// - Grid: candidates with ids 0..n-1 in generation order
// - error: ErrUnresolvedBound if the space still carries bound rules
//
// Edge cases:
//   - An empty space yields exactly one candidate with no parameters; the
//     racing controller never invokes elimination for a single-candidate
//     grid, so this degenerates to plain resampling.
//   - When the space cannot hold size distinct assignments (e.g. a lone
//     integer parameter with a 10-value range and size 25), the grid is
//     smaller than requested rather than containing duplicates.
func NewGrid(space ParamSpace, size int, seed int64) (Grid, error) {
	if !space.finalized {
		return nil, ErrUnresolvedBound
	}

	if err := space.validateSpecs(); err != nil {
		return nil, err
	}

	if space.Len() == 0 {
		return Grid{{ID: 0, Params: Params{}}}, nil
	}

	if size < 1 {
		return nil, fmt.Errorf("race: grid size must be positive, got %d", size)
	}

	rng := rand.New(rand.NewSource(seed))

	// One stratum permutation per dimension. Slot i of the grid takes the
	// perm[i]-th stratum of each dimension, so every stratum of every
	// dimension appears exactly once.
	assign := make([]Params, size)
	for i := range assign {
		assign[i] = make(Params, space.Len())
	}

	for _, spec := range space.specs {
		switch spec.Kind {
		case CategoricalKind:
			for slot, lvl := range spreadLevels(rng, spec.Levels, size) {
				assign[slot][spec.Name] = Value{Str: lvl}
			}
		default:
			perm := rng.Perm(size)
			width := (spec.Max - spec.Min) / float64(size)

			for slot := 0; slot < size; slot++ {
				v := spec.Min + (float64(perm[slot])+rng.Float64())*width
				assign[slot][spec.Name] = quantize(spec, v)
			}
		}
	}

	// Deduplicate. Collisions only happen in discrete dimensions; re-draw
	// the offending slot uniformly a bounded number of times, then drop.
	grid := make(Grid, 0, size)
	seen := make(map[string]bool, size)

	for _, params := range assign {
		for attempt := 0; seen[canonical(space, params)] && attempt < maxRedrawAttempts; attempt++ {
			params = uniformDraw(rng, space)
		}

		key := canonical(space, params)
		if seen[key] {
			continue
		}
		seen[key] = true

		grid = append(grid, Candidate{ID: len(grid), Params: params})
	}

	return grid, nil
}

// spreadLevels returns a size-length assignment of levels where each level
// appears either floor(size/len) or ceil(size/len) times, shuffled.
func spreadLevels(rng *rand.Rand, levels []string, size int) []string {
	out := make([]string, size)
	for i := range out {
		out[i] = levels[i%len(levels)]
	}

	rng.Shuffle(size, func(i, j int) { out[i], out[j] = out[j], out[i] })

	return out
}

// uniformDraw samples one assignment uniformly at random, used only to
// resolve duplicate slots.
func uniformDraw(rng *rand.Rand, space ParamSpace) Params {
	params := make(Params, space.Len())

	for _, spec := range space.specs {
		switch spec.Kind {
		case CategoricalKind:
			params[spec.Name] = Value{Str: spec.Levels[rng.Intn(len(spec.Levels))]}
		default:
			v := spec.Min + rng.Float64()*(spec.Max-spec.Min)
			params[spec.Name] = quantize(spec, v)
		}
	}

	return params
}

// quantize rounds integer parameters to whole values and clamps into range.
func quantize(spec ParamSpec, v float64) Value {
	if spec.Kind == IntegerKind {
		v = math.Round(v)
	}

	v = math.Max(spec.Min, math.Min(spec.Max, v))

	return Value{Num: v}
}

// canonical renders an assignment as a stable string key in declaration
// order, used for duplicate detection.
func canonical(space ParamSpace, params Params) string {
	var b strings.Builder

	for _, spec := range space.specs {
		v := params[spec.Name]

		if spec.Kind == CategoricalKind {
			fmt.Fprintf(&b, "%s=%s;", spec.Name, v.Str)

			continue
		}

		fmt.Fprintf(&b, "%s=%.12g;", spec.Name, v.Num)
	}

	return b.String()
}

// sortedIDs returns the candidate ids of a grid in ascending order. Helper
// for deterministic iteration over id sets.
func sortedIDs(set map[int]bool) []int {
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	return ids
}
