package race

import "math"

//////
// Available elimination policies for the racing controller.
// A policy decides, at a fold boundary, whether one candidate is reliably
// worse than the current best and can stop receiving evaluations.
//////

// PolicyParams holds the inputs a policy needs beyond the two paired score
// vectors. The controller fills it per decision.
type PolicyParams struct {
	// Alpha is the significance level for interval-based policies
	// (Options.Alpha, default 0.05).
	Alpha float64

	// Comparisons is the number of simultaneous best-vs-other comparisons
	// at this fold boundary. Interval-based policies divide Alpha by it
	// (Bonferroni) to control the family-wise error rate.
	Comparisons int
}

// Decision is a policy's verdict for one competitor.
type Decision struct {
	// Eliminate reports that the competitor is reliably worse than the
	// best candidate and should leave the race.
	Eliminate bool

	// Fallback reports that the configured test degenerated (zero variance
	// or too few paired folds) and a plain mean comparison was used
	// instead. The controller logs this as a policy fallback.
	Fallback bool

	// Lower and Upper bound the confidence interval on the paired mean
	// difference (other minus best, loss orientation). Zero for fallback
	// decisions.
	Lower, Upper float64
}

// EliminationPolicy decides whether a competitor should be eliminated.
//
// Parameters:
//   - best, other: paired scores on the folds BOTH candidates were scored on,
//     index-aligned, already oriented so that lower is better
//   - params: significance level and multiplicity context
//
// Implementations must be deterministic and side-effect free: the controller
// may invoke them for many competitors at one fold boundary.
//
// Built-in policies:
// - PairedT: Bonferroni-adjusted paired-t confidence interval (default)
// - MeanComparison: plain mean comparison, no interval
type EliminationPolicy func(best, other []float64, params PolicyParams) Decision

// PairedT is the default elimination policy. It computes a two-sided
// confidence interval on the mean of the paired differences (other - best)
// at level 1 - Alpha/Comparisons and eliminates when the interval excludes
// zero on the side that makes the competitor worse.
//
// How it works:
//   - The differences are paired by fold, which removes the shared
//     fold-to-fold variation (repeated-measures comparison)
//   - Dividing Alpha by the number of simultaneous comparisons bounds the
//     probability of any false elimination at this fold boundary
//   - With fewer than two paired folds, or a zero-variance difference
//     vector, the interval is undefined and the policy falls back to a plain
//     mean comparison, flagged via Decision.Fallback
func PairedT(best, other []float64, params PolicyParams) Decision {
	n := len(other)
	if n != len(best) || n < 2 {
		return meanFallback(best, other)
	}

	diffs := make([]float64, n)
	for i := range diffs {
		diffs[i] = other[i] - best[i]
	}

	m := mean(diffs)
	se := stdErr(diffs)

	if se == 0 {
		return meanFallback(best, other)
	}

	alpha := params.Alpha
	if params.Comparisons > 1 {
		alpha /= float64(params.Comparisons)
	}

	t := tQuantile(1-alpha/2, n-1)
	margin := t * se

	d := Decision{Lower: m - margin, Upper: m + margin}

	// The competitor is worse when the entire interval sits above zero.
	d.Eliminate = d.Lower > 0

	return d
}

// MeanComparison eliminates a competitor whenever its mean over the shared
// folds is strictly worse than the best candidate's, with no interval and no
// multiplicity control.
//
// When to use:
//   - As an aggressive policy when evaluations are expensive and false
//     eliminations are acceptable
//   - It is also the fallback PairedT degenerates to, minus the Fallback
//     flag, so racing behavior stays comparable across the two
func MeanComparison(best, other []float64, _ PolicyParams) Decision {
	return Decision{Eliminate: mean(other)-mean(best) > 0}
}

// meanFallback is the degenerate-case decision shared by interval policies:
// plain mean comparison, flagged so the controller can log it.
func meanFallback(best, other []float64) Decision {
	d := mean(other) - mean(best)

	return Decision{
		Eliminate: d > 0 && !math.IsNaN(d),
		Fallback:  true,
	}
}
