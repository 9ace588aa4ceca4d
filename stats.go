package race

import "math"

//////
// Statistical helpers.
//
// These are deliberately self-contained: the interim test needs only means,
// standard errors and Student-t quantiles, which are cheap to compute
// directly and keep the library free of a numerical dependency.
//////

// mean returns the arithmetic mean of xs, or 0 for an empty slice.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}

	var sum float64
	for _, x := range xs {
		sum += x
	}

	return sum / float64(len(xs))
}

// stdErr returns the standard error of the mean (sample standard deviation
// over sqrt(n)), or 0 when fewer than two observations are available.
func stdErr(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}

	m := mean(xs)

	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}

	return math.Sqrt(ss / float64(n-1) / float64(n))
}

// normalCDF computes the cumulative distribution function of the standard
// normal distribution.
//
// Returns:
// - Probability that a standard normal random variable is less than x.
func normalCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}

// normalQuantile computes the inverse of normalCDF using Acklam's rational
// approximation. Accurate to about 1.15e-9 over (0, 1), which is far beyond
// what an interim elimination decision needs.
func normalQuantile(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}

	if p >= 1 {
		return math.Inf(1)
	}

	a := [6]float64{
		-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02,
		1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00,
	}
	b := [5]float64{
		-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02,
		6.680131188771972e+01, -1.328068155288572e+01,
	}
	c := [6]float64{
		-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00,
		-2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00,
	}
	d := [4]float64{
		7.784695709041462e-03, 3.224671290700398e-01,
		2.445134137142996e+00, 3.754408661907416e+00,
	}

	const low, high = 0.02425, 1 - 0.02425

	switch {
	case p < low:
		q := math.Sqrt(-2 * math.Log(p))

		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	case p > high:
		q := math.Sqrt(-2 * math.Log(1-p))

		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	default:
		q := p - 0.5
		r := q * q

		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	}
}

// tQuantile computes the p-quantile of Student's t distribution with df
// degrees of freedom via the Cornish-Fisher expansion around the normal
// quantile (Abramowitz & Stegun 26.7.5). Plenty accurate for df >= 2; for
// df == 1 it undershoots the extreme tails, which only makes the interim
// test more conservative.
func tQuantile(p float64, df int) float64 {
	if df < 1 {
		return math.NaN()
	}

	z := normalQuantile(p)
	z3 := z * z * z
	z5 := z3 * z * z
	z7 := z5 * z * z
	z9 := z7 * z * z

	g1 := (z3 + z) / 4
	g2 := (5*z5 + 16*z3 + 3*z) / 96
	g3 := (3*z7 + 19*z5 + 17*z3 - 15*z) / 384
	g4 := (79*z9 + 776*z7 + 1482*z5 - 1920*z3 - 945*z) / 92160

	v := float64(df)

	return z + g1/v + g2/(v*v) + g3/(v*v*v) + g4/(v*v*v*v)
}
