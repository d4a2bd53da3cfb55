package mitig

import (
	"github.com/go-faster/errors"
	"github.com/qfold-team/qfold-engine/core"
)

// FitLine performs an ordinary least-squares fit e = slope*s + intercept
// over float64 points, using elementary sums only. No linear-algebra black
// box: the combination step itself stays differentiable with respect to
// the observed values.
func FitLine(xs, ys []float64) (slope, intercept float64, err error) {
	if len(xs) != len(ys) {
		return 0, 0, errors.Errorf("mismatched lengths: %d scale factors, %d values", len(xs), len(ys))
	}
	if len(xs) == 0 {
		return 0, 0, core.NewDegenerateFitError("no points to fit")
	}
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	den := n*sumXX - sumX*sumX
	if den == 0 {
		return 0, 0, core.NewDegenerateFitError("zero-variance scale factors")
	}
	slope = (n*sumXY - sumX*sumY) / den
	intercept = (sumY - slope*sumX) / n
	return slope, intercept, nil
}

// InterceptWeights returns the weights c of the OLS intercept as a linear
// form over the observed values, intercept = sum c[i]*y[i]. They let a
// caller propagate independent per-point variances through the fit:
// Var(intercept) = sum c[i]^2 * Var(y[i]).
func InterceptWeights(scales []float64) ([]float64, error) {
	if len(scales) == 0 {
		return nil, core.NewDegenerateFitError("no points to fit")
	}
	n := float64(len(scales))
	var sumX, sumXX float64
	for _, x := range scales {
		sumX += x
		sumXX += x * x
	}
	den := n*sumXX - sumX*sumX
	if den == 0 {
		return nil, core.NewDegenerateFitError("zero-variance scale factors")
	}
	ws := make([]float64, len(scales))
	for i, x := range scales {
		ws[i] = (sumXX - sumX*x) / den
	}
	return ws, nil
}

// ExtrapolateToZero returns a combiner closed over the noise scale
// factors: it fits the measured expectation values against the scales and
// returns the intercept, the expectation at zero noise.
func ExtrapolateToZero(scales []float64) func(results []float64) (float64, error) {
	fixed := append([]float64(nil), scales...)
	return func(results []float64) (float64, error) {
		if len(results) != len(fixed) {
			return 0, errors.Errorf("expected %d results for %d scale factors, got %d",
				len(fixed), len(fixed), len(results))
		}
		_, intercept, err := FitLine(fixed, results)
		if err != nil {
			return 0, err
		}
		return intercept, nil
	}
}
