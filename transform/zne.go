package transform

import (
	"github.com/qfold-team/qfold-engine/core"
	"github.com/qfold-team/qfold-engine/mitig"
)

// ZNE is the canonical batch transform: zero-noise extrapolation. One
// globally folded branch tape per scale factor, combined by an OLS fit of
// the measured expectation values extrapolated back to zero noise scale.
type ZNE struct {
	scales []float64
	folds  []*GlobalFold
}

func NewZNE(scaleFactors []float64) (*ZNE, error) {
	if len(scaleFactors) == 0 {
		return nil, core.NewStructuralError("zero-noise extrapolation needs at least one scale factor")
	}
	folds := make([]*GlobalFold, len(scaleFactors))
	for i, s := range scaleFactors {
		f, err := NewGlobalFold(s)
		if err != nil {
			return nil, err
		}
		folds[i] = f
	}
	return &ZNE{
		scales: append([]float64(nil), scaleFactors...),
		folds:  folds,
	}, nil
}

func (z *ZNE) Name() string {
	return "zne"
}

func (z *ZNE) ScaleFactors() []float64 {
	return z.scales
}

func (z *ZNE) Expand(t *core.Tape) ([]*core.Tape, Combiner, error) {
	branches := make([]*core.Tape, len(z.folds))
	for i, f := range z.folds {
		b, err := f.Apply(t)
		if err != nil {
			return nil, nil, err
		}
		branches[i] = b
	}
	return branches, mitig.ExtrapolateToZero(z.scales), nil
}
