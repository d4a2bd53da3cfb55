package transform

import (
	"math"

	"github.com/qfold-team/qfold-engine/core"
)

// GlobalFold implements unitary folding: each fold replays the whole tape
// as reversed adjoints followed by the original again, amplifying effective
// noise without changing the ideal unitary. The integer fold count is
// computed once at construction, isolated from every differentiable value;
// gradients flow only through gate parameters, never through the rounded
// scale.
type GlobalFold struct {
	scale    float64
	numFolds int
}

func NewGlobalFold(scale float64) (*GlobalFold, error) {
	if math.IsNaN(scale) || math.IsInf(scale, 0) || scale < 1 {
		return nil, core.NewStructuralError("fold scale must be a finite value >= 1, got %v", scale)
	}
	return &GlobalFold{
		scale:    scale,
		numFolds: int(math.Round((scale - 1) / 2)),
	}, nil
}

func (g *GlobalFold) Name() string {
	return "global_fold"
}

func (g *GlobalFold) NumFolds() int {
	return g.numFolds
}

func (g *GlobalFold) Apply(t *core.Tape) (*core.Tape, error) {
	out := t.Clone()
	folded := make([]core.Operation, 0, len(out.Ops)*(1+2*g.numFolds))
	folded = append(folded, out.Ops...)
	for f := 0; f < g.numFolds; f++ {
		for i := len(out.Ops) - 1; i >= 0; i-- {
			folded = append(folded, out.Ops[i].AsAdjoint())
		}
		for _, op := range out.Ops {
			folded = append(folded, op.Clone())
		}
	}
	out.Ops = folded
	return out, nil
}
