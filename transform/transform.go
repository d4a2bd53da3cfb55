package transform

import (
	"github.com/go-faster/errors"
	"github.com/qfold-team/qfold-engine/core"
)

// TapeTransform rewrites one tape into another. Implementations are pure:
// the input tape is never mutated, relative operation order is preserved
// unless reordering is the transform's documented purpose, and measurement
// directives are preserved unless the transform explicitly targets them.
type TapeTransform interface {
	Name() string
	Apply(t *core.Tape) (*core.Tape, error)
}

// Combiner reduces the ordered execution results of a batch plan to one
// value. It is a pure function of the results and receives them in the
// same order as the tapes that produced them.
type Combiner func(results []float64) (float64, error)

// BatchTransform expands one tape into branch tapes plus the combiner that
// reduces their execution results. Map before execution, reduce after.
type BatchTransform interface {
	Name() string
	Expand(t *core.Tape) ([]*core.Tape, Combiner, error)
}

// IdentityCombiner is the combiner of a plan that never forked.
func IdentityCombiner(results []float64) (float64, error) {
	if len(results) != 1 {
		return 0, errors.Errorf("expected exactly 1 result, got %d", len(results))
	}
	return results[0], nil
}
