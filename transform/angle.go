package transform

import (
	"math"

	"github.com/qfold-team/qfold-engine/core"
)

// AngleScale multiplies every rotation-gate angle by a fixed factor.
// Scalar multiply is the only arithmetic on parameter values, so trainable
// parameters stay on the differentiable path.
type AngleScale struct {
	factor float64
	strict bool
}

func NewAngleScale(factor float64, strict bool) (*AngleScale, error) {
	if math.IsNaN(factor) || math.IsInf(factor, 0) {
		return nil, core.NewStructuralError("angle scale factor must be finite, got %v", factor)
	}
	return &AngleScale{factor: factor, strict: strict}, nil
}

func (a *AngleScale) Name() string {
	return "angle_scale"
}

func (a *AngleScale) Apply(t *core.Tape) (*core.Tape, error) {
	out := t.Clone()
	for i := range out.Ops {
		op := &out.Ops[i]
		if op.Kind.IsRotation() {
			for pi := range op.Params {
				op.Params[pi].Value *= a.factor
			}
			continue
		}
		if a.strict && op.Kind == core.GateUnknown {
			return nil, core.NewUnsupportedOperationError(op.GateName(), a.Name())
		}
	}
	return out, nil
}

// AngleOffset adds a fixed delta to every rotation-gate angle.
type AngleOffset struct {
	delta  float64
	strict bool
}

func NewAngleOffset(delta float64, strict bool) (*AngleOffset, error) {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return nil, core.NewStructuralError("angle offset must be finite, got %v", delta)
	}
	return &AngleOffset{delta: delta, strict: strict}, nil
}

func (a *AngleOffset) Name() string {
	return "angle_offset"
}

func (a *AngleOffset) Apply(t *core.Tape) (*core.Tape, error) {
	out := t.Clone()
	for i := range out.Ops {
		op := &out.Ops[i]
		if op.Kind.IsRotation() {
			for pi := range op.Params {
				op.Params[pi].Value += a.delta
			}
			continue
		}
		if a.strict && op.Kind == core.GateUnknown {
			return nil, core.NewUnsupportedOperationError(op.GateName(), a.Name())
		}
	}
	return out, nil
}
