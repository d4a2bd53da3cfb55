package grad

import (
	"math"

	"github.com/qfold-team/qfold-engine/core"
)

const DEFAULT_FINITE_DIFF_STEP = 1e-6

// ParamShift differentiates an objective with the two-point parameter
// shift rule: g = (f(x + pi/2) - f(x - pi/2)) / 2 per requested argument.
// For an angle that enters the objective as a single sinusoid (one
// rotation gate per angle) the rule is exact, not an approximation.
type ParamShift struct{}

func (p *ParamShift) Setup(*core.Conf) error { return nil }

func (p *ParamShift) Gradient(f core.Objective, params []float64, argnums []int) ([]float64, error) {
	if err := checkArgnums(params, argnums); err != nil {
		return nil, err
	}
	grads := make([]float64, len(argnums))
	for i, a := range argnums {
		plus, err := shiftEval(f, params, a, math.Pi/2)
		if err != nil {
			return nil, err
		}
		minus, err := shiftEval(f, params, a, -math.Pi/2)
		if err != nil {
			return nil, err
		}
		grads[i] = (plus - minus) / 2.0
	}
	return grads, nil
}

func (p *ParamShift) TearDown() {}

// FiniteDiff differentiates an objective with central differences,
// g = (f(x + h) - f(x - h)) / 2h. The general fallback: correct for any
// smooth objective, including ones where an angle occurs several times.
type FiniteDiff struct {
	Step float64
}

func NewFiniteDiff(step float64) *FiniteDiff {
	if step <= 0 {
		step = DEFAULT_FINITE_DIFF_STEP
	}
	return &FiniteDiff{Step: step}
}

func (d *FiniteDiff) Setup(*core.Conf) error {
	if d.Step <= 0 {
		d.Step = DEFAULT_FINITE_DIFF_STEP
	}
	return nil
}

func (d *FiniteDiff) Gradient(f core.Objective, params []float64, argnums []int) ([]float64, error) {
	if err := checkArgnums(params, argnums); err != nil {
		return nil, err
	}
	h := d.Step
	if h <= 0 {
		h = DEFAULT_FINITE_DIFF_STEP
	}
	grads := make([]float64, len(argnums))
	for i, a := range argnums {
		plus, err := shiftEval(f, params, a, h)
		if err != nil {
			return nil, err
		}
		minus, err := shiftEval(f, params, a, -h)
		if err != nil {
			return nil, err
		}
		grads[i] = (plus - minus) / (2.0 * h)
	}
	return grads, nil
}

func (d *FiniteDiff) TearDown() {}

func checkArgnums(params []float64, argnums []int) error {
	for _, a := range argnums {
		if a < 0 || a >= len(params) {
			return core.NewNotDifferentiableError("argnum %d is out of range for %d parameters", a, len(params))
		}
	}
	return nil
}

func shiftEval(f core.Objective, params []float64, argnum int, delta float64) (float64, error) {
	shifted := append([]float64(nil), params...)
	shifted[argnum] += delta
	return f(shifted)
}
