//go:build unit
// +build unit

package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPipelineRunAppliesStagesInOrder(t *testing.T) {
	tape := foldFixture(t)
	scale, err := NewAngleScale(0.5, false)
	assert.NoError(t, err)
	offset, err := NewAngleOffset(0.1, false)
	assert.NoError(t, err)

	pl := NewPipeline().Append(scale).Append(offset)
	assert.Equal(t, "angle_scale -> angle_offset", pl.String())
	assert.Equal(t, 2, pl.Len())

	plan, err := pl.Run(tape)
	assert.NoError(t, err)
	assert.Len(t, plan.Tapes, 1)
	// 0.3*0.5 + 0.1, not (0.3+0.1)*0.5
	assert.InDelta(t, 0.25, plan.Tapes[0].Ops[0].Params[0].Value, 1e-12)

	// running stage by stage gives the same tape
	mid, err := scale.Apply(tape)
	assert.NoError(t, err)
	want, err := offset.Apply(mid)
	assert.NoError(t, err)
	assert.True(t, plan.Tapes[0].Equal(want))
}

func TestPipelineEmptyRun(t *testing.T) {
	tape := foldFixture(t)
	plan, err := NewPipeline().Run(tape)
	assert.NoError(t, err)
	assert.Len(t, plan.Tapes, 1)
	assert.Same(t, tape, plan.Tapes[0])

	v, err := plan.Combine([]float64{42.0})
	assert.NoError(t, err)
	assert.Equal(t, 42.0, v)
	_, err = plan.Combine([]float64{1.0, 2.0})
	assert.Error(t, err)
}

func TestPipelineApplySingle(t *testing.T) {
	tape := foldFixture(t)
	scale, err := NewAngleScale(0.5, false)
	assert.NoError(t, err)
	fold, err := NewGlobalFold(3.0)
	assert.NoError(t, err)

	pl := NewPipeline().Append(scale).Append(fold)
	out, err := pl.ApplySingle(tape)
	assert.NoError(t, err)
	assert.Len(t, out.Ops, 6)
	assert.InDelta(t, 0.15, out.Ops[0].Params[0].Value, 1e-12)

	plan, err := pl.Run(tape)
	assert.NoError(t, err)
	assert.Len(t, plan.Tapes, 1)
	assert.True(t, plan.Tapes[0].Equal(out))
}

func TestPipelineApplySingleRejectsForks(t *testing.T) {
	tape := foldFixture(t)
	zne, err := NewZNE([]float64{1.0, 3.0, 5.0})
	assert.NoError(t, err)

	pl := NewPipeline().AppendBatch(zne)
	_, err = pl.ApplySingle(tape)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "zne forks")
}

func TestPipelineForkProducesBranchesAndCombiner(t *testing.T) {
	tape := foldFixture(t)
	zne, err := NewZNE([]float64{1.0, 3.0, 5.0})
	assert.NoError(t, err)

	plan, err := NewPipeline().AppendBatch(zne).Run(tape)
	assert.NoError(t, err)
	assert.Len(t, plan.Tapes, 3)
	assert.Len(t, plan.Tapes[0].Ops, 2)
	assert.Len(t, plan.Tapes[1].Ops, 6)
	assert.Len(t, plan.Tapes[2].Ops, 10)

	// expectations on the line e = 2s + 5 extrapolate back to 5 at s=0
	v, err := plan.Combine([]float64{7.0, 11.0, 15.0})
	assert.NoError(t, err)
	assert.InDelta(t, 5.0, v, 1e-9)

	_, err = plan.Combine([]float64{7.0, 11.0})
	assert.Error(t, err)
}

func TestPipelineBatchThenSingle(t *testing.T) {
	tape := foldFixture(t)
	zne, err := NewZNE([]float64{1.0, 3.0})
	assert.NoError(t, err)
	scale, err := NewAngleScale(0.5, false)
	assert.NoError(t, err)

	plan, err := NewPipeline().AppendBatch(zne).Append(scale).Run(tape)
	assert.NoError(t, err)
	assert.Len(t, plan.Tapes, 2)
	// the single stage applies to every branch, folded copies included
	assert.InDelta(t, 0.15, plan.Tapes[0].Ops[0].Params[0].Value, 1e-12)
	assert.InDelta(t, 0.15, plan.Tapes[1].Ops[0].Params[0].Value, 1e-12)
	assert.InDelta(t, 0.15, plan.Tapes[1].Ops[3].Params[0].Value, 1e-12)
	assert.True(t, plan.Tapes[1].Ops[3].Adjoint)
}

func TestPipelineNestedForks(t *testing.T) {
	tape := foldFixture(t)
	outer, err := NewZNE([]float64{1.0, 3.0, 5.0})
	assert.NoError(t, err)
	inner, err := NewZNE([]float64{1.0, 3.0, 5.0})
	assert.NoError(t, err)

	plan, err := NewPipeline().AppendBatch(outer).AppendBatch(inner).Run(tape)
	assert.NoError(t, err)
	assert.Len(t, plan.Tapes, 9)
	assert.Len(t, plan.Tapes[0].Ops, 2)
	assert.Len(t, plan.Tapes[2].Ops, 10)
	assert.Len(t, plan.Tapes[8].Ops, 50)

	// inner fits first: constant inner groups reduce to the outer line
	results := []float64{7, 7, 7, 11, 11, 11, 15, 15, 15}
	v, err := plan.Combine(results)
	assert.NoError(t, err)
	assert.InDelta(t, 5.0, v, 1e-9)

	_, err = plan.Combine([]float64{1.0, 2.0})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "expected 9 results")
}
