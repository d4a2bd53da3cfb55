//go:build unit
// +build unit

package qasm

import (
	"testing"

	"github.com/qfold-team/qfold-engine/common"
	"github.com/qfold-team/qfold-engine/core"
	"github.com/stretchr/testify/assert"
)

func TestEmitBellPair(t *testing.T) {
	tape, err := core.NewTape(2,
		[]core.Operation{
			core.NewOperation("h", []int{0}),
			core.NewOperation("cx", []int{0, 1}),
		},
		[]core.Measurement{core.NewMeasurement(core.Sample, []int{0, 1})})
	assert.Nil(t, err)

	want, commonErr := common.GetAsset("bell_pair.qasm")
	assert.Nil(t, commonErr)
	assert.Equal(t, Emit(tape), want)
}

func TestEmitNoMeasurements(t *testing.T) {
	tape, err := core.NewTape(1,
		[]core.Operation{core.NewOperation("x", []int{0})}, nil)
	assert.Nil(t, err)
	assert.Equal(t, Emit(tape), "OPENQASM 3;\nqubit[1] q;\n\nx q[0];")
}

func TestEmitParamsAndAdjoint(t *testing.T) {
	rx := core.NewOperation("rx", []int{0}, core.NewTrainableParam(0.5))
	tape, err := core.NewTape(2,
		[]core.Operation{rx, rx.AsAdjoint(), core.NewOperation("cx", []int{0, 1})},
		[]core.Measurement{core.NewMeasurement(core.Sample, []int{1})})
	assert.Nil(t, err)

	got := Emit(tape)
	assert.Contains(t, got, "rx(0.5) q[0];")
	assert.Contains(t, got, "inv @ rx(0.5) q[0];")
	assert.Contains(t, got, "c[0] = measure q[1];")
}

func TestRoundTrip(t *testing.T) {
	rz := core.NewOperation("rz", []int{2}, core.NewTrainableParam(1.25))
	tape, err := core.NewTape(3,
		[]core.Operation{
			core.NewOperation("h", []int{0}),
			core.NewOperation("cx", []int{0, 1}),
			rz,
			rz.AsAdjoint(),
		},
		[]core.Measurement{core.NewMeasurement(core.Sample, []int{0, 2})})
	assert.Nil(t, err)

	parsed, parseErr := Parse(Emit(tape))
	assert.Nil(t, parseErr)
	assert.True(t, parsed.Equal(tape))
}

func TestRoundTripBellAsset(t *testing.T) {
	testQASM, commonErr := common.GetAsset("bell_pair.qasm")
	assert.Nil(t, commonErr)

	tape, err := Parse(testQASM)
	assert.Nil(t, err)
	assert.Equal(t, Emit(tape), testQASM)
}
