//go:build unit
// +build unit

package qasm

import (
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/qfold-team/qfold-engine/common"
	"github.com/qfold-team/qfold-engine/core"
	"github.com/stretchr/testify/assert"
)

func TestParseBellPair(t *testing.T) {
	testQASM, commonErr := common.GetAsset("bell_pair.qasm")
	assert.Nil(t, commonErr)

	tape, err := Parse(testQASM)
	assert.Nil(t, err)
	assert.Equal(t, tape.Wires, 2)
	assert.Equal(t, len(tape.Ops), 2)
	assert.True(t, tape.Ops[0].Equal(core.NewOperation("h", []int{0})))
	assert.True(t, tape.Ops[1].Equal(core.NewOperation("cx", []int{0, 1})))
	assert.Equal(t, len(tape.Measurements), 1)
	assert.Equal(t, tape.Measurements[0], core.NewMeasurement(core.Sample, []int{0, 1}))
}

func TestParseRotationAndAdjoint(t *testing.T) {
	tape, err := Parse(heredoc.Doc(`
		OPENQASM 3;
		include "stdgates.inc";
		qubit[2] q;
		bit[1] c;

		rx(0.3) q[0];
		inv @ rx(0.3) q[0];
		cx q[0], q[1];

		c[0] = measure q[1];
	`))
	assert.Nil(t, err)
	assert.Equal(t, len(tape.Ops), 3)

	rx := core.NewOperation("rx", []int{0}, core.NewTrainableParam(0.3))
	assert.True(t, tape.Ops[0].Equal(rx))
	assert.True(t, tape.Ops[1].Equal(rx.AsAdjoint()))
	assert.True(t, tape.Ops[0].Params[0].Trainable)
	assert.Equal(t, tape.Measurements[0].Wires, []int{1})
}

func TestParseMeasureOrderFollowsBitIndex(t *testing.T) {
	tape, err := Parse(heredoc.Doc(`
		OPENQASM 3;
		qubit[2] q;
		bit[2] c;

		h q[0];

		c[1] = measure q[0];
		c[0] = measure q[1];
	`))
	assert.Nil(t, err)
	// bit 0 reads qubit 1, bit 1 reads qubit 0
	assert.Equal(t, tape.Measurements[0].Wires, []int{1, 0})
}

func TestParseSkipsComments(t *testing.T) {
	tape, err := Parse(heredoc.Doc(`
		OPENQASM 3;
		// a bell pair
		qubit[2] q;
		bit[2] c;

		h q[0]; // superpose
		cx q[0], q[1];

		c[0] = measure q[0];
		c[1] = measure q[1];
	`))
	assert.Nil(t, err)
	assert.Equal(t, len(tape.Ops), 2)
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name    string
		qasm    string
		wantMsg string
	}{
		{
			name:    "empty input",
			qasm:    "",
			wantMsg: "no input qasm",
		},
		{
			name:    "not a program",
			qasm:    "dummy_string",
			wantMsg: `line 1: unknown gate "dummy_string"`,
		},
		{
			name:    "no qubit declaration",
			qasm:    "OPENQASM 3;",
			wantMsg: "no qubit declaration",
		},
		{
			name:    "bad operand",
			qasm:    "OPENQASM 3;\nqubit[1] q;\nx q0;",
			wantMsg: `line 3: bad operand "q0"`,
		},
		{
			name:    "unknown register",
			qasm:    "OPENQASM 3;\nqubit[1] q;\nx r[0];",
			wantMsg: `line 3: unknown register "r"`,
		},
		{
			name:    "invalid parameter",
			qasm:    "OPENQASM 3;\nqubit[1] q;\nrx(theta) q[0];",
			wantMsg: `line 3: invalid parameter "theta"`,
		},
		{
			name:    "second qubit register",
			qasm:    "OPENQASM 3;\nqubit[1] q;\nqubit[1] r;",
			wantMsg: "line 3: only one qubit register is supported",
		},
		{
			name:    "bit assigned twice",
			qasm:    "OPENQASM 3;\nqubit[2] q;\nbit[2] c;\nc[0] = measure q[0];\nc[0] = measure q[1];",
			wantMsg: "line 5: bit 0 is assigned twice",
		},
		{
			name:    "wire out of range",
			qasm:    "OPENQASM 3;\nqubit[1] q;\nx q[3];",
			wantMsg: "wire 3 is out of range [0, 1)",
		},
		{
			name:    "bit out of range",
			qasm:    "OPENQASM 3;\nqubit[1] q;\nbit[1] c;\nc[9] = measure q[0];",
			wantMsg: "line 4: bit 9 is out of range for c[1]",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.qasm)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestParseStructuralErrorType(t *testing.T) {
	_, err := Parse("OPENQASM 3;\nqubit[1] q;\nx q[3];")
	assert.Error(t, err)
	var se *core.StructuralError
	assert.ErrorAs(t, err, &se)
}
