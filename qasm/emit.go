package qasm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/qfold-team/qfold-engine/core"
)

// Emit renders a tape as OpenQASM 3 text in the same subset Parse accepts.
// Registers are always named q and c; one measure assignment is written per
// measured wire, classical bits in measurement order.
func Emit(t *core.Tape) string {
	var b strings.Builder
	b.WriteString("OPENQASM 3;\n")
	b.WriteString(fmt.Sprintf("qubit[%d] q;\n", t.Wires))
	numBits := 0
	for _, m := range t.Measurements {
		numBits += len(m.Wires)
	}
	if numBits > 0 {
		b.WriteString(fmt.Sprintf("bit[%d] c;\n", numBits))
	}
	if len(t.Ops) > 0 {
		b.WriteString("\n")
		for _, op := range t.Ops {
			b.WriteString(emitOp(op) + "\n")
		}
	}
	if numBits > 0 {
		b.WriteString("\n")
		bit := 0
		for _, m := range t.Measurements {
			for _, w := range m.Wires {
				b.WriteString(fmt.Sprintf("c[%d] = measure q[%d];\n", bit, w))
				bit++
			}
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func emitOp(op core.Operation) string {
	var b strings.Builder
	if op.Adjoint {
		b.WriteString("inv @ ")
	}
	b.WriteString(op.GateName())
	if len(op.Params) > 0 {
		vals := make([]string, len(op.Params))
		for i, p := range op.Params {
			vals[i] = strconv.FormatFloat(p.Value, 'g', -1, 64)
		}
		b.WriteString("(" + strings.Join(vals, ", ") + ")")
	}
	wires := make([]string, len(op.Wires))
	for i, w := range op.Wires {
		wires[i] = fmt.Sprintf("q[%d]", w)
	}
	b.WriteString(" " + strings.Join(wires, ", "))
	b.WriteString(";")
	return b.String()
}
