package qasm

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/qfold-team/qfold-engine/core"
	"go.uber.org/zap"
)

// Line-oriented parser for the OpenQASM 3 subset the engine speaks: one
// qubit register, one bit register, gate calls with float parameters, the
// `inv @` adjoint modifier and `c[i] = measure q[j]` assignments. Workload
// files and assets are written in this subset; anything richer is rejected
// with a line-numbered error.

var (
	versionRe   = regexp.MustCompile(`^OPENQASM\s+\d+(\.\d+)?$`)
	includeRe   = regexp.MustCompile(`^include\s+"[^"]*"$`)
	qubitDeclRe = regexp.MustCompile(`^qubit(?:\[(\d+)\])?\s+([A-Za-z_][A-Za-z0-9_]*)$`)
	bitDeclRe   = regexp.MustCompile(`^bit(?:\[(\d+)\])?\s+([A-Za-z_][A-Za-z0-9_]*)$`)
	measureRe   = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\[(\d+)\]\s*=\s*measure\s+([A-Za-z_][A-Za-z0-9_]*)\[(\d+)\]$`)
	gateCallRe  = regexp.MustCompile(`^(inv\s*@\s*)?([A-Za-z_][A-Za-z0-9_]*)\s*(?:\(([^)]*)\))?\s+(.+)$`)
	operandRe   = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\[(\d+)\]$`)
)

type measureEntry struct {
	bit  int
	wire int
}

type parseState struct {
	qubitName  string
	qubitCount int
	bitName    string
	bitCount   int
	ops        []core.Operation
	measures   []measureEntry
}

// Parse builds a tape from OpenQASM 3 text. Gate parameters of rotation
// gates come out trainable; measured wires are ordered by their classical
// bit index, so bit 0 is the leftmost position of a counts key.
func Parse(qasm string) (*core.Tape, error) {
	if qasm == "" {
		msg := "no input qasm"
		zap.L().Info(msg)
		return nil, fmt.Errorf(msg)
	}
	st := &parseState{}
	for i, raw := range strings.Split(qasm, "\n") {
		lineNo := i + 1
		line := raw
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimSpace(strings.TrimSuffix(line, ";"))

		if versionRe.MatchString(line) || includeRe.MatchString(line) {
			continue
		}
		if m := qubitDeclRe.FindStringSubmatch(line); m != nil {
			if st.qubitName != "" {
				return nil, fmt.Errorf("line %d: only one qubit register is supported", lineNo)
			}
			st.qubitCount = 1
			if m[1] != "" {
				st.qubitCount, _ = strconv.Atoi(m[1])
			}
			st.qubitName = m[2]
			continue
		}
		if m := bitDeclRe.FindStringSubmatch(line); m != nil {
			if st.bitName != "" {
				return nil, fmt.Errorf("line %d: only one bit register is supported", lineNo)
			}
			st.bitCount = 1
			if m[1] != "" {
				st.bitCount, _ = strconv.Atoi(m[1])
			}
			st.bitName = m[2]
			continue
		}
		if m := measureRe.FindStringSubmatch(line); m != nil {
			if err := st.addMeasure(lineNo, m); err != nil {
				return nil, err
			}
			continue
		}
		if m := gateCallRe.FindStringSubmatch(line); m != nil {
			if err := st.addGateCall(lineNo, m); err != nil {
				return nil, err
			}
			continue
		}
		return nil, fmt.Errorf("line %d: unknown gate %q", lineNo, firstToken(line))
	}
	if st.qubitName == "" {
		msg := "no qubit declaration"
		zap.L().Info(msg)
		zap.L().Debug(fmt.Sprintf("qasm:\n%s", qasm))
		return nil, fmt.Errorf(msg)
	}

	var measurements []core.Measurement
	if len(st.measures) > 0 {
		sort.Slice(st.measures, func(i, j int) bool {
			return st.measures[i].bit < st.measures[j].bit
		})
		wires := make([]int, len(st.measures))
		for i, e := range st.measures {
			wires[i] = e.wire
		}
		measurements = append(measurements, core.NewMeasurement(core.Sample, wires))
	}
	tape, err := core.NewTape(st.qubitCount, st.ops, measurements)
	if err != nil {
		zap.L().Info(fmt.Sprintf("failed to build a tape from qasm/reason:%s", err))
		zap.L().Debug(fmt.Sprintf("qasm:\n%s", qasm))
		return nil, err
	}
	return tape, nil
}

func (st *parseState) addMeasure(lineNo int, m []string) error {
	if m[1] != st.bitName {
		return fmt.Errorf("line %d: unknown register %q", lineNo, m[1])
	}
	if m[3] != st.qubitName {
		return fmt.Errorf("line %d: unknown register %q", lineNo, m[3])
	}
	bit, _ := strconv.Atoi(m[2])
	wire, _ := strconv.Atoi(m[4])
	if bit >= st.bitCount {
		return fmt.Errorf("line %d: bit %d is out of range for %s[%d]",
			lineNo, bit, st.bitName, st.bitCount)
	}
	for _, e := range st.measures {
		if e.bit == bit {
			return fmt.Errorf("line %d: bit %d is assigned twice", lineNo, bit)
		}
	}
	st.measures = append(st.measures, measureEntry{bit: bit, wire: wire})
	return nil
}

func (st *parseState) addGateCall(lineNo int, m []string) error {
	name := m[2]
	kind := core.KindFromName(name)
	params := []core.Param{}
	if m[3] != "" {
		for _, f := range strings.Split(m[3], ",") {
			f = strings.TrimSpace(f)
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return fmt.Errorf("line %d: invalid parameter %q", lineNo, f)
			}
			if kind.IsRotation() {
				params = append(params, core.NewTrainableParam(v))
			} else {
				params = append(params, core.NewParam(v))
			}
		}
	}
	wires := []int{}
	for _, o := range strings.Split(m[4], ",") {
		o = strings.TrimSpace(o)
		om := operandRe.FindStringSubmatch(o)
		if om == nil {
			return fmt.Errorf("line %d: bad operand %q", lineNo, o)
		}
		if om[1] != st.qubitName {
			return fmt.Errorf("line %d: unknown register %q", lineNo, om[1])
		}
		w, _ := strconv.Atoi(om[2])
		wires = append(wires, w)
	}
	op := core.NewOperation(name, wires, params...)
	if m[1] != "" {
		op = op.AsAdjoint()
	}
	st.ops = append(st.ops, op)
	return nil
}

func firstToken(line string) string {
	if f := strings.Fields(line); len(f) > 0 {
		return f[0]
	}
	return line
}
