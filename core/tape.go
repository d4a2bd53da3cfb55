package core

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/multierr"
)

// GateKind is a closed enum over the gate vocabulary of the engine.
// Unrecognized gate names map to GateUnknown; transforms pass such
// operations through unchanged unless they opt into strict mode.
type GateKind int

const (
	GateUnknown GateKind = iota
	GateI
	GateX
	GateY
	GateZ
	GateH
	GateS
	GateSdg
	GateT
	GateTdg
	GateSX
	GateRX
	GateRY
	GateRZ
	GateCX
	GateCZ
	GateSWAP
)

var gateNames = map[GateKind]string{
	GateI:    "id",
	GateX:    "x",
	GateY:    "y",
	GateZ:    "z",
	GateH:    "h",
	GateS:    "s",
	GateSdg:  "sdg",
	GateT:    "t",
	GateTdg:  "tdg",
	GateSX:   "sx",
	GateRX:   "rx",
	GateRY:   "ry",
	GateRZ:   "rz",
	GateCX:   "cx",
	GateCZ:   "cz",
	GateSWAP: "swap",
}

var gateKinds = func() map[string]GateKind {
	m := make(map[string]GateKind, len(gateNames)+2)
	for k, n := range gateNames {
		m[n] = k
	}
	m["i"] = GateI
	m["cnot"] = GateCX
	return m
}()

func (k GateKind) String() string {
	if n, ok := gateNames[k]; ok {
		return n
	}
	return "unknown"
}

// IsRotation reports whether the kind is a single-angle rotation gate.
// These are the gates whose parameter angles transforms may scale or
// offset and whose gradients the parameter-shift rule covers.
func (k GateKind) IsRotation() bool {
	return k == GateRX || k == GateRY || k == GateRZ
}

func KindFromName(name string) GateKind {
	if k, ok := gateKinds[strings.ToLower(strings.TrimSpace(name))]; ok {
		return k
	}
	return GateUnknown
}

// Param is a numeric gate parameter paired with an explicit trainability
// tag. The tag travels with the value; trainable parameters are the ones a
// differentiation backend may differentiate with respect to. All parameter
// arithmetic in the engine is float64.
type Param struct {
	Value     float64 `json:"value"`
	Trainable bool    `json:"trainable"`
}

func NewParam(v float64) Param {
	return Param{Value: v}
}

func NewTrainableParam(v float64) Param {
	return Param{Value: v, Trainable: true}
}

// Operation is one gate application. Operations are treated as immutable
// after construction: transforms never modify an operation in place, they
// build fresh ones. Equality of operations is by identity; Equal exists for
// operation-for-operation comparison in assertions.
type Operation struct {
	Kind    GateKind
	Name    string // gate name as written, authoritative when Kind is GateUnknown
	Wires   []int
	Params  []Param
	Adjoint bool
}

func NewOperation(name string, wires []int, params ...Param) Operation {
	return Operation{
		Kind:   KindFromName(name),
		Name:   name,
		Wires:  wires,
		Params: params,
	}
}

// GateName returns the canonical lower-case gate name, falling back to the
// raw name for unknown kinds.
func (o Operation) GateName() string {
	if o.Kind == GateUnknown {
		return o.Name
	}
	return o.Kind.String()
}

// AsAdjoint returns a fresh copy of the operation with the adjoint marker
// flipped. Parameter values and trainability tags are preserved; the
// adjoint is tracked at the representation level rather than by rewriting
// angles, so folding a tape never touches the differentiable path.
func (o Operation) AsAdjoint() Operation {
	c := o.Clone()
	c.Adjoint = !c.Adjoint
	return c
}

func (o Operation) Clone() Operation {
	c := Operation{
		Kind:    o.Kind,
		Name:    o.Name,
		Adjoint: o.Adjoint,
	}
	c.Wires = append([]int(nil), o.Wires...)
	c.Params = append([]Param(nil), o.Params...)
	return c
}

func (o Operation) Equal(other Operation) bool {
	if o.Kind != other.Kind || o.GateName() != other.GateName() || o.Adjoint != other.Adjoint {
		return false
	}
	if len(o.Wires) != len(other.Wires) || len(o.Params) != len(other.Params) {
		return false
	}
	for i, w := range o.Wires {
		if w != other.Wires[i] {
			return false
		}
	}
	for i, p := range o.Params {
		if p != other.Params[i] {
			return false
		}
	}
	return true
}

func (o Operation) String() string {
	var b strings.Builder
	if o.Adjoint {
		b.WriteString("inv @ ")
	}
	b.WriteString(o.GateName())
	if len(o.Params) > 0 {
		vals := make([]string, len(o.Params))
		for i, p := range o.Params {
			vals[i] = fmt.Sprintf("%g", p.Value)
		}
		b.WriteString("(" + strings.Join(vals, ", ") + ")")
	}
	wires := make([]string, len(o.Wires))
	for i, w := range o.Wires {
		wires[i] = fmt.Sprintf("q[%d]", w)
	}
	b.WriteString(" " + strings.Join(wires, ", "))
	return b.String()
}

// ReturnType classifies what a measurement directive asks the backend for.
type ReturnType int

const (
	Expectation ReturnType = iota
	Probability
	Sample
)

func (r ReturnType) String() string {
	switch r {
	case Expectation:
		return "expectation"
	case Probability:
		return "probability"
	case Sample:
		return "sample"
	default:
		return "unknown"
	}
}

// Measurement is a terminal measurement directive. An empty Pauli string
// means the Z observable on every listed wire.
type Measurement struct {
	Kind  ReturnType
	Wires []int
	Pauli string
}

func NewMeasurement(kind ReturnType, wires []int) Measurement {
	return Measurement{Kind: kind, Wires: wires}
}

func (m Measurement) Clone() Measurement {
	c := Measurement{Kind: m.Kind, Pauli: m.Pauli}
	c.Wires = append([]int(nil), m.Wires...)
	return c
}

func (m Measurement) Equal(other Measurement) bool {
	if m.Kind != other.Kind || m.Pauli != other.Pauli || len(m.Wires) != len(other.Wires) {
		return false
	}
	for i, w := range m.Wires {
		if w != other.Wires[i] {
			return false
		}
	}
	return true
}

// Tape is one quantum program: an ordered list of operations followed by an
// ordered list of measurement directives, over Wires wires. Measurements
// always follow all operations; the two lists make that invariant
// unrepresentable to break. Tapes are value objects passed between pipeline
// stages; a transform consumes one tape and constructs a fresh one.
type Tape struct {
	Wires        int
	Ops          []Operation
	Measurements []Measurement
}

// NewTape validates eagerly and reports every violation at once.
func NewTape(wires int, ops []Operation, measurements []Measurement) (*Tape, error) {
	if wires <= 0 {
		return nil, NewStructuralError("tape width must be positive, got %d", wires)
	}
	var err error
	for i, op := range ops {
		if len(op.Wires) == 0 {
			err = multierr.Append(err, NewStructuralError("op %d (%s) has no wires", i, op.GateName()))
			continue
		}
		seen := make(map[int]struct{}, len(op.Wires))
		for _, w := range op.Wires {
			if w < 0 || w >= wires {
				err = multierr.Append(err, NewStructuralError(
					"op %d (%s) wire %d is out of range [0, %d)", i, op.GateName(), w, wires))
			}
			if _, dup := seen[w]; dup {
				err = multierr.Append(err, NewStructuralError(
					"op %d (%s) uses wire %d more than once", i, op.GateName(), w))
			}
			seen[w] = struct{}{}
		}
		for _, p := range op.Params {
			if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
				err = multierr.Append(err, NewStructuralError(
					"op %d (%s) has a non-finite parameter %v", i, op.GateName(), p.Value))
			}
		}
	}
	for i, m := range measurements {
		for _, w := range m.Wires {
			if w < 0 || w >= wires {
				err = multierr.Append(err, NewStructuralError(
					"measurement %d wire %d is out of range [0, %d)", i, w, wires))
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return &Tape{Wires: wires, Ops: ops, Measurements: measurements}, nil
}

// Clone deep-copies the tape. Transforms use it to start from a fresh value
// so the input is never aliased.
func (t *Tape) Clone() *Tape {
	c := &Tape{Wires: t.Wires}
	c.Ops = make([]Operation, len(t.Ops))
	for i, op := range t.Ops {
		c.Ops[i] = op.Clone()
	}
	c.Measurements = make([]Measurement, len(t.Measurements))
	for i, m := range t.Measurements {
		c.Measurements[i] = m.Clone()
	}
	return c
}

// Equal compares operation-for-operation and measurement-for-measurement.
func (t *Tape) Equal(other *Tape) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.Wires != other.Wires ||
		len(t.Ops) != len(other.Ops) ||
		len(t.Measurements) != len(other.Measurements) {
		return false
	}
	for i, op := range t.Ops {
		if !op.Equal(other.Ops[i]) {
			return false
		}
	}
	for i, m := range t.Measurements {
		if !m.Equal(other.Measurements[i]) {
			return false
		}
	}
	return true
}

func (t *Tape) Depth() int {
	return len(t.Ops)
}

func (t *Tape) String() string {
	lines := make([]string, 0, len(t.Ops)+1)
	lines = append(lines, fmt.Sprintf("tape[%d]", t.Wires))
	for _, op := range t.Ops {
		lines = append(lines, "  "+op.String())
	}
	for _, m := range t.Measurements {
		wires := make([]string, len(m.Wires))
		for i, w := range m.Wires {
			wires[i] = fmt.Sprintf("q[%d]", w)
		}
		lines = append(lines, fmt.Sprintf("  measure(%s) %s", m.Kind, strings.Join(wires, ", ")))
	}
	return strings.Join(lines, "\n")
}

// TrainableParams collects the values of every trainable parameter in
// operation order. The returned index pairs locate them for write-back.
func (t *Tape) TrainableParams() ([]float64, [][2]int) {
	vals := []float64{}
	locs := [][2]int{}
	for i, op := range t.Ops {
		for j, p := range op.Params {
			if p.Trainable {
				vals = append(vals, p.Value)
				locs = append(locs, [2]int{i, j})
			}
		}
	}
	return vals, locs
}

// WithTrainableParams returns a fresh tape whose trainable parameter values
// are replaced in operation order. The number of values must match.
func (t *Tape) WithTrainableParams(vals []float64) (*Tape, error) {
	_, locs := t.TrainableParams()
	if len(vals) != len(locs) {
		return nil, fmt.Errorf("expected %d trainable parameters, got %d", len(locs), len(vals))
	}
	c := t.Clone()
	for n, loc := range locs {
		c.Ops[loc[0]].Params[loc[1]].Value = vals[n]
	}
	return c, nil
}
