package transform

import (
	"github.com/qfold-team/qfold-engine/core"
	"go.uber.org/multierr"
)

// WireRemap relabels wires through a virtual-to-physical map. The map must
// be injective and must cover every wire the tape touches. This is the one
// transform whose documented purpose is touching wire labels; the mapping
// is recorded so execution results can be mapped back.
type WireRemap struct {
	mapping map[int]int
}

func NewWireRemap(mapping map[int]int) (*WireRemap, error) {
	var err error
	seen := make(map[int]struct{}, len(mapping))
	for v, p := range mapping {
		if v < 0 {
			err = multierr.Append(err, core.NewStructuralError("virtual wire %d must be non-negative", v))
		}
		if p < 0 {
			err = multierr.Append(err, core.NewStructuralError("physical wire %d must be non-negative", p))
		}
		if _, dup := seen[p]; dup {
			err = multierr.Append(err, core.NewStructuralError("physical wire %d is assigned twice", p))
		}
		seen[p] = struct{}{}
	}
	if err != nil {
		return nil, err
	}
	return &WireRemap{mapping: mapping}, nil
}

func (w *WireRemap) Name() string {
	return "wire_remap"
}

// VirtualPhysicalMapping exposes the map for result bookkeeping.
func (w *WireRemap) VirtualPhysicalMapping() core.VirtualPhysicalMappingMap {
	m := make(core.VirtualPhysicalMappingMap, len(w.mapping))
	for v, p := range w.mapping {
		m[uint32(v)] = uint32(p)
	}
	return m
}

func (w *WireRemap) Apply(t *core.Tape) (*core.Tape, error) {
	out := t.Clone()
	for i := range out.Ops {
		if err := w.remapWires(out.Ops[i].Wires); err != nil {
			return nil, err
		}
	}
	for i := range out.Measurements {
		if err := w.remapWires(out.Measurements[i].Wires); err != nil {
			return nil, err
		}
	}
	for _, p := range w.mapping {
		if p+1 > out.Wires {
			out.Wires = p + 1
		}
	}
	return out, nil
}

func (w *WireRemap) remapWires(wires []int) error {
	for i, v := range wires {
		p, ok := w.mapping[v]
		if !ok {
			return core.NewStructuralError("wire %d has no physical assignment", v)
		}
		wires[i] = p
	}
	return nil
}
