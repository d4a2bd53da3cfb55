package transform

import (
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/qfold-team/qfold-engine/core"
	"go.uber.org/multierr"
)

// PassSpec is one entry of a rewrite config's pass list. Name selects the
// registered factory; the remaining fields are per-pass knobs.
type PassSpec struct {
	Name    string      `json:"name"`
	Factor  float64     `json:"factor"`
	Delta   float64     `json:"delta"`
	Scale   float64     `json:"scale"`
	Mapping map[int]int `json:"mapping"`
}

type PassOptions struct {
	Passes []PassSpec `json:"passes"`
}

type PassFactory func(spec PassSpec, strict bool) (TapeTransform, error)

var passRegistry = map[string]PassFactory{}

func RegisterPass(name string, f PassFactory) {
	passRegistry[name] = f
}

func init() {
	RegisterPass("angle_scale", func(spec PassSpec, strict bool) (TapeTransform, error) {
		return NewAngleScale(spec.Factor, strict)
	})
	RegisterPass("angle_offset", func(spec PassSpec, strict bool) (TapeTransform, error) {
		return NewAngleOffset(spec.Delta, strict)
	})
	RegisterPass("global_fold", func(spec PassSpec, _ bool) (TapeTransform, error) {
		return NewGlobalFold(spec.Scale)
	})
	RegisterPass("wire_remap", func(spec PassSpec, _ bool) (TapeTransform, error) {
		return NewWireRemap(spec.Mapping)
	})
}

// BuildPipeline assembles a rewrite pipeline from raw rewrite options.
// Unknown pass names and invalid knobs accumulate into one configuration
// error. The returned mapping is the wire remap recorded for result
// bookkeeping, nil when no wire_remap pass is configured.
func BuildPipeline(options json.RawMessage, strict bool) (*Pipeline, core.VirtualPhysicalMappingMap, error) {
	po := PassOptions{}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &po); err != nil {
			return nil, nil, errors.Wrap(err, "malformed rewrite options")
		}
	}
	pl := NewPipeline()
	var vpm core.VirtualPhysicalMappingMap
	var cfgErr error
	for _, spec := range po.Passes {
		factory, ok := passRegistry[spec.Name]
		if !ok {
			cfgErr = multierr.Append(cfgErr, errors.Errorf("unknown rewrite pass %q", spec.Name))
			continue
		}
		tr, err := factory(spec, strict)
		if err != nil {
			cfgErr = multierr.Append(cfgErr, errors.Wrapf(err, "pass %q", spec.Name))
			continue
		}
		if wr, ok := tr.(*WireRemap); ok {
			vpm = wr.VirtualPhysicalMapping()
		}
		pl.Append(tr)
	}
	if cfgErr != nil {
		return nil, nil, cfgErr
	}
	return pl, vpm, nil
}
