package backend

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/qfold-team/qfold-engine/core"
	"github.com/qfold-team/qfold-engine/qasm"
	"go.uber.org/zap"
)

const DummyDeviceName = "DummyDevice"
const DummyProviderName = "DummyProvider"

// Dummy is the deterministic stand-in for a real device. It is not a
// simulator: counts come from a closed-form model, the product over
// measured wires of cos(net rotation angle), damped by
// (1-depolarizing_rate)^depth. Adjoint rotations count negative in the net
// angle, so a folded tape keeps its noiseless value while the damping
// tracks the grown depth.
type Dummy struct {
	deviceSetting *DeviceSetting
	calibratedAt  string

	DepolarizingRate float64
	ProbMeas1Prep0   float64
	ProbMeas0Prep1   float64

	EnableDummyBackendTimeInsertion bool
	DummyBackendTime                int
}

func (d *Dummy) Setup(conf *core.Conf) error {
	zap.L().Debug("setting up the dummy backend")
	ds, err := LoadDeviceSetting(conf.DeviceSettingPath)
	if err != nil {
		zap.L().Error(fmt.Sprintf("Failed to load a device setting. Reason:%s", err))
		return err
	}
	d.deviceSetting = ds
	d.calibratedAt = time.Now().UTC().Format(time.RFC3339)
	d.EnableDummyBackendTimeInsertion = conf.EnableDummyBackendTimeInsertion
	d.DummyBackendTime = conf.DummyBackendTime
	d.applyComponentSetting()
	return nil
}

func (d *Dummy) applyComponentSetting() {
	s, ok := core.GetComponentSetting("dummy_backend")
	if !ok {
		return
	}
	// TODO: fix this adhoc
	m, ok := s.(map[string]interface{})
	if !ok {
		zap.L().Error(fmt.Sprintf("unexpected dummy_backend setting:%v", s))
		return
	}
	if v, ok := settingFloat(m["depolarizing_rate"]); ok {
		d.DepolarizingRate = v
	}
	if v, ok := settingFloat(m["prob_meas1_prep0"]); ok {
		d.ProbMeas1Prep0 = v
	}
	if v, ok := settingFloat(m["prob_meas0_prep1"]); ok {
		d.ProbMeas0Prep1 = v
	}
}

// TOML integers decode as int64, so a rate written as "0" needs a
// conversion.
func settingFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

func (d *Dummy) Send(j core.Job) error {
	jd := j.JobData()
	zap.L().Info("[Dummy] starting backend execution")
	start := time.Now()
	if d.EnableDummyBackendTimeInsertion {
		zap.L().Debug(fmt.Sprintf("[Dummy] waiting %d seconds for backend execution", d.DummyBackendTime))
		<-time.After(time.Duration(d.DummyBackendTime) * time.Second)
	} else {
		zap.L().Debug("[Dummy] no waiting for backend execution")
	}
	counts, err := d.run(jd)
	if err != nil {
		msg := core.SetFailureWithErrorToJobData(jd, err)
		zap.L().Info(msg + fmt.Sprintf("/JobID:%s", jd.ID))
		return err
	}
	jd.Result.Counts = counts
	jd.Status = core.SUCCEEDED
	jd.Ended = strfmt.DateTime(time.Now())
	jd.Result.ExecutionTime = time.Since(start)
	zap.L().Info("[Dummy] finished backend execution")
	return nil
}

func (d *Dummy) run(jd *core.JobData) (core.Counts, error) {
	tape := jd.ExecutionTape()
	if tape == nil {
		if jd.QASM == "" {
			return nil, core.NewBackendError("job %s has neither a program nor a tape", jd.ID)
		}
		parsed, err := qasm.Parse(jd.QASM)
		if err != nil {
			return nil, err
		}
		tape = parsed
	}
	if err := d.checkTape(tape); err != nil {
		return nil, err
	}
	if jd.Shots <= 0 {
		return nil, core.NewBackendError("shots must be positive, got %d", jd.Shots)
	}
	if jd.Shots > d.setting().MaxShots {
		return nil, core.NewBackendError("shots %d is over the limit %d", jd.Shots, d.setting().MaxShots)
	}
	measured := measuredWires(tape)
	if len(measured) == 0 {
		return nil, core.NewBackendError("tape has no measurements to sample")
	}
	e := d.expectation(tape, measured)
	return synthesizeCounts(e, len(measured), uint32(jd.Shots)), nil
}

func (d *Dummy) checkTape(t *core.Tape) error {
	for _, op := range t.Ops {
		if op.Kind == core.GateUnknown {
			return core.NewBackendError("gate %q is not in the device gate set", op.GateName())
		}
		for _, w := range op.Wires {
			if w >= d.setting().MaxQubits {
				return core.NewBackendError("wire %d is out of the device range [0, %d)", w, d.setting().MaxQubits)
			}
		}
	}
	if err := validateGates(t, d.setting().GateSupport); err != nil {
		return core.NewBackendError("%s", err)
	}
	return nil
}

func (d *Dummy) expectation(t *core.Tape, measured []int) float64 {
	net := make(map[int]float64, t.Wires)
	for _, op := range t.Ops {
		if !op.Kind.IsRotation() || len(op.Params) == 0 {
			continue
		}
		angle := op.Params[0].Value
		if op.Adjoint {
			angle = -angle
		}
		for _, w := range op.Wires {
			net[w] += angle
		}
	}
	e := 1.0
	for _, w := range measured {
		e *= math.Cos(net[w])
	}
	e *= math.Pow(1.0-d.DepolarizingRate, float64(t.Depth()))
	return e
}

func measuredWires(t *core.Tape) []int {
	wires := []int{}
	for _, m := range t.Measurements {
		wires = append(wires, m.Wires...)
	}
	return wires
}

// synthesizeCounts spreads the shot budget over two keys: the even-parity
// weight goes to the all-zeros key, the remainder to the key with a one in
// the leftmost position.
func synthesizeCounts(e float64, numBits int, shots uint32) core.Counts {
	pEven := (1.0 + e) / 2.0
	if pEven < 0 {
		pEven = 0
	}
	if pEven > 1 {
		pEven = 1
	}
	even := uint32(math.Round(pEven * float64(shots)))
	if even > shots {
		even = shots
	}
	odd := shots - even
	counts := make(core.Counts)
	if even > 0 {
		counts[strings.Repeat("0", numBits)] = even
	}
	if odd > 0 {
		counts["1"+strings.Repeat("0", numBits-1)] = odd
	}
	return counts
}

func (d *Dummy) Validate(program string) error {
	return validateProgram(program, d.setting())
}

func (d *Dummy) GetDeviceInfo() *core.DeviceInfo {
	ds := d.setting()
	return &core.DeviceInfo{
		DeviceName:         ds.DeviceName,
		ProviderName:       ds.ProviderName,
		Type:               ds.DeviceType,
		Status:             core.Available,
		MaxQubits:          ds.MaxQubits,
		MaxShots:           ds.MaxShots,
		DeviceInfoSpecJson: d.deviceInfoSpecJson(),
		CalibratedAt:       d.calibratedAt,
	}
}

func (d *Dummy) setting() *DeviceSetting {
	if d.deviceSetting == nil {
		d.deviceSetting = NewDeviceSetting()
	}
	return d.deviceSetting
}

// deviceInfoSpecJson publishes one calibration entry per qubit so the
// readout mitigation has a confusion matrix to invert.
func (d *Dummy) deviceInfoSpecJson() string {
	spec := core.DeviceInfoSpec{DeviceID: DummyDeviceName}
	for i := 0; i < d.setting().MaxQubits; i++ {
		spec.Qubits = append(spec.Qubits, core.Qubit{
			ID:         i,
			PhysicalID: i,
			Fidelity:   0.99,
			MeasError: core.MeasError{
				ProbMeas1Prep0:         d.ProbMeas1Prep0,
				ProbMeas0Prep1:         d.ProbMeas0Prep1,
				ReadoutAssignmentError: (d.ProbMeas1Prep0 + d.ProbMeas0Prep1) / 2.0,
			},
		})
	}
	b, err := json.Marshal(spec)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to marshal the device info spec/reason:%s", err))
		return ""
	}
	return string(b)
}
