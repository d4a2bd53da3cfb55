package mitig

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/qfold-team/qfold-engine/common"
	"github.com/qfold-team/qfold-engine/core"
	"go.uber.org/zap"
)

type PropertyRaw json.RawMessage

type MitigationInfo struct {
	NeedToBeMitigated bool
	Mitigated         bool

	PropertyRaw PropertyRaw
}

func NewMitigationInfoFromJobData(jd *core.JobData) *MitigationInfo {
	m := MitigationInfo{
		Mitigated: false,
	}
	m.NeedToBeMitigated = false
	inputBytes := []byte(jd.MitigationInfo)

	if len(inputBytes) > 0 && json.Valid(inputBytes) {
		m.PropertyRaw = PropertyRaw(inputBytes)
		var props map[string]string
		if err := json.Unmarshal(m.PropertyRaw, &props); err != nil {
			zap.L().Warn(fmt.Sprintf("failed to unmarshal PropertyRaw into map for JobID:%s, assuming not mitigated: %s", jd.ID, err))
		} else {
			readoutValue, ok := props["readout"]
			// some workload sources double-quote the value
			if ok && common.PlainJsonString(readoutValue) == "pseudo_inverse" {
				zap.L().Debug(fmt.Sprintf("JobID:%s Need to be mitigated based on PropertyRaw.readout", jd.ID))
				m.NeedToBeMitigated = true
			} else {
				zap.L().Debug(fmt.Sprintf("JobID:%s does not need to be mitigated based on PropertyRaw.readout (value: %s, found: %t)", jd.ID, readoutValue, ok))
			}
		}
	} else if len(inputBytes) == 0 {
		zap.L().Debug(fmt.Sprintf("JobID:%s MitigationInfo string is empty, assuming not mitigated", jd.ID))
	} else {
		zap.L().Warn(fmt.Sprintf("JobID:%s MitigationInfo string is not valid JSON, assuming not mitigated: %s", jd.ID, jd.MitigationInfo))
	}
	zap.L().Debug(fmt.Sprintf("set MitigationInfo PropertyRaw: %s, NeedToBeMitigated: %t", string(m.PropertyRaw), m.NeedToBeMitigated))
	return &m
}

// PseudoInverseMitigation corrects readout errors in the measured counts
// by applying the inverse of each measured qubit's confusion matrix. The
// matrix is assembled from the device calibration, so no external
// mitigation service is involved. Corrected quasi-counts are clamped at
// zero and renormalized to the original shot total.
func PseudoInverseMitigation(jd *core.JobData) {
	numOfQubits, err := getNumOfQubits(jd.Result.Counts)
	if err != nil {
		zap.L().Error("failed to get number of qubits/reason: ", zap.Error(err))
		jd.Status = core.FAILED
		return
	}

	cal, err := measErrorByQubit()
	if err != nil {
		zap.L().Error("failed to get measurement calibration/reason: ", zap.Error(err))
		jd.Status = core.FAILED
		return
	}

	measured := measuredQubits(jd, numOfQubits)
	zap.L().Debug(fmt.Sprintf("measured qubits: %v", measured))

	octs := jd.Result.Counts
	zap.L().Debug(fmt.Sprintf("original counts: %v", octs))
	dist := make(map[string]float64, len(octs))
	shots := uint32(0)
	for k, v := range octs {
		dist[k] = float64(v)
		shots += v
	}

	for pos := 0; pos < numOfQubits; pos++ {
		me, ok := cal[measured[pos]]
		if !ok {
			zap.L().Debug(fmt.Sprintf("no calibration for qubit %d/leaving position %d uncorrected", measured[pos], pos))
			continue
		}
		dist, err = applyInverse(dist, pos, me)
		if err != nil {
			zap.L().Error(fmt.Sprintf("failed to mitigate JobID:%s/reason:%s", jd.ID, err))
			jd.Status = core.FAILED
			return
		}
	}

	jd.Result.Counts = roundCounts(dist, shots)
	jd.Status = core.SUCCEEDED
	zap.L().Debug(fmt.Sprintf("mitigated counts: %v", jd.Result.Counts))
}

func getNumOfQubits(counts core.Counts) (int, error) {
	if len(counts) == 0 {
		return 0, fmt.Errorf("counts is empty")
	}
	candidateNum := 0
	for k := range counts {
		if candidateNum == 0 {
			candidateNum = len(k)
		} else {
			if candidateNum != len(k) {
				return 0, fmt.Errorf("different length of keys in counts")
			}
		}
	}
	return candidateNum, nil
}

// measErrorByQubit reads the per-qubit readout error probabilities out of
// the backend's device spec.
func measErrorByQubit() (map[int]core.MeasError, error) {
	s := core.GetSystemComponents()
	disj := s.GetDeviceInfo().DeviceInfoSpecJson

	var dis core.DeviceInfoSpec
	if err := json.Unmarshal([]byte(disj), &dis); err != nil {
		zap.L().Error("failed to unmarshal device info spec json", zap.Error(err))
		return nil, err
	}
	cal := make(map[int]core.MeasError, len(dis.Qubits))
	for _, q := range dis.Qubits {
		cal[q.ID] = q.MeasError
	}
	return cal, nil
}

// measuredQubits maps each position of a counts bitstring to the qubit it
// was read from. Position k is the k-th measured wire of the execution
// tape; when the tape does not pin the layout down, position k reads
// qubit k.
func measuredQubits(jd *core.JobData, n int) []int {
	wires := []int{}
	if t := jd.ExecutionTape(); t != nil {
		for _, m := range t.Measurements {
			wires = append(wires, m.Wires...)
		}
	}
	if len(wires) != n {
		wires = wires[:0]
		for i := 0; i < n; i++ {
			wires = append(wires, i)
		}
	}
	return wires
}

// applyInverse multiplies the distribution by the inverse confusion matrix
// of one bit position. With p01 the probability of reading 1 on a prepared
// 0 and p10 the probability of reading 0 on a prepared 1, the confusion
// matrix is [[1-p01, p10], [p01, 1-p10]] with determinant 1-p01-p10.
func applyInverse(dist map[string]float64, pos int, me core.MeasError) (map[string]float64, error) {
	p01 := me.ProbMeas1Prep0
	p10 := me.ProbMeas0Prep1
	det := 1.0 - p01 - p10
	if det <= 0 {
		return nil, fmt.Errorf("confusion matrix at position %d is singular (p01=%v, p10=%v)", pos, p01, p10)
	}

	out := make(map[string]float64, len(dist))
	done := make(map[string]struct{}, len(dist))
	for k := range dist {
		zero := withBitAt(k, pos, '0')
		if _, ok := done[zero]; ok {
			continue
		}
		done[zero] = struct{}{}
		one := withBitAt(k, pos, '1')
		c0 := dist[zero]
		c1 := dist[one]
		m0 := ((1.0-p10)*c0 - p10*c1) / det
		m1 := ((1.0-p01)*c1 - p01*c0) / det
		if m0 != 0 {
			out[zero] = m0
		}
		if m1 != 0 {
			out[one] = m1
		}
	}
	return out, nil
}

func withBitAt(s string, pos int, b byte) string {
	if s[pos] == b {
		return s
	}
	return s[:pos] + string(b) + s[pos+1:]
}

// roundCounts turns the corrected quasi-distribution back into integer
// counts summing to the original shot total. Negative entries are clamped
// to zero first; rounding distributes the remainder by largest fractional
// part so the total stays exact.
func roundCounts(dist map[string]float64, shots uint32) core.Counts {
	total := 0.0
	for k, v := range dist {
		if v < 0 {
			dist[k] = 0
			continue
		}
		total += v
	}
	if total == 0 {
		return core.Counts{}
	}

	keys := make([]string, 0, len(dist))
	for k := range dist {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	type entry struct {
		key   string
		n     uint32
		fract float64
	}
	entries := make([]entry, 0, len(keys))
	scale := float64(shots) / total
	floorSum := uint32(0)
	for _, k := range keys {
		scaled := dist[k] * scale
		fl := math.Floor(scaled)
		entries = append(entries, entry{key: k, n: uint32(fl), fract: scaled - fl})
		floorSum += uint32(fl)
	}
	rem := int(shots) - int(floorSum)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].fract > entries[j].fract
	})
	for i := 0; i < rem && i < len(entries); i++ {
		entries[i].n++
	}

	counts := core.Counts{}
	for _, e := range entries {
		if e.n > 0 {
			counts[e.key] = e.n
		}
	}
	return counts
}
