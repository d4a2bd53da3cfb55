package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-openapi/strfmt"
	jsoniter "github.com/json-iterator/go"
	"github.com/mohae/deepcopy"
	"github.com/tidwall/pretty"
	"go.uber.org/zap"
)

type Status int               // Status of the job as seen by the workload source, not only inside the engine.
type StatsRaw json.RawMessage // TODO: make StatsMap
type PhysicalVirtualMapping map[uint32]uint32
type VirtualPhysicalMappingRaw json.RawMessage
type VirtualPhysicalMappingMap map[uint32]uint32
type Counts map[string]uint32

var jsonIter = jsoniter.ConfigCompatibleWithStandardLibrary

func NewStatsRawFromString(s string) (StatsRaw, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// MarshalJSON emits the raw document as-is so Result JSON stays readable.
func (s StatsRaw) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte(`""`), nil
	}
	return s, nil
}

func (v VirtualPhysicalMappingRaw) MarshalJSON() ([]byte, error) {
	if len(v) == 0 {
		return []byte("{}"), nil
	}
	return v, nil
}

func (c Counts) String() string {
	st, err := jsonIter.Marshal(c)
	if err != nil {
		zap.L().Error("Failed to marshal core.Counts")
		return ""
	}
	return string(st)
}

// TotalShots sums the counts. Readout mitigation renormalizes against it.
func (c Counts) TotalShots() uint32 {
	var total uint32
	for _, v := range c {
		total += v
	}
	return total
}

// ZExpectation estimates <Z...Z> over the given bit positions of the
// counts keys: each key contributes its count with sign (-1)^parity,
// where parity counts the '1' bits at those positions. A nil positions
// slice means every bit of the key.
func (c Counts) ZExpectation(positions []int) (float64, error) {
	total := c.TotalShots()
	if total == 0 {
		return 0, fmt.Errorf("counts is empty")
	}
	sum := 0.0
	for key, count := range c {
		ones := 0
		if positions == nil {
			for i := 0; i < len(key); i++ {
				if key[i] == '1' {
					ones++
				}
			}
		} else {
			for _, pos := range positions {
				if pos < 0 || pos >= len(key) {
					return 0, fmt.Errorf("position %d is out of range for counts key %q", pos, key)
				}
				if key[pos] == '1' {
					ones++
				}
			}
		}
		if ones%2 == 0 {
			sum += float64(count)
		} else {
			sum -= float64(count)
		}
	}
	return sum / float64(total), nil
}

func ToStatus(s string) (Status, error) {
	switch s {
	case "submitted":
		return SUBMITTED, nil
	case "ready":
		return READY, nil
	case "running":
		return RUNNING, nil
	case "succeeded":
		return SUCCEEDED, nil
	case "failed":
		return FAILED, nil
	case "cancelled":
		return CANCELLED, nil
	default:
		return 0, fmt.Errorf("unknown status: %s", s)
	}
}

func (p PhysicalVirtualMapping) String() string {
	st, err := jsonIter.Marshal(p)
	if err != nil {
		zap.L().Error("Failed to marshal core.PhysicalVirtualMapping")
		return ""
	}
	return string(st)
}

func (v VirtualPhysicalMappingRaw) String() string {
	st, err := jsonIter.Marshal(v)
	if err != nil {
		zap.L().Error("Failed to marshal core.VirtualPhysicalMapping")
		return ""
	}
	return string(st)
}

func (v VirtualPhysicalMappingRaw) ToMap() (VirtualPhysicalMappingMap, error) {
	// JSON object keys are always strings, so unmarshal into a
	// map[string]uint32 first and convert.
	var temp map[string]uint32
	if err := json.Unmarshal(v, &temp); err != nil {
		zap.L().Error(fmt.Sprintf("failed to unmarshal VirtualPhysicalMappingRaw:%v/reason:%s",
			v, err))
	}

	result := make(map[uint32]uint32)
	for k, v := range temp {
		key, err := strconv.ParseUint(k, 10, 32)
		if err != nil {
			zap.L().Error(fmt.Sprintf("failed to convert key:%s/reason:%s", k, err))
			return nil, err
		}
		result[uint32(key)] = v
	}
	return result, nil
}

func (v VirtualPhysicalMappingMap) ToRaw() (VirtualPhysicalMappingRaw, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

type DividedResult map[uint32]map[string]uint32 // key1: circuit index, key2: bit string, value: count

const (
	SUBMITTED Status = iota // Accepted from the workload source, not handed to the scheduler yet.
	READY                   // Queued in the engine. All jobs start here once scheduled.
	RUNNING                 // Being processed on the execution backend.
	SUCCEEDED               // Finished successfully.
	FAILED                  // Finished with failure.
	CANCELLED               // Finished with cancellation.
)

func (s Status) String() string {
	switch s {
	case SUBMITTED:
		return "submitted"
	case READY:
		return "ready"
	case RUNNING:
		return "running"
	case SUCCEEDED:
		return "succeeded"
	case FAILED:
		return "failed"
	case CANCELLED:
		return "cancelled"
	default:
		return "unknown"
	}
}

type Result struct {
	Counts        Counts        `json:"counts"`
	DividedResult DividedResult `json:"divided_result"`
	RewriteInfo   *RewriteInfo  `json:"rewrite_info"`
	Estimation    *Estimation   `json:"estimation"`
	Gradient      []float64     `json:"gradient,omitempty"`
	Message       string        `json:"message"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// RewriteInfo records what the rewrite pipeline did to the tape, most
// importantly the wire relabeling so divided results can be mapped back.
type RewriteInfo struct {
	StatsRaw                  StatsRaw                  `json:"stats"`
	PhysicalVirtualMapping    PhysicalVirtualMapping    `json:"physical_virtual_mapping"`
	VirtualPhysicalMappingRaw VirtualPhysicalMappingRaw `json:"virtual_physical_mapping"`
	VirtualPhysicalMappingMap VirtualPhysicalMappingMap `json:"-"` // TODO unify with VirtualPhysicalMappingRaw
}

// Estimation carries an expectation value with its standard deviation.
// Both are float64: the extrapolation arithmetic depends on reproducible
// least-squares sums.
type Estimation struct {
	Exp_value float64 `json:"exp_value"`
	Stds      float64 `json:"stds"`
}

func cloneCounts(counts Counts) Counts {
	clone := make(Counts)
	for k, v := range counts {
		clone[k] = v
	}
	return clone
}

func cloneRewriteInfo(info *RewriteInfo) *RewriteInfo {
	clone := &RewriteInfo{}
	clone.PhysicalVirtualMapping = make(PhysicalVirtualMapping)

	for k, v := range info.PhysicalVirtualMapping {
		clone.PhysicalVirtualMapping[k] = v
	}
	clone.VirtualPhysicalMappingRaw = VirtualPhysicalMappingRaw(append(json.RawMessage(nil), info.VirtualPhysicalMappingRaw...))
	if info.VirtualPhysicalMappingMap != nil {
		clone.VirtualPhysicalMappingMap = make(VirtualPhysicalMappingMap)
		for k, v := range info.VirtualPhysicalMappingMap {
			clone.VirtualPhysicalMappingMap[k] = v
		}
	}
	return clone
}

func cloneEstimation(estimation *Estimation) *Estimation {
	clone := &Estimation{}
	clone.Exp_value = estimation.Exp_value
	clone.Stds = estimation.Stds
	return clone
}

type JobData struct {
	ID             string
	Status         Status
	Shots          int
	Rewrite        *RewriteConfig
	QASM           string
	Tape           *Tape
	RewrittenTape  *Tape
	Result         *Result
	JobType        string
	Created        strfmt.DateTime
	Ended          strfmt.DateTime
	Info           string
	MitigationInfo string
}

func (jd *JobData) Clone() *JobData {
	c := deepcopy.Copy(jd).(*JobData)
	c.Created = *jd.Created.DeepCopy()
	c.Ended = *jd.Ended.DeepCopy()
	return c
}

func (jd *JobData) NeedsRewrite() bool {
	return jd.Rewrite != nil && jd.Rewrite.RewriteLib != nil
}

// ExecutionTape is what the backend runs: the rewritten tape when the
// rewriter produced one, otherwise the tape as parsed.
func (jd *JobData) ExecutionTape() *Tape {
	if jd.RewrittenTape != nil {
		return jd.RewrittenTape
	}
	return jd.Tape
}

func NewResult() *Result {
	ri := &RewriteInfo{}
	ri.PhysicalVirtualMapping = make(PhysicalVirtualMapping)
	return &Result{
		Counts:      make(Counts),
		RewriteInfo: ri,
	}
}

func NewJobData() *JobData {
	return &JobData{
		Result:  NewResult(),
		Created: strfmt.DateTime(time.Now()),
	}
}

func CloneJobData(i *JobData) *JobData {
	o := NewJobData()
	o.ID = i.ID
	o.Status = i.Status
	o.Shots = i.Shots
	o.Rewrite = i.Rewrite
	o.QASM = i.QASM
	if i.Tape != nil {
		o.Tape = i.Tape.Clone()
	}
	if i.RewrittenTape != nil {
		o.RewrittenTape = i.RewrittenTape.Clone()
	}
	o.Result.Counts = cloneCounts(i.Result.Counts)
	o.Result.RewriteInfo = cloneRewriteInfo(i.Result.RewriteInfo)
	o.JobType = i.JobType
	o.Created = i.Created
	o.Ended = i.Ended
	if i.Result.Estimation != nil {
		o.Result.Estimation = cloneEstimation(i.Result.Estimation)
	}
	if i.Result.Gradient != nil {
		o.Result.Gradient = append([]float64(nil), i.Result.Gradient...)
	}
	return o
}

func (r *Result) ToString() string {
	st, err := jsonIter.Marshal(r)
	if err != nil {
		zap.L().Error("Failed to marshal core.Result")
		return ""
	}
	st = pretty.Pretty(st)
	return string(st)
}

// TODO resolve the confusion between RewriteConfig and RewriteInfo
type RewriteConfig struct {
	RewriteLib     *string         `json:"rewrite_lib"` //(=nil) null means no rewriting
	RewriteOptions json.RawMessage `json:"rewrite_options"`
	UseDefault     bool            `json:"-"`
}

func (c RewriteConfig) NeedsRewrite() bool {
	return c.RewriteLib != nil
}

func UnmarshalToRewriteConfig(rewriteInfo string) RewriteConfig {
	var c RewriteConfig
	err := jsonIter.Unmarshal([]byte(rewriteInfo), &c)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to unmarshal rewrite config from :%s/reason:%s",
			rewriteInfo, err))
	}
	return c
}
