package multiprog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/qfold-team/qfold-engine/core"
	rd "github.com/qfold-team/qfold-engine/multiprog/manual/resultdivider"
	"github.com/qfold-team/qfold-engine/qasm"
	"go.uber.org/zap"
)

const MULTIPROG_MANUAL_JOB = "multi_manual"

// ManualJob packs independent programs into one execution. The program
// field of the job is a JSON array of OpenQASM documents; preprocessing
// merges them side by side into one wide tape, the backend runs the merged
// tape once, and postprocessing divides the counts back into one result
// per program. The submitted array is kept so a failed job reports the
// program the user wrote, not the merged one.
type ManualJob struct {
	jobData            *core.JobData
	jobContext         *core.JobContext
	combinedQubitsList []int32
	combinedQASM       string
	originalQASMs      string

	postProcessed bool
}

func (j *ManualJob) New(jd *core.JobData, jc *core.JobContext) core.Job {
	return &ManualJob{
		jobData:            jd,
		jobContext:         jc,
		combinedQubitsList: make([]int32, 0),
		combinedQASM:       "",
		originalQASMs:      "",
		postProcessed:      false,
	}
}

func (j *ManualJob) JobData() *core.JobData {
	return j.jobData
}

func (j *ManualJob) JobType() string {
	return MULTIPROG_MANUAL_JOB
}

func (j *ManualJob) JobContext() *core.JobContext {
	return j.jobContext
}

func (j *ManualJob) IsFinished() bool {
	return j.postProcessed || j.JobData().Status == core.FAILED
}

func (j *ManualJob) PreProcess() {
	jd := j.JobData()
	j.originalQASMs = jd.QASM
	if err := j.preProcessImpl(); err != nil {
		zap.L().Error(fmt.Sprintf("failed to pre-process a job(%s). Reason:%s",
			jd.ID, err.Error()))
		j.rollbackQASM()
		core.SetFailureWithError(j, err)
		return
	}
}

func (j *ManualJob) preProcessImpl() (err error) {
	err = nil
	jd := j.JobData()
	container := core.GetSystemComponents().Container
	err = container.Invoke(
		func(d core.DBManager) error {
			if d.ExistInInnerJobIDSet(jd.ID) {
				return core.ErrorJobIDConflict
			}
			return nil
		})
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to check the existence of a job(%s). Reason:%s",
			jd.ID, err.Error()))
		return
	}

	var programs []string
	if err = json.Unmarshal([]byte(j.originalQASMs), &programs); err != nil {
		err = fmt.Errorf("the program of a %s job must be a JSON array of OpenQASM documents: %s",
			MULTIPROG_MANUAL_JOB, err.Error())
		return
	}
	maxQubits := core.GetSystemComponents().GetDeviceInfo().MaxQubits
	combined, widths, err := combinePrograms(programs, maxQubits)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to combine the programs of a job(%s). Reason:%s",
			jd.ID, err.Error()))
		return
	}
	j.combinedQubitsList = widths
	jd.Tape = combined
	jd.QASM = qasm.Emit(combined) // the backend runs the merged program
	j.combinedQASM = jd.QASM

	if jd.NeedsRewrite() {
		err = container.Invoke(
			func(r core.Rewriter) error {
				return r.Rewrite(j)
			})
		if err != nil {
			zap.L().Error(fmt.Sprintf("failed to rewrite a job(%s). Reason:%s", jd.ID, err.Error()))
			return
		}
	} else {
		zap.L().Debug(fmt.Sprintf("skip rewriting a job(%s)/Rewrite:%v",
			jd.ID, jd.Rewrite))
	}
	_ = container.Invoke(
		func(d core.DBManager) error {
			d.AddToInnerJobIDSet(jd.ID)
			return nil
		})
	return
}

func (j *ManualJob) Process() {
	c := core.GetSystemComponents().Container
	err := c.Invoke(
		func(b core.Backend) error {
			return b.Send(j)
		})
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to send a job(%s) to the backend. Reason:%s",
			j.JobData().ID, err.Error()))
		j.jobData.Status = core.FAILED
		j.rollbackQASM()
		return
	}
	zap.L().Debug(fmt.Sprintf("finished to process a job(%s)/status:%s", j.JobData().ID, j.JobData().Status))
}

func (j *ManualJob) PostProcess() {
	jd := j.JobData()
	j.postProcessed = true

	if err := j.setQASMJson(); err != nil {
		zap.L().Error(fmt.Sprintf("failed to set qasm json in a job(%s). Reason:%s", jd.ID, err.Error()))
		core.SetFailureWithError(j, fmt.Errorf("Post-process failed"))
		j.rollbackQASM()
		return
	}

	// split the counts of the merged execution back per program
	if err := rd.DivideResult(jd, j.combinedQubitsList); err != nil {
		zap.L().Error(fmt.Sprintf("failed to divide a job(%s). Reason:%s", jd.ID, err.Error()))
		core.SetFailureWithError(j, fmt.Errorf("Post-process failed"))
		return
	}
	jd.Status = core.SUCCEEDED
	jd.Ended = strfmt.DateTime(time.Now())
}

// setQASMJson replaces the program of the job with a report of what
// actually ran: the merged program next to the submitted array.
func (j *ManualJob) setQASMJson() (err error) {
	err = nil
	qasmJSON, err := json.Marshal(map[string]string{
		"combined_qasm":  j.combinedQASM,
		"original_qasms": j.originalQASMs,
	})
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to marshal QASM map in a job(%s). Reason:%s",
			j.JobData().ID, err.Error()))
		return
	}
	j.jobData.QASM = string(qasmJSON)
	return
}

func (j *ManualJob) rollbackQASM() {
	j.jobData.QASM = j.originalQASMs
}

func (j *ManualJob) Clone() core.Job {
	copiedQubitsList := make([]int32, len(j.combinedQubitsList))
	copy(copiedQubitsList, j.combinedQubitsList)
	cloned := &ManualJob{
		jobData:            j.jobData.Clone(),
		jobContext:         j.jobContext,
		combinedQubitsList: copiedQubitsList,
		combinedQASM:       j.combinedQASM,
		originalQASMs:      j.originalQASMs,
		postProcessed:      j.postProcessed,
	}
	return cloned
}

// combinePrograms merges independent OpenQASM programs into one wide tape.
// Program p keeps its gate order and has its wires shifted up by the
// widths of the programs before it, so all of them run in one execution.
// The returned widths list the readout size of each program in merge
// order; the result divider needs them to split the counts back.
func combinePrograms(programs []string, maxQubits int) (*core.Tape, []int32, error) {
	if len(programs) == 0 {
		return nil, nil, fmt.Errorf("no programs to combine")
	}
	tapes := make([]*core.Tape, 0, len(programs))
	totalWires := 0
	for i, program := range programs {
		t, err := qasm.Parse(program)
		if err != nil {
			return nil, nil, fmt.Errorf("program %d is not parsable: %s", i, err.Error())
		}
		tapes = append(tapes, t)
		totalWires += t.Wires
	}
	if maxQubits > 0 && totalWires > maxQubits {
		return nil, nil, fmt.Errorf("combined program needs %d qubits, the device has %d",
			totalWires, maxQubits)
	}

	ops := []core.Operation{}
	measurements := []core.Measurement{}
	widths := make([]int32, len(tapes))
	offset := 0
	for p, t := range tapes {
		for _, op := range t.Ops {
			shifted := op.Clone()
			for i := range shifted.Wires {
				shifted.Wires[i] += offset
			}
			ops = append(ops, shifted)
		}
		for _, m := range t.Measurements {
			shifted := m.Clone()
			for i := range shifted.Wires {
				shifted.Wires[i] += offset
			}
			measurements = append(measurements, shifted)
			widths[p] += int32(len(m.Wires))
		}
		offset += t.Wires
	}
	combined, err := core.NewTape(totalWires, ops, measurements)
	if err != nil {
		return nil, nil, err
	}
	return combined, widths, nil
}
