package grad

import (
	"encoding/json"
	"fmt"

	"github.com/qfold-team/qfold-engine/core"
	"github.com/qfold-team/qfold-engine/qasm"
	"github.com/qfold-team/qfold-engine/transform"
	"go.uber.org/zap"
)

const GRADIENT_JOB = "gradient_job"

// gradInfo is the job info document: which trainable slots to
// differentiate. An absent list means all of them.
type gradInfo struct {
	Argnums []int `json:"argnums"`
}

// gradProperties is the fragment of the mitigation config this job reads.
// A scale factor ladder folds every objective evaluation and extrapolates
// it to zero noise before the difference is taken.
type gradProperties struct {
	ScaleFactors []float64 `json:"scale_factors"`
}

// GradientJob differentiates the expectation value of a program with
// respect to its trainable rotation angles. The objective handed to the
// differentiation component sets a parameter vector into the tape, expands
// the optional folding plan, executes every branch through the backend and
// combines the measured parities.
type GradientJob struct {
	jobData    *core.JobData
	jobContext *core.JobContext
	base       *core.Tape
	initial    []float64
	argnums    []int
	zne        *transform.ZNE // nil runs the plain tape
	value      float64
	gradient   []float64

	finished bool
}

func (j *GradientJob) New(jd *core.JobData, jc *core.JobContext) core.Job {
	return &GradientJob{
		jobData:    jd,
		jobContext: jc,
		finished:   false,
	}
}

func (j *GradientJob) PreProcess() {
	if err := j.preProcessImpl(); err != nil {
		zap.L().Error(fmt.Sprintf("failed to pre-process a job(%s). Reason:%s",
			j.JobData().ID, err.Error()))
		core.SetFailureWithError(j, err)
		j.finished = true
		return
	}
	return
}

func (j *GradientJob) preProcessImpl() (err error) {
	err = nil
	jd := j.JobData()
	container := core.GetSystemComponents().Container
	// TODO refactor this part
	// make jobID pool in syscomponent
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
	err = container.Invoke(
		func(d core.DBManager) error {
			return d.Insert(j)
		})
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to insert a job(%s). Reason:%s", jd.ID, err.Error()))
		return
	}
	if jd.Tape == nil {
		zap.L().Debug(fmt.Sprintf("QASM:%s", jd.QASM))
		var t *core.Tape
		t, err = qasm.Parse(jd.QASM)
		if err != nil {
			zap.L().Error(fmt.Sprintf("failed to parse the program of a job(%s). Reason:%s",
				jd.ID, err.Error()))
			return
		}
		jd.Tape = t
	}
	if jd.NeedsRewrite() {
		err = container.Invoke(
			func(r core.Rewriter) error {
				return r.Rewrite(j)
			})
		if err != nil {
			zap.L().Error(fmt.Sprintf("failed to rewrite a job(%s). Reason:%s", jd.ID, err.Error()))
			return
		}
	}

	j.base = jd.ExecutionTape()
	j.initial = trainableValues(j.base)
	if len(j.initial) == 0 {
		err = core.NewNotDifferentiableError("the tape of job %s has no trainable parameters", jd.ID)
		return
	}
	j.argnums, err = parseArgnums(jd.Info, len(j.initial))
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to parse the argnums of a job(%s). Reason:%s",
			jd.ID, err.Error()))
		return
	}
	var scales []float64
	scales, err = parseScaleFactors(jd.MitigationInfo)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to parse the noise scales of a job(%s). Reason:%s",
			jd.ID, err.Error()))
		return
	}
	if scales != nil {
		j.zne, err = transform.NewZNE(scales)
		if err != nil {
			return
		}
	}
	zap.L().Debug(fmt.Sprintf("differentiating %d of %d trainable parameters for job(%s)",
		len(j.argnums), len(j.initial), jd.ID))

	_ = container.Invoke(
		func(d core.DBManager) error {
			d.AddToInnerJobIDSet(jd.ID)
			return nil
		})
	return
}

func (j *GradientJob) Process() {
	value, err := j.evaluate(j.initial)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to evaluate the objective of a job(%s). Reason:%s",
			j.JobData().ID, err.Error()))
		core.SetFailureWithError(j, err)
		j.finished = true
		return
	}
	j.value = value

	c := core.GetSystemComponents().Container
	err = c.Invoke(
		func(d core.Differentiator) error {
			grads, gerr := d.Gradient(j.evaluate, j.initial, j.argnums)
			if gerr != nil {
				return gerr
			}
			j.gradient = grads
			return nil
		})
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to differentiate a job(%s). Reason:%s",
			j.JobData().ID, err.Error()))
		core.SetFailureWithError(j, err)
		j.finished = true
		return
	}
	zap.L().Debug(fmt.Sprintf("computed %d gradient components for job(%s)",
		len(j.gradient), j.JobData().ID))
}

// evaluate is the objective: expectation of the program at one parameter
// vector. The job data's rewritten tape is working state during branch
// execution and holds the last executed branch afterwards.
func (j *GradientJob) evaluate(params []float64) (float64, error) {
	tape, err := withParams(j.base, params)
	if err != nil {
		return 0, err
	}
	branches := []*core.Tape{tape}
	combiner := transform.Combiner(transform.IdentityCombiner)
	if j.zne != nil {
		branches, combiner, err = j.zne.Expand(tape)
		if err != nil {
			return 0, err
		}
	}
	c := core.GetSystemComponents().Container
	values := make([]float64, len(branches))
	for i, b := range branches {
		j.jobData.RewrittenTape = b
		err = c.Invoke(
			func(be core.Backend) error {
				return be.Send(j)
			})
		if err != nil {
			return 0, err
		}
		if j.jobData.Status == core.FAILED {
			return 0, fmt.Errorf("backend reported FAILED for job(%s)", j.jobData.ID)
		}
		var e float64
		e, err = j.jobData.Result.Counts.ZExpectation(nil)
		if err != nil {
			return 0, err
		}
		values[i] = e
	}
	return combiner(values)
}

func (j *GradientJob) PostProcess() {
	j.finished = true
	if err := j.postProcessImpl(); err != nil {
		zap.L().Error(fmt.Sprintf("failed to post-process a job(%s). Reason:%s",
			j.JobData().ID, err.Error()))
		core.SetFailureWithError(j, err)
		return
	}
	j.JobData().Status = core.SUCCEEDED
	return
}

func (j *GradientJob) postProcessImpl() error {
	if j.gradient == nil {
		return fmt.Errorf("no gradient to report")
	}
	jd := j.JobData()
	jd.Result.Gradient = append([]float64(nil), j.gradient...)
	jd.Result.Estimation = &core.Estimation{
		Exp_value: j.value,
	}
	zap.L().Debug(fmt.Sprintf("value:%f, gradient:%v for job(%s)",
		j.value, j.gradient, jd.ID))
	return nil
}

func (j *GradientJob) IsFinished() bool {
	return j.finished
}

func (j *GradientJob) JobData() *core.JobData {
	return j.jobData
}

func (j *GradientJob) JobType() string {
	return GRADIENT_JOB
}

func (j *GradientJob) JobContext() *core.JobContext {
	return j.jobContext
}

func (j *GradientJob) UpdateJobData(jd *core.JobData) {
	j.jobData = jd
}

func (j *GradientJob) Clone() core.Job {
	cloned := &GradientJob{
		jobData:    j.jobData.Clone(),
		jobContext: j.jobContext,
	}
	return cloned
}

// trainableValues flattens the trainable parameter values of a tape in op
// order. This order is the parameter vector layout of the objective.
func trainableValues(t *core.Tape) []float64 {
	vals := []float64{}
	for _, op := range t.Ops {
		for _, p := range op.Params {
			if p.Trainable {
				vals = append(vals, p.Value)
			}
		}
	}
	return vals
}

// withParams clones the tape and writes a parameter vector into its
// trainable slots in op order. Non-trainable parameters stay untouched.
func withParams(t *core.Tape, params []float64) (*core.Tape, error) {
	out := t.Clone()
	k := 0
	for oi := range out.Ops {
		for pi := range out.Ops[oi].Params {
			if !out.Ops[oi].Params[pi].Trainable {
				continue
			}
			if k >= len(params) {
				return nil, core.NewNotDifferentiableError(
					"got %d parameter values for more trainable slots", len(params))
			}
			out.Ops[oi].Params[pi].Value = params[k]
			k++
		}
	}
	if k != len(params) {
		return nil, core.NewNotDifferentiableError(
			"got %d parameter values for %d trainable slots", len(params), k)
	}
	return out, nil
}

func parseArgnums(jinfo string, numParams int) ([]int, error) {
	info := gradInfo{}
	if jinfo != "" {
		if err := json.Unmarshal([]byte(jinfo), &info); err != nil {
			return nil, fmt.Errorf("gradient options must be JSON: %s", err.Error())
		}
	}
	if info.Argnums == nil {
		all := make([]int, numParams)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	for _, a := range info.Argnums {
		if a < 0 || a >= numParams {
			return nil, core.NewNotDifferentiableError(
				"argnum %d is out of range for %d trainable parameters", a, numParams)
		}
	}
	return info.Argnums, nil
}

// parseScaleFactors reads the optional noise scale ladder out of the
// mitigation config. No document or no key means no folding: the gradient
// of the raw objective.
func parseScaleFactors(mitigationInfo string) ([]float64, error) {
	if mitigationInfo == "" {
		return nil, nil
	}
	props := gradProperties{}
	if err := json.Unmarshal([]byte(mitigationInfo), &props); err != nil {
		return nil, fmt.Errorf("mitigation config must be JSON: %s", err.Error())
	}
	return props.ScaleFactors, nil
}
