package zne

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/qfold-team/qfold-engine/core"
	"github.com/qfold-team/qfold-engine/mitig"
	"github.com/qfold-team/qfold-engine/qasm"
	"github.com/qfold-team/qfold-engine/transform"
	"go.uber.org/zap"
)

const ZNE_JOB = "zne_job"

func DEFAULT_SCALE_FACTORS() []float64 {
	return []float64{1.0, 3.0, 5.0}
}

// zneProperties is the fragment of the mitigation config this job reads.
// Other keys of the document are left alone.
type zneProperties struct {
	ScaleFactors []float64 `json:"scale_factors"`
}

// ZNEJob runs one program at several amplified noise scales and
// extrapolates the measured expectation value back to zero noise. The
// branch tapes come from global unitary folding, the combination is an
// OLS fit over the scale factors.
type ZNEJob struct {
	jobData    *core.JobData
	jobContext *core.JobContext
	scales     []float64
	branches   []*core.Tape
	combiner   transform.Combiner
	countsList []core.Counts

	finished bool
}

func (j *ZNEJob) New(jd *core.JobData, jc *core.JobContext) core.Job {
	return &ZNEJob{
		jobData:    jd,
		jobContext: jc,
		countsList: make([]core.Counts, 0),
		finished:   false,
	}
}

func (j *ZNEJob) PreProcess() {
	if err := j.preProcessImpl(); err != nil {
		zap.L().Error(fmt.Sprintf("failed to pre-process a job(%s). Reason:%s",
			j.JobData().ID, err.Error()))
		core.SetFailureWithError(j, err)
		j.finished = true
		return
	}
	return
}

func (j *ZNEJob) preProcessImpl() (err error) {
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

	var scales []float64
	scales, err = parseScaleFactors(jd.MitigationInfo)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to parse the noise scales of a job(%s). Reason:%s",
			jd.ID, err.Error()))
		return
	}
	var z *transform.ZNE
	z, err = transform.NewZNE(scales)
	if err != nil {
		return
	}
	var branches []*core.Tape
	var combiner transform.Combiner
	branches, combiner, err = z.Expand(jd.ExecutionTape())
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to expand the folding plan of a job(%s). Reason:%s",
			jd.ID, err.Error()))
		return
	}
	j.scales = z.ScaleFactors()
	j.branches = branches
	j.combiner = combiner
	zap.L().Debug(fmt.Sprintf("expanded %d folded branches for job(%s)", len(branches), jd.ID))

	_ = container.Invoke(
		func(d core.DBManager) error {
			d.AddToInnerJobIDSet(jd.ID)
			return nil
		})
	return
}

func (j *ZNEJob) Process() {
	c := core.GetSystemComponents().Container
	for _, b := range j.branches {
		j.jobData.RewrittenTape = b
		err := c.Invoke(
			func(be core.Backend) error {
				return be.Send(j)
			})
		if err != nil {
			zap.L().Error(fmt.Sprintf("failed to send a job(%s) to the backend. Reason:%s",
				j.JobData().ID, err.Error()))
			j.JobData().Status = core.FAILED
			j.finished = true
			return
		}
		if j.JobData().Status == core.FAILED {
			zap.L().Error(fmt.Sprintf("backend reported FAILED for job(%s)", j.JobData().ID))
			j.finished = true
			return
		}
		j.countsList = append(j.countsList, j.jobData.Result.Counts)
	}
	zap.L().Debug(fmt.Sprintf("executed %d folded branches for job(%s)",
		len(j.branches), j.JobData().ID))
}

func (j *ZNEJob) PostProcess() {
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

func (j *ZNEJob) postProcessImpl() error {
	jd := j.JobData()
	if len(j.countsList) != len(j.branches) {
		return fmt.Errorf("got %d counts for %d noise scales", len(j.countsList), len(j.branches))
	}
	values := make([]float64, len(j.countsList))
	for i, counts := range j.countsList {
		e, err := counts.ZExpectation(nil)
		if err != nil {
			return fmt.Errorf("noise scale %v: %s", j.scales[i], err.Error())
		}
		values[i] = e
	}
	extrapolated, err := j.combiner(values)
	if err != nil {
		return err
	}

	// The intercept is a fixed linear form over the per-branch expectations,
	// so independent shot noise propagates through the squared weights. Each
	// branch reads +-1 eigenvalues, giving sample variance (1 - e^2) / N.
	weights, err := mitig.InterceptWeights(j.scales)
	if err != nil {
		return err
	}
	variance := 0.0
	for i, w := range weights {
		shots := j.countsList[i].TotalShots()
		if shots == 0 {
			continue
		}
		v := 1.0 - values[i]*values[i]
		if v < 0 {
			v = 0
		}
		variance += w * w * v / float64(shots)
	}
	jd.Result.Estimation = &core.Estimation{
		Exp_value: extrapolated,
		Stds:      math.Sqrt(variance),
	}
	zap.L().Debug(fmt.Sprintf("extrapolated exp_value:%f, stds:%f for job(%s)",
		jd.Result.Estimation.Exp_value, jd.Result.Estimation.Stds, jd.ID))
	return nil
}

func (j *ZNEJob) IsFinished() bool {
	return j.finished
}

func (j *ZNEJob) JobData() *core.JobData {
	return j.jobData
}

func (j *ZNEJob) JobType() string {
	return ZNE_JOB
}

func (j *ZNEJob) JobContext() *core.JobContext {
	return j.jobContext
}

func (j *ZNEJob) UpdateJobData(jd *core.JobData) {
	j.jobData = jd
}

func (j *ZNEJob) Clone() core.Job {
	cloned := &ZNEJob{
		jobData:    j.jobData.Clone(),
		jobContext: j.jobContext,
	}
	return cloned
}

// parseScaleFactors reads the noise scales out of the job's mitigation
// config, e.g. {"scale_factors": [1, 3, 5]}. A document without the key
// (or no document at all) selects the default ladder.
func parseScaleFactors(mitigationInfo string) ([]float64, error) {
	if mitigationInfo == "" {
		return DEFAULT_SCALE_FACTORS(), nil
	}
	props := zneProperties{}
	if err := json.Unmarshal([]byte(mitigationInfo), &props); err != nil {
		return nil, fmt.Errorf("mitigation config must be JSON: %s", err.Error())
	}
	if props.ScaleFactors == nil {
		return DEFAULT_SCALE_FACTORS(), nil
	}
	return props.ScaleFactors, nil
}
