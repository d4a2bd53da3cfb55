package sampling

import (
	"fmt"

	"github.com/qfold-team/qfold-engine/core"
	"github.com/qfold-team/qfold-engine/mitig"
	"github.com/qfold-team/qfold-engine/qasm"
	"go.uber.org/zap"
)

const SAMPLING_JOB = "sampling"

type SamplingJob struct {
	jobData        *core.JobData
	jobContext     *core.JobContext
	mitigationInfo *mitig.MitigationInfo
}

func (j *SamplingJob) New(jd *core.JobData, jc *core.JobContext) core.Job {
	return &SamplingJob{
		jobData:    jd,
		jobContext: jc,
	}
}

func (j *SamplingJob) PreProcess() {
	if err := j.preProcessImpl(); err != nil {
		zap.L().Error(fmt.Sprintf("failed to pre-process a job(%s). Reason:%s",
			j.JobData().ID, err.Error()))
		core.SetFailureWithError(j, err)
		return
	}
	j.mitigationInfo = mitig.NewMitigationInfoFromJobData(j.JobData())
	return
}

func (j *SamplingJob) preProcessImpl() (err error) {
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

	if jd.NeedsRewrite() {
		// the rewriter works on tapes, so a program-only job is parsed first
		if jd.Tape == nil {
			var t *core.Tape
			t, err = qasm.Parse(jd.QASM)
			if err != nil {
				zap.L().Error(fmt.Sprintf("failed to parse the program of a job(%s). Reason:%s",
					jd.ID, err.Error()))
				return
			}
			jd.Tape = t
		}
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

func (j *SamplingJob) Process() {
	c := core.GetSystemComponents().Container
	err := c.Invoke(
		func(b core.Backend) error {
			return b.Send(j)
		})
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to send a job(%s) to the backend. Reason:%s",
			j.JobData().ID, err.Error()))
		j.JobData().Status = core.FAILED
	}
	zap.L().Debug(fmt.Sprintf("finished to process a job(%s)/status:%s", j.JobData().ID, j.JobData().Status))
}

func (j *SamplingJob) PostProcess() {
	j.mitigationInfo.Mitigated = true
	if j.mitigationInfo.NeedToBeMitigated {
		zap.L().Debug(fmt.Sprintf("start to do pseudo inverse mitigation for a job(%s)", j.JobData().ID))
		mitig.PseudoInverseMitigation(j.JobData())
	} else {
		zap.L().Debug(fmt.Sprintf("skip pseudo inverse mitigation for a job(%s)", j.JobData().ID))
	}
	return
}

// A job that needs readout mitigation is not finished until the post
// phase has corrected the counts, even though the backend already set
// the status to SUCCEEDED.
func (j *SamplingJob) IsFinished() bool {
	if j.mitigationInfo != nil && j.mitigationInfo.NeedToBeMitigated {
		return j.mitigationInfo.Mitigated
	}
	return j.JobData().Status == core.SUCCEEDED || j.JobData().Status == core.FAILED
}

func (j *SamplingJob) JobData() *core.JobData {
	return j.jobData
}

func (j *SamplingJob) JobType() string {
	return SAMPLING_JOB
}

func (j *SamplingJob) JobContext() *core.JobContext {
	return j.jobContext
}

func (j *SamplingJob) UpdateJobData(jd *core.JobData) {
	j.jobData = jd
}

func (j *SamplingJob) Clone() core.Job {
	cloned := &SamplingJob{
		jobData:        j.jobData.Clone(),
		jobContext:     j.jobContext,
		mitigationInfo: j.mitigationInfo,
	}
	return cloned
}
