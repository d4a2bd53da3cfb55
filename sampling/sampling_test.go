//go:build unit
// +build unit

package sampling

import (
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/qfold-team/qfold-engine/backend"
	"github.com/qfold-team/qfold-engine/core"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	m.Run()
}

func newSamplingJobForTest(t *testing.T, jd *core.JobData) *SamplingJob {
	t.Helper()
	jm, err := core.NewJobManager(&SamplingJob{})
	assert.Nil(t, err)
	jc, err := core.NewJobContext()
	assert.Nil(t, err)
	job, err := jm.NewJobFromJobData(jd, jc)
	assert.Nil(t, err)
	sj, ok := job.(*SamplingJob)
	assert.True(t, ok)
	return sj
}

func bellProgram() string {
	return heredoc.Doc(`
		OPENQASM 3;
		include "stdgates.inc";
		qubit[2] q;
		bit[2] c;
		h q[0];
		cx q[0], q[1];
		c[0] = measure q[0];
		c[1] = measure q[1];
	`)
}

func TestSamplingJobType(t *testing.T) {
	assert.Equal(t, "sampling", (&SamplingJob{}).JobType())
}

func TestSamplingJobRunThroughDummyBackend(t *testing.T) {
	d := &backend.Dummy{}
	s := core.SCWithBackend(d)
	defer s.TearDown()

	jd := core.NewJobData()
	jd.ID = "sampling-run"
	jd.JobType = SAMPLING_JOB
	jd.Shots = 1000
	jd.QASM = bellProgram()
	sj := newSamplingJobForTest(t, jd)

	sj.PreProcess()
	assert.NotEqual(t, core.FAILED, jd.Status)
	assert.False(t, sj.IsFinished())

	sj.Process()
	assert.Equal(t, core.SUCCEEDED, jd.Status)
	// no net rotation, so every shot reads even parity
	assert.Equal(t, core.Counts{"00": 1000}, jd.Result.Counts)
	assert.True(t, sj.IsFinished())
}

func TestSamplingJobPreProcessParsesBeforeRewrite(t *testing.T) {
	s := core.SCWithUnimplementedContainer()
	defer s.TearDown()

	jd := core.NewJobData()
	jd.ID = "sampling-rewrite"
	jd.JobType = SAMPLING_JOB
	jd.Shots = 1000
	jd.QASM = bellProgram()
	jd.Rewrite = core.DEFAULT_REWRITE_CONFIG()
	sj := newSamplingJobForTest(t, jd)

	sj.PreProcess()
	assert.NotEqual(t, core.FAILED, jd.Status)
	assert.NotNil(t, jd.Tape)
	assert.Len(t, jd.Tape.Ops, 2)
	assert.Len(t, jd.Tape.Measurements, 1)
	assert.Equal(t, []int{0, 1}, jd.Tape.Measurements[0].Wires)
}

func TestSamplingJobPreProcessBadProgram(t *testing.T) {
	s := core.SCWithUnimplementedContainer()
	defer s.TearDown()

	jd := core.NewJobData()
	jd.ID = "sampling-bad-program"
	jd.JobType = SAMPLING_JOB
	jd.Shots = 1000
	jd.QASM = "dummy_string"
	jd.Rewrite = core.DEFAULT_REWRITE_CONFIG()
	sj := newSamplingJobForTest(t, jd)

	sj.PreProcess()
	assert.True(t, sj.IsFinished())
	assert.Equal(t, core.FAILED, jd.Status)
	assert.Equal(t, `line 1: unknown gate "dummy_string"`, jd.Result.Message)
}

func TestSamplingJobPreProcessConflict(t *testing.T) {
	s := core.SCWithUnimplementedContainer()
	defer s.TearDown()

	jd := core.NewJobData()
	jd.ID = "sampling-conflict"
	jd.JobType = SAMPLING_JOB
	jd.Shots = 1000
	jd.QASM = bellProgram()
	sj := newSamplingJobForTest(t, jd)
	sj.PreProcess()
	assert.NotEqual(t, core.FAILED, jd.Status)

	jd2 := core.NewJobData()
	jd2.ID = "sampling-conflict"
	jd2.JobType = SAMPLING_JOB
	jd2.Shots = 1000
	jd2.QASM = bellProgram()
	sj2 := newSamplingJobForTest(t, jd2)
	sj2.PreProcess()
	assert.True(t, sj2.IsFinished())
	assert.Equal(t, core.FAILED, jd2.Status)
	assert.Equal(t, "jobID is already used", jd2.Result.Message)
}

func TestSamplingJobProcessFailure(t *testing.T) {
	d := &backend.Dummy{}
	s := core.SCWithBackend(d)
	defer s.TearDown()

	jd := core.NewJobData()
	jd.ID = "sampling-process-failure"
	jd.JobType = SAMPLING_JOB
	jd.Shots = 0 // rejected by the backend
	jd.QASM = bellProgram()
	sj := newSamplingJobForTest(t, jd)

	sj.PreProcess()
	sj.Process()
	assert.True(t, sj.IsFinished())
	assert.Equal(t, core.FAILED, jd.Status)
	assert.Contains(t, jd.Result.Message, "shots must be positive")
}

func TestSamplingJobPostProcessMitigation(t *testing.T) {
	s := core.SCWithUnimplementedContainer()
	defer s.TearDown()

	jd := core.NewJobData()
	jd.ID = "sampling-mitigation"
	jd.JobType = SAMPLING_JOB
	jd.Shots = 1000
	jd.QASM = bellProgram()
	jd.MitigationInfo = `{"readout": "pseudo_inverse"}`
	jd.Result.Counts = core.Counts{"0": 900, "1": 100}
	jd.Status = core.SUCCEEDED
	sj := newSamplingJobForTest(t, jd)

	sj.PreProcess()
	// SUCCEEDED is not enough: the counts still carry the readout error
	assert.False(t, sj.IsFinished())

	sj.PostProcess()
	assert.Equal(t, core.SUCCEEDED, jd.Status)
	// the corrected "1" weight goes negative and is clamped away
	assert.Equal(t, core.Counts{"0": 1000}, jd.Result.Counts)
	assert.True(t, sj.IsFinished())
}

func TestSamplingJobPostProcessSkipsWithoutMitigation(t *testing.T) {
	s := core.SCWithUnimplementedContainer()
	defer s.TearDown()

	jd := core.NewJobData()
	jd.ID = "sampling-no-mitigation"
	jd.JobType = SAMPLING_JOB
	jd.Shots = 1000
	jd.QASM = bellProgram()
	jd.Result.Counts = core.Counts{"00": 600, "10": 400}
	jd.Status = core.SUCCEEDED
	sj := newSamplingJobForTest(t, jd)

	sj.PreProcess()
	assert.True(t, sj.IsFinished())

	sj.PostProcess()
	assert.Equal(t, core.Counts{"00": 600, "10": 400}, jd.Result.Counts)
	assert.Equal(t, core.SUCCEEDED, jd.Status)
}

func TestCloneSamplingJob(t *testing.T) {
	s := core.SCWithUnimplementedContainer()
	defer s.TearDown()

	jd := core.NewJobData()
	jd.ID = "sampling-clone"
	jd.JobType = SAMPLING_JOB
	jd.Shots = 1000
	jd.QASM = bellProgram()
	sj := newSamplingJobForTest(t, jd)
	sj.PreProcess()

	cloned, ok := sj.Clone().(*SamplingJob)
	assert.True(t, ok)
	assert.Equal(t, sj.JobData().ID, cloned.JobData().ID)
	cloned.JobData().Status = core.FAILED
	assert.NotEqual(t, core.FAILED, sj.JobData().Status)
}
