//go:build unit
// +build unit

package core

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/qfold-team/qfold-engine/common"
	"github.com/stretchr/testify/assert"
)

func TestJobManager(t *testing.T) {
	s := SCWithUnimplementedContainer()
	defer s.TearDown()
	jm, err := NewJobManager(
		&NormalJob{},
	)
	assert.Nil(t, err)
	assert.NotNil(t, jm)
	as := jm.AcceptableJobTypes()
	assert.Equal(t, len(as), 1)
	assert.Equal(t, as[0], "normal")

	err = jm.RegisterJob(&NormalJob{})
	assert.EqualError(t, err, "job:normal is already registered")

	as = jm.AcceptableJobTypes()
	assert.Equal(t, len(as), 1)
	assert.Equal(t, as[0], "normal")

	jc, err := NewJobContext()
	assert.Nil(t, err)

	job, err := jm.NewJobFromJobData(
		&JobData{ID: "test"},
		jc,
	)

	assert.Nil(t, err)
	assert.Equal(t, job.JobData().ID, "test")
}

func TestNewJob(t *testing.T) {
	s := SCWithDBContainer()
	defer s.TearDown()

	testQASM, err := common.GetAsset("bell_pair.qasm")
	assert.Nil(t, err)

	testTape, err := NewTape(2,
		[]Operation{
			NewOperation("h", []int{0}),
			NewOperation("cx", []int{0, 1}),
		},
		[]Measurement{NewMeasurement(Sample, []int{0, 1})},
	)
	assert.Nil(t, err)

	jm, err := NewJobManager()
	assert.Nil(t, err)
	assert.NotNil(t, jm)
	jm.RegisterJob(&NormalJob{})

	param := JobParam{
		JobID:   uuid.NewString(),
		QASM:    testQASM,
		Shots:   -1,
		Rewrite: DEFAULT_REWRITE_CONFIG(),
	}
	tests := []struct {
		name        string
		param       *JobParam
		wantError   string
		wantJobData *JobData
	}{
		{
			name: "0 shots",
			param: &JobParam{
				JobID:   uuid.NewString(),
				QASM:    testQASM,
				Shots:   0,
				Rewrite: DEFAULT_REWRITE_CONFIG(),
			},
			wantError: "shots(0) must be greater than 0",
		},
		{
			name:      "negative shots",
			param:     &param,
			wantError: "shots(-1) must be greater than 0",
		},
		{
			name: "over max shots",
			param: &JobParam{
				JobID:   uuid.NewString(),
				QASM:    testQASM,
				Shots:   MockMaxShots + 1,
				Rewrite: DEFAULT_REWRITE_CONFIG(),
			},
			wantError: fmt.Sprintf(
				"shots(%d) is over the limit(%d)",
				MockMaxShots+1, MockMaxShots),
		},
		{
			name: "no program nor tape",
			param: &JobParam{
				JobID:   uuid.NewString(),
				Shots:   1000,
				Rewrite: DEFAULT_REWRITE_CONFIG(),
			},
			wantError: "job has neither a program nor a tape",
		},
		{
			name: "normal with max shots",
			param: &JobParam{
				JobID:   uuid.NewString(),
				QASM:    testQASM,
				Shots:   MockMaxShots,
				Rewrite: DEFAULT_REWRITE_CONFIG(),
			},
			wantError: "",
			wantJobData: &JobData{
				JobType: NORMAL_JOB,
				Rewrite: DEFAULT_REWRITE_CONFIG(),
				QASM:    testQASM,
				Shots:   MockMaxShots,
			},
		},
		{
			name: "normal with 1 shot",
			param: &JobParam{
				JobID:   uuid.NewString(),
				QASM:    testQASM,
				Shots:   1,
				Rewrite: DEFAULT_REWRITE_CONFIG(),
			},
			wantError: "",
			wantJobData: &JobData{
				JobType: NORMAL_JOB,
				Rewrite: DEFAULT_REWRITE_CONFIG(),
				QASM:    testQASM,
				Shots:   1,
			},
		},
		{
			name: "tape without program text",
			param: &JobParam{
				JobID: uuid.NewString(),
				Tape:  testTape,
				Shots: 1000,
			},
			wantError: "",
			wantJobData: &JobData{
				JobType: NORMAL_JOB,
				Tape:    testTape,
				Shots:   1000,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jc, err := NewJobContext()
			assert.Nil(t, err)
			job, err := jm.NewJobWithValidation(tt.param, jc)
			if tt.wantError == "" {
				assert.Nil(t, err)
				tt.wantJobData.ID = tt.param.JobID
				tt.wantJobData.Result = NewResult()
				tt.wantJobData.Created = job.JobData().Created // ignore time
				assert.Equal(t, job.JobData(), tt.wantJobData)
			} else {
				assert.Equal(t, err.Error(), tt.wantError)
			}
		})
	}
}

func TestNewJobWithUnacceptableRewriteLib(t *testing.T) {
	s := SCWithDBContainer()
	defer s.TearDown()

	jm, err := NewJobManager(&NormalJob{})
	assert.Nil(t, err)

	lib := "unknown_lib"
	p := &JobParam{
		JobID:   uuid.NewString(),
		QASM:    "dummy_qasm",
		Shots:   1000,
		Rewrite: &RewriteConfig{RewriteLib: &lib},
	}
	jc, err := NewJobContext()
	assert.Nil(t, err)
	job, err := jm.NewJobWithValidation(p, jc)
	assert.Nil(t, job)
	assert.EqualError(t, err, "rewrite lib unknown_lib is not acceptable")
}

func TestCloneNormalJob(t *testing.T) {
	s := SCWithUnimplementedContainer()
	defer s.TearDown()
	jm, err := NewJobManager(&NormalJob{})
	assert.Nil(t, err)

	jd := &JobData{
		ID:    "test",
		QASM:  "test_qasm",
		Shots: 1000,
	}
	jc, err := NewJobContext()
	assert.Nil(t, err)
	org, err := jm.NewJobFromJobData(jd, jc)
	assert.Nil(t, err)
	cloned := org.Clone()
	assert.Nil(t, err)
	assert.False(t, cloned == org)
	assert.False(t, cloned.JobData() == org.JobData(),
		"cloned.JobData()=%p, nj.JobData()=%p", cloned.JobData(), org.JobData())
	assert.Equal(t, cloned.JobData().ID, org.JobData().ID)
	assert.Equal(t, cloned.JobData().QASM, org.JobData().QASM)
	assert.Equal(t, cloned.JobData().Shots, org.JobData().Shots)

	org.JobData().ID = "test2"
	assert.NotEqual(t, cloned.JobData().ID, org.JobData().ID)

	org.JobData().Status = RUNNING
	cloned.JobData().Status = SUCCEEDED
	assert.NotEqual(t, cloned.JobData().Status, org.JobData().Status)
}
