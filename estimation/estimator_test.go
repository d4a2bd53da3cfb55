//go:build unit
// +build unit

package estimation

import (
	"math"
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/qfold-team/qfold-engine/backend"
	"github.com/qfold-team/qfold-engine/core"
	"github.com/stretchr/testify/assert"
)

func newEstimationJobForTest(t *testing.T, jd *core.JobData) *EstimationJob {
	t.Helper()
	jm, err := core.NewJobManager(&EstimationJob{})
	assert.Nil(t, err)
	jc, err := core.NewJobContext()
	assert.Nil(t, err)
	job, err := jm.NewJobFromJobData(jd, jc)
	assert.Nil(t, err)
	ej, ok := job.(*EstimationJob)
	assert.True(t, ok)
	return ej
}

func TestEstimationJobType(t *testing.T) {
	assert.Equal(t, "estimation_job", (&EstimationJob{}).JobType())
}

func TestParseOperators(t *testing.T) {
	ops, err := parseOperators(`[["X 0 X 1", 1.5], ["z 2", -0.5], ["I 0", 2.0]]`)
	assert.NoError(t, err)
	assert.Len(t, ops, 3)
	assert.Equal(t, "X 0 X 1", ops[0].pauli)
	assert.Equal(t, 1.5, ops[0].coeff)
	assert.Equal(t, []pauliTerm{{basis: 'X', wire: 0}, {basis: 'X', wire: 1}}, ops[0].terms)
	assert.Equal(t, []pauliTerm{{basis: 'Z', wire: 2}}, ops[1].terms)
	assert.Equal(t, -0.5, ops[1].coeff)
	assert.Empty(t, ops[2].terms)

	ops, err = parseOperators(`[["", 1.0]]`)
	assert.NoError(t, err)
	assert.Empty(t, ops[0].terms)
}

func TestParseOperatorsErrors(t *testing.T) {
	tests := []struct {
		name    string
		info    string
		wantMsg string
	}{
		{
			name:    "not json",
			info:    "hoge",
			wantMsg: "operators must be a JSON list of [pauli, coeff] pairs",
		},
		{
			name:    "empty list",
			info:    `[]`,
			wantMsg: "no operators in the job info",
		},
		{
			name:    "not a pair",
			info:    `[["X 0"]]`,
			wantMsg: "operator 0 must be a [pauli, coeff] pair",
		},
		{
			name:    "coeff is not a number",
			info:    `[["X 0", "a"]]`,
			wantMsg: "operator 0 must be a [pauli, coeff] pair",
		},
		{
			name:    "unknown axis",
			info:    `[["Q 0", 1.0]]`,
			wantMsg: `operator 0: unknown pauli axis "Q" in "Q 0"`,
		},
		{
			name:    "wire is not a number",
			info:    `[["X a", 1.0]]`,
			wantMsg: `operator 0: bad wire index "a" in pauli "X a"`,
		},
		{
			name:    "negative wire",
			info:    `[["X -1", 1.0]]`,
			wantMsg: `operator 0: bad wire index "-1" in pauli "X -1"`,
		},
		{
			name:    "dangling axis",
			info:    `[["X 0 Y", 1.0]]`,
			wantMsg: `operator 0: pauli "X 0 Y" must be a list of axis/wire pairs`,
		},
		{
			name:    "repeated wire",
			info:    `[["X 0 Y 0", 1.0]]`,
			wantMsg: `operator 0: wire 0 appears twice in pauli "X 0 Y 0"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseOperators(tt.info)
			assert.ErrorContains(t, err, tt.wantMsg)
		})
	}
}

func TestGroupOperators(t *testing.T) {
	mustParse := func(info string) []operator {
		ops, err := parseOperators(info)
		assert.NoError(t, err)
		return ops
	}

	// conflicting bases on wire 0 split the operators
	groups := groupOperators(mustParse(`[["X 0 X 1", 1.5], ["Y 0 Z 1", 1.2]]`), true)
	assert.Len(t, groups, 2)
	assert.Equal(t, []int{0, 1}, groups[0].wires)
	assert.Equal(t, map[int]byte{0: 'X', 1: 'X'}, groups[0].bases)
	assert.Equal(t, []int{0}, groups[0].members)
	assert.Equal(t, map[int]byte{0: 'Y', 1: 'Z'}, groups[1].bases)
	assert.Equal(t, []int{1}, groups[1].members)

	// compatible operators share one group
	groups = groupOperators(mustParse(`[["Z 0", 1.0], ["Z 1", 1.0], ["Z 0 Z 1", 1.0], ["X 2", 1.0]]`), true)
	assert.Len(t, groups, 1)
	assert.Equal(t, []int{0, 1, 2}, groups[0].wires)
	assert.Equal(t, []int{0, 1, 2, 3}, groups[0].members)

	// identities need no execution
	groups = groupOperators(mustParse(`[["I 0", 2.0]]`), true)
	assert.Empty(t, groups)

	// grouping disabled
	groups = groupOperators(mustParse(`[["Z 0", 1.0], ["Z 1", 1.0]]`), false)
	assert.Len(t, groups, 2)
}

func TestBuildGroupTape(t *testing.T) {
	base, err := core.NewTape(2,
		[]core.Operation{
			core.NewOperation("h", []int{0}),
			core.NewOperation("cx", []int{0, 1}),
		},
		nil)
	assert.NoError(t, err)

	ops, err := parseOperators(`[["X 0 Z 1", 1.0]]`)
	assert.NoError(t, err)
	groups := groupOperators(ops, true)
	assert.Len(t, groups, 1)

	tape, err := buildGroupTape(base, groups[0])
	assert.NoError(t, err)
	assert.Equal(t, 2, tape.Wires)
	assert.Len(t, tape.Ops, 3)
	assert.True(t, tape.Ops[2].Equal(core.NewOperation("h", []int{0})))
	assert.Len(t, tape.Measurements, 1)
	assert.True(t, tape.Measurements[0].Equal(core.NewMeasurement(core.Sample, []int{0, 1})))
	// the base tape is left untouched
	assert.Len(t, base.Ops, 2)
	assert.Empty(t, base.Measurements)

	// the Y basis lowers with S-dagger then H
	ops, err = parseOperators(`[["Y 1", 1.0]]`)
	assert.NoError(t, err)
	groups = groupOperators(ops, true)
	tape, err = buildGroupTape(base, groups[0])
	assert.NoError(t, err)
	assert.Len(t, tape.Ops, 4)
	assert.True(t, tape.Ops[2].Equal(core.NewOperation("sdg", []int{1})))
	assert.True(t, tape.Ops[3].Equal(core.NewOperation("h", []int{1})))
	assert.True(t, tape.Measurements[0].Equal(core.NewMeasurement(core.Sample, []int{1})))

	// operator wires must exist on the tape
	ops, err = parseOperators(`[["Z 5", 1.0]]`)
	assert.NoError(t, err)
	groups = groupOperators(ops, true)
	_, err = buildGroupTape(base, groups[0])
	assert.ErrorContains(t, err, "wire 5 is out of range [0, 2)")
}

func TestEstimationJobPreProcess(t *testing.T) {
	s := core.SCWithUnimplementedContainer()
	defer s.TearDown()

	jd := core.NewJobData()
	jd.ID = "estimation-pre"
	jd.JobType = ESTIMATION_JOB
	jd.Shots = 1000
	jd.QASM = heredoc.Doc(`
		OPENQASM 3;
		qubit[2] q;

		h q[0];
		cx q[0], q[1];`)
	jd.Info = `[["X 0 X 1", 1.5], ["Y 0 Z 1", 1.2]]`

	ej := newEstimationJobForTest(t, jd)
	ej.PreProcess()
	assert.False(t, ej.IsFinished())
	assert.NotEqual(t, core.FAILED, jd.Status)
	assert.NotNil(t, jd.Tape)
	assert.Len(t, ej.operators, 2)
	assert.Len(t, ej.groups, 2)
	assert.Equal(t, []int{0, 1}, ej.groups[0].wires)

	// both group tapes start from the circuit and append their basis changes
	assert.Len(t, ej.groups[0].tape.Ops, 4)
	assert.True(t, ej.groups[0].tape.Ops[2].Equal(core.NewOperation("h", []int{0})))
	assert.True(t, ej.groups[0].tape.Ops[3].Equal(core.NewOperation("h", []int{1})))
	assert.Len(t, ej.groups[1].tape.Ops, 4)
	assert.True(t, ej.groups[1].tape.Ops[2].Equal(core.NewOperation("sdg", []int{0})))
	assert.True(t, ej.groups[1].tape.Ops[3].Equal(core.NewOperation("h", []int{0})))
}

func TestEstimationJobPreProcessConflict(t *testing.T) {
	s := core.SCWithUnimplementedContainer()
	defer s.TearDown()

	jd := core.NewJobData()
	jd.ID = "estimation-conflict"
	jd.JobType = ESTIMATION_JOB
	jd.Shots = 1000
	jd.QASM = "OPENQASM 3;\nqubit[1] q;\nx q[0];"
	jd.Info = `[["Z 0", 1.0]]`

	ej := newEstimationJobForTest(t, jd)
	ej.PreProcess()
	assert.False(t, ej.IsFinished())

	jd2 := core.NewJobData()
	jd2.ID = "estimation-conflict"
	jd2.JobType = ESTIMATION_JOB
	jd2.Shots = 1000
	jd2.QASM = jd.QASM
	jd2.Info = jd.Info

	ej2 := newEstimationJobForTest(t, jd2)
	ej2.PreProcess()
	assert.True(t, ej2.IsFinished())
	assert.Equal(t, core.FAILED, jd2.Status)
	assert.Equal(t, "jobID is already used", jd2.Result.Message)
}

func TestEstimationJobPreProcessBadProgram(t *testing.T) {
	s := core.SCWithUnimplementedContainer()
	defer s.TearDown()

	jd := core.NewJobData()
	jd.ID = "estimation-bad-program"
	jd.JobType = ESTIMATION_JOB
	jd.Shots = 1000
	jd.QASM = "dummy_string"
	jd.Info = `[["Z 0", 1.0]]`

	ej := newEstimationJobForTest(t, jd)
	ej.PreProcess()
	assert.True(t, ej.IsFinished())
	assert.Equal(t, core.FAILED, jd.Status)
	assert.Equal(t, `line 1: unknown gate "dummy_string"`, jd.Result.Message)
}

func TestEstimationJobPreProcessBadOperators(t *testing.T) {
	s := core.SCWithUnimplementedContainer()
	defer s.TearDown()

	jd := core.NewJobData()
	jd.ID = "estimation-bad-operators"
	jd.JobType = ESTIMATION_JOB
	jd.Shots = 1000
	jd.QASM = "OPENQASM 3;\nqubit[1] q;\nx q[0];"
	jd.Info = `[["X 0"]]`

	ej := newEstimationJobForTest(t, jd)
	ej.PreProcess()
	assert.True(t, ej.IsFinished())
	assert.Equal(t, core.FAILED, jd.Status)
	assert.Equal(t, "operator 0 must be a [pauli, coeff] pair", jd.Result.Message)
}

func TestEstimationJobPostProcess(t *testing.T) {
	s := core.SCWithUnimplementedContainer()
	defer s.TearDown()

	jd := core.NewJobData()
	jd.ID = "estimation-post"
	jd.JobType = ESTIMATION_JOB
	jd.Shots = 1000
	jd.QASM = heredoc.Doc(`
		OPENQASM 3;
		qubit[2] q;

		h q[0];
		cx q[0], q[1];`)
	jd.Info = `[["X 0 X 1", 1.5], ["Y 0 Z 1", 1.2]]`

	ej := newEstimationJobForTest(t, jd)
	ej.PreProcess()
	assert.False(t, ej.IsFinished())

	ej.countsList = []core.Counts{
		{"00": 425, "01": 75, "10": 85, "11": 415},
		{"00": 500, "11": 500},
	}
	ej.PostProcess()
	assert.True(t, ej.IsFinished())
	assert.Equal(t, core.SUCCEEDED, jd.Status)
	assert.NotNil(t, jd.Result.Estimation)
	// 1.5 * 0.68 + 1.2 * 1.0
	assert.InDelta(t, 2.22, jd.Result.Estimation.Exp_value, 1e-9)
	// sqrt(1.5^2 * (1 - 0.68^2) / 1000)
	assert.InDelta(t, 0.0347793, jd.Result.Estimation.Stds, 1e-6)
}

func TestEstimationJobPostProcessWithoutCounts(t *testing.T) {
	s := core.SCWithUnimplementedContainer()
	defer s.TearDown()

	jd := core.NewJobData()
	jd.ID = "estimation-no-counts"
	jd.JobType = ESTIMATION_JOB
	jd.Shots = 1000
	jd.QASM = "OPENQASM 3;\nqubit[1] q;\nx q[0];"
	jd.Info = `[["Z 0", 1.0]]`

	ej := newEstimationJobForTest(t, jd)
	ej.PreProcess()
	ej.PostProcess()
	assert.True(t, ej.IsFinished())
	assert.Equal(t, core.FAILED, jd.Status)
	assert.Equal(t, "got 0 counts for 1 measurement groups", jd.Result.Message)
}

func TestEstimationJobPostProcessMitigated(t *testing.T) {
	s := core.SCWithUnimplementedContainer()
	defer s.TearDown()

	jd := core.NewJobData()
	jd.ID = "estimation-mitigated"
	jd.JobType = ESTIMATION_JOB
	jd.Shots = 1000
	jd.QASM = "OPENQASM 3;\nqubit[1] q;\nx q[0];"
	jd.Info = `[["Z 0", 1.0]]`
	jd.MitigationInfo = `{"readout": "pseudo_inverse"}`

	ej := newEstimationJobForTest(t, jd)
	ej.PreProcess()
	assert.False(t, ej.IsFinished())

	// the mock device reads qubit 0 with p01=0.2789 and p10=0.1903; the
	// confusion-matrix inverse of 900/100 lands on all-"0" counts
	ej.countsList = []core.Counts{{"0": 900, "1": 100}}
	ej.PostProcess()
	assert.True(t, ej.IsFinished())
	assert.Equal(t, core.SUCCEEDED, jd.Status)
	assert.InDelta(t, 1.0, jd.Result.Estimation.Exp_value, 1e-12)
	assert.InDelta(t, 0.0, jd.Result.Estimation.Stds, 1e-12)
}

func TestEstimationJobRunRotation(t *testing.T) {
	d := &backend.Dummy{}
	s := core.SCWithBackend(d)
	defer s.TearDown()

	jd := core.NewJobData()
	jd.ID = "estimation-rotation"
	jd.JobType = ESTIMATION_JOB
	jd.Shots = 1000
	jd.QASM = heredoc.Doc(`
		OPENQASM 3;
		qubit[1] q;

		rx(1.0471975511965976) q[0];`)
	jd.Info = `[["Z 0", 2.0]]`

	ej := newEstimationJobForTest(t, jd)
	ej.PreProcess()
	assert.False(t, ej.IsFinished())
	ej.Process()
	assert.False(t, ej.IsFinished())
	assert.Len(t, ej.countsList, 1)
	assert.Equal(t, core.Counts{"0": 750, "1": 250}, ej.countsList[0])

	ej.PostProcess()
	assert.True(t, ej.IsFinished())
	assert.Equal(t, core.SUCCEEDED, jd.Status)
	// cos(pi/3) = 0.5, scaled by the coefficient 2.0
	assert.InDelta(t, 1.0, jd.Result.Estimation.Exp_value, 1e-12)
	assert.InDelta(t, math.Sqrt(0.003), jd.Result.Estimation.Stds, 1e-12)
}

func TestEstimationJobRunGrouped(t *testing.T) {
	d := &backend.Dummy{}
	s := core.SCWithBackend(d)
	defer s.TearDown()

	jd := core.NewJobData()
	jd.ID = "estimation-grouped"
	jd.JobType = ESTIMATION_JOB
	jd.Shots = 1000
	jd.QASM = heredoc.Doc(`
		OPENQASM 3;
		qubit[2] q;

		h q[0];`)
	jd.Info = `[["X 0", 1.0], ["Z 1", 0.5], ["I 0", 0.25]]`

	ej := newEstimationJobForTest(t, jd)
	ej.PreProcess()
	assert.Len(t, ej.groups, 1)
	ej.Process()
	ej.PostProcess()
	assert.Equal(t, core.SUCCEEDED, jd.Status)
	// wires without net rotation read even parity on the dummy backend,
	// and the identity contributes its coefficient exactly
	assert.InDelta(t, 1.75, jd.Result.Estimation.Exp_value, 1e-12)
	assert.InDelta(t, 0.0, jd.Result.Estimation.Stds, 1e-12)
}

func TestEstimationJobGroupingDisabled(t *testing.T) {
	core.ResetSetting()
	core.RegisterSetting(ESTIMATION_SETTING_KEY, map[string]interface{}{"group_terms": false})
	defer core.ResetSetting()

	s := core.SCWithUnimplementedContainer()
	defer s.TearDown()

	jd := core.NewJobData()
	jd.ID = "estimation-grouping-disabled"
	jd.JobType = ESTIMATION_JOB
	jd.Shots = 1000
	jd.QASM = "OPENQASM 3;\nqubit[2] q;\nh q[0];"
	jd.Info = `[["X 0", 1.0], ["Z 1", 0.5]]`

	ej := newEstimationJobForTest(t, jd)
	assert.False(t, ej.setting.GroupTerms)
	ej.PreProcess()
	assert.Len(t, ej.groups, 2)
}

func TestEstimationJobProcessFailure(t *testing.T) {
	d := &backend.Dummy{}
	s := core.SCWithBackend(d)
	defer s.TearDown()

	jd := core.NewJobData()
	jd.ID = "estimation-process-failure"
	jd.JobType = ESTIMATION_JOB
	jd.Shots = 0 // rejected by the backend
	jd.QASM = "OPENQASM 3;\nqubit[1] q;\nx q[0];"
	jd.Info = `[["Z 0", 1.0]]`

	ej := newEstimationJobForTest(t, jd)
	ej.PreProcess()
	assert.False(t, ej.IsFinished())
	ej.Process()
	assert.True(t, ej.IsFinished())
	assert.Equal(t, core.FAILED, jd.Status)
	assert.Contains(t, jd.Result.Message, "shots must be positive")
}

func TestCloneEstimationJob(t *testing.T) {
	s := core.SCWithUnimplementedContainer()
	defer s.TearDown()

	jd := core.NewJobData()
	jd.ID = "estimation-clone"
	jd.JobType = ESTIMATION_JOB
	jd.Shots = 1000
	jd.QASM = "OPENQASM 3;\nqubit[1] q;\nx q[0];"
	jd.Info = `[["Z 0", 1.0]]`

	ej := newEstimationJobForTest(t, jd)
	cloned := ej.Clone()
	assert.False(t, cloned.(*EstimationJob) == ej)
	assert.False(t, cloned.JobData() == ej.JobData())
	assert.Equal(t, ej.JobData().ID, cloned.JobData().ID)
	assert.Equal(t, ESTIMATION_JOB, cloned.JobType())
	assert.Equal(t, ej.setting, cloned.(*EstimationJob).setting)
}
