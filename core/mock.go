package core

import (
	"fmt"

	"go.uber.org/dig"
)

const MockMaxQubits int = 10
const MockMaxShots int = 10000
const validateErrorMessage string = "line 1: unknown gate \"dummy_string\""

type UnimplementedJob struct {
	jobData    *JobData
	jobContext *JobContext
}

func (j *UnimplementedJob) New(jd *JobData, jc *JobContext) Job {
	return &UnimplementedJob{
		jobData:    jd,
		jobContext: jc,
	}
}

func (j *UnimplementedJob) PreProcess() {
	return
}

func (j *UnimplementedJob) Process() {
	return
}

func (j *UnimplementedJob) PostProcess() {
	return
}

func (j *UnimplementedJob) IsFinished() bool {
	return j.JobData().Status == SUCCEEDED || j.JobData().Status == FAILED
}

func (j *UnimplementedJob) JobData() *JobData {
	return j.jobData
}

func (j *UnimplementedJob) JobType() string {
	return j.jobData.JobType
}

func (j *UnimplementedJob) JobContext() *JobContext {
	return j.jobContext
}

func (j *UnimplementedJob) Clone() Job {
	cloned := &UnimplementedJob{
		jobData:    j.jobData.Clone(),
		jobContext: j.jobContext,
	}
	return cloned
}

type UnimplementedBackend struct{}

func (u *UnimplementedBackend) Setup(*Conf) error {
	return nil
}

func (u *UnimplementedBackend) Send(Job) error {
	return nil
}

func (u *UnimplementedBackend) Validate(string) error {
	return nil
}

func (u *UnimplementedBackend) GetDeviceInfo() *DeviceInfo {
	return &DeviceInfo{
		MaxQubits:  MockMaxQubits,
		MaxShots:   MockMaxShots,
		DeviceName: "unimplementedBackend",
		DeviceInfoSpecJson: `
			{
			"device_id": "DummyDevice",
		    "n_qubits": 4,
		    "name": "1",
			"qubits":
			[{
			"id": 0, "qubit_lifetime": {"t1": 36.9, "t2": 23.8}, "fidelity": 0.12, "meas_error": {"prob_meas0_prep1": 0.1903, "prob_meas1_prep0": 0.2789}
			},
			{
			"id": 1, "qubit_lifetime": {"t1": 35.85, "t2": 24.8}, "fidelity": 0.24, "meas_error": {"prob_meas0_prep1": 0.0947, "prob_meas1_prep0": 0.1556}
			},
			{
			"id": 2, "qubit_lifetime": {"t1": 35.85, "t2": 24.8}, "fidelity": 0.24, "meas_error": {"prob_meas0_prep1": 0.0947, "prob_meas1_prep0": 0.1556}
			},
			{
			"id": 3, "qubit_lifetime": {"t1": 35.85, "t2": 24.8}, "fidelity": 0.24, "meas_error": {"prob_meas0_prep1": 0.0947, "prob_meas1_prep0": 0.1556}
			}]
			}`,
	}
}

type validateErrorBackendForTest struct {
	UnimplementedBackend
}

func (validateErrorBackendForTest) Validate(string) error {
	return fmt.Errorf(validateErrorMessage)
}

type successBackendForTest struct {
	UnimplementedBackend
}

func (successBackendForTest) Send(j Job) error {
	// TODO: fix this SRP violation
	j.JobData().Status = SUCCEEDED
	return nil
}

type unimplementedDB struct {
	innerJobIDSet map[string]struct{}
}

func (u *unimplementedDB) Setup(DBChan, *Conf) error {
	u.innerJobIDSet = make(map[string]struct{})
	return nil
}
func (u *unimplementedDB) Insert(Job) error { return nil }
func (u *unimplementedDB) Get(JobID string) (Job, error) {
	return &NormalJob{}, nil
}
func (u *unimplementedDB) Update(Job) error    { return nil }
func (u *unimplementedDB) Delete(string) error { return nil }
func (u *unimplementedDB) AddToInnerJobIDSet(jobID string) {
	u.innerJobIDSet[jobID] = struct{}{}
}
func (u *unimplementedDB) RemoveFromInnerJobIDSet(jobID string) {
	delete(u.innerJobIDSet, jobID)
}
func (u *unimplementedDB) ExistInInnerJobIDSet(jobID string) bool {
	_, ok := u.innerJobIDSet[jobID]
	return ok
}

type successDBForTest struct {
	unimplementedDB
}

func (successDBForTest) Get(jobID string) (Job, error) {
	return &NormalJob{
		jobData: &JobData{
			ID:     jobID,
			Status: RUNNING,
		},
	}, nil
}

type notFindDBForTest struct {
	unimplementedDB
}

func (notFindDBForTest) Get(jobID string) (Job, error) {
	return &NormalJob{}, fmt.Errorf("failed to find %s", jobID)
}

type successRewriterForTest struct{}

func (successRewriterForTest) IsAcceptableRewriteLib(lib string) bool {
	return lib == "pipeline"
}

func (successRewriterForTest) Setup(*Conf) error { return nil }
func (successRewriterForTest) Rewrite(Job) error { return nil }
func (successRewriterForTest) TearDown()         {}

type unimplementedScheduler struct{}

func (u *unimplementedScheduler) Setup(*Conf) error           { return nil }
func (u *unimplementedScheduler) Start() error                { return nil }
func (u *unimplementedScheduler) HandleJob(_ Job)             { return }
func (u *unimplementedScheduler) GetCurrentQueueSize() int    { return 0 }
func (u *unimplementedScheduler) IsOverRefillThreshold() bool { return false }

type unimplementedDifferentiator struct{}

func (u *unimplementedDifferentiator) Setup(*Conf) error { return nil }
func (u *unimplementedDifferentiator) Gradient(f Objective, params []float64, argnums []int) ([]float64, error) {
	return make([]float64, len(argnums)), nil
}
func (u *unimplementedDifferentiator) TearDown() {}

func SCWithUnimplementedContainer() *SystemComponents {
	c := dig.New()
	c.Provide(func() Backend { return &successBackendForTest{} })
	c.Provide(func() Rewriter { return &successRewriterForTest{} })
	c.Provide(func() DBManager {
		db := &successDBForTest{}
		db.Setup(nil, &Conf{})
		return db
	})
	c.Provide(func() Scheduler { return &unimplementedScheduler{} })
	c.Provide(func() Differentiator { return &unimplementedDifferentiator{} })
	s := NewSystemComponents(c)
	s.Setup(&Conf{})
	return s
}

func SCWithValidateErrorContainer() *SystemComponents {
	c := dig.New()
	c.Provide(func() Backend { return &validateErrorBackendForTest{} })
	c.Provide(func() Rewriter { return &successRewriterForTest{} })
	c.Provide(func() DBManager {
		db := &successDBForTest{}
		db.Setup(nil, &Conf{})
		return db
	})
	c.Provide(func() Scheduler { return &unimplementedScheduler{} })
	c.Provide(func() Differentiator { return &unimplementedDifferentiator{} })
	s := NewSystemComponents(c)
	s.Setup(&Conf{})
	return s
}

func SCWithDBContainer() *SystemComponents {
	c := dig.New()
	c.Provide(func() Backend { return &successBackendForTest{} })
	c.Provide(func() DBManager { return &MemoryDB{} })
	c.Provide(func() Rewriter { return &successRewriterForTest{} })
	c.Provide(func() Scheduler { return &unimplementedScheduler{} })
	c.Provide(func() Differentiator { return &unimplementedDifferentiator{} })
	s := NewSystemComponents(c)
	s.Setup(&Conf{})
	return s
}

func SCWithScheduler(sc Scheduler) *SystemComponents {
	c := dig.New()
	c.Provide(func() Backend { return &successBackendForTest{} })
	c.Provide(func() DBManager { return &MemoryDB{} })
	c.Provide(func() Rewriter { return &successRewriterForTest{} })
	c.Provide(func() Scheduler { return sc })
	c.Provide(func() Differentiator { return &unimplementedDifferentiator{} })
	s := NewSystemComponents(c)
	s.Setup(&Conf{QueueMaxSize: 1000})
	return s
}

func SCWithBackend(b Backend) *SystemComponents {
	c := dig.New()
	c.Provide(func() Backend { return b })
	c.Provide(func() DBManager { return &MemoryDB{} })
	c.Provide(func() Rewriter { return &successRewriterForTest{} })
	c.Provide(func() Scheduler { return &unimplementedScheduler{} })
	c.Provide(func() Differentiator { return &unimplementedDifferentiator{} })
	s := NewSystemComponents(c)
	s.Setup(&Conf{})
	return s
}

func SCWithDifferentiator(b Backend, d Differentiator) *SystemComponents {
	c := dig.New()
	c.Provide(func() Backend { return b })
	c.Provide(func() DBManager { return &MemoryDB{} })
	c.Provide(func() Rewriter { return &successRewriterForTest{} })
	c.Provide(func() Scheduler { return &unimplementedScheduler{} })
	c.Provide(func() Differentiator { return d })
	s := NewSystemComponents(c)
	s.Setup(&Conf{})
	return s
}
