package core

import (
	"encoding/json"
	"fmt"

	"github.com/go-faster/jx"

	"go.uber.org/dig"
	"go.uber.org/zap"
)

var (
	systemComponents         *SystemComponents
	defaultRewriteConfigJson map[string]jx.Raw
)

func init() {
	drc := DEFAULT_REWRITE_CONFIG()
	drcj := make(map[string]jx.Raw)
	drcj["rewrite_lib"] = jx.Raw(*drc.RewriteLib)
	drcj["rewrite_options"] = jx.Raw(drc.RewriteOptions)
	defaultRewriteConfigJson = drcj
}

func DefaultRewriteConfigJson() map[string]jx.Raw {
	return defaultRewriteConfigJson
}

type DBChan chan Job

type Channels struct {
	DBChan
	// when more channel is needed, add here
	// would use map[string]chan Job
}

func NewChannels() *Channels {
	return &Channels{
		DBChan: make(DBChan),
	}
}

func (c *Channels) Close() {
	close(c.DBChan)
}

func (c *Channels) Check() error {
	if c.DBChan == nil {
		return fmt.Errorf("DBChan is nil")
	}
	return nil
}

type DeviceInfo struct {
	DeviceName         string       `json:"device_name"`
	ProviderName       string       `json:"provider_name"`
	Type               string       `json:"type"`
	Status             DeviceStatus `json:"status"`
	MaxQubits          int          `json:"max_qubits"`
	MaxShots           int          `json:"max_shots"`
	DeviceInfoSpecJson string       `json:"device_info"` // memo: the same as "DeviceInfo"
	CalibratedAt       string       `json:"calibrated_at"`
}

type DeviceInfoSpec struct {
	DeviceID string  `json:"device_id"`
	Qubits   []Qubit `json:"qubits"`
}

type Qubit struct {
	ID         int       `json:"id"`
	PhysicalID int       `json:"physical_id"`
	Position   Position  `json:"position"`
	Fidelity   float64   `json:"fidelity"`
	MeasError  MeasError `json:"meas_error"`
	QubitLife  QubitLife `json:"qubit_lifetime"`
	GateDur    GateDur   `json:"gate_duration"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type MeasError struct {
	ProbMeas1Prep0         float64 `json:"prob_meas1_prep0"`
	ProbMeas0Prep1         float64 `json:"prob_meas0_prep1"`
	ReadoutAssignmentError float64 `json:"readout_assignment_error"`
}

type QubitLife struct {
	T1 float64 `json:"t1"`
	T2 float64 `json:"t2"`
}

type GateDur struct {
	RZ float64 `json:"rz"`
	SX float64 `json:"sx"`
	X  float64 `json:"x"`
}

type DeviceStatus int

const (
	Available DeviceStatus = iota
	Unavailable
	QueuePaused
)

func (ds DeviceStatus) String() string {
	switch ds {
	case Available:
		return "Available"
	case Unavailable:
		return "Unavailable"
	case QueuePaused:
		return "QueuePaused"
	default:
		return "Unknown"
	}
}

// Backend runs resolved tapes. It receives a job whose execution tape is
// fully rewritten (no transform metadata) and fills Result.Counts.
type Backend interface {
	Setup(*Conf) error
	Send(Job) error
	Validate(program string) error
	GetDeviceInfo() *DeviceInfo
}

func DEFAULT_REWRITE_CONFIG() *RewriteConfig {
	type DefaultRewriteOptions struct {
		Passes []json.RawMessage `json:"passes"`
	}
	dro := DefaultRewriteOptions{
		Passes: []json.RawMessage{},
	}
	droByte, err := json.Marshal(dro)
	if err != nil {
		panic(err)
	}
	str := "pipeline"

	return &RewriteConfig{
		RewriteLib:     &str,
		RewriteOptions: droByte,
		UseDefault:     true,
	}
}

// NoRewrite marks a job that skips the rewrite stage entirely.
var NoRewrite = &RewriteConfig{}

// Rewriter applies the configured transform pipeline to a job's tape
// before execution.
type Rewriter interface {
	IsAcceptableRewriteLib(string) bool
	Setup(*Conf) error
	Rewrite(Job) error
	TearDown()
}

// Objective is a scalar function of parameter values, typically
// set-parameters -> rewrite -> execute -> combine.
type Objective func([]float64) (float64, error)

// Differentiator computes gradients of an objective with respect to the
// argument positions named by argnums. It must surface
// NotDifferentiableError unchanged when asked to differentiate through a
// non-differentiable path.
type Differentiator interface {
	Setup(*Conf) error
	Gradient(f Objective, params []float64, argnums []int) ([]float64, error)
	TearDown()
}

type Scheduler interface {
	Setup(*Conf) error
	Start() error
	HandleJob(Job)
	// Queue Data Access
	GetCurrentQueueSize() int
	IsOverRefillThreshold() bool
}

type DBManager interface {
	Setup(DBChan, *Conf) error
	// TODO: make Start() for consistency
	Insert(Job) error
	Get(string) (Job, error)
	Update(Job) error
	Delete(string) error

	AddToInnerJobIDSet(string)
	RemoveFromInnerJobIDSet(string)
	ExistInInnerJobIDSet(string) bool
}

type SystemComponents struct {
	*dig.Container
	*Channels
}

func NewSystemComponents(con *dig.Container) *SystemComponents {
	return &SystemComponents{
		con,
		NewChannels(),
	}
}

func GetSystemComponents() *SystemComponents {
	return systemComponents
}

func (s *SystemComponents) Setup(conf *Conf) error {
	dbChan := s.DBChan

	zap.L().Debug("Setting up rewriter")
	var err error
	err = s.Invoke(
		func(r Rewriter) error {
			return r.Setup(conf)
		})
	if err != nil {
		return err
	}

	zap.L().Debug("Setting up scheduler")
	err = s.Invoke(
		func(s Scheduler) error {
			return s.Setup(conf)
		})
	if err != nil {
		return err
	}

	zap.L().Debug("Setting up DB")
	err = s.Invoke(
		func(d DBManager) error {
			return d.Setup(dbChan, conf)
		})
	if err != nil {
		return err
	}

	zap.L().Debug("Setting up backend")
	err = s.Invoke(func(b Backend) error {
		return b.Setup(conf)
	})
	if err != nil {
		return err
	}

	zap.L().Debug("Setting up differentiator")
	err = s.Invoke(
		func(d Differentiator) error {
			return d.Setup(conf)
		})
	if err != nil {
		return err
	}
	systemComponents = s
	return nil
}

func (s *SystemComponents) TearDown() {
	_ = s.Invoke(
		func(r Rewriter) {
			r.TearDown()
		})

	_ = s.Invoke(
		func(d Differentiator) {
			d.TearDown()
		})
	s.Channels.Close()
}

func (s *SystemComponents) StartContainer() error {
	return s.Container.Invoke(
		func(s Scheduler) error {
			return s.Start()
		})
}

func (s *SystemComponents) GetDeviceInfo() *DeviceInfo {
	var deviceInfo *DeviceInfo
	s.Invoke(
		func(b Backend) error {
			deviceInfo = b.GetDeviceInfo()
			return nil
		})
	return deviceInfo
}

func (s *SystemComponents) GetCurrentQueueSize() int {
	var size int
	s.Invoke(
		func(sc Scheduler) {
			size = sc.GetCurrentQueueSize()
		})
	return size
}

func (s *SystemComponents) IsQueueOverRefillThreshold() bool {
	var over bool
	s.Invoke(
		func(sc Scheduler) {
			over = sc.IsOverRefillThreshold()
		})
	return over
}
