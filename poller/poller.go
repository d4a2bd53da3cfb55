package poller

import (
	"fmt"
	"reflect"
	"time"

	"github.com/qfold-team/qfold-engine/core"
	"go.uber.org/zap"
)

type state int

const PollerTaskName = "poller"

const (
	POLLING state = iota
	SUB_IDLE
	IDLE
)

const (
	DEFAULT_WORKLOAD_DIR  = "./workloads"
	DEFAULT_COUNT         = 10
	DEFAULT_NORMAL_PERIOD = time.Duration(10) * time.Second
	DEFAULT_IDLE_PERIOD   = time.Duration(10) * time.Second
	DEFAULT_MAX_RETRY     = 3
)

func (s state) String() string {
	switch s {
	case POLLING:
		return "POLLING"
	case SUB_IDLE:
		return "SUB_IDLE"
	case IDLE:
		return "IDLE"
	default:
		return "UNKNOWN"
	}
}

// WorkloadPoller is the periodic task that feeds the scheduler from a
// directory of workload files. A consumed file is moved aside so a restart
// does not resubmit it. The poller slows down to the idle period after
// finding nothing to do MaxRetry times in a row.
type WorkloadPoller struct {
	WorkloadDir  string        `toml:"workload_dir"`
	ConsumedDir  string        `toml:"consumed_dir"`
	Count        int           `toml:"count"`
	NormalPeriod time.Duration `toml:"normal_period"`
	IdlePeriod   time.Duration `toml:"idle_period"`
	MaxRetry     int           `toml:"max_retry"`

	pollClient

	currentPeriod time.Duration
	noJobsCount   int
	state         state

	sysCom *core.SystemComponents
}

func (p *WorkloadPoller) GetEmptyParams() interface{} {
	return &WorkloadPoller{}
}

func (p *WorkloadPoller) SetParams(params interface{}) error {
	if params == nil {
		msg := "no params for poller"
		zap.L().Debug(msg)
		return nil
	}
	pp, ok := params.(map[string]interface{})
	if !ok {
		msg := fmt.Errorf("failed to set params for poller/params: %s", params)
		zap.L().Error(msg.Error())
		return msg
	}
	zap.L().Debug(fmt.Sprintf("Set params for poller: %v", pp))
	setField[string]("workload_dir", &p.WorkloadDir, pp, DEFAULT_WORKLOAD_DIR)
	setField[string]("consumed_dir", &p.ConsumedDir, pp, "")
	setField[int]("count", &p.Count, pp, DEFAULT_COUNT)
	setField[int]("max_retry", &p.MaxRetry, pp, DEFAULT_MAX_RETRY)

	setDurationField("normal_period", &p.NormalPeriod, pp, DEFAULT_NORMAL_PERIOD)
	setDurationField("idle_period", &p.IdlePeriod, pp, DEFAULT_IDLE_PERIOD)

	return nil
}

func setField[T string | int | bool](key string, target *T, pp map[string]interface{}, defaultVal T) {
	if v, ok := pp[key]; ok && !reflect.ValueOf(v).IsZero() {
		*target = v.(T)
		return
	}
	zap.L().Debug(fmt.Sprintf("Set default value for %s: %v", key, defaultVal))
	*target = defaultVal
}

func setDurationField(key string, target *time.Duration, pp map[string]interface{}, defaultVal time.Duration) {
	if v, ok := pp[key]; ok && !reflect.ValueOf(v).IsZero() {
		dur, err := time.ParseDuration(v.(string))
		if err != nil {
			zap.L().Error(fmt.Sprintf("failed to parse duration for %s/reason:%s", key, err))
		}
		*target = dur
		return
	}
	zap.L().Debug(fmt.Sprintf("Set default value for %s: %v", key, defaultVal))
	*target = defaultVal
}

func (p *WorkloadPoller) RequirePeriodUpdate() (bool, time.Duration) {
	return true, p.currentPeriod
}

type pollClient interface {
	request() ([]core.Job, error)
}

func (p *WorkloadPoller) Setup() error {
	if p.WorkloadDir == "" {
		p.WorkloadDir = DEFAULT_WORKLOAD_DIR
	}
	if p.ConsumedDir == "" {
		p.ConsumedDir = defaultConsumedDir(p.WorkloadDir)
	}
	zap.L().Info(fmt.Sprintf("polling workload files from %s", p.WorkloadDir))
	p.pollClient = &workloadPollClient{
		workloadDir: p.WorkloadDir,
		consumedDir: p.ConsumedDir,
		count:       p.Count,
	}
	p.currentPeriod = p.NormalPeriod
	p.noJobsCount = 0
	p.state = POLLING
	p.sysCom = core.GetSystemComponents()
	return nil
}

func (p *WorkloadPoller) Task() {
	zap.L().Debug("Poller is getting jobs")
	jobsNum, err := p.getJobs()
	if err != nil || jobsNum == 0 {
		if err != nil {
			zap.L().Info(fmt.Sprintf("Failed to get jobs. NoJobsCount:%d, Reason:%s",
				p.noJobsCount, err))
		} else {
			zap.L().Info(fmt.Sprintf("Get no jobs. NoJobsCount:%d", p.noJobsCount))
		}
		switch p.state {
		case POLLING:
			p.noJobsCount = 1
			p.updateState(SUB_IDLE)
			zap.L().Debug(fmt.Sprintf("Transition to sub idle mode. Retry after %s", p.NormalPeriod))
			return
		case SUB_IDLE:
			p.noJobsCount++
			if p.noJobsCount < p.MaxRetry {
				zap.L().Debug(fmt.Sprintf("Retry after %s", p.NormalPeriod))
			} else {
				zap.L().Info("Reached max retry. Transition to idle mode")
				p.noJobsCount = 0
				p.updateState(IDLE)
				p.currentPeriod = p.IdlePeriod
			}
		case IDLE:
			zap.L().Debug(fmt.Sprintf("Already in idle mode. Retry after idle period %s", p.IdlePeriod))
		default:
			zap.L().Error(fmt.Sprintf("Unknown state %d", int(p.state)))
		}
	} else { // got jobs
		switch p.state {
		case POLLING:
			zap.L().Debug("keep polling")
		case SUB_IDLE:
			zap.L().Info("Transition to polling mode from sub_idle state")
			p.updateState(POLLING)
			p.noJobsCount = 0
		case IDLE:
			zap.L().Info("Transition to polling mode from idle state")
			p.currentPeriod = p.NormalPeriod
			p.updateState(POLLING)
			p.noJobsCount = 0
		default:
			zap.L().Error(fmt.Sprintf("Unknown state %d", int(p.state)))
		}
	}
}

func (p *WorkloadPoller) Cleanup() {
	zap.L().Info("Poller is cleaning up")
}

func (p *WorkloadPoller) request() ([]core.Job, error) {
	return p.pollClient.request()
}

func (p *WorkloadPoller) getJobs() (int, error) {
	if err := passPollingCondition(); err != nil {
		zap.L().Info(fmt.Sprintf("not get jobs. reason:%s", err))
		return 0, err
	}
	jobs, err := p.request()
	if err != nil {
		zap.L().Error(fmt.Sprintf("Failed to get jobs. Reason:%s", err))
		return 0, err
	}
	zap.L().Debug(fmt.Sprintf("get %d jobs", len(jobs)))
	handlingJobsNum := 0
	for _, job := range jobs {
		jd := job.JobData()
		zap.L().Debug(fmt.Sprintf("Handling a job. Job ID:%s created:%s", jd.ID, jd.Created))
		p.sysCom.Invoke(
			func(s core.Scheduler) error {
				s.HandleJob(job)
				return nil
			})
		handlingJobsNum++
	}
	return handlingJobsNum, nil
}

func (p *WorkloadPoller) updateState(newState state) {
	p.state = newState
}

func passPollingCondition() error {
	s := core.GetSystemComponents()
	if s.IsQueueOverRefillThreshold() {
		msg := fmt.Sprintf("queue size is over refill-threshold. current queue size:%d",
			s.GetCurrentQueueSize())
		return fmt.Errorf(msg)
	}
	zap.L().Debug(fmt.Sprintf("queue is under refill-threshold. current queue size:%d",
		s.GetCurrentQueueSize()))
	di := s.GetDeviceInfo()
	if di.Status != core.Available {
		msg := fmt.Sprintf("device is not available. current status:%s", di.Status)
		return fmt.Errorf(msg)
	}
	zap.L().Debug("device is available")
	return nil
}
