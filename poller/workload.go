package poller

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/qfold-team/qfold-engine/core"
	"go.uber.org/zap"
)

// A workload file is a TOML document with one or more jobs:
//
//	[[jobs]]
//	id = "bell"
//	type = "sampling"
//	shots = 1000
//	program = '''
//	OPENQASM 3;
//	...
//	'''
//	rewrite = '{"rewrite_lib": "pipeline"}'
//
// type defaults to "normal" and id to a fresh UUID. rewrite is the JSON
// rewrite config ("default" selects the default pipeline), info and
// mitigation are passed through to the job verbatim.
type Workload struct {
	Jobs []WorkloadJob `toml:"jobs"`
}

type WorkloadJob struct {
	ID         string `toml:"id"`
	Type       string `toml:"type"`
	Shots      int    `toml:"shots"`
	Program    string `toml:"program"`
	Rewrite    string `toml:"rewrite"`
	Info       string `toml:"info"`
	Mitigation string `toml:"mitigation"`
}

func LoadWorkload(path string) (*Workload, error) {
	w := &Workload{}
	if _, err := toml.DecodeFile(path, w); err != nil {
		return nil, errors.Wrapf(err, "failed to decode workload file %s", path)
	}
	if len(w.Jobs) == 0 {
		return nil, errors.Errorf("no jobs in workload file %s", path)
	}
	return w, nil
}

func (wj *WorkloadJob) ToJobData() *core.JobData {
	jd := core.NewJobData()
	jd.ID = wj.ID
	if jd.ID == "" {
		jd.ID = uuid.NewString()
	}
	jd.JobType = wj.Type
	jd.Shots = wj.Shots
	jd.QASM = wj.Program
	jd.Status = core.READY
	jd.Info = wj.Info
	jd.MitigationInfo = wj.Mitigation
	switch wj.Rewrite {
	case "":
		jd.Rewrite = nil
	case "default":
		jd.Rewrite = core.DEFAULT_REWRITE_CONFIG()
	default:
		c := core.UnmarshalToRewriteConfig(wj.Rewrite)
		jd.Rewrite = &c
	}
	return jd
}

// BuildJobs turns the workload into engine jobs. A document that fails
// validation becomes an UnknownJob carrying the failure, so the caller
// reports it instead of silently dropping the document.
func (w *Workload) BuildJobs() ([]core.Job, error) {
	jm := core.GetJobManager()
	if jm == nil {
		return nil, errors.New("job manager is not initialized")
	}
	jobs := []core.Job{}
	for _, wj := range w.Jobs {
		jc, err := core.NewJobContext()
		if err != nil {
			zap.L().Error(fmt.Sprintf("Failed to create a job context. Reason:%s", err))
			return []core.Job{}, err
		}
		jd := wj.ToJobData()
		newJob, err := jm.NewJobFromJobDataWithValidation(jd, jc)
		if err != nil {
			msg := core.SetFailureWithErrorToJobData(jd, err)
			zap.L().Error(fmt.Sprintf("Failed to validate a job. Reason:%s", msg))
			newJob = (&core.UnknownJob{}).New(jd, jc)
		} else {
			zap.L().Debug(fmt.Sprintf("Created a job. Job ID:%s created:%s, status:%s, rewrite:%v",
				jd.ID, jd.Created, jd.Status, jd.Rewrite))
		}
		jobs = append(jobs, newJob)
	}
	return jobs, nil
}

type workloadPollClient struct {
	workloadDir string
	consumedDir string
	count       int
}

func defaultConsumedDir(workloadDir string) string {
	return filepath.Join(workloadDir, "consumed")
}

// request reads up to count workload files in name order and builds their
// jobs. Every touched file is moved to the consumed directory, an
// unreadable one under a .failed name so it is kept for inspection without
// being retried forever.
func (c *workloadPollClient) request() ([]core.Job, error) {
	entries, err := os.ReadDir(c.workloadDir)
	if err != nil {
		return []core.Job{}, errors.Wrapf(err, "failed to read workload dir %s", c.workloadDir)
	}
	jobs := []core.Job{}
	picked := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		if picked >= c.count {
			break
		}
		picked++
		path := filepath.Join(c.workloadDir, e.Name())
		w, err := LoadWorkload(path)
		if err != nil {
			zap.L().Error(fmt.Sprintf("failed to load workload file %s. Reason:%s", path, err))
			c.moveAside(e.Name(), true)
			continue
		}
		built, err := w.BuildJobs()
		if err != nil {
			zap.L().Error(fmt.Sprintf("failed to build jobs from %s. Reason:%s", path, err))
			return []core.Job{}, err
		}
		jobs = append(jobs, built...)
		c.moveAside(e.Name(), false)
	}
	return jobs, nil
}

func (c *workloadPollClient) moveAside(name string, failed bool) {
	if err := os.MkdirAll(c.consumedDir, 0755); err != nil {
		zap.L().Error(fmt.Sprintf("failed to create consumed dir %s. Reason:%s", c.consumedDir, err))
		return
	}
	target := name
	if failed {
		target = name + ".failed"
	}
	from := filepath.Join(c.workloadDir, name)
	to := filepath.Join(c.consumedDir, target)
	if err := os.Rename(from, to); err != nil {
		zap.L().Error(fmt.Sprintf("failed to move %s to %s. Reason:%s", from, to, err))
	}
}
