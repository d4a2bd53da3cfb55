package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/qfold-team/qfold-engine/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/qfold-team/qfold-engine/scheduler")
var meter = otel.Meter("github.com/qfold-team/qfold-engine/scheduler")

// statusManager records the status transitions of a job while the
// scheduler owns it. The history lives until the job leaves the scheduler.
type statusManager interface {
	Update(core.Job, core.Status)
	Delete(jobID string)
	Get(jobID string) []core.Status
}

type normalStatusManager struct {
	statusHistory map[string][]core.Status
	mu            sync.RWMutex
}

func newNormalStatusManager() *normalStatusManager {
	return &normalStatusManager{
		statusHistory: make(map[string][]core.Status),
	}
}

func (n *normalStatusManager) Update(job core.Job, status core.Status) {
	job.JobData().Status = status
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statusHistory[job.JobData().ID] = append(n.statusHistory[job.JobData().ID], status)
}

func (n *normalStatusManager) Delete(jobID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.statusHistory, jobID)
}

func (n *normalStatusManager) Get(jobID string) []core.Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.statusHistory[jobID]
}

type NormalScheduler struct {
	queue         *NormalQueue
	statusManager statusManager
	processedJobs metric.Int64Counter
}

type jobInScheduler struct {
	job      core.Job
	finished *sync.WaitGroup
}

func (n *NormalScheduler) Setup(conf *core.Conf) error {
	n.queue = &NormalQueue{}
	if err := n.queue.Setup(conf); err != nil {
		return err
	}
	n.statusManager = newNormalStatusManager()
	var err error
	n.processedJobs, err = meter.Int64Counter(
		"engine.jobs.processed",
		metric.WithDescription("jobs handled to a terminal status"))
	if err != nil {
		return err
	}
	return nil
}

// TODO: use rungroup
func (n *NormalScheduler) Start() error {
	go func() {
		for {
			zap.L().Debug("checking the queue...")
			jis, err := n.queue.Dequeue(true)
			if err != nil {
				zap.L().Error(fmt.Sprintf("failed to get a job from the queue. Reason:%s", err))
				continue
			}
			jid := jis.job.JobData().ID
			zap.L().Debug(fmt.Sprintf("processing job:%s", jid))
			// TODO: move the RUNNING transition into the job phases
			n.statusManager.Update(jis.job, core.RUNNING)
			jis.job.JobContext().DBChan <- jis.job.Clone()
			n.processJob(jis)
			zap.L().Debug(fmt.Sprintf("finished to process job(%s), status:%s", jid, jis.job.JobData().Status))
		}
	}()
	return nil
}

// processJob runs the execution phase of one dequeued job. A panic in a
// job implementation must not take the scheduler loop down with it.
func (n *NormalScheduler) processJob(jis *jobInScheduler) {
	defer jis.finished.Done()
	defer func() {
		if r := recover(); r != nil {
			jd := jis.job.JobData()
			zap.L().Error(fmt.Sprintf("recovered from a panic while processing job(%s). Reason:%v",
				jd.ID, r))
			core.SetFailureWithError(jis.job, fmt.Errorf("process aborted: %v", r))
		}
	}()
	jis.job.Process()
}

func (n *NormalScheduler) HandleJob(j core.Job) {
	jd := j.JobData()
	zap.L().Debug(fmt.Sprintf("starting to handle job(%s) in %s", jd.ID, jd.Status))
	go func() {
		ctx, span := tracer.Start(context.Background(), "scheduler.handle_job",
			trace.WithAttributes(
				attribute.String("job.id", jd.ID),
				attribute.String("job.type", j.JobType())))
		defer span.End()
		defer func() {
			zap.L().Debug(fmt.Sprintf("status history job(%s): %v", jd.ID, n.statusManager.Get(jd.ID)))
			n.statusManager.Delete(jd.ID)
		}()
		n.handleImpl(j)
		span.SetAttributes(attribute.String("job.status", jd.Status.String()))
		n.processedJobs.Add(ctx, 1,
			metric.WithAttributes(attribute.String("job.status", jd.Status.String())))
	}()
}

func (n *NormalScheduler) HandleJobForTest(j core.Job, wg *sync.WaitGroup) {
	go func() {
		defer wg.Done()
		n.handleImpl(j)
	}()
}

func (n *NormalScheduler) handleImpl(j core.Job) {
	for {
		jid := j.JobData().ID
		st := j.JobData().Status // must be READY
		n.statusManager.Update(j, st)
		zap.L().Debug(fmt.Sprintf("handling job(%s)in %s starting", jid, st))
		if st != core.READY {
			zap.L().Error(
				fmt.Sprintf("finished to handle job(%s) with unexpected status:%s", jid, st.String()))
			// not written to the DB
			return
		}
		zap.L().Debug(fmt.Sprintf("handling job(%s). start pre-processing", jid))
		j.PreProcess()
		j.JobContext().DBChan <- j.Clone()
		if j.IsFinished() {
			zap.L().Debug(fmt.Sprintf("finished to handle job(%s) after pre-processing", jid))
			n.statusManager.Update(j, j.JobData().Status)
			return
		}
		var wg sync.WaitGroup
		wg.Add(1)
		jis := &jobInScheduler{
			job:      j,
			finished: &wg,
		}
		n.queue.queueChan <- jis
		wg.Wait() // wait for processing
		zap.L().Debug(fmt.Sprintf("Processed Job Status: %s", j.JobData().Status))
		if j.IsFinished() {
			zap.L().Debug(fmt.Sprintf("finished to handle job(%s) after processing with status:%s",
				jid, j.JobData().Status.String()))
			n.statusManager.Update(j, j.JobData().Status)
			j.JobContext().DBChan <- j.Clone()
			return
		}
		zap.L().Debug(fmt.Sprintf("handling job(%s). start post-processing", jid))
		j.PostProcess()
		if j.IsFinished() {
			zap.L().Debug(fmt.Sprintf("finished to handle job(%s) after post-processing with status:%s",
				jid, j.JobData().Status.String()))
			n.statusManager.Update(j, j.JobData().Status)
			j.JobContext().DBChan <- j.Clone()
			return
		}
		zap.L().Debug(fmt.Sprintf("one more loop for job(%s)", jid))
	}
}

func (n *NormalScheduler) GetCurrentQueueSize() int {
	return n.queue.GetCurrentSize()
}

func (n *NormalScheduler) IsOverRefillThreshold() bool {
	return n.queue.IsOverRefillThreshold()
}
