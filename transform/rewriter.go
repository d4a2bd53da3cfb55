package transform

import (
	"fmt"

	"github.com/qfold-team/qfold-engine/core"
	"go.uber.org/zap"
)

const RewriteLibName = "pipeline"

type RewriterSetting struct {
	Strict bool `toml:"strict"`
}

func NewRewriterSetting() RewriterSetting {
	return RewriterSetting{
		Strict: false,
	}
}

// PipelineRewriter is the Rewriter component: it builds the pass pipeline
// named by a job's rewrite config and applies it to the job's tape during
// preprocessing.
type PipelineRewriter struct {
	setting RewriterSetting
}

func (r *PipelineRewriter) IsAcceptableRewriteLib(lib string) bool {
	return lib == RewriteLibName
}

func (r *PipelineRewriter) Setup(_ *core.Conf) error {
	r.setting = NewRewriterSetting()
	s, ok := core.GetComponentSetting("rewriter")
	if !ok {
		zap.L().Debug("rewriter setting is not found/using default")
		return nil
	}
	zap.L().Debug(fmt.Sprintf("rewriter setting:%v", s))

	// TODO: fix this adhoc
	mapped, ok := s.(map[string]interface{})
	if ok {
		if v, ok := mapped["strict"].(bool); ok {
			r.setting.Strict = v
		}
	}
	return nil
}

func (r *PipelineRewriter) Rewrite(j core.Job) error {
	jd := j.JobData()
	if jd.Tape == nil {
		return core.NewStructuralError("job %s has no tape to rewrite", jd.ID)
	}
	pl, vpm, err := BuildPipeline(jd.Rewrite.RewriteOptions, r.setting.Strict)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to build rewrite pipeline/JobID:%s/reason:%s", jd.ID, err))
		return err
	}
	zap.L().Debug(fmt.Sprintf("rewrite pipeline/JobID:%s/passes:%s", jd.ID, pl.String()))
	out, err := pl.ApplySingle(jd.Tape)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to rewrite/JobID:%s/reason:%s", jd.ID, err))
		return err
	}
	jd.RewrittenTape = out

	stats, err := core.NewStatsRawFromString(fmt.Sprintf(
		`{"passes":%d,"ops_before":%d,"ops_after":%d}`,
		pl.Len(), len(jd.Tape.Ops), len(out.Ops)))
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to build rewrite stats/JobID:%s/reason:%s", jd.ID, err))
		return err
	}
	jd.Result.RewriteInfo.StatsRaw = stats

	if len(vpm) != 0 {
		raw, err := vpm.ToRaw()
		if err != nil {
			zap.L().Error(fmt.Sprintf("failed to record wire mapping/JobID:%s/reason:%s", jd.ID, err))
			return err
		}
		jd.Result.RewriteInfo.VirtualPhysicalMappingRaw = raw
		jd.Result.RewriteInfo.VirtualPhysicalMappingMap = vpm
		pvm := core.PhysicalVirtualMapping{}
		for v, p := range vpm {
			pvm[p] = v
		}
		jd.Result.RewriteInfo.PhysicalVirtualMapping = pvm
	}
	return nil
}

func (r *PipelineRewriter) TearDown() {}
