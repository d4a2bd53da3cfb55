package transform

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/qfold-team/qfold-engine/core"
)

// Stage is one pipeline entry: exactly one of Single or Batch is set.
type Stage struct {
	Single TapeTransform
	Batch  BatchTransform
}

func (s Stage) Name() string {
	if s.Single != nil {
		return s.Single.Name()
	}
	return s.Batch.Name()
}

// Pipeline is an explicit ordered value of transform stages. Order and
// forking behavior are inspectable instead of being buried in call-stack
// nesting. Applying [t1, t2] to a tape equals t2(t1(tape)).
type Pipeline struct {
	stages []Stage
}

func NewPipeline() *Pipeline {
	return &Pipeline{}
}

func (p *Pipeline) Append(t TapeTransform) *Pipeline {
	p.stages = append(p.stages, Stage{Single: t})
	return p
}

func (p *Pipeline) AppendBatch(b BatchTransform) *Pipeline {
	p.stages = append(p.stages, Stage{Batch: b})
	return p
}

func (p *Pipeline) Len() int {
	return len(p.stages)
}

func (p *Pipeline) Stages() []Stage {
	return p.stages
}

func (p *Pipeline) String() string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return strings.Join(names, " -> ")
}

// Plan is the resolved output of a pipeline run: the tapes to execute, in
// order, and the combiner that reduces their ordered results to one value.
type Plan struct {
	Tapes   []*core.Tape
	Combine Combiner
}

// Run applies the stages in order. A batch stage forks the run: every
// later stage applies independently to each branch, recursively, so nested
// forks compose without special cases. The plan's combiner runs the
// innermost combiners first and the first fork's combiner last.
func (p *Pipeline) Run(t *core.Tape) (*Plan, error) {
	return runStages(p.stages, t)
}

func runStages(stages []Stage, t *core.Tape) (*Plan, error) {
	if len(stages) == 0 {
		return &Plan{Tapes: []*core.Tape{t}, Combine: IdentityCombiner}, nil
	}
	head, rest := stages[0], stages[1:]
	if head.Single != nil {
		out, err := head.Single.Apply(t)
		if err != nil {
			return nil, errors.Wrapf(err, "transform %s failed", head.Single.Name())
		}
		return runStages(rest, out)
	}

	branches, combine, err := head.Batch.Expand(t)
	if err != nil {
		return nil, errors.Wrapf(err, "batch transform %s failed", head.Batch.Name())
	}
	subPlans := make([]*Plan, len(branches))
	tapes := make([]*core.Tape, 0, len(branches))
	for i, b := range branches {
		sp, err := runStages(rest, b)
		if err != nil {
			return nil, err
		}
		subPlans[i] = sp
		tapes = append(tapes, sp.Tapes...)
	}
	return &Plan{
		Tapes:   tapes,
		Combine: composeCombiners(subPlans, combine),
	}, nil
}

func composeCombiners(subPlans []*Plan, outer Combiner) Combiner {
	total := 0
	for _, sp := range subPlans {
		total += len(sp.Tapes)
	}
	return func(results []float64) (float64, error) {
		if len(results) != total {
			return 0, errors.Errorf("expected %d results, got %d", total, len(results))
		}
		vals := make([]float64, len(subPlans))
		off := 0
		for i, sp := range subPlans {
			n := len(sp.Tapes)
			v, err := sp.Combine(results[off : off+n])
			if err != nil {
				return 0, err
			}
			vals[i] = v
			off += n
		}
		return outer(vals)
	}
}

// ApplySingle runs a pipeline that must not fork, returning the one
// rewritten tape. Rewrite pipelines use this path.
func (p *Pipeline) ApplySingle(t *core.Tape) (*core.Tape, error) {
	cur := t
	for _, s := range p.stages {
		if s.Batch != nil {
			return nil, errors.Errorf("stage %s forks: a rewrite pipeline must stay single", s.Batch.Name())
		}
		out, err := s.Single.Apply(cur)
		if err != nil {
			return nil, errors.Wrapf(err, "transform %s failed", s.Single.Name())
		}
		cur = out
	}
	return cur, nil
}
