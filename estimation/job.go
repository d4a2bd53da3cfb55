package estimation

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/qfold-team/qfold-engine/core"
	"github.com/qfold-team/qfold-engine/mitig"
	"github.com/qfold-team/qfold-engine/qasm"
	"go.uber.org/zap"
)

const (
	ESTIMATION_JOB         = "estimation_job"
	ESTIMATION_SETTING_KEY = "estimation"
)

type EstimationSetting struct {
	GroupTerms bool `toml:"group_terms"`
}

func NewEstimationSetting() EstimationSetting {
	return EstimationSetting{
		GroupTerms: true,
	}
}

// pauliTerm is one single-wire factor of a Pauli string.
type pauliTerm struct {
	basis byte // 'X', 'Y' or 'Z'
	wire  int
}

type operator struct {
	pauli string
	coeff float64
	terms []pauliTerm // empty for the identity
}

// measurementGroup collects operators that can share one execution because
// no shared wire is measured in two different bases.
type measurementGroup struct {
	bases   map[int]byte
	wires   []int // measured wires, sorted
	members []int // indexes into the operator list
	tape    *core.Tape
}

func (g *measurementGroup) accepts(terms []pauliTerm) bool {
	for _, pt := range terms {
		if b, ok := g.bases[pt.wire]; ok && b != pt.basis {
			return false
		}
	}
	return true
}

func (g *measurementGroup) add(idx int, terms []pauliTerm) {
	for _, pt := range terms {
		g.bases[pt.wire] = pt.basis
	}
	g.members = append(g.members, idx)
}

// positions maps the wires of a member operator to their bit positions in
// the counts keys of this group.
func (g *measurementGroup) positions(terms []pauliTerm) []int {
	pos := make([]int, 0, len(terms))
	for _, pt := range terms {
		pos = append(pos, sort.SearchInts(g.wires, pt.wire))
	}
	return pos
}

type EstimationJob struct {
	setting    EstimationSetting
	jobData    *core.JobData
	jobContext *core.JobContext
	operators  []operator
	groups     []*measurementGroup
	countsList []core.Counts

	finished bool
}

func (j *EstimationJob) New(jd *core.JobData, jc *core.JobContext) core.Job {
	var setting EstimationSetting
	s, ok := core.GetComponentSetting(ESTIMATION_SETTING_KEY)
	if !ok {
		zap.L().Debug("estimation setting is not found")
		setting = NewEstimationSetting()
	} else {
		// TODO: fix this long adhoc
		mapped, ok := s.(map[string]interface{})
		if !ok {
			zap.L().Debug("estimation setting is not set")
			setting = NewEstimationSetting()
		} else {
			setting = NewEstimationSetting()
			g, ok := mapped["group_terms"].(bool)
			if ok {
				setting.GroupTerms = g
			}
		}
	}
	return &EstimationJob{
		setting:    setting,
		jobData:    jd,
		jobContext: jc,
		operators:  make([]operator, 0),
		groups:     make([]*measurementGroup, 0),
		countsList: make([]core.Counts, 0),
		finished:   false,
	}
}

func (j *EstimationJob) PreProcess() {
	if err := j.preProcessImpl(); err != nil {
		zap.L().Error(fmt.Sprintf("failed to pre-process a job(%s). Reason:%s",
			j.JobData().ID, err.Error()))
		core.SetFailureWithError(j, err)
		j.finished = true
		return
	}
	return
}

func (j *EstimationJob) preProcessImpl() (err error) {
	err = nil
	jd := j.JobData()
	container := core.GetSystemComponents().Container
	// TODO refactor this part
	// make jobID pool in syscomponent
	err = container.Invoke(
		func(d core.DBManager) error {
			if d.ExistInInnerJobIDSet(jd.ID) {
				return core.ErrorJobIDConflict
			}
			return nil
		})
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to check the existence of a job(%s). Reason:%s",
			jd.ID, err.Error()))
		return
	}
	err = container.Invoke(
		func(d core.DBManager) error {
			return d.Insert(j)
		})
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to insert a job(%s). Reason:%s", jd.ID, err.Error()))
		return
	}
	if jd.Tape == nil {
		zap.L().Debug(fmt.Sprintf("QASM:%s", jd.QASM))
		var t *core.Tape
		t, err = qasm.Parse(jd.QASM)
		if err != nil {
			zap.L().Error(fmt.Sprintf("failed to parse the program of a job(%s). Reason:%s",
				jd.ID, err.Error()))
			return
		}
		jd.Tape = t
	}
	if jd.NeedsRewrite() {
		err = container.Invoke(
			func(r core.Rewriter) error {
				return r.Rewrite(j)
			})
		if err != nil {
			zap.L().Error(fmt.Sprintf("failed to rewrite a job(%s). Reason:%s", jd.ID, err.Error()))
			return
		}
	}
	zap.L().Debug(fmt.Sprintf("JobInfo:%s", jd.Info))
	operators, err := parseOperators(jd.Info)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to parse operators from :%s/reason:%s",
			jd.Info, err.Error()))
		return err
	}
	j.operators = operators

	groups := groupOperators(operators, j.setting.GroupTerms)
	base := jd.ExecutionTape()
	for _, g := range groups {
		var t *core.Tape
		t, err = buildGroupTape(base, g)
		if err != nil {
			zap.L().Error(fmt.Sprintf("failed to build a measurement tape for a job(%s). Reason:%s",
				jd.ID, err.Error()))
			return
		}
		g.tape = t
	}
	j.groups = groups
	zap.L().Debug(fmt.Sprintf("packed %d operators into %d measurement groups for job(%s)",
		len(operators), len(groups), jd.ID))

	_ = container.Invoke(
		func(d core.DBManager) error {
			d.AddToInnerJobIDSet(jd.ID)
			return nil
		})
	return
}

func (j *EstimationJob) Process() {
	c := core.GetSystemComponents().Container
	for _, g := range j.groups {
		j.jobData.RewrittenTape = g.tape
		err := c.Invoke(
			func(b core.Backend) error {
				return b.Send(j)
			})
		if err != nil {
			zap.L().Error(fmt.Sprintf("failed to send a job(%s) to the backend. Reason:%s",
				j.JobData().ID, err.Error()))
			j.JobData().Status = core.FAILED
			j.finished = true
			return
		}
		if j.JobData().Status == core.FAILED {
			zap.L().Error(fmt.Sprintf("backend reported FAILED for job(%s)", j.JobData().ID))
			j.finished = true
			return
		}
		j.countsList = append(j.countsList, j.jobData.Result.Counts)
	}
	zap.L().Debug(fmt.Sprintf("executed %d measurement groups for job(%s)",
		len(j.groups), j.JobData().ID))
}

func (j *EstimationJob) PostProcess() {
	j.finished = true
	if err := j.postProcessImpl(); err != nil {
		zap.L().Error(fmt.Sprintf("failed to post-process a job(%s). Reason:%s",
			j.JobData().ID, err.Error()))
		core.SetFailureWithError(j, err)
		return
	}
	j.JobData().Status = core.SUCCEEDED
	return
}

func (j *EstimationJob) postProcessImpl() error {
	jd := j.JobData()
	if len(j.countsList) != len(j.groups) {
		return fmt.Errorf("got %d counts for %d measurement groups", len(j.countsList), len(j.groups))
	}
	m := mitig.NewMitigationInfoFromJobData(jd)
	countsList := make([]core.Counts, len(j.countsList))
	for i, g := range j.groups {
		counts := j.countsList[i]
		if m.NeedToBeMitigated {
			jd.RewrittenTape = g.tape
			jd.Result.Counts = counts
			mitig.PseudoInverseMitigation(jd)
			if jd.Status == core.FAILED {
				return fmt.Errorf("failed to mitigate the counts of measurement group %d", i)
			}
			counts = jd.Result.Counts
		}
		countsList[i] = counts
	}

	// Each Pauli term has eigenvalues +-1, so its sample variance over N
	// shots is (1 - e^2) / N. Covariances between terms that share a
	// group are not tracked.
	expval := 0.0
	variance := 0.0
	for gi, g := range j.groups {
		counts := countsList[gi]
		shots := counts.TotalShots()
		for _, oi := range g.members {
			op := j.operators[oi]
			e, err := counts.ZExpectation(g.positions(op.terms))
			if err != nil {
				return fmt.Errorf("operator %q: %s", op.pauli, err.Error())
			}
			expval += op.coeff * e
			if shots > 0 {
				v := 1.0 - e*e
				if v < 0 {
					v = 0
				}
				variance += op.coeff * op.coeff * v / float64(shots)
			}
		}
	}
	// identity terms are exact constants
	for _, op := range j.operators {
		if len(op.terms) == 0 {
			expval += op.coeff
		}
	}
	jd.Result.Estimation = &core.Estimation{
		Exp_value: expval,
		Stds:      math.Sqrt(variance),
	}
	zap.L().Debug(fmt.Sprintf("exp_value:%f, stds:%f for job(%s)",
		jd.Result.Estimation.Exp_value, jd.Result.Estimation.Stds, jd.ID))
	return nil
}

func (j *EstimationJob) IsFinished() bool {
	return j.finished
}

func (j *EstimationJob) JobData() *core.JobData {
	return j.jobData
}

func (j *EstimationJob) JobType() string {
	return ESTIMATION_JOB
}

func (j *EstimationJob) JobContext() *core.JobContext {
	return j.jobContext
}

func (j *EstimationJob) UpdateJobData(jd *core.JobData) {
	j.jobData = jd
}

func (j *EstimationJob) Clone() core.Job {
	cloned := &EstimationJob{
		setting:    j.setting,
		jobData:    j.jobData.Clone(),
		jobContext: j.jobContext,
	}
	return cloned
}

// parseOperators reads the observable out of the job info. The expected
// form is a JSON list of [pauli, coeff] pairs, e.g.
// [["X 0 X 1", 1.5], ["Z 2", -0.5]].
func parseOperators(jinfo string) ([]operator, error) {
	rows := []json.RawMessage{}
	if err := json.Unmarshal([]byte(jinfo), &rows); err != nil {
		return nil, fmt.Errorf("operators must be a JSON list of [pauli, coeff] pairs: %s", err.Error())
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no operators in the job info")
	}
	operators := make([]operator, 0, len(rows))
	for i, row := range rows {
		pair := []json.RawMessage{}
		if err := json.Unmarshal(row, &pair); err != nil || len(pair) != 2 {
			return nil, fmt.Errorf("operator %d must be a [pauli, coeff] pair", i)
		}
		op := operator{}
		if err := json.Unmarshal(pair[0], &op.pauli); err != nil {
			return nil, fmt.Errorf("operator %d must be a [pauli, coeff] pair", i)
		}
		if err := json.Unmarshal(pair[1], &op.coeff); err != nil {
			return nil, fmt.Errorf("operator %d must be a [pauli, coeff] pair", i)
		}
		terms, err := parsePauli(op.pauli)
		if err != nil {
			return nil, fmt.Errorf("operator %d: %s", i, err.Error())
		}
		op.terms = terms
		operators = append(operators, op)
	}
	return operators, nil
}

// parsePauli splits a Pauli string such as "X 0 X 1" into its per-wire
// factors. Identity factors are dropped; a string of identities (or an
// empty string) yields no terms.
func parsePauli(pauli string) ([]pauliTerm, error) {
	fields := strings.Fields(pauli)
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("pauli %q must be a list of axis/wire pairs", pauli)
	}
	seen := map[int]struct{}{}
	terms := []pauliTerm{}
	for i := 0; i < len(fields); i += 2 {
		axis := strings.ToUpper(fields[i])
		if len(axis) != 1 || !strings.Contains("IXYZ", axis) {
			return nil, fmt.Errorf("unknown pauli axis %q in %q", fields[i], pauli)
		}
		wire, err := strconv.Atoi(fields[i+1])
		if err != nil || wire < 0 {
			return nil, fmt.Errorf("bad wire index %q in pauli %q", fields[i+1], pauli)
		}
		if _, ok := seen[wire]; ok {
			return nil, fmt.Errorf("wire %d appears twice in pauli %q", wire, pauli)
		}
		seen[wire] = struct{}{}
		if axis == "I" {
			continue
		}
		terms = append(terms, pauliTerm{basis: axis[0], wire: wire})
	}
	return terms, nil
}

// groupOperators packs the operators into measurement groups greedily, in
// order: an operator joins the first group that measures none of its wires
// in a conflicting basis. With grouping disabled every operator gets its
// own group.
func groupOperators(operators []operator, groupTerms bool) []*measurementGroup {
	groups := []*measurementGroup{}
	for i, op := range operators {
		if len(op.terms) == 0 {
			continue
		}
		var target *measurementGroup
		if groupTerms {
			for _, g := range groups {
				if g.accepts(op.terms) {
					target = g
					break
				}
			}
		}
		if target == nil {
			target = &measurementGroup{bases: map[int]byte{}}
			groups = append(groups, target)
		}
		target.add(i, op.terms)
	}
	for _, g := range groups {
		g.wires = make([]int, 0, len(g.bases))
		for w := range g.bases {
			g.wires = append(g.wires, w)
		}
		sort.Ints(g.wires)
	}
	return groups
}

// buildGroupTape appends the basis changes of one measurement group to the
// execution tape and samples the group wires: H maps the X basis to Z and
// S-dagger then H maps the Y basis to Z. Measurements already on the tape
// are replaced.
func buildGroupTape(base *core.Tape, g *measurementGroup) (*core.Tape, error) {
	ops := make([]core.Operation, 0, len(base.Ops)+2*len(g.wires))
	for _, op := range base.Ops {
		ops = append(ops, op.Clone())
	}
	for _, w := range g.wires {
		switch g.bases[w] {
		case 'X':
			ops = append(ops, core.NewOperation("h", []int{w}))
		case 'Y':
			ops = append(ops, core.NewOperation("sdg", []int{w}))
			ops = append(ops, core.NewOperation("h", []int{w}))
		}
	}
	ms := []core.Measurement{core.NewMeasurement(core.Sample, g.wires)}
	return core.NewTape(base.Wires, ops, ms)
}
