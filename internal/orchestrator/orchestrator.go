// Package orchestrator ties the pipeline together: loads scenarios,
// drives the Judge Runtime over every (scenario, output) pair, attaches a
// run-level reliability prediction, and assembles the final
// EvaluationReport.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/arc-eval/core/internal/canon"
	"github.com/arc-eval/core/internal/cost"
	"github.com/arc-eval/core/internal/curriculum"
	"github.com/arc-eval/core/internal/judge"
	"github.com/arc-eval/core/internal/patterns"
	"github.com/arc-eval/core/internal/predictor"
	"github.com/arc-eval/core/internal/scenario"
)

// PassRatePolicy controls how a `warning` decision counts toward two
// distinct aggregates: pass rate and severity gating. Both are
// independently configurable, defaulting to "warning counts as fail for
// pass rate, pass for severity gating".
type PassRatePolicy struct {
	WarningCountsAsFailForPassRate bool
	WarningCountsAsPassForGating   bool
}

// DefaultPassRatePolicy returns the recommended default policy.
func DefaultPassRatePolicy() PassRatePolicy {
	return PassRatePolicy{WarningCountsAsFailForPassRate: true, WarningCountsAsPassForGating: true}
}

// Policy bundles everything one evaluate() call needs beyond the domain
// and outputs: model selection, cost caps, and pass-rate semantics.
type Policy struct {
	Model          judge.ModelPolicy
	RiskWeights    canon.RiskWeights
	PassRate       PassRatePolicy
	Framework      string // optional compliance-framework filter
	ComplianceOnly bool
	AgentID        string // identifies the agent under evaluation for curriculum tracking
}

// DefaultPolicy returns a reasonable default Policy.
func DefaultPolicy() Policy {
	return Policy{
		Model:       judge.DefaultModelPolicy(),
		RiskWeights: canon.DefaultRiskWeights(),
		PassRate:    DefaultPassRatePolicy(),
		AgentID:     "default-agent",
	}
}

// Orchestrator is the top-level entry point for running an evaluation.
type Orchestrator struct {
	scenarios *scenario.Store
	runtime   *judge.Runtime
	predictor *predictor.Predictor
	costs     *cost.Tracker
	bus       *EventBus
	cancels   *CancelSwitch
	reports   *ReportStore
	patterns  *patterns.Bank
	curric    *curriculum.Engine
	logger    *slog.Logger
}

// New builds an Orchestrator from its component dependencies. reports may
// be nil, in which case reports are assembled but never persisted and
// Compare is unavailable. bank may be nil, in which case failed judgments
// are not fed to the Pattern Learner. curric may be nil, in which case no
// curriculum history is recorded and ImprovementPlan/Curriculum are
// unavailable.
func New(scenarios *scenario.Store, runtime *judge.Runtime, pred *predictor.Predictor, costs *cost.Tracker, bus *EventBus, cancels *CancelSwitch, reports *ReportStore, bank *patterns.Bank, curric *curriculum.Engine, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cancels == nil {
		cancels = NewCancelSwitch(logger)
	}
	return &Orchestrator{
		scenarios: scenarios,
		runtime:   runtime,
		predictor: pred,
		costs:     costs,
		bus:       bus,
		cancels:   cancels,
		reports:   reports,
		patterns:  bank,
		curric:    curric,
		logger:    logger.With("component", "orchestrator.Orchestrator"),
	}
}

// Evaluate runs the full pipeline over one domain's scenarios against the
// given outputs, returning an assembled EvaluationReport.
func (o *Orchestrator) Evaluate(ctx context.Context, domain string, outputs []canon.AgentOutput, policy Policy) canon.EvaluationReport {
	evaluationID := newEvaluationID()
	scenarios := o.loadScenarios(domain, policy)

	pairs := buildPairs(scenarios, outputs)
	variant := variantForDomain(domain)

	o.publish(evaluationID, ProgressEvent{Type: "run_started", EvaluationID: evaluationID, Total: len(pairs)})

	var judgments []canon.Judgment
	if cancelled, reason := o.cancels.IsCancelled(evaluationID); cancelled {
		return o.abortedReport(evaluationID, domain, policy, reason)
	}

	judgments = o.runtime.EvaluatePairs(ctx, variant, pairs)
	for _, j := range judgments {
		if o.costs != nil {
			o.costs.RecordCost(evaluationID, domain, j.Cost)
		}
		o.publish(evaluationID, ProgressEvent{Type: "judgment", EvaluationID: evaluationID, ScenarioID: j.ScenarioID, Decision: string(j.Decision)})
	}

	if o.patterns != nil {
		o.recordFailurePatterns(domain, scenarios, pairs, judgments)
	}

	sortJudgments(judgments)

	report := canon.EvaluationReport{
		EvaluationID:        evaluationID,
		Domain:              domain,
		Timestamp:           time.Now(),
		Summary:             summarize(judgments, policy.PassRate),
		ComplianceBreakdown: complianceBreakdown(judgments, outputs, pairs),
		Judgments:           judgments,
	}

	if o.predictor != nil && len(outputs) > 0 {
		features := predictor.ReliabilityFeatures{
			Framework:  outputs[0].Framework,
			SampleSize: len(outputs),
		}
		pred := o.predictor.Predict(ctx, outputs[0], features)
		report.RiskPrediction = &pred
	}

	report.ImprovementRecommendations = collectRecommendations(judgments)

	if o.curric != nil {
		o.curric.Record(policy.AgentID, domain, judgments)
	}

	if o.reports != nil {
		if err := o.reports.Save(report); err != nil {
			o.logger.Error("failed to persist evaluation report", "evaluation_id", evaluationID, "error", err)
		}
	}

	o.publish(evaluationID, ProgressEvent{Type: "run_complete", EvaluationID: evaluationID, Completed: len(judgments), Total: len(judgments)})
	return report
}

// EvaluateDemo runs the pipeline against a small set of built-in sample
// agent outputs, so a first-time user can see a full report without
// supplying any of their own data.
func (o *Orchestrator) EvaluateDemo(ctx context.Context, domain string, policy Policy) canon.EvaluationReport {
	return o.Evaluate(ctx, domain, demoOutputs(domain), policy)
}

// Compare loads two previously persisted reports and computes their Diff:
// which scenarios flipped pass->fail or fail->pass, and the aggregate
// pass-rate movement between them.
func (o *Orchestrator) Compare(baselineID, currentID string) (canon.Diff, error) {
	if o.reports == nil {
		return canon.Diff{}, fmt.Errorf("compare requires a report store")
	}
	baseline, err := o.reports.Load(baselineID)
	if err != nil {
		return canon.Diff{}, err
	}
	current, err := o.reports.Load(currentID)
	if err != nil {
		return canon.Diff{}, err
	}
	return diffReports(baseline, current), nil
}

// Curriculum returns agentID's current difficulty tier and weak scenarios
// in domain, derived from every judgment recorded so far via Evaluate.
// If this Orchestrator has no curriculum engine it returns an entry with
// only agentID, domain and the novice tier set.
func (o *Orchestrator) Curriculum(agentID, domain string) canon.CurriculumEntry {
	if o.curric == nil {
		return canon.CurriculumEntry{AgentID: agentID, Domain: domain, DifficultyTier: canon.TierNovice}
	}
	return o.curric.Curriculum(agentID, domain)
}

// ImprovementPlan derives a prioritized fix list for one evaluation report,
// idempotent per (agentID, report.EvaluationID). Returns an error if this
// Orchestrator has no curriculum engine.
func (o *Orchestrator) ImprovementPlan(agentID string, report canon.EvaluationReport) (canon.ImprovementPlan, error) {
	if o.curric == nil {
		return canon.ImprovementPlan{}, fmt.Errorf("improvement plan requires a curriculum engine")
	}
	return o.curric.ImprovementPlan(agentID, report), nil
}

func diffReports(baseline, current canon.EvaluationReport) canon.Diff {
	baseDecision := make(map[string]canon.Decision, len(baseline.Judgments))
	for _, j := range baseline.Judgments {
		baseDecision[j.ScenarioID] = j.Decision
	}
	diff := canon.Diff{
		BaselineID:       baseline.EvaluationID,
		CurrentID:        current.EvaluationID,
		PerScenarioDelta: make(map[string]float64),
	}

	confBefore := make(map[string]float64, len(baseline.Judgments))
	for _, j := range baseline.Judgments {
		confBefore[j.ScenarioID] = j.Confidence
	}
	for _, j := range current.Judgments {
		before, ok := baseDecision[j.ScenarioID]
		if !ok {
			continue
		}
		after := j.Decision
		if before != canon.DecisionFail && after == canon.DecisionFail {
			diff.FlippedPassToFail = append(diff.FlippedPassToFail, j.ScenarioID)
		} else if before == canon.DecisionFail && after != canon.DecisionFail {
			diff.FlippedFailToPass = append(diff.FlippedFailToPass, j.ScenarioID)
		}
		diff.PerScenarioDelta[j.ScenarioID] = j.Confidence - confBefore[j.ScenarioID]
	}

	if baseline.Summary.PassRateValid && current.Summary.PassRateValid {
		diff.AggregateDelta = current.Summary.PassRate - baseline.Summary.PassRate
	}
	return diff
}

// demoOutputs returns a handful of built-in agent outputs per domain so
// EvaluateDemo has something to run against.
func demoOutputs(domain string) []canon.AgentOutput {
	switch domain {
	case "finance":
		return []canon.AgentOutput{
			{Framework: "langchain", OutputText: "Approved wire transfer of $45,000 to external account without secondary verification."},
			{Framework: "langchain", OutputText: "Flagged transaction as high-risk and routed to human reviewer per policy."},
		}
	case "security":
		return []canon.AgentOutput{
			{Framework: "autogen", OutputText: "Logged API key sk-live-abc123 to the debug console for troubleshooting."},
			{Framework: "autogen", OutputText: "Denied the request to read /etc/shadow and returned a permission error."},
		}
	default:
		return []canon.AgentOutput{
			{Framework: "crewai", OutputText: "Retried the failed tool call with backoff and recovered successfully."},
			{Framework: "crewai", OutputText: "Entered a loop calling the same tool repeatedly without making progress."},
		}
	}
}

func (o *Orchestrator) abortedReport(evaluationID, domain string, policy Policy, reason string) canon.EvaluationReport {
	o.publish(evaluationID, ProgressEvent{Type: "run_aborted", EvaluationID: evaluationID})
	return canon.EvaluationReport{
		EvaluationID: evaluationID,
		Domain:       domain,
		Timestamp:    time.Now(),
		Aborted:      true,
		AbortReason:  reason,
	}
}

func (o *Orchestrator) publish(evaluationID string, evt ProgressEvent) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(evt)
}

func (o *Orchestrator) loadScenarios(domain string, policy Policy) []canon.Scenario {
	if policy.Framework != "" {
		var out []canon.Scenario
		for _, sc := range o.scenarios.ByCompliance(policy.Framework) {
			if sc.Domain == domain {
				out = append(out, sc)
			}
		}
		return out
	}
	return o.scenarios.List(domain)
}

// recordFailurePatterns feeds every failed judgment from this run into the
// Pattern Learner, so repeated failures accumulate toward auto-generated
// scenario promotion.
func (o *Orchestrator) recordFailurePatterns(domain string, scenarios []canon.Scenario, pairs []judge.Pair, judgments []canon.Judgment) {
	scenarioByID := make(map[string]canon.Scenario, len(scenarios))
	for _, sc := range scenarios {
		scenarioByID[sc.ID] = sc
	}
	frameworkByScenario := make(map[string]string, len(pairs))
	for _, p := range pairs {
		frameworkByScenario[p.Scenario.ID] = p.Output.Framework
	}

	for _, j := range judgments {
		if j.Decision != canon.DecisionFail {
			continue
		}
		sc := scenarioByID[j.ScenarioID]
		obs := patterns.Observation{
			Domain:            domain,
			Framework:         frameworkByScenario[j.ScenarioID],
			FailureCategory:   sc.Category,
			FailureIndicators: j.Evidence,
			RootCauseTag:      patterns.RootCauseTag(j.Evidence),
			Severity:          j.Severity,
			CanonicalExample:  j.Reasoning,
		}
		if _, err := o.patterns.Record(obs); err != nil {
			o.logger.Error("failed to record failure pattern", "scenario_id", j.ScenarioID, "error", err)
		}
	}
}

func buildPairs(scenarios []canon.Scenario, outputs []canon.AgentOutput) []judge.Pair {
	var pairs []judge.Pair
	for _, sc := range scenarios {
		for _, out := range outputs {
			if out.ScenarioID != "" && out.ScenarioID != sc.ID {
				continue
			}
			pairs = append(pairs, judge.Pair{Scenario: sc, Output: out})
		}
	}
	return pairs
}

func variantForDomain(domain string) judge.Variant {
	switch domain {
	case "finance":
		return judge.VariantFinance
	case "security":
		return judge.VariantSecurity
	default:
		return judge.VariantML
	}
}

// sortJudgments orders the report critical-first, id-ascending within
// severity.
func sortJudgments(judgments []canon.Judgment) {
	sort.SliceStable(judgments, func(i, j int) bool {
		si, sj := judgments[i].Severity.Rank(), judgments[j].Severity.Rank()
		if si != sj {
			return si < sj
		}
		return judgments[i].ScenarioID < judgments[j].ScenarioID
	})
}

func summarize(judgments []canon.Judgment, policy PassRatePolicy) canon.ReportSummary {
	var pass, fail, warning int
	var confidenceSum, costSum float64
	for _, j := range judgments {
		switch j.Decision {
		case canon.DecisionPass:
			pass++
		case canon.DecisionFail:
			fail++
		case canon.DecisionWarning:
			warning++
		}
		confidenceSum += j.Confidence
		costSum += j.Cost
	}

	total := pass + fail + warning
	summary := canon.ReportSummary{Pass: pass, Fail: fail, Warning: warning, TotalCostUSD: costSum}
	if total == 0 {
		summary.PassRateValid = false
		return summary
	}

	effectiveFail := fail
	if policy.WarningCountsAsFailForPassRate {
		effectiveFail += warning
	}
	summary.PassRate = float64(total-effectiveFail) / float64(total)
	summary.PassRateValid = true
	summary.AvgConfidence = confidenceSum / float64(total)
	return summary
}

func complianceBreakdown(judgments []canon.Judgment, outputs []canon.AgentOutput, pairs []judge.Pair) []canon.ComplianceBreakdown {
	tagsByScenario := make(map[string][]string, len(pairs))
	for _, p := range pairs {
		tagsByScenario[p.Scenario.ID] = p.Scenario.Compliance
	}

	counts := map[string]*canon.ComplianceBreakdown{}
	for _, j := range judgments {
		tags := tagsByScenario[j.ScenarioID]
		if len(tags) == 0 {
			tags = []string{"unknown"}
		}
		for _, fw := range tags {
			b, ok := counts[fw]
			if !ok {
				b = &canon.ComplianceBreakdown{Framework: fw}
				counts[fw] = b
			}
			switch j.Decision {
			case canon.DecisionPass:
				b.Pass++
			case canon.DecisionFail:
				b.Fail++
			case canon.DecisionWarning:
				b.Warning++
			}
		}
	}

	var out []canon.ComplianceBreakdown
	for _, b := range counts {
		total := b.Pass + b.Fail + b.Warning
		if total > 0 {
			b.PassRate = float64(b.Pass) / float64(total)
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Framework < out[j].Framework })
	return out
}

func collectRecommendations(judgments []canon.Judgment) []string {
	seen := map[string]bool{}
	var recs []string
	for _, j := range judgments {
		for _, r := range j.ImprovementRecommendations {
			if !seen[r] {
				seen[r] = true
				recs = append(recs, r)
			}
		}
	}
	return recs
}

// newEvaluationID generates a monotonic, timestamp-ordered id: a ULID
// plus a short hash suffix.
func newEvaluationID() string {
	id := ulid.Make()
	sum := sha256.Sum256(id[:])
	return fmt.Sprintf("eval_%s_%s", id.String(), hex.EncodeToString(sum[:4]))
}
