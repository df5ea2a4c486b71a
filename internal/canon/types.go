// Package canon defines the canonical data model shared across every
// pipeline stage: scenarios, normalized agent outputs, judgments, risk
// predictions, and the records that persist them.
package canon

import (
	"encoding/json"
	"time"
)

// Severity is the criticality of a Scenario.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// severityRank orders severities critical-first for report and list sorting.
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:      1,
	SeverityMedium:    2,
	SeverityLow:       3,
}

// Rank returns the sort order of a severity, critical first. Unknown
// severities sort last.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank)
}

// TestType distinguishes scenarios that expect compliant behavior
// (positive) from ones that probe for a specific failure (negative).
type TestType string

const (
	TestPositive TestType = "positive"
	TestNegative TestType = "negative"
)

// Scenario is a declarative test case loaded once per run from an eval
// pack. Immutable after load; shared by reference/id, never deep-copied.
type Scenario struct {
	ID                  string   `yaml:"id" json:"id"`
	Name                string   `yaml:"name" json:"name"`
	Description         string   `yaml:"description" json:"description"`
	Domain              string   `yaml:"domain" json:"domain"`
	Category            string   `yaml:"category" json:"category"`
	Severity            Severity `yaml:"severity" json:"severity"`
	TestType             TestType `yaml:"test_type" json:"test_type"`
	Compliance           []string `yaml:"compliance" json:"compliance"`
	InputTemplate        string   `yaml:"input_template" json:"input_template"`
	ExpectedBehavior     string   `yaml:"expected_behavior" json:"expected_behavior"`
	FailureIndicators    []string `yaml:"failure_indicators" json:"failure_indicators"`
	Remediation          string   `yaml:"remediation" json:"remediation"`
	RegulatoryReference  string   `yaml:"regulatory_reference" json:"regulatory_reference"`
	BenchmarkAlignment   string   `yaml:"benchmark_alignment" json:"benchmark_alignment"`

	// GeneratedFrom carries provenance for auto-generated scenarios (I5):
	// the fingerprint of the FailurePattern that spawned this scenario.
	// Empty for hand-authored pack scenarios.
	GeneratedFrom string `yaml:"generated_from,omitempty" json:"generated_from,omitempty"`
}

// ToolCall records one invocation an agent made during a run.
type ToolCall struct {
	Name       string          `json:"name"`
	Parameters json.RawMessage `json:"parameters"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	DurationMs int64           `json:"duration_ms"`
}

// Step is one reasoning or intermediate-action entry surfaced by
// frameworks that expose a chain of thought or tool trace (LangChain's
// intermediate_steps, AutoGen's message chain, and similar).
type Step struct {
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

// OutputMetadata carries the incidental facts a judge or predictor needs
// about how an output was produced.
type OutputMetadata struct {
	Model     string  `json:"model,omitempty"`
	CostUSD   float64 `json:"cost_usd,omitempty"`
	LatencyMs int64   `json:"latency_ms,omitempty"`
}

// AgentOutput is the canonical, framework-independent representation the
// parser produces from a raw trace record. Exactly-once semantics per
// input record: one input record yields exactly one AgentOutput.
type AgentOutput struct {
	ScenarioID      string         `json:"scenario_id,omitempty"`
	OutputText      string         `json:"output_text"`
	ToolCalls       []ToolCall     `json:"tool_calls,omitempty"`
	ReasoningSteps  []Step         `json:"reasoning_steps,omitempty"`
	Framework       string         `json:"framework"`
	Metadata        OutputMetadata `json:"metadata"`
}

// Decision is the tri-state verdict a judge attaches to a scenario.
type Decision string

const (
	DecisionPass    Decision = "pass"
	DecisionFail    Decision = "fail"
	DecisionWarning Decision = "warning"
)

// VerificationSummary is attached to a Judgment when the verification
// layer re-evaluates it with a second judge.
type VerificationSummary struct {
	Verified        bool     `json:"verified"`
	ConfidenceDelta float64  `json:"confidence_delta"`
	IssuesFound     []string `json:"issues_found,omitempty"`
}

// Judgment is the immutable output of the Judge Runtime for one
// (scenario, agent output) pair.
type Judgment struct {
	ScenarioID                  string                `json:"scenario_id"`
	Decision                    Decision              `json:"decision"`
	Confidence                  float64               `json:"confidence"`
	Reasoning                   string                `json:"reasoning"`
	Evidence                    []string              `json:"evidence,omitempty"`
	RewardSignals               map[string]float64    `json:"reward_signals,omitempty"`
	ImprovementRecommendations  []string              `json:"improvement_recommendations,omitempty"`
	Cost                        float64               `json:"cost"`
	Model                       string                `json:"model"`
	Verification                *VerificationSummary  `json:"verification,omitempty"`
	Logprobs                    map[string]float64    `json:"logprobs,omitempty"`
	BiasTelemetry               json.RawMessage       `json:"bias_telemetry,omitempty"`

	// Severity is carried through from the source Scenario so the
	// orchestrator can apply severity gating without a store lookup.
	Severity Severity `json:"severity"`
}

// RiskLevel is the coarse categorical mapping of combined_risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Violation is one deterministic rule finding.
type Violation struct {
	RuleID   string `json:"rule_id"`
	Severity string `json:"severity"`
	Citation string `json:"citation"`
	Evidence string `json:"evidence"`
}

// BusinessImpact quantifies the practical value of catching a risk
// before production, from configurable heuristics (never fabricated
// precision beyond what the heuristic inputs support).
type BusinessImpact struct {
	FailurePreventionPct float64 `json:"failure_prevention_pct"`
	CostSavingsPerRunUSD float64 `json:"cost_savings_per_run_usd"`
}

// RiskPrediction fuses rule-engine output with an LLM reliability
// assessment into a single risk score with rationale.
type RiskPrediction struct {
	RuleRisk       float64         `json:"rule_risk"`
	LLMRisk        float64         `json:"llm_risk"`
	CombinedRisk   float64         `json:"combined_risk"`
	RiskLevel      RiskLevel       `json:"risk_level"`
	Confidence     float64         `json:"confidence"`
	RuleViolations []Violation     `json:"rule_violations,omitempty"`
	LLMRationale   string          `json:"llm_rationale"`
	RiskFactors    []string        `json:"risk_factors,omitempty"`
	BusinessImpact BusinessImpact  `json:"business_impact"`
}

// PredictionOutcome is the human or downstream-verified ground truth for
// a previously logged RiskPrediction.
type PredictionOutcome struct {
	Failed    *bool  `json:"failed,omitempty"` // nil = unknown
	IssueType string `json:"issue_type,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// PredictionRecord is one append-only entry in the prediction log.
type PredictionRecord struct {
	PredictionID     string              `json:"prediction_id"`
	Timestamp        time.Time           `json:"timestamp"`
	AgentConfigHash  string              `json:"agent_config_hash"`
	Framework        string              `json:"framework"`
	Domain           string              `json:"domain"`
	RiskScore        float64             `json:"risk_score"`
	RiskLevel        RiskLevel           `json:"risk_level"`
	Confidence       float64             `json:"confidence"`
	Outcome          *PredictionOutcome  `json:"outcome,omitempty"`
	FeedbackAt       *time.Time          `json:"feedback_timestamp,omitempty"`

	// CorrectsID points at a prior record when this entry is a
	// correction rather than an original observation (I4).
	CorrectsID string `json:"corrects_id,omitempty"`

	// Sequence and hash chain fields support tamper evidence; additive
	// to the documented schema, ignored by readers that don't need them.
	Sequence int64  `json:"sequence"`
	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash"`
}

// FailurePattern is a deduplicated failure signature tracked by the
// Pattern Learner.
type FailurePattern struct {
	Fingerprint      string    `json:"fingerprint"`
	Occurrences      int       `json:"occurrences"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	Domain           string    `json:"domain"`
	Framework        string    `json:"framework"`
	FailureCategory  string    `json:"failure_category"`
	FailureIndicators []string `json:"failure_indicators"`
	RootCauseTag     string    `json:"root_cause_tag"`
	CanonicalExample string    `json:"canonical_example"`
	MaxSeverity      Severity  `json:"max_severity"`

	// GeneratedScenarioID is set once this pattern is promoted.
	GeneratedScenarioID string `json:"generated_scenario_id,omitempty"`
}

// ComplianceBreakdown summarizes pass/fail counts for one framework tag.
type ComplianceBreakdown struct {
	Framework string  `json:"framework"`
	Pass      int     `json:"pass"`
	Fail      int     `json:"fail"`
	Warning   int     `json:"warning"`
	PassRate  float64 `json:"pass_rate"`
}

// ReportSummary is the headline statistics block of an EvaluationReport.
type ReportSummary struct {
	Pass          int     `json:"pass"`
	Fail          int     `json:"fail"`
	Warning       int     `json:"warning"`
	PassRate      float64 `json:"pass_rate"`
	PassRateValid bool    `json:"pass_rate_valid"`
	AvgConfidence float64 `json:"avg_confidence"`
	TotalCostUSD  float64 `json:"total_cost"`
}

// EvaluationReport is the aggregate output of one orchestrator run.
type EvaluationReport struct {
	EvaluationID         string                 `json:"evaluation_id"`
	Domain               string                 `json:"domain"`
	Timestamp            time.Time              `json:"timestamp"`
	Policy               json.RawMessage        `json:"policy"`
	Summary              ReportSummary          `json:"summary"`
	ComplianceBreakdown  []ComplianceBreakdown  `json:"compliance_breakdown"`
	Judgments            []Judgment             `json:"judgments"`
	RiskPrediction       *RiskPrediction        `json:"risk_prediction,omitempty"`
	ImprovementRecommendations []string         `json:"improvement_recommendations,omitempty"`
	Aborted              bool                   `json:"aborted,omitempty"`
	AbortReason          string                 `json:"abort_reason,omitempty"`
}

// DifficultyTier is a curriculum progression stage.
type DifficultyTier string

const (
	TierNovice       DifficultyTier = "novice"
	TierIntermediate DifficultyTier = "intermediate"
	TierAdvanced     DifficultyTier = "advanced"
)

// CurriculumEntry is the Self-Improvement Engine's per-agent training plan.
type CurriculumEntry struct {
	AgentID        string         `json:"agent_id"`
	Domain         string         `json:"domain"`
	WeakScenarioIDs []string      `json:"weak_scenario_ids"`
	DifficultyTier DifficultyTier `json:"difficulty_tier"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ImprovementPlan is a one-page actionable document produced per
// (agent, evaluation) pair. Idempotent: recomputing for the same pair
// yields the same plan content.
type ImprovementPlan struct {
	AgentID          string    `json:"agent_id"`
	EvaluationID     string    `json:"evaluation_id"`
	PrioritizedFixes []Fix     `json:"prioritized_fixes"`
	ExpectedDeltas   map[string]float64 `json:"expected_pass_rate_deltas"`
	TimelineEstimate string    `json:"timeline_estimate"`
	ReEvalCommand    string    `json:"re_evaluation_command"`
	CreatedAt        time.Time `json:"created_at"`
}

// Fix is one prioritized remediation item in an ImprovementPlan.
type Fix struct {
	ScenarioID  string  `json:"scenario_id"`
	Description string  `json:"description"`
	Severity    Severity `json:"severity"`
	Frequency   int     `json:"frequency"`
	Priority    float64 `json:"priority"`
}

// Diff is the result of comparing two evaluation reports.
type Diff struct {
	BaselineID        string             `json:"baseline_id"`
	CurrentID         string             `json:"current_id"`
	FlippedPassToFail []string           `json:"flipped_pass_to_fail"`
	FlippedFailToPass []string           `json:"flipped_fail_to_pass"`
	PerScenarioDelta  map[string]float64 `json:"per_scenario_delta"`
	AggregateDelta    float64            `json:"aggregate_delta"`
}
