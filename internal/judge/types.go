// Package judge implements the LLM Judge Runtime: domain-specialized
// judges invoked over (scenario, agent output) pairs with batching,
// cost-aware model selection, retries, verification, and confidence
// calibration.
package judge

import (
	"context"

	"github.com/arc-eval/core/internal/canon"
)

// Variant tags the domain or workflow knowledge embedded in a judge's
// prompts. Judges differ only in this domain knowledge and the shape of
// their reward signals — the capability set is identical across variants.
type Variant string

const (
	VariantFinance  Variant = "finance"
	VariantSecurity Variant = "security"
	VariantML       Variant = "ml"
	VariantDebug    Variant = "debug"
	VariantImprove  Variant = "improve"
)

// Capability is the shared interface every judge variant implements:
// build_prompt, parse_response, extract_reward_signals,
// suggest_improvements. Variants compose a prompt builder, a parser, and
// a reward extractor rather than forming an inheritance hierarchy.
type Capability interface {
	Variant() Variant
	BuildPrompt(scenario canon.Scenario, output canon.AgentOutput) (system, user string)
	ExtractRewardSignals(scenario canon.Scenario, output canon.AgentOutput, parsed ParsedResponse) map[string]float64
	SuggestImprovements(scenario canon.Scenario, parsed ParsedResponse) []string
}

// ParsedResponse is the structured result of the robust-parse pipeline,
// before it's wrapped into a full Judgment.
type ParsedResponse struct {
	Decision   canon.Decision
	Confidence float64
	Reasoning  string
	Evidence   []string
	Logprobs   map[string]float64

	// ParseStage records which robust-parse stage succeeded, for
	// observability; not part of the external report schema.
	ParseStage string
}

// Mode selects the cost/accuracy tradeoff for model selection.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeFast     Mode = "fast"
	ModeAccurate Mode = "accurate"
)

// ModelPolicy controls model selection, cost caps, and batching.
type ModelPolicy struct {
	Mode           Mode    `yaml:"mode" json:"mode"`
	PrimaryModel   string  `yaml:"primary_model" json:"primary_model"`
	FallbackModel  string  `yaml:"fallback_model" json:"fallback_model"`
	MaxCostPerRun  float64 `yaml:"max_cost_per_run" json:"max_cost_per_run"`
	BatchSize      int     `yaml:"batch_size" json:"batch_size"`
	HighAccuracy   bool    `yaml:"high_accuracy" json:"high_accuracy"`
	MaxParallelism int     `yaml:"max_parallelism" json:"max_parallelism"`
	VerifyEnabled  bool    `yaml:"verify_enabled" json:"verify_enabled"`
	CallTimeoutSec int     `yaml:"call_timeout_seconds" json:"call_timeout_seconds"`
}

// DefaultModelPolicy returns sensible defaults for SelectModel, which picks
// PrimaryModel for batches of up to 10 and FallbackModel for any larger
// batch, for accurate or high-accuracy mode, and for critical scenarios.
// There is no separate mid-tier model and no batch-size boundary at 50;
// both models default to gpt-4o-mini.
func DefaultModelPolicy() ModelPolicy {
	return ModelPolicy{
		Mode:           ModeAuto,
		PrimaryModel:   "gpt-4o-mini",
		FallbackModel:  "gpt-4o-mini",
		MaxCostPerRun:  0,
		BatchSize:      10,
		HighAccuracy:   false,
		MaxParallelism: 4,
		VerifyEnabled:  false,
		CallTimeoutSec: 60,
	}
}

// SelectModel resolves the actual model to use for one (scenario,
// batchSize) pair under policy.
func (p ModelPolicy) SelectModel(batchSize int, scenarioSeverity canon.Severity) string {
	if p.Mode == ModeFast {
		return p.PrimaryModel
	}
	if p.Mode == ModeAccurate || p.HighAccuracy || scenarioSeverity == canon.SeverityCritical {
		if p.FallbackModel != "" {
			return p.FallbackModel
		}
		return p.PrimaryModel
	}
	// auto mode: PrimaryModel for batches of up to 10, FallbackModel for
	// any larger batch.
	switch {
	case batchSize <= 10:
		return p.PrimaryModel
	default:
		if p.FallbackModel != "" {
			return p.FallbackModel
		}
		return p.PrimaryModel
	}
}

// LLMClient abstracts the provider call so the Runtime is testable
// without a real network dependency.
type LLMClient interface {
	Complete(ctx context.Context, model, systemPrompt, userPrompt string) (Completion, error)
}

// Completion is a single LLM response plus whatever calibration data the
// provider exposed.
type Completion struct {
	Text     string
	Logprobs map[string]float64 // decision-token -> log probability, when available
}
