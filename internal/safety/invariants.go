// Package safety asserts the global invariants every other package is
// expected to uphold structurally (unique scenario ids, convex risk
// weights, append-only prediction history, and so on). These checks are
// not enforced inline on every call — that would duplicate logic already
// living in scenario, canon, and tracker — they exist as an independent
// verification layer a test suite or a `arc-eval doctor` command can run
// against live state to catch drift between packages.
package safety

import (
	"fmt"
	"log/slog"

	"github.com/arc-eval/core/internal/canon"
	"github.com/arc-eval/core/internal/tracker"
)

// Violation is one broken invariant, identified by its spec tag.
type Violation struct {
	Invariant string `json:"invariant"` // I1..I5
	Detail    string `json:"detail"`
}

// Engine runs the registered invariant checks and logs anything it finds.
type Engine struct {
	logger *slog.Logger
}

// NewEngine builds an invariant-checking Engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger.With("component", "safety.Engine")}
}

// CheckScenarioIDs asserts I1: scenario ids are unique within a domain.
func (e *Engine) CheckScenarioIDs(scenarios []canon.Scenario) []Violation {
	seen := make(map[string]map[string]bool) // domain -> id -> seen
	var violations []Violation
	for _, sc := range scenarios {
		if seen[sc.Domain] == nil {
			seen[sc.Domain] = make(map[string]bool)
		}
		if seen[sc.Domain][sc.ID] {
			violations = append(violations, Violation{
				Invariant: "I1",
				Detail:    fmt.Sprintf("duplicate scenario id %q in domain %q", sc.ID, sc.Domain),
			})
			continue
		}
		seen[sc.Domain][sc.ID] = true
	}
	e.logResult("I1", violations)
	return violations
}

// CheckJudgmentsReferenceScenarios asserts I2: every Judgment refers to a
// scenario that exists in the catalog it was evaluated against.
func (e *Engine) CheckJudgmentsReferenceScenarios(scenarios []canon.Scenario, judgments []canon.Judgment) []Violation {
	known := make(map[string]bool, len(scenarios))
	for _, sc := range scenarios {
		known[sc.ID] = true
	}
	var violations []Violation
	for _, j := range judgments {
		if !known[j.ScenarioID] {
			violations = append(violations, Violation{
				Invariant: "I2",
				Detail:    fmt.Sprintf("judgment references unknown scenario id %q", j.ScenarioID),
			})
		}
	}
	e.logResult("I2", violations)
	return violations
}

// CheckRiskWeights asserts I3: combined_risk weights form a convex
// combination (non-negative, summing to 1).
func (e *Engine) CheckRiskWeights(w canon.RiskWeights) []Violation {
	var violations []Violation
	if w.Rule < 0 || w.LLM < 0 {
		violations = append(violations, Violation{Invariant: "I3", Detail: "risk weights must be non-negative"})
	}
	const epsilon = 1e-9
	if sum := w.Rule + w.LLM; sum < 1-epsilon || sum > 1+epsilon {
		violations = append(violations, Violation{
			Invariant: "I3",
			Detail:    fmt.Sprintf("risk weights must sum to 1, got %.6f", sum),
		})
	}
	e.logResult("I3", violations)
	return violations
}

// CheckPredictionHistory asserts I4: the append-only prediction log's hash
// chain is intact, i.e. no entry was rewritten after the fact.
func (e *Engine) CheckPredictionHistory(records []canon.PredictionRecord) []Violation {
	if valid, brokenAt := tracker.VerifyRecords(records); !valid {
		v := []Violation{{
			Invariant: "I4",
			Detail:    fmt.Sprintf("hash chain broken at record index %d", brokenAt),
		}}
		e.logResult("I4", v)
		return v
	}
	e.logResult("I4", nil)
	return nil
}

// CheckGeneratedProvenance asserts I5: every auto-generated scenario
// carries a pointer to the FailurePattern that spawned it.
func (e *Engine) CheckGeneratedProvenance(generated []canon.Scenario) []Violation {
	var violations []Violation
	for _, sc := range generated {
		if sc.GeneratedFrom == "" {
			violations = append(violations, Violation{
				Invariant: "I5",
				Detail:    fmt.Sprintf("generated scenario %q has no provenance fingerprint", sc.ID),
			})
		}
	}
	e.logResult("I5", violations)
	return violations
}

func (e *Engine) logResult(invariant string, violations []Violation) {
	if len(violations) == 0 {
		e.logger.Debug("invariant check passed", "invariant", invariant)
		return
	}
	for _, v := range violations {
		e.logger.Error("invariant violated", "invariant", v.Invariant, "detail", v.Detail)
	}
}
