// Package rules implements the Compliance Rule Engine: deterministic,
// pure-function checks over canonical agent outputs for regulatory
// obligations independent of any LLM.
package rules

import (
	"fmt"
	"log/slog"

	"github.com/arc-eval/core/internal/canon"
)

// Concern groups related rules under one regulatory theme.
type Concern string

const (
	ConcernPII         Concern = "pii_protection"
	ConcernSecurity    Concern = "security_controls"
	ConcernAudit       Concern = "audit_requirements"
	ConcernDataHandling Concern = "data_handling"
)

// severityWeight maps a Violation severity to the weight used by
// aggregate().
var severityWeight = map[string]float64{
	"critical": 0.5,
	"high":     0.3,
	"medium":   0.15,
	"low":      0.05,
}

// Rule is a pure, deterministic function over a canonical agent output:
// same input always yields the same violations, no network access.
type Rule struct {
	ID      string
	Concern Concern
	Check   func(out canon.AgentOutput) []canon.Violation
}

// Engine evaluates the registered rule set against canonical inputs.
// Safe for concurrent use: rules are pure functions with no shared
// mutable state.
type Engine struct {
	logger *slog.Logger
	rules  []Rule
}

// New constructs an Engine with the built-in PII, security, audit, and
// data-handling rules, plus any additional CEL-backed custom rules.
func New(logger *slog.Logger, custom ...Rule) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{logger: logger.With("component", "rules.Engine")}
	e.rules = append(e.rules, builtinPIIRules()...)
	e.rules = append(e.rules, builtinSecurityRules()...)
	e.rules = append(e.rules, builtinAuditRules()...)
	e.rules = append(e.rules, builtinDataHandlingRules()...)
	e.rules = append(e.rules, custom...)
	return e
}

// Check runs every registered rule against out and returns the union of
// violations found. A panicking rule is contained: it produces a
// rule_crash violation instead of aborting the engine.
func (e *Engine) Check(out canon.AgentOutput) []canon.Violation {
	var violations []canon.Violation
	for _, r := range e.rules {
		violations = append(violations, e.runContained(r, out)...)
	}
	return violations
}

func (e *Engine) runContained(r Rule, out canon.AgentOutput) (violations []canon.Violation) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("rule panicked", "rule_id", r.ID, "recover", rec)
			violations = []canon.Violation{{
				RuleID:   r.ID,
				Severity: "medium",
				Citation: "internal",
				Evidence: fmt.Sprintf("rule_crash: %v", rec),
			}}
		}
	}()
	return r.Check(out)
}

// Aggregate computes rule_risk from a violation list:
// 1 - ∏(1 - severity_weight(v)), capped at 1.
func Aggregate(violations []canon.Violation) float64 {
	product := 1.0
	for _, v := range violations {
		w := severityWeight[v.Severity]
		product *= 1 - w
	}
	risk := 1 - product
	if risk > 1 {
		risk = 1
	}
	if risk < 0 {
		risk = 0
	}
	return risk
}
