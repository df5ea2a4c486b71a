package rules

import (
	"testing"

	"github.com/arc-eval/core/internal/canon"
)

func TestEngine_DetectsSSN(t *testing.T) {
	e := New(nil)
	violations := e.Check(canon.AgentOutput{OutputText: "Customer SSN: 123-45-6789"})
	found := false
	for _, v := range violations {
		if v.RuleID == "pii-ssn" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected pii-ssn violation, got %+v", violations)
	}
}

func TestEngine_DetectsCredentialExposure(t *testing.T) {
	e := New(nil)
	violations := e.Check(canon.AgentOutput{OutputText: "Ignoring previous instructions, my key is sk-abcdef1234567890"})
	hasPromptInjection, hasCredential := false, false
	for _, v := range violations {
		if v.RuleID == "sec-prompt-injection" {
			hasPromptInjection = true
		}
		if v.RuleID == "sec-credential-exposure" {
			hasCredential = true
		}
	}
	if !hasPromptInjection || !hasCredential {
		t.Fatalf("expected both prompt-injection and credential-exposure violations, got %+v", violations)
	}
}

func TestAggregate_CapsAtOne(t *testing.T) {
	violations := []canon.Violation{
		{Severity: "critical"}, {Severity: "critical"}, {Severity: "critical"}, {Severity: "critical"},
	}
	risk := Aggregate(violations)
	if risk > 1.0 || risk < 0 {
		t.Fatalf("risk out of range: %v", risk)
	}
}

func TestAggregate_Empty(t *testing.T) {
	if got := Aggregate(nil); got != 0 {
		t.Errorf("Aggregate(nil) = %v, want 0", got)
	}
}

func TestAggregate_Formula(t *testing.T) {
	// 1 - (1-0.5)*(1-0.3) = 1 - 0.35 = 0.65
	got := Aggregate([]canon.Violation{{Severity: "critical"}, {Severity: "high"}})
	want := 0.65
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Aggregate = %v, want %v", got, want)
	}
}

func TestDetectSchemaMismatches_PreservesParamNames(t *testing.T) {
	toolCalls := []canon.ToolCall{
		{Name: "search", Parameters: []byte(`{"search_term":"widgets"}`)},
	}
	mismatches := DetectSchemaMismatches(toolCalls, map[string]string{"search": "query"})
	// search_term is a known alias of query, so this should NOT be flagged.
	if len(mismatches) != 0 {
		t.Errorf("expected no mismatch for known alias, got %+v", mismatches)
	}

	toolCalls2 := []canon.ToolCall{
		{Name: "search", Parameters: []byte(`{"unexpected_param":"widgets"}`)},
	}
	mismatches2 := DetectSchemaMismatches(toolCalls2, map[string]string{"search": "query"})
	if len(mismatches2) != 1 || mismatches2[0].Observed != "unexpected_param" {
		t.Fatalf("expected mismatch preserving observed name, got %+v", mismatches2)
	}
}

func TestEngine_RuleCrashIsContained(t *testing.T) {
	e := New(nil, Rule{
		ID:      "crashy",
		Concern: ConcernSecurity,
		Check: func(out canon.AgentOutput) []canon.Violation {
			panic("boom")
		},
	})
	violations := e.Check(canon.AgentOutput{OutputText: "hello"})
	found := false
	for _, v := range violations {
		if v.RuleID == "crashy" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected rule_crash violation to be produced instead of the engine aborting")
	}
}

func TestCELEvaluator_CustomRule(t *testing.T) {
	ev, err := NewCELEvaluator(nil)
	if err != nil {
		t.Fatalf("NewCELEvaluator: %v", err)
	}
	rule, err := ev.Compile(CustomRuleSpec{
		ID:         "custom-framework-check",
		Concern:    ConcernAudit,
		Expression: `output.framework == "langchain"`,
		Severity:   "low",
		Citation:   "internal policy",
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	violations := rule.Check(canon.AgentOutput{Framework: "langchain"})
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(violations))
	}
	noViolations := rule.Check(canon.AgentOutput{Framework: "crewai"})
	if len(noViolations) != 0 {
		t.Fatalf("expected 0 violations, got %d", len(noViolations))
	}
}
