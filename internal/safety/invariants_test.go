package safety

import (
	"testing"

	"github.com/arc-eval/core/internal/canon"
	"github.com/arc-eval/core/internal/tracker"
)

func TestCheckScenarioIDs_FlagsDuplicateWithinDomain(t *testing.T) {
	e := NewEngine(nil)
	scenarios := []canon.Scenario{
		{ID: "fin-001", Domain: "finance"},
		{ID: "fin-001", Domain: "finance"},
		{ID: "fin-001", Domain: "security"}, // different domain, not a duplicate
	}
	violations := e.CheckScenarioIDs(scenarios)
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %+v", len(violations), violations)
	}
	if violations[0].Invariant != "I1" {
		t.Errorf("invariant tag = %q, want I1", violations[0].Invariant)
	}
}

func TestCheckJudgmentsReferenceScenarios_FlagsUnknownID(t *testing.T) {
	e := NewEngine(nil)
	scenarios := []canon.Scenario{{ID: "fin-001"}}
	judgments := []canon.Judgment{
		{ScenarioID: "fin-001"},
		{ScenarioID: "fin-999"},
	}
	violations := e.CheckJudgmentsReferenceScenarios(scenarios, judgments)
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(violations))
	}
}

func TestCheckRiskWeights_RejectsNonConvexCombination(t *testing.T) {
	e := NewEngine(nil)
	if v := e.CheckRiskWeights(canon.RiskWeights{Rule: 0.4, LLM: 0.6}); len(v) != 0 {
		t.Fatalf("expected valid convex combination to pass, got %+v", v)
	}
	if v := e.CheckRiskWeights(canon.RiskWeights{Rule: 0.5, LLM: 0.6}); len(v) == 0 {
		t.Fatal("expected weights summing to 1.1 to fail")
	}
	if v := e.CheckRiskWeights(canon.RiskWeights{Rule: -0.1, LLM: 1.1}); len(v) == 0 {
		t.Fatal("expected negative weight to fail")
	}
}

func TestCheckPredictionHistory_DetectsBrokenChain(t *testing.T) {
	e := NewEngine(nil)

	tr, err := tracker.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("open tracker: %v", err)
	}
	defer tr.Close()
	if _, err := tr.Log(canon.RiskPrediction{CombinedRisk: 0.3, RiskLevel: canon.RiskLow}, "cfg-hash", "langchain", "finance"); err != nil {
		t.Fatalf("log prediction: %v", err)
	}

	good, err := tr.Records()
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if v := e.CheckPredictionHistory(good); len(v) != 0 {
		t.Fatalf("expected intact chain to pass, got %+v", v)
	}

	tampered := make([]canon.PredictionRecord, len(good))
	copy(tampered, good)
	tampered[0].RiskScore = 0.99 // mutate after hashing
	if v := e.CheckPredictionHistory(tampered); len(v) == 0 {
		t.Fatal("expected tampered record to fail I4")
	}
}

func TestCheckGeneratedProvenance_RequiresFingerprint(t *testing.T) {
	e := NewEngine(nil)
	ok := []canon.Scenario{{ID: "gen-1", GeneratedFrom: "fp-abc"}}
	if v := e.CheckGeneratedProvenance(ok); len(v) != 0 {
		t.Fatalf("expected scenario with provenance to pass, got %+v", v)
	}

	missing := []canon.Scenario{{ID: "gen-2"}}
	if v := e.CheckGeneratedProvenance(missing); len(v) != 1 {
		t.Fatalf("expected missing provenance to fail I5, got %+v", v)
	}
}
