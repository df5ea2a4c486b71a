package judge

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/arc-eval/core/internal/canon"
	"github.com/arc-eval/core/internal/cost"
)

type fakeClient struct {
	calls    int64
	response func(model string) (Completion, error)
}

func (f *fakeClient) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (Completion, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.response != nil {
		return f.response(model)
	}
	return Completion{Text: `{"decision":"pass","confidence":0.9,"reasoning":"fine"}`}, nil
}

func testScenario(id string, severity canon.Severity) canon.Scenario {
	return canon.Scenario{ID: id, Severity: severity, ExpectedBehavior: "refuse", FailureIndicators: []string{"leak"}}
}

func TestRuntime_PreservesOrder(t *testing.T) {
	client := &fakeClient{response: func(model string) (Completion, error) {
		return Completion{Text: `{"decision":"pass","confidence":0.7,"reasoning":"ok"}`}, nil
	}}
	policy := DefaultModelPolicy()
	rt := NewRuntime(client, policy, cost.NewBudget(0), nil)

	var pairs []Pair
	for i := 0; i < 20; i++ {
		pairs = append(pairs, Pair{Scenario: testScenario(fmt.Sprintf("s-%02d", i), canon.SeverityLow), Output: canon.AgentOutput{OutputText: "hi"}})
	}
	results := rt.EvaluatePairs(context.Background(), VariantML, pairs)
	if len(results) != len(pairs) {
		t.Fatalf("expected %d results, got %d", len(pairs), len(results))
	}
	for i, r := range results {
		if r.ScenarioID != pairs[i].Scenario.ID {
			t.Fatalf("order not preserved at index %d: expected %s got %s", i, pairs[i].Scenario.ID, r.ScenarioID)
		}
	}
}

func TestRuntime_CostCapRefusesCalls(t *testing.T) {
	client := &fakeClient{}
	policy := DefaultModelPolicy()
	budget := cost.NewBudget(0.0000001) // effectively nothing
	rt := NewRuntime(client, policy, budget, nil)

	pairs := []Pair{{Scenario: testScenario("s-1", canon.SeverityHigh), Output: canon.AgentOutput{OutputText: "hello"}}}
	results := rt.EvaluatePairs(context.Background(), VariantFinance, pairs)

	if results[0].Decision != canon.DecisionWarning {
		t.Fatalf("expected warning decision on cost cap breach, got %s", results[0].Decision)
	}
	found := false
	for _, e := range results[0].Evidence {
		if e == "cost_cap_exceeded" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected cost_cap_exceeded evidence, got %v", results[0].Evidence)
	}
	if atomic.LoadInt64(&client.calls) != 0 {
		t.Fatalf("expected no provider call once budget refused reservation")
	}
}

func TestRuntime_RetriesTransientThenSucceeds(t *testing.T) {
	attempt := int64(0)
	client := &fakeClient{response: func(model string) (Completion, error) {
		n := atomic.AddInt64(&attempt, 1)
		if n == 1 {
			return Completion{}, &transientError{fmt.Errorf("rate limited")}
		}
		return Completion{Text: `{"decision":"pass","confidence":0.8,"reasoning":"ok on retry"}`}, nil
	}}
	policy := DefaultModelPolicy()
	rt := NewRuntime(client, policy, cost.NewBudget(0), nil)
	pairs := []Pair{{Scenario: testScenario("s-1", canon.SeverityLow), Output: canon.AgentOutput{OutputText: "hi"}}}
	results := rt.EvaluatePairs(context.Background(), VariantML, pairs)
	if results[0].Decision != canon.DecisionPass {
		t.Fatalf("expected eventual pass after retry, got %s: %v", results[0].Decision, results[0])
	}
	if atomic.LoadInt64(&client.calls) != 2 {
		t.Fatalf("expected exactly 2 calls (1 failure + 1 retry), got %d", client.calls)
	}
}

func TestRuntime_NonTransientFailsFast(t *testing.T) {
	client := &fakeClient{response: func(model string) (Completion, error) {
		return Completion{}, fmt.Errorf("invalid api key")
	}}
	policy := DefaultModelPolicy()
	rt := NewRuntime(client, policy, cost.NewBudget(0), nil)
	pairs := []Pair{{Scenario: testScenario("s-1", canon.SeverityLow), Output: canon.AgentOutput{OutputText: "hi"}}}
	results := rt.EvaluatePairs(context.Background(), VariantML, pairs)
	if atomic.LoadInt64(&client.calls) != 1 {
		t.Fatalf("expected exactly 1 call for non-transient failure, got %d", client.calls)
	}
	if results[0].Decision != canon.DecisionWarning {
		t.Fatalf("expected warning decision on heuristic fallback, got %s", results[0].Decision)
	}
}

func TestReconcile_TieDowngradesToWarning(t *testing.T) {
	primary := &canon.Judgment{Decision: canon.DecisionPass, Confidence: 0.5}
	secondary := &canon.Judgment{Decision: canon.DecisionFail, Confidence: 0.5}
	summary := reconcile(primary, secondary)
	if primary.Decision != canon.DecisionWarning {
		t.Fatalf("expected tie to downgrade to warning, got %s", primary.Decision)
	}
	if summary.Verified {
		t.Fatalf("expected Verified=false on a tie")
	}
}

func TestReconcile_HigherConfidenceWins(t *testing.T) {
	primary := &canon.Judgment{Decision: canon.DecisionPass, Confidence: 0.4}
	secondary := &canon.Judgment{Decision: canon.DecisionFail, Confidence: 0.9, Reasoning: "found a leak"}
	summary := reconcile(primary, secondary)
	if primary.Decision != canon.DecisionFail {
		t.Fatalf("expected secondary's higher-confidence decision to win, got %s", primary.Decision)
	}
	if summary.Verified {
		t.Fatalf("expected Verified=false when overridden")
	}
}

func TestSelectModel_CriticalSeverityForcesAccurate(t *testing.T) {
	policy := DefaultModelPolicy()
	policy.FallbackModel = "gpt-4o"
	model := policy.SelectModel(3, canon.SeverityCritical)
	if model != "gpt-4o" {
		t.Fatalf("expected critical severity to force fallback model, got %s", model)
	}
}
