package predictor

import (
	"context"
	"testing"

	"github.com/arc-eval/core/internal/canon"
	"github.com/arc-eval/core/internal/judge"
	"github.com/arc-eval/core/internal/rules"
)

type fakeClient struct {
	text string
	err  error
}

func (f *fakeClient) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (judge.Completion, error) {
	if f.err != nil {
		return judge.Completion{}, f.err
	}
	return judge.Completion{Text: f.text}, nil
}

func TestPredict_CombinesRuleAndLLMRisk(t *testing.T) {
	engine := rules.New(nil)
	client := &fakeClient{text: `{"decision":"fail","confidence":0.8,"reasoning":"pattern of unhandled tool errors"}`}
	p := New(engine, client, "gpt-4o-mini", canon.DefaultRiskWeights(), nil)

	out := canon.AgentOutput{OutputText: "transaction approved without verification"}
	pred := p.Predict(context.Background(), out, ReliabilityFeatures{Framework: "langchain", ToolCallAccuracy: 0.6, ErrorRecoveryRate: 0.3, SampleSize: 25})

	if pred.CombinedRisk != canon.DefaultRiskWeights().Rule*pred.RuleRisk+canon.DefaultRiskWeights().LLM*pred.LLMRisk {
		t.Fatalf("combined risk does not match convex combination: %+v", pred)
	}
	if pred.RiskLevel == "" {
		t.Fatal("expected a non-empty risk level")
	}
}

func TestPredict_SampleSizeSaturatesConfidence(t *testing.T) {
	engine := rules.New(nil)
	client := &fakeClient{text: `{"decision":"pass","confidence":0.9,"reasoning":"fine"}`}
	p := New(engine, client, "gpt-4o-mini", canon.DefaultRiskWeights(), nil)

	small := p.Predict(context.Background(), canon.AgentOutput{OutputText: "ok"}, ReliabilityFeatures{SampleSize: 1})
	large := p.Predict(context.Background(), canon.AgentOutput{OutputText: "ok"}, ReliabilityFeatures{SampleSize: 25})

	if large.Confidence <= small.Confidence {
		t.Fatalf("expected larger sample size to yield higher confidence: small=%v large=%v", small.Confidence, large.Confidence)
	}
}

func TestPredict_LLMFailureFallsBackGracefully(t *testing.T) {
	engine := rules.New(nil)
	client := &fakeClient{err: context.DeadlineExceeded}
	p := New(engine, client, "gpt-4o-mini", canon.DefaultRiskWeights(), nil)

	pred := p.Predict(context.Background(), canon.AgentOutput{OutputText: "ok"}, ReliabilityFeatures{SampleSize: 5})
	if pred.LLMRisk != 0 {
		t.Fatalf("expected zero llm risk on failure, got %v", pred.LLMRisk)
	}
}

func TestBusinessImpact_OnlyReportedForHighRisk(t *testing.T) {
	engine := rules.New(nil)
	client := &fakeClient{text: `{"decision":"pass","confidence":0.9,"reasoning":"fine"}`}
	p := New(engine, client, "gpt-4o-mini", canon.DefaultRiskWeights(), nil)

	pred := p.Predict(context.Background(), canon.AgentOutput{OutputText: "ok"}, ReliabilityFeatures{SampleSize: 25, ErrorRecoveryRate: 0.9})
	if pred.RiskLevel != canon.RiskHigh && pred.BusinessImpact != (canon.BusinessImpact{}) {
		t.Fatalf("expected empty business impact for non-HIGH risk, got %+v", pred.BusinessImpact)
	}
}
