package tracker

import (
	"testing"

	"github.com/arc-eval/core/internal/canon"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	dir := t.TempDir()
	tr, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestTracker_LogAndRecordOutcome(t *testing.T) {
	tr := newTestTracker(t)

	id, err := tr.Log(canon.RiskPrediction{CombinedRisk: 0.8, RiskLevel: canon.RiskHigh, Confidence: 0.9}, "cfg-hash", "langchain", "finance")
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty prediction id")
	}

	failed := true
	_, err = tr.RecordOutcome(id, canon.PredictionOutcome{Failed: &failed}, false)
	if err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
}

func TestTracker_RejectsDuplicateOutcomeWithoutOverride(t *testing.T) {
	tr := newTestTracker(t)
	id, _ := tr.Log(canon.RiskPrediction{CombinedRisk: 0.2, RiskLevel: canon.RiskLow, Confidence: 0.7}, "cfg", "crewai", "security")
	failed := false
	if _, err := tr.RecordOutcome(id, canon.PredictionOutcome{Failed: &failed}, false); err != nil {
		t.Fatalf("first RecordOutcome should succeed: %v", err)
	}
	if _, err := tr.RecordOutcome(id, canon.PredictionOutcome{Failed: &failed}, false); err == nil {
		t.Fatal("expected second RecordOutcome without override to be rejected")
	}
	if _, err := tr.RecordOutcome(id, canon.PredictionOutcome{Failed: &failed}, true); err != nil {
		t.Fatalf("RecordOutcome with override should succeed: %v", err)
	}
}

func TestTracker_AccuracyComputesConfusionMatrix(t *testing.T) {
	tr := newTestTracker(t)

	cases := []struct {
		level  canon.RiskLevel
		failed bool
	}{
		{canon.RiskHigh, true},
		{canon.RiskHigh, false},
		{canon.RiskLow, false},
		{canon.RiskLow, true},
	}
	for _, c := range cases {
		id, err := tr.Log(canon.RiskPrediction{CombinedRisk: 0.5, RiskLevel: c.level, Confidence: 0.8}, "cfg", "autogen", "ml")
		if err != nil {
			t.Fatalf("Log: %v", err)
		}
		failed := c.failed
		if _, err := tr.RecordOutcome(id, canon.PredictionOutcome{Failed: &failed}, false); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}

	report, err := tr.Accuracy(30)
	if err != nil {
		t.Fatalf("Accuracy: %v", err)
	}
	if report.N != 4 {
		t.Fatalf("expected n=4, got %d", report.N)
	}
	if report.ConfusionMatrix["true_positive"] != 1 || report.ConfusionMatrix["false_positive"] != 1 || report.ConfusionMatrix["false_negative"] != 1 || report.ConfusionMatrix["true_negative"] != 1 {
		t.Fatalf("unexpected confusion matrix: %+v", report.ConfusionMatrix)
	}
}

func TestTracker_VerifyIntegrityDetectsTamper(t *testing.T) {
	tr := newTestTracker(t)
	if _, err := tr.Log(canon.RiskPrediction{CombinedRisk: 0.3, RiskLevel: canon.RiskLow, Confidence: 0.6}, "cfg", "langchain", "finance"); err != nil {
		t.Fatalf("Log: %v", err)
	}
	valid, broken, err := tr.VerifyIntegrity()
	if err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
	if !valid || broken != -1 {
		t.Fatalf("expected a freshly written chain to be valid, got valid=%v broken=%d", valid, broken)
	}
}

func TestTracker_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	tr, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, err := tr.Log(canon.RiskPrediction{CombinedRisk: 0.6, RiskLevel: canon.RiskMedium, Confidence: 0.75}, "cfg", "langchain", "finance")
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	tr.Close()

	reopened, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	failed := true
	if _, err := reopened.RecordOutcome(id, canon.PredictionOutcome{Failed: &failed}, false); err != nil {
		t.Fatalf("RecordOutcome after reopen: %v", err)
	}
}
