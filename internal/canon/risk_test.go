package canon

import "testing"

func TestRiskWeights_Combine(t *testing.T) {
	w := DefaultRiskWeights()
	if w.Rule+w.LLM != 1.0 {
		t.Fatalf("weights not convex: %+v", w)
	}

	got := w.Combine(0.5, 0.5)
	if got != 0.5 {
		t.Errorf("combine(0.5, 0.5) = %v, want 0.5", got)
	}
}

func TestRiskLevelFor_Monotone(t *testing.T) {
	cases := []struct {
		risk float64
		want RiskLevel
	}{
		{0.0, RiskLow},
		{0.39, RiskLow},
		{0.4, RiskMedium},
		{0.7, RiskMedium},
		{0.71, RiskHigh},
		{1.0, RiskHigh},
	}
	prevRank := -1
	rank := map[RiskLevel]int{RiskLow: 0, RiskMedium: 1, RiskHigh: 2}
	for _, c := range cases {
		got := RiskLevelFor(c.risk)
		if got != c.want {
			t.Errorf("RiskLevelFor(%v) = %s, want %s", c.risk, got, c.want)
		}
		if rank[got] < prevRank {
			t.Errorf("risk level mapping not monotone at %v", c.risk)
		}
		prevRank = rank[got]
	}
}

func TestSeverity_Rank(t *testing.T) {
	if SeverityCritical.Rank() >= SeverityHigh.Rank() {
		t.Fatal("critical must rank before high")
	}
	if SeverityHigh.Rank() >= SeverityMedium.Rank() {
		t.Fatal("high must rank before medium")
	}
	if SeverityMedium.Rank() >= SeverityLow.Rank() {
		t.Fatal("medium must rank before low")
	}
}
