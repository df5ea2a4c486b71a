package canon

// RiskWeights holds the convex-combination weights for combining rule and
// LLM risk into combined_risk. Enforced convex (sum to 1) at config load.
type RiskWeights struct {
	Rule float64
	LLM  float64
}

// DefaultRiskWeights matches spec defaults: rule_risk weighted 0.4, LLM
// risk weighted 0.6.
func DefaultRiskWeights() RiskWeights {
	return RiskWeights{Rule: 0.4, LLM: 0.6}
}

// Combine produces combined_risk as a convex combination of rule and LLM
// risk under w.
func (w RiskWeights) Combine(ruleRisk, llmRisk float64) float64 {
	return w.Rule*ruleRisk + w.LLM*llmRisk
}

// RiskLevelFor maps a combined_risk value to a RiskLevel. The mapping is
// monotone non-decreasing in combinedRisk: <0.4 LOW, [0.4,0.7] MEDIUM,
// >0.7 HIGH.
func RiskLevelFor(combinedRisk float64) RiskLevel {
	switch {
	case combinedRisk > 0.7:
		return RiskHigh
	case combinedRisk >= 0.4:
		return RiskMedium
	default:
		return RiskLow
	}
}
