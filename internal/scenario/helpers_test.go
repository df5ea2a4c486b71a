package scenario

import "github.com/arc-eval/core/internal/canon"

func canonScenario(id, domain, generatedFrom string) canon.Scenario {
	return canon.Scenario{
		ID:                id,
		Name:              "generated",
		Domain:            domain,
		Severity:          canon.SeverityHigh,
		TestType:          canon.TestNegative,
		Compliance:        []string{},
		FailureIndicators: []string{"generated"},
		GeneratedFrom:     generatedFrom,
	}
}
