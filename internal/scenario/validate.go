package scenario

import (
	"fmt"

	"github.com/arc-eval/core/internal/canon"
)

var validSeverities = map[canon.Severity]bool{
	canon.SeverityCritical: true,
	canon.SeverityHigh:     true,
	canon.SeverityMedium:   true,
	canon.SeverityLow:      true,
}

var validTestTypes = map[canon.TestType]bool{
	canon.TestPositive: true,
	canon.TestNegative: true,
}

// Validate checks a pack's internal consistency: unique ids, non-empty
// failure indicators for negative tests, and severity/test_type enum
// conformance. Returns an error naming the specific scenario id and
// missing field on the first violation found.
func Validate(p *Pack) error {
	seen := make(map[string]bool, len(p.Scenarios))
	for _, sc := range p.Scenarios {
		if sc.ID == "" {
			return fmt.Errorf("scenario missing id (name=%q)", sc.Name)
		}
		if seen[sc.ID] {
			return fmt.Errorf("scenario %q: duplicate id within pack", sc.ID)
		}
		seen[sc.ID] = true

		if !validSeverities[sc.Severity] {
			return fmt.Errorf("scenario %q: invalid severity %q", sc.ID, sc.Severity)
		}
		if !validTestTypes[sc.TestType] {
			return fmt.Errorf("scenario %q: invalid test_type %q", sc.ID, sc.TestType)
		}
		if sc.TestType == canon.TestNegative && len(sc.FailureIndicators) == 0 {
			return fmt.Errorf("scenario %q: negative test requires non-empty failure_indicators", sc.ID)
		}
	}
	return nil
}
