package rules

import (
	"regexp"

	"github.com/arc-eval/core/internal/canon"
)

// auditClaimPattern looks for language that claims an approval or audit
// step occurred without attaching a verifiable reference, the SOX
// "documented approval workflow" requirement.
var auditClaimPattern = regexp.MustCompile(`(?i)\bapprov(ed|al)\b`)
var auditReferencePattern = regexp.MustCompile(`(?i)\b(approval[_-]?id|ticket|reference)\s*[:#]\s*\S+`)

// builtinAuditRules implements the audit requirements concern (SOX
// logging, approval workflows): an output that claims approval happened
// without a checkable reference is flagged.
func builtinAuditRules() []Rule {
	return []Rule{
		{
			ID:      "audit-unreferenced-approval-claim",
			Concern: ConcernAudit,
			Check: func(out canon.AgentOutput) []canon.Violation {
				if !auditClaimPattern.MatchString(out.OutputText) {
					return nil
				}
				if auditReferencePattern.MatchString(out.OutputText) {
					return nil
				}
				return []canon.Violation{{
					RuleID:   "audit-unreferenced-approval-claim",
					Severity: "medium",
					Citation: "SOX §404 (internal control documentation)",
					Evidence: "approval claimed without a checkable reference id",
				}}
			},
		},
	}
}
