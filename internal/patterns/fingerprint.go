// Package patterns implements the Pattern Learner & Scenario Bank: it
// fingerprints recurring failures, counts occurrences, and promotes a
// fingerprint into an auto-generated Scenario once it crosses a
// threshold, closing the loop between observed failures and future test
// coverage.
package patterns

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/arc-eval/core/internal/canon"
)

// Observation is one failed judgment's normalized features, the raw
// material a fingerprint is derived from.
type Observation struct {
	Domain            string
	Framework         string
	FailureCategory   string
	FailureIndicators []string
	RootCauseTag      string
	Severity          canon.Severity
	CanonicalExample  string
}

// Fingerprint derives a stable hash over an Observation's normalized
// features: domain, framework, failure category, the top-N failure
// indicators (sorted so matching order doesn't matter), and a root-cause
// tag. Two failures with the same fingerprint are the "same pattern".
func Fingerprint(obs Observation, topN int) string {
	indicators := topNSorted(obs.FailureIndicators, topN)
	data := strings.Join([]string{
		obs.Domain,
		obs.Framework,
		obs.FailureCategory,
		strings.Join(indicators, ","),
		obs.RootCauseTag,
	}, "|")
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])[:16]
}

func topNSorted(indicators []string, n int) []string {
	if len(indicators) == 0 {
		return nil
	}
	sorted := make([]string, len(indicators))
	copy(sorted, indicators)
	sort.Strings(sorted)
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// RootCauseTag derives a coarse root-cause label from a judge's evidence
// list, used when the caller has no more specific classification. It
// takes the first evidence string, normalized, or "unspecified" when
// there is none.
func RootCauseTag(evidence []string) string {
	if len(evidence) == 0 {
		return "unspecified"
	}
	return strings.ToLower(strings.TrimSpace(evidence[0]))
}
