package patterns

import (
	"math"

	"github.com/arc-eval/core/internal/canon"
)

// SimilarityWarning flags a newly observed pattern whose failure-indicator
// distribution is nearly identical to an already-tracked pattern's, even
// though the two hash to different fingerprints (e.g. one extra or
// reordered indicator). Fingerprint equality is the primary dedup
// mechanism (see Bank.Record); this is a softer signal surfaced to a
// human curating the bank, not an automatic merge.
type SimilarityWarning struct {
	Fingerprint  string
	SimilarTo    string
	KLDivergence float64
}

// DetectNearDuplicates compares a candidate observation's indicator
// distribution against every tracked pattern in the same domain, using
// KL-divergence over Laplace-smoothed indicator-presence distributions.
// Divergence near zero means the two failures look the same to a human
// even though they didn't fingerprint identically.
func DetectNearDuplicates(candidate Observation, tracked []canon.FailurePattern, threshold float64) []SimilarityWarning {
	candidateDist := indicatorDistribution(candidate.FailureIndicators)
	var warnings []SimilarityWarning
	for _, p := range tracked {
		if p.Domain != candidate.Domain {
			continue
		}
		existingDist := indicatorDistribution(p.FailureIndicators)
		div := klDivergence(candidateDist, existingDist, allKeys(candidateDist, existingDist))
		if div <= threshold {
			warnings = append(warnings, SimilarityWarning{
				Fingerprint:  Fingerprint(candidate, len(candidate.FailureIndicators)),
				SimilarTo:    p.Fingerprint,
				KLDivergence: div,
			})
		}
	}
	return warnings
}

func indicatorDistribution(indicators []string) map[string]int {
	counts := make(map[string]int, len(indicators))
	for _, ind := range indicators {
		counts[ind]++
	}
	return counts
}

func allKeys(a, b map[string]int) map[string]struct{} {
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	return keys
}

// klDivergence computes D_KL(P || Q) over Laplace-smoothed (add-one)
// distributions built from raw indicator counts, the same smoothing and
// divergence shape used to compare agent action-type distributions
// elsewhere.
func klDivergence(pCounts, qCounts map[string]int, keys map[string]struct{}) float64 {
	const epsilon = 1.0
	n := float64(len(keys))

	pTotal, qTotal := 0, 0
	for _, c := range pCounts {
		pTotal += c
	}
	for _, c := range qCounts {
		qTotal += c
	}

	pSmoothTotal := float64(pTotal) + epsilon*n
	qSmoothTotal := float64(qTotal) + epsilon*n

	var kl float64
	for k := range keys {
		px := (float64(pCounts[k]) + epsilon) / pSmoothTotal
		qx := (float64(qCounts[k]) + epsilon) / qSmoothTotal
		if px > 0 {
			kl += px * math.Log(px/qx)
		}
	}
	return kl
}
