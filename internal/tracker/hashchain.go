package tracker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/arc-eval/core/internal/canon"
)

// computeHash hashes a PredictionRecord chained to the previous entry's
// hash, the same chaining shape the trace store uses for tamper-evident
// action logs.
func computeHash(r *canon.PredictionRecord) string {
	data := fmt.Sprintf("%s|%d|%s|%s|%.6f|%s|%s",
		r.PredictionID,
		r.Sequence,
		r.Domain,
		r.Framework,
		r.RiskScore,
		r.CorrectsID,
		r.PrevHash,
	)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// verifyChain checks hash integrity across an ordered slice of records.
// Returns (valid, brokenAtIndex); brokenAtIndex is -1 when valid.
func verifyChain(records []canon.PredictionRecord) (bool, int) {
	for i, r := range records {
		if computeHash(&r) != r.Hash {
			return false, i
		}
		if i > 0 && r.PrevHash != records[i-1].Hash {
			return false, i
		}
	}
	return true, -1
}

// VerifyRecords is the exported form of verifyChain, used by internal/safety
// to assert I4 (append-only logs never rewrite history) without the caller
// needing a live Tracker.
func VerifyRecords(records []canon.PredictionRecord) (bool, int) {
	return verifyChain(records)
}
