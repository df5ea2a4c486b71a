package orchestrator

import (
	"log/slog"
	"sync"
	"time"
)

// CancelRecord logs why and when a run was cancelled.
type CancelRecord struct {
	EvaluationID string    `json:"evaluation_id"`
	Reason       string    `json:"reason"`
	Timestamp    time.Time `json:"timestamp"`
}

// CancelSwitch is a per-run emergency stop keyed by evaluation id.
// Orchestrator.Evaluate checks it once, before it hands all of the run's
// pairs to the Judge Runtime in a single EvaluatePairs call; a cancel
// requested after that point does not stop the run, and an aborted
// report carries no judgments.
type CancelSwitch struct {
	mu        sync.RWMutex
	cancelled map[string]CancelRecord
	history   []CancelRecord
	logger    *slog.Logger
}

// NewCancelSwitch builds a CancelSwitch.
func NewCancelSwitch(logger *slog.Logger) *CancelSwitch {
	if logger == nil {
		logger = slog.Default()
	}
	return &CancelSwitch{
		cancelled: make(map[string]CancelRecord),
		logger:    logger.With("component", "orchestrator.CancelSwitch"),
	}
}

// Cancel marks evaluationID as cancelled (see CancelSwitch for when the
// mark is checked).
func (c *CancelSwitch) Cancel(evaluationID, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record := CancelRecord{EvaluationID: evaluationID, Reason: reason, Timestamp: time.Now()}
	c.cancelled[evaluationID] = record
	c.history = append(c.history, record)
	c.logger.Warn("evaluation run cancelled", "evaluation_id", evaluationID, "reason", reason)
}

// IsCancelled reports whether evaluationID has been cancelled.
func (c *CancelSwitch) IsCancelled(evaluationID string) (bool, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if record, ok := c.cancelled[evaluationID]; ok {
		return true, record.Reason
	}
	return false, ""
}

// Reset clears the cancellation record for evaluationID, allowing its id
// to be reused (evaluation ids are ulids and effectively never repeat, so
// this mainly supports tests).
func (c *CancelSwitch) Reset(evaluationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cancelled, evaluationID)
}
