// Package tracker implements the Prediction Tracker & Feedback Collector:
// an append-only, hash-chained log of risk predictions plus outcome
// labels, with accuracy queries backed by a rebuildable SQLite index and
// trend queries read from the log itself.
package tracker

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/arc-eval/core/internal/canon"
)

// Tracker is the process-wide prediction log for one working directory.
type Tracker struct {
	log    *jsonlLog
	index  *sqliteIndex
	logger *slog.Logger
}

// Open initializes the tracker rooted at workingDir, replaying the
// existing JSONL log if present. Call Close when the run ends to close
// the SQLite index; the log's file lock is taken and released by each
// append.
func Open(workingDir string, logger *slog.Logger) (*Tracker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	jl, err := newJSONLLog(filepath.Join(workingDir, "predictions.jsonl"))
	if err != nil {
		return nil, err
	}
	idx, err := newSQLiteIndex(filepath.Join(workingDir, "predictions_index.db"))
	if err != nil {
		return nil, err
	}
	t := &Tracker{log: jl, index: idx, logger: logger.With("component", "tracker.Tracker")}

	records, err := jl.readAll()
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if err := idx.upsert(r); err != nil {
			t.logger.Warn("failed to rebuild index entry", "prediction_id", r.PredictionID, "error", err)
		}
	}
	return t, nil
}

// Close flushes the secondary index. The JSONL log is always durable on
// disk; there is nothing else to flush.
func (t *Tracker) Close() error {
	return t.index.close()
}

// Log appends a new prediction derived from a RiskPrediction and returns
// its generated prediction_id.
func (t *Tracker) Log(prediction canon.RiskPrediction, agentConfigHash, framework, domain string) (string, error) {
	rec := canon.PredictionRecord{
		PredictionID:    ulid.Make().String(),
		Timestamp:       time.Now(),
		AgentConfigHash: agentConfigHash,
		Framework:       framework,
		Domain:          domain,
		RiskScore:       prediction.CombinedRisk,
		RiskLevel:       prediction.RiskLevel,
		Confidence:      prediction.Confidence,
	}
	written, err := t.log.append(rec)
	if err != nil {
		return "", err
	}
	if err := t.index.upsert(written); err != nil {
		t.logger.Warn("failed to index new prediction", "prediction_id", written.PredictionID, "error", err)
	}
	return written.PredictionID, nil
}

// RecordOutcome attaches ground truth to a previously logged prediction.
// If the prediction already has an outcome, RecordOutcome rejects the
// call unless override is set, in which case a new correction record is
// appended referencing the prior id, keeping the log append-only.
func (t *Tracker) RecordOutcome(predictionID string, outcome canon.PredictionOutcome, override bool) (string, error) {
	records, err := t.log.readAll()
	if err != nil {
		return "", err
	}
	existing, found := byPredictionID(records, predictionID)
	if !found {
		return "", fmt.Errorf("tracker: no prediction with id %s", predictionID)
	}
	if existing.Outcome != nil && !override {
		return "", fmt.Errorf("tracker: prediction %s already has an outcome; pass override to correct it", predictionID)
	}

	now := time.Now()
	correction := existing
	correction.PredictionID = ulid.Make().String()
	correction.CorrectsID = predictionID
	correction.Outcome = &outcome
	correction.FeedbackAt = &now
	correction.Sequence = 0 // assigned by append
	correction.PrevHash = ""
	correction.Hash = ""

	written, err := t.log.append(correction)
	if err != nil {
		return "", err
	}
	if err := t.index.upsert(written); err != nil {
		t.logger.Warn("failed to index correction", "prediction_id", written.PredictionID, "error", err)
	}
	return written.PredictionID, nil
}

// AccuracyReport is the result of accuracy(window_days).
type AccuracyReport struct {
	F1               float64        `json:"f1"`
	Precision        float64        `json:"precision"`
	Recall           float64        `json:"recall"`
	ConfusionMatrix  map[string]int `json:"confusion_matrix"`
	N                int            `json:"n"`
}

// Accuracy computes precision/recall/F1 treating a MEDIUM or HIGH risk
// prediction as "predicted failure" and comparing against outcome.Failed,
// over predictions from the last windowDays days.
func (t *Tracker) Accuracy(windowDays int) (AccuracyReport, error) {
	since := time.Now().AddDate(0, 0, -windowDays)
	rows, err := t.index.rowsSince(since)
	if err != nil {
		return AccuracyReport{}, err
	}

	var tp, fp, tn, fn int
	for _, r := range rows {
		if !r.outcomeFailed.Valid {
			continue
		}
		predictedFail := r.riskLevel == string(canon.RiskMedium) || r.riskLevel == string(canon.RiskHigh)
		actualFail := r.outcomeFailed.Bool
		switch {
		case predictedFail && actualFail:
			tp++
		case predictedFail && !actualFail:
			fp++
		case !predictedFail && actualFail:
			fn++
		default:
			tn++
		}
	}

	precision := safeDiv(float64(tp), float64(tp+fp))
	recall := safeDiv(float64(tp), float64(tp+fn))
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	return AccuracyReport{
		F1:        f1,
		Precision: precision,
		Recall:    recall,
		ConfusionMatrix: map[string]int{
			"true_positive":  tp,
			"false_positive": fp,
			"true_negative":  tn,
			"false_negative": fn,
		},
		N: tp + fp + tn + fn,
	}, nil
}

// TrendPoint is one weekly bucket in a trend series.
type TrendPoint struct {
	WeekStart time.Time `json:"week_start"`
	N         int       `json:"n"`
	F1        float64   `json:"f1"`
}

// Trend computes a weekly accuracy series over the full log history.
func (t *Tracker) Trend() ([]TrendPoint, error) {
	records, err := t.log.readAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	buckets := map[time.Time][]canon.PredictionRecord{}
	for _, r := range records {
		if r.Outcome == nil || r.Outcome.Failed == nil {
			continue
		}
		weekStart := startOfWeek(r.Timestamp)
		buckets[weekStart] = append(buckets[weekStart], r)
	}

	var weeks []time.Time
	for w := range buckets {
		weeks = append(weeks, w)
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].Before(weeks[j]) })

	var series []TrendPoint
	for _, w := range weeks {
		recs := buckets[w]
		var tp, fp, fn int
		for _, r := range recs {
			predictedFail := r.RiskLevel == canon.RiskMedium || r.RiskLevel == canon.RiskHigh
			actualFail := *r.Outcome.Failed
			switch {
			case predictedFail && actualFail:
				tp++
			case predictedFail && !actualFail:
				fp++
			case !predictedFail && actualFail:
				fn++
			}
		}
		precision := safeDiv(float64(tp), float64(tp+fp))
		recall := safeDiv(float64(tp), float64(tp+fn))
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		series = append(series, TrendPoint{WeekStart: w, N: len(recs), F1: f1})
	}
	return series, nil
}

// VerifyIntegrity walks the full log and checks hash-chain integrity,
// surfacing the index of the first broken link if any.
func (t *Tracker) VerifyIntegrity() (bool, int, error) {
	records, err := t.log.readAll()
	if err != nil {
		return false, -1, err
	}
	valid, brokenAt := verifyChain(records)
	return valid, brokenAt, nil
}

// Records returns every prediction record in the log, in append order.
// Exposed for the safety package's independent I4 verification.
func (t *Tracker) Records() ([]canon.PredictionRecord, error) {
	return t.log.readAll()
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func startOfWeek(t time.Time) time.Time {
	t = t.UTC()
	offset := int(t.Weekday())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -offset)
}
