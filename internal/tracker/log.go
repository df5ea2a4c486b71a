package tracker

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/arc-eval/core/internal/canon"
)

// jsonlLog is an append-only prediction log keyed by prediction_id, hash
// chained for tamper evidence. Appends are serialized with an exclusive
// file lock: single writer, no concurrent corruption of the log.
type jsonlLog struct {
	mu       sync.Mutex
	path     string
	lastHash string
	seq      int64
}

func newJSONLLog(path string) (*jsonlLog, error) {
	l := &jsonlLog{path: path}
	if err := l.replayTail(); err != nil {
		return nil, err
	}
	return l, nil
}

// replayTail scans the existing log (if any) to recover the last
// sequence number and hash so new appends chain correctly after a
// restart.
func (l *jsonlLog) replayTail() error {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("tracker: open log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var last canon.PredictionRecord
	found := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec canon.PredictionRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		last = rec
		found = true
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("tracker: scan log: %w", err)
	}
	if found {
		l.seq = last.Sequence
		l.lastHash = last.Hash
	}
	return nil
}

// append writes one record to the log under an exclusive lock, filling in
// Sequence, PrevHash, and Hash.
func (l *jsonlLog) append(rec canon.PredictionRecord) (canon.PredictionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	rec.Sequence = l.seq
	rec.PrevHash = l.lastHash
	rec.Hash = computeHash(&rec)

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return canon.PredictionRecord{}, fmt.Errorf("tracker: open log for append: %w", err)
	}
	defer f.Close()

	if err := lockExclusive(f); err != nil {
		return canon.PredictionRecord{}, fmt.Errorf("tracker: lock log: %w", err)
	}
	defer unlockFile(f)

	line, err := json.Marshal(rec)
	if err != nil {
		return canon.PredictionRecord{}, fmt.Errorf("tracker: marshal record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return canon.PredictionRecord{}, fmt.Errorf("tracker: write record: %w", err)
	}

	l.lastHash = rec.Hash
	return rec, nil
}

// readAll loads every record currently in the log, in append order.
func (l *jsonlLog) readAll() ([]canon.PredictionRecord, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tracker: open log: %w", err)
	}
	defer f.Close()

	var records []canon.PredictionRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec canon.PredictionRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("tracker: corrupt record in log: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("tracker: scan log: %w", err)
	}
	return records, nil
}

// byPredictionID finds the most recent record for a prediction_id,
// following correction chains to the latest entry.
func byPredictionID(records []canon.PredictionRecord, predictionID string) (canon.PredictionRecord, bool) {
	var found canon.PredictionRecord
	ok := false
	for _, r := range records {
		if r.PredictionID == predictionID || r.CorrectsID == predictionID {
			found = r
			ok = true
		}
	}
	return found, ok
}
