package tracker

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arc-eval/core/internal/canon"
)

// sqliteIndex is a secondary, rebuildable query index over the
// append-only JSONL prediction log. The JSONL log is the source of
// truth; this index only accelerates Accuracy queries (Trend reads the
// log directly) and can always be dropped and rebuilt from the log.
type sqliteIndex struct {
	db *sql.DB
}

func newSQLiteIndex(path string) (*sqliteIndex, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("tracker: open index: %w", err)
	}
	idx := &sqliteIndex{db: db}
	if err := idx.initialize(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *sqliteIndex) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS predictions (
		prediction_id     TEXT PRIMARY KEY,
		timestamp         DATETIME NOT NULL,
		domain            TEXT NOT NULL,
		framework         TEXT,
		risk_score        REAL NOT NULL,
		risk_level        TEXT NOT NULL,
		confidence        REAL NOT NULL,
		outcome_failed    INTEGER,
		corrects_id       TEXT,
		sequence          INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_predictions_domain_ts ON predictions(domain, timestamp);
	`
	_, err := idx.db.Exec(schema)
	return err
}

func (idx *sqliteIndex) upsert(rec canon.PredictionRecord) error {
	var outcomeFailed sql.NullBool
	if rec.Outcome != nil && rec.Outcome.Failed != nil {
		outcomeFailed = sql.NullBool{Bool: *rec.Outcome.Failed, Valid: true}
	}
	_, err := idx.db.Exec(`
		INSERT INTO predictions (prediction_id, timestamp, domain, framework, risk_score, risk_level, confidence, outcome_failed, corrects_id, sequence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(prediction_id) DO UPDATE SET
			outcome_failed=excluded.outcome_failed,
			sequence=excluded.sequence`,
		rec.PredictionID, rec.Timestamp, rec.Domain, rec.Framework, rec.RiskScore, string(rec.RiskLevel), rec.Confidence, outcomeFailed, rec.CorrectsID, rec.Sequence)
	return err
}

// accuracyRows holds the raw (predicted_high_risk, actual_failed) pairs
// needed to compute precision/recall/F1 over a window.
type accuracyRow struct {
	riskLevel     string
	outcomeFailed sql.NullBool
}

func (idx *sqliteIndex) rowsSince(since time.Time) ([]accuracyRow, error) {
	rows, err := idx.db.Query(`SELECT risk_level, outcome_failed FROM predictions WHERE timestamp >= ? AND outcome_failed IS NOT NULL`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []accuracyRow
	for rows.Next() {
		var r accuracyRow
		if err := rows.Scan(&r.riskLevel, &r.outcomeFailed); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (idx *sqliteIndex) close() error {
	return idx.db.Close()
}
