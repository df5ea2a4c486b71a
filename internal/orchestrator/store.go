package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arc-eval/core/internal/canon"
)

// ReportStore persists the full EvaluationReport, including per-judgment
// detail, as one JSON file per evaluation id. Evaluation ids are ulids so
// file names sort chronologically for free.
type ReportStore struct {
	dir string
}

// NewReportStore creates a ReportStore rooted at dir, creating dir if it
// doesn't already exist.
func NewReportStore(dir string) (*ReportStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report store dir: %w", err)
	}
	return &ReportStore{dir: dir}, nil
}

func (s *ReportStore) path(evaluationID string) string {
	return filepath.Join(s.dir, evaluationID+".json")
}

// Save writes the full report to disk, overwriting any prior save under
// the same evaluation id.
func (s *ReportStore) Save(report canon.EvaluationReport) error {
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return os.WriteFile(s.path(report.EvaluationID), b, 0o644)
}

// Load reads back a previously saved report by id.
func (s *ReportStore) Load(evaluationID string) (canon.EvaluationReport, error) {
	var report canon.EvaluationReport
	b, err := os.ReadFile(s.path(evaluationID))
	if err != nil {
		return report, fmt.Errorf("read report %s: %w", evaluationID, err)
	}
	if err := json.Unmarshal(b, &report); err != nil {
		return report, fmt.Errorf("unmarshal report %s: %w", evaluationID, err)
	}
	return report, nil
}
