package patterns

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/arc-eval/core/internal/canon"
	"github.com/arc-eval/core/internal/scenario"
)

// Bank is the Scenario Bank: it tracks FailurePattern occurrences per
// fingerprint and promotes a pattern into a generated Scenario once it
// crosses the configured threshold. State is persisted one JSON file per
// fingerprint under scenario_bank/, so counts survive a restart.
type Bank struct {
	mu        sync.Mutex
	dir       string
	store     *scenario.Store
	threshold int
	topN      int
	patterns  map[string]*canon.FailurePattern
	logger    *slog.Logger
}

// Open creates or loads a Bank rooted at dir, backed by store for
// promoted-scenario lookups and insertion.
func Open(dir string, store *scenario.Store, threshold, topN int, logger *slog.Logger) (*Bank, error) {
	if threshold <= 0 {
		threshold = 3
	}
	if topN <= 0 {
		topN = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("patterns: create bank dir: %w", err)
	}
	b := &Bank{
		dir:       dir,
		store:     store,
		threshold: threshold,
		topN:      topN,
		patterns:  make(map[string]*canon.FailurePattern),
		logger:    logger.With("component", "patterns.Bank"),
	}
	if err := b.loadAll(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bank) path(fingerprint string) string {
	return filepath.Join(b.dir, fingerprint+".json")
}

func (b *Bank) loadAll() error {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return fmt.Errorf("patterns: read bank dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(b.dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("patterns: read %s: %w", entry.Name(), err)
		}
		var p canon.FailurePattern
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("patterns: parse %s: %w", entry.Name(), err)
		}
		b.patterns[p.Fingerprint] = &p
	}
	return nil
}

func (b *Bank) persist(p *canon.FailurePattern) error {
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("patterns: marshal pattern: %w", err)
	}
	return os.WriteFile(b.path(p.Fingerprint), raw, 0o644)
}

// Record ingests one failure observation. If its fingerprint matches an
// existing pattern, the occurrence counter is incremented; otherwise a
// new pattern is created. Once occurrences reach the configured
// threshold, the pattern is promoted into a generated Scenario exactly
// once — subsequent occurrences of the same fingerprint only increment
// the counter.
func (b *Bank) Record(obs Observation) (canon.FailurePattern, error) {
	fp := Fingerprint(obs, b.topN)
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	existing, ok := b.patterns[fp]
	if !ok {
		existing = &canon.FailurePattern{
			Fingerprint:       fp,
			FirstSeen:         now,
			Domain:            obs.Domain,
			Framework:         obs.Framework,
			FailureCategory:   obs.FailureCategory,
			FailureIndicators: topNSorted(obs.FailureIndicators, b.topN),
			RootCauseTag:      obs.RootCauseTag,
			CanonicalExample:  obs.CanonicalExample,
			MaxSeverity:       obs.Severity,
		}
		b.patterns[fp] = existing
	}

	existing.Occurrences++
	existing.LastSeen = now
	if obs.Severity.Rank() < existing.MaxSeverity.Rank() {
		existing.MaxSeverity = obs.Severity
	}

	if existing.GeneratedScenarioID == "" && existing.Occurrences >= b.threshold {
		if err := b.promote(existing); err != nil {
			b.logger.Error("failed to promote pattern", "fingerprint", fp, "error", err)
		}
	}

	if err := b.persist(existing); err != nil {
		return *existing, err
	}
	return *existing, nil
}

// promote synthesizes a Scenario from a pattern that has crossed the
// threshold and inserts it into the Scenario Store.
// Caller must hold b.mu.
func (b *Bank) promote(p *canon.FailurePattern) error {
	if b.store != nil {
		if existing, ok := b.store.GeneratedFor(p.Fingerprint); ok {
			p.GeneratedScenarioID = existing.ID
			return nil
		}
	}

	sc := canon.Scenario{
		ID:                fmt.Sprintf("gen-%s", p.Fingerprint[:8]),
		Name:              fmt.Sprintf("Auto-generated: %s", p.FailureCategory),
		Description:       fmt.Sprintf("Synthesized after %d occurrences of the same failure pattern.", p.Occurrences),
		Domain:            p.Domain,
		Category:          p.FailureCategory,
		Severity:          p.MaxSeverity,
		InputTemplate:     p.CanonicalExample,
		FailureIndicators: p.FailureIndicators,
		GeneratedFrom:     p.Fingerprint,
	}

	if b.store != nil {
		if err := b.store.AddGenerated(sc); err != nil {
			return err
		}
	}
	p.GeneratedScenarioID = sc.ID
	b.logger.Info("promoted failure pattern to generated scenario",
		"fingerprint", p.Fingerprint, "scenario_id", sc.ID, "occurrences", p.Occurrences)
	return nil
}

// Get returns the tracked pattern for a fingerprint, if any.
func (b *Bank) Get(fingerprint string) (canon.FailurePattern, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.patterns[fingerprint]
	if !ok {
		return canon.FailurePattern{}, false
	}
	return *p, true
}

// All returns every tracked pattern, promoted or not.
func (b *Bank) All() []canon.FailurePattern {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]canon.FailurePattern, 0, len(b.patterns))
	for _, p := range b.patterns {
		out = append(out, *p)
	}
	return out
}
