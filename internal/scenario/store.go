// Package scenario loads YAML evaluation packs into a typed scenario
// catalog, validating at load time and serving ordered lookups to the
// orchestrator.
package scenario

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/arc-eval/core/internal/canon"
	"gopkg.in/yaml.v3"
)

// Pack is the top-level shape of an eval_pack YAML document. Field names
// and nesting are bit-compatible with the existing finance/security/ml/
// reliability packs.
type Pack struct {
	EvalPack struct {
		Name           string   `yaml:"name"`
		Version        string   `yaml:"version"`
		Description    string   `yaml:"description"`
		Frameworks     []string `yaml:"frameworks"`
		TotalScenarios int      `yaml:"total_scenarios"`
	} `yaml:"eval_pack"`
	Categories []string         `yaml:"categories"`
	Scenarios  []canon.Scenario `yaml:"scenarios"`
}

// cachedPack tracks a loaded pack alongside the mtime it was loaded at.
// LoadFile uses it to drop a file's previous scenarios on reload; the
// mtime is recorded but not compared against anything.
type cachedPack struct {
	path    string
	domain  string
	modTime time.Time
	pack    *Pack
}

// Store is the Scenario Store: it loads domain packs once per run and
// serves read-only, ordered access to their scenarios. Safe for concurrent
// use; scenarios are immutable after load.
type Store struct {
	mu        sync.RWMutex
	logger    *slog.Logger
	dirs      map[string]string // domain -> directory
	byDomain  map[string][]*canon.Scenario
	byID      map[string]*canon.Scenario
	packsByFile map[string]*cachedPack
	generated map[string]*canon.Scenario // fingerprint-keyed auto-generated scenarios, written by the bank
}

// New constructs an empty Store. Call LoadDomainDir (or LoadFile) to
// populate it before use.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:      logger.With("component", "scenario.Store"),
		dirs:        make(map[string]string),
		byDomain:    make(map[string][]*canon.Scenario),
		byID:        make(map[string]*canon.Scenario),
		packsByFile: make(map[string]*cachedPack),
		generated:   make(map[string]*canon.Scenario),
	}
}

// LoadDomainDir loads every *.yaml/*.yml pack in dir, tagging scenarios
// with domain unless the pack already sets one.
func (s *Store) LoadDomainDir(domain, dir string) error {
	s.mu.Lock()
	s.dirs[domain] = dir
	s.mu.Unlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scenario: read domain dir %q: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if err := s.LoadFile(domain, filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// LoadFile loads a single pack file into the store, validating it and
// replacing any prior load of the same file (supports hot-reload).
func (s *Store) LoadFile(domain, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("scenario: stat %q: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("scenario: read %q: %w", path, err)
	}
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return fmt.Errorf("scenario: parse %q: %w", path, err)
	}
	for i := range pack.Scenarios {
		if pack.Scenarios[i].Domain == "" {
			pack.Scenarios[i].Domain = domain
		}
	}
	if err := Validate(&pack); err != nil {
		return fmt.Errorf("scenario: pack %q failed validation: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Remove any scenarios previously loaded from this file before
	// re-inserting, so hot-reload doesn't leave stale duplicates.
	if prev, ok := s.packsByFile[path]; ok {
		s.removeLocked(prev.pack.Scenarios)
	}

	for i := range pack.Scenarios {
		sc := &pack.Scenarios[i]
		if existing, ok := s.byID[sc.ID]; ok && existing.Domain == sc.Domain {
			return fmt.Errorf("scenario: duplicate scenario id %q in domain %q", sc.ID, sc.Domain)
		}
		s.byID[sc.ID] = sc
		s.byDomain[sc.Domain] = append(s.byDomain[sc.Domain], sc)
	}
	s.sortDomainLocked(domain)

	s.packsByFile[path] = &cachedPack{path: path, domain: domain, modTime: info.ModTime(), pack: &pack}
	s.logger.Info("loaded scenario pack", "path", path, "domain", domain, "scenarios", len(pack.Scenarios))
	return nil
}

func (s *Store) removeLocked(scenarios []canon.Scenario) {
	for _, sc := range scenarios {
		delete(s.byID, sc.ID)
	}
	for domain, list := range s.byDomain {
		filtered := list[:0]
		for _, sc := range list {
			if _, stillPresent := s.byID[sc.ID]; stillPresent {
				filtered = append(filtered, sc)
			}
		}
		s.byDomain[domain] = filtered
	}
}

func (s *Store) sortDomainLocked(domain string) {
	list := s.byDomain[domain]
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Severity.Rank() != list[j].Severity.Rank() {
			return list[i].Severity.Rank() < list[j].Severity.Rank()
		}
		return list[i].ID < list[j].ID
	})
	s.byDomain[domain] = list
}

// List returns scenarios for domain ordered by severity descending, then
// id ascending.
func (s *Store) List(domain string) []canon.Scenario {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.byDomain[domain]
	out := make([]canon.Scenario, len(list))
	for i, sc := range list {
		out[i] = *sc
	}
	return out
}

// Get looks up a scenario by id. The bool is false if no such scenario
// was loaded.
func (s *Store) Get(id string) (canon.Scenario, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.byID[id]
	if !ok {
		return canon.Scenario{}, false
	}
	return *sc, true
}

// ByCompliance returns every loaded scenario tagged with the given
// compliance framework, across all domains, ordered by severity then id.
func (s *Store) ByCompliance(framework string) []canon.Scenario {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []canon.Scenario
	for _, sc := range s.byID {
		for _, f := range sc.Compliance {
			if f == framework {
				out = append(out, *sc)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity.Rank() != out[j].Severity.Rank() {
			return out[i].Severity.Rank() < out[j].Severity.Rank()
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// AddGenerated inserts an auto-generated scenario (from the Pattern
// Learner) into the catalog, available to subsequent runs. Returns an
// error if the id collides with an existing scenario in the same domain.
func (s *Store) AddGenerated(sc canon.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byID[sc.ID]; ok && existing.Domain == sc.Domain {
		return fmt.Errorf("scenario: generated scenario id %q already exists in domain %q", sc.ID, sc.Domain)
	}
	copied := sc
	s.byID[sc.ID] = &copied
	s.byDomain[sc.Domain] = append(s.byDomain[sc.Domain], &copied)
	s.sortDomainLocked(sc.Domain)
	s.generated[sc.GeneratedFrom] = &copied
	return nil
}

// GeneratedFor returns the scenario previously generated from fingerprint,
// if any. Used by the Pattern Learner to detect promotion duplicates.
func (s *Store) GeneratedFor(fingerprint string) (canon.Scenario, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.generated[fingerprint]
	if !ok {
		return canon.Scenario{}, false
	}
	return *sc, true
}
