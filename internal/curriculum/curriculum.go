// Package curriculum implements the Self-Improvement / Curriculum Engine:
// it ingests judgment history per agent/domain, ranks recurring
// weaknesses by historical pass rate, advances an agent through
// difficulty tiers as it clears them, and produces an idempotent,
// prioritized improvement plan per (agent, evaluation) pair.
package curriculum

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arc-eval/core/internal/canon"
	"github.com/arc-eval/core/internal/config"
)

// Weakness is one scenario ranked by an agent's historical pass rate on
// it, worst first.
type Weakness struct {
	ScenarioID string         `json:"scenario_id"`
	PassRate   float64        `json:"pass_rate"`
	Attempts   int            `json:"attempts"`
	Failures   int            `json:"failures"`
	LastFailed time.Time      `json:"last_failed"`
	Severity   canon.Severity `json:"severity"`
}

type scenarioHistory struct {
	attempts   int
	fails      int
	lastFailed time.Time
	severity   canon.Severity
}

// key identifies one agent's history within one domain.
type key struct {
	agentID string
	domain  string
}

// Engine tracks per-agent, per-domain, per-scenario judgment history and
// derives weaknesses, tier progression, and improvement plans from it.
type Engine struct {
	mu         sync.Mutex
	thresholds config.CurriculumConfig
	history    map[key]map[string]*scenarioHistory // key -> scenario id -> history
	plans      map[string]canon.ImprovementPlan    // "agentID/evaluationID" -> cached plan
	rewardDir  string // workingDir/reward_history, empty when unpersisted
	logger     *slog.Logger
}

// rewardEntry is one append-only line in reward_history/<agent_id>/<domain>.jsonl,
// the persisted reward-signal history.
type rewardEntry struct {
	RecordedAt time.Time       `json:"recorded_at"`
	Judgments  []canon.Judgment `json:"judgments"`
}

// New builds an in-memory-only Engine using thresholds for tier-advance
// gating. Record history does not survive process restart; use Open to
// persist it.
func New(thresholds config.CurriculumConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		thresholds: thresholds,
		history:    make(map[key]map[string]*scenarioHistory),
		plans:      make(map[string]canon.ImprovementPlan),
		logger:     logger.With("component", "curriculum.Engine"),
	}
}

// Open builds an Engine rooted at workingDir, replaying any existing
// reward_history/<agent_id>/<domain>.jsonl files so history survives a
// process restart. Future Record calls append to those same files.
func Open(workingDir string, thresholds config.CurriculumConfig, logger *slog.Logger) (*Engine, error) {
	e := New(thresholds, logger)
	e.rewardDir = filepath.Join(workingDir, "reward_history")
	if err := os.MkdirAll(e.rewardDir, 0o755); err != nil {
		return nil, fmt.Errorf("curriculum: create reward history dir: %w", err)
	}

	agentDirs, err := os.ReadDir(e.rewardDir)
	if err != nil {
		return nil, fmt.Errorf("curriculum: read reward history dir: %w", err)
	}
	for _, agentDir := range agentDirs {
		if !agentDir.IsDir() {
			continue
		}
		agentID := agentDir.Name()
		domainFiles, err := os.ReadDir(filepath.Join(e.rewardDir, agentID))
		if err != nil {
			return nil, fmt.Errorf("curriculum: read agent reward history: %w", err)
		}
		for _, f := range domainFiles {
			if !strings.HasSuffix(f.Name(), ".jsonl") {
				continue
			}
			domain := strings.TrimSuffix(f.Name(), ".jsonl")
			if err := e.replay(agentID, domain); err != nil {
				return nil, err
			}
		}
	}
	return e, nil
}

func (e *Engine) replay(agentID, domain string) error {
	f, err := os.Open(e.rewardPath(agentID, domain))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("curriculum: open reward history: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry rewardEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			e.logger.Warn("skipping malformed reward history line", "agent_id", agentID, "domain", domain, "error", err)
			continue
		}
		e.applyRecord(agentID, domain, entry.RecordedAt, entry.Judgments)
	}
	return scanner.Err()
}

func (e *Engine) rewardPath(agentID, domain string) string {
	return filepath.Join(e.rewardDir, agentID, domain+".jsonl")
}

// Record ingests one run's judgments for an agent/domain, updating the
// append-only per-scenario reward-signal history weaknesses and tier
// progression are derived from, and persisting it if this Engine was
// built with Open.
func (e *Engine) Record(agentID, domain string, judgments []canon.Judgment) {
	now := time.Now()
	e.applyRecord(agentID, domain, now, judgments)
	e.logger.Info("recorded judgments into curriculum history", "agent_id", agentID, "domain", domain, "count", len(judgments))

	if e.rewardDir == "" {
		return
	}
	if err := e.appendRewardEntry(agentID, domain, rewardEntry{RecordedAt: now, Judgments: judgments}); err != nil {
		e.logger.Error("failed to persist reward history", "agent_id", agentID, "domain", domain, "error", err)
	}
}

func (e *Engine) applyRecord(agentID, domain string, recordedAt time.Time, judgments []canon.Judgment) {
	k := key{agentID: agentID, domain: domain}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.history[k] == nil {
		e.history[k] = make(map[string]*scenarioHistory)
	}
	for _, j := range judgments {
		h, ok := e.history[k][j.ScenarioID]
		if !ok {
			h = &scenarioHistory{}
			e.history[k][j.ScenarioID] = h
		}
		h.attempts++
		if h.severity == "" || j.Severity.Rank() < h.severity.Rank() {
			h.severity = j.Severity
		}
		if j.Decision == canon.DecisionFail {
			h.fails++
			h.lastFailed = recordedAt
		}
	}
}

func (e *Engine) appendRewardEntry(agentID, domain string, entry rewardEntry) error {
	path := e.rewardPath(agentID, domain)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

// Weaknesses ranks every scenario agentID has attempted in domain by
// historical pass rate ascending (worst first); ties are broken by
// severity descending (most severe first).
func (e *Engine) Weaknesses(agentID, domain string) []Weakness {
	k := key{agentID: agentID, domain: domain}

	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Weakness
	for scenarioID, h := range e.history[k] {
		if h.fails == 0 {
			continue // a perfect record is not a weakness
		}
		out = append(out, Weakness{
			ScenarioID: scenarioID,
			PassRate:   float64(h.attempts-h.fails) / float64(h.attempts),
			Attempts:   h.attempts,
			Failures:   h.fails,
			LastFailed: h.lastFailed,
			Severity:   h.severity,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PassRate != out[j].PassRate {
			return out[i].PassRate < out[j].PassRate
		}
		if out[i].Severity.Rank() != out[j].Severity.Rank() {
			return out[i].Severity.Rank() < out[j].Severity.Rank()
		}
		return out[i].LastFailed.After(out[j].LastFailed)
	})
	return out
}

// Curriculum derives an agent's current training tier from its weaknesses
// and overall pass rate so far, per the novice -> intermediate ->
// advanced progression configured in config.CurriculumConfig: an agent
// advances out of novice once its count of weak scenarios falls at or
// under NoviceMaxWeakScenarios, and reaches advanced once it clears every
// weakness and its overall pass rate is at or above AdvancedMinPassRate.
// The pass rate is taken over every judgment recorded for the agent in
// the domain; it is not tracked per tier.
func (e *Engine) Curriculum(agentID, domain string) canon.CurriculumEntry {
	weaknesses := e.Weaknesses(agentID, domain)

	k := key{agentID: agentID, domain: domain}
	e.mu.Lock()
	var attempts, fails int
	for _, h := range e.history[k] {
		attempts += h.attempts
		fails += h.fails
	}
	e.mu.Unlock()

	weakIDs := make([]string, len(weaknesses))
	for i, w := range weaknesses {
		weakIDs[i] = w.ScenarioID
	}

	tier := canon.TierNovice
	passRatePct := 0
	if attempts > 0 {
		passRatePct = (attempts - fails) * 100 / attempts
	}
	if len(weakIDs) <= e.thresholds.NoviceMaxWeakScenarios {
		tier = canon.TierIntermediate
	}
	if passRatePct >= e.thresholds.AdvancedMinPassRate && len(weakIDs) == 0 {
		tier = canon.TierAdvanced
	}

	return canon.CurriculumEntry{
		AgentID:         agentID,
		Domain:          domain,
		WeakScenarioIDs: weakIDs,
		DifficultyTier:  tier,
		CreatedAt:       time.Now(),
	}
}

// ImprovementPlan produces a prioritized, actionable fix list from one
// evaluation report. Idempotent per (agentID, evaluationID): the first
// computed plan is cached and returned on every subsequent call for the
// same pair, regardless of any history recorded in between.
func (e *Engine) ImprovementPlan(agentID string, report canon.EvaluationReport) canon.ImprovementPlan {
	cacheKey := agentID + "/" + report.EvaluationID

	e.mu.Lock()
	if cached, ok := e.plans[cacheKey]; ok {
		e.mu.Unlock()
		return cached
	}
	e.mu.Unlock()

	plan := canon.ImprovementPlan{
		AgentID:        agentID,
		EvaluationID:   report.EvaluationID,
		ExpectedDeltas: make(map[string]float64),
		CreatedAt:      time.Now(),
	}

	counts := make(map[string]int)
	for _, j := range report.Judgments {
		if j.Decision == canon.DecisionFail {
			counts[j.ScenarioID]++
		}
	}

	var fixes []canon.Fix
	for _, j := range report.Judgments {
		if j.Decision != canon.DecisionFail {
			continue
		}
		if counts[j.ScenarioID] == 0 {
			continue // already emitted for this scenario
		}
		freq := counts[j.ScenarioID]
		counts[j.ScenarioID] = 0 // emit one Fix per scenario, not one per judgment

		severityScore := 1.0 / float64(j.Severity.Rank()+1)
		fixes = append(fixes, canon.Fix{
			ScenarioID:  j.ScenarioID,
			Description: describeFix(j),
			Severity:    j.Severity,
			Frequency:   freq,
			Priority:    severityScore * float64(freq),
		})
		plan.ExpectedDeltas[j.ScenarioID] = expectedDelta(j.Severity)
	}

	sort.SliceStable(fixes, func(i, j int) bool { return fixes[i].Priority > fixes[j].Priority })
	plan.PrioritizedFixes = fixes
	plan.TimelineEstimate = timelineEstimate(len(fixes))
	plan.ReEvalCommand = fmt.Sprintf("arc-eval evaluate --domain %s --agent-id %s", report.Domain, agentID)

	e.mu.Lock()
	e.plans[cacheKey] = plan
	e.mu.Unlock()

	return plan
}

// describeFix turns a failed judgment's reasoning/evidence into a
// one-line remediation description.
func describeFix(j canon.Judgment) string {
	if len(j.Evidence) > 0 {
		return fmt.Sprintf("Address %q: %s", j.ScenarioID, j.Evidence[0])
	}
	if j.Reasoning != "" {
		return fmt.Sprintf("Address %q: %s", j.ScenarioID, j.Reasoning)
	}
	return fmt.Sprintf("Address failing scenario %q", j.ScenarioID)
}

// expectedDelta is a conservative, severity-scaled estimate of the
// pass-rate improvement fixing one scenario would yield.
func expectedDelta(sev canon.Severity) float64 {
	switch sev {
	case canon.SeverityCritical:
		return 0.08
	case canon.SeverityHigh:
		return 0.05
	case canon.SeverityMedium:
		return 0.03
	default:
		return 0.01
	}
}

func timelineEstimate(fixCount int) string {
	switch {
	case fixCount == 0:
		return "no fixes required"
	case fixCount <= 3:
		return "1 sprint"
	case fixCount <= 8:
		return "2-3 sprints"
	default:
		return "3+ sprints"
	}
}
