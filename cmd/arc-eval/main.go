// Command arc-eval is the embedding surface for the ARC-Eval core
// library: run an evaluation against a trace file or the built-in demo,
// compare two prior runs, record ground-truth outcomes against logged
// predictions, and inspect an agent's curriculum standing.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arc-eval/core/internal/canon"
	"github.com/arc-eval/core/internal/config"
	"github.com/arc-eval/core/internal/cost"
	"github.com/arc-eval/core/internal/curriculum"
	"github.com/arc-eval/core/internal/judge"
	"github.com/arc-eval/core/internal/orchestrator"
	"github.com/arc-eval/core/internal/parser"
	"github.com/arc-eval/core/internal/patterns"
	"github.com/arc-eval/core/internal/predictor"
	"github.com/arc-eval/core/internal/rules"
	"github.com/arc-eval/core/internal/safety"
	"github.com/arc-eval/core/internal/scenario"
	"github.com/arc-eval/core/internal/tracker"
)

// Environment variables the CLI reads. ARC_EVAL_FALLBACK_API_KEY is
// reserved for a future second HTTPClient talking to a distinct
// fallback provider; today judge.Runtime's fallback is a second model
// on the same provider, so only the primary key is read.
const (
	envAPIKey     = "ARC_EVAL_API_KEY"
	envWorkingDir = "ARC_EVAL_WORKING_DIR"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// exitCoder lets a subcommand request a specific process exit code
// without os.Exit-ing mid-RunE, so deferred cleanup still runs.
type exitCoder struct {
	code int
	err  error
}

func (e *exitCoder) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit %d", e.code)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "arc-eval",
		Short: "Evaluate AI agent reliability against domain scenario packs",
		Long:  "arc-eval — Evaluate. Predict. Improve.\nA post-hoc evaluation harness that judges agent traces against finance, security, ML, and reliability scenario packs, predicts risk, and drives a self-improvement curriculum.",
	}

	var configFile string

	// ─── evaluate ───
	var domain, inputPath, framework, agentID string
	var demo, complianceOnly bool
	evaluateCmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run an evaluation against a trace file (or --demo) and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(configFile, domain, inputPath, framework, agentID, demo, complianceOnly)
		},
	}
	evaluateCmd.Flags().StringVarP(&configFile, "config", "c", "", "path to config file (default: arc-eval.yaml)")
	evaluateCmd.Flags().StringVarP(&domain, "domain", "d", "", "scenario domain: finance, security, ml, reliability")
	evaluateCmd.Flags().StringVarP(&inputPath, "input", "i", "", "path to a trace JSON file (object, array, or line-delimited)")
	evaluateCmd.Flags().StringVar(&framework, "framework", "", "override auto-detected trace framework")
	evaluateCmd.Flags().StringVar(&agentID, "agent-id", "default-agent", "agent identity for curriculum tracking")
	evaluateCmd.Flags().BoolVar(&demo, "demo", false, "run against built-in sample outputs instead of --input")
	evaluateCmd.Flags().BoolVar(&complianceOnly, "compliance-only", false, "filter to scenarios tagged with --framework's compliance framework")
	_ = evaluateCmd.MarkFlagRequired("domain")

	// ─── compare ───
	var baselineID, currentID string
	compareCmd := &cobra.Command{
		Use:   "compare",
		Short: "Diff two previously persisted evaluation reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(configFile, baselineID, currentID)
		},
	}
	compareCmd.Flags().StringVarP(&configFile, "config", "c", "", "path to config file")
	compareCmd.Flags().StringVar(&baselineID, "baseline", "", "baseline evaluation_id")
	compareCmd.Flags().StringVar(&currentID, "current", "", "current evaluation_id")
	_ = compareCmd.MarkFlagRequired("baseline")
	_ = compareCmd.MarkFlagRequired("current")

	// ─── track ───
	trackCmd := &cobra.Command{
		Use:   "track",
		Short: "Prediction tracker commands",
	}

	var predictionID, issueType, notes string
	var failed, override bool
	trackOutcomeCmd := &cobra.Command{
		Use:   "outcome",
		Short: "Record a ground-truth outcome against a previously logged prediction",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrackOutcome(configFile, predictionID, failed, issueType, notes, override)
		},
	}
	trackOutcomeCmd.Flags().StringVarP(&configFile, "config", "c", "", "path to config file")
	trackOutcomeCmd.Flags().StringVar(&predictionID, "prediction-id", "", "id returned when the prediction was logged")
	trackOutcomeCmd.Flags().BoolVar(&failed, "failed", false, "whether the agent actually failed")
	trackOutcomeCmd.Flags().StringVar(&issueType, "issue-type", "", "category of the observed failure, if any")
	trackOutcomeCmd.Flags().StringVar(&notes, "notes", "", "free-text notes on the outcome")
	trackOutcomeCmd.Flags().BoolVar(&override, "override", false, "allow overwriting a previously recorded outcome")
	_ = trackOutcomeCmd.MarkFlagRequired("prediction-id")
	trackCmd.AddCommand(trackOutcomeCmd)

	// ─── curriculum ───
	curriculumCmd := &cobra.Command{
		Use:   "curriculum",
		Short: "Self-improvement curriculum commands",
	}

	var curricAgent, curricDomain string
	curriculumStatusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show an agent's current difficulty tier and weak scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCurriculumStatus(configFile, curricAgent, curricDomain)
		},
	}
	curriculumStatusCmd.Flags().StringVarP(&configFile, "config", "c", "", "path to config file")
	curriculumStatusCmd.Flags().StringVar(&curricAgent, "agent-id", "", "agent identity")
	curriculumStatusCmd.Flags().StringVar(&curricDomain, "domain", "", "scenario domain")
	_ = curriculumStatusCmd.MarkFlagRequired("agent-id")
	_ = curriculumStatusCmd.MarkFlagRequired("domain")

	var planAgent, planEvalID string
	curriculumPlanCmd := &cobra.Command{
		Use:   "plan",
		Short: "Produce the improvement plan for a previously persisted evaluation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCurriculumPlan(configFile, planAgent, planEvalID)
		},
	}
	curriculumPlanCmd.Flags().StringVarP(&configFile, "config", "c", "", "path to config file")
	curriculumPlanCmd.Flags().StringVar(&planAgent, "agent-id", "", "agent identity")
	curriculumPlanCmd.Flags().StringVar(&planEvalID, "evaluation-id", "", "evaluation_id to build the plan from")
	_ = curriculumPlanCmd.MarkFlagRequired("agent-id")
	_ = curriculumPlanCmd.MarkFlagRequired("evaluation-id")

	curriculumCmd.AddCommand(curriculumStatusCmd, curriculumPlanCmd)

	// ─── init ───
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a starter arc-eval.yaml config",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configFile
			if path == "" {
				path = "arc-eval.yaml"
			}
			if err := config.GenerateDefault(path); err != nil {
				return err
			}
			fmt.Printf("Wrote default config to %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&configFile, "config", "c", "", "path to write (default: arc-eval.yaml)")

	// ─── version ───
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("arc-eval %s\n", version)
			fmt.Printf("  Commit:  %s\n", commit)
			fmt.Printf("  Built:   %s\n", buildDate)
		},
	}

	rootCmd.AddCommand(evaluateCmd, compareCmd, trackCmd, curriculumCmd, initCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		var ec *exitCoder
		if errorsAs(err, &ec) {
			if ec.err != nil {
				fmt.Fprintln(os.Stderr, ec.err)
			}
			os.Exit(ec.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

// errorsAs avoids importing "errors" solely for the one As call the CLI
// needs against its own sentinel-ish exitCoder type.
func errorsAs(err error, target **exitCoder) bool {
	ec, ok := err.(*exitCoder)
	if !ok {
		return false
	}
	*target = ec
	return true
}

func loadConfig(configFile string) *config.Config {
	loader := config.NewLoader()
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		if err := loader.Load(configFile); err != nil {
			slog.Warn("failed to load config, using defaults", "path", configFile, "error", err)
			return config.DefaultConfig()
		}
	}
	return loader.Get()
}

func findConfigFile() string {
	for _, candidate := range []string{"arc-eval.yaml", "arc-eval.yml", ".arc-eval.yaml"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func workingDir(cfg *config.Config) string {
	if wd := os.Getenv(envWorkingDir); wd != "" {
		return wd
	}
	if cfg.Storage.WorkingDir != "" {
		return cfg.Storage.WorkingDir
	}
	return "./.arc-eval"
}

func toModelPolicy(m config.ModelConfig) judge.ModelPolicy {
	return judge.ModelPolicy{
		Mode:           judge.Mode(m.Mode),
		PrimaryModel:   m.PrimaryModel,
		FallbackModel:  m.FallbackModel,
		MaxCostPerRun:  m.MaxCostPerRun,
		BatchSize:      m.BatchSize,
		HighAccuracy:   m.HighAccuracy,
		MaxParallelism: m.MaxParallelism,
		VerifyEnabled:  m.VerifyEnabled,
		CallTimeoutSec: int(m.CallTimeout / time.Second),
	}
}

func toRiskWeights(r config.RiskConfig) canon.RiskWeights {
	return canon.RiskWeights{Rule: r.RuleWeight, LLM: r.LLMWeight}
}

// buildPipeline wires every ARC-Eval component from one loaded config,
// the way runStart wires the governance sidecar's components in the
// teacher's main.go.
func buildPipeline(cfg *config.Config, logger *slog.Logger) (*orchestrator.Orchestrator, *tracker.Tracker, *scenario.Store, error) {
	wd := workingDir(cfg)
	if err := os.MkdirAll(wd, 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("create working directory: %w", err)
	}

	scenarios := scenario.New(logger)
	for domain, dir := range cfg.ScenarioDirs {
		if _, err := os.Stat(dir); err != nil {
			continue // pack not present on disk; evaluate will just find nothing for that domain
		}
		if err := scenarios.LoadDomainDir(domain, dir); err != nil {
			logger.Warn("failed to load scenario pack", "domain", domain, "dir", dir, "error", err)
		}
	}

	ruleEngine := rules.New(logger)

	apiKey := envAPIKey
	client := judge.NewHTTPClient("", apiKey, cfg.Model.CallTimeout)
	budget := cost.NewBudget(cfg.Model.MaxCostPerRun)
	runtime := judge.NewRuntime(client, toModelPolicy(cfg.Model), budget, logger)

	pred := predictor.New(ruleEngine, client, cfg.Model.PrimaryModel, toRiskWeights(cfg.Risk), logger)
	costs := cost.NewTracker(logger)

	bank, err := patterns.Open(filepath.Join(wd, "scenario_bank"), scenarios, cfg.Patterns.PromotionThreshold, cfg.Patterns.TopIndicators, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open pattern bank: %w", err)
	}

	curric, err := curriculum.Open(wd, cfg.Curriculum, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open curriculum engine: %w", err)
	}

	reports, err := orchestrator.NewReportStore(filepath.Join(wd, "runs"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open report store: %w", err)
	}

	cancels := orchestrator.NewCancelSwitch(logger)

	orch := orchestrator.New(scenarios, runtime, pred, costs, nil, cancels, reports, bank, curric, logger)

	predictionLog, err := tracker.Open(wd, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open prediction tracker: %w", err)
	}

	return orch, predictionLog, scenarios, nil
}

func runEvaluate(configFile, domain, inputPath, framework, agentID string, demo, complianceOnly bool) error {
	cfg := loadConfig(configFile)
	logger := newLogger(cfg)

	orch, predictionLog, scenarios, err := buildPipeline(cfg, logger)
	if err != nil {
		return &exitCoder{code: 2, err: err}
	}
	defer predictionLog.Close()

	safetyEngine := safety.NewEngine(logger)

	policy := orchestrator.DefaultPolicy()
	policy.AgentID = agentID
	policy.ComplianceOnly = complianceOnly
	if complianceOnly {
		policy.Framework = framework
	}

	ctx := context.Background()

	var report canon.EvaluationReport
	if demo {
		report = orch.EvaluateDemo(ctx, domain, policy)
	} else {
		if inputPath == "" {
			return &exitCoder{code: 2, err: fmt.Errorf("arc-eval evaluate: --input is required unless --demo is set")}
		}
		raw, err := os.ReadFile(inputPath)
		if err != nil {
			return &exitCoder{code: 2, err: fmt.Errorf("read input file: %w", err)}
		}
		outputs, err := normalizeTrace(raw, framework, logger)
		if err != nil {
			return &exitCoder{code: 2, err: err}
		}
		report = orch.Evaluate(ctx, domain, outputs, policy)
	}

	domainScenarios := scenarios.List(domain)
	if violations := safetyEngine.CheckScenarioIDs(domainScenarios); len(violations) > 0 {
		logger.Warn("safety invariant violations detected", "invariant", "I1", "count", len(violations))
	}
	if violations := safetyEngine.CheckJudgmentsReferenceScenarios(domainScenarios, report.Judgments); len(violations) > 0 {
		logger.Warn("safety invariant violations detected", "invariant", "I2", "count", len(violations))
	}

	if err := printJSON(report); err != nil {
		return &exitCoder{code: 2, err: err}
	}

	return &exitCoder{code: exitCodeForReport(report)}
}

// normalizeTrace accepts a trace file in any of three shapes: a single
// object, a JSON array, or a line-delimited sequence.
func normalizeTrace(raw []byte, framework string, logger *slog.Logger) ([]canon.AgentOutput, error) {
	p := parser.New(logger)

	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed[0] == '[' || trimmed[0] == '{' {
		outputs, err := p.Normalize(raw, framework)
		if err == nil {
			return outputs, nil
		}
		// Fall through to line-delimited handling; a malformed single
		// object may still parse line-by-line (e.g. trailing newline-noise).
	}

	var outputs []canon.AgentOutput
	for i, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out, err := p.Normalize([]byte(line), framework)
		if err != nil {
			return nil, fmt.Errorf("arc-eval: invalid trace record on line %d: %w", i+1, err)
		}
		outputs = append(outputs, out...)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("arc-eval: input contained no parseable trace records")
	}
	return outputs, nil
}

// exitCodeForReport maps a report onto the CLI's embedding exit codes:
// 0 = all pass, 1 = one or more critical failures, 2 reserved for
// input/config errors raised earlier in the pipeline.
func exitCodeForReport(report canon.EvaluationReport) int {
	if report.Aborted {
		return 1
	}
	for _, j := range report.Judgments {
		if j.Decision == canon.DecisionFail && j.Severity == canon.SeverityCritical {
			return 1
		}
	}
	if report.Summary.Fail > 0 {
		return 1
	}
	return 0
}

func runCompare(configFile, baselineID, currentID string) error {
	cfg := loadConfig(configFile)
	logger := newLogger(cfg)

	orch, predictionLog, _, err := buildPipeline(cfg, logger)
	if err != nil {
		return &exitCoder{code: 2, err: err}
	}
	defer predictionLog.Close()

	diff, err := orch.Compare(baselineID, currentID)
	if err != nil {
		return &exitCoder{code: 2, err: err}
	}
	return printJSON(diff)
}

func runTrackOutcome(configFile, predictionID string, failed bool, issueType, notes string, override bool) error {
	cfg := loadConfig(configFile)
	logger := newLogger(cfg)

	t, err := tracker.Open(workingDir(cfg), logger)
	if err != nil {
		return &exitCoder{code: 2, err: err}
	}
	defer t.Close()

	outcome := canon.PredictionOutcome{Failed: &failed, IssueType: issueType, Notes: notes}
	correctionID, err := t.RecordOutcome(predictionID, outcome, override)
	if err != nil {
		return &exitCoder{code: 2, err: err}
	}
	fmt.Printf("Recorded outcome for %s (record %s)\n", predictionID, correctionID)
	return nil
}

func runCurriculumStatus(configFile, agentID, domain string) error {
	cfg := loadConfig(configFile)
	logger := newLogger(cfg)

	curric, err := curriculum.Open(workingDir(cfg), cfg.Curriculum, logger)
	if err != nil {
		return &exitCoder{code: 2, err: err}
	}
	entry := curric.Curriculum(agentID, domain)
	weaknesses := curric.Weaknesses(agentID, domain)

	return printJSON(struct {
		canon.CurriculumEntry
		Weaknesses []curriculum.Weakness `json:"weaknesses"`
	}{entry, weaknesses})
}

func runCurriculumPlan(configFile, agentID, evaluationID string) error {
	cfg := loadConfig(configFile)
	logger := newLogger(cfg)

	orch, predictionLog, _, err := buildPipeline(cfg, logger)
	if err != nil {
		return &exitCoder{code: 2, err: err}
	}
	defer predictionLog.Close()

	report, err := loadReportByID(workingDir(cfg), evaluationID)
	if err != nil {
		return &exitCoder{code: 2, err: err}
	}

	plan, err := orch.ImprovementPlan(agentID, report)
	if err != nil {
		return &exitCoder{code: 2, err: err}
	}
	return printJSON(plan)
}

func loadReportByID(wd, evaluationID string) (canon.EvaluationReport, error) {
	store, err := orchestrator.NewReportStore(filepath.Join(wd, "runs"))
	if err != nil {
		return canon.EvaluationReport{}, err
	}
	return store.Load(evaluationID)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
