// Package config loads (and, on an explicit Loader.Reload call, reloads)
// ARC-Eval's YAML configuration:
// model selection policy, risk-fusion weights, pass-rate semantics,
// pattern-promotion thresholds, and storage/server settings.
package config

import (
	"time"
)

// Config is the top-level ARC-Eval configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Model      ModelConfig      `yaml:"model"`
	Risk       RiskConfig       `yaml:"risk"`
	PassRate   PassRateConfig   `yaml:"pass_rate"`
	Patterns   PatternsConfig   `yaml:"patterns"`
	Curriculum CurriculumConfig `yaml:"curriculum"`
	ScenarioDirs map[string]string `yaml:"scenario_dirs"` // domain -> pack directory
}

// ServerConfig controls the optional HTTP/WebSocket progress surface.
type ServerConfig struct {
	Port            int    `yaml:"port"`
	Dashboard       bool   `yaml:"dashboard"`
	LogLevel        string `yaml:"log_level"`
	AllowAllOrigins bool   `yaml:"allow_all_origins"`
}

// StorageConfig controls where ARC-Eval keeps its working state: the
// prediction log, its SQLite index, and persisted evaluation reports.
type StorageConfig struct {
	WorkingDir string        `yaml:"working_dir"`
	ReportsDir string        `yaml:"reports_dir"`
	Retention  time.Duration `yaml:"retention"`
}

// ModelConfig mirrors judge.ModelPolicy in YAML-friendly form.
type ModelConfig struct {
	Mode             string        `yaml:"mode"` // auto, fast, accurate
	PrimaryModel     string        `yaml:"primary_model"`
	FallbackModel    string        `yaml:"fallback_model"`
	MaxCostPerRun    float64       `yaml:"max_cost_per_run"`
	BatchSize        int           `yaml:"batch_size"`
	HighAccuracy     bool          `yaml:"high_accuracy"`
	MaxParallelism   int           `yaml:"max_parallelism"`
	VerifyEnabled    bool          `yaml:"verify_enabled"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
}

// RiskConfig mirrors canon.RiskWeights in YAML-friendly form.
type RiskConfig struct {
	RuleWeight float64 `yaml:"rule_weight"`
	LLMWeight  float64 `yaml:"llm_weight"`
}

// PassRateConfig mirrors orchestrator.PassRatePolicy.
type PassRateConfig struct {
	WarningCountsAsFailForPassRate bool `yaml:"warning_counts_as_fail_for_pass_rate"`
	WarningCountsAsPassForGating   bool `yaml:"warning_counts_as_pass_for_gating"`
}

// PatternsConfig controls the Pattern Learner's promotion threshold.
type PatternsConfig struct {
	PromotionThreshold int `yaml:"promotion_threshold"` // K: occurrences before a pattern becomes a scenario
	TopIndicators      int `yaml:"top_indicators"`      // N: failure indicators folded into the fingerprint
}

// CurriculumConfig controls the Self-Improvement Engine's tier sizing.
type CurriculumConfig struct {
	NoviceMaxWeakScenarios int `yaml:"novice_max_weak_scenarios"`
	AdvancedMinPassRate    int `yaml:"advanced_min_pass_rate_pct"`
}

// DefaultConfig returns a config with sensible defaults for zero-config
// startup. The risk weights match canon.DefaultRiskWeights; the model
// section has its own defaults (fallback model, cost cap and call
// timeout), which differ from judge.DefaultModelPolicy.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     6777,
			LogLevel: "info",
		},
		Storage: StorageConfig{
			WorkingDir: "./.arc-eval",
			ReportsDir: "./.arc-eval/reports",
			Retention:  90 * 24 * time.Hour,
		},
		Model: ModelConfig{
			Mode:           "auto",
			PrimaryModel:   "gpt-4o-mini",
			FallbackModel:  "gpt-4o",
			MaxCostPerRun:  5.0,
			BatchSize:      10,
			MaxParallelism: 4,
			CallTimeout:    30 * time.Second,
		},
		Risk: RiskConfig{
			RuleWeight: 0.4,
			LLMWeight:  0.6,
		},
		PassRate: PassRateConfig{
			WarningCountsAsFailForPassRate: true,
			WarningCountsAsPassForGating:   true,
		},
		Patterns: PatternsConfig{
			PromotionThreshold: 3,
			TopIndicators:      3,
		},
		Curriculum: CurriculumConfig{
			NoviceMaxWeakScenarios: 5,
			AdvancedMinPassRate:    90,
		},
		ScenarioDirs: map[string]string{
			"finance":     "./scenarios/finance",
			"security":    "./scenarios/security",
			"ml":          "./scenarios/ml",
			"reliability": "./scenarios/reliability",
		},
	}
}
