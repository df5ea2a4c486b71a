package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoader_LoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "arc-eval.yaml")

	yamlContent := `
server:
  port: 8080
  dashboard: true
  log_level: debug
  allow_all_origins: true

storage:
  working_dir: ./state
  reports_dir: ./state/reports
  retention: 168h

model:
  mode: fast
  primary_model: gpt-4o-mini
  fallback_model: gpt-4o
  max_cost_per_run: 2.5
  batch_size: 20
  max_parallelism: 8
  verify_enabled: true

risk:
  rule_weight: 0.3
  llm_weight: 0.7

pass_rate:
  warning_counts_as_fail_for_pass_rate: false
  warning_counts_as_pass_for_gating: true

patterns:
  promotion_threshold: 5
  top_indicators: 4
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	loader := NewLoader()
	if err := loader.Load(configPath); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	cfg := loader.Get()

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("Server.LogLevel = %q, want \"debug\"", cfg.Server.LogLevel)
	}
	if !cfg.Server.AllowAllOrigins {
		t.Error("Server.AllowAllOrigins = false, want true")
	}
	if cfg.Model.Mode != "fast" {
		t.Errorf("Model.Mode = %q, want \"fast\"", cfg.Model.Mode)
	}
	if cfg.Model.MaxParallelism != 8 {
		t.Errorf("Model.MaxParallelism = %d, want 8", cfg.Model.MaxParallelism)
	}
	if cfg.Risk.RuleWeight != 0.3 || cfg.Risk.LLMWeight != 0.7 {
		t.Errorf("Risk = %+v, want rule=0.3 llm=0.7", cfg.Risk)
	}
	if cfg.PassRate.WarningCountsAsFailForPassRate {
		t.Error("PassRate.WarningCountsAsFailForPassRate = true, want false")
	}
	if cfg.Patterns.PromotionThreshold != 5 {
		t.Errorf("Patterns.PromotionThreshold = %d, want 5", cfg.Patterns.PromotionThreshold)
	}
}

func TestLoader_DefaultConfig(t *testing.T) {
	loader := NewLoader()
	cfg := loader.Get()

	if cfg.Server.Port != 6777 {
		t.Errorf("default Server.Port = %d, want 6777", cfg.Server.Port)
	}
	if cfg.Model.Mode != "auto" {
		t.Errorf("default Model.Mode = %q, want \"auto\"", cfg.Model.Mode)
	}
	if cfg.Risk.RuleWeight+cfg.Risk.LLMWeight != 1.0 {
		t.Errorf("default risk weights do not sum to 1: %+v", cfg.Risk)
	}
	if cfg.Patterns.PromotionThreshold != 3 {
		t.Errorf("default Patterns.PromotionThreshold = %d, want 3", cfg.Patterns.PromotionThreshold)
	}
}

func TestLoader_LoadNonExistentFile(t *testing.T) {
	loader := NewLoader()
	err := loader.Load("/nonexistent/path/to/config.yaml")
	if err == nil {
		t.Error("Load() with nonexistent file should return error")
	}
}

func TestLoader_LoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.yaml")

	if err := os.WriteFile(configPath, []byte(`{{{invalid yaml`), 0644); err != nil {
		t.Fatalf("failed to write bad config: %v", err)
	}

	loader := NewLoader()
	err := loader.Load(configPath)
	if err == nil {
		t.Error("Load() with invalid YAML should return error")
	}
}

func TestLoader_FilePath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "arc-eval.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  port: 9999\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader()
	if loader.FilePath() != "" {
		t.Errorf("FilePath() before Load() = %q, want empty", loader.FilePath())
	}

	if err := loader.Load(configPath); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if loader.FilePath() != configPath {
		t.Errorf("FilePath() = %q, want %q", loader.FilePath(), configPath)
	}
}

func TestLoader_Reload(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "arc-eval.yaml")

	if err := os.WriteFile(configPath, []byte("server:\n  port: 8080\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader()
	if err := loader.Load(configPath); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loader.Get().Server.Port != 8080 {
		t.Errorf("initial port = %d, want 8080", loader.Get().Server.Port)
	}

	if err := os.WriteFile(configPath, []byte("server:\n  port: 9999\n"), 0644); err != nil {
		t.Fatalf("failed to overwrite config: %v", err)
	}

	if err := loader.Reload(); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}
	if loader.Get().Server.Port != 9999 {
		t.Errorf("reloaded port = %d, want 9999", loader.Get().Server.Port)
	}
}

func TestLoader_ReloadWithoutLoad(t *testing.T) {
	loader := NewLoader()
	err := loader.Reload()
	if err == nil {
		t.Error("Reload() without prior Load() should return error")
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	os.Setenv("TEST_AE_PORT", "9999")
	os.Setenv("TEST_AE_SECRET", "my-secret")
	defer os.Unsetenv("TEST_AE_PORT")
	defer os.Unsetenv("TEST_AE_SECRET")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple substitution", "port: ${TEST_AE_PORT}", "port: 9999"},
		{"multiple substitutions", "port: ${TEST_AE_PORT}\nsecret: ${TEST_AE_SECRET}", "port: 9999\nsecret: my-secret"},
		{"undefined variable", "value: ${UNDEFINED_TEST_VAR_XYZ}", "value: "},
		{"default value syntax", "value: ${UNDEFINED_TEST_VAR_XYZ:-default-val}", "value: default-val"},
		{"default value not used when env var set", "port: ${TEST_AE_PORT:-1234}", "port: 9999"},
		{"no env vars", "port: 8080", "port: 8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := substituteEnvVars(tt.input)
			if got != tt.want {
				t.Errorf("substituteEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSubstituteEnvVars_InConfigLoad(t *testing.T) {
	os.Setenv("TEST_AE_CFG_PORT", "7777")
	defer os.Unsetenv("TEST_AE_CFG_PORT")

	dir := t.TempDir()
	configPath := filepath.Join(dir, "arc-eval.yaml")

	yamlContent := `
server:
  port: ${TEST_AE_CFG_PORT}
  log_level: info
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader()
	if err := loader.Load(configPath); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if loader.Get().Server.Port != 7777 {
		t.Errorf("Server.Port with env var = %d, want 7777", loader.Get().Server.Port)
	}
}

func TestGenerateDefault(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "arc-eval.yaml")

	if err := GenerateDefault(configPath); err != nil {
		t.Fatalf("GenerateDefault() error: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read generated config: %v", err)
	}
	if len(data) == 0 {
		t.Error("generated config is empty")
	}

	loader := NewLoader()
	if err := loader.Load(configPath); err != nil {
		t.Fatalf("generated config is not valid YAML: %v", err)
	}
	if loader.Get().Server.Port != 6777 {
		t.Errorf("generated config port = %d, want 6777", loader.Get().Server.Port)
	}
}
