package config

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader loads Config from a YAML file, substituting ${VAR} and
// ${VAR:-default} environment references before parsing, and supports
// reloading the same file later through Reload. Nothing watches the
// file: a reload happens only when Reload is called.
type Loader struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewLoader returns a Loader pre-populated with DefaultConfig; Load
// overwrites it once a file is read.
func NewLoader() *Loader {
	return &Loader{cfg: DefaultConfig()}
}

// Load reads, env-substitutes, and parses the YAML file at path into the
// loader's current config, starting from DefaultConfig so unset fields
// keep their defaults.
func (l *Loader) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	substituted := substituteEnvVars(string(raw))
	if err := yaml.Unmarshal([]byte(substituted), cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if sum := cfg.Risk.RuleWeight + cfg.Risk.LLMWeight; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("config: %s: risk rule_weight and llm_weight must sum to 1, got %v", path, sum)
	}

	l.mu.Lock()
	l.cfg = cfg
	l.path = path
	l.mu.Unlock()
	return nil
}

// Reload re-reads the file previously passed to Load.
func (l *Loader) Reload() error {
	l.mu.RLock()
	path := l.path
	l.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("config: Reload called before Load")
	}
	return l.Load(path)
}

// Get returns the current config. Safe for concurrent use with Load/Reload.
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// FilePath returns the path last passed to Load, or "" if Load has never
// been called.
func (l *Loader) FilePath() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.path
}

// GenerateDefault writes DefaultConfig as YAML to path, for `arc-eval init`.
func GenerateDefault(path string) error {
	b, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("config: marshal default: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR} with os.Getenv(VAR), and
// ${VAR:-default} with that default when VAR is unset.
func substituteEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, hasDefault, def := groups[1], groups[2] != "", groups[3]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	})
}
