package rules

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"

	"github.com/arc-eval/core/internal/canon"
)

// CELEvaluator compiles and evaluates operator-authored CEL expressions
// against canonical agent outputs, so a deployment can add compliance
// rules without a code change. Expressions are compiled once at load
// time; evaluation is lock-free and safe for concurrent use.
type CELEvaluator struct {
	env    *cel.Env
	logger *slog.Logger
}

// NewCELEvaluator creates a CELEvaluator with the standard variable
// declarations available to custom rule expressions.
func NewCELEvaluator(logger *slog.Logger) (*CELEvaluator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	env, err := cel.NewEnv(
		cel.Variable("output.text", cel.StringType),
		cel.Variable("output.framework", cel.StringType),
		cel.Variable("output.tool_names", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("rules: create CEL environment: %w", err)
	}
	return &CELEvaluator{env: env, logger: logger.With("component", "rules.CELEvaluator")}, nil
}

// CustomRuleSpec describes one operator-authored rule loaded from config.
type CustomRuleSpec struct {
	ID         string `yaml:"id"`
	Concern    Concern `yaml:"concern"`
	Expression string `yaml:"expression"` // must evaluate to bool; true = violation
	Severity   string `yaml:"severity"`
	Citation   string `yaml:"citation"`
}

// Compile turns a CustomRuleSpec into a Rule backed by a pre-compiled CEL
// program. The expression fires (produces a violation) when it evaluates
// to true.
func (c *CELEvaluator) Compile(spec CustomRuleSpec) (Rule, error) {
	ast, issues := c.env.Compile(spec.Expression)
	if issues != nil && issues.Err() != nil {
		return Rule{}, fmt.Errorf("rules: CEL compile error in %q: %w", spec.Expression, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return Rule{}, fmt.Errorf("rules: CEL expression %q must evaluate to bool, got %s", spec.Expression, ast.OutputType())
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return Rule{}, fmt.Errorf("rules: CEL program creation failed for %q: %w", spec.Expression, err)
	}

	return Rule{
		ID:      spec.ID,
		Concern: spec.Concern,
		Check: func(out canon.AgentOutput) []canon.Violation {
			names := make([]string, len(out.ToolCalls))
			for i, tc := range out.ToolCalls {
				names[i] = tc.Name
			}
			vars := map[string]interface{}{
				"output.text":       out.OutputText,
				"output.framework":  out.Framework,
				"output.tool_names": names,
			}
			val, _, err := prg.Eval(vars)
			if err != nil {
				c.logger.Error("CEL evaluation error", "rule_id", spec.ID, "error", err)
				return nil
			}
			matched, ok := val.Value().(bool)
			if !ok || !matched {
				return nil
			}
			return []canon.Violation{{
				RuleID:   spec.ID,
				Severity: spec.Severity,
				Citation: spec.Citation,
				Evidence: evidenceSnippet(out.OutputText),
			}}
		},
	}, nil
}

func evidenceSnippet(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
