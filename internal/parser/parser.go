// Package parser normalizes heterogeneous agent execution traces into the
// canonical AgentOutput representation, detecting the originating
// framework from structural fingerprints rather than explicit type tags.
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arc-eval/core/internal/canon"
)

// Framework tags recognized by the detector. "generic" is the catch-all
// used whenever no more specific matcher fires.
const (
	FrameworkOpenAIChat       = "openai-chat"
	FrameworkAnthropic        = "anthropic-messages"
	FrameworkLangChain        = "langchain"
	FrameworkCrewAI           = "crewai"
	FrameworkAutoGen          = "autogen"
	FrameworkToolCallJSON     = "tool-call-json"
	FrameworkPlainText        = "plain-text"
	FrameworkGeneric          = "generic"
)

// detectionRule is one entry in the ordered (matcher, extractor) registry
// that framework detection dispatches on. The first matcher to return true
// wins.
type detectionRule struct {
	framework string
	confidence float64
	matches   func(m map[string]json.RawMessage) bool
	extract   func(raw json.RawMessage, m map[string]json.RawMessage) (canon.AgentOutput, error)
}

// Parser detects the framework of a raw trace payload and normalizes it
// into canonical AgentOutput records.
type Parser struct {
	logger *slog.Logger
	rules  []detectionRule
}

// New builds a Parser with the default registry of framework matchers,
// evaluated in declared order.
func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Parser{logger: logger.With("component", "parser.Parser")}
	p.rules = p.defaultRules()
	return p
}

// DetectFramework inspects a raw JSON payload's structural fingerprint and
// returns a framework tag plus a confidence in [0,1]. Never fails: on
// ambiguity it returns ("generic", a low confidence).
func (p *Parser) DetectFramework(payload json.RawMessage) (string, float64) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		// Not a JSON object at all (plain text, or a bare JSON string/array).
		return p.detectNonObject(payload)
	}
	for _, r := range p.rules {
		if r.matches(m) {
			return r.framework, r.confidence
		}
	}
	return FrameworkGeneric, 0.2
}

func (p *Parser) detectNonObject(payload json.RawMessage) (string, float64) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return FrameworkGeneric, 0.3
	}
	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		return FrameworkPlainText, 0.5
	}
	return FrameworkGeneric, 0.1
}

// Normalize extracts output_text, tool_calls, and reasoning_steps from a
// raw trace payload into a list of canonical AgentOutput records. payload
// may be a single object, a JSON array of objects, or a JSON string
// holding plain text; text that is not valid JSON (such as unquoted
// text) is rejected as a malformed record.
// framework, when non-empty, overrides auto-detection.
func (p *Parser) Normalize(payload json.RawMessage, framework string) ([]canon.AgentOutput, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		// Empty input is valid: produce a single AgentOutput with empty text.
		return []canon.AgentOutput{{OutputText: "", Framework: FrameworkGeneric}}, nil
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("parser: invalid JSON array: %w", err)
		}
		outputs := make([]canon.AgentOutput, 0, len(items))
		for i, item := range items {
			out, err := p.normalizeOne(item, framework)
			if err != nil {
				return nil, fmt.Errorf("parser: record %d: %w", i, err)
			}
			outputs = append(outputs, out)
		}
		return outputs, nil
	}

	out, err := p.normalizeOne(trimmed, framework)
	if err != nil {
		return nil, err
	}
	return []canon.AgentOutput{out}, nil
}

func (p *Parser) normalizeOne(payload json.RawMessage, framework string) (canon.AgentOutput, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		// Try bare string (plain text) before giving up.
		var s string
		if serr := json.Unmarshal(payload, &s); serr == nil {
			return canon.AgentOutput{OutputText: s, Framework: FrameworkPlainText}, nil
		}
		return canon.AgentOutput{}, fmt.Errorf("malformed JSON record: %w", err)
	}

	fw := framework
	if fw == "" {
		fw, _ = p.DetectFramework(payload)
	}

	for _, r := range p.rules {
		if r.framework == fw {
			out, err := r.extract(payload, m)
			if err != nil {
				return canon.AgentOutput{}, err
			}
			out.Framework = fw
			return out, nil
		}
	}
	// Unknown override or no matcher found: fall back to generic extraction.
	out, err := extractGeneric(payload, m)
	out.Framework = FrameworkGeneric
	return out, err
}

// Validate performs a lightweight structural check on a raw payload,
// producing actionable diagnostics rather than propagating JSON errors
// verbatim.
func (p *Parser) Validate(payload json.RawMessage) (bool, []string) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return true, nil
	}
	var js interface{}
	if err := json.Unmarshal(trimmed, &js); err != nil {
		return false, []string{fmt.Sprintf("invalid JSON: %v", err)}
	}
	return true, nil
}

func str(m map[string]json.RawMessage, key string) string {
	raw, ok := m[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\t' {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
