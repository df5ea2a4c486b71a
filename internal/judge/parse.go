package judge

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/arc-eval/core/internal/canon"
)

// judgeResponseJSON is the structured shape a judge is asked to emit.
type judgeResponseJSON struct {
	Decision   string   `json:"decision"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Evidence   []string `json:"evidence"`
}

var decisionKeyword = regexp.MustCompile(`(?i)\b(pass|fail|warning)\b`)
var decisionFieldRegex = regexp.MustCompile(`(?i)"?decision"?\s*[:=]\s*"?(pass|fail|warning)"?`)
var confidenceFieldRegex = regexp.MustCompile(`(?i)"?confidence"?\s*[:=]\s*"?([01](?:\.\d+)?)"?`)
var reasoningFieldRegex = regexp.MustCompile(`(?i)"?reasoning"?\s*[:=]\s*"([^"]*)"`)

// RobustParse parses a raw LLM response into a ParsedResponse, trying each
// stage in order and stopping at first success:
//  1. direct structured parse of the full response
//  2. extract the first balanced braced block and parse that
//  3. regex extraction of key fields
//  4. keyword heuristic fallback mapping pass|fail|warning onto decision
//
// Never returns an error: stage 4 always succeeds, producing a warning
// decision with low confidence when nothing else matches rather than
// raising an exception.
func RobustParse(raw string) ParsedResponse {
	normalized := normalizeControlChars(raw)

	if p, ok := tryDirectParse(normalized); ok {
		p.ParseStage = "direct"
		return p
	}
	if p, ok := tryBalancedBraceParse(normalized); ok {
		p.ParseStage = "balanced_braces"
		return p
	}
	if p, ok := tryRegexFieldExtraction(normalized); ok {
		p.ParseStage = "regex_fields"
		return p
	}
	return heuristicFallback(normalized)
}

func normalizeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\t' && r != '\r' {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func tryDirectParse(s string) (ParsedResponse, bool) {
	var parsed judgeResponseJSON
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return ParsedResponse{}, false
	}
	return fromJudgeJSON(parsed), true
}

func tryBalancedBraceParse(s string) (ParsedResponse, bool) {
	start := strings.Index(s, "{")
	if start < 0 {
		return ParsedResponse{}, false
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := s[start : i+1]
				var parsed judgeResponseJSON
				if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
					return fromJudgeJSON(parsed), true
				}
				return ParsedResponse{}, false
			}
		}
	}
	return ParsedResponse{}, false
}

func tryRegexFieldExtraction(s string) (ParsedResponse, bool) {
	dm := decisionFieldRegex.FindStringSubmatch(s)
	if dm == nil {
		return ParsedResponse{}, false
	}
	decision := canon.Decision(strings.ToLower(dm[1]))

	confidence := 0.5
	if cm := confidenceFieldRegex.FindStringSubmatch(s); cm != nil {
		if v, err := strconv.ParseFloat(cm[1], 64); err == nil {
			confidence = v
		}
	}

	reasoning := ""
	if rm := reasoningFieldRegex.FindStringSubmatch(s); rm != nil {
		reasoning = rm[1]
	}

	return ParsedResponse{
		Decision:   decision,
		Confidence: clamp01(confidence),
		Reasoning:  reasoning,
		Evidence:   []string{"extracted via regex field matching"},
	}, true
}

func heuristicFallback(s string) ParsedResponse {
	m := decisionKeyword.FindString(s)
	decision := canon.DecisionWarning
	if m != "" {
		decision = canon.Decision(strings.ToLower(m))
	}
	return ParsedResponse{
		Decision:   decision,
		Confidence: 0.1,
		Reasoning:  "could not parse a structured judge response; decision inferred from keyword heuristic",
		Evidence:   []string{fmt.Sprintf("parse_error: raw response %q", truncate(s, 200))},
		ParseStage: "heuristic",
	}
}

func fromJudgeJSON(p judgeResponseJSON) ParsedResponse {
	decision := canon.Decision(strings.ToLower(p.Decision))
	if decision != canon.DecisionPass && decision != canon.DecisionFail && decision != canon.DecisionWarning {
		decision = canon.DecisionWarning
	}
	return ParsedResponse{
		Decision:   decision,
		Confidence: clamp01(p.Confidence),
		Reasoning:  p.Reasoning,
		Evidence:   p.Evidence,
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
