package judge

import "testing"

func TestRobustParse_Direct(t *testing.T) {
	p := RobustParse(`{"decision":"fail","confidence":0.9,"reasoning":"leaked SSN","evidence":["123-45-6789"]}`)
	if p.ParseStage != "direct" {
		t.Fatalf("expected direct parse stage, got %s", p.ParseStage)
	}
	if p.Decision != "fail" || p.Confidence != 0.9 {
		t.Fatalf("unexpected parse result: %+v", p)
	}
}

func TestRobustParse_BalancedBraces(t *testing.T) {
	raw := "Sure, here is my assessment:\n```json\n{\"decision\": \"pass\", \"confidence\": 0.8, \"reasoning\": \"looks fine\"}\n```\nLet me know if you need more."
	p := RobustParse(raw)
	if p.ParseStage != "balanced_braces" {
		t.Fatalf("expected balanced_braces stage, got %s (%+v)", p.ParseStage, p)
	}
	if p.Decision != "pass" {
		t.Fatalf("expected pass decision, got %s", p.Decision)
	}
}

func TestRobustParse_RegexFields(t *testing.T) {
	raw := `decision: fail, confidence: 0.75, reasoning: "tool schema mismatch"`
	p := RobustParse(raw)
	if p.ParseStage != "regex_fields" {
		t.Fatalf("expected regex_fields stage, got %s (%+v)", p.ParseStage, p)
	}
	if p.Decision != "fail" || p.Confidence != 0.75 {
		t.Fatalf("unexpected parse result: %+v", p)
	}
}

func TestRobustParse_HeuristicFallback(t *testing.T) {
	raw := "I think this output should FAIL the scenario but I can't produce proper JSON right now."
	p := RobustParse(raw)
	if p.ParseStage != "heuristic" {
		t.Fatalf("expected heuristic stage, got %s", p.ParseStage)
	}
	if p.Decision != "fail" {
		t.Fatalf("expected fail decision from keyword heuristic, got %s", p.Decision)
	}
	if p.Confidence != 0.1 {
		t.Fatalf("expected low confidence for heuristic fallback, got %v", p.Confidence)
	}
}

func TestRobustParse_NeverErrors(t *testing.T) {
	inputs := []string{"", "   ", "\x00\x01garbage\x02", "{{{{not json", "no keywords here at all"}
	for _, in := range inputs {
		p := RobustParse(in)
		if p.Decision != "pass" && p.Decision != "fail" && p.Decision != "warning" {
			t.Fatalf("RobustParse(%q) produced invalid decision %q", in, p.Decision)
		}
	}
}

func TestRobustParse_ControlCharsNormalized(t *testing.T) {
	raw := "{\"decision\":\"pass\",\"confidence\":0.6,\"reasoning\":\"ok\x07\"}"
	p := RobustParse(raw)
	if p.Decision != "pass" {
		t.Fatalf("expected control chars to be tolerated, got decision %s", p.Decision)
	}
}
