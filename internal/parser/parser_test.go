package parser

import (
	"encoding/json"
	"testing"
)

func TestDetectFramework_OpenAI(t *testing.T) {
	p := New(nil)
	fw, conf := p.DetectFramework(json.RawMessage(`{"choices":[{"message":{"content":"hi"}}]}`))
	if fw != FrameworkOpenAIChat {
		t.Errorf("framework = %s, want %s", fw, FrameworkOpenAIChat)
	}
	if conf <= 0 || conf > 1 {
		t.Errorf("confidence out of range: %v", conf)
	}
}

func TestDetectFramework_Unknown(t *testing.T) {
	p := New(nil)
	fw, conf := p.DetectFramework(json.RawMessage(`{"foo":"bar"}`))
	if fw != FrameworkGeneric {
		t.Errorf("framework = %s, want generic", fw)
	}
	if conf >= 0.5 {
		t.Errorf("expected low confidence on ambiguity, got %v", conf)
	}
}

func TestNormalize_EmptyInput(t *testing.T) {
	p := New(nil)
	outs, err := p.Normalize(json.RawMessage(``), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outs) != 1 || outs[0].OutputText != "" {
		t.Fatalf("expected single empty AgentOutput, got %+v", outs)
	}
}

func TestValidate_MalformedJSON(t *testing.T) {
	p := New(nil)
	_, errs := p.Validate(json.RawMessage(`{not json`))
	if len(errs) == 0 {
		t.Fatal("expected validation error for malformed JSON")
	}
}

func TestNormalize_ToolCallParameterNamesPreserved(t *testing.T) {
	p := New(nil)
	payload := json.RawMessage(`{"output":"ok","tool_calls":[{"name":"search","parameters":{"search_term":"widgets"}}]}`)
	outs, err := p.Normalize(payload, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outs) != 1 || len(outs[0].ToolCalls) != 1 {
		t.Fatalf("expected one tool call, got %+v", outs)
	}
	var params map[string]string
	if err := json.Unmarshal(outs[0].ToolCalls[0].Parameters, &params); err != nil {
		t.Fatalf("params not valid JSON: %v", err)
	}
	if _, ok := params["search_term"]; !ok {
		t.Errorf("expected verbatim parameter name search_term, got %+v", params)
	}
}

func TestNormalize_MixedFrameworksInBatch(t *testing.T) {
	p := New(nil)
	payload := json.RawMessage(`[{"choices":[{"message":{"content":"a"}}]},{"output":"b"}]`)
	outs, err := p.Normalize(payload, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(outs))
	}
	if outs[0].Framework != FrameworkOpenAIChat {
		t.Errorf("record 0 framework = %s", outs[0].Framework)
	}
	if outs[1].Framework != FrameworkGeneric {
		t.Errorf("record 1 framework = %s", outs[1].Framework)
	}
}
