package parser

import (
	"encoding/json"

	"github.com/arc-eval/core/internal/canon"
)

// defaultRules builds the ordered (matcher, extractor) registry. Order
// matters: the first matcher to return true wins, so more specific
// fingerprints (CrewAI's agent+task pair, LangChain's intermediate_steps)
// are checked before the generic catch-alls.
func (p *Parser) defaultRules() []detectionRule {
	return []detectionRule{
		{
			framework:  FrameworkOpenAIChat,
			confidence: 0.95,
			matches: func(m map[string]json.RawMessage) bool {
				_, ok := m["choices"]
				return ok
			},
			extract: extractOpenAIChat,
		},
		{
			framework:  FrameworkAnthropic,
			confidence: 0.9,
			matches: func(m map[string]json.RawMessage) bool {
				_, hasContent := m["content"]
				_, hasRole := m["role"]
				_, hasStop := m["stop_reason"]
				return hasContent && (hasRole || hasStop)
			},
			extract: extractAnthropicMessages,
		},
		{
			framework:  FrameworkLangChain,
			confidence: 0.9,
			matches: func(m map[string]json.RawMessage) bool {
				_, ok := m["intermediate_steps"]
				return ok
			},
			extract: extractLangChain,
		},
		{
			framework:  FrameworkCrewAI,
			confidence: 0.85,
			matches: func(m map[string]json.RawMessage) bool {
				_, hasAgent := m["agent"]
				_, hasTask := m["task"]
				return hasAgent && hasTask
			},
			extract: extractCrewAI,
		},
		{
			framework:  FrameworkAutoGen,
			confidence: 0.8,
			matches: func(m map[string]json.RawMessage) bool {
				_, ok := m["messages"]
				if !ok {
					return false
				}
				var msgs []json.RawMessage
				if err := json.Unmarshal(m["messages"], &msgs); err != nil {
					return false
				}
				return len(msgs) > 0
			},
			extract: extractAutoGen,
		},
		{
			framework:  FrameworkToolCallJSON,
			confidence: 0.7,
			matches: func(m map[string]json.RawMessage) bool {
				_, ok := m["tool_calls"]
				return ok
			},
			extract: extractToolCallJSON,
		},
		{
			framework:  FrameworkGeneric,
			confidence: 0.6,
			matches: func(m map[string]json.RawMessage) bool {
				_, ok := m["output"]
				return ok
			},
			extract: extractGeneric,
		},
		{
			framework:  FrameworkPlainText,
			confidence: 0.6,
			matches: func(m map[string]json.RawMessage) bool {
				_, ok := m["content"]
				return ok
			},
			extract: extractContentField,
		},
	}
}

type openAIChoice struct {
	Message struct {
		Content   string          `json:"content"`
		ToolCalls []openAIToolCall `json:"tool_calls"`
	} `json:"message"`
}

type openAIToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

func extractOpenAIChat(raw json.RawMessage, m map[string]json.RawMessage) (canon.AgentOutput, error) {
	var body struct {
		Choices []openAIChoice `json:"choices"`
		Model   string         `json:"model"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return canon.AgentOutput{}, err
	}
	out := canon.AgentOutput{Metadata: canon.OutputMetadata{Model: body.Model}}
	if len(body.Choices) > 0 {
		c := body.Choices[0]
		out.OutputText = normalizeWhitespace(c.Message.Content)
		for _, tc := range c.Message.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, canon.ToolCall{
				Name:       tc.Function.Name,
				Parameters: tc.Function.Arguments,
			})
		}
	}
	return out, nil
}

func extractAnthropicMessages(raw json.RawMessage, m map[string]json.RawMessage) (canon.AgentOutput, error) {
	var body struct {
		Content []struct {
			Type  string          `json:"type"`
			Text  string          `json:"text"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		} `json:"content"`
		Model string `json:"model"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return canon.AgentOutput{}, err
	}
	out := canon.AgentOutput{Metadata: canon.OutputMetadata{Model: body.Model}}
	for _, c := range body.Content {
		switch c.Type {
		case "text", "":
			out.OutputText += normalizeWhitespace(c.Text)
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, canon.ToolCall{
				Name:       c.Name,
				Parameters: c.Input,
			})
		}
	}
	return out, nil
}

func extractLangChain(raw json.RawMessage, m map[string]json.RawMessage) (canon.AgentOutput, error) {
	var body struct {
		Output            string            `json:"output"`
		IntermediateSteps []json.RawMessage `json:"intermediate_steps"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return canon.AgentOutput{}, err
	}
	out := canon.AgentOutput{OutputText: normalizeWhitespace(body.Output)}
	for _, step := range body.IntermediateSteps {
		// LangChain steps are typically [action, observation] pairs; we
		// don't know the exact shape ahead of time so keep the raw JSON
		// as the step content and let downstream consumers parse further.
		var pair []json.RawMessage
		if err := json.Unmarshal(step, &pair); err == nil && len(pair) >= 1 {
			var action struct {
				Tool      string          `json:"tool"`
				ToolInput json.RawMessage `json:"tool_input"`
			}
			if err := json.Unmarshal(pair[0], &action); err == nil && action.Tool != "" {
				out.ToolCalls = append(out.ToolCalls, canon.ToolCall{
					Name:       action.Tool,
					Parameters: action.ToolInput,
				})
			}
		}
		out.ReasoningSteps = append(out.ReasoningSteps, canon.Step{Kind: "intermediate_step", Content: string(step)})
	}
	return out, nil
}

func extractCrewAI(raw json.RawMessage, m map[string]json.RawMessage) (canon.AgentOutput, error) {
	var body struct {
		Agent  string `json:"agent"`
		Task   string `json:"task"`
		Result string `json:"result"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return canon.AgentOutput{}, err
	}
	out := canon.AgentOutput{OutputText: normalizeWhitespace(body.Result)}
	out.ReasoningSteps = append(out.ReasoningSteps, canon.Step{Kind: "task", Content: body.Agent + ": " + body.Task})
	return out, nil
}

func extractAutoGen(raw json.RawMessage, m map[string]json.RawMessage) (canon.AgentOutput, error) {
	var body struct {
		Messages []struct {
			Content string `json:"content"`
			Name    string `json:"name"`
			Role    string `json:"role"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return canon.AgentOutput{}, err
	}
	out := canon.AgentOutput{}
	for _, msg := range body.Messages {
		out.ReasoningSteps = append(out.ReasoningSteps, canon.Step{Kind: msg.Role, Content: msg.Content})
	}
	if n := len(body.Messages); n > 0 {
		out.OutputText = normalizeWhitespace(body.Messages[n-1].Content)
	}
	return out, nil
}

func extractToolCallJSON(raw json.RawMessage, m map[string]json.RawMessage) (canon.AgentOutput, error) {
	var body struct {
		Output    string `json:"output"`
		ToolCalls []struct {
			Name       string          `json:"name"`
			Parameters json.RawMessage `json:"parameters"`
			Result     json.RawMessage `json:"result"`
			Error      string          `json:"error"`
		} `json:"tool_calls"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return canon.AgentOutput{}, err
	}
	out := canon.AgentOutput{OutputText: normalizeWhitespace(body.Output)}
	for _, tc := range body.ToolCalls {
		// Parameter names are preserved verbatim, required for
		// tool-schema-mismatch detection downstream.
		out.ToolCalls = append(out.ToolCalls, canon.ToolCall{
			Name:       tc.Name,
			Parameters: tc.Parameters,
			Result:     tc.Result,
			Error:      tc.Error,
		})
	}
	return out, nil
}

func extractGeneric(raw json.RawMessage, m map[string]json.RawMessage) (canon.AgentOutput, error) {
	return canon.AgentOutput{OutputText: normalizeWhitespace(str(m, "output"))}, nil
}

func extractContentField(raw json.RawMessage, m map[string]json.RawMessage) (canon.AgentOutput, error) {
	return canon.AgentOutput{OutputText: normalizeWhitespace(str(m, "content"))}, nil
}
