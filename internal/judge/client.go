package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// HTTPClient calls an OpenAI-compatible chat completions endpoint. The
// provider API key comes from the one environment variable named at
// construction; there is no secondary key and no fallback provider.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKeyEnv  string
}

// NewHTTPClient builds an HTTPClient reading its API key from apiKeyEnv.
// baseURL defaults to the OpenAI API when empty.
func NewHTTPClient(baseURL, apiKeyEnv string, timeout time.Duration) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKeyEnv:  apiKeyEnv,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Logprobs    bool          `json:"logprobs,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Logprobs *struct {
			Content []struct {
				Token   string  `json:"token"`
				Logprob float64 `json:"logprob"`
			} `json:"content"`
		} `json:"logprobs,omitempty"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// transientError marks errors the judge runtime should retry (timeout,
// 429, 5xx) as opposed to auth/malformed errors that fail fast.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	_, ok := err.(*transientError)
	return ok
}

// Complete sends a chat completion request and returns the raw text plus
// any decision-token logprobs the provider exposed.
func (c *HTTPClient) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (Completion, error) {
	apiKey := os.Getenv(c.apiKeyEnv)
	if apiKey == "" {
		return Completion{}, fmt.Errorf("judge: environment variable %s is not set", c.apiKeyEnv)
	}

	reqBody := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.1,
		MaxTokens:   512,
		Logprobs:    true,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return Completion{}, fmt.Errorf("judge: marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return Completion{}, fmt.Errorf("judge: create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Completion{}, &transientError{fmt.Errorf("judge: HTTP request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return Completion{}, &transientError{fmt.Errorf("judge: provider returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Completion{}, fmt.Errorf("judge: provider auth error, status %d", resp.StatusCode)
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Completion{}, fmt.Errorf("judge: decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if result.Error != nil {
			msg += ": " + result.Error.Message
		}
		return Completion{}, fmt.Errorf("judge: provider error: %s", msg)
	}
	if len(result.Choices) == 0 {
		return Completion{}, fmt.Errorf("judge: provider returned no choices")
	}

	out := Completion{Text: strings.TrimSpace(result.Choices[0].Message.Content)}
	if lp := result.Choices[0].Logprobs; lp != nil {
		out.Logprobs = make(map[string]float64, len(lp.Content))
		for _, tok := range lp.Content {
			out.Logprobs[tok.Token] = tok.Logprob
		}
	}
	return out, nil
}
