package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Makar0n1/art-automation/pkg/metrics"
)

const (
	llmTimeout    = 120 * time.Second
	defaultLLMURL = "https://openrouter.ai/api/v1"
)

// ChatMessage is one turn in a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenUsage accumulates token counters across calls.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// LLMClient wraps the chat completion HTTP API. One client is constructed
// per job from the owner's decrypted credential; token accounting is
// client-local.
type LLMClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client

	mu    sync.Mutex
	usage TokenUsage
}

// NewLLMClient creates a client for the given model. baseURL falls back to
// the hosted provider endpoint when empty.
func NewLLMClient(apiKey, baseURL, model string) *LLMClient {
	if baseURL == "" {
		baseURL = defaultLLMURL
	}
	return &LLMClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		http:    &http.Client{Timeout: llmTimeout},
	}
}

// Chat performs one completion call and returns the first choice content.
func (c *LLMClient) Chat(ctx context.Context, messages []ChatMessage, temperature float64, maxTokens int) (string, error) {
	reqBody := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": temperature,
		"max_tokens":  maxTokens,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("openrouter", "error").Inc()
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ProviderRequestsTotal.WithLabelValues("openrouter", "error").Inc()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("chat provider returned status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("openrouter", "error").Inc()
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	metrics.ProviderRequestsTotal.WithLabelValues("openrouter", "ok").Inc()

	c.mu.Lock()
	c.usage.PromptTokens += out.Usage.PromptTokens
	c.usage.CompletionTokens += out.Usage.CompletionTokens
	c.usage.TotalTokens += out.Usage.TotalTokens
	c.mu.Unlock()
	metrics.ProviderTokensTotal.WithLabelValues("prompt").Add(float64(out.Usage.PromptTokens))
	metrics.ProviderTokensTotal.WithLabelValues("completion").Add(float64(out.Usage.CompletionTokens))

	if len(out.Choices) == 0 {
		return "", fmt.Errorf("chat provider returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// GetTokenUsage returns the accumulated counters, optionally resetting
// them.
func (c *LLMClient) GetTokenUsage(reset bool) TokenUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	usage := c.usage
	if reset {
		c.usage = TokenUsage{}
	}
	return usage
}

// Ping performs a minimal completion to validate the credential.
func (c *LLMClient) Ping(ctx context.Context) error {
	_, err := c.Chat(ctx, []ChatMessage{{Role: "user", Content: "ping"}}, 0, 1)
	return err
}

// extractJSON pulls the first JSON object or array out of an LLM response,
// tolerating markdown code fences and surrounding prose.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			s = strings.TrimSpace(rest[:end])
		}
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	open := s[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}
