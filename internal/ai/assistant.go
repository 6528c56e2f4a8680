package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
)

type OpenAICompatAssistant struct {
	client    *resty.Client
	cache     *cache.Cache
	model     string
	maxTokens int
}

type RateLimitError struct {
	RetryAfter time.Duration
}

func (r RateLimitError) Error() string {
	if r.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", r.RetryAfter)
	}
	return "rate limited"
}

func NewOpenAICompatAssistant(baseURL, apiKey, model string, timeout time.Duration) (*OpenAICompatAssistant, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("LLM_BASE_URL is not set")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("LLM_MODEL is not set")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	if strings.TrimSpace(apiKey) != "" {
		client.SetAuthToken(apiKey)
	}
	return &OpenAICompatAssistant{
		client:    client,
		cache:     cache.New(60*time.Second, 5*time.Minute),
		model:     model,
		maxTokens: 200,
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Messages    []ChatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (a *OpenAICompatAssistant) Ask(ctx context.Context, prompt string, history []ChatMessage) (string, error) {
	key := cacheKey(prompt, history)
	if v, ok := a.cache.Get(key); ok {
		return v.(string), nil
	}

	payload := chatRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages:  append(append([]ChatMessage{}, history...), ChatMessage{Role: "user", Content: prompt}),
	}

	var (
		res     chatResponse
		errBody map[string]any
	)
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&res).
		SetError(&errBody).
		Post("/chat/completions")
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return "", errors.New("assistant request timed out")
		}
		return "", fmt.Errorf("assistant request failed: %w", err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return "", RateLimitError{RetryAfter: extractRetryAfter(errBody)}
	}
	if resp.IsError() {
		return "", fmt.Errorf("assistant http error: %s: %v", resp.Status(), errBody)
	}
	if len(res.Choices) == 0 {
		return "", errors.New("empty assistant response")
	}
	answer := res.Choices[0].Message.Content
	a.cache.SetDefault(key, answer)
	return answer, nil
}

func cacheKey(prompt string, history []ChatMessage) string {
	var b strings.Builder
	for _, h := range history {
		b.WriteString(h.Role)
		b.WriteByte(':')
		b.WriteString(h.Content)
		b.WriteByte('\n')
	}
	b.WriteString(prompt)
	return b.String()
}

func extractRetryAfter(errBody map[string]any) time.Duration {
	errObj, ok := errBody["error"].(map[string]any)
	if !ok {
		return 0
	}
	details, ok := errObj["details"].([]any)
	if !ok {
		return 0
	}
	for _, d := range details {
		m, ok := d.(map[string]any)
		if !ok {
			continue
		}
		if t, ok := m["@type"].(string); ok && strings.Contains(t, "RetryInfo") {
			if s, ok := m["retryDelay"].(string); ok {
				if dur, err := time.ParseDuration(s); err == nil {
					return dur
				}
			}
		}
	}
	return 0
}
