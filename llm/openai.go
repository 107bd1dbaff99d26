package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Explainer narrates a prediction for the dashboard.
type Explainer interface {
	Explain(ctx context.Context, area float64, rooms int, distance, price float64) (string, error)
}

// OpenAIExplainer asks an OpenAI chat model to explain a predicted price in
// plain language.
type OpenAIExplainer struct {
	apiKey    string
	model     string
	client    *http.Client
	baseURL   string
	maxTokens int
}

func NewOpenAIExplainer(apiKey, model string, timeout time.Duration, maxTokens int) *OpenAIExplainer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OpenAIExplainer{
		apiKey:    apiKey,
		model:     model,
		client:    &http.Client{Timeout: timeout},
		baseURL:   "https://api.openai.com/v1/chat/completions",
		maxTokens: maxTokens,
	}
}

// SetBaseURL points the client at a different endpoint. Used by tests.
func (o *OpenAIExplainer) SetBaseURL(url string) {
	o.baseURL = url
}

func (o *OpenAIExplainer) Explain(ctx context.Context, area float64, rooms int, distance, price float64) (string, error) {
	if o == nil || o.client == nil {
		return "", errors.New("openai explainer not configured")
	}
	if o.apiKey == "" {
		return "", errors.New("openai api key is required")
	}
	model := o.model
	if model == "" {
		model = "gpt-4o-mini"
	}

	prompt := fmt.Sprintf(`You are a real estate assistant.
The model predicted this price: %.2f.
Features:
- Area: %g
- Rooms: %d
- Distance: %g

Explain why the prediction makes sense in simple terms.`, price, area, rooms, distance)

	requestBody := chatRequest{
		Model: model,
		Messages: []chatMessage{{
			Role:    "user",
			Content: prompt,
		}},
		MaxTokens:   o.maxTokens,
		Temperature: 0.2,
	}
	payload, err := json.Marshal(requestBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", o.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr chatErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("openai api error: %s", apiErr.Error.Message)
		}
		return "", fmt.Errorf("openai api returned status %d", resp.StatusCode)
	}

	var apiResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", err
	}
	if len(apiResp.Choices) == 0 {
		return "", errors.New("openai api returned empty response")
	}
	return strings.TrimSpace(apiResp.Choices[0].Message.Content), nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
