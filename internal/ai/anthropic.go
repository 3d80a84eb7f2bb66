package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jsnider89/ai-news-digest/internal/config"
)

const (
	anthropicDefaultBaseURL   = "https://api.anthropic.com"
	anthropicVersion          = "2023-06-01"
	anthropicDefaultMaxTokens = 4000
)

// AnthropicProvider calls the Anthropic messages API.
type AnthropicProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey:  apiKey,
		baseURL: anthropicDefaultBaseURL,
		client:  &http.Client{},
	}
}

func (p *AnthropicProvider) ID() string { return "anthropic" }

func (p *AnthropicProvider) Label(model string) string { return "Anthropic " + model }

type anthropicRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error,omitempty"`
}

func (p *AnthropicProvider) Generate(ctx context.Context, stage config.ProviderStage, prompt Prompt) (string, Usage, error) {
	req, err := p.buildRequest(ctx, stage, prompt)
	if err != nil {
		return "", Usage{}, err
	}
	status, body, err := send(p.client, req)
	if err != nil {
		return "", Usage{}, err
	}
	if status < 200 || status >= 300 {
		return "", Usage{}, httpStatusError(status, body)
	}
	return p.parseResponse(body)
}

func (p *AnthropicProvider) buildRequest(ctx context.Context, stage config.ProviderStage, prompt Prompt) (*http.Request, error) {
	maxTokens := stage.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	payload := &anthropicRequest{
		Model:       stage.Model,
		System:      prompt.System,
		Messages:    []chatMessage{{Role: "user", Content: prompt.User}},
		MaxTokens:   maxTokens,
		Temperature: 0.7,
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, parseError(fmt.Sprintf("failed to encode request: %v", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, parseError(fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	return req, nil
}

func (p *AnthropicProvider) parseResponse(body []byte) (string, Usage, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", Usage{}, parseError(fmt.Sprintf("failed to decode response: %v", err))
	}
	if resp.Error != nil {
		return "", Usage{}, parseError("API error: " + resp.Error.Message)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "" || block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := b.String()
	if strings.TrimSpace(text) == "" {
		return "", Usage{}, parseError("empty output")
	}
	return text, Usage{TokensIn: resp.Usage.InputTokens, TokensOut: resp.Usage.OutputTokens}, nil
}
