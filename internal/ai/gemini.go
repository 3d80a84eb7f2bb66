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
	geminiDefaultBaseURL   = "https://generativelanguage.googleapis.com"
	geminiDefaultMaxTokens = 12000
)

// GeminiProvider calls the Google generative language API. Gemini has
// no separate system role here; system text is prepended to the input.
type GeminiProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{
		apiKey:  apiKey,
		baseURL: geminiDefaultBaseURL,
		client:  &http.Client{},
	}
}

func (p *GeminiProvider) ID() string { return "gemini" }

func (p *GeminiProvider) Label(model string) string { return "Gemini " + model }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *GeminiProvider) Generate(ctx context.Context, stage config.ProviderStage, prompt Prompt) (string, Usage, error) {
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

func (p *GeminiProvider) buildRequest(ctx context.Context, stage config.ProviderStage, prompt Prompt) (*http.Request, error) {
	maxTokens := stage.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = geminiDefaultMaxTokens
	}
	text := prompt.User
	if prompt.System != "" {
		text = prompt.System + "\n\n" + prompt.User
	}
	payload := &geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: text}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.7,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: maxTokens,
		},
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, parseError(fmt.Sprintf("failed to encode request: %v", err))
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, stage.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, parseError(fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	// Key travels in a header so request URLs stay safe to log.
	req.Header.Set("x-goog-api-key", p.apiKey)
	return req, nil
}

func (p *GeminiProvider) parseResponse(body []byte) (string, Usage, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", Usage{}, parseError(fmt.Sprintf("failed to decode response: %v", err))
	}
	if resp.Error != nil {
		return "", Usage{}, parseError("API error: " + resp.Error.Message)
	}
	if len(resp.Candidates) == 0 {
		return "", Usage{}, parseError("no candidates returned")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	text := b.String()
	if strings.TrimSpace(text) == "" {
		return "", Usage{}, parseError("empty output")
	}
	return text, Usage{
		TokensIn:  resp.UsageMetadata.PromptTokenCount,
		TokensOut: resp.UsageMetadata.CandidatesTokenCount,
	}, nil
}
