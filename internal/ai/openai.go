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
	openAIDefaultBaseURL   = "https://api.openai.com/v1"
	openAIDefaultMaxTokens = 8000
)

// OpenAIProvider speaks both OpenAI request shapes: the classic chat
// completions API and the responses API used by reasoning models.
// Which one applies is decided by the configured model-id prefixes.
type OpenAIProvider struct {
	apiKey            string
	baseURL           string
	responsesPrefixes []string
	client            *http.Client
}

// NewOpenAIProvider builds the provider. prefixes selects which models
// use the responses shape (defaults cover gpt-5/o3/o4).
func NewOpenAIProvider(apiKey string, prefixes []string) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:            apiKey,
		baseURL:           openAIDefaultBaseURL,
		responsesPrefixes: prefixes,
		client:            &http.Client{},
	}
}

func (p *OpenAIProvider) ID() string { return "openai" }

func (p *OpenAIProvider) Label(model string) string { return "OpenAI " + model }

// usesResponses reports whether the model id selects the responses API.
func (p *OpenAIProvider) usesResponses(model string) bool {
	for _, prefix := range p.responsesPrefixes {
		if prefix != "" && strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiError struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

type openAIChatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error,omitempty"`
}

type openAIReasoning struct {
	Effort string `json:"effort"`
}

type openAIText struct {
	Verbosity string `json:"verbosity"`
}

type openAIResponsesRequest struct {
	Model           string           `json:"model"`
	Instructions    string           `json:"instructions,omitempty"`
	Input           string           `json:"input"`
	MaxOutputTokens int              `json:"max_output_tokens,omitempty"`
	Reasoning       *openAIReasoning `json:"reasoning,omitempty"`
	Text            *openAIText      `json:"text,omitempty"`
}

type openAIResponsesResponse struct {
	OutputText string `json:"output_text"`
	Output     []struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error,omitempty"`
}

// Generate performs one attempt against the shape selected by the model.
func (p *OpenAIProvider) Generate(ctx context.Context, stage config.ProviderStage, prompt Prompt) (string, Usage, error) {
	req, responses, err := p.buildRequest(ctx, stage, prompt)
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
	if responses {
		return p.parseResponses(body)
	}
	return p.parseChat(body)
}

func (p *OpenAIProvider) buildRequest(ctx context.Context, stage config.ProviderStage, prompt Prompt) (*http.Request, bool, error) {
	maxTokens := stage.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = openAIDefaultMaxTokens
	}

	var (
		endpoint  string
		payload   interface{}
		responses = p.usesResponses(stage.Model)
	)
	if responses {
		body := &openAIResponsesRequest{
			Model:           stage.Model,
			Instructions:    prompt.System,
			Input:           prompt.User,
			MaxOutputTokens: maxTokens,
		}
		if stage.ReasoningEffort != "" {
			body.Reasoning = &openAIReasoning{Effort: stage.ReasoningEffort}
		}
		if v := firstNonEmpty(prompt.Verbosity, stage.Verbosity); v != "" {
			body.Text = &openAIText{Verbosity: v}
		}
		endpoint = p.baseURL + "/responses"
		payload = body
	} else {
		endpoint = p.baseURL + "/chat/completions"
		payload = &openAIChatRequest{
			Model: stage.Model,
			Messages: []chatMessage{
				{Role: "system", Content: prompt.System},
				{Role: "user", Content: prompt.User},
			},
			MaxTokens:   maxTokens,
			Temperature: 0.7,
			TopP:        0.9,
		}
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, false, parseError(fmt.Sprintf("failed to encode request: %v", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, false, parseError(fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	return req, responses, nil
}

func (p *OpenAIProvider) parseChat(body []byte) (string, Usage, error) {
	var resp openAIChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", Usage{}, parseError(fmt.Sprintf("failed to decode response: %v", err))
	}
	if resp.Error != nil {
		return "", Usage{}, parseError("API error: " + resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", Usage{}, parseError("no choices returned")
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", Usage{}, parseError("empty output")
	}
	return content, Usage{TokensIn: resp.Usage.PromptTokens, TokensOut: resp.Usage.CompletionTokens}, nil
}

func (p *OpenAIProvider) parseResponses(body []byte) (string, Usage, error) {
	var resp openAIResponsesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", Usage{}, parseError(fmt.Sprintf("failed to decode response: %v", err))
	}
	if resp.Error != nil {
		return "", Usage{}, parseError("API error: " + resp.Error.Message)
	}

	text := resp.OutputText
	if strings.TrimSpace(text) == "" {
		var b strings.Builder
		for _, out := range resp.Output {
			for _, part := range out.Content {
				b.WriteString(part.Text)
			}
		}
		text = b.String()
	}
	if strings.TrimSpace(text) == "" {
		return "", Usage{}, parseError("empty output")
	}
	return text, Usage{TokensIn: resp.Usage.InputTokens, TokensOut: resp.Usage.OutputTokens}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
