package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/jsnider89/ai-news-digest/internal/config"
)

const (
	bedrockAnthropicVersion = "bedrock-2023-05-31"
	bedrockDefaultMaxTokens = 4000
)

// bedrockInvoker is the slice of the Bedrock runtime client we use;
// tests substitute it.
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockProvider drives Anthropic models hosted on AWS Bedrock with
// the anthropic-messages payload.
type BedrockProvider struct {
	client bedrockInvoker
}

// NewBedrockProvider builds the provider from the default AWS
// credential chain for the given region.
func NewBedrockProvider(ctx context.Context, region string) (*BedrockProvider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &BedrockProvider{client: bedrockruntime.NewFromConfig(awsCfg)}, nil
}

func (p *BedrockProvider) ID() string { return "bedrock" }

func (p *BedrockProvider) Label(model string) string { return "Bedrock " + model }

type bedrockRequest struct {
	AnthropicVersion string        `json:"anthropic_version"`
	System           string        `json:"system,omitempty"`
	Messages         []chatMessage `json:"messages"`
	MaxTokens        int           `json:"max_tokens"`
	Temperature      float64       `json:"temperature,omitempty"`
}

func (p *BedrockProvider) Generate(ctx context.Context, stage config.ProviderStage, prompt Prompt) (string, Usage, error) {
	maxTokens := stage.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = bedrockDefaultMaxTokens
	}
	payload, err := json.Marshal(&bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		System:           prompt.System,
		Messages:         []chatMessage{{Role: "user", Content: prompt.User}},
		MaxTokens:        maxTokens,
		Temperature:      0.7,
	})
	if err != nil {
		return "", Usage{}, parseError(fmt.Sprintf("failed to encode request: %v", err))
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(stage.Model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return "", Usage{}, classifyBedrockError(err)
	}

	// Bedrock wraps the same response body the Anthropic API returns.
	var resp anthropicResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", Usage{}, parseError(fmt.Sprintf("failed to decode response: %v", err))
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

// classifyBedrockError maps SDK failures onto the retry policy: HTTP
// status when one is attached, network otherwise.
func classifyBedrockError(err error) *ProviderError {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return httpStatusError(respErr.HTTPStatusCode(), []byte(err.Error()))
	}
	return networkError(err)
}
