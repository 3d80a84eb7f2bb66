package ai

import (
	"context"
	"errors"
	"time"

	"github.com/jsnider89/ai-news-digest/internal/config"
	"github.com/jsnider89/ai-news-digest/internal/domain"
	"github.com/jsnider89/ai-news-digest/internal/pkg/logger"
)

// ErrExhausted means every configured provider failed; callers switch
// to the headlines fallback.
var ErrExhausted = errors.New("all AI providers failed")

const (
	attemptsPerProvider = 3
	defaultBaseDelay    = 500 * time.Millisecond
	defaultLLMTimeout   = 60 * time.Second
)

// Result is a successful generation (or the headlines fallback).
type Result struct {
	Markdown   string
	Label      string
	TokensIn   int
	TokensOut  int
	Degenerate bool
}

// Cascade tries each configured provider stage in order. A stage gets
// up to three attempts with exponential backoff, retrying only network
// errors and HTTP 429/5xx; anything else advances to the next stage.
type Cascade struct {
	stages    []config.ProviderStage
	providers map[string]Provider
	timeout   time.Duration
	baseDelay time.Duration
}

// NewCascade wires providers from the configured credentials and keeps
// only pipeline stages whose provider initialised. Stages referencing
// missing credentials are dropped with a warning.
func NewCascade(ctx context.Context, cfg config.AIConfig) *Cascade {
	providers := make(map[string]Provider)
	if cfg.OpenAIKey != "" {
		providers["openai"] = NewOpenAIProvider(cfg.OpenAIKey, cfg.ResponsesPrefixes)
	}
	if cfg.AnthropicKey != "" {
		providers["anthropic"] = NewAnthropicProvider(cfg.AnthropicKey)
	}
	if cfg.GeminiKey != "" {
		providers["gemini"] = NewGeminiProvider(cfg.GeminiKey)
	}
	if cfg.BedrockRegion != "" {
		if bp, err := NewBedrockProvider(ctx, cfg.BedrockRegion); err != nil {
			logger.Warn("bedrock provider unavailable", "error", err.Error())
		} else {
			providers["bedrock"] = bp
		}
	}

	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = defaultLLMTimeout
	}

	c := &Cascade{
		providers: providers,
		timeout:   timeout,
		baseDelay: defaultBaseDelay,
	}
	return c.WithStages(cfg.Pipeline)
}

// WithStages returns a cascade sharing this one's providers and timing
// but trying the given stages. Stages naming an unconfigured provider
// are dropped with a warning.
func (c *Cascade) WithStages(stages []config.ProviderStage) *Cascade {
	out := &Cascade{
		providers: c.providers,
		timeout:   c.timeout,
		baseDelay: c.baseDelay,
	}
	for _, stage := range stages {
		if _, ok := c.providers[stage.Provider]; !ok {
			logger.Warn("skipping cascade stage, provider not configured",
				"provider_id", stage.Provider, "model_id", stage.Model)
			continue
		}
		out.stages = append(out.stages, stage)
	}
	return out
}

// GenerateWith overlays the persisted settings on the configured stages
// for this one generation, then runs the cascade.
func (c *Cascade) GenerateWith(ctx context.Context, settings domain.Settings, prompt Prompt) (*Result, error) {
	return c.WithStages(ResolveStages(c.stages, settings)).Generate(ctx, prompt)
}

// Stages returns the labels of the usable pipeline, in order.
func (c *Cascade) Stages() []string {
	out := make([]string, 0, len(c.stages))
	for _, stage := range c.stages {
		out = append(out, c.providers[stage.Provider].Label(stage.Model))
	}
	return out
}

// Generate runs the cascade. The returned error is ErrExhausted when
// every stage failed, or the context error on cancellation.
func (c *Cascade) Generate(ctx context.Context, prompt Prompt) (*Result, error) {
	for i, stage := range c.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		provider := c.providers[stage.Provider]

		text, usage, err := c.attempt(ctx, provider, stage, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			fields := []interface{}{"provider_id", stage.Provider, "model_id", stage.Model}
			var pe *ProviderError
			if errors.As(err, &pe) && pe.Status != 0 {
				fields = append(fields, "status", pe.Status)
			}
			fields = append(fields, "error_snippet", snippet(err.Error(), errorSnippetMax))
			logger.Warn("ai.failed", fields...)
			continue
		}

		label := provider.Label(stage.Model)
		if i > 0 {
			label += " (fallback)"
		}
		logger.Info("ai.result",
			"provider_id", stage.Provider, "model_id", stage.Model,
			"tokens_in", usage.TokensIn, "tokens_out", usage.TokensOut)
		return &Result{
			Markdown:  text,
			Label:     label,
			TokensIn:  usage.TokensIn,
			TokensOut: usage.TokensOut,
		}, nil
	}
	return nil, ErrExhausted
}

// attempt runs one stage with its retry budget. Each try gets its own
// timeout; backoff doubles per retry.
func (c *Cascade) attempt(ctx context.Context, provider Provider, stage config.ProviderStage, prompt Prompt) (string, Usage, error) {
	var lastErr error
	for try := 0; try < attemptsPerProvider; try++ {
		if try > 0 {
			select {
			case <-time.After(c.baseDelay << (try - 1)):
			case <-ctx.Done():
				return "", Usage{}, ctx.Err()
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		text, usage, err := provider.Generate(attemptCtx, stage, prompt)
		cancel()
		if err == nil {
			return text, usage, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", Usage{}, ctx.Err()
		}
		if !retryable(err) {
			break
		}
	}
	return "", Usage{}, lastErr
}

// retryable applies the retry policy: explicit classification when the
// provider supplied one, otherwise assume a transport-level failure.
func retryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return true
}
