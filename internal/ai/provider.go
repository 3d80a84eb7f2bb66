// Package ai turns a run's selected articles and market quotes into the
// digest body by prompting an ordered cascade of LLM providers, falling
// back to a deterministic headlines digest when every provider fails.
package ai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jsnider89/ai-news-digest/internal/config"
)

// Prompt carries the assembled messages for one generation request.
// Verbosity is a hint consumed only by responses-shape models.
type Prompt struct {
	System    string
	User      string
	Verbosity string
}

// Usage captures token counts when a provider reports them.
type Usage struct {
	TokensIn  int
	TokensOut int
}

// Provider is one vendor in the cascade. Generate performs a single
// attempt; retry policy and fallback order belong to the Cascade.
type Provider interface {
	ID() string
	Label(model string) string
	Generate(ctx context.Context, stage config.ProviderStage, prompt Prompt) (string, Usage, error)
}

// ProviderError classifies a failed attempt for the retry policy.
// Status is zero for non-HTTP failures.
type ProviderError struct {
	Status    int
	Message   string
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	}
	return e.Message
}

// httpStatusError builds the ProviderError for a non-2xx response.
// Only 429 and 5xx responses are worth retrying.
func httpStatusError(status int, body []byte) *ProviderError {
	return &ProviderError{
		Status:    status,
		Message:   snippet(string(body), errorSnippetMax),
		Retryable: status == http.StatusTooManyRequests || status >= 500,
	}
}

// networkError wraps a transport-level failure; always retryable.
func networkError(err error) *ProviderError {
	return &ProviderError{Message: snippet(err.Error(), errorSnippetMax), Retryable: true}
}

// parseError marks a malformed or empty provider response; advancing to
// the next provider beats retrying the same broken endpoint.
func parseError(msg string) *ProviderError {
	return &ProviderError{Message: snippet(msg, errorSnippetMax)}
}

// errorSnippetMax bounds diagnostic text kept from provider failures.
// Request bodies are never captured, only response prefixes.
const errorSnippetMax = 500

func snippet(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// send executes one provider HTTP request and returns status + body.
func send(client *http.Client, req *http.Request) (int, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, networkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, networkError(err)
	}
	return resp.StatusCode, body, nil
}
