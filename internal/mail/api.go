package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jsnider89/ai-news-digest/internal/config"
)

const defaultAPIURL = "https://api.resend.com/emails"

// APIMailer posts messages to a Resend-compatible JSON endpoint.
type APIMailer struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type apiPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

func NewAPIMailer(cfg config.EmailConfig) *APIMailer {
	url := cfg.APIURL
	if url == "" {
		url = defaultAPIURL
	}
	return &APIMailer{
		apiKey:  cfg.APIKey,
		baseURL: url,
		client:  &http.Client{Timeout: transportTimeout(cfg)},
	}
}

// Send delivers the whole recipient list in a single POST.
func (m *APIMailer) Send(ctx context.Context, msg *Message) error {
	if m.apiKey == "" {
		return fmt.Errorf("email API key not configured")
	}
	if err := msg.validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(apiPayload{
		From:    msg.fromHeader(),
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("email API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("email API error %d: %s", resp.StatusCode, bodySnippet(body))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
