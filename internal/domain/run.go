package domain

import "time"

// RunStatus enumerates the lifecycle states of a pipeline run.
type RunStatus string

const (
	RunStarted RunStatus = "started"
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// IsTerminal returns true once a run has finished, in any outcome.
func (s RunStatus) IsTerminal() bool {
	return s == RunSuccess || s == RunPartial || s == RunFailed
}

// Run is one execution of the pipeline for a newsletter, scheduled or
// manual. The status transition to a terminal state is the last write.
type Run struct {
	RunID           string     `json:"run_id" db:"run_id"`
	NewsletterID    string     `json:"newsletter_id" db:"newsletter_id"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	Status          RunStatus  `json:"status" db:"status"`
	FeedsTotal      int        `json:"feeds_total" db:"feeds_total"`
	FeedsOK         int        `json:"feeds_ok" db:"feeds_ok"`
	ArticlesSeen    int        `json:"articles_seen" db:"articles_seen"`
	ArticlesUsed    int        `json:"articles_used" db:"articles_used"`
	AITokensIn      int        `json:"ai_tokens_in" db:"ai_tokens_in"`
	AITokensOut     int        `json:"ai_tokens_out" db:"ai_tokens_out"`
	AIProviderLabel string     `json:"ai_provider_label,omitempty" db:"ai_provider_label"`
	EmailSent       bool       `json:"email_sent" db:"email_sent"`
	Error           string     `json:"error,omitempty" db:"error"`
}

// RunResult is what the pipeline hands back to its caller (scheduler or
// manual-run endpoint).
type RunResult struct {
	RunID        string    `json:"run_id"`
	Status       RunStatus `json:"status"`
	FeedsTotal   int       `json:"feeds_total"`
	FeedsOK      int       `json:"feeds_ok"`
	ArticlesSeen int       `json:"articles_seen"`
	ArticlesUsed int       `json:"articles_used"`
	EmailSent    bool      `json:"email_sent"`
}

// RunArticle links a selected article to a run. Rank is 1-based and
// unique within the run.
type RunArticle struct {
	RunID     string  `json:"run_id" db:"run_id"`
	ArticleID int64   `json:"article_id" db:"article_id"`
	Rank      int     `json:"rank" db:"rank"`
	Score     float64 `json:"score" db:"score"`
}

// RunLogEntry is one line of a run's captured log stream, append-only.
type RunLogEntry struct {
	RunID   string    `json:"run_id" db:"run_id"`
	TS      time.Time `json:"ts" db:"ts"`
	Level   string    `json:"level" db:"level"`
	Message string    `json:"message" db:"message"`
	Context string    `json:"context,omitempty" db:"context_json"`
}

// Digest is the archived rendered HTML for a run. Plain-text
// alternative is transient and never stored.
type Digest struct {
	RunID     string    `json:"run_id" db:"run_id"`
	Subject   string    `json:"subject" db:"subject"`
	HTML      string    `json:"html" db:"html"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
