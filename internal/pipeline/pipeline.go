// Package pipeline runs one digest end to end: fetch the newsletter's
// feeds, dedupe and rank what came back, capture market quotes, ask the
// AI cascade for a summary, render and persist the digest, and deliver
// it. Every run leaves a Run row, its captured logs, and (when anything
// was rendered) a retrievable digest.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jsnider89/ai-news-digest/internal/ai"
	"github.com/jsnider89/ai-news-digest/internal/archive"
	"github.com/jsnider89/ai-news-digest/internal/config"
	"github.com/jsnider89/ai-news-digest/internal/domain"
	"github.com/jsnider89/ai-news-digest/internal/ingest"
	"github.com/jsnider89/ai-news-digest/internal/mail"
	"github.com/jsnider89/ai-news-digest/internal/pkg/logger"
	"github.com/jsnider89/ai-news-digest/internal/pkg/runlock"
	"github.com/jsnider89/ai-news-digest/internal/rank"
	"github.com/jsnider89/ai-news-digest/internal/render"
)

// ErrRunInProgress means another run holds this newsletter's slot;
// overlapping triggers are skipped, never queued.
var ErrRunInProgress = errors.New("a run is already in flight for this newsletter")

const (
	defaultRunDeadline = 8 * time.Minute

	// transient DB write retry budget
	dbAttempts = 3
	dbBackoff  = 100 * time.Millisecond
)

// Store is the persistence surface the pipeline needs. *store.Store
// implements it.
type Store interface {
	GetNewsletter(ctx context.Context, id string) (*domain.Newsletter, error)
	EffectiveSettings(ctx context.Context, cfg *config.Config) (domain.Settings, error)
	CreateRun(ctx context.Context, run *domain.Run) error
	FinishRun(ctx context.Context, run *domain.Run) error
	FilterNew(ctx context.Context, newsletterID string, items []domain.Item, now time.Time) ([]domain.Item, map[string]int64, error)
	AddRunArticles(ctx context.Context, articles []domain.RunArticle) error
	UpsertQuotes(ctx context.Context, quotes []domain.MarketQuote) error
	SaveDigest(ctx context.Context, d *domain.Digest) error
	AppendRunLogs(ctx context.Context, entries []domain.RunLogEntry) error
}

// Generator produces the digest summary. *ai.Cascade implements it.
type Generator interface {
	GenerateWith(ctx context.Context, settings domain.Settings, prompt ai.Prompt) (*ai.Result, error)
}

// QuoteSource captures watchlist snapshots. *market.Client implements it.
type QuoteSource interface {
	Enabled() bool
	FetchQuotes(ctx context.Context, symbols []string, capturedAt time.Time) []domain.MarketQuote
}

// Deps wires the pipeline's collaborators. Mailer, Quotes, and Archiver
// may be nil; the matching pipeline phases are skipped.
type Deps struct {
	Store     Store
	Config    *config.Config
	Generator Generator
	Quotes    QuoteSource
	Mailer    mail.Mailer
	Renderer  *render.Renderer
	Archiver  archive.Archiver
	Locks     runlock.Locker
}

// Pipeline executes runs. Safe for concurrent use; per-newsletter
// serialization is enforced by the lock backend.
type Pipeline struct {
	store     Store
	cfg       *config.Config
	generator Generator
	quotes    QuoteSource
	mailer    mail.Mailer
	renderer  *render.Renderer
	archiver  archive.Archiver
	locks     runlock.Locker
}

func New(d Deps) *Pipeline {
	if d.Locks == nil {
		d.Locks = runlock.NewLocalLocker()
	}
	return &Pipeline{
		store:     d.Store,
		cfg:       d.Config,
		generator: d.Generator,
		quotes:    d.Quotes,
		mailer:    d.Mailer,
		renderer:  d.Renderer,
		archiver:  d.Archiver,
		locks:     d.Locks,
	}
}

// Run executes one digest run for a newsletter. Failures inside the run
// are reflected in the result's status, not returned; the error return
// covers work that never started (unknown newsletter, busy slot, run
// row not writable).
func (p *Pipeline) Run(ctx context.Context, newsletterID string) (*domain.RunResult, error) {
	n, err := p.store.GetNewsletter(ctx, newsletterID)
	if err != nil {
		return nil, err
	}

	acquired, err := p.locks.TryAcquire(ctx, n.ID)
	if err != nil {
		return nil, fmt.Errorf("acquire run slot: %w", err)
	}
	if !acquired {
		logger.Warn("run already in flight, skipping", "newsletter_id", n.ID)
		return nil, ErrRunInProgress
	}
	defer p.locks.Release(ctx, n.ID)

	settings, err := p.store.EffectiveSettings(ctx, p.cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve settings: %w", err)
	}

	run := &domain.Run{
		RunID:        uuid.New().String(),
		NewsletterID: n.ID,
		StartedAt:    time.Now().UTC(),
		Status:       domain.RunStarted,
	}
	if err := p.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	deadline := p.cfg.Digest.RunDeadline()
	if deadline <= 0 {
		deadline = defaultRunDeadline
	}
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	capture := logger.StartCapture()
	logger.Info("run started", "run_id", run.RunID, "newsletter_id", n.ID, "newsletter", n.Name)

	p.executeGuarded(runCtx, run, n, settings)

	now := time.Now().UTC()
	run.FinishedAt = &now
	logger.Info("run finished",
		"run_id", run.RunID, "status", string(run.Status),
		"feeds_ok", run.FeedsOK, "articles_used", run.ArticlesUsed,
		"email_sent", run.EmailSent)

	// captured logs land before the terminal status write; losing them
	// must not fail the run
	if err := p.appendLogs(run.RunID, capture.Stop()); err != nil {
		logger.Warn("failed to persist run logs", "run_id", run.RunID, "error", err.Error())
	}

	finishCtx := ctx
	if finishCtx.Err() != nil {
		var done context.CancelFunc
		finishCtx, done = context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
	}
	if err := dbRetry(finishCtx, func() error { return p.store.FinishRun(finishCtx, run) }); err != nil {
		return nil, fmt.Errorf("finish run: %w", err)
	}

	return &domain.RunResult{
		RunID:        run.RunID,
		Status:       run.Status,
		FeedsTotal:   run.FeedsTotal,
		FeedsOK:      run.FeedsOK,
		ArticlesSeen: run.ArticlesSeen,
		ArticlesUsed: run.ArticlesUsed,
		EmailSent:    run.EmailSent,
	}, nil
}

// executeGuarded converts a panic anywhere in the run into a terminal
// failed state so one bad run cannot take the scheduler down.
func (p *Pipeline) executeGuarded(ctx context.Context, run *domain.Run, n *domain.Newsletter, settings domain.Settings) {
	defer func() {
		if r := recover(); r != nil {
			run.Status = domain.RunFailed
			run.Error = fmt.Sprintf("panic: %v", r)
			logger.Error("run panicked", "run_id", run.RunID, "error", fmt.Sprintf("%v", r))
		}
	}()
	p.execute(ctx, run, n, settings)
}

func (p *Pipeline) execute(ctx context.Context, run *domain.Run, n *domain.Newsletter, settings domain.Settings) {
	feeds := n.EnabledFeeds()
	run.FeedsTotal = len(feeds)
	if len(feeds) == 0 {
		run.Status = domain.RunFailed
		run.Error = "no feeds configured"
		logger.Warn("newsletter has no enabled feeds", "run_id", run.RunID, "newsletter_id", n.ID)
		return
	}

	fetcher := ingest.NewFetcher(p.cfg.Digest.FetchTimeout(), settings.MaxConcurrency)
	results := fetcher.FetchAll(ctx, feeds)

	var items []domain.Item
	for _, res := range results {
		logger.Info(res.Outcome(), "run_id", run.RunID)
		if res.OK() {
			run.FeedsOK++
			items = append(items, res.Items...)
		}
	}
	run.ArticlesSeen = len(items)

	if p.terminalFromContext(ctx, run) {
		return
	}
	if run.FeedsOK == 0 {
		run.Status = domain.RunFailed
		run.Error = "no feeds fetched successfully"
		return
	}

	if limit := settings.MaxArticlesConsidered; limit > 0 && len(items) > limit {
		logger.Info("capping considered articles", "run_id", run.RunID,
			"fetched", len(items), "limit", limit)
		items = items[:limit]
	}

	var (
		fresh []domain.Item
		ids   map[string]int64
	)
	err := dbRetry(ctx, func() error {
		var ferr error
		fresh, ids, ferr = p.store.FilterNew(ctx, n.ID, items, time.Now().UTC())
		return ferr
	})
	if err != nil {
		p.fail(ctx, run, fmt.Errorf("dedupe articles: %w", err))
		return
	}

	selected := rank.Select(fresh, time.Now().UTC(), settings.PerSourceCap, settings.MaxArticlesForAI)
	run.ArticlesUsed = len(selected)
	logger.Info("articles ranked", "run_id", run.RunID,
		"ranked", len(selected), "fresh", len(fresh), "seen", run.ArticlesSeen)

	if len(selected) == 0 {
		run.Status = domain.RunPartial
		logger.Info("no new articles, skipping digest", "run_id", run.RunID)
		return
	}

	runArticles := make([]domain.RunArticle, 0, len(selected))
	for _, s := range selected {
		id, ok := ids[s.Item.ContentHash]
		if !ok {
			continue
		}
		runArticles = append(runArticles, domain.RunArticle{
			RunID:     run.RunID,
			ArticleID: id,
			Rank:      s.Rank,
			Score:     s.Score,
		})
	}
	if err := dbRetry(ctx, func() error { return p.store.AddRunArticles(ctx, runArticles) }); err != nil {
		p.fail(ctx, run, fmt.Errorf("record selected articles: %w", err))
		return
	}

	localNow := time.Now().In(newsletterLocation(n.Timezone))
	quotes := p.captureQuotes(ctx, run, n)

	if p.terminalFromContext(ctx, run) {
		return
	}

	prompt := ai.BuildPrompt(ai.PromptInput{
		Newsletter: *n,
		Selected:   selectedItems(selected),
		Quotes:     quotes,
		Now:        localNow,
	})

	result, genErr := p.generator.GenerateWith(ctx, settings, prompt)
	if genErr != nil {
		if p.terminalFromContext(ctx, run) {
			return
		}
		logger.Warn("AI cascade exhausted, using headlines fallback",
			"run_id", run.RunID, "error", genErr.Error())
		result = ai.Headlines(selectedItems(selected))
	}
	run.AIProviderLabel = result.Label
	run.AITokensIn = result.TokensIn
	run.AITokensOut = result.TokensOut
	aiOK := genErr == nil && !result.Degenerate

	out, err := p.renderer.Render(render.Input{
		Newsletter: *n,
		Summary:    result.Markdown,
		Quotes:     quotes,
		Now:        localNow,
	})
	if err != nil {
		p.fail(ctx, run, fmt.Errorf("render digest: %w", err))
		return
	}

	// the digest is persisted before delivery so it stays retrievable
	// even when the send fails
	digest := &domain.Digest{RunID: run.RunID, Subject: out.Subject, HTML: out.HTML}
	if err := dbRetry(ctx, func() error { return p.store.SaveDigest(ctx, digest) }); err != nil {
		p.fail(ctx, run, fmt.Errorf("save digest: %w", err))
		return
	}
	p.archiveDigest(ctx, run.RunID, out.HTML)

	run.EmailSent = p.deliver(ctx, run.RunID, settings, out)
	if !run.EmailSent && p.terminalFromContext(ctx, run) {
		return
	}

	if aiOK && run.EmailSent && run.FeedsOK > 0 {
		run.Status = domain.RunSuccess
	} else {
		run.Status = domain.RunPartial
	}
}

// captureQuotes fetches and persists watchlist snapshots. Lookup or
// persistence failures degrade to an empty table, never fail the run.
func (p *Pipeline) captureQuotes(ctx context.Context, run *domain.Run, n *domain.Newsletter) []domain.MarketQuote {
	if !n.IncludeWatchlist || len(n.Watchlist) == 0 || p.quotes == nil || !p.quotes.Enabled() {
		return nil
	}
	quotes := p.quotes.FetchQuotes(ctx, n.Watchlist, time.Now().UTC())
	for i := range quotes {
		quotes[i].RunID = run.RunID
	}
	if len(quotes) == 0 {
		return nil
	}
	if err := dbRetry(ctx, func() error { return p.store.UpsertQuotes(ctx, quotes) }); err != nil {
		logger.Warn("failed to persist market quotes", "run_id", run.RunID, "error", err.Error())
	}
	logger.Info("market quotes captured", "run_id", run.RunID, "symbols", len(quotes))
	return quotes
}

func (p *Pipeline) archiveDigest(ctx context.Context, runID, html string) {
	if p.archiver == nil {
		return
	}
	location, err := p.archiver.Store(ctx, runID, []byte(html), time.Now().UTC())
	if err != nil {
		logger.Warn("digest archive failed", "run_id", runID, "error", err.Error())
		return
	}
	logger.Info("digest archived", "run_id", runID, "location", location)
}

// deliver sends the rendered digest to the configured recipients.
// Returns whether the send succeeded; a skipped send is not a success.
func (p *Pipeline) deliver(ctx context.Context, runID string, settings domain.Settings, out *render.Output) bool {
	recipients := settings.DefaultRecipients
	from := settings.FromAddress
	if from == "" {
		from = p.cfg.Email.FromEmail
	}

	switch {
	case p.mailer == nil || len(recipients) == 0:
		logger.Info("no recipients configured, skipping email", "run_id", runID)
		return false
	case from == "":
		logger.Warn("no from address configured, skipping email", "run_id", runID)
		return false
	}

	msg := &mail.Message{
		FromEmail: from,
		FromName:  p.cfg.Email.FromName,
		To:        recipients,
		Subject:   out.Subject,
		HTML:      out.HTML,
		Text:      out.Text,
	}
	if err := p.mailer.Send(ctx, msg); err != nil {
		logger.Error("email send failed", "run_id", runID, "error", err.Error())
		return false
	}
	logger.Info("email sent", "run_id", runID,
		"recipients", len(recipients), "first_recipient", logger.RedactEmail(recipients[0]))
	return true
}

// fail marks the run failed unless the real cause is the context dying
// underneath the failing call.
func (p *Pipeline) fail(ctx context.Context, run *domain.Run, err error) {
	if p.terminalFromContext(ctx, run) {
		return
	}
	run.Status = domain.RunFailed
	run.Error = err.Error()
	logger.Error("run failed", "run_id", run.RunID, "error", err.Error())
}

// terminalFromContext translates a dead context into terminal run
// state: the soft deadline degrades to partial when any feed landed,
// cancellation is always failed.
func (p *Pipeline) terminalFromContext(ctx context.Context, run *domain.Run) bool {
	switch {
	case ctx.Err() == nil:
		return false
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		if run.FeedsOK > 0 {
			run.Status = domain.RunPartial
		} else {
			run.Status = domain.RunFailed
		}
		run.Error = "deadline_exceeded"
		logger.Warn("run deadline exceeded", "run_id", run.RunID)
	default:
		run.Status = domain.RunFailed
		run.Error = "cancelled"
		logger.Warn("run cancelled", "run_id", run.RunID)
	}
	return true
}

// appendLogs persists the captured stream as run log rows.
func (p *Pipeline) appendLogs(runID string, entries []logger.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]domain.RunLogEntry, 0, len(entries))
	for _, e := range entries {
		row := domain.RunLogEntry{
			RunID:   runID,
			TS:      e.Time,
			Level:   e.Level,
			Message: e.Message,
		}
		if len(e.Fields) > 0 {
			if data, err := json.Marshal(e.Fields); err == nil {
				row.Context = string(data)
			}
		}
		rows = append(rows, row)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return dbRetry(ctx, func() error { return p.store.AppendRunLogs(ctx, rows) })
}

// dbRetry retries a persistence call against transient failures.
func dbRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < dbAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(dbBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

func selectedItems(selected []rank.Scored) []domain.Item {
	items := make([]domain.Item, len(selected))
	for i, s := range selected {
		items[i] = s.Item
	}
	return items
}

// newsletterLocation loads the newsletter's timezone, falling back to
// UTC for rows that predate timezone validation.
func newsletterLocation(tz string) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		logger.Warn("invalid newsletter timezone, using UTC", "timezone", tz)
		return time.UTC
	}
	return loc
}
