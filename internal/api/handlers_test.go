package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsnider89/ai-news-digest/internal/config"
	"github.com/jsnider89/ai-news-digest/internal/domain"
	"github.com/jsnider89/ai-news-digest/internal/pipeline"
	"github.com/jsnider89/ai-news-digest/internal/pkg/logger"
	"github.com/jsnider89/ai-news-digest/internal/scheduler"
	"github.com/jsnider89/ai-news-digest/internal/store"
)

// --- fake collaborators --------------------------------------------------

type fakeStore struct {
	mu sync.Mutex

	newsletters map[string]*domain.Newsletter
	order       []string

	settings  domain.Settings
	overrides map[string]string
	putCalls  int

	runs        []store.RunWithName
	listLimit   int
	listFilter  string
	runsToday   int
	failedToday int

	articles map[string][]store.RunArticleDetail
	quotes   map[string][]domain.MarketQuote
	runLogs  map[string][]domain.RunLogEntry
	digests  map[string]*domain.Digest
	latest   *domain.Digest

	resetBefore  int
	resetDeleted int
	resetAfter   int
	resetID      string
	resetHours   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		newsletters: map[string]*domain.Newsletter{},
		overrides:   map[string]string{},
		articles:    map[string][]store.RunArticleDetail{},
		quotes:      map[string][]domain.MarketQuote{},
		runLogs:     map[string][]domain.RunLogEntry{},
		digests:     map[string]*domain.Digest{},
		settings: domain.Settings{
			DefaultTimezone:       "America/New_York",
			DefaultSendTimes:      []string{"07:00"},
			PrimaryModel:          "gpt-5-mini",
			SecondaryModel:        "gpt-5-nano",
			ReasoningLevel:        "medium",
			DefaultRecipients:     []string{"desk@example.com"},
			PerSourceCap:          3,
			MaxArticlesConsidered: 50,
			MaxArticlesForAI:      24,
			MaxConcurrency:        6,
		},
	}
}

func (f *fakeStore) add(n domain.Newsletter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newsletters[n.ID] = &n
	f.order = append(f.order, n.ID)
}

func (f *fakeStore) ListNewsletters(_ context.Context, activeOnly bool) ([]domain.Newsletter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Newsletter
	for _, id := range f.order {
		n := f.newsletters[id]
		if activeOnly && !n.Active {
			continue
		}
		out = append(out, *n)
	}
	return out, nil
}

func (f *fakeStore) GetNewsletter(_ context.Context, id string) (*domain.Newsletter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.newsletters[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (f *fakeStore) CreateNewsletter(_ context.Context, n *domain.Newsletter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n.ID == "" {
		n.ID = fmt.Sprintf("n-%d", len(f.order)+1)
	}
	now := time.Now().UTC()
	n.CreatedAt, n.UpdatedAt = now, now
	cp := *n
	f.newsletters[n.ID] = &cp
	f.order = append(f.order, n.ID)
	return nil
}

func (f *fakeStore) UpdateNewsletter(_ context.Context, n *domain.Newsletter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.newsletters[n.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *n
	f.newsletters[n.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteNewsletter(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.newsletters[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.newsletters, id)
	for i, cur := range f.order {
		if cur == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeStore) ResetSeen(_ context.Context, newsletterID string, hours int) (int, int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetID = newsletterID
	f.resetHours = hours
	return f.resetBefore, f.resetDeleted, f.resetAfter, nil
}

func (f *fakeStore) GetSettingOverrides(_ context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.overrides))
	for k, v := range f.overrides {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) PutSettingOverrides(_ context.Context, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	for k, v := range values {
		f.overrides[k] = v
	}
	return nil
}

func (f *fakeStore) EffectiveSettings(_ context.Context, _ *config.Config) (domain.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings, nil
}

func (f *fakeStore) ListRuns(_ context.Context, newsletterID string, limit int) ([]store.RunWithName, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listFilter = newsletterID
	f.listLimit = limit
	var out []store.RunWithName
	for _, run := range f.runs {
		if newsletterID != "" && run.NewsletterID != newsletterID {
			continue
		}
		out = append(out, run)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) GetRun(_ context.Context, runID string) (*domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.runs {
		if f.runs[i].RunID == runID {
			cp := f.runs[i].Run
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListRunArticles(_ context.Context, runID string) ([]store.RunArticleDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.articles[runID], nil
}

func (f *fakeStore) ListRunQuotes(_ context.Context, runID string) ([]domain.MarketQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quotes[runID], nil
}

func (f *fakeStore) ListRunLogs(_ context.Context, runID string) ([]domain.RunLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runLogs[runID], nil
}

func (f *fakeStore) GetDigest(_ context.Context, runID string) (*domain.Digest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.digests[runID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) LatestDigest(_ context.Context) (*domain.Digest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		return nil, store.ErrNotFound
	}
	return f.latest, nil
}

func (f *fakeStore) CountRunsSince(_ context.Context, _ time.Time) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runsToday, f.failedToday, nil
}

type fakeRunner struct {
	mu  sync.Mutex
	res *domain.RunResult
	err error
	ids []string
}

func (f *fakeRunner) Run(_ context.Context, newsletterID string) (*domain.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, newsletterID)
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type fakeSchedule struct {
	mu        sync.Mutex
	refreshes int
	jobs      []scheduler.Job
	running   bool
}

func (f *fakeSchedule) RefreshJobs(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return nil
}

func (f *fakeSchedule) Jobs() []scheduler.Job { return f.jobs }
func (f *fakeSchedule) Running() bool         { return f.running }

type staticAuth bool

func (a staticAuth) Authenticated(*http.Request) bool { return bool(a) }

// --- harness ---------------------------------------------------------------

type testEnv struct {
	store    *fakeStore
	runner   *fakeRunner
	schedule *fakeSchedule
	server   *Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := newFakeStore()
	rn := &fakeRunner{}
	sc := &fakeSchedule{running: true}
	return &testEnv{store: st, runner: rn, schedule: sc, server: New(&config.Config{}, st, rn, sc)}
}

func (e *testEnv) request(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

// decodeData unwraps the success envelope into dst.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	require.True(t, env.Success, "body: %s", rec.Body.String())
	if dst != nil {
		require.NoError(t, json.Unmarshal(env.Data, dst))
	}
}

func sampleNewsletter(id string) domain.Newsletter {
	return domain.Newsletter{
		ID:            id,
		Slug:          "markets-daily",
		Name:          "Markets Daily",
		Timezone:      "Europe/London",
		ScheduleTimes: []string{"07:30"},
		Active:        true,
		Type:          domain.DefaultNewsletterType,
		Verbosity:     domain.VerbosityMedium,
		Feeds: []domain.Feed{
			{ID: 1, NewsletterID: id, URL: "https://example.com/feed.xml", Enabled: true},
		},
		Watchlist: []string{"SPY"},
	}
}

// --- newsletters -----------------------------------------------------------

func TestListNewslettersEmpty(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/newsletters", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []domain.Newsletter
	decodeData(t, rec, &got)
	assert.Empty(t, got)
	// Empty means [], not a missing field.
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestCreateNewsletterAppliesDefaults(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/newsletters", map[string]any{
		"name":           "Morning Brief",
		"schedule_times": []string{"06:45"},
		"feeds": []map[string]any{
			{"url": "https://example.com/rss.xml", "enabled": true},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got domain.Newsletter
	decodeData(t, rec, &got)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "morning-brief", got.Slug)
	assert.Equal(t, "America/New_York", got.Timezone)
	assert.Equal(t, domain.DefaultNewsletterType, got.Type)
	assert.Equal(t, domain.VerbosityMedium, got.Verbosity)
	assert.Equal(t, 1, env.schedule.refreshes)
}

func TestCreateNewsletterRejectsBadInput(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]any
	}{
		{"missing name", map[string]any{"timezone": "UTC"}},
		{"bad timezone", map[string]any{"name": "X", "timezone": "Mars/Olympus"}},
		{"bad schedule time", map[string]any{"name": "X", "schedule_times": []string{"25:00"}}},
		{"bad watchlist symbol", map[string]any{"name": "X", "watchlist_symbols": []string{"spy!"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.request(t, http.MethodPost, "/api/newsletters", tc.payload)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Zero(t, env.schedule.refreshes)
		})
	}
}

func TestGetNewsletter(t *testing.T) {
	env := newTestEnv(t)
	env.store.add(sampleNewsletter("n1"))

	rec := env.request(t, http.MethodGet, "/api/newsletters/n1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.Newsletter
	decodeData(t, rec, &got)
	assert.Equal(t, "Markets Daily", got.Name)

	rec = env.request(t, http.MethodGet, "/api/newsletters/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateNewsletterMergesOmittedFields(t *testing.T) {
	env := newTestEnv(t)
	env.store.add(sampleNewsletter("n1"))

	rec := env.request(t, http.MethodPut, "/api/newsletters/n1", map[string]any{"name": "Markets Weekly"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got domain.Newsletter
	decodeData(t, rec, &got)
	assert.Equal(t, "Markets Weekly", got.Name)
	assert.Equal(t, "markets-daily", got.Slug)
	assert.Equal(t, "Europe/London", got.Timezone)
	assert.Equal(t, []string{"07:30"}, got.ScheduleTimes)
	assert.True(t, got.Active)
	assert.Equal(t, 1, env.schedule.refreshes)

	// Fields present in the payload replace, including slices.
	rec = env.request(t, http.MethodPut, "/api/newsletters/n1", map[string]any{
		"name":           "Markets Weekly",
		"schedule_times": []string{"08:00", "17:00"},
		"active":         false,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, rec, &got)
	assert.Equal(t, []string{"08:00", "17:00"}, got.ScheduleTimes)
	assert.False(t, got.Active)
}

func TestUpdateNewsletterUnknown(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPut, "/api/newsletters/ghost", map[string]any{"name": "X"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteNewsletter(t *testing.T) {
	env := newTestEnv(t)
	env.store.add(sampleNewsletter("n1"))

	rec := env.request(t, http.MethodDelete, "/api/newsletters/n1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, 1, env.schedule.refreshes)

	rec = env.request(t, http.MethodDelete, "/api/newsletters/n1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1, env.schedule.refreshes)
}

func TestRunNewsletter(t *testing.T) {
	env := newTestEnv(t)
	env.runner.res = &domain.RunResult{
		RunID:      "run-1",
		Status:     domain.RunSuccess,
		FeedsTotal: 2,
		FeedsOK:    2,
		EmailSent:  true,
	}

	rec := env.request(t, http.MethodPost, "/api/newsletters/n1/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got domain.RunResult
	decodeData(t, rec, &got)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, domain.RunSuccess, got.Status)
	assert.True(t, got.EmailSent)
	assert.Equal(t, []string{"n1"}, env.runner.ids)
}

func TestRunNewsletterConflict(t *testing.T) {
	env := newTestEnv(t)
	env.runner.err = pipeline.ErrRunInProgress

	rec := env.request(t, http.MethodPost, "/api/newsletters/n1/run", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRunNewsletterUnknown(t *testing.T) {
	env := newTestEnv(t)
	env.runner.err = fmt.Errorf("load newsletter: %w", store.ErrNotFound)

	rec := env.request(t, http.MethodPost, "/api/newsletters/ghost/run", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResetSeen(t *testing.T) {
	env := newTestEnv(t)
	env.store.add(sampleNewsletter("n1"))
	env.store.resetBefore, env.store.resetDeleted, env.store.resetAfter = 40, 15, 25

	// No body defaults the window to 24 hours.
	rec := env.request(t, http.MethodPost, "/api/newsletters/n1/reset-seen", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got struct {
		Before  int `json:"before"`
		Deleted int `json:"deleted"`
		After   int `json:"after"`
	}
	decodeData(t, rec, &got)
	assert.Equal(t, 40, got.Before)
	assert.Equal(t, 15, got.Deleted)
	assert.Equal(t, 25, got.After)
	assert.Equal(t, "n1", env.store.resetID)
	assert.Equal(t, 24, env.store.resetHours)

	rec = env.request(t, http.MethodPost, "/api/newsletters/n1/reset-seen", map[string]any{"hours": 48})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 48, env.store.resetHours)

	for _, hours := range []int{0, -1, 169} {
		rec = env.request(t, http.MethodPost, "/api/newsletters/n1/reset-seen", map[string]any{"hours": hours})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "hours=%d", hours)
	}

	rec = env.request(t, http.MethodPost, "/api/newsletters/ghost/reset-seen", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- settings --------------------------------------------------------------

func TestSettingsRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.Settings
	decodeData(t, rec, &got)
	assert.Equal(t, "America/New_York", got.DefaultTimezone)
	assert.Equal(t, "gpt-5-mini", got.PrimaryModel)

	rec = env.request(t, http.MethodPut, "/api/settings", map[string]any{
		"reasoning_level":    "high",
		"per_source_cap":     5,
		"default_send_times": []string{"07:00", "16:30"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Overrides land as strings; lists as JSON arrays.
	assert.Equal(t, "high", env.store.overrides["reasoning_level"])
	assert.Equal(t, "5", env.store.overrides["per_source_cap"])
	assert.Equal(t, `["07:00","16:30"]`, env.store.overrides["default_send_times"])
	assert.Equal(t, 1, env.store.putCalls)
	assert.Equal(t, 1, env.schedule.refreshes)
}

func TestPutSettingsRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]any
	}{
		{"unknown reasoning level", map[string]any{"reasoning_level": "extreme"}},
		{"malformed send time", map[string]any{"default_send_times": []string{"7am"}}},
		{"zero cap", map[string]any{"per_source_cap": 0}},
		{"unknown model", map[string]any{"primary_model": "gpt-99-ultra"}},
		{"bad timezone", map[string]any{"default_timezone": "Mars/Olympus"}},
		{"bad recipient", map[string]any{"default_recipients": []string{"not-an-address"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.request(t, http.MethodPut, "/api/settings", tc.payload)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Zero(t, env.store.putCalls)
		})
	}
}

func TestPutSettingsEmptyBodyWritesNothing(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPut, "/api/settings", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, env.store.putCalls)
	assert.Zero(t, env.schedule.refreshes)
}

// --- runs --------------------------------------------------------------------

func TestListRunsLimit(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		env.store.runs = append(env.store.runs, store.RunWithName{
			Run:            domain.Run{RunID: fmt.Sprintf("run-%d", i), NewsletterID: "n1", Status: domain.RunSuccess},
			NewsletterName: "Markets Daily",
		})
	}

	rec := env.request(t, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, env.store.listLimit)
	assert.Equal(t, "", env.store.listFilter)

	rec = env.request(t, http.MethodGet, "/api/runs?limit=2&newsletter_id=n1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, env.store.listLimit)
	assert.Equal(t, "n1", env.store.listFilter)
	var got []store.RunWithName
	decodeData(t, rec, &got)
	assert.Len(t, got, 2)

	rec = env.request(t, http.MethodGet, "/api/runs?limit=9999", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 200, env.store.listLimit)

	// Malformed limits fall back to the default.
	rec = env.request(t, http.MethodGet, "/api/runs?limit=bogus", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, env.store.listLimit)
}

func TestGetRunDetail(t *testing.T) {
	env := newTestEnv(t)
	env.store.runs = []store.RunWithName{{
		Run:            domain.Run{RunID: "run-1", NewsletterID: "n1", Status: domain.RunSuccess, FeedsOK: 3, EmailSent: true},
		NewsletterName: "Markets Daily",
	}}
	env.store.articles["run-1"] = []store.RunArticleDetail{
		{Rank: 1, Score: 9.1, Title: "Fed holds", URL: "https://example.com/fed", Source: "Example Wire"},
	}
	env.store.quotes["run-1"] = []domain.MarketQuote{
		{RunID: "run-1", Symbol: "SPY", Price: 512.34, ChangeAmount: 1.2, ChangePercent: 0.23},
	}

	rec := env.request(t, http.MethodGet, "/api/runs/run-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got struct {
		domain.Run
		Articles []store.RunArticleDetail `json:"articles"`
		Quotes   []domain.MarketQuote     `json:"quotes"`
	}
	decodeData(t, rec, &got)
	assert.Equal(t, "run-1", got.RunID)
	require.Len(t, got.Articles, 1)
	assert.Equal(t, "Fed holds", got.Articles[0].Title)
	require.Len(t, got.Quotes, 1)
	assert.Equal(t, "SPY", got.Quotes[0].Symbol)

	rec = env.request(t, http.MethodGet, "/api/runs/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunLogsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.store.runs = []store.RunWithName{{Run: domain.Run{RunID: "run-1", Status: domain.RunPartial}}}
	env.store.runLogs["run-1"] = []domain.RunLogEntry{
		{RunID: "run-1", Level: "INFO", Message: "fetch complete"},
		{RunID: "run-1", Level: "WARN", Message: "1 feed failed"},
	}

	rec := env.request(t, http.MethodGet, "/api/runs/run-1/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		RunID   string               `json:"run_id"`
		Entries []domain.RunLogEntry `json:"entries"`
		Count   int                  `json:"count"`
	}
	decodeData(t, rec, &got)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 2, got.Count)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, "fetch complete", got.Entries[0].Message)

	rec = env.request(t, http.MethodGet, "/api/runs/ghost/logs", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunDigestAdminJSON(t *testing.T) {
	env := newTestEnv(t)
	env.store.digests["run-1"] = &domain.Digest{
		RunID:   "run-1",
		Subject: "Markets Daily - Aug 25",
		HTML:    "<html><body>digest</body></html>",
	}

	rec := env.request(t, http.MethodGet, "/api/runs/run-1/digest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var got domain.Digest
	decodeData(t, rec, &got)
	assert.Equal(t, "Markets Daily - Aug 25", got.Subject)
	assert.Contains(t, got.HTML, "digest")

	rec = env.request(t, http.MethodGet, "/api/runs/ghost/digest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublicDigestViews(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/latest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	digest := &domain.Digest{RunID: "run-9", Subject: "s", HTML: "<html><body>latest digest</body></html>"}
	env.store.latest = digest
	env.store.digests["run-9"] = digest

	rec = env.request(t, http.MethodGet, "/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, digest.HTML, rec.Body.String())

	rec = env.request(t, http.MethodGet, "/runs/run-9/digest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, digest.HTML, rec.Body.String())

	rec = env.request(t, http.MethodGet, "/runs/ghost/digest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- logs --------------------------------------------------------------------

func TestLiveLogView(t *testing.T) {
	// The log ring is process-global; keep this test serial and tidy up.
	logger.SetOutput(io.Discard)
	t.Cleanup(func() { logger.SetOutput(os.Stderr) })
	logger.Buffer().Clear()
	t.Cleanup(logger.Buffer().Clear)

	logger.Info("first entry")
	logger.Info("second entry")

	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, "/api/logs?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Entries   []logger.Entry `json:"entries"`
		Count     int            `json:"count"`
		Limit     int            `json:"limit"`
		Available int            `json:"available"`
		Capacity  int            `json:"capacity"`
	}
	decodeData(t, rec, &got)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "second entry", got.Entries[0].Message)
	assert.Equal(t, 1, got.Count)
	assert.Equal(t, 1, got.Limit)
	assert.Equal(t, 2, got.Available)
	assert.Equal(t, logger.DefaultRingCapacity, got.Capacity)

	rec = env.request(t, http.MethodDelete, "/api/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cleared map[string]bool
	decodeData(t, rec, &cleared)
	assert.True(t, cleared["cleared"])

	rec = env.request(t, http.MethodGet, "/api/logs", nil)
	var after struct {
		Available int `json:"available"`
	}
	decodeData(t, rec, &after)
	assert.Zero(t, after.Available)
}

// --- meta ----------------------------------------------------------------------

func TestMetaOptions(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/meta/options", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Timezones       []config.TimezoneOption `json:"timezones"`
		Models          []config.ModelOption    `json:"models"`
		ReasoningLevels []string                `json:"reasoning_levels"`
		DefaultTimezone string                  `json:"default_timezone"`
	}
	decodeData(t, rec, &got)
	assert.Equal(t, "America/New_York", got.DefaultTimezone)
	require.NotEmpty(t, got.Timezones)
	assert.Equal(t, "America/New_York", got.Timezones[0].Value)
	require.NotEmpty(t, got.Models)
	assert.Equal(t, []string{"low", "medium", "high"}, got.ReasoningLevels)
}

// --- auth and CORS ---------------------------------------------------------------

func TestRequireAuth(t *testing.T) {
	st := newFakeStore()
	srv := NewWithAuth(&config.Config{}, st, &fakeRunner{}, &fakeSchedule{}, staticAuth(false))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/newsletters", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health and digest views stay reachable without credentials.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/latest", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	srv = NewWithAuth(&config.Config{}, st, &fakeRunner{}, &fakeSchedule{}, staticAuth(true))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/newsletters", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDevModeBypassesAuth(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	srv := NewWithAuth(&config.Config{}, newFakeStore(), &fakeRunner{}, &fakeSchedule{}, staticAuth(false))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/newsletters", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.AllowedOrigin = "https://admin.example.com"
	srv := New(cfg, newFakeStore(), &fakeRunner{}, &fakeSchedule{})

	req := httptest.NewRequest(http.MethodOptions, "/api/newsletters", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://admin.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodOptions, "/api/newsletters", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
