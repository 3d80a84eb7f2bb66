package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jsnider89/ai-news-digest/internal/domain"
	"github.com/jsnider89/ai-news-digest/internal/pkg/httputil"
	"github.com/jsnider89/ai-news-digest/internal/store"
)

// handleListRuns returns recent runs, newest first. newsletter_id
// narrows to one newsletter.
//
//	GET /api/runs?limit=20&newsletter_id=
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	if limit < 1 {
		limit = 1
	}
	if limit > 200 {
		limit = 200
	}

	runs, err := s.store.ListRuns(r.Context(), r.URL.Query().Get("newsletter_id"), limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if runs == nil {
		runs = []store.RunWithName{}
	}
	httputil.OK(w, runs)
}

// runDetail is a run row with its selected articles and captured market
// snapshots attached.
type runDetail struct {
	domain.Run
	Articles []store.RunArticleDetail `json:"articles"`
	Quotes   []domain.MarketQuote     `json:"quotes"`
}

// handleGetRun returns one run with articles and quotes.
//
//	GET /api/runs/{runID}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "runID")

	run, err := s.store.GetRun(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		httputil.NotFound(w, "run not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	articles, err := s.store.ListRunArticles(ctx, runID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if articles == nil {
		articles = []store.RunArticleDetail{}
	}
	quotes, err := s.store.ListRunQuotes(ctx, runID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if quotes == nil {
		quotes = []domain.MarketQuote{}
	}

	httputil.OK(w, runDetail{Run: *run, Articles: articles, Quotes: quotes})
}

// handleRunDigest returns the archived digest for a run as JSON, for
// the admin preview pane.
//
//	GET /api/runs/{runID}/digest
func (s *Server) handleRunDigest(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetDigest(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, store.ErrNotFound) {
		httputil.NotFound(w, "digest not found for run")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, d)
}

type runLogsResponse struct {
	RunID   string               `json:"run_id"`
	Entries []domain.RunLogEntry `json:"entries"`
	Count   int                  `json:"count"`
}

// handleRunLogs returns the archived log stream of one run.
//
//	GET /api/runs/{runID}/logs
func (s *Server) handleRunLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "runID")

	if _, err := s.store.GetRun(ctx, runID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.NotFound(w, "run not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	entries, err := s.store.ListRunLogs(ctx, runID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.RunLogEntry{}
	}
	httputil.OK(w, runLogsResponse{RunID: runID, Entries: entries, Count: len(entries)})
}

// handleLatestDigest serves the most recent digest across all
// newsletters as a plain HTML page.
//
//	GET /latest
func (s *Server) handleLatestDigest(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.LatestDigest(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		httputil.HTML(w, http.StatusNotFound, "<!doctype html><title>No digest</title><p>No digest has been published yet.</p>")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.HTML(w, http.StatusOK, d.HTML)
}

// handlePublicRunDigest serves one run's digest as a plain HTML page.
//
//	GET /runs/{runID}/digest
func (s *Server) handlePublicRunDigest(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetDigest(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, store.ErrNotFound) {
		httputil.HTML(w, http.StatusNotFound, "<!doctype html><title>Not found</title><p>Digest not found.</p>")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.HTML(w, http.StatusOK, d.HTML)
}

// queryInt parses an integer query parameter, falling back to def when
// absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
