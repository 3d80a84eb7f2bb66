package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jsnider89/ai-news-digest/internal/domain"
	"github.com/jsnider89/ai-news-digest/internal/pipeline"
	"github.com/jsnider89/ai-news-digest/internal/pkg/httputil"
	"github.com/jsnider89/ai-news-digest/internal/store"
)

// handleListNewsletters returns every newsletter with feeds and
// watchlist attached.
//
//	GET /api/newsletters
func (s *Server) handleListNewsletters(w http.ResponseWriter, r *http.Request) {
	newsletters, err := s.store.ListNewsletters(r.Context(), false)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if newsletters == nil {
		newsletters = []domain.Newsletter{}
	}
	httputil.OK(w, newsletters)
}

// handleGetNewsletter returns one newsletter by id.
//
//	GET /api/newsletters/{id}
func (s *Server) handleGetNewsletter(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.GetNewsletter(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		httputil.NotFound(w, "newsletter not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, n)
}

// handleCreateNewsletter creates a newsletter. The slug is derived from
// the name and uniquified on collision; a missing timezone falls back to
// the effective default.
//
//	POST /api/newsletters
func (s *Server) handleCreateNewsletter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var n domain.Newsletter
	if !httputil.Decode(w, r, &n) {
		return
	}
	n.ID = ""

	if strings.TrimSpace(n.Name) == "" {
		httputil.BadRequest(w, "newsletter name is required")
		return
	}

	settings, err := s.store.EffectiveSettings(ctx, s.cfg)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if n.Timezone == "" {
		n.Timezone = settings.DefaultTimezone
	}
	if n.Slug == "" {
		n.Slug = domain.Slugify(n.Name)
	}
	if n.Type == "" {
		n.Type = domain.DefaultNewsletterType
	}
	if n.Verbosity == "" {
		n.Verbosity = domain.VerbosityMedium
	}

	if err := n.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	if err := s.store.CreateNewsletter(ctx, &n); err != nil {
		httputil.InternalError(w, err)
		return
	}
	s.refreshSchedule(ctx)

	created, err := s.store.GetNewsletter(ctx, n.ID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, created)
}

// handleUpdateNewsletter merges the payload over the stored newsletter
// and writes it back: fields absent from the body keep their values.
//
//	PUT /api/newsletters/{id}
func (s *Server) handleUpdateNewsletter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	current, err := s.store.GetNewsletter(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		httputil.NotFound(w, "newsletter not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	upd := *current
	if !httputil.Decode(w, r, &upd) {
		return
	}
	upd.ID = id

	if strings.TrimSpace(upd.Name) == "" {
		httputil.BadRequest(w, "newsletter name is required")
		return
	}
	if upd.Slug == "" {
		upd.Slug = domain.Slugify(upd.Name)
	}
	if upd.Verbosity == "" {
		upd.Verbosity = domain.VerbosityMedium
	}

	if err := upd.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	if err := s.store.UpdateNewsletter(ctx, &upd); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.NotFound(w, "newsletter not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	s.refreshSchedule(ctx)

	updated, err := s.store.GetNewsletter(ctx, id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, updated)
}

// handleDeleteNewsletter removes a newsletter. Run history stays for
// audit.
//
//	DELETE /api/newsletters/{id}
func (s *Server) handleDeleteNewsletter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	err := s.store.DeleteNewsletter(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		httputil.NotFound(w, "newsletter not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	s.refreshSchedule(ctx)
	httputil.NoContent(w)
}

// handleRunNewsletter fires a manual run and waits for the result. An
// overlapping run answers 409 rather than queueing a second one.
//
//	POST /api/newsletters/{id}/run
func (s *Server) handleRunNewsletter(w http.ResponseWriter, r *http.Request) {
	res, err := s.runner.Run(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		httputil.Conflict(w, "a run is already in progress for this newsletter")
	case errors.Is(err, store.ErrNotFound):
		httputil.NotFound(w, "newsletter not found")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, res)
	}
}

type resetSeenRequest struct {
	Hours int `json:"hours"`
}

type resetSeenResponse struct {
	Before  int `json:"before"`
	Deleted int `json:"deleted"`
	After   int `json:"after"`
}

// handleResetSeen forgets recently seen articles so the next run can
// re-select them. The window is bounded to a week.
//
//	POST /api/newsletters/{id}/reset-seen
func (s *Server) handleResetSeen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	req := resetSeenRequest{Hours: 24}
	if r.ContentLength != 0 {
		if !httputil.Decode(w, r, &req) {
			return
		}
	}
	if req.Hours < 1 || req.Hours > 168 {
		httputil.BadRequest(w, "hours must be between 1 and 168")
		return
	}

	if _, err := s.store.GetNewsletter(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.NotFound(w, "newsletter not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	before, deleted, after, err := s.store.ResetSeen(ctx, id, req.Hours)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, resetSeenResponse{Before: before, Deleted: deleted, After: after})
}
