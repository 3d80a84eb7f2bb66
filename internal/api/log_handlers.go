package api

import (
	"net/http"

	"github.com/jsnider89/ai-news-digest/internal/pkg/httputil"
	"github.com/jsnider89/ai-news-digest/internal/pkg/logger"
)

// logView is the live log payload: the newest entries plus enough
// bookkeeping for the UI to show "200 of 412 (cap 1000)".
type logView struct {
	Entries   []logger.Entry `json:"entries"`
	Count     int            `json:"count"`
	Limit     int            `json:"limit"`
	Available int            `json:"available"`
	Capacity  int            `json:"capacity"`
}

// handleListLogs returns the tail of the in-memory log ring.
//
//	GET /api/logs?limit=200
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 200)
	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}

	ring := logger.Buffer()
	entries := ring.Recent(limit)
	if entries == nil {
		entries = []logger.Entry{}
	}
	httputil.OK(w, logView{
		Entries:   entries,
		Count:     len(entries),
		Limit:     limit,
		Available: ring.Len(),
		Capacity:  ring.Cap(),
	})
}

// handleClearLogs empties the live log ring. Archived run logs are
// untouched.
//
//	DELETE /api/logs
func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	logger.Buffer().Clear()
	httputil.OK(w, map[string]bool{"cleared": true})
}
