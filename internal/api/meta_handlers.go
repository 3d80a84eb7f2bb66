package api

import (
	"net/http"

	"github.com/jsnider89/ai-news-digest/internal/config"
	"github.com/jsnider89/ai-news-digest/internal/pkg/httputil"
)

type metaOptions struct {
	Timezones       []config.TimezoneOption `json:"timezones"`
	Models          []config.ModelOption    `json:"models"`
	ReasoningLevels []string                `json:"reasoning_levels"`
	DefaultTimezone string                  `json:"default_timezone"`
}

// handleMetaOptions returns the catalogs the admin UI builds its pickers
// from.
//
//	GET /api/meta/options
func (s *Server) handleMetaOptions(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.EffectiveSettings(r.Context(), s.cfg)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, metaOptions{
		Timezones:       config.TimezoneOptions(settings.DefaultTimezone),
		Models:          config.ModelCatalog(),
		ReasoningLevels: config.ReasoningLevels,
		DefaultTimezone: settings.DefaultTimezone,
	})
}
