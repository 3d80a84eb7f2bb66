package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"time"

	"github.com/jsnider89/ai-news-digest/internal/config"
	"github.com/jsnider89/ai-news-digest/internal/domain"
	"github.com/jsnider89/ai-news-digest/internal/pkg/httputil"
)

// handleGetSettings returns the effective settings: configured defaults
// with the persisted overrides merged on top.
//
//	GET /api/settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.EffectiveSettings(r.Context(), s.cfg)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, settings)
}

// settingsUpdate carries a partial settings write. Pointer fields
// distinguish "leave alone" from an explicit value.
type settingsUpdate struct {
	DefaultTimezone       *string  `json:"default_timezone"`
	DefaultSendTimes      []string `json:"default_send_times"`
	PrimaryModel          *string  `json:"primary_model"`
	SecondaryModel        *string  `json:"secondary_model"`
	ReasoningLevel        *string  `json:"reasoning_level"`
	DefaultRecipients     []string `json:"default_recipients"`
	FromAddress           *string  `json:"from_address"`
	PerSourceCap          *int     `json:"per_source_cap"`
	MaxArticlesConsidered *int     `json:"max_articles_considered"`
	MaxArticlesForAI      *int     `json:"max_articles_for_ai"`
	MaxConcurrency        *int     `json:"max_concurrency"`
}

// handlePutSettings validates and persists setting overrides. Values are
// checked here, on write; reads tolerate whatever is stored.
//
//	PUT /api/settings
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req settingsUpdate
	if !httputil.Decode(w, r, &req) {
		return
	}

	updates := make(map[string]string)

	if req.DefaultTimezone != nil {
		if _, err := time.LoadLocation(*req.DefaultTimezone); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid timezone %q", *req.DefaultTimezone))
			return
		}
		updates["default_timezone"] = *req.DefaultTimezone
	}
	if req.DefaultSendTimes != nil {
		for _, ts := range req.DefaultSendTimes {
			if !domain.ValidHHMM(ts) {
				httputil.BadRequest(w, fmt.Sprintf("invalid send time %q: want HH:MM (24h)", ts))
				return
			}
		}
		updates["default_send_times"] = marshalList(req.DefaultSendTimes)
	}
	if req.PrimaryModel != nil {
		if _, ok := config.GetModelOption(*req.PrimaryModel); !ok {
			httputil.BadRequest(w, fmt.Sprintf("unknown model %q", *req.PrimaryModel))
			return
		}
		updates["primary_model"] = *req.PrimaryModel
	}
	if req.SecondaryModel != nil {
		if _, ok := config.GetModelOption(*req.SecondaryModel); !ok {
			httputil.BadRequest(w, fmt.Sprintf("unknown model %q", *req.SecondaryModel))
			return
		}
		updates["secondary_model"] = *req.SecondaryModel
	}
	if req.ReasoningLevel != nil {
		if !config.ValidReasoningLevel(*req.ReasoningLevel) {
			httputil.BadRequest(w, fmt.Sprintf("invalid reasoning level %q: want low, medium, or high", *req.ReasoningLevel))
			return
		}
		updates["reasoning_level"] = *req.ReasoningLevel
	}
	if req.DefaultRecipients != nil {
		for _, addr := range req.DefaultRecipients {
			if _, err := mail.ParseAddress(addr); err != nil {
				httputil.BadRequest(w, fmt.Sprintf("invalid recipient %q", addr))
				return
			}
		}
		updates["default_recipients"] = marshalList(req.DefaultRecipients)
	}
	if req.FromAddress != nil {
		// Empty clears the override back to the configured sender.
		if *req.FromAddress != "" {
			if _, err := mail.ParseAddress(*req.FromAddress); err != nil {
				httputil.BadRequest(w, fmt.Sprintf("invalid from address %q", *req.FromAddress))
				return
			}
		}
		updates["from_address"] = *req.FromAddress
	}
	for _, field := range []struct {
		key   string
		value *int
	}{
		{"per_source_cap", req.PerSourceCap},
		{"max_articles_considered", req.MaxArticlesConsidered},
		{"max_articles_for_ai", req.MaxArticlesForAI},
		{"max_concurrency", req.MaxConcurrency},
	} {
		if field.value == nil {
			continue
		}
		if *field.value < 1 {
			httputil.BadRequest(w, fmt.Sprintf("%s must be positive", field.key))
			return
		}
		updates[field.key] = strconv.Itoa(*field.value)
	}

	if len(updates) > 0 {
		if err := s.store.PutSettingOverrides(ctx, updates); err != nil {
			httputil.InternalError(w, err)
			return
		}
		// Send times and timezone feed the schedule.
		s.refreshSchedule(ctx)
	}

	settings, err := s.store.EffectiveSettings(ctx, s.cfg)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, settings)
}

// marshalList stores list settings as JSON arrays, the format the
// overlay reader prefers.
func marshalList(items []string) string {
	raw, _ := json.Marshal(items)
	return string(raw)
}
