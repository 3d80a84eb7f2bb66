package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jsnider89/ai-news-digest/internal/config"
	"github.com/jsnider89/ai-news-digest/internal/domain"
)

// GetSettingOverrides returns the persisted settings rows. Keys the
// engine does not understand are skipped so older databases keep
// working.
func (s *Store) GetSettingOverrides(ctx context.Context) (map[string]string, error) {
	rows, err := s.query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		if domain.KnownSettingKey(k) {
			out[k] = v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	return out, nil
}

// PutSettingOverrides upserts the given keys. Unknown keys are rejected
// before anything is written.
func (s *Store) PutSettingOverrides(ctx context.Context, values map[string]string) error {
	for k := range values {
		if !domain.KnownSettingKey(k) {
			return fmt.Errorf("%w: %q", ErrUnknownSetting, k)
		}
	}
	if len(values) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		up := s.rebind(`
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value
		`)
		for k, v := range values {
			if _, err := tx.ExecContext(ctx, up, k, v); err != nil {
				return fmt.Errorf("upsert setting %s: %w", k, err)
			}
		}
		return nil
	})
}

// EffectiveSettings merges the persisted overrides over the configured
// defaults. Malformed override values fall back to the default rather
// than failing the caller.
func (s *Store) EffectiveSettings(ctx context.Context, cfg *config.Config) (domain.Settings, error) {
	defaults := domain.Settings{
		DefaultTimezone:       cfg.Digest.DefaultTimezone,
		DefaultSendTimes:      cfg.Digest.DefaultSendTimes,
		PrimaryModel:          config.DefaultPrimaryModel(),
		SecondaryModel:        config.DefaultSecondaryModel(),
		ReasoningLevel:        "medium",
		DefaultRecipients:     cfg.Digest.DefaultRecipients,
		FromAddress:           cfg.Email.FromEmail,
		PerSourceCap:          cfg.Digest.PerSourceCap,
		MaxArticlesConsidered: cfg.Digest.MaxArticlesConsidered,
		MaxArticlesForAI:      cfg.Digest.MaxArticlesForAI,
		MaxConcurrency:        cfg.Digest.MaxConcurrency,
	}
	if len(cfg.AI.Pipeline) > 0 {
		defaults.PrimaryModel = cfg.AI.Pipeline[0].Model
		if cfg.AI.Pipeline[0].ReasoningEffort != "" {
			defaults.ReasoningLevel = cfg.AI.Pipeline[0].ReasoningEffort
		}
	}
	if len(cfg.AI.Pipeline) > 1 {
		defaults.SecondaryModel = cfg.AI.Pipeline[1].Model
	}

	overrides, err := s.GetSettingOverrides(ctx)
	if err != nil {
		return defaults, err
	}
	return mergeSettings(defaults, overrides), nil
}

func mergeSettings(out domain.Settings, overrides map[string]string) domain.Settings {
	if v, ok := overrides["default_timezone"]; ok && v != "" {
		out.DefaultTimezone = v
	}
	if v, ok := overrides["default_send_times"]; ok {
		if times := parseStringList(v); len(times) > 0 {
			out.DefaultSendTimes = config.ValidSendTimes(times)
		}
	}
	if v, ok := overrides["primary_model"]; ok && v != "" {
		out.PrimaryModel = v
	}
	if v, ok := overrides["secondary_model"]; ok && v != "" {
		out.SecondaryModel = v
	}
	if v, ok := overrides["reasoning_level"]; ok && config.ValidReasoningLevel(v) {
		out.ReasoningLevel = v
	}
	if v, ok := overrides["default_recipients"]; ok {
		if list := parseStringList(v); len(list) > 0 {
			out.DefaultRecipients = list
		}
	}
	if v, ok := overrides["from_address"]; ok && v != "" {
		out.FromAddress = v
	}
	if v, ok := overrides["per_source_cap"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			out.PerSourceCap = n
		}
	}
	if v, ok := overrides["max_articles_considered"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			out.MaxArticlesConsidered = n
		}
	}
	if v, ok := overrides["max_articles_for_ai"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			out.MaxArticlesForAI = n
		}
	}
	if v, ok := overrides["max_concurrency"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			out.MaxConcurrency = n
		}
	}
	return out
}

// parseStringList accepts a JSON array, a comma separated string, or a
// single value, mirroring the loose formats older clients stored.
func parseStringList(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if strings.HasPrefix(v, "[") {
		var list []string
		if err := json.Unmarshal([]byte(v), &list); err == nil {
			out := list[:0]
			for _, item := range list {
				if item = strings.TrimSpace(item); item != "" {
					out = append(out, item)
				}
			}
			return out
		}
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
