package ai

import (
	"github.com/jsnider89/ai-news-digest/internal/config"
	"github.com/jsnider89/ai-news-digest/internal/domain"
	"github.com/jsnider89/ai-news-digest/internal/pkg/logger"
)

// ResolveStages applies the persisted settings over a configured
// pipeline: the primary and secondary models lead (with their catalog
// providers), followed by the configured stages minus any model already
// placed. Unknown models are ignored so a stale settings row cannot
// break generation. The reasoning level attaches to models that support
// it.
func ResolveStages(configured []config.ProviderStage, settings domain.Settings) []config.ProviderStage {
	placed := make(map[string]struct{}, 2)
	head := make([]config.ProviderStage, 0, 2)

	for _, model := range []string{settings.PrimaryModel, settings.SecondaryModel} {
		if model == "" {
			continue
		}
		if _, dup := placed[model]; dup {
			continue
		}
		opt, ok := config.GetModelOption(model)
		if !ok {
			logger.Warn("ignoring unknown model in settings", "model_id", model)
			continue
		}
		stage := config.ProviderStage{Provider: opt.Provider, Model: model}
		if opt.SupportsReasoning && settings.ReasoningLevel != "" {
			stage.ReasoningEffort = settings.ReasoningLevel
		}
		placed[model] = struct{}{}
		head = append(head, stage)
	}

	if len(head) == 0 {
		return configured
	}

	out := head
	for _, stage := range configured {
		if _, dup := placed[stage.Model]; dup {
			continue
		}
		out = append(out, stage)
	}
	return out
}
