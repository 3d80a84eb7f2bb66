package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsnider89/ai-news-digest/internal/config"
	"github.com/jsnider89/ai-news-digest/internal/domain"
)

func configuredPipeline() []config.ProviderStage {
	return []config.ProviderStage{
		{Provider: "openai", Model: "gpt-5-mini", ReasoningEffort: "medium"},
		{Provider: "gemini", Model: "gemini-2.5-flash"},
		{Provider: "anthropic", Model: "claude-3-haiku-20240307"},
	}
}

func TestResolveStagesSettingsLead(t *testing.T) {
	stages := ResolveStages(configuredPipeline(), domain.Settings{
		PrimaryModel:   "claude-3-haiku-20240307",
		SecondaryModel: "gpt-5-mini",
		ReasoningLevel: "high",
	})

	require.Len(t, stages, 3)
	assert.Equal(t, "anthropic", stages[0].Provider)
	assert.Equal(t, "claude-3-haiku-20240307", stages[0].Model)
	// claude does not support reasoning, gpt-5-mini does
	assert.Empty(t, stages[0].ReasoningEffort)
	assert.Equal(t, "gpt-5-mini", stages[1].Model)
	assert.Equal(t, "high", stages[1].ReasoningEffort)
	// remaining configured stage keeps its place in the tail
	assert.Equal(t, "gemini-2.5-flash", stages[2].Model)
}

func TestResolveStagesNoSettingsKeepsConfigured(t *testing.T) {
	configured := configuredPipeline()
	assert.Equal(t, configured, ResolveStages(configured, domain.Settings{}))
}

func TestResolveStagesUnknownModelIgnored(t *testing.T) {
	stages := ResolveStages(configuredPipeline(), domain.Settings{
		PrimaryModel: "some-retired-model",
	})
	assert.Equal(t, configuredPipeline(), stages)
}

func TestResolveStagesDuplicateSettingsCollapse(t *testing.T) {
	stages := ResolveStages(configuredPipeline(), domain.Settings{
		PrimaryModel:   "gpt-5-mini",
		SecondaryModel: "gpt-5-mini",
	})

	require.Len(t, stages, 3)
	assert.Equal(t, "gpt-5-mini", stages[0].Model)
	assert.Equal(t, "gemini-2.5-flash", stages[1].Model)
	assert.Equal(t, "claude-3-haiku-20240307", stages[2].Model)
}
