package config

// ModelOption describes one selectable AI model for the admin UI.
type ModelOption struct {
	Value             string `json:"value"`
	Label             string `json:"label"`
	Provider          string `json:"provider"`
	SupportsReasoning bool   `json:"supports_reasoning"`
}

// modelCatalog is the fixed catalog of models the cascade knows how to
// drive. Order matters: the first two entries seed the default
// primary/secondary settings.
var modelCatalog = []ModelOption{
	{Value: "gpt-5-mini", Label: "GPT-5 Mini (OpenAI)", Provider: "openai", SupportsReasoning: true},
	{Value: "gpt-5-nano", Label: "GPT-5 Nano (OpenAI)", Provider: "openai", SupportsReasoning: true},
	{Value: "gpt-4.1-mini", Label: "GPT-4.1 Mini (OpenAI)", Provider: "openai", SupportsReasoning: true},
	{Value: "gemini-2.5-flash", Label: "Gemini 2.5 Flash (Google)", Provider: "gemini"},
	{Value: "gemini-2.0-pro", Label: "Gemini 2.0 Pro (Google)", Provider: "gemini"},
	{Value: "claude-3-haiku-20240307", Label: "Claude 3 Haiku (Anthropic)", Provider: "anthropic"},
	{Value: "claude-3-sonnet-20240229", Label: "Claude 3 Sonnet (Anthropic)", Provider: "anthropic"},
}

// ModelCatalog returns the full model catalog.
func ModelCatalog() []ModelOption {
	out := make([]ModelOption, len(modelCatalog))
	copy(out, modelCatalog)
	return out
}

// GetModelOption looks a model up by value; ok is false for unknown models.
func GetModelOption(value string) (ModelOption, bool) {
	for _, opt := range modelCatalog {
		if opt.Value == value {
			return opt, true
		}
	}
	return ModelOption{}, false
}

// ReasoningLevels are the reasoning-effort presets accepted by settings
// and the responses-shape providers.
var ReasoningLevels = []string{"low", "medium", "high"}

// ValidReasoningLevel reports whether level is one of the presets.
func ValidReasoningLevel(level string) bool {
	for _, l := range ReasoningLevels {
		if l == level {
			return true
		}
	}
	return false
}

// DefaultPrimaryModel and DefaultSecondaryModel seed the settings bag.
func DefaultPrimaryModel() string   { return modelCatalog[0].Value }
func DefaultSecondaryModel() string { return modelCatalog[1].Value }
