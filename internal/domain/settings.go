package domain

// Settings is the typed view over the persisted (key, value) bag merged
// with configuration defaults. Enum and numeric semantics are enforced
// when a value is written, never when it is read back.
type Settings struct {
	DefaultTimezone       string   `json:"default_timezone"`
	DefaultSendTimes      []string `json:"default_send_times"`
	PrimaryModel          string   `json:"primary_model"`
	SecondaryModel        string   `json:"secondary_model"`
	ReasoningLevel        string   `json:"reasoning_level"`
	DefaultRecipients     []string `json:"default_recipients"`
	FromAddress           string   `json:"from_address"`
	PerSourceCap          int      `json:"per_source_cap"`
	MaxArticlesConsidered int      `json:"max_articles_considered"`
	MaxArticlesForAI      int      `json:"max_articles_for_ai"`
	MaxConcurrency        int      `json:"max_concurrency"`
}

// SettingKeys lists every key the engine understands. Writes with keys
// outside this set are rejected; reads of rows with unknown keys are
// ignored so older databases keep working.
var SettingKeys = []string{
	"default_timezone",
	"default_send_times",
	"primary_model",
	"secondary_model",
	"reasoning_level",
	"default_recipients",
	"from_address",
	"per_source_cap",
	"max_articles_considered",
	"max_articles_for_ai",
	"max_concurrency",
}

// KnownSettingKey reports whether key is one the engine understands.
func KnownSettingKey(key string) bool {
	for _, k := range SettingKeys {
		if k == key {
			return true
		}
	}
	return false
}
