package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the newsletter engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Digest   DigestConfig   `yaml:"digest"`
	AI       AIConfig       `yaml:"ai"`
	Market   MarketConfig   `yaml:"market"`
	Email    EmailConfig    `yaml:"email"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port          int    `yaml:"port"`
	Host          string `yaml:"host"`
	AllowedOrigin string `yaml:"allowed_origin"`
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig selects the persistent store. An empty URL means the
// embedded SQLite database under DataDir; a postgres:// URL switches
// the driver.
type DatabaseConfig struct {
	URL     string `yaml:"url"`
	DataDir string `yaml:"data_dir"`
}

// Driver returns the database/sql driver name for the configured store.
func (c DatabaseConfig) Driver() string {
	if c.URL != "" {
		return "postgres"
	}
	return "sqlite3"
}

// DSN returns the connection string for the configured store.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return filepath.Join(c.DataDir, "app.db")
}

// DigestConfig holds pipeline defaults. Most of these can be overridden
// at runtime through the persisted settings bag.
type DigestConfig struct {
	DefaultTimezone       string   `yaml:"default_timezone"`
	DefaultSendTimes      []string `yaml:"default_send_times"`
	DefaultRecipients     []string `yaml:"default_recipients"`
	PerSourceCap          int      `yaml:"per_source_cap"`
	MaxArticlesConsidered int      `yaml:"max_articles_considered"`
	MaxArticlesForAI      int      `yaml:"max_articles_for_ai"`
	MaxConcurrency        int      `yaml:"max_concurrency"`
	FetchTimeoutSeconds   int      `yaml:"fetch_timeout_seconds"`
	RunDeadlineMinutes    int      `yaml:"run_deadline_minutes"`
	RetentionDays         int      `yaml:"retention_days"`
}

// FetchTimeout returns the per-feed HTTP timeout as a duration.
func (c DigestConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// RunDeadline returns the whole-run soft deadline as a duration.
func (c DigestConfig) RunDeadline() time.Duration {
	return time.Duration(c.RunDeadlineMinutes) * time.Minute
}

// ProviderStage is one attempt in the AI cascade, in order.
type ProviderStage struct {
	Provider        string `yaml:"provider"`
	Model           string `yaml:"model"`
	ReasoningEffort string `yaml:"reasoning_effort,omitempty"`
	Verbosity       string `yaml:"verbosity,omitempty"`
	MaxOutputTokens int    `yaml:"max_output_tokens,omitempty"`
}

// AIConfig holds provider credentials and the cascade definition.
type AIConfig struct {
	OpenAIKey         string          `yaml:"openai_api_key"`
	AnthropicKey      string          `yaml:"anthropic_api_key"`
	GeminiKey         string          `yaml:"gemini_api_key"`
	BedrockRegion     string          `yaml:"bedrock_region"`
	TimeoutSeconds    int             `yaml:"timeout_seconds"`
	Pipeline          []ProviderStage `yaml:"pipeline"`
	ResponsesPrefixes []string        `yaml:"responses_prefixes"`
}

// Timeout returns the per-attempt LLM timeout as a duration.
func (c AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MarketConfig holds the quote vendor configuration.
type MarketConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-quote HTTP timeout as a duration.
func (c MarketConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SMTPConfig holds SMTP transport settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"`
}

// SESConfig holds AWS SES transport settings. Empty keys fall back to
// the default AWS credential chain (IAM role in a container).
type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// EmailConfig selects and configures the delivery transport.
type EmailConfig struct {
	Transport      string     `yaml:"transport"` // api | smtp | ses
	APIKey         string     `yaml:"api_key"`
	APIURL         string     `yaml:"api_url"`
	FromEmail      string     `yaml:"from_email"`
	FromName       string     `yaml:"from_name"`
	TimeoutSeconds int        `yaml:"timeout_seconds"`
	SMTP           SMTPConfig `yaml:"smtp"`
	SES            SESConfig  `yaml:"ses"`
}

// Timeout returns the email transport timeout as a duration.
func (c EmailConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ArchiveConfig selects where rendered digests are archived. The local
// directory is always available; a bucket switches to S3.
type ArchiveConfig struct {
	S3Bucket  string `yaml:"s3_bucket"`
	AWSRegion string `yaml:"aws_region"`
	LocalDir  string `yaml:"local_dir"`
}

// RedisConfig enables cross-instance run coalescing when set.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads and parses the configuration file. A missing file is not
// an error: the engine is fully configurable from the environment, so
// defaults are applied to an empty config instead.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.DataDir == "" {
		cfg.Database.DataDir = "data"
	}
	if cfg.Digest.DefaultTimezone == "" {
		cfg.Digest.DefaultTimezone = "UTC"
	}
	if len(cfg.Digest.DefaultSendTimes) == 0 {
		cfg.Digest.DefaultSendTimes = []string{"06:30", "17:30"}
	}
	if cfg.Digest.PerSourceCap == 0 {
		cfg.Digest.PerSourceCap = 10
	}
	if cfg.Digest.MaxArticlesConsidered == 0 {
		cfg.Digest.MaxArticlesConsidered = 200
	}
	if cfg.Digest.MaxArticlesForAI == 0 {
		cfg.Digest.MaxArticlesForAI = 25
	}
	if cfg.Digest.MaxConcurrency == 0 {
		cfg.Digest.MaxConcurrency = 6
	}
	if cfg.Digest.FetchTimeoutSeconds == 0 {
		cfg.Digest.FetchTimeoutSeconds = 10
	}
	if cfg.Digest.RunDeadlineMinutes == 0 {
		cfg.Digest.RunDeadlineMinutes = 8
	}
	if cfg.Digest.RetentionDays == 0 {
		cfg.Digest.RetentionDays = 90
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 60
	}
	if len(cfg.AI.ResponsesPrefixes) == 0 {
		cfg.AI.ResponsesPrefixes = []string{"gpt-5", "o3", "o4"}
	}
	if len(cfg.AI.Pipeline) == 0 {
		cfg.AI.Pipeline = []ProviderStage{
			{Provider: "openai", Model: "gpt-5-mini", ReasoningEffort: "medium", Verbosity: "medium"},
			{Provider: "gemini", Model: "gemini-2.5-flash"},
			{Provider: "anthropic", Model: "claude-3-haiku-20240307"},
		}
	}
	if cfg.Market.BaseURL == "" {
		cfg.Market.BaseURL = "https://finnhub.io/api/v1"
	}
	if cfg.Market.TimeoutSeconds == 0 {
		cfg.Market.TimeoutSeconds = 10
	}
	if cfg.Email.Transport == "" {
		cfg.Email.Transport = "api"
	}
	if cfg.Email.TimeoutSeconds == 0 {
		cfg.Email.TimeoutSeconds = 30
	}
	if cfg.Email.FromName == "" {
		cfg.Email.FromName = "News Digest"
	}
	if cfg.Email.SMTP.Port == 0 {
		cfg.Email.SMTP.Port = 587
	}
	if cfg.Archive.LocalDir == "" {
		cfg.Archive.LocalDir = filepath.Join(cfg.Database.DataDir, "digests")
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	cfg.Digest.DefaultSendTimes = ValidSendTimes(cfg.Digest.DefaultSendTimes)
	if _, err := time.LoadLocation(cfg.Digest.DefaultTimezone); err != nil {
		cfg.Digest.DefaultTimezone = "UTC"
	}
}

// ValidSendTimes filters a list down to well-formed HH:MM entries,
// falling back to the stock schedule when nothing survives.
func ValidSendTimes(times []string) []string {
	valid := make([]string, 0, len(times))
	for _, entry := range times {
		if len(entry) != 5 || entry[2] != ':' {
			continue
		}
		hour, errH := strconv.Atoi(entry[:2])
		minute, errM := strconv.Atoi(entry[3:])
		if errH != nil || errM != nil {
			continue
		}
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			continue
		}
		valid = append(valid, entry)
	}
	if len(valid) == 0 {
		return []string{"06:30", "17:30"}
	}
	return valid
}

// splitList splits a comma- or newline-separated env value.
func splitList(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if s := strings.TrimSpace(f); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("ALLOWED_ORIGIN"); v != "" {
		cfg.Server.AllowedOrigin = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Database.DataDir = v
		cfg.Archive.LocalDir = filepath.Join(v, "digests")
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("DEFAULT_TIMEZONE"); v != "" {
		if _, err := time.LoadLocation(v); err == nil {
			cfg.Digest.DefaultTimezone = v
		}
	}
	if v := os.Getenv("DEFAULT_SEND_TIMES"); v != "" {
		cfg.Digest.DefaultSendTimes = ValidSendTimes(splitList(v))
	}
	if v := os.Getenv("DEFAULT_RECIPIENTS"); v != "" {
		cfg.Digest.DefaultRecipients = splitList(v)
	}
	if v := os.Getenv("RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Digest.RetentionDays = n
		}
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.AI.OpenAIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.AI.AnthropicKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.AI.GeminiKey = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		if cfg.AI.BedrockRegion == "" {
			cfg.AI.BedrockRegion = v
		}
		if cfg.Archive.AWSRegion == "" {
			cfg.Archive.AWSRegion = v
		}
		if cfg.Email.SES.Region == "" {
			cfg.Email.SES.Region = v
		}
	}

	if v := os.Getenv("MARKET_API_KEY"); v != "" {
		cfg.Market.APIKey = v
	}
	if v := os.Getenv("MARKET_BASE_URL"); v != "" {
		cfg.Market.BaseURL = v
	}

	if v := os.Getenv("EMAIL_TRANSPORT"); v != "" {
		cfg.Email.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("EMAIL_API_KEY"); v != "" {
		cfg.Email.APIKey = v
	}
	if v := os.Getenv("EMAIL_API_URL"); v != "" {
		cfg.Email.APIURL = v
	}
	if v := os.Getenv("FROM_EMAIL"); v != "" {
		cfg.Email.FromEmail = v
	}
	if v := os.Getenv("FROM_NAME"); v != "" {
		cfg.Email.FromName = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTP.Port = p
		}
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		cfg.Email.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Email.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_TLS"); v != "" {
		cfg.Email.SMTP.TLS = v == "true" || v == "1"
	}

	if v := os.Getenv("SES_ACCESS_KEY"); v != "" {
		cfg.Email.SES.AccessKey = v
	}
	if v := os.Getenv("SES_SECRET_KEY"); v != "" {
		cfg.Email.SES.SecretKey = v
	}

	if v := os.Getenv("ARCHIVE_S3_BUCKET"); v != "" {
		cfg.Archive.S3Bucket = v
	}

	return cfg, nil
}
