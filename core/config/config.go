package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot transport settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// OperatorsConfig lists privileged Telegram identities.
type OperatorsConfig struct {
	IDs []int64 `yaml:"ids" envconfig:"OPERATOR_IDS"`
}

// SecretsConfig carries key material for at-rest field encryption.
type SecretsConfig struct {
	// EncryptionKey seeds the deterministic cipher applied to user identities
	// and profile fields before they reach the record store.
	EncryptionKey string `yaml:"encryption_key" envconfig:"ENCRYPTION_KEY"`
}

// GeminiConfig configures the recommendation generation service.
type GeminiConfig struct {
	APIKey string `yaml:"api_key" envconfig:"GEMINI_API_KEY"`
	Model  string `yaml:"model" envconfig:"GEMINI_MODEL"`
}

// SchedulerConfig sets the periods of the two background jobs.
type SchedulerConfig struct {
	RecommendEvery time.Duration `yaml:"recommend_every" envconfig:"SCHEDULE_RECOMMEND_EVERY"`
	ExportEvery    time.Duration `yaml:"export_every" envconfig:"SCHEDULE_EXPORT_EVERY"`
}

// ExportConfig points the analytics snapshot writer at a directory.
type ExportConfig struct {
	Dir string `yaml:"dir" envconfig:"EXPORT_DIR"`
}

// BroadcastConfig bounds the fan-out performed by the dispatcher.
type BroadcastConfig struct {
	Concurrency    int           `yaml:"concurrency" envconfig:"BROADCAST_CONCURRENCY"`
	SendTimeout    time.Duration `yaml:"send_timeout" envconfig:"BROADCAST_SEND_TIMEOUT"`
	RetryTransient bool          `yaml:"retry_transient" envconfig:"BROADCAST_RETRY_TRANSIENT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

// DatabaseConfig holds PostgreSQL connection settings. Declared here
// rather than importing core/database: that package logs through
// core/logger, which reads this package, and the settings struct must
// stay a leaf. The composition root converts it to the database
// package's Config.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// RateLimitConfig holds settings for per-user rate limiting.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

// Config aggregates the whole application configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Operators OperatorsConfig `yaml:"operators"`
	Secrets   SecretsConfig   `yaml:"secrets"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Export    ExportConfig    `yaml:"export"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required configuration fields and adjusts defaults.
// Missing credentials are a startup failure: the process must not run without
// the bot token, the encryption key, or the generation service key.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if strings.TrimSpace(cfg.Secrets.EncryptionKey) == "" {
		return fmt.Errorf("secrets.encryption_key is required")
	}
	if strings.TrimSpace(cfg.Gemini.APIKey) == "" {
		return fmt.Errorf("gemini.api_key is required")
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.0-flash"
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if cfg.Scheduler.RecommendEvery <= 0 {
		cfg.Scheduler.RecommendEvery = 24 * time.Hour
	}
	if cfg.Scheduler.ExportEvery <= 0 {
		cfg.Scheduler.ExportEvery = time.Hour
	}
	if cfg.Export.Dir == "" {
		cfg.Export.Dir = "exports"
	}
	if cfg.Broadcast.Concurrency <= 0 {
		cfg.Broadcast.Concurrency = 8
	}
	if cfg.Broadcast.SendTimeout <= 0 {
		cfg.Broadcast.SendTimeout = 10 * time.Second
	}

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}

// IsOperator reports whether the given Telegram identity is privileged.
func (c *Config) IsOperator(id int64) bool {
	for _, op := range c.Operators.IDs {
		if op == id {
			return true
		}
	}
	return false
}
