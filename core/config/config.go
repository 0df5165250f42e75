package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token    string  `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminIDs []int64 `yaml:"admin_ids" envconfig:"ADMIN_IDS"`
	// TargetChatID is the default channel used by greeting flows (invite
	// links, membership checks) when no explicit destination is given.
	TargetChatID int64  `yaml:"target_chat_id" envconfig:"TARGET_CHAT_ID"`
	RunMode      string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// StorageConfig locates the file-backed catalogs (channels, presets,
// greeting state).
type StorageConfig struct {
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR"`
}

// AdminHTTPConfig configures the admin HTTP surface.
type AdminHTTPConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"ADMIN_HTTP_ENABLED"`
	Listen  string `yaml:"listen" envconfig:"ADMIN_HTTP_LISTEN"`
	Port    int    `yaml:"port" envconfig:"ADMIN_HTTP_PORT"`
	// Token is the shared secret accepted via X-Admin-Token header or the
	// token query parameter. Empty token disables authentication.
	Token string `yaml:"token" envconfig:"ADMIN_TOKEN"`
	// JWTSecret signs short-lived session tokens issued by /api/login.
	// Falls back to Token when empty.
	JWTSecret string `yaml:"jwt_secret" envconfig:"ADMIN_JWT_SECRET"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
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

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the full bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Storage   StorageConfig   `yaml:"storage"`
	AdminHTTP AdminHTTPConfig `yaml:"admin_http"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads configuration from a YAML file, a local .env file if present,
// and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

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

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
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

	if strings.TrimSpace(cfg.Storage.DataDir) == "" {
		cfg.Storage.DataDir = "data"
	}

	if cfg.AdminHTTP.Enabled {
		if strings.TrimSpace(cfg.AdminHTTP.Listen) == "" {
			cfg.AdminHTTP.Listen = "127.0.0.1"
		}
		if cfg.AdminHTTP.Port <= 0 {
			cfg.AdminHTTP.Port = 3000
		}
		if strings.TrimSpace(cfg.AdminHTTP.JWTSecret) == "" {
			cfg.AdminHTTP.JWTSecret = cfg.AdminHTTP.Token
		}
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

// IsOperator reports whether the given Telegram user is on the operator
// allow-list. An empty allow-list admits nobody.
func (t TelegramConfig) IsOperator(userID int64) bool {
	for _, id := range t.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
