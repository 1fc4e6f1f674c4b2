// Package config loads application configuration from file and environment
// and owns global logger initialization.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Gmail     GmailConfig     `yaml:"gmail" mapstructure:"gmail"`
	Billing   BillingConfig   `yaml:"billing" mapstructure:"billing"`
	Prompts   PromptsConfig   `yaml:"prompts" mapstructure:"prompts"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// AnthropicConfig holds reasoning-service settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GmailConfig holds OAuth credentials and poll tuning for the mail account.
type GmailConfig struct {
	ClientID         string  `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret     string  `yaml:"client_secret" mapstructure:"client_secret"`
	RedirectURL      string  `yaml:"redirect_url" mapstructure:"redirect_url"`
	Account          string  `yaml:"account" mapstructure:"account"`
	PollIntervalSecs int     `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	MaxResults       int     `yaml:"max_results" mapstructure:"max_results"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// BillingConfig holds billing-service settings for draft invoices.
type BillingConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	Currency     string `yaml:"currency" mapstructure:"currency"`
	DaysUntilDue int    `yaml:"days_until_due" mapstructure:"days_until_due"`
}

// PromptsConfig points at an optional YAML file overriding the built-in
// reasoning templates.
type PromptsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml and SCOPEWATCH_* environment
// variables.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SCOPEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("gmail.account", "default")
	v.SetDefault("gmail.poll_interval_secs", 60)
	v.SetDefault("gmail.max_results", 5)
	v.SetDefault("gmail.rate_per_sec", 5)
	v.SetDefault("billing.currency", "inr")
	v.SetDefault("billing.days_until_due", 7)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings a given command mode depends on are
// present and sane. Modes: "serve", "poll", "migrate".
func (c *Config) Validate(mode string) error {
	var missing []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
	default:
		missing = append(missing, "store.driver must be postgres or sqlite")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
	case "poll":
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		if c.Gmail.ClientID == "" || c.Gmail.ClientSecret == "" {
			missing = append(missing, "gmail.client_id and gmail.client_secret are required")
		}
	case "migrate":
		// store checks above suffice
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode != "migrate" {
		if c.Gmail.PollIntervalSecs <= 0 {
			missing = append(missing, "gmail.poll_interval_secs must be > 0")
		}
		if c.Gmail.MaxResults < 1 || c.Gmail.MaxResults > 100 {
			missing = append(missing, "gmail.max_results must be between 1 and 100")
		}
		if c.Anthropic.MaxTokens <= 0 {
			missing = append(missing, "anthropic.max_tokens must be > 0")
		}
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
