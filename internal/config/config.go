package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/gradsync/internal/enrich"
	"github.com/sells-group/gradsync/internal/model"
	"github.com/sells-group/gradsync/internal/resilience"
	"github.com/sells-group/gradsync/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Source     SourceConfig     `yaml:"source" mapstructure:"source"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Enrich     enrich.Config    `yaml:"enrich" mapstructure:"enrich"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Stats      StatsConfig      `yaml:"stats" mapstructure:"stats"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string                 `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string                 `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig       `yaml:"pool" mapstructure:"pool"`
	Retry       resilience.RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// SourceConfig describes the results listing being crawled.
type SourceConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	SurveyPath        string  `yaml:"survey_path" mapstructure:"survey_path"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	PageLimit         int     `yaml:"page_limit" mapstructure:"page_limit"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	// Epoch bounds a cold-start crawl (YYYY-MM-DD).
	Epoch string `yaml:"epoch" mapstructure:"epoch"`
}

// EpochDate parses Epoch.
func (s SourceConfig) EpochDate() (model.Date, error) {
	d, err := model.ParseDate(s.Epoch)
	if err != nil {
		return model.Date{}, eris.Wrapf(err, "config: source.epoch %q", s.Epoch)
	}
	return d, nil
}

// BatchConfig locates the intermediate JSONL files.
type BatchConfig struct {
	RawPath      string `yaml:"raw_path" mapstructure:"raw_path"`
	EnrichedPath string `yaml:"enriched_path" mapstructure:"enriched_path"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string                   `yaml:"key" mapstructure:"key"`
	BaseURL   string                   `yaml:"base_url" mapstructure:"base_url"`
	Model     string                   `yaml:"model" mapstructure:"model"`
	MaxTokens int64                    `yaml:"max_tokens" mapstructure:"max_tokens"`
	Breaker   resilience.BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// StatsConfig selects the term the statistics report covers.
type StatsConfig struct {
	Term string `yaml:"term" mapstructure:"term"`
	TopN int    `yaml:"top_n" mapstructure:"top_n"`
}

// Query returns the default statistics query with the configured overrides.
func (s StatsConfig) Query() model.StatsQuery {
	q := model.DefaultStatsQuery()
	if s.Term != "" {
		q.Term = s.Term
	}
	if s.TopN > 0 {
		q.TopN = s.TopN
	}
	return q
}

// ServerConfig configures the JSON API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures sync health alerts. Alerts are only sent
// when WebhookURL is set.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StaleAfterHours      int     `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GRADSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 1)
	v.SetDefault("store.retry.max_attempts", 3)
	v.SetDefault("store.retry.initial_backoff", "200ms")
	v.SetDefault("store.retry.max_backoff", "5s")
	v.SetDefault("store.retry.multiplier", 2.0)
	v.SetDefault("store.retry.jitter_fraction", 0.25)
	v.SetDefault("source.base_url", "https://www.thegradcafe.com/")
	v.SetDefault("source.survey_path", "survey/")
	v.SetDefault("source.user_agent", "gradsync/1.0")
	v.SetDefault("source.page_limit", 100)
	v.SetDefault("source.requests_per_second", 1.0)
	v.SetDefault("source.timeout_secs", 30)
	v.SetDefault("source.max_retries", 1)
	v.SetDefault("source.epoch", "2020-01-01")
	v.SetDefault("batch.raw_path", "data/raw.jsonl")
	v.SetDefault("batch.enriched_path", "data/enriched.jsonl")
	v.SetDefault("enrich.provider", enrich.ProviderNone)
	v.SetDefault("enrich.timeout", "10m")
	v.SetDefault("enrich.concurrency", 4)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 256)
	v.SetDefault("anthropic.breaker.failure_threshold", 5)
	v.SetDefault("anthropic.breaker.reset_timeout", "30s")
	v.SetDefault("stats.term", "Fall 2025")
	v.SetDefault("stats.top_n", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.stale_after_hours", 48)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
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
	if cfg.Store.Driver == "sqlite" && cfg.Store.DatabaseURL == "" {
		cfg.Store.DatabaseURL = "gradsync.db"
	}

	return &cfg, nil
}

// Validate checks the settings a command needs before it touches the
// network or the database.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
	default:
		errs = append(errs, "store.driver must be postgres or sqlite")
	}

	switch mode {
	case "sync", "crawl":
		errs = append(errs, c.validateSource()...)
		if mode == "sync" {
			errs = append(errs, c.validateEnrich()...)
		}
	case "serve":
		errs = append(errs, c.validateSource()...)
		errs = append(errs, c.validateEnrich()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	case "monitor":
		if c.Monitoring.LookbackWindowHours <= 0 {
			errs = append(errs, "monitoring.lookback_window_hours must be > 0")
		}
	case "load", "stats", "migrate", "runs":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateSource() []string {
	var errs []string
	if c.Source.BaseURL == "" {
		errs = append(errs, "source.base_url is required")
	}
	if c.Source.PageLimit < 1 {
		errs = append(errs, "source.page_limit must be >= 1")
	}
	if _, err := c.Source.EpochDate(); err != nil {
		errs = append(errs, "source.epoch must be YYYY-MM-DD")
	}
	return errs
}

func (c *Config) validateEnrich() []string {
	switch c.Enrich.Provider {
	case "", enrich.ProviderNone:
	case enrich.ProviderCommand:
		if c.Enrich.Command == "" {
			return []string{"enrich.command is required for the command provider"}
		}
	case enrich.ProviderAnthropic:
		if c.Anthropic.Key == "" {
			return []string{"anthropic.key is required for the anthropic provider"}
		}
	case enrich.ProviderAlias:
		if c.Enrich.AliasFile == "" {
			return []string{"enrich.alias_file is required for the alias provider"}
		}
	default:
		return []string{"enrich.provider must be none, command, anthropic or alias"}
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
