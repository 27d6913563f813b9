package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Generation GenerationConfig `yaml:"generation" mapstructure:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" mapstructure:"retrieval"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Edgar      EdgarConfig      `yaml:"edgar" mapstructure:"edgar"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Documents  DocumentsConfig  `yaml:"documents" mapstructure:"documents"`
	Profiles   ProfilesConfig   `yaml:"profiles" mapstructure:"profiles"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	WorkflowCache  int      `yaml:"workflow_cache" mapstructure:"workflow_cache"`
	WorkflowTTLMin int      `yaml:"workflow_ttl_min" mapstructure:"workflow_ttl_min"`
}

// GenerationConfig selects and tunes the generation backend.
type GenerationConfig struct {
	Backend             string `yaml:"backend" mapstructure:"backend"` // edge | local
	EdgeURL             string `yaml:"edge_url" mapstructure:"edge_url"`
	EdgeToken           string `yaml:"edge_token" mapstructure:"edge_token"`
	EdgeFunction        string `yaml:"edge_function" mapstructure:"edge_function"`
	FunctionTimeoutSecs int    `yaml:"function_timeout_secs" mapstructure:"function_timeout_secs"`
	BreakerFailures     int    `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs    int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	RegistryPath        string `yaml:"registry_path" mapstructure:"registry_path"`
}

// RetrievalConfig tunes multi-tier source search.
type RetrievalConfig struct {
	GlobalTimeoutMs       int          `yaml:"global_timeout_ms" mapstructure:"global_timeout_ms"`
	TierTimeouts          TierTimeouts `yaml:"tier_timeouts" mapstructure:"tier_timeouts"`
	MaxResultsPerTier     int          `yaml:"max_results_per_tier" mapstructure:"max_results_per_tier"`
	CacheTTLSecs          int          `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	CacheSize             int          `yaml:"cache_size" mapstructure:"cache_size"`
	FreshnessHalfLifeDays int          `yaml:"freshness_half_life_days" mapstructure:"freshness_half_life_days"`
	Retry                 RetryConfig  `yaml:"retry" mapstructure:"retry"`
}

// TierTimeouts holds per-tier search deadlines in milliseconds.
type TierTimeouts struct {
	UserDocs     int `yaml:"user_docs" mapstructure:"user_docs"`
	OfficialAPI  int `yaml:"official_api" mapstructure:"official_api"`
	BusinessData int `yaml:"business_data" mapstructure:"business_data"`
	News         int `yaml:"news" mapstructure:"news"`
}

// RetryConfig configures retry with backoff for retrieval tiers.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// EdgarConfig holds SEC EDGAR settings. SEC requires a contact email in
// the User-Agent.
type EdgarConfig struct {
	UserAgent string  `yaml:"user_agent" mapstructure:"user_agent"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JinaConfig holds Jina search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// DocumentsConfig configures document text extraction.
type DocumentsConfig struct {
	OCRProvider   string `yaml:"ocr_provider" mapstructure:"ocr_provider"` // local | mistral
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_key" mapstructure:"mistral_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
	MaxFileBytes  int64  `yaml:"max_file_bytes" mapstructure:"max_file_bytes"`
}

// ProfilesConfig points at an optional evidence profile override file.
type ProfilesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// MonitoringConfig configures generation metrics alerting.
type MonitoringConfig struct {
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	WasteRateThreshold    float64 `yaml:"waste_rate_threshold" mapstructure:"waste_rate_threshold"`
	P95LatencyThresholdMs int64   `yaml:"p95_latency_threshold_ms" mapstructure:"p95_latency_threshold_ms"`
	LookbackHours         int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// Load reads configuration from an optional .env file, config.yaml and
// EVIDENCE_* environment variables.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("EVIDENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Secrets default to "" so AutomaticEnv can see them.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.workflow_cache", 1024)
	v.SetDefault("server.workflow_ttl_min", 60)
	v.SetDefault("generation.backend", "local")
	v.SetDefault("generation.edge_url", "")
	v.SetDefault("generation.edge_token", "")
	v.SetDefault("generation.edge_function", "scrape-and-extract")
	v.SetDefault("generation.function_timeout_secs", 120)
	v.SetDefault("generation.breaker_failures", 5)
	v.SetDefault("generation.breaker_reset_secs", 30)
	v.SetDefault("generation.registry_path", "")
	v.SetDefault("retrieval.global_timeout_ms", 40000)
	v.SetDefault("retrieval.tier_timeouts.user_docs", 3000)
	v.SetDefault("retrieval.tier_timeouts.official_api", 8000)
	v.SetDefault("retrieval.tier_timeouts.business_data", 2000)
	v.SetDefault("retrieval.tier_timeouts.news", 10000)
	v.SetDefault("retrieval.max_results_per_tier", 5)
	v.SetDefault("retrieval.cache_ttl_secs", 300)
	v.SetDefault("retrieval.cache_size", 256)
	v.SetDefault("retrieval.freshness_half_life_days", 365)
	v.SetDefault("retrieval.retry.max_attempts", 2)
	v.SetDefault("retrieval.retry.initial_backoff_ms", 200)
	v.SetDefault("retrieval.retry.max_backoff_ms", 2000)
	v.SetDefault("retrieval.retry.multiplier", 2.0)
	v.SetDefault("retrieval.retry.jitter_fraction", 0.2)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("edgar.user_agent", "")
	v.SetDefault("edgar.base_url", "https://data.sec.gov")
	v.SetDefault("edgar.rate_limit", 10.0)
	v.SetDefault("google.key", "")
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("documents.ocr_provider", "local")
	v.SetDefault("documents.pdftotext_path", "pdftotext")
	v.SetDefault("documents.mistral_key", "")
	v.SetDefault("documents.mistral_model", "pixtral-large-latest")
	v.SetDefault("documents.max_file_bytes", 20<<20)
	v.SetDefault("profiles.path", "")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.waste_rate_threshold", 0.3)
	v.SetDefault("monitoring.p95_latency_threshold_ms", 30000)
	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)

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

// Validate checks settings that cannot be defaulted for the given command
// mode: "store" (database only), "generate" or "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	case "sqlite":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required (use :memory: for a scratch database)")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown store driver %q", c.Store.Driver))
	}

	switch mode {
	case "store":
	case "generate", "serve":
		errs = append(errs, c.validateGeneration()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateGeneration() []string {
	var errs []string
	switch c.Generation.Backend {
	case "local":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required for the local backend")
		}
	case "edge":
		if c.Generation.EdgeURL == "" {
			errs = append(errs, "generation.edge_url is required for the edge backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown generation backend %q", c.Generation.Backend))
	}
	if c.Edgar.UserAgent != "" && !strings.Contains(c.Edgar.UserAgent, "@") {
		errs = append(errs, "edgar.user_agent must contain a contact email")
	}
	switch c.Documents.OCRProvider {
	case "", "local":
	case "mistral":
		if c.Documents.MistralKey == "" {
			errs = append(errs, "documents.mistral_key is required for the mistral ocr provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown ocr provider %q", c.Documents.OCRProvider))
	}
	if c.Monitoring.WasteRateThreshold < 0 || c.Monitoring.WasteRateThreshold > 1 {
		errs = append(errs, "monitoring.waste_rate_threshold must be between 0 and 1")
	}
	return errs
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
