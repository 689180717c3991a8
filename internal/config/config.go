// Package config loads application configuration from file and environment.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Probe     ProbeConfig     `yaml:"probe" mapstructure:"probe"`
	Resolver  ResolverConfig  `yaml:"resolver" mapstructure:"resolver"`
	Worker    WorkerConfig    `yaml:"worker" mapstructure:"worker"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SearchConfig holds web-search API settings.
type SearchConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries        int     `yaml:"retries" mapstructure:"retries"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	TextModel   string `yaml:"text_model" mapstructure:"text_model"`
	VisionModel string `yaml:"vision_model" mapstructure:"vision_model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ProbeConfig configures HTTP probing and screenshots.
type ProbeConfig struct {
	TimeoutSecs       int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxPathCandidates int `yaml:"max_path_candidates" mapstructure:"max_path_candidates"`
	MaxLinkCandidates int `yaml:"max_link_candidates" mapstructure:"max_link_candidates"`
	ScreenshotTimeout int `yaml:"screenshot_timeout_secs" mapstructure:"screenshot_timeout_secs"`
}

// ResolverConfig configures resolution policy.
type ResolverConfig struct {
	AcceptThreshold float64 `yaml:"accept_threshold" mapstructure:"accept_threshold"`
	BlockThreshold  float64 `yaml:"block_threshold" mapstructure:"block_threshold"`
	VisionEnabled   bool    `yaml:"vision_enabled" mapstructure:"vision_enabled"`
	Region          string  `yaml:"region" mapstructure:"region"`
	// SkipCategories never run events resolution; they resolve to skipped.
	SkipCategories []string `yaml:"skip_categories" mapstructure:"skip_categories"`
	// SearchFallbackCategories opt in to the web-search events strategy.
	SearchFallbackCategories []string `yaml:"search_fallback_categories" mapstructure:"search_fallback_categories"`
	MaxSearchCandidates      int      `yaml:"max_search_candidates" mapstructure:"max_search_candidates"`
}

// SkipsCategory reports whether events resolution is disabled for a category.
func (r ResolverConfig) SkipsCategory(category string) bool {
	for _, c := range r.SkipCategories {
		if c == category {
			return true
		}
	}
	return false
}

// SearchFallbackFor reports whether the web-search events strategy is enabled
// for a category.
func (r ResolverConfig) SearchFallbackFor(category string) bool {
	for _, c := range r.SearchFallbackCategories {
		if c == category {
			return true
		}
	}
	return false
}

// WorkerConfig configures the worker loop and its AIMD pacing.
type WorkerConfig struct {
	SleepMinSecs       float64 `yaml:"sleep_min_secs" mapstructure:"sleep_min_secs"`
	SleepMaxSecs       float64 `yaml:"sleep_max_secs" mapstructure:"sleep_max_secs"`
	SleepStartSecs     float64 `yaml:"sleep_start_secs" mapstructure:"sleep_start_secs"`
	SleepAdditiveDec   float64 `yaml:"sleep_additive_dec" mapstructure:"sleep_additive_dec"`
	SleepMultInc       float64 `yaml:"sleep_mult_inc" mapstructure:"sleep_mult_inc"`
	HeartbeatSecs      int     `yaml:"heartbeat_secs" mapstructure:"heartbeat_secs"`
	MaxConsecutiveErrs int     `yaml:"max_consecutive_errors" mapstructure:"max_consecutive_errors"`
	ErrorPauseSecs     int     `yaml:"error_pause_secs" mapstructure:"error_pause_secs"`
	IdleWaitSecs       int     `yaml:"idle_wait_secs" mapstructure:"idle_wait_secs"`
}

// Heartbeat returns the heartbeat interval as a duration.
func (w WorkerConfig) Heartbeat() time.Duration {
	return time.Duration(w.HeartbeatSecs) * time.Second
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
	v.SetEnvPrefix("NAVIGATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "navigator.db")
	v.SetDefault("search.base_url", "https://s.jina.ai")
	v.SetDefault("search.timeout_secs", 15)
	v.SetDefault("search.retries", 3)
	v.SetDefault("search.requests_per_sec", 0.5)
	v.SetDefault("anthropic.text_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.vision_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 256)
	v.SetDefault("probe.timeout_secs", 10)
	v.SetDefault("probe.max_path_candidates", 3)
	v.SetDefault("probe.max_link_candidates", 5)
	v.SetDefault("probe.screenshot_timeout_secs", 20)
	v.SetDefault("resolver.accept_threshold", 0.6)
	v.SetDefault("resolver.block_threshold", 0.8)
	v.SetDefault("resolver.vision_enabled", true)
	v.SetDefault("resolver.region", "MA")
	v.SetDefault("resolver.skip_categories", []string{"school"})
	v.SetDefault("resolver.search_fallback_categories", []string{})
	v.SetDefault("resolver.max_search_candidates", 3)
	v.SetDefault("worker.sleep_min_secs", 1.0)
	v.SetDefault("worker.sleep_max_secs", 4.0)
	v.SetDefault("worker.sleep_start_secs", 1.0)
	v.SetDefault("worker.sleep_additive_dec", 0.5)
	v.SetDefault("worker.sleep_mult_inc", 2.0)
	v.SetDefault("worker.heartbeat_secs", 10)
	v.SetDefault("worker.max_consecutive_errors", 10)
	v.SetDefault("worker.error_pause_secs", 60)
	v.SetDefault("worker.idle_wait_secs", 30)
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
