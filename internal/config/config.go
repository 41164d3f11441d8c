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
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Dedupe    DedupeConfig    `yaml:"dedupe" mapstructure:"dedupe"`
	Quality   QualityConfig   `yaml:"quality" mapstructure:"quality"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds extraction model settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// FetchConfig holds reader-API settings for the content fetcher.
type FetchConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PipelineConfig configures the orchestrator and coordinator.
type PipelineConfig struct {
	MaxConcurrent  int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	BatchSize      int           `yaml:"batch_size" mapstructure:"batch_size"`
	RetryDelay     time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	JobTimeout     time.Duration `yaml:"job_timeout" mapstructure:"job_timeout"`
	ExtractionsRPS float64       `yaml:"extractions_per_second" mapstructure:"extractions_per_second"`
	MaxErrorDetail int           `yaml:"max_error_detail" mapstructure:"max_error_detail"`
}

// DedupeConfig configures duplicate detection thresholds.
type DedupeConfig struct {
	OverallThreshold float64 `yaml:"overall_threshold" mapstructure:"overall_threshold"`
	HighConfidence   float64 `yaml:"high_confidence" mapstructure:"high_confidence"`
	MediumConfidence float64 `yaml:"medium_confidence" mapstructure:"medium_confidence"`
	MergeThreshold   float64 `yaml:"merge_threshold" mapstructure:"merge_threshold"`
	UpdateThreshold  float64 `yaml:"update_threshold" mapstructure:"update_threshold"`
	MaxCandidates    int     `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// QualityConfig configures the completeness scorer weighting.
type QualityConfig struct {
	CriticalPoints float64 `yaml:"critical_points" mapstructure:"critical_points"`
	WarningPoints  float64 `yaml:"warning_points" mapstructure:"warning_points"`
	InfoPoints     float64 `yaml:"info_points" mapstructure:"info_points"`
	MaxNameLength  int     `yaml:"max_name_length" mapstructure:"max_name_length"`
}

// ServerConfig configures the ingestion HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. With an empty path it
// searches the working directory for config.yaml and treats a missing file as
// defaults-only; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("STREETEATS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "streeteats.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("fetch.base_url", "https://r.jina.ai")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("pipeline.max_concurrent", 1)
	v.SetDefault("pipeline.batch_size", 50)
	v.SetDefault("pipeline.retry_delay", "5s")
	v.SetDefault("pipeline.job_timeout", "10m")
	v.SetDefault("pipeline.extractions_per_second", 0.5)
	v.SetDefault("pipeline.max_error_detail", 25)
	v.SetDefault("dedupe.overall_threshold", 0.80)
	v.SetDefault("dedupe.high_confidence", 0.95)
	v.SetDefault("dedupe.medium_confidence", 0.85)
	v.SetDefault("dedupe.merge_threshold", 0.95)
	v.SetDefault("dedupe.update_threshold", 0.90)
	v.SetDefault("dedupe.max_candidates", 1000)
	v.SetDefault("quality.critical_points", 1.0)
	v.SetDefault("quality.warning_points", 0.5)
	v.SetDefault("quality.info_points", 0.1)
	v.SetDefault("quality.max_name_length", 100)

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, eris.Wrapf(err, "config: read %s", path)
		}
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
