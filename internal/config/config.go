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
	Segmenter  SegmenterConfig  `yaml:"segmenter" mapstructure:"segmenter"`
	Context    ContextConfig    `yaml:"context" mapstructure:"context"`
	Correlator CorrelatorConfig `yaml:"correlator" mapstructure:"correlator"`
	Summary    SummaryConfig    `yaml:"summary" mapstructure:"summary"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// SegmenterConfig bounds session segmentation.
type SegmenterConfig struct {
	MinSessionDurationSecs int `yaml:"min_session_duration_secs" mapstructure:"min_session_duration_secs"`
	MaxEventGapSecs        int `yaml:"max_event_gap_secs" mapstructure:"max_event_gap_secs"`
	MinEventsForSummary    int `yaml:"min_events_for_summary" mapstructure:"min_events_for_summary"`
	MaxEventsForAnalysis   int `yaml:"max_events_for_analysis" mapstructure:"max_events_for_analysis"`
}

// MinSessionDuration returns the threshold as a duration.
func (c SegmenterConfig) MinSessionDuration() time.Duration {
	return time.Duration(c.MinSessionDurationSecs) * time.Second
}

// MaxEventGap returns the gap threshold as a duration.
func (c SegmenterConfig) MaxEventGap() time.Duration {
	return time.Duration(c.MaxEventGapSecs) * time.Second
}

// ContextConfig bounds the temporal context windows around a session.
type ContextConfig struct {
	LookbackSecs  int `yaml:"lookback_secs" mapstructure:"lookback_secs"`
	LookaheadSecs int `yaml:"lookahead_secs" mapstructure:"lookahead_secs"`
}

// Lookback returns the preceding-span window as a duration.
func (c ContextConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackSecs) * time.Second
}

// Lookahead returns the following-span window as a duration.
func (c ContextConfig) Lookahead() time.Duration {
	return time.Duration(c.LookaheadSecs) * time.Second
}

// CorrelatorConfig tunes evidence-frame correlation and confidence.
type CorrelatorConfig struct {
	MaxTemporalDistanceSecs int     `yaml:"max_temporal_distance_secs" mapstructure:"max_temporal_distance_secs"`
	MinEvidenceConfidence   float64 `yaml:"min_evidence_confidence" mapstructure:"min_evidence_confidence"`
	MaxEvidenceFrames       int     `yaml:"max_evidence_frames" mapstructure:"max_evidence_frames"`
	TemporalDecayFactor     float64 `yaml:"temporal_decay_factor" mapstructure:"temporal_decay_factor"`
}

// MaxTemporalDistance returns the correlation margin as a duration.
func (c CorrelatorConfig) MaxTemporalDistance() time.Duration {
	return time.Duration(c.MaxTemporalDistanceSecs) * time.Second
}

// SummaryConfig tunes key-event selection for summary construction.
type SummaryConfig struct {
	MaxKeyEvents int `yaml:"max_key_events" mapstructure:"max_key_events"`
}

// PipelineConfig tunes the analysis orchestrator.
type PipelineConfig struct {
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions" mapstructure:"max_concurrent_sessions"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port             int     `yaml:"port" mapstructure:"port"`
	AnalyzeRateLimit float64 `yaml:"analyze_rate_limit" mapstructure:"analyze_rate_limit"`
	AnalyzeBurst     int     `yaml:"analyze_burst" mapstructure:"analyze_burst"`
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
	v.SetEnvPrefix("EVIDENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("segmenter.min_session_duration_secs", 60)
	v.SetDefault("segmenter.max_event_gap_secs", 300)
	v.SetDefault("segmenter.min_events_for_summary", 3)
	v.SetDefault("segmenter.max_events_for_analysis", 1000)
	v.SetDefault("context.lookback_secs", 1800)
	v.SetDefault("context.lookahead_secs", 1800)
	v.SetDefault("correlator.max_temporal_distance_secs", 300)
	v.SetDefault("correlator.min_evidence_confidence", 0.3)
	v.SetDefault("correlator.max_evidence_frames", 10)
	v.SetDefault("correlator.temporal_decay_factor", 0.5)
	v.SetDefault("summary.max_key_events", 10)
	v.SetDefault("pipeline.max_concurrent_sessions", 4)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "evidence.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.analyze_rate_limit", 5)
	v.SetDefault("server.analyze_burst", 10)
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
