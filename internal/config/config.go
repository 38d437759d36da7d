// Package config loads application configuration from config.yaml and
// MEIKAN_* environment variables, and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/touken-lab/meikan/internal/api"
	"github.com/touken-lab/meikan/internal/retrieval"
)

// Config holds the full application configuration.
type Config struct {
	Catalog   StoreConfig      `yaml:"catalog" mapstructure:"catalog"`
	Store     StoreConfig      `yaml:"store" mapstructure:"store"`
	Retrieval retrieval.Config `yaml:"retrieval" mapstructure:"retrieval"`
	Server    api.Config       `yaml:"server" mapstructure:"server"`
	Batch     BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Log       LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures a database backend. Driver is one of "sqlite",
// "postgres", or "none". "none" on the catalog yields the unprovisioned
// capability decided once at startup instead of a scattered runtime check.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// BatchConfig configures batch re-resolution.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	ChunkSize     int `yaml:"chunk_size" mapstructure:"chunk_size"`
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
	v.SetEnvPrefix("MEIKAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("catalog.driver", "sqlite")
	v.SetDefault("catalog.path", "meikan-catalog.db")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "meikan.db")
	v.SetDefault("retrieval.max_candidates", retrieval.DefaultMaxCandidates)
	v.SetDefault("retrieval.fuzzy_floor", retrieval.DefaultFuzzyFloor)
	v.SetDefault("retrieval.high_score", retrieval.DefaultHighScore)
	v.SetDefault("retrieval.high_margin", retrieval.DefaultHighMargin)
	v.SetDefault("retrieval.medium_score", retrieval.DefaultMediumScore)
	v.SetDefault("retrieval.snapshot_ttl_secs", 300)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.search_rate", 20)
	v.SetDefault("server.search_burst", 40)
	v.SetDefault("batch.max_concurrent", 8)
	v.SetDefault("batch.chunk_size", 500)
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
