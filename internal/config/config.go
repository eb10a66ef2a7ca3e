// Package config provides unified configuration loading for
// UnifiedIntelligence. Supports YAML files and environment variable
// overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the process.
type Config struct {
	InstanceID    string              `yaml:"instance_id"`
	Server        ServerConfig        `yaml:"server"`
	Store         StoreConfig         `yaml:"store"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds transport settings. The transport itself (stdio/HTTP
// framing) is handled by an external collaborator; this only configures
// the bearer-HTTP listener used by cmd/ui-server.
type ServerConfig struct {
	Mode         string        `yaml:"mode"` // stdio or http
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	BearerToken  string        `yaml:"bearer_token"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StoreConfig holds Redis-compatible store connection settings.
type StoreConfig struct {
	Addr            string        `yaml:"addr"`
	Password        string        `yaml:"password"`
	DB              int           `yaml:"db"`
	MaxPoolSize     int           `yaml:"max_pool_size"`
	PoolWaitTimeout time.Duration `yaml:"pool_wait_timeout"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
}

// EmbeddingConfig holds embedding generation settings.
type EmbeddingConfig struct {
	Model              string `yaml:"model"`
	Dimensions         int    `yaml:"dimensions"`
	HNSWMaxConnections int    `yaml:"hnsw_m"`
	HNSWEFConstruction int    `yaml:"hnsw_ef_construction"`
}

// RetrievalConfig holds hybrid-scoring settings.
type RetrievalConfig struct {
	DefaultTopK   int     `yaml:"default_top_k"`
	Preset        string  `yaml:"preset"` // fast-chat, deep-research, recall-recent, balanced-default
	WeightSemantic float64 `yaml:"weight_semantic"`
	WeightText     float64 `yaml:"weight_text"`
	WeightRecency  float64 `yaml:"weight_recency"`
	RecencyHalfLifeSeconds float64 `yaml:"recency_half_life_seconds"`
}

// RateLimitConfig holds the fixed-window limiter settings.
type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from a YAML file (if path is non-empty) and
// applies environment variable overrides, in the teacher's Load/applyEnv
// pattern.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for
// development.
func DefaultConfig() *Config {
	return &Config{
		InstanceID: "default",
		Server: ServerConfig{
			Mode:         "stdio",
			Host:         "0.0.0.0",
			Port:         8099,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Addr:            "localhost:6379",
			DB:              0,
			MaxPoolSize:     20,
			PoolWaitTimeout: 5 * time.Second,
			DialTimeout:     5 * time.Second,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Model:              "text-embedding-3-small",
			Dimensions:         1536,
			HNSWMaxConnections: 16,
			HNSWEFConstruction: 200,
		},
		Retrieval: RetrievalConfig{
			DefaultTopK:            5,
			Preset:                 "balanced-default",
			WeightSemantic:         0.5,
			WeightText:             0.3,
			WeightRecency:          0.2,
			RecencyHalfLifeSeconds: 86400,
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 60,
			Window:      time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Mode != "stdio" && c.Server.Mode != "http" {
		return fmt.Errorf("invalid server mode: %s", c.Server.Mode)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive")
	}
	for _, w := range []float64{c.Retrieval.WeightSemantic, c.Retrieval.WeightText, c.Retrieval.WeightRecency} {
		if w < 0 || w > 1 {
			return fmt.Errorf("hybrid weights must be within [0,1]")
		}
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("rate_limit.max_requests must be positive")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to cfg, in the
// teacher's style (strconv.Atoi for numbers, with malformed values ignored;
// direct string assignment otherwise).
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INSTANCE_ID"); v != "" {
		cfg.InstanceID = v
	}
	if v := os.Getenv("UI_SERVER_MODE"); v != "" {
		cfg.Server.Mode = v
	}
	if v := os.Getenv("UI_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("UI_BEARER_TOKEN"); v != "" {
		cfg.Server.BearerToken = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Store.Addr = strings.TrimPrefix(strings.TrimPrefix(v, "redis://"), "rediss://")
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Store.Password = v
	}
	if v := os.Getenv("UI_STORE_MAX_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.MaxPoolSize = n
		}
	}
	if v := os.Getenv("UI_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Embedding.Dimensions = n
		}
	}
	if v := os.Getenv("UI_RETRIEVAL_PRESET"); v != "" {
		cfg.Retrieval.Preset = v
	}
	if v := os.Getenv("UI_RATE_LIMIT_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.MaxRequests = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
