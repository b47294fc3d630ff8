// Package config provides configuration for the planner.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvConfigFile names an optional config file read before the environment.
const EnvConfigFile = "PLANNER_CONFIG"

// Config holds the planner configuration.
type Config struct {
	// Server settings
	HTTPPort int
	RPCPort  int // 0 disables the internal JSON-RPC listener

	// Database
	DatabaseURL string

	// Knowledge source (LiteLLM or any OpenAI-compatible endpoint)
	LiteLLMURL    string
	LiteLLMAPIKey string
	LLMModel      string
	LLMTimeout    time.Duration
	Mode          string

	// Authoritative place validator
	PlacesURL       string
	PlacesAPIKey    string
	PlacesTimeout   time.Duration
	PlacesCacheSize int

	// Feedback loop
	DiscoveryTimeout time.Duration
	DiscoveryRetries int
	MaxAttempts      int
	RetryBackoff     time.Duration

	// Jobs and graph
	JobHistoryLimit int
	GraphFile       string
	PolicyFile      string

	// WebSocket stream
	PingInterval time.Duration
	WriteTimeout time.Duration

	// Logging
	LogLevel string
}

var defaults = map[string]any{
	"HTTP_PORT":            8080,
	"RPC_PORT":             0,
	"DATABASE_URL":         "file:planner.db?cache=shared&mode=rwc",
	"LITELLM_URL":          "http://localhost:4000",
	"LITELLM_API_KEY":      "",
	"LLM_MODEL":            "gpt-4o-mini",
	"LLM_TIMEOUT_MS":       30000,
	"GOGO_MODE":            "",
	"PLACES_URL":           "",
	"PLACES_API_KEY":       "",
	"PLACES_TIMEOUT_MS":    5000,
	"PLACES_CACHE_SIZE":    1024,
	"DISCOVERY_TIMEOUT_MS": 20000,
	"DISCOVERY_RETRIES":    2,
	"MAX_ATTEMPTS":         3,
	"RETRY_BACKOFF_MS":     500,
	"JOB_HISTORY_LIMIT":    100,
	"GRAPH_FILE":           "",
	"POLICY_FILE":          "",
	"WS_PING_INTERVAL_MS":  30000,
	"WS_WRITE_TIMEOUT_MS":  10000,
	"LOG_LEVEL":            "info",
}

// Load loads configuration from the environment, on top of the file named
// by PLANNER_CONFIG when set.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString(EnvConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		HTTPPort:         v.GetInt("HTTP_PORT"),
		RPCPort:          v.GetInt("RPC_PORT"),
		DatabaseURL:      v.GetString("DATABASE_URL"),
		LiteLLMURL:       v.GetString("LITELLM_URL"),
		LiteLLMAPIKey:    v.GetString("LITELLM_API_KEY"),
		LLMModel:         v.GetString("LLM_MODEL"),
		LLMTimeout:       millis(v, "LLM_TIMEOUT_MS"),
		Mode:             v.GetString("GOGO_MODE"),
		PlacesURL:        v.GetString("PLACES_URL"),
		PlacesAPIKey:     v.GetString("PLACES_API_KEY"),
		PlacesTimeout:    millis(v, "PLACES_TIMEOUT_MS"),
		PlacesCacheSize:  v.GetInt("PLACES_CACHE_SIZE"),
		DiscoveryTimeout: millis(v, "DISCOVERY_TIMEOUT_MS"),
		DiscoveryRetries: v.GetInt("DISCOVERY_RETRIES"),
		MaxAttempts:      v.GetInt("MAX_ATTEMPTS"),
		RetryBackoff:     millis(v, "RETRY_BACKOFF_MS"),
		JobHistoryLimit:  v.GetInt("JOB_HISTORY_LIMIT"),
		GraphFile:        v.GetString("GRAPH_FILE"),
		PolicyFile:       v.GetString("POLICY_FILE"),
		PingInterval:     millis(v, "WS_PING_INTERVAL_MS"),
		WriteTimeout:     millis(v, "WS_WRITE_TIMEOUT_MS"),
		LogLevel:         v.GetString("LOG_LEVEL"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the planner cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPPort <= 0 {
		errs = append(errs, fmt.Errorf("HTTP_PORT must be positive"))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("MAX_ATTEMPTS must be at least 1"))
	}
	if c.DiscoveryRetries < 1 {
		errs = append(errs, fmt.Errorf("DISCOVERY_RETRIES must be at least 1"))
	}
	if c.PlacesCacheSize < 1 {
		errs = append(errs, fmt.Errorf("PLACES_CACHE_SIZE must be at least 1"))
	}
	return errors.Join(errs...)
}

// MockMode reports whether the mock knowledge source is selected.
func (c *Config) MockMode() bool {
	return strings.EqualFold(c.Mode, "MOCK")
}

func millis(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt(key)) * time.Millisecond
}
