package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	// Task/chunk storage: memory, file or postgres.
	StoreDriver string `json:"store_driver" yaml:"store_driver" toml:"store_driver"`
	DataDir     string `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	PostgresURL string `json:"postgres_url" yaml:"postgres_url" toml:"postgres_url"`

	// Response cache: memory, redis or empty to disable.
	CacheDriver     string `json:"cache_driver" yaml:"cache_driver" toml:"cache_driver"`
	RedisAddr       string `json:"redis_addr" yaml:"redis_addr" toml:"redis_addr"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds" yaml:"cache_ttl_seconds" toml:"cache_ttl_seconds"`

	// Providers.
	DefaultProvider string `json:"default_provider" yaml:"default_provider" toml:"default_provider"`
	OpenAIBaseURL   string `json:"openai_base_url" yaml:"openai_base_url" toml:"openai_base_url"`
	OpenAIAPIKey    string `json:"openai_api_key" yaml:"openai_api_key" toml:"openai_api_key"`
	OpenAIModel     string `json:"openai_model" yaml:"openai_model" toml:"openai_model"`
	OllamaHost      string `json:"ollama_host" yaml:"ollama_host" toml:"ollama_host"`
	OllamaModel     string `json:"ollama_model" yaml:"ollama_model" toml:"ollama_model"`

	// Generation behavior.
	MaxAttempts       int `json:"max_attempts" yaml:"max_attempts" toml:"max_attempts"`
	RetryBackoffMS    int `json:"retry_backoff_ms" yaml:"retry_backoff_ms" toml:"retry_backoff_ms"`
	GenTimeoutSeconds int `json:"gen_timeout_seconds" yaml:"gen_timeout_seconds" toml:"gen_timeout_seconds"`
	MaxPromptBytes    int `json:"max_prompt_bytes" yaml:"max_prompt_bytes" toml:"max_prompt_bytes"`
	OwnerWindowHours  int `json:"owner_window_hours" yaml:"owner_window_hours" toml:"owner_window_hours"`
	CleanupAfterHours int `json:"cleanup_after_hours" yaml:"cleanup_after_hours" toml:"cleanup_after_hours"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
