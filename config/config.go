// Package config loads modelmux configuration. Precedence: defaults, then
// YAML file, then environment variables. Env keys are the MODELMUX_ prefix
// plus the struct's env tags (MODELMUX_LLM_DEFAULT_MAX_RETRIES and so on);
// the legacy unprefixed keys LLM_DEFAULT_MAX_RETRIES,
// LLM_DEFAULT_RETRY_DELAY_MS and CACHE_EMBEDDINGS are honored too.
package config

import (
	"time"

	"github.com/vaamx/modelmux/orchestrator"
)

// Config is the full modelmux configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm" env:"LLM"`
	Cache     CacheConfig     `yaml:"cache" env:"CACHE"`
	Providers ProvidersConfig `yaml:"providers" env:"PROVIDERS"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Health    HealthConfig    `yaml:"health" env:"HEALTH"`
}

// LLMConfig tunes orchestration defaults.
type LLMConfig struct {
	// DefaultMaxRetries is the retry budget when options do not override.
	DefaultMaxRetries int `yaml:"default_max_retries" env:"DEFAULT_MAX_RETRIES"`
	// DefaultRetryDelayMS is the base backoff delay in milliseconds.
	DefaultRetryDelayMS int `yaml:"default_retry_delay_ms" env:"DEFAULT_RETRY_DELAY_MS"`
	// ComplexTaskProvider is preferred for complex reasoning and code tasks.
	ComplexTaskProvider string `yaml:"complex_task_provider" env:"COMPLEX_TASK_PROVIDER"`
	// LocalProvider is preferred under restricted privacy.
	LocalProvider string `yaml:"local_provider" env:"LOCAL_PROVIDER"`
}

// CacheConfig selects and tunes the response cache.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend string `yaml:"backend" env:"BACKEND"`
	// Capacity bounds the in-memory cache entry count.
	Capacity int `yaml:"capacity" env:"CAPACITY"`
	// ChatTTL and EmbeddingTTL set entry lifetimes.
	ChatTTL      time.Duration `yaml:"chat_ttl" env:"CHAT_TTL"`
	EmbeddingTTL time.Duration `yaml:"embedding_ttl" env:"EMBEDDING_TTL"`
	// Embeddings is the global kill switch for the embedding cache.
	// Defaults to true.
	Embeddings bool `yaml:"embeddings" env:"EMBEDDINGS"`

	Redis RedisConfig `yaml:"redis" env:"REDIS"`
}

// RedisConfig configures the redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

// ProvidersConfig carries per-provider credentials and endpoints.
type ProvidersConfig struct {
	OpenAI    OpenAIConfig    `yaml:"openai" env:"OPENAI"`
	Anthropic AnthropicConfig `yaml:"anthropic" env:"ANTHROPIC"`
	Local     LocalConfig     `yaml:"local" env:"LOCAL"`
}

// OpenAIConfig holds OpenAI credentials.
type OpenAIConfig struct {
	APIKey       string        `yaml:"api_key" env:"API_KEY"`
	Organization string        `yaml:"organization" env:"ORGANIZATION"`
	BaseURL      string        `yaml:"base_url" env:"BASE_URL"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// RPM enables the client-side rate limiter when positive.
	RPM int `yaml:"rpm" env:"RPM"`
}

// AnthropicConfig holds Anthropic credentials.
type AnthropicConfig struct {
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Version string        `yaml:"version" env:"VERSION"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RPM     int           `yaml:"rpm" env:"RPM"`
}

// LocalConfig points at an Ollama-compatible server.
type LocalConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`
}

// HealthConfig controls background provider probing.
type HealthConfig struct {
	// Interval enables probing when positive.
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

// OrchestratorConfig maps the loaded values onto the orchestrator's knobs.
func (c *Config) OrchestratorConfig() orchestrator.Config {
	cacheEmbeddings := c.Cache.Embeddings
	return orchestrator.Config{
		MaxRetries:          c.LLM.DefaultMaxRetries,
		RetryDelay:          time.Duration(c.LLM.DefaultRetryDelayMS) * time.Millisecond,
		ChatCacheTTL:        c.Cache.ChatTTL,
		EmbeddingCacheTTL:   c.Cache.EmbeddingTTL,
		CacheEmbeddings:     &cacheEmbeddings,
		LocalProvider:       c.LLM.LocalProvider,
		ComplexTaskProvider: c.LLM.ComplexTaskProvider,
		HealthInterval:      c.Health.Interval,
	}
}
