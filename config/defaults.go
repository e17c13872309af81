package config

import "time"

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			DefaultMaxRetries:   3,
			DefaultRetryDelayMS: 1000,
			LocalProvider:       "local",
		},
		Cache: CacheConfig{
			Backend:      "memory",
			Capacity:     1000,
			ChatTTL:      3600 * time.Second,
			EmbeddingTTL: 86400 * time.Second,
			Embeddings:   true,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				BaseURL: "https://api.openai.com",
				Timeout: 60 * time.Second,
			},
			Anthropic: AnthropicConfig{
				BaseURL: "https://api.anthropic.com",
				Version: "2023-06-01",
				Timeout: 60 * time.Second,
			},
			Local: LocalConfig{
				BaseURL: "http://localhost:11434",
				Timeout: 120 * time.Second,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Health: HealthConfig{
			Interval: 0, // probing off unless enabled
		},
	}
}
