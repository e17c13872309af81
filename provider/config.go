package provider

import "time"

// OpenAIConfig configures the OpenAI backend.
type OpenAIConfig struct {
	APIKey       string        `json:"api_key" yaml:"api_key"`
	BaseURL      string        `json:"base_url" yaml:"base_url"`
	Organization string        `json:"organization,omitempty" yaml:"organization,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// AnthropicConfig configures the Anthropic backend.
type AnthropicConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Version string        `json:"version,omitempty" yaml:"version,omitempty"` // anthropic-version header
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// LocalConfig configures the local (Ollama-compatible) backend.
type LocalConfig struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}
