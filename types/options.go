package types

import "time"

// Options is the per-request configuration bag accepted by the orchestrator
// entry points. The zero value is usable: caching defaults on, retry and
// routing fields fall back to service defaults.
type Options struct {
	// Generation
	Model            string       `json:"model,omitempty"` // preferred model id, not a mandate
	Temperature      *float32     `json:"temperature,omitempty"`
	MaxTokens        int          `json:"max_tokens,omitempty"`
	TopP             *float32     `json:"top_p,omitempty"`
	FrequencyPenalty *float32     `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float32     `json:"presence_penalty,omitempty"`
	Stop             []string     `json:"stop,omitempty"`
	Tools            []ToolSchema `json:"tools,omitempty"`
	SystemPrompt     string       `json:"system_prompt,omitempty"`
	JSONMode         bool         `json:"json_mode,omitempty"`

	// Routing
	TaskType       TaskType           `json:"task_type,omitempty"`
	TaskComplexity TaskComplexity     `json:"task_complexity,omitempty"`
	Urgency        LatencyClass       `json:"urgency,omitempty"`
	Privacy        PrivacyLevel       `json:"privacy,omitempty"`
	MaxCost        float64            `json:"max_cost,omitempty"`
	PolicyWeights  map[string]float64 `json:"policy_weights,omitempty"`

	// Caching
	UseCache *bool         `json:"use_cache,omitempty"` // nil = true
	CacheTTL time.Duration `json:"cache_ttl,omitempty"`

	// Retry
	MaxRetries *int          `json:"max_retries,omitempty"` // nil = service default
	RetryDelay time.Duration `json:"retry_delay,omitempty"`

	// Identity
	RequestID string   `json:"request_id,omitempty"`
	UserID    string   `json:"user_id,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// CacheEnabled reports whether response caching is on (default true).
func (o *Options) CacheEnabled() bool {
	return o.UseCache == nil || *o.UseCache
}

// Bool returns a *bool, for setting Options.UseCache inline.
func Bool(v bool) *bool { return &v }

// Float32 returns a *float32, for setting sampling options inline.
func Float32(v float32) *float32 { return &v }

// Int returns an *int, for setting Options.MaxRetries inline.
func Int(v int) *int { return &v }
