package types

import "fmt"

// Capability is a named ability a model possesses. The set is closed; the
// registry rejects metadata carrying anything else.
type Capability string

const (
	CapChat            Capability = "chat"
	CapEmbedding       Capability = "embedding"
	CapVision          Capability = "vision"
	CapToolCalling     Capability = "tool_calling"
	CapStreaming       Capability = "streaming"
	CapFunctionCalling Capability = "function_calling"
	CapJSONMode        Capability = "json_mode"
	CapAdvancedReason  Capability = "advanced_reasoning"
	CapComplexReason   Capability = "complex_reasoning"
	CapCodeGeneration  Capability = "code_generation"
	CapMultimodal      Capability = "multimodal"
	CapCreativeWriting Capability = "creative_writing"
)

// AllCapabilities enumerates the closed capability set.
var AllCapabilities = []Capability{
	CapChat, CapEmbedding, CapVision, CapToolCalling, CapStreaming,
	CapFunctionCalling, CapJSONMode, CapAdvancedReason, CapComplexReason,
	CapCodeGeneration, CapMultimodal, CapCreativeWriting,
}

var validCapabilities = func() map[Capability]bool {
	m := make(map[Capability]bool, len(AllCapabilities))
	for _, c := range AllCapabilities {
		m[c] = true
	}
	return m
}()

// IsValid reports whether c belongs to the closed capability set.
func (c Capability) IsValid() bool { return validCapabilities[c] }

// ModelStatus is the availability state of a registry entry.
type ModelStatus string

const (
	StatusAvailable  ModelStatus = "available"
	StatusBeta       ModelStatus = "beta"
	StatusLimited    ModelStatus = "limited"
	StatusDeprecated ModelStatus = "deprecated"
)

// Pricing is cost in USD per 1,000,000 tokens.
type Pricing struct {
	InputTokens  float64 `json:"input_tokens"`
	OutputTokens float64 `json:"output_tokens"`
}

// Performance captures observed latency characteristics.
type Performance struct {
	AverageLatencyMs float64 `json:"average_latency_ms"`
	TokensPerSecond  float64 `json:"tokens_per_second"`
}

// Availability describes where and whether the model can serve traffic.
type Availability struct {
	Regions []string    `json:"regions,omitempty"`
	Status  ModelStatus `json:"status"`
}

// Limits are provider-imposed request/token quotas, zero meaning unknown.
type Limits struct {
	RequestsPerMinute int `json:"requests_per_minute,omitempty"`
	RequestsPerDay    int `json:"requests_per_day,omitempty"`
	TokensPerMinute   int `json:"tokens_per_minute,omitempty"`
}

// ModelMetadata is a registry entry describing one backend model.
type ModelMetadata struct {
	ID          string `json:"id"`
	Provider    string `json:"provider"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	Description string `json:"description,omitempty"`

	ContextWindow   int `json:"context_window"`
	MaxOutputTokens int `json:"max_output_tokens"` // 0 for embedding models

	Capabilities []Capability `json:"capabilities"`
	Pricing      Pricing      `json:"pricing"`
	Performance  Performance  `json:"performance"`
	Availability Availability `json:"availability"`
	Limits       Limits       `json:"limits,omitempty"`

	// LocalOnly marks providers that run on-prem; the only models eligible
	// under PrivacyRestricted.
	LocalOnly bool `json:"local_only,omitempty"`
}

// HasCapability reports whether the model declares cap.
func (m *ModelMetadata) HasCapability(cap Capability) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// HasAllCapabilities reports whether every cap in caps is declared.
func (m *ModelMetadata) HasAllCapabilities(caps []Capability) bool {
	for _, c := range caps {
		if !m.HasCapability(c) {
			return false
		}
	}
	return true
}

// Validate checks the registration-time invariants. Violations surface as
// INVALID_MODEL_METADATA.
func (m *ModelMetadata) Validate() error {
	if m.ID == "" {
		return NewError(ErrInvalidMetadata, "model id is required")
	}
	if m.Provider == "" {
		return NewError(ErrInvalidMetadata, fmt.Sprintf("model %s: provider is required", m.ID))
	}
	if m.ContextWindow <= 0 {
		return NewError(ErrInvalidMetadata, fmt.Sprintf("model %s: context window must be positive", m.ID))
	}
	if m.MaxOutputTokens < 0 {
		return NewError(ErrInvalidMetadata, fmt.Sprintf("model %s: max output tokens must be non-negative", m.ID))
	}
	if len(m.Capabilities) == 0 {
		return NewError(ErrInvalidMetadata, fmt.Sprintf("model %s: capability set must be non-empty", m.ID))
	}
	for _, c := range m.Capabilities {
		if !c.IsValid() {
			return NewError(ErrInvalidMetadata, fmt.Sprintf("model %s: unknown capability %q", m.ID, c))
		}
	}
	if m.Pricing.InputTokens < 0 || m.Pricing.OutputTokens < 0 {
		return NewError(ErrInvalidMetadata, fmt.Sprintf("model %s: pricing must be non-negative", m.ID))
	}
	switch m.Availability.Status {
	case StatusAvailable, StatusBeta, StatusLimited, StatusDeprecated:
	case "":
		return NewError(ErrInvalidMetadata, fmt.Sprintf("model %s: availability status is required", m.ID))
	default:
		return NewError(ErrInvalidMetadata, fmt.Sprintf("model %s: unknown status %q", m.ID, m.Availability.Status))
	}
	return nil
}

// Clone returns a deep copy so registry callers cannot mutate shared state.
func (m *ModelMetadata) Clone() *ModelMetadata {
	cp := *m
	cp.Capabilities = append([]Capability(nil), m.Capabilities...)
	cp.Availability.Regions = append([]string(nil), m.Availability.Regions...)
	return &cp
}
