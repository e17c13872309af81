package registry

import "github.com/vaamx/modelmux/types"

// DefaultCatalog returns the static seed catalog: a practical slice of
// OpenAI, Anthropic, and local models with public pricing (USD per 1M
// tokens) and rough latency figures. Deployments can replace or extend it
// from configuration; the registry treats it like any other registration.
func DefaultCatalog() []*types.ModelMetadata {
	return []*types.ModelMetadata{
		{
			ID:              "gpt-4o",
			Provider:        "openai",
			Name:            "gpt-4o",
			DisplayName:     "GPT-4o",
			Description:     "OpenAI flagship multimodal model",
			ContextWindow:   128000,
			MaxOutputTokens: 16384,
			Capabilities: []types.Capability{
				types.CapChat, types.CapStreaming, types.CapToolCalling,
				types.CapFunctionCalling, types.CapJSONMode, types.CapVision,
				types.CapMultimodal, types.CapAdvancedReason,
				types.CapComplexReason, types.CapCodeGeneration,
				types.CapCreativeWriting,
			},
			Pricing:      types.Pricing{InputTokens: 2.5, OutputTokens: 10},
			Performance:  types.Performance{AverageLatencyMs: 1200, TokensPerSecond: 90},
			Availability: types.Availability{Regions: []string{"us", "eu"}, Status: types.StatusAvailable},
			Limits:       types.Limits{RequestsPerMinute: 5000, TokensPerMinute: 800000},
		},
		{
			ID:              "gpt-4o-mini",
			Provider:        "openai",
			Name:            "gpt-4o-mini",
			DisplayName:     "GPT-4o mini",
			Description:     "Fast, inexpensive small model",
			ContextWindow:   128000,
			MaxOutputTokens: 16384,
			Capabilities: []types.Capability{
				types.CapChat, types.CapStreaming, types.CapToolCalling,
				types.CapFunctionCalling, types.CapJSONMode, types.CapVision,
				types.CapCodeGeneration,
			},
			Pricing:      types.Pricing{InputTokens: 0.15, OutputTokens: 0.6},
			Performance:  types.Performance{AverageLatencyMs: 600, TokensPerSecond: 140},
			Availability: types.Availability{Regions: []string{"us", "eu"}, Status: types.StatusAvailable},
			Limits:       types.Limits{RequestsPerMinute: 10000, TokensPerMinute: 2000000},
		},
		{
			ID:              "text-embedding-3-small",
			Provider:        "openai",
			Name:            "text-embedding-3-small",
			DisplayName:     "Text Embedding 3 Small",
			ContextWindow:   8191,
			MaxOutputTokens: 0,
			Capabilities:    []types.Capability{types.CapEmbedding},
			Pricing:         types.Pricing{InputTokens: 0.02, OutputTokens: 0},
			Performance:     types.Performance{AverageLatencyMs: 200},
			Availability:    types.Availability{Regions: []string{"us", "eu"}, Status: types.StatusAvailable},
		},
		{
			ID:              "claude-3-5-sonnet-20241022",
			Provider:        "anthropic",
			Name:            "claude-3-5-sonnet-20241022",
			DisplayName:     "Claude 3.5 Sonnet",
			Description:     "Anthropic balanced model, strong at code and reasoning",
			ContextWindow:   200000,
			MaxOutputTokens: 8192,
			Capabilities: []types.Capability{
				types.CapChat, types.CapStreaming, types.CapToolCalling,
				types.CapVision, types.CapAdvancedReason, types.CapComplexReason,
				types.CapCodeGeneration, types.CapCreativeWriting,
			},
			Pricing:      types.Pricing{InputTokens: 3, OutputTokens: 15},
			Performance:  types.Performance{AverageLatencyMs: 1500, TokensPerSecond: 80},
			Availability: types.Availability{Regions: []string{"us", "eu"}, Status: types.StatusAvailable},
			Limits:       types.Limits{RequestsPerMinute: 4000, TokensPerMinute: 400000},
		},
		{
			ID:              "claude-3-5-haiku-20241022",
			Provider:        "anthropic",
			Name:            "claude-3-5-haiku-20241022",
			DisplayName:     "Claude 3.5 Haiku",
			Description:     "Anthropic fast small model",
			ContextWindow:   200000,
			MaxOutputTokens: 8192,
			Capabilities: []types.Capability{
				types.CapChat, types.CapStreaming, types.CapToolCalling,
				types.CapCodeGeneration,
			},
			Pricing:      types.Pricing{InputTokens: 0.8, OutputTokens: 4},
			Performance:  types.Performance{AverageLatencyMs: 700, TokensPerSecond: 120},
			Availability: types.Availability{Regions: []string{"us", "eu"}, Status: types.StatusAvailable},
		},
		{
			ID:              "llama3.1:8b",
			Provider:        "local",
			Name:            "llama3.1:8b",
			DisplayName:     "Llama 3.1 8B (local)",
			Description:     "On-prem Llama served by Ollama",
			ContextWindow:   131072,
			MaxOutputTokens: 4096,
			Capabilities: []types.Capability{
				types.CapChat, types.CapStreaming, types.CapToolCalling,
				types.CapJSONMode, types.CapCodeGeneration,
			},
			Pricing:      types.Pricing{InputTokens: 0, OutputTokens: 0},
			Performance:  types.Performance{AverageLatencyMs: 2500, TokensPerSecond: 35},
			Availability: types.Availability{Regions: []string{"on-prem"}, Status: types.StatusAvailable},
			LocalOnly:    true,
		},
		{
			ID:              "nomic-embed-text",
			Provider:        "local",
			Name:            "nomic-embed-text",
			DisplayName:     "Nomic Embed Text (local)",
			ContextWindow:   8192,
			MaxOutputTokens: 0,
			Capabilities:    []types.Capability{types.CapEmbedding},
			Pricing:         types.Pricing{InputTokens: 0, OutputTokens: 0},
			Performance:     types.Performance{AverageLatencyMs: 150},
			Availability:    types.Availability{Regions: []string{"on-prem"}, Status: types.StatusAvailable},
			LocalOnly:       true,
		},
	}
}

// Seed registers every catalog entry, stopping at the first invalid one.
func Seed(r *Registry, catalog []*types.ModelMetadata) error {
	for _, m := range catalog {
		if err := r.Register(m); err != nil {
			return err
		}
	}
	return nil
}
