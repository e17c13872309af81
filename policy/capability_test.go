package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vaamx/modelmux/types"
)

func chatModel(id string, caps ...types.Capability) *types.ModelMetadata {
	return &types.ModelMetadata{
		ID:            id,
		Provider:      "test",
		Name:          id,
		ContextWindow: 8192,
		Capabilities:  caps,
		Availability:  types.Availability{Status: types.StatusAvailable},
	}
}

func TestCapabilityPolicy(t *testing.T) {
	p := NewCapabilityPolicy()

	tests := []struct {
		name     string
		model    *types.ModelMetadata
		required []types.Capability
		want     float64
	}{
		{
			name:     "all present",
			model:    chatModel("m", types.CapChat, types.CapVision),
			required: []types.Capability{types.CapChat, types.CapVision},
			want:     1,
		},
		{
			name:     "half present",
			model:    chatModel("m", types.CapChat),
			required: []types.Capability{types.CapChat, types.CapVision},
			want:     0.5,
		},
		{
			name:     "none present",
			model:    chatModel("m", types.CapEmbedding),
			required: []types.Capability{types.CapChat, types.CapVision},
			want:     0,
		},
		{
			name:     "nothing required",
			model:    chatModel("m", types.CapChat),
			required: nil,
			want:     1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := p.Evaluate(tt.model, &types.Requirements{Capabilities: tt.required})
			assert.InDelta(t, tt.want, eval.Score, 1e-9)
			assert.True(t, eval.Mandatory)
			assert.Equal(t, 1.0, eval.Weight)
			assert.NotEmpty(t, eval.Reasoning)
		})
	}
}

func TestCostPolicy_HardBudget(t *testing.T) {
	p := NewCostPolicy()

	model := chatModel("m", types.CapChat)
	model.Pricing.InputTokens = 0.1

	eval := p.Evaluate(model, &types.Requirements{MaxCost: 0.15})
	assert.Equal(t, 1.0, eval.Score)

	model.Pricing.InputTokens = 0.5
	eval = p.Evaluate(model, &types.Requirements{MaxCost: 0.15})
	assert.Equal(t, 0.0, eval.Score)
	assert.False(t, eval.Mandatory)
	assert.Equal(t, 0.8, eval.Weight)
}

func TestCostPolicy_Tiers(t *testing.T) {
	p := NewCostPolicy()

	tiers := []struct {
		price float64
		want  float64
	}{
		{0.05, 1.0},
		{0.2, 1.0},
		{0.5, 0.8},
		{0.6, 0.8},
		{1.0, 0.6},
		{2.0, 0.4},
		{15, 0.2},
	}

	for _, tt := range tiers {
		model := chatModel("m", types.CapChat)
		model.Pricing.InputTokens = tt.price
		eval := p.Evaluate(model, &types.Requirements{})
		assert.Equal(t, tt.want, eval.Score, "price %.2f", tt.price)
	}
}

func TestSpeedPolicy(t *testing.T) {
	p := NewSpeedPolicy()

	tests := []struct {
		name    string
		latency float64
		class   types.LatencyClass
		want    float64
	}{
		{"at budget", 2000, types.LatencyMedium, 0.6},
		{"half budget", 1000, types.LatencyMedium, 0.8},
		{"quarter budget", 500, types.LatencyMedium, 0.9},
		{"double budget", 4000, types.LatencyMedium, 0.25},
		{"way over budget", 100000, types.LatencyMedium, 0.1},
		{"low class over", 2000, types.LatencyLow, 0.125},
		{"high class within", 2500, types.LatencyHigh, 0.6 + 0.4*0.5},
		{"unknown class defaults to medium", 1000, "", 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := chatModel("m", types.CapChat)
			model.Performance.AverageLatencyMs = tt.latency
			eval := p.Evaluate(model, &types.Requirements{Latency: tt.class})
			assert.InDelta(t, tt.want, eval.Score, 1e-9)
			assert.Equal(t, 0.7, eval.Weight)
		})
	}
}

func TestPrivacyPolicy(t *testing.T) {
	p := NewPrivacyPolicy()

	remote := chatModel("remote", types.CapChat)
	local := chatModel("local", types.CapChat)
	local.LocalOnly = true

	eval := p.Evaluate(remote, &types.Requirements{Privacy: types.PrivacyRestricted})
	assert.Equal(t, 0.0, eval.Score)
	assert.True(t, eval.Mandatory)

	eval = p.Evaluate(local, &types.Requirements{Privacy: types.PrivacyRestricted})
	assert.Equal(t, 1.0, eval.Score)

	for _, lvl := range []types.PrivacyLevel{types.PrivacyPublic, types.PrivacyInternal, types.PrivacyConfidential} {
		eval = p.Evaluate(remote, &types.Requirements{Privacy: lvl})
		assert.Equal(t, 1.0, eval.Score, "level %s", lvl)
	}
}
