package policy

import (
	"fmt"

	"github.com/vaamx/modelmux/types"
)

// latencyBudgetMs maps a latency class to the maximum acceptable average
// response latency in milliseconds.
var latencyBudgetMs = map[types.LatencyClass]float64{
	types.LatencyLow:    500,
	types.LatencyMedium: 2000,
	types.LatencyHigh:   5000,
}

// SpeedPolicy scores by the model's average latency against the request's
// latency class. Models within budget score 0.6..1.0 scaled by headroom;
// models over budget degrade proportionally with a floor of 0.1.
type SpeedPolicy struct{}

// NewSpeedPolicy creates the speed policy.
func NewSpeedPolicy() *SpeedPolicy { return &SpeedPolicy{} }

// Name implements Policy.
func (p *SpeedPolicy) Name() string { return "SpeedPolicy" }

// Evaluate implements Policy.
func (p *SpeedPolicy) Evaluate(m *types.ModelMetadata, req *types.Requirements) Evaluation {
	eval := Evaluation{Weight: 0.7}

	budget, ok := latencyBudgetMs[req.Latency]
	if !ok {
		budget = latencyBudgetMs[types.LatencyMedium]
	}
	actual := m.Performance.AverageLatencyMs
	if actual <= 0 {
		// Unknown latency: neutral-ish score, no penalty and no bonus.
		eval.Score = 0.6
		eval.Reasoning = "latency unknown"
		return eval
	}

	if actual <= budget {
		eval.Score = clamp01(0.6 + 0.4*(1-actual/budget))
		eval.Reasoning = fmt.Sprintf("latency %.0fms within %.0fms budget", actual, budget)
	} else {
		score := 0.5 * budget / actual
		if score < 0.1 {
			score = 0.1
		}
		eval.Score = score
		eval.Reasoning = fmt.Sprintf("latency %.0fms over %.0fms budget", actual, budget)
	}
	return eval
}
