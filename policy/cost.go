package policy

import (
	"fmt"

	"github.com/vaamx/modelmux/types"
)

// CostPolicy scores by input-token price (USD per 1M tokens). With a hard
// budget it is pass/fail; without one it maps price onto preference tiers.
type CostPolicy struct{}

// NewCostPolicy creates the cost policy.
func NewCostPolicy() *CostPolicy { return &CostPolicy{} }

// Name implements Policy.
func (p *CostPolicy) Name() string { return "CostPolicy" }

// Evaluate implements Policy.
func (p *CostPolicy) Evaluate(m *types.ModelMetadata, req *types.Requirements) Evaluation {
	eval := Evaluation{Weight: 0.8}
	price := m.Pricing.InputTokens

	if req.MaxCost > 0 {
		if price <= req.MaxCost {
			eval.Score = 1
			eval.Reasoning = fmt.Sprintf("price %.3f within budget %.3f", price, req.MaxCost)
		} else {
			eval.Score = 0
			eval.Reasoning = fmt.Sprintf("price %.3f exceeds budget %.3f", price, req.MaxCost)
		}
		return eval
	}

	switch {
	case price <= 0.2:
		eval.Score = 1.0
	case price <= 0.6:
		eval.Score = 0.8
	case price <= 1.0:
		eval.Score = 0.6
	case price <= 2.0:
		eval.Score = 0.4
	default:
		eval.Score = 0.2
	}
	eval.Reasoning = fmt.Sprintf("price %.3f per 1M input tokens", price)
	return eval
}
