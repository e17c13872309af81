// Package policy implements the pluggable scoring pipeline that ranks
// registry entries against per-request requirements. Policies are stateless
// evaluators; the Scorer aggregates them into an overall score and a
// viability flag, and the Selector picks the best viable candidate.
//
// New factors (quota, region, ...) are added by appending policies, not by
// editing the Scorer. Per-request weight overrides come from
// Requirements.PolicyWeights keyed by policy name.
package policy

import "github.com/vaamx/modelmux/types"

// viabilityThreshold is the score below which a mandatory policy makes a
// candidate non-viable.
const viabilityThreshold = 0.5

// Evaluation is the result of one policy against one model.
type Evaluation struct {
	Score     float64 `json:"score"` // in [0,1]
	Weight    float64 `json:"weight"`
	Mandatory bool    `json:"mandatory"`
	Reasoning string  `json:"reasoning"`
}

// Policy is a stateless evaluator scoring a model against requirements.
type Policy interface {
	// Name identifies the policy; it is the key used by weight overrides.
	Name() string

	// Evaluate returns the policy's score for the model. Implementations
	// must be safe for concurrent use and must not retain their arguments.
	Evaluate(m *types.ModelMetadata, req *types.Requirements) Evaluation
}

// DefaultPolicies returns the reference policy set in evaluation order.
func DefaultPolicies() []Policy {
	return []Policy{
		NewCapabilityPolicy(),
		NewCostPolicy(),
		NewSpeedPolicy(),
		NewPrivacyPolicy(),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
