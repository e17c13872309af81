package policy

import (
	"fmt"

	"github.com/vaamx/modelmux/types"
)

// CapabilityPolicy scores the proportion of required capabilities the model
// declares. It is mandatory: a model missing half or more of the required
// capabilities is not viable regardless of other scores.
type CapabilityPolicy struct{}

// NewCapabilityPolicy creates the capability policy.
func NewCapabilityPolicy() *CapabilityPolicy { return &CapabilityPolicy{} }

// Name implements Policy.
func (p *CapabilityPolicy) Name() string { return "CapabilityPolicy" }

// Evaluate implements Policy.
func (p *CapabilityPolicy) Evaluate(m *types.ModelMetadata, req *types.Requirements) Evaluation {
	eval := Evaluation{Weight: 1.0, Mandatory: true}

	if len(req.Capabilities) == 0 {
		eval.Score = 1
		eval.Reasoning = "no capabilities required"
		return eval
	}

	var present int
	var missing []types.Capability
	for _, c := range req.Capabilities {
		if m.HasCapability(c) {
			present++
		} else {
			missing = append(missing, c)
		}
	}

	eval.Score = float64(present) / float64(len(req.Capabilities))
	if len(missing) == 0 {
		eval.Reasoning = "all required capabilities present"
	} else {
		eval.Reasoning = fmt.Sprintf("missing capabilities: %v", missing)
	}
	return eval
}
