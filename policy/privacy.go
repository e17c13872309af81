package policy

import (
	"github.com/vaamx/modelmux/types"
)

// PrivacyPolicy enforces the privacy contract at scoring time: under
// restricted privacy only local/on-prem models are viable. It complements
// the registry's hard filter so that selections over an unfiltered
// candidate list still honor the mandate, with per-candidate reasoning.
type PrivacyPolicy struct{}

// NewPrivacyPolicy creates the privacy policy.
func NewPrivacyPolicy() *PrivacyPolicy { return &PrivacyPolicy{} }

// Name implements Policy.
func (p *PrivacyPolicy) Name() string { return "PrivacyPolicy" }

// Evaluate implements Policy.
func (p *PrivacyPolicy) Evaluate(m *types.ModelMetadata, req *types.Requirements) Evaluation {
	eval := Evaluation{Weight: 1.0, Mandatory: true}

	if req.Privacy == types.PrivacyRestricted && !m.LocalOnly {
		eval.Score = 0
		eval.Reasoning = "restricted privacy requires a local/on-prem provider"
		return eval
	}
	eval.Score = 1
	eval.Reasoning = "privacy constraints satisfied"
	return eval
}
