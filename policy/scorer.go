package policy

import (
	"fmt"

	"github.com/vaamx/modelmux/types"
	"go.uber.org/zap"
)

// ModelScore is the aggregated scoring result for one candidate.
type ModelScore struct {
	Model        *types.ModelMetadata  `json:"model"`
	OverallScore float64               `json:"overall_score"`
	PolicyScores map[string]Evaluation `json:"policy_scores"`
	Viable       bool                  `json:"viable"`
	Reasoning    []string              `json:"reasoning"`
}

// Scorer aggregates policy evaluations into an overall score. The overall
// score is the weighted mean of the individual scores; a candidate is
// viable iff no mandatory policy scored below the viability threshold.
type Scorer struct {
	policies []Policy
	logger   *zap.Logger
}

// NewScorer creates a Scorer over the given policies. An empty policy list
// falls back to DefaultPolicies.
func NewScorer(policies []Policy, logger *zap.Logger) *Scorer {
	if len(policies) == 0 {
		policies = DefaultPolicies()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{policies: policies, logger: logger}
}

// Score evaluates every policy against the model. Weight per policy is
// taken from req.PolicyWeights when present, else the policy's default.
func (s *Scorer) Score(m *types.ModelMetadata, req *types.Requirements) *ModelScore {
	result := &ModelScore{
		Model:        m,
		PolicyScores: make(map[string]Evaluation, len(s.policies)),
		Viable:       true,
	}

	var weightedSum, totalWeight float64
	for _, p := range s.policies {
		eval := p.Evaluate(m, req)
		eval.Score = clamp01(eval.Score)

		if w, ok := req.PolicyWeights[p.Name()]; ok {
			eval.Weight = w
		}

		result.PolicyScores[p.Name()] = eval
		result.Reasoning = append(result.Reasoning,
			fmt.Sprintf("%s: %.2f (weight %.2f) %s", p.Name(), eval.Score, eval.Weight, eval.Reasoning))

		weightedSum += eval.Score * eval.Weight
		totalWeight += eval.Weight

		if eval.Mandatory && eval.Score < viabilityThreshold {
			result.Viable = false
		}
	}

	if totalWeight > 0 {
		result.OverallScore = weightedSum / totalWeight
	}
	return result
}

// Policies returns the configured policy list.
func (s *Scorer) Policies() []Policy { return s.policies }
