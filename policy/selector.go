package policy

import (
	"fmt"
	"sort"

	"github.com/vaamx/modelmux/types"
	"go.uber.org/zap"
)

// Selector picks the best viable model from a candidate list. Ranking is
// deterministic: overall score descending, then preferred-provider match,
// then lower input price, then lexicographically smaller id.
type Selector struct {
	scorer *Scorer
	logger *zap.Logger
}

// NewSelector creates a Selector around the given scorer.
func NewSelector(scorer *Scorer, logger *zap.Logger) *Selector {
	if scorer == nil {
		scorer = NewScorer(nil, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{scorer: scorer, logger: logger}
}

// Select returns the best viable candidate. A preferred id present in the
// candidate list short-circuits selection when it fully satisfies the
// required capabilities; otherwise selection falls back to scoring every
// candidate and ranking the viable ones.
func (s *Selector) Select(candidates []*types.ModelMetadata, req *types.Requirements, preferredID string) (*types.ModelMetadata, error) {
	if len(candidates) == 0 {
		return nil, types.NewError(types.ErrNoModels, "no models registered")
	}

	if preferredID != "" {
		if m := findByID(candidates, preferredID); m != nil {
			eval := NewCapabilityPolicy().Evaluate(m, req)
			if eval.Score == 1 {
				s.logger.Debug("preferred model satisfies capabilities",
					zap.String("model", preferredID))
				return m, nil
			}
			s.logger.Debug("preferred model rejected, falling back to dynamic selection",
				zap.String("model", preferredID),
				zap.String("reason", eval.Reasoning))
		}
	}

	scores := make([]*ModelScore, 0, len(candidates))
	viable := make([]*ModelScore, 0, len(candidates))
	for _, m := range candidates {
		sc := s.scorer.Score(m, req)
		scores = append(scores, sc)
		if sc.Viable {
			viable = append(viable, sc)
		}
	}

	if len(viable) == 0 {
		for _, sc := range scores {
			s.logger.Warn("candidate not viable",
				zap.String("model", sc.Model.ID),
				zap.Float64("score", sc.OverallScore),
				zap.Strings("reasoning", sc.Reasoning))
		}
		return nil, types.NewError(types.ErrSelectionFailed,
			fmt.Sprintf("no viable model among %d candidates", len(candidates)))
	}

	sort.SliceStable(viable, func(i, j int) bool {
		return less(viable[i], viable[j], req.PreferredProvider)
	})

	best := viable[0]
	s.logger.Debug("model selected",
		zap.String("model", best.Model.ID),
		zap.String("provider", best.Model.Provider),
		zap.Float64("score", best.OverallScore),
		zap.Int("viable", len(viable)),
		zap.Int("candidates", len(candidates)))
	return best.Model, nil
}

// less orders a before b when a ranks strictly better.
func less(a, b *ModelScore, preferredProvider string) bool {
	if a.OverallScore != b.OverallScore {
		return a.OverallScore > b.OverallScore
	}
	if preferredProvider != "" {
		am := a.Model.Provider == preferredProvider
		bm := b.Model.Provider == preferredProvider
		if am != bm {
			return am
		}
	}
	if a.Model.Pricing.InputTokens != b.Model.Pricing.InputTokens {
		return a.Model.Pricing.InputTokens < b.Model.Pricing.InputTokens
	}
	return a.Model.ID < b.Model.ID
}

func findByID(candidates []*types.ModelMetadata, id string) *types.ModelMetadata {
	for _, m := range candidates {
		if m.ID == id {
			return m
		}
	}
	return nil
}
