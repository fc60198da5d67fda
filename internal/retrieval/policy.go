package retrieval

import (
	"math"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/errors"
)

// Policy names accepted by NewPolicy
const (
	PolicyTopKThreshold = "topk_threshold"
	PolicyAdaptive      = "adaptive"
	PolicyMargin        = "margin"
)

// SelectionPolicy decides which scored documents survive ranking. Input
// arrives best-first, but a reranker may have perturbed strict score order,
// so policies filter on score rather than cutting at the first miss; output
// preserves input order.
type SelectionPolicy interface {
	Select(ranked []ScoredDocument) []ScoredDocument
	Name() string
}

// NewPolicy constructs the configured selection policy
func NewPolicy(cfg config.RetrievalConfig) (SelectionPolicy, error) {
	switch cfg.Policy {
	case PolicyTopKThreshold:
		return &TopKThresholdPolicy{TopK: cfg.TopK, Threshold: cfg.Threshold}, nil
	case PolicyAdaptive:
		return &AdaptivePolicy{TopK: cfg.TopK, Coefficient: cfg.Coefficient}, nil
	case PolicyMargin:
		return &MarginPolicy{TopK: cfg.TopK, Margin: cfg.Margin}, nil
	default:
		return nil, errors.Newf(errors.ErrTypeConfig, "unsupported retrieval policy: %s", cfg.Policy)
	}
}

// TopKThresholdPolicy keeps documents scoring at or above a static threshold,
// capped at TopK.
type TopKThresholdPolicy struct {
	TopK      int
	Threshold float64
}

func (p *TopKThresholdPolicy) Select(ranked []ScoredDocument) []ScoredDocument {
	var selected []ScoredDocument

	for _, doc := range ranked {
		if doc.Score < p.Threshold {
			continue
		}

		selected = append(selected, doc)
		if len(selected) == p.TopK {
			break
		}
	}

	return selected
}

func (p *TopKThresholdPolicy) Name() string { return PolicyTopKThreshold }

// AdaptivePolicy derives the threshold from the score distribution itself:
// theta = mean + Coefficient*stddev. Works without tuning a static cutoff,
// but keeps at least the single best document when anything scored positive.
type AdaptivePolicy struct {
	TopK        int
	Coefficient float64
}

func (p *AdaptivePolicy) Select(ranked []ScoredDocument) []ScoredDocument {
	if len(ranked) == 0 {
		return nil
	}

	var sum float64
	for _, doc := range ranked {
		sum += doc.Score
	}

	mean := sum / float64(len(ranked))

	var variance float64
	for _, doc := range ranked {
		variance += (doc.Score - mean) * (doc.Score - mean)
	}

	theta := mean + p.Coefficient*math.Sqrt(variance/float64(len(ranked)))

	var selected []ScoredDocument

	for _, doc := range ranked {
		if doc.Score < theta {
			continue
		}

		selected = append(selected, doc)
		if len(selected) == p.TopK {
			break
		}
	}

	if len(selected) == 0 {
		best := 0
		for i := range ranked {
			if ranked[i].Score > ranked[best].Score {
				best = i
			}
		}

		if ranked[best].Score > 0 {
			selected = ranked[best : best+1]
		}
	}

	return selected
}

func (p *AdaptivePolicy) Name() string { return PolicyAdaptive }

// MarginPolicy keeps documents scoring within a relative margin of the best
// match, capped at TopK. A margin of 0.95 keeps everything within 5% of top.
type MarginPolicy struct {
	TopK   int
	Margin float64
}

func (p *MarginPolicy) Select(ranked []ScoredDocument) []ScoredDocument {
	if len(ranked) == 0 {
		return nil
	}

	top := ranked[0].Score
	for _, doc := range ranked[1:] {
		if doc.Score > top {
			top = doc.Score
		}
	}

	cutoff := top * p.Margin

	var selected []ScoredDocument

	for _, doc := range ranked {
		if doc.Score < cutoff {
			continue
		}

		selected = append(selected, doc)
		if len(selected) == p.TopK {
			break
		}
	}

	return selected
}

func (p *MarginPolicy) Name() string { return PolicyMargin }
