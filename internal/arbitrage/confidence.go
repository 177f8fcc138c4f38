package arbitrage

import "math"

// DefaultConfidenceScale makes a 0.02% spread score 1.
const DefaultConfidenceScale = 5000.0

// Scorer converts a relative spread into a confidence in [0, 1].
type Scorer struct {
	Scale float64
}

// NewScorer returns a Scorer, falling back to DefaultConfidenceScale when
// scale is not positive.
func NewScorer(scale float64) Scorer {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		scale = DefaultConfidenceScale
	}
	return Scorer{Scale: scale}
}

// Confidence returns 0 for a non-positive spread and spread*Scale clamped to
// [0, 1] otherwise. spread is (sell - buy) / buy.
func (s Scorer) Confidence(spread float64) float64 {
	if math.IsNaN(spread) || spread <= 0 {
		return 0
	}
	return math.Min(math.Max(spread*s.Scale, 0), 1)
}
