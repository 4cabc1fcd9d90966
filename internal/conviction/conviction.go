// Package conviction implements the Conviction Scorer (C4): a weighted
// combiner of a ticker's value/momentum/volume/quality sub-scores into a
// single conviction figure in [0,100], with a textual explanation.
package conviction

import (
	"fmt"

	"github.com/minjunpark/kquant/internal/contracts"
)

// Scorer computes ConvictionScore = Σ wᵢ · componentᵢ over
// value/momentum/volume/quality, matching the Conviction Scorer's
// documented default weights unless overridden.
type Scorer struct {
	weights contracts.ScoreWeights
}

// NewScorer creates a Scorer with the given weights, which must sum to
// 1.0 within tolerance (see contracts.ScoreWeights.Validate).
func NewScorer(weights contracts.ScoreWeights) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("conviction: %w", err)
	}
	return &Scorer{weights: weights}, nil
}

// Result is the conviction score plus the reasons that produced it.
type Result struct {
	ConvictionScore   float64
	ValueComponent    float64
	MomentumComponent float64
	VolumeComponent   float64
	QualityComponent  float64
	Reasons           []string
}

// volumeComponent maps current_volume/volume_ma_20 onto [0,100] via the
// documented piecewise bands: >=1.5x -> 100; 1.0-1.5x -> linear 50-100;
// 0.5-1.0x -> linear 0-50; <0.5x -> 0.
func volumeComponent(currentVolume, volumeMA20 int64) float64 {
	if volumeMA20 <= 0 {
		return 0
	}
	ratio := float64(currentVolume) / float64(volumeMA20)
	switch {
	case ratio >= 1.5:
		return 100
	case ratio >= 1.0:
		return lerp(ratio, 1.0, 1.5, 50, 100)
	case ratio >= 0.5:
		return lerp(ratio, 0.5, 1.0, 0, 50)
	default:
		return 0
	}
}

func lerp(x, x0, x1, y0, y1 float64) float64 {
	return y0 + (x-x0)*(y1-y0)/(x1-x0)
}

// Score computes the conviction score for a ticker's composite score and
// volume trend, along with the textual reasons list.
func (s *Scorer) Score(composite contracts.CompositeScore, currentVolume, volumeMA20 int64) Result {
	valueComp := composite.ValueScore
	momentumComp := composite.MomentumScore
	qualityComp := composite.QualityScore
	volumeComp := volumeComponent(currentVolume, volumeMA20)

	total := s.weights.Value*valueComp +
		s.weights.Momentum*momentumComp +
		s.weights.Volume*volumeComp +
		s.weights.Quality*qualityComp

	res := Result{
		ConvictionScore:   total,
		ValueComponent:    valueComp,
		MomentumComponent: momentumComp,
		VolumeComponent:   volumeComp,
		QualityComponent:  qualityComp,
		Reasons:           reasons(valueComp, momentumComp, volumeComp, qualityComp),
	}
	return res
}

func reasons(value, momentum, volume, quality float64) []string {
	var out []string
	if value >= 70 {
		out = append(out, "Strong value opportunity")
	}
	if momentum >= 70 {
		out = append(out, "Strong price momentum")
	}
	if volume >= 100 {
		out = append(out, "Volume surge confirms interest")
	} else if volume <= 0 {
		out = append(out, "Volume below half of 20-day average")
	}
	if quality >= 70 {
		out = append(out, "High fundamental quality")
	}
	if len(out) == 0 {
		out = append(out, "No standout sub-score")
	}
	return out
}
