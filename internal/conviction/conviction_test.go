package conviction

import (
	"testing"

	"github.com/minjunpark/kquant/internal/contracts"
)

func TestVolumeComponent(t *testing.T) {
	tests := []struct {
		name       string
		current    int64
		ma20       int64
		want       float64
	}{
		{"at 1.5x -> 100", 150, 100, 100},
		{"above 1.5x -> 100", 300, 100, 100},
		{"at 1.0x -> 50", 100, 100, 50},
		{"at 1.25x -> 75", 125, 100, 75},
		{"at 0.5x -> 0", 50, 100, 0},
		{"at 0.75x -> 25", 75, 100, 25},
		{"below 0.5x -> 0", 10, 100, 0},
		{"zero ma20 -> 0", 100, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := volumeComponent(tt.current, tt.ma20)
			if got != tt.want {
				t.Errorf("volumeComponent(%d, %d) = %v, want %v", tt.current, tt.ma20, got, tt.want)
			}
		})
	}
}

func TestScorer_Score_DefaultWeights(t *testing.T) {
	scorer, err := NewScorer(contracts.DefaultScoreWeights())
	if err != nil {
		t.Fatalf("NewScorer() error = %v", err)
	}

	composite := contracts.CompositeScore{
		ValueScore: 80, MomentumScore: 60, QualityScore: 90,
	}
	res := scorer.Score(composite, 150, 100) // volume ratio 1.5x -> 100

	want := 0.30*80 + 0.30*60 + 0.20*100 + 0.20*90
	if res.ConvictionScore != want {
		t.Errorf("ConvictionScore = %v, want %v", res.ConvictionScore, want)
	}
	if len(res.Reasons) == 0 {
		t.Error("expected at least one reason")
	}
}

func TestNewScorer_RejectsBadWeights(t *testing.T) {
	_, err := NewScorer(contracts.ScoreWeights{Value: 0.5, Momentum: 0.5, Volume: 0.5, Quality: 0.5})
	if err == nil {
		t.Error("expected error for weights summing to 2.0")
	}
}
