package contracts

import "testing"

func TestScoreWeights_Validate(t *testing.T) {
	tests := []struct {
		name    string
		w       ScoreWeights
		wantErr bool
	}{
		{"default", DefaultScoreWeights(), false},
		{"exact one", ScoreWeights{Value: 0.25, Momentum: 0.25, Volume: 0.25, Quality: 0.25}, false},
		{"within tolerance", ScoreWeights{Value: 0.3, Momentum: 0.3, Volume: 0.2, Quality: 0.2 + 5e-7}, false},
		{"too high", ScoreWeights{Value: 0.4, Momentum: 0.3, Volume: 0.2, Quality: 0.2}, true},
		{"too low", ScoreWeights{Value: 0.2, Momentum: 0.2, Volume: 0.2, Quality: 0.2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStrengthForConviction(t *testing.T) {
	tests := []struct {
		conviction float64
		want       SignalStrength
	}{
		{45, StrengthWeak},
		{50, StrengthModerate},
		{79.9, StrengthModerate},
		{80, StrengthStrong},
		{100, StrengthStrong},
	}

	for _, tt := range tests {
		if got := StrengthForConviction(tt.conviction); got != tt.want {
			t.Errorf("StrengthForConviction(%v) = %v, want %v", tt.conviction, got, tt.want)
		}
	}
}
