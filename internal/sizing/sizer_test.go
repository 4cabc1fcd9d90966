package sizing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCalculate_FixedRisk_S1Scenario(t *testing.T) {
	res, err := Calculate(Params{
		PortfolioValue:     decimal.NewFromInt(100_000_000),
		EntryPrice:         decimal.NewFromInt(70_000),
		StopLossPrice:      decimal.NewFromInt(63_000),
		Method:             MethodFixedRisk,
		RiskTolerancePct:   2.0,
		MaxPositionSizePct: 10.0,
		ConvictionScore:    100,
	})
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if res.RecommendedShares != 142 {
		t.Errorf("RecommendedShares = %d, want 142", res.RecommendedShares)
	}
	if res.PositionPct < 9.9 || res.PositionPct > 10.0 {
		t.Errorf("PositionPct = %v, want ~9.94", res.PositionPct)
	}
}

func TestCalculate_ConvictionBelow60_ZeroShares(t *testing.T) {
	res, err := Calculate(Params{
		PortfolioValue:  decimal.NewFromInt(100_000_000),
		EntryPrice:      decimal.NewFromInt(70_000),
		StopLossPrice:   decimal.NewFromInt(63_000),
		Method:          MethodFixedRisk,
		ConvictionScore: 50,
	})
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if res.RecommendedShares != 0 {
		t.Errorf("RecommendedShares = %d, want 0 below conviction 60", res.RecommendedShares)
	}
}

func TestKellyFraction(t *testing.T) {
	tests := []struct {
		name string
		s    HistoricalStats
		want float64
	}{
		{"positive expectancy", HistoricalStats{WinRate: 0.6, AvgWinPct: 15, AvgLossPct: 8}, 0.6 - 0.4/(15.0/8.0)},
		{"invalid win rate", HistoricalStats{WinRate: 0, AvgWinPct: 15, AvgLossPct: 8}, 0},
		{"invalid win rate high", HistoricalStats{WinRate: 1, AvgWinPct: 15, AvgLossPct: 8}, 0},
		{"zero avg loss", HistoricalStats{WinRate: 0.6, AvgWinPct: 15, AvgLossPct: 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := kellyFraction(tt.s)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("kellyFraction() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCrossSectionalMedianVol(t *testing.T) {
	got := CrossSectionalMedianVol([]float64{10, 30, 20})
	if got != 20 {
		t.Errorf("CrossSectionalMedianVol() = %v, want 20", got)
	}
}

func TestCalculate_RejectsNonPositiveEntry(t *testing.T) {
	_, err := Calculate(Params{
		PortfolioValue: decimal.NewFromInt(1000),
		EntryPrice:     decimal.Zero,
		Method:         MethodFixedPercent,
	})
	if err == nil {
		t.Error("expected error for zero entry price")
	}
}
