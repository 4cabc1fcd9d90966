package risk

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/minjunpark/kquant/internal/contracts"
	"github.com/minjunpark/kquant/pkg/config"
	"github.com/minjunpark/kquant/pkg/logger"
)

type fakeRiskPortfolio struct {
	metrics   contracts.RiskMetrics
	positions []contracts.Position
	halted    bool
	haltReason string
	saved     contracts.RiskMetrics
}

func (f *fakeRiskPortfolio) GetPosition(ctx context.Context, user, ticker string) (*contracts.Position, error) {
	return nil, nil
}
func (f *fakeRiskPortfolio) ListPositions(ctx context.Context, user string) ([]contracts.Position, error) {
	return f.positions, nil
}
func (f *fakeRiskPortfolio) ApplyFill(ctx context.Context, fill contracts.Fill) (*contracts.Position, error) {
	return nil, nil
}
func (f *fakeRiskPortfolio) InitializeLimits(ctx context.Context, user, ticker string, stopLossPct, takeProfitPct decimal.Decimal, trailingEnabled bool, trailingDistancePct decimal.Decimal, takeProfitUseTechnical bool) error {
	return nil
}
func (f *fakeRiskPortfolio) UpdateTrailing(ctx context.Context, user, ticker string, lastPrice decimal.Decimal) error {
	return nil
}
func (f *fakeRiskPortfolio) SetHalt(ctx context.Context, user, reason string) error {
	f.halted = true
	f.haltReason = reason
	return nil
}
func (f *fakeRiskPortfolio) ClearHalt(ctx context.Context, user string) error {
	f.halted = false
	return nil
}
func (f *fakeRiskPortfolio) GetRiskMetrics(ctx context.Context, user string) (*contracts.RiskMetrics, error) {
	m := f.metrics
	return &m, nil
}
func (f *fakeRiskPortfolio) SaveRiskMetrics(ctx context.Context, metrics contracts.RiskMetrics) error {
	f.saved = metrics
	return nil
}

type fakeReturns struct {
	byTicker map[string][]float64
}

func (f *fakeReturns) DailyReturns(ctx context.Context, ticker string) ([]float64, error) {
	return f.byTicker[ticker], nil
}

func testLogger() *logger.Logger {
	return logger.New(&config.Config{Env: "development", LogLevel: "error", LogFormat: "console"})
}

func TestBreaker_S4Scenario_HaltsAndLiquidatesAll(t *testing.T) {
	portfolio := &fakeRiskPortfolio{
		metrics: contracts.RiskMetrics{
			User:           "u1",
			InitialCapital: decimal.NewFromInt(10_000_000),
			CashBalance:    decimal.NewFromInt(1_200_000),
			PeakValue:      decimal.NewFromInt(10_000_000),
		},
		positions: []contracts.Position{
			{User: "u1", Ticker: "005930", Quantity: 10, CurrentValue: decimal.NewFromInt(3_000_000), CurrentPrice: decimal.NewFromInt(300000)},
			{User: "u1", Ticker: "000660", Quantity: 20, CurrentValue: decimal.NewFromInt(3_000_000), CurrentPrice: decimal.NewFromInt(150000)},
		},
	}
	b := NewBreaker(portfolio, DefaultBreakerConfig(), nil, RiskLimits{}, testLogger())

	result, signals, err := b.Check(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !result.Halted {
		t.Errorf("expected Halted=true at 28%% loss")
	}
	if result.TotalLossFromInitialPct < 27.9 || result.TotalLossFromInitialPct > 28.1 {
		t.Errorf("TotalLossFromInitialPct = %v, want ~28", result.TotalLossFromInitialPct)
	}
	if len(signals) != 2 {
		t.Fatalf("expected 1 emergency_liquidation signal per open position, got %d", len(signals))
	}
	for _, s := range signals {
		if s.Kind != contracts.SignalEmergencyLiquidation {
			t.Errorf("signal kind = %s, want emergency_liquidation", s.Kind)
		}
		if s.Urgency != contracts.UrgencyCritical {
			t.Errorf("signal urgency = %s, want critical", s.Urgency)
		}
		if s.OrderType != contracts.OrderTypeMarket {
			t.Errorf("signal order type = %s, want MARKET", s.OrderType)
		}
	}
	if !portfolio.halted {
		t.Errorf("expected SetHalt to have been called")
	}
	if !portfolio.saved.TradingHalted {
		t.Errorf("saved risk metrics should carry TradingHalted=true")
	}
}

func TestBreaker_WarningBelowHaltThreshold(t *testing.T) {
	portfolio := &fakeRiskPortfolio{
		metrics: contracts.RiskMetrics{
			User:           "u1",
			InitialCapital: decimal.NewFromInt(10_000_000),
			CashBalance:    decimal.NewFromInt(7_600_000),
			PeakValue:      decimal.NewFromInt(10_000_000),
		},
		positions: nil,
	}
	b := NewBreaker(portfolio, DefaultBreakerConfig(), nil, RiskLimits{}, testLogger())

	result, signals, err := b.Check(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Halted {
		t.Errorf("should not halt at 24%% loss")
	}
	if !result.Warning {
		t.Errorf("should warn at 24%% loss (>= 80%% of 28%% ceiling)")
	}
	if len(signals) != 0 {
		t.Errorf("expected no liquidation signals below halt threshold, got %d", len(signals))
	}
}

func TestBreaker_Check_RollsUpPortfolioVaR(t *testing.T) {
	portfolio := &fakeRiskPortfolio{
		metrics: contracts.RiskMetrics{
			User:           "u1",
			InitialCapital: decimal.NewFromInt(10_000_000),
			CashBalance:    decimal.NewFromInt(2_000_000),
			PeakValue:      decimal.NewFromInt(10_000_000),
		},
		positions: []contracts.Position{
			{User: "u1", Ticker: "005930", Quantity: 10, CurrentValue: decimal.NewFromInt(8_000_000), CurrentPrice: decimal.NewFromInt(800000)},
		},
	}
	returns := &fakeReturns{byTicker: map[string][]float64{
		"005930": {0.01, -0.08, 0.02, -0.01, 0.015, -0.09, 0.03, -0.02, 0.01, -0.015},
	}}
	b := NewBreaker(portfolio, DefaultBreakerConfig(), returns, RiskLimits{}, testLogger())

	result, _, err := b.Check(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !result.RiskChecked {
		t.Fatalf("expected RiskChecked=true when a ReturnSeriesProvider is wired")
	}
	if result.VaR95 <= 0 {
		t.Errorf("VaR95 = %v, want a positive loss estimate given the -8%%/-9%% tail days", result.VaR95)
	}
}

func TestBreaker_Check_SkipsVaRWithoutReturnsProvider(t *testing.T) {
	portfolio := &fakeRiskPortfolio{
		metrics: contracts.RiskMetrics{
			User:           "u1",
			InitialCapital: decimal.NewFromInt(10_000_000),
			CashBalance:    decimal.NewFromInt(2_000_000),
			PeakValue:      decimal.NewFromInt(10_000_000),
		},
		positions: []contracts.Position{
			{User: "u1", Ticker: "005930", Quantity: 10, CurrentValue: decimal.NewFromInt(8_000_000), CurrentPrice: decimal.NewFromInt(800000)},
		},
	}
	b := NewBreaker(portfolio, DefaultBreakerConfig(), nil, RiskLimits{}, testLogger())

	result, _, err := b.Check(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.RiskChecked {
		t.Errorf("expected RiskChecked=false with no ReturnSeriesProvider wired")
	}
}

func TestBreaker_NoActionWellBelowCeiling(t *testing.T) {
	portfolio := &fakeRiskPortfolio{
		metrics: contracts.RiskMetrics{
			User:           "u1",
			InitialCapital: decimal.NewFromInt(10_000_000),
			CashBalance:    decimal.NewFromInt(9_500_000),
			PeakValue:      decimal.NewFromInt(10_000_000),
		},
	}
	b := NewBreaker(portfolio, DefaultBreakerConfig(), nil, RiskLimits{}, testLogger())

	result, signals, err := b.Check(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Halted || result.Warning {
		t.Errorf("should be quiet at 5%% loss, got halted=%v warning=%v", result.Halted, result.Warning)
	}
	if len(signals) != 0 {
		t.Errorf("expected no signals, got %d", len(signals))
	}
}
