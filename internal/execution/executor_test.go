package execution

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/minjunpark/kquant/internal/contracts"
	"github.com/minjunpark/kquant/pkg/config"
	"github.com/minjunpark/kquant/pkg/logger"
)

type fakeTradeStore struct {
	trades map[string]*contracts.Trade
	saves  int
}

func newFakeTradeStore() *fakeTradeStore {
	return &fakeTradeStore{trades: make(map[string]*contracts.Trade)}
}

func (f *fakeTradeStore) GetTrade(ctx context.Context, orderID string) (*contracts.Trade, error) {
	return f.trades[orderID], nil
}
func (f *fakeTradeStore) SaveTrade(ctx context.Context, t *contracts.Trade) error {
	f.saves++
	cp := *t
	f.trades[t.OrderID] = &cp
	return nil
}

type fakeStockLookup struct{}

func (fakeStockLookup) GetStock(ctx context.Context, ticker string) (*contracts.Stock, error) {
	return &contracts.Stock{Ticker: ticker, Market: contracts.MarketKOSPI, Active: true}, nil
}

type fakePortfolioStore struct {
	fills []contracts.Fill
	prior *contracts.Position
}

func (f *fakePortfolioStore) GetPosition(ctx context.Context, user, ticker string) (*contracts.Position, error) {
	return f.prior, nil
}
func (f *fakePortfolioStore) ListPositions(ctx context.Context, user string) ([]contracts.Position, error) {
	return nil, nil
}
func (f *fakePortfolioStore) ApplyFill(ctx context.Context, fill contracts.Fill) (*contracts.Position, error) {
	f.fills = append(f.fills, fill)
	return &contracts.Position{User: fill.User, Ticker: fill.Ticker, Quantity: fill.Quantity}, nil
}
func (f *fakePortfolioStore) InitializeLimits(ctx context.Context, user, ticker string, stopLossPct, takeProfitPct decimal.Decimal, trailingEnabled bool, trailingDistancePct decimal.Decimal, takeProfitUseTechnical bool) error {
	return nil
}
func (f *fakePortfolioStore) UpdateTrailing(ctx context.Context, user, ticker string, lastPrice decimal.Decimal) error {
	return nil
}
func (f *fakePortfolioStore) SetHalt(ctx context.Context, user, reason string) error  { return nil }
func (f *fakePortfolioStore) ClearHalt(ctx context.Context, user string) error        { return nil }
func (f *fakePortfolioStore) GetRiskMetrics(ctx context.Context, user string) (*contracts.RiskMetrics, error) {
	return &contracts.RiskMetrics{}, nil
}
func (f *fakePortfolioStore) SaveRiskMetrics(ctx context.Context, metrics contracts.RiskMetrics) error {
	return nil
}

func newTestExecutor(t *testing.T) (*Executor, *fakeTradeStore, *fakePortfolioStore) {
	t.Helper()
	prices := &fakePrices{price: decimal.NewFromInt(70000), volume: 1_000_000, vol: decimal.NewFromInt(20)}
	broker := NewPaperBroker(prices, testPaperConfig())
	store := newFakeTradeStore()
	portfolio := &fakePortfolioStore{}
	log := logger.New(&config.Config{Env: "development", LogLevel: "error", LogFormat: "console"})
	exec := NewExecutor(broker, store, fakeStockLookup{}, portfolio, log)
	return exec, store, portfolio
}

func validSignal() contracts.TradingSignal {
	return contracts.TradingSignal{
		SignalID:          "ENTRY_005930_20260806_090000",
		Kind:              contracts.SignalEntryBuy,
		User:              "u1",
		Ticker:            "005930",
		GeneratedAt:       time.Now(),
		CurrentPrice:      decimal.NewFromInt(70000),
		RecommendedShares: 10,
		OrderType:         contracts.OrderTypeMarket,
		Valid:             true,
	}
}

func TestExecutor_SubmitOrder_FillsAndAppliesToPortfolio(t *testing.T) {
	exec, store, portfolio := newTestExecutor(t)
	sig := validSignal()

	trade, err := exec.SubmitOrder(context.Background(), sig)
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if trade.Status != contracts.StatusFilled {
		t.Errorf("Status = %s, want FILLED", trade.Status)
	}
	if len(portfolio.fills) != 1 {
		t.Fatalf("expected 1 fill applied, got %d", len(portfolio.fills))
	}
	if store.saves != 1 {
		t.Errorf("expected 1 save, got %d", store.saves)
	}
}

func TestExecutor_SubmitOrder_IdempotentRetry(t *testing.T) {
	exec, store, portfolio := newTestExecutor(t)
	sig := validSignal()

	first, err := exec.SubmitOrder(context.Background(), sig)
	if err != nil {
		t.Fatalf("first SubmitOrder: %v", err)
	}

	second, err := exec.SubmitOrder(context.Background(), sig)
	if err != nil {
		t.Fatalf("second SubmitOrder: %v", err)
	}

	if second.OrderID != first.OrderID || !second.ExecutedPrice.Equal(first.ExecutedPrice) {
		t.Errorf("retry returned a different trade: %+v vs %+v", first, second)
	}
	if len(portfolio.fills) != 1 {
		t.Errorf("portfolio should be debited exactly once, got %d fills", len(portfolio.fills))
	}
	if store.saves != 1 {
		t.Errorf("trade should be saved exactly once, got %d saves", store.saves)
	}
}

func TestExecutor_SubmitOrder_SellComputesRealizedPnL(t *testing.T) {
	exec, _, portfolio := newTestExecutor(t)
	portfolio.prior = &contracts.Position{User: "u1", Ticker: "005930", Quantity: 10, AvgPrice: decimal.NewFromInt(60000)}

	sig := validSignal()
	sig.SignalID = "EXIT_005930_20260806_090000"
	sig.Kind = contracts.SignalExitSell

	trade, err := exec.SubmitOrder(context.Background(), sig)
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if trade.Side != contracts.OrderSideSell {
		t.Fatalf("Side = %s, want SELL", trade.Side)
	}
	// Filled at 70000 against a 60000 avg price: a healthy realized gain.
	if !trade.RealizedPnL.IsPositive() {
		t.Errorf("RealizedPnL = %s, want a positive gain selling above avg price", trade.RealizedPnL.String())
	}
	if !trade.RealizedPnLPct.IsPositive() {
		t.Errorf("RealizedPnLPct = %s, want positive", trade.RealizedPnLPct.String())
	}
}

func TestExecutor_SubmitOrder_RejectsInvalidSignal(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	sig := validSignal()
	sig.Valid = false
	sig.RejectionReason = "stale data"

	if _, err := exec.SubmitOrder(context.Background(), sig); err == nil {
		t.Errorf("expected error submitting an invalid signal")
	}
}
