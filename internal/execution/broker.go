package execution

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/minjunpark/kquant/internal/contracts"
	"github.com/minjunpark/kquant/pkg/config"
)

// PaperBroker fills orders instantly against a reference price feed,
// perturbed by a slippage model. It never touches a real exchange and
// implements contracts.Broker directly.
type PaperBroker struct {
	prices contracts.PriceProvider
	cfg    config.PaperConfig

	mu     sync.Mutex
	rng    *rand.Rand
	trades map[string]*contracts.Trade
}

// NewPaperBroker creates a PaperBroker with a seeded RNG so fills are
// reproducible across test runs.
func NewPaperBroker(prices contracts.PriceProvider, cfg config.PaperConfig) *PaperBroker {
	return &PaperBroker{
		prices: prices,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		trades: make(map[string]*contracts.Trade),
	}
}

// SubmitOrder fills the trade immediately at a slippage-adjusted price.
func (b *PaperBroker) SubmitOrder(ctx context.Context, trade *contracts.Trade) error {
	refPrice, err := b.prices.GetPrice(ctx, trade.Ticker)
	if err != nil {
		return fmt.Errorf("paper broker: get price: %w", err)
	}

	avgVolume, err := b.prices.AvgDailyVolume(ctx, trade.Ticker)
	if err != nil {
		avgVolume = 0
	}
	vol, err := b.prices.AnnualizedVolatility(ctx, trade.Ticker)
	if err != nil {
		vol = decimal.Zero
	}

	fillPrice := b.applySlippage(refPrice, trade.RequestedQty, avgVolume, vol, trade.Side)

	trade.ExecutedQty = trade.RequestedQty
	trade.ExecutedPrice = fillPrice
	trade.TotalAmount = fillPrice.Mul(decimal.NewFromInt(trade.ExecutedQty))

	b.mu.Lock()
	b.trades[trade.OrderID] = trade
	b.mu.Unlock()
	return nil
}

// CancelOrder is a no-op: paper fills happen synchronously inside
// SubmitOrder, so there is never an open order to cancel.
func (b *PaperBroker) CancelOrder(ctx context.Context, orderID string) error {
	return nil
}

// QueryOrder returns the last known state of a submitted trade.
func (b *PaperBroker) QueryOrder(ctx context.Context, orderID string) (*contracts.Trade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.trades[orderID]
	if !ok {
		return nil, fmt.Errorf("paper broker: order not found: %s", orderID)
	}
	return t, nil
}

// GetPosition is unsupported: the Portfolio Store (C2) is the position
// ledger, not the broker.
func (b *PaperBroker) GetPosition(ctx context.Context, user, ticker string) (*contracts.Position, error) {
	return nil, fmt.Errorf("paper broker: GetPosition not supported, use the portfolio store")
}

// GetPrice passes through to the underlying price feed.
func (b *PaperBroker) GetPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	return b.prices.GetPrice(ctx, ticker)
}

// applySlippage computes slippage_bps = base + (qty/avg_volume)*100*volume_factor
// + annualised_volatility*volatility_factor, perturbed by a bounded
// uniform ±jitter_pct, then moves price against the order's side.
func (b *PaperBroker) applySlippage(refPrice decimal.Decimal, qty, avgVolume int64, annualizedVolPct decimal.Decimal, side contracts.OrderSide) decimal.Decimal {
	slippageBps := b.cfg.BaseSlippageBps
	if avgVolume > 0 {
		slippageBps += (float64(qty) / float64(avgVolume)) * 100 * b.cfg.VolumeFactor
	}
	volPct, _ := annualizedVolPct.Float64()
	slippageBps += volPct * b.cfg.VolatilityFactor

	b.mu.Lock()
	jitter := 1 + (b.rng.Float64()*2-1)*(b.cfg.JitterPct/100)
	b.mu.Unlock()
	slippageBps *= jitter

	sign := decimal.NewFromInt(1)
	if side == contracts.OrderSideSell {
		sign = decimal.NewFromInt(-1)
	}

	adjustment := refPrice.Mul(decimal.NewFromFloat(slippageBps)).Div(decimal.NewFromInt(10000)).Mul(sign)
	return refPrice.Add(adjustment)
}
