package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the persistent (user, ticker) holding: quantity, cost basis,
// and the stop/take/trailing parameters that gate its exit. Created on the
// first BUY; mutated on every fill and every monitor tick; archived (not
// deleted) on full exit so realized P&L is retained.
type Position struct {
	User   string
	Ticker string

	Quantity        int64
	AvgPrice        decimal.Decimal
	CurrentPrice    decimal.Decimal
	CurrentValue    decimal.Decimal
	InvestedAmount  decimal.Decimal
	RealizedPnL     decimal.Decimal
	UnrealizedPnL   decimal.Decimal
	UnrealizedPnLPct decimal.Decimal

	StopLossPrice   decimal.Decimal
	StopLossPct     decimal.Decimal
	TakeProfitPrice decimal.Decimal
	TakeProfitPct   decimal.Decimal

	// TakeProfitUseTechnical opts this position into the technical
	// exhaustion take-profit (RSI/MACD/Bollinger/SMA20 confluence).
	// Positions default to price-only take-profit.
	TakeProfitUseTechnical bool

	TrailingStopEnabled    bool
	TrailingStopDistancePct decimal.Decimal
	TrailingStopPrice      decimal.Decimal
	HighestPriceSincePurchase decimal.Decimal

	// CompositeAtEntry is the composite score recorded when the position was
	// opened, used by the fundamental-deterioration exit check.
	CompositeAtEntry float64

	FirstPurchaseAt   time.Time
	LastTransactionAt time.Time

	// Archived marks a position that has been fully exited (quantity
	// reached zero). Its realized-pnl is retained; a subsequent BUY opens a
	// fresh position with a new avg-price and trailing baseline.
	Archived bool
}

// IsOpen reports whether the position currently carries shares.
func (p Position) IsOpen() bool {
	return !p.Archived && p.Quantity > 0
}

// FillSide identifies which direction a fill moved a position.
type FillSide string

const (
	SideBuy  FillSide = "BUY"
	SideSell FillSide = "SELL"
)

// Fill is the input to Portfolio Store's ApplyFill: an executed trade
// against one (user, ticker) position, keyed by the originating order id
// for idempotent retry.
type Fill struct {
	OrderID   string
	User      string
	Ticker    string
	Side      FillSide
	Quantity  int64
	Price     decimal.Decimal
	Fees      decimal.Decimal
	FilledAt  time.Time
}
