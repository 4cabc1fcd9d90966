package contracts

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Broker is the narrow capability interface every execution venue (paper
// or live) satisfies. Slippage and commission are plug-in policies
// composed around it, not part of the interface itself.
type Broker interface {
	SubmitOrder(ctx context.Context, trade *Trade) error
	CancelOrder(ctx context.Context, orderID string) error
	QueryOrder(ctx context.Context, orderID string) (*Trade, error)
	GetPosition(ctx context.Context, user, ticker string) (*Position, error)
	GetPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
}

// PortfolioStore is the Portfolio Store's (C2) public contract.
type PortfolioStore interface {
	GetPosition(ctx context.Context, user, ticker string) (*Position, error)
	ListPositions(ctx context.Context, user string) ([]Position, error)
	ApplyFill(ctx context.Context, fill Fill) (*Position, error)
	InitializeLimits(ctx context.Context, user, ticker string, stopLossPct, takeProfitPct decimal.Decimal, trailingEnabled bool, trailingDistancePct decimal.Decimal, takeProfitUseTechnical bool) error
	UpdateTrailing(ctx context.Context, user, ticker string, lastPrice decimal.Decimal) error
	SetHalt(ctx context.Context, user, reason string) error
	ClearHalt(ctx context.Context, user string) error
	GetRiskMetrics(ctx context.Context, user string) (*RiskMetrics, error)
	SaveRiskMetrics(ctx context.Context, metrics RiskMetrics) error
}

// ScoreReader is the Score/Indicator Reader's (C3) public contract: a
// read-only lookup over precomputed composite scores and indicators.
type ScoreReader interface {
	LatestComposite(ctx context.Context, ticker string) (*CompositeScore, error)
	LatestTechnical(ctx context.Context, ticker string) (*TechnicalSnapshot, error)
	LatestFundamental(ctx context.Context, ticker string) (*FundamentalSnapshot, error)
}

// PriceProvider is the external collaborator supplying current market
// prices to the Position Monitor and paper-mode executor.
type PriceProvider interface {
	GetPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
	AvgDailyVolume(ctx context.Context, ticker string) (int64, error)
	AnnualizedVolatility(ctx context.Context, ticker string) (decimal.Decimal, error)
}

// EventPublisher is the narrow pub/sub capability the Position Monitor
// uses to announce exit triggers on the price alert channel. Satisfied
// directly by *redis.Client.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
}

// ReturnSeriesProvider supplies a ticker's trailing daily close-to-close
// returns, feeding the Risk Engine's portfolio VaR/CVaR rollup.
type ReturnSeriesProvider interface {
	DailyReturns(ctx context.Context, ticker string) ([]float64, error)
}

// MarketCalendar is C1's public contract, consumed by C9 and C11.
type MarketCalendar interface {
	IsOpen(t time.Time) bool
	NextOpen(t time.Time) time.Time
	NextClose(t time.Time) time.Time
	RegisterClosure(day time.Time)
}
