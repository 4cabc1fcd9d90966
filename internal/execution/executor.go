package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/minjunpark/kquant/internal/contracts"
	"github.com/minjunpark/kquant/pkg/logger"
)

// TradeStore is the durable half of the Order Executor's idempotency check:
// a signal already recorded under its SignalID must never be resubmitted.
type TradeStore interface {
	GetTrade(ctx context.Context, orderID string) (*contracts.Trade, error)
	SaveTrade(ctx context.Context, t *contracts.Trade) error
}

// StockLookup resolves a ticker's listing market, needed to pick the right
// fee schedule. Local to this package, mirroring the validator's own
// narrow StockLookup — no shared master-data interface exists yet.
type StockLookup interface {
	GetStock(ctx context.Context, ticker string) (*contracts.Stock, error)
}

// Executor turns a validated TradingSignal into a durable, filled Trade: it
// checks idempotency, walks the order through the lifecycle DAG, submits to
// the broker, prices the fill's fees, and applies it to the portfolio.
type Executor struct {
	broker    contracts.Broker
	trades    TradeStore
	stocks    StockLookup
	portfolio contracts.PortfolioStore
	log       *logger.Logger
}

// NewExecutor wires an Executor from its collaborators.
func NewExecutor(broker contracts.Broker, trades TradeStore, stocks StockLookup, portfolio contracts.PortfolioStore, log *logger.Logger) *Executor {
	return &Executor{broker: broker, trades: trades, stocks: stocks, portfolio: portfolio, log: log}
}

// SubmitOrder executes a validated signal exactly once. Resubmitting the
// same signal (same SignalID) returns the previously recorded Trade instead
// of placing a second order, so a crash-and-retry cannot double-fill.
func (e *Executor) SubmitOrder(ctx context.Context, sig contracts.TradingSignal) (*contracts.Trade, error) {
	if !sig.Valid {
		return nil, fmt.Errorf("executor: cannot submit an invalid signal %s: %s", sig.SignalID, sig.RejectionReason)
	}

	if existing, err := e.trades.GetTrade(ctx, sig.SignalID); err != nil {
		return nil, fmt.Errorf("executor: idempotency check: %w", err)
	} else if existing != nil {
		e.log.WithField("order_id", sig.SignalID).Info("order already submitted, returning recorded trade")
		return existing, nil
	}

	stock, err := e.stocks.GetStock(ctx, sig.Ticker)
	if err != nil {
		return nil, fmt.Errorf("executor: look up stock %s: %w", sig.Ticker, err)
	}

	side := contracts.OrderSideBuy
	if sig.Kind == contracts.SignalExitSell || sig.Kind == contracts.SignalEmergencyLiquidation {
		side = contracts.OrderSideSell
	}

	qty := sig.RecommendedShares
	if sig.SuggestedQuantity > 0 && sig.SuggestedQuantity < qty {
		qty = sig.SuggestedQuantity
	}

	requestedPrice := sig.LimitPrice
	if requestedPrice.IsZero() {
		requestedPrice = sig.CurrentPrice
	}

	trade := &contracts.Trade{
		OrderID:        sig.SignalID,
		User:           sig.User,
		Ticker:         sig.Ticker,
		Side:           side,
		OrderType:      sig.OrderType,
		RequestedQty:   qty,
		RequestedPrice: requestedPrice,
		Status:         contracts.StatusPending,
		Reason:         reasonSummary(sig.Reasons),
		Strategy:       string(sig.Kind),
		CreatedAt:      sig.GeneratedAt,
	}

	if err := e.advance(trade, contracts.StatusSubmitted); err != nil {
		return nil, err
	}
	if err := e.advance(trade, contracts.StatusAccepted); err != nil {
		return nil, err
	}

	if err := e.broker.SubmitOrder(ctx, trade); err != nil {
		_ = trade.Transition(contracts.StatusFailed)
		_ = e.trades.SaveTrade(ctx, trade)
		return trade, fmt.Errorf("executor: broker submit: %w", err)
	}

	costs := computeCosts(stock.Market, side, trade.ExecutedQty, trade.ExecutedPrice)
	trade.Commission = costs.Commission
	trade.Tax = costs.TransactionTax.Add(costs.Surtax)

	// Paper fills are always full and instant; PARTIALLY_FILLED remains a
	// reachable DAG state for a future venue that reports partial fills.
	if err := e.advance(trade, contracts.StatusFilled); err != nil {
		return nil, err
	}
	now := time.Now()
	trade.ExecutedAt = &now

	fillSide := contracts.SideBuy
	if side == contracts.OrderSideSell {
		fillSide = contracts.SideSell
		if prior, err := e.portfolio.GetPosition(ctx, trade.User, trade.Ticker); err == nil && prior != nil {
			trade.RealizedPnL = realizedPnL(trade.ExecutedPrice, prior.AvgPrice, trade.ExecutedQty, trade.Commission.Add(trade.Tax))
			basis := prior.AvgPrice.Mul(decimal.NewFromInt(trade.ExecutedQty))
			if basis.IsPositive() {
				trade.RealizedPnLPct = trade.RealizedPnL.Div(basis).Mul(decimal.NewFromInt(100))
			}
		}
	}
	if _, err := e.portfolio.ApplyFill(ctx, contracts.Fill{
		OrderID:  trade.OrderID,
		User:     trade.User,
		Ticker:   trade.Ticker,
		Side:     fillSide,
		Quantity: trade.ExecutedQty,
		Price:    trade.ExecutedPrice,
		Fees:     trade.Commission.Add(trade.Tax),
		FilledAt: now,
	}); err != nil {
		return nil, fmt.Errorf("executor: apply fill: %w", err)
	}

	if err := e.trades.SaveTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("executor: persist trade: %w", err)
	}

	e.log.WithFields(map[string]interface{}{
		"order_id": trade.OrderID,
		"ticker":   trade.Ticker,
		"side":     trade.Side,
		"qty":      trade.ExecutedQty,
		"price":    trade.ExecutedPrice.String(),
	}).Info("order filled")

	return trade, nil
}

func (e *Executor) advance(trade *contracts.Trade, to contracts.TradeStatus) error {
	if err := trade.Transition(to); err != nil {
		return fmt.Errorf("executor: %w", err)
	}
	return nil
}

// computeCosts dispatches to the buy-side or sell-side fee calculator.
func computeCosts(market contracts.Market, side contracts.OrderSide, qty int64, price decimal.Decimal) TransactionCosts {
	if side == contracts.OrderSideSell {
		return CalculateSellCosts(market, qty, price)
	}
	return CalculateBuyCosts(market, qty, price)
}

// realizedPnL computes the P&L a SELL fill banks against the position's
// prior average price: (fill_price - avg_price) * fill_qty - fees. Mirrors
// the Portfolio Store's own realized-P&L update so a trade's recorded
// outcome always agrees with the position it closed against.
func realizedPnL(fillPrice, avgPrice decimal.Decimal, fillQty int64, fees decimal.Decimal) decimal.Decimal {
	return fillPrice.Sub(avgPrice).Mul(decimal.NewFromInt(fillQty)).Sub(fees)
}

func reasonSummary(reasons []string) string {
	if len(reasons) == 0 {
		return ""
	}
	return reasons[0]
}
