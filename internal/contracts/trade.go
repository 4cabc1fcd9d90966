package contracts

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TradeStatus is a node in the order lifecycle DAG.
type TradeStatus string

const (
	StatusPending         TradeStatus = "PENDING"
	StatusSubmitted       TradeStatus = "SUBMITTED"
	StatusAccepted        TradeStatus = "ACCEPTED"
	StatusPartiallyFilled TradeStatus = "PARTIALLY_FILLED"
	StatusFilled          TradeStatus = "FILLED"
	StatusCancelled       TradeStatus = "CANCELLED"
	StatusRejected        TradeStatus = "REJECTED"
	StatusExpired         TradeStatus = "EXPIRED"
	StatusFailed          TradeStatus = "FAILED"
)

// TerminalStatuses are the statuses from which no further transition is
// permitted.
var TerminalStatuses = map[TradeStatus]bool{
	StatusFilled:    true,
	StatusCancelled: true,
	StatusRejected:  true,
	StatusExpired:   true,
	StatusFailed:    true,
}

// allowedTransitions encodes the order lifecycle DAG. A transition not
// present here is invalid and must be rejected loudly.
var allowedTransitions = map[TradeStatus]map[TradeStatus]bool{
	StatusPending:   {StatusSubmitted: true},
	StatusSubmitted: {StatusAccepted: true, StatusRejected: true, StatusFailed: true},
	StatusAccepted: {
		StatusFilled:          true,
		StatusPartiallyFilled: true,
		StatusCancelled:       true,
		StatusRejected:        true,
		StatusExpired:         true,
		StatusFailed:          true,
	},
	StatusPartiallyFilled: {
		StatusFilled:    true,
		StatusCancelled: true,
		StatusExpired:   true,
		StatusFailed:    true,
	},
}

// ErrInvalidTransition is returned when a caller attempts a transition not
// present in the lifecycle DAG, or attempts to leave a terminal state.
type ErrInvalidTransition struct {
	From, To TradeStatus
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid trade status transition %s -> %s", e.From, e.To)
}

// CanTransition reports whether from -> to is a legal step of the DAG.
func CanTransition(from, to TradeStatus) bool {
	if TerminalStatuses[from] {
		return false
	}
	return allowedTransitions[from][to]
}

// OrderSide is the trading direction of a Trade.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType is the pricing instruction attached to a Trade.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStopLoss  OrderType = "STOP_LOSS"
)

// Trade is the persisted order record, unique on OrderID, moving through
// the state machine in TradeStatus.
type Trade struct {
	OrderID string
	User    string

	Ticker           string
	Side             OrderSide
	OrderType        OrderType
	RequestedQty     int64
	RequestedPrice   decimal.Decimal
	ExecutedQty      int64
	ExecutedPrice    decimal.Decimal
	TotalAmount      decimal.Decimal
	Commission       decimal.Decimal
	Tax              decimal.Decimal
	Status           TradeStatus
	Reason           string
	Strategy         string

	// RealizedPnL and RealizedPnLPct are populated only on a SELL fill: the
	// P&L this trade banked against the position's prior average price, and
	// that P&L as a percentage of the cost basis it closed out. Both stay
	// zero for BUY trades and for a SELL that opened rather than reduced a
	// position (which cannot happen; a SELL always requires an existing
	// position).
	RealizedPnL    decimal.Decimal
	RealizedPnLPct decimal.Decimal

	CreatedAt   time.Time
	ExecutedAt  *time.Time
	CancelledAt *time.Time
}

// Transition moves the trade to `to`, validating against the DAG and the
// monotonic executed-quantity invariant (Σ executed_quantity <= requested).
func (t *Trade) Transition(to TradeStatus) error {
	if !CanTransition(t.Status, to) {
		return ErrInvalidTransition{From: t.Status, To: to}
	}
	if t.ExecutedQty > t.RequestedQty {
		return fmt.Errorf("trade %s: executed quantity %d exceeds requested %d", t.OrderID, t.ExecutedQty, t.RequestedQty)
	}
	t.Status = to
	return nil
}

// EntryOrderID formats the deterministic idempotency key for an entry
// order: ENTRY_{ticker}_{yyyyMMdd}_{HHmmss}.
func EntryOrderID(ticker string, at time.Time) string {
	return fmt.Sprintf("ENTRY_%s_%s", ticker, at.Format("20060102_150405"))
}

// ExitOrderID formats the deterministic idempotency key for an exit order:
// EXIT_{reason}_{ticker}_{yyyyMMdd}_{HHmmss}.
func ExitOrderID(reason, ticker string, at time.Time) string {
	return fmt.Sprintf("EXIT_%s_%s_%s", reason, ticker, at.Format("20060102_150405"))
}
