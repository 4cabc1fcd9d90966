package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskMetrics is the per-user portfolio rollup maintained by the Risk
// Engine (C10) and read by the Signal Validator (C7).
type RiskMetrics struct {
	User string

	TotalValue     decimal.Decimal
	CashBalance    decimal.Decimal
	InvestedAmount decimal.Decimal
	PeakValue      decimal.Decimal
	InitialCapital decimal.Decimal

	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	DailyPnL      decimal.Decimal

	CurrentDrawdown     decimal.Decimal
	MaxDrawdown         decimal.Decimal
	DrawdownDurationDays int

	PositionCount           int
	LargestPositionPct      decimal.Decimal
	TotalLossFromInitialPct decimal.Decimal

	TradingHalted bool
	HaltReason    string
	HaltStartedAt *time.Time
}
