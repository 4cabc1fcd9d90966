package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalKind identifies why a TradingSignal was generated.
type SignalKind string

const (
	SignalEntryBuy             SignalKind = "entry_buy"
	SignalExitSell             SignalKind = "exit_sell"
	SignalEmergencyLiquidation SignalKind = "emergency_liquidation"
)

// Urgency tags how quickly a signal should be acted on.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// SignalStrength buckets conviction into quartile labels for display.
type SignalStrength string

const (
	StrengthWeak     SignalStrength = "weak"
	StrengthModerate SignalStrength = "moderate"
	StrengthStrong   SignalStrength = "strong"
)

// TradingSignal is an ephemeral, in-memory instruction to enter or exit a
// position. It is never persisted before validation; only a Trade the
// signal is converted into (by the Order Executor) is durable.
type TradingSignal struct {
	SignalID    string
	Kind        SignalKind
	User        string
	Ticker      string
	GeneratedAt time.Time

	CurrentPrice    decimal.Decimal
	TargetPrice     decimal.Decimal
	StopLossPrice   decimal.Decimal
	TakeProfitPrice decimal.Decimal

	RecommendedShares int64
	PositionPct       decimal.Decimal

	OrderType  OrderType
	LimitPrice decimal.Decimal

	ConvictionScore float64
	Urgency         Urgency
	Strength        SignalStrength
	Reasons         []string

	ExpectedReturnPct decimal.Decimal
	RiskRewardRatio   decimal.Decimal

	Valid              bool
	RejectionReason    string
	SuggestedQuantity  int64
}

// StrengthForConviction buckets a conviction score into a signal strength
// label by quartile: [0,50)=weak, [50,80)=moderate, [80,100]=strong.
func StrengthForConviction(conviction float64) SignalStrength {
	switch {
	case conviction >= 80:
		return StrengthStrong
	case conviction >= 50:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}
