package contracts

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceBar is one day's OHLCV record for a ticker. Append-only per day.
type PriceBar struct {
	Ticker        string
	TradingDay    time.Time
	Open          decimal.Decimal
	High          decimal.Decimal
	Low           decimal.Decimal
	Close         decimal.Decimal
	Volume        int64
	TradingValue  decimal.Decimal
	AdjustedClose decimal.Decimal
	ChangePct     decimal.Decimal
}

// Validate checks the low <= open,close <= high and volume >= 0 invariants.
func (b PriceBar) Validate() error {
	if b.Volume < 0 {
		return fmt.Errorf("price bar %s/%s: negative volume %d", b.Ticker, b.TradingDay.Format("2006-01-02"), b.Volume)
	}
	if b.Low.GreaterThan(b.Open) || b.Open.GreaterThan(b.High) {
		return fmt.Errorf("price bar %s/%s: open %s not within [low %s, high %s]", b.Ticker, b.TradingDay.Format("2006-01-02"), b.Open, b.Low, b.High)
	}
	if b.Low.GreaterThan(b.Close) || b.Close.GreaterThan(b.High) {
		return fmt.Errorf("price bar %s/%s: close %s not within [low %s, high %s]", b.Ticker, b.TradingDay.Format("2006-01-02"), b.Close, b.Low, b.High)
	}
	return nil
}

// TechnicalSnapshot holds derived technical-indicator values for one (ticker, date).
// Out of scope except as a read-only input; RSI/MACD/BB/ATR formulae are an
// external collaborator's concern.
type TechnicalSnapshot struct {
	Ticker       string
	Date         time.Time
	RSI14        decimal.Decimal
	MACD         decimal.Decimal
	MACDSignal   decimal.Decimal
	BollingerUp  decimal.Decimal
	BollingerLow decimal.Decimal
	SMA20        decimal.Decimal
	VolumeMA20   int64
	Volume       int64
}

// FundamentalSnapshot holds derived fundamental values for one (ticker, date).
type FundamentalSnapshot struct {
	Ticker    string
	Date      time.Time
	PER       decimal.Decimal
	PBR       decimal.Decimal
	ROE       decimal.Decimal
	DebtRatio decimal.Decimal
}
