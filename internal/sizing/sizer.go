// Package sizing implements the Position Sizer (C5): five position-sizing
// methods, each capped by a maximum position size and by available cash,
// then scaled down by conviction.
package sizing

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// Method identifies one of the five sizing policies.
type Method string

const (
	MethodFixedPercent       Method = "fixed_percent"
	MethodFixedRisk          Method = "fixed_risk"
	MethodVolatilityAdjusted Method = "volatility_adjusted"
	MethodKellyFull          Method = "kelly_full"
	MethodKellyHalf          Method = "kelly_half"
	MethodKellyQuarter       Method = "kelly_quarter"
)

// HistoricalStats feeds the Kelly methods: win rate and average
// win/loss expressed as percentages of the entry price.
type HistoricalStats struct {
	WinRate    float64
	AvgWinPct  float64
	AvgLossPct float64
}

// Params is the full input to Calculate.
type Params struct {
	PortfolioValue     decimal.Decimal
	EntryPrice         decimal.Decimal
	StopLossPrice      decimal.Decimal
	Method             Method
	MaxPositionSizePct float64 // default 10
	RiskTolerancePct   float64 // for fixed_risk, default 2
	FixedPct           float64 // for fixed_percent, default 5
	AnnualizedVolPct   float64 // for volatility_adjusted; the ticker's own vol
	MedianVolPct       float64 // for volatility_adjusted; cross-sectional median vol
	Stats              HistoricalStats
	AvailableCash      decimal.Decimal
	ConvictionScore    float64
}

// Result is the sizing outcome.
type Result struct {
	RecommendedShares int64
	PositionValue     decimal.Decimal
	PositionPct       float64
	Notes             []string
}

// Calculate dispatches to the method-specific fraction calculator, then
// applies the shared caps: max position size, available cash, integer
// share truncation, and conviction scaling.
func Calculate(p Params) (Result, error) {
	if p.EntryPrice.LessThanOrEqual(decimal.Zero) {
		return Result{}, fmt.Errorf("sizing: entry price must be positive")
	}
	if p.PortfolioValue.LessThanOrEqual(decimal.Zero) {
		return Result{}, fmt.Errorf("sizing: portfolio value must be positive")
	}

	maxPct := p.MaxPositionSizePct
	if maxPct == 0 {
		maxPct = 10.0
	}

	var fraction float64
	var notes []string
	switch p.Method {
	case MethodFixedPercent:
		fp := p.FixedPct
		if fp == 0 {
			fp = 5.0
		}
		fraction = fp / 100
	case MethodFixedRisk:
		perShareRisk := p.EntryPrice.Sub(p.StopLossPrice).Abs()
		if perShareRisk.IsZero() {
			return Result{}, fmt.Errorf("sizing: stop-loss price must differ from entry price")
		}
		riskPct := p.RiskTolerancePct
		if riskPct == 0 {
			riskPct = 2.0
		}
		riskAmount := p.PortfolioValue.Mul(decimal.NewFromFloat(riskPct / 100))
		positionValue := riskAmount.Div(perShareRisk).Mul(p.EntryPrice)
		fraction, _ = positionValue.Div(p.PortfolioValue).Float64()
		notes = append(notes, fmt.Sprintf("risk %.0f KRW (%.1f%% of portfolio)", mustFloat(riskAmount), riskPct))
	case MethodVolatilityAdjusted:
		fraction = volatilityAdjustedFraction(p.AnnualizedVolPct, p.MedianVolPct, maxPct)
	case MethodKellyFull:
		fraction = clamp(kellyFraction(p.Stats), 0, maxPct/100)
	case MethodKellyHalf:
		fraction = clamp(0.5*kellyFraction(p.Stats), 0, maxPct/100)
	case MethodKellyQuarter:
		fraction = clamp(0.25*kellyFraction(p.Stats), 0, maxPct/100)
	default:
		return Result{}, fmt.Errorf("sizing: unknown method %q", p.Method)
	}

	// Conviction scaling: final_f <- f * clamp((conviction-60)/40, 0, 1).
	convictionScale := clamp((p.ConvictionScore-60)/40, 0, 1)
	fraction *= convictionScale
	if convictionScale == 0 {
		notes = append(notes, "conviction below 60: sized to zero")
	}

	positionValue := p.PortfolioValue.Mul(decimal.NewFromFloat(fraction))
	shares := truncateShares(positionValue, p.EntryPrice)

	// Cap by max position size.
	maxPositionValue := p.PortfolioValue.Mul(decimal.NewFromFloat(maxPct / 100))
	maxShares := truncateShares(maxPositionValue, p.EntryPrice)
	if shares > maxShares {
		shares = maxShares
		notes = append(notes, fmt.Sprintf("capped at %.0f%% max position size", maxPct))
	}

	// Cap by available cash.
	if !p.AvailableCash.IsZero() {
		cashShares := truncateShares(p.AvailableCash, p.EntryPrice)
		if shares > cashShares {
			shares = cashShares
			notes = append(notes, "capped by available cash")
		}
	}

	if shares < 0 {
		shares = 0
	}

	finalValue := p.EntryPrice.Mul(decimal.NewFromInt(shares))
	pct, _ := finalValue.Div(p.PortfolioValue).Mul(decimal.NewFromInt(100)).Float64()

	return Result{
		RecommendedShares: shares,
		PositionValue:     finalValue,
		PositionPct:       pct,
		Notes:             notes,
	}, nil
}

func truncateShares(value, price decimal.Decimal) int64 {
	if price.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	return value.Div(price).IntPart()
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// kellyFraction implements f* = p - (1-p)/b, b = avg_win/avg_loss.
func kellyFraction(s HistoricalStats) float64 {
	if s.WinRate <= 0 || s.WinRate >= 1 || s.AvgLossPct <= 0 || s.AvgWinPct <= 0 {
		return 0
	}
	b := s.AvgWinPct / s.AvgLossPct
	p := s.WinRate
	q := 1 - p
	kelly := p - q/b
	if kelly < 0 {
		return 0
	}
	return math.Min(kelly, 1.0)
}

// CrossSectionalMedianVol computes the median of a set of annualized
// volatility percentages, feeding volatility_adjusted's normalisation
// reference. gonum.stat.Quantile requires sorted input.
func CrossSectionalMedianVol(volsPct []float64) float64 {
	if len(volsPct) == 0 {
		return 0
	}
	sorted := append([]float64(nil), volsPct...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// volatilityAdjustedFraction sizes inversely to a ticker's volatility
// relative to the cross-sectional median, normalised so the median-vol
// stock gets exactly maxPct.
func volatilityAdjustedFraction(tickerVolPct, medianVolPct, maxPct float64) float64 {
	if tickerVolPct <= 0 || medianVolPct <= 0 {
		return 0.05 // fall back to a fixed 5% when volatility is unavailable
	}
	adjusted := maxPct * (medianVolPct / tickerVolPct)
	return clamp(adjusted/100, 0.01, maxPct/100)
}
