// Package validate implements the Signal Validator (C7): the gatekeeper
// that decides whether a TradingSignal is allowed to reach the Order
// Executor, in the exact check order the trading engine expects.
package validate

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/minjunpark/kquant/internal/contracts"
	"github.com/minjunpark/kquant/internal/scores"
)

// StockLookup resolves sector membership for concentration checks. A
// narrow, locally-defined interface so the validator does not need the
// whole universe repository.
type StockLookup interface {
	GetStock(ctx context.Context, ticker string) (*contracts.Stock, error)
}

// Config holds the gate thresholds, all with spec-mandated defaults.
type Config struct {
	RequireRecentDataHours    float64
	MinDataQualityScore       float64
	MaxPositions              int
	MaxConcentrationPct       float64
	MaxSectorConcentrationPct float64
	MaxTotalLossPct           float64
	EstimatedFeeRate          float64 // fraction of position value, default 0.00015 (KOSPI buy-side commission)
}

// DefaultConfig returns the default validation thresholds.
func DefaultConfig() Config {
	return Config{
		RequireRecentDataHours:    48,
		MinDataQualityScore:       75,
		MaxPositions:              20,
		MaxConcentrationPct:       30,
		MaxSectorConcentrationPct: 40,
		MaxTotalLossPct:           28,
		EstimatedFeeRate:          0.00015,
	}
}

// Validator gates TradingSignals before they reach the Order Executor.
type Validator struct {
	scores    contracts.ScoreReader
	portfolio contracts.PortfolioStore
	stocks    StockLookup
	cfg       Config
}

// New creates a Validator, filling zero-valued Config fields with
// DefaultConfig's values.
func New(scoreReader contracts.ScoreReader, portfolio contracts.PortfolioStore, stocks StockLookup, cfg Config) *Validator {
	def := DefaultConfig()
	if cfg.RequireRecentDataHours == 0 {
		cfg.RequireRecentDataHours = def.RequireRecentDataHours
	}
	if cfg.MinDataQualityScore == 0 {
		cfg.MinDataQualityScore = def.MinDataQualityScore
	}
	if cfg.MaxPositions == 0 {
		cfg.MaxPositions = def.MaxPositions
	}
	if cfg.MaxConcentrationPct == 0 {
		cfg.MaxConcentrationPct = def.MaxConcentrationPct
	}
	if cfg.MaxSectorConcentrationPct == 0 {
		cfg.MaxSectorConcentrationPct = def.MaxSectorConcentrationPct
	}
	if cfg.MaxTotalLossPct == 0 {
		cfg.MaxTotalLossPct = def.MaxTotalLossPct
	}
	if cfg.EstimatedFeeRate == 0 {
		cfg.EstimatedFeeRate = def.EstimatedFeeRate
	}
	return &Validator{scores: scoreReader, portfolio: portfolio, stocks: stocks, cfg: cfg}
}

// Validate runs every gate in spec order and returns sig annotated with
// Valid/RejectionReason/SuggestedQuantity. It does not mutate the input.
func (v *Validator) Validate(ctx context.Context, sig contracts.TradingSignal) (contracts.TradingSignal, error) {
	out := sig
	isBuy := sig.Kind == contracts.SignalEntryBuy
	isEmergency := sig.Kind == contracts.SignalEmergencyLiquidation

	metrics, err := v.portfolio.GetRiskMetrics(ctx, sig.User)
	if err != nil {
		return out, fmt.Errorf("validate: get risk metrics: %w", err)
	}
	if metrics == nil {
		metrics = &contracts.RiskMetrics{}
	}

	if reason, ok := v.checkDataRecency(ctx, sig.Ticker); !ok {
		return reject(out, reason)
	}
	if reason, ok := v.checkDataQuality(ctx, sig.Ticker); !ok {
		return reject(out, reason)
	}

	positions, err := v.portfolio.ListPositions(ctx, sig.User)
	if err != nil {
		return out, fmt.Errorf("validate: list positions: %w", err)
	}

	if isBuy {
		if reason, ok := v.checkPositionLimit(positions, sig.Ticker); !ok {
			return reject(out, reason)
		}
		if reason, suggested, ok := v.checkConcentration(ctx, positions, sig, metrics); !ok {
			out.SuggestedQuantity = suggested
			return reject(out, reason)
		}
		if reason, suggested, ok := v.checkCash(sig, metrics); !ok {
			out.SuggestedQuantity = suggested
			return reject(out, reason)
		}
	}

	if metrics.TradingHalted && !isEmergency && isBuy {
		return reject(out, fmt.Sprintf("trading halted: %s", metrics.HaltReason))
	}

	if isBuy {
		if metrics.TotalLossFromInitialPct.GreaterThanOrEqual(decimal.NewFromFloat(v.cfg.MaxTotalLossPct)) {
			return reject(out, fmt.Sprintf("total loss %.1f%% at or above ceiling %.1f%%", mustFloat(metrics.TotalLossFromInitialPct), v.cfg.MaxTotalLossPct))
		}
	}

	out.Valid = true
	out.RejectionReason = ""
	return out, nil
}

func reject(sig contracts.TradingSignal, reason string) (contracts.TradingSignal, error) {
	sig.Valid = false
	sig.RejectionReason = reason
	return sig, nil
}

func (v *Validator) checkDataRecency(ctx context.Context, ticker string) (string, bool) {
	_, err := v.scores.LatestComposite(ctx, ticker)
	if err != nil {
		if errors.Is(err, scores.ErrStale) {
			return "composite score data is stale", false
		}
		return "composite score unavailable", false
	}
	return "", true
}

func (v *Validator) checkDataQuality(ctx context.Context, ticker string) (string, bool) {
	tech, _ := v.scores.LatestTechnical(ctx, ticker)
	fund, _ := v.scores.LatestFundamental(ctx, ticker)
	quality := scores.DataQuality(tech, fund)
	if quality < v.cfg.MinDataQualityScore {
		return fmt.Sprintf("data quality %.1f below minimum %.1f", quality, v.cfg.MinDataQualityScore), false
	}
	return "", true
}

func (v *Validator) checkPositionLimit(positions []contracts.Position, ticker string) (string, bool) {
	count := 0
	alreadyHeld := false
	for _, p := range positions {
		if !p.IsOpen() {
			continue
		}
		count++
		if p.Ticker == ticker {
			alreadyHeld = true
		}
	}
	if !alreadyHeld {
		count++
	}
	if count > v.cfg.MaxPositions {
		return fmt.Sprintf("position count %d would exceed maximum %d", count, v.cfg.MaxPositions), false
	}
	return "", true
}

func (v *Validator) checkConcentration(ctx context.Context, positions []contracts.Position, sig contracts.TradingSignal, metrics *contracts.RiskMetrics) (string, int64, bool) {
	positionValue := sig.CurrentPrice.Mul(decimal.NewFromInt(sig.RecommendedShares))
	totalValue := metrics.TotalValue
	if totalValue.IsZero() {
		totalValue = metrics.CashBalance.Add(metrics.InvestedAmount)
	}
	newTotalValue := totalValue.Add(positionValue)
	if newTotalValue.IsZero() {
		return "", 0, true
	}

	positionPct := positionValue.Div(newTotalValue).Mul(decimal.NewFromInt(100))
	if positionPct.GreaterThan(decimal.NewFromFloat(v.cfg.MaxConcentrationPct)) {
		maxValue := newTotalValue.Mul(decimal.NewFromFloat(v.cfg.MaxConcentrationPct / 100))
		suggested := truncateShares(maxValue, sig.CurrentPrice)
		return fmt.Sprintf("position weight %.1f%% would exceed maximum %.1f%%", mustFloat(positionPct), v.cfg.MaxConcentrationPct), suggested, false
	}

	sector, sectorValue := v.sectorExposure(ctx, positions, sig.Ticker)
	if sector != "" {
		newSectorValue := sectorValue.Add(positionValue)
		sectorPct := newSectorValue.Div(newTotalValue).Mul(decimal.NewFromInt(100))
		if sectorPct.GreaterThan(decimal.NewFromFloat(v.cfg.MaxSectorConcentrationPct)) {
			maxSectorAdd := newTotalValue.Mul(decimal.NewFromFloat(v.cfg.MaxSectorConcentrationPct/100)).Sub(sectorValue)
			suggested := truncateShares(maxSectorAdd, sig.CurrentPrice)
			return fmt.Sprintf("sector weight %.1f%% would exceed maximum %.1f%%", mustFloat(sectorPct), v.cfg.MaxSectorConcentrationPct), suggested, false
		}
	}

	return "", 0, true
}

func (v *Validator) sectorExposure(ctx context.Context, positions []contracts.Position, ticker string) (string, decimal.Decimal) {
	if v.stocks == nil {
		return "", decimal.Zero
	}
	stock, err := v.stocks.GetStock(ctx, ticker)
	if err != nil || stock == nil || stock.Sector == "" {
		return "", decimal.Zero
	}
	sectorValue := decimal.Zero
	for _, p := range positions {
		if !p.IsOpen() {
			continue
		}
		other, err := v.stocks.GetStock(ctx, p.Ticker)
		if err != nil || other == nil || other.Sector != stock.Sector {
			continue
		}
		sectorValue = sectorValue.Add(p.CurrentValue)
	}
	return stock.Sector, sectorValue
}

func (v *Validator) checkCash(sig contracts.TradingSignal, metrics *contracts.RiskMetrics) (string, int64, bool) {
	positionValue := sig.CurrentPrice.Mul(decimal.NewFromInt(sig.RecommendedShares))
	fees := positionValue.Mul(decimal.NewFromFloat(v.cfg.EstimatedFeeRate))
	required := positionValue.Add(fees)
	if metrics.CashBalance.GreaterThanOrEqual(required) {
		return "", 0, true
	}
	affordablePrice := sig.CurrentPrice.Mul(decimal.NewFromFloat(1 + v.cfg.EstimatedFeeRate))
	suggested := truncateShares(metrics.CashBalance, affordablePrice)
	return fmt.Sprintf("insufficient cash: need %s, have %s", required.StringFixed(0), metrics.CashBalance.StringFixed(0)), suggested, false
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
