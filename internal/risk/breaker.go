package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/minjunpark/kquant/internal/contracts"
	"github.com/minjunpark/kquant/pkg/logger"
)

// Breaker is the circuit breaker half of the Risk Engine: the single
// writer of a user's trading-halt flag. Everything else (Validator,
// Orchestrator) only reads what it writes through PortfolioStore. When
// wired with a ReturnSeriesProvider it also rolls up a portfolio-weighted
// VaR/CVaR estimate on every check, via the pure-math Engine.
type Breaker struct {
	portfolio contracts.PortfolioStore
	returns   contracts.ReturnSeriesProvider
	engine    *Engine
	cfg       BreakerConfig
	limits    RiskLimits
	log       *logger.Logger
}

// NewBreaker wires a Breaker against its collaborators. A zero cfg is
// replaced with DefaultBreakerConfig, and a zero limits with
// DefaultRiskLimits. returns may be nil, in which case Check skips the
// VaR/CVaR rollup entirely (BreakerResult.RiskChecked stays false).
func NewBreaker(portfolio contracts.PortfolioStore, cfg BreakerConfig, returns contracts.ReturnSeriesProvider, limits RiskLimits, log *logger.Logger) *Breaker {
	if cfg == (BreakerConfig{}) {
		cfg = DefaultBreakerConfig()
	}
	if limits == (RiskLimits{}) {
		limits = DefaultRiskLimits()
	}
	return &Breaker{portfolio: portfolio, returns: returns, engine: NewEngine(), cfg: cfg, limits: limits, log: log}
}

// Check recomputes a user's portfolio-wide loss metrics. It runs from
// RiskCheckJob's interval and from `kquant risk check`; a fill does not
// trigger it. It returns
// the recompute result and, only when the loss ceiling is breached, one
// emergency_liquidation TradingSignal per open position.
func (b *Breaker) Check(ctx context.Context, user string) (*BreakerResult, []contracts.TradingSignal, error) {
	metrics, err := b.portfolio.GetRiskMetrics(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("breaker: get risk metrics: %w", err)
	}

	positions, err := b.portfolio.ListPositions(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("breaker: list positions: %w", err)
	}

	invested := decimal.Zero
	openPositions := make([]contracts.Position, 0, len(positions))
	for _, p := range positions {
		if !p.IsOpen() {
			continue
		}
		invested = invested.Add(p.CurrentValue)
		openPositions = append(openPositions, p)
	}
	portfolioValue := invested.Add(metrics.CashBalance)

	peak := metrics.PeakValue
	if portfolioValue.GreaterThan(peak) {
		peak = portfolioValue
	}

	drawdown := decimal.Zero
	if peak.IsPositive() {
		drawdown = peak.Sub(portfolioValue).Div(peak)
	}

	totalLossPct := decimal.Zero
	if metrics.InitialCapital.IsPositive() {
		totalLossPct = metrics.InitialCapital.Sub(portfolioValue).
			Div(metrics.InitialCapital).Mul(decimal.NewFromInt(100))
		if totalLossPct.IsNegative() {
			totalLossPct = decimal.Zero
		}
	}

	now := time.Now()
	result := &BreakerResult{
		PortfolioValue:          mustFloat(portfolioValue),
		PeakValue:               mustFloat(peak),
		CurrentDrawdown:         mustFloat(drawdown),
		TotalLossFromInitialPct: mustFloat(totalLossPct),
		CheckedAt:               now,
	}

	if b.returns != nil && portfolioValue.IsPositive() && len(openPositions) > 0 {
		if checkResult, err := b.varRollup(ctx, openPositions, portfolioValue); err != nil {
			b.log.WithError(err).WithField("user", user).Warn("risk engine: portfolio VaR/CVaR rollup skipped")
		} else if checkResult != nil {
			result.RiskChecked = true
			result.VaR95 = checkResult.VaR95
			result.CVaR95 = checkResult.CVaR95
			result.RiskViolations = checkResult.Violations
			if !checkResult.Passed {
				b.log.WithFields(map[string]interface{}{
					"user":       user,
					"var_95":     checkResult.VaR95,
					"cvar_95":    checkResult.CVaR95,
					"violations": checkResult.Violations,
				}).Warn("risk engine: portfolio VaR/CVaR limit breached")
			}
		}
	}

	metrics.TotalValue = portfolioValue
	metrics.InvestedAmount = invested
	metrics.PeakValue = peak
	metrics.CurrentDrawdown = drawdown
	if drawdown.GreaterThan(metrics.MaxDrawdown) {
		metrics.MaxDrawdown = drawdown
	}
	metrics.PositionCount = len(openPositions)
	metrics.TotalLossFromInitialPct = totalLossPct
	metrics.LargestPositionPct = largestPositionPct(openPositions, portfolioValue)

	warningThreshold := decimal.NewFromFloat(b.cfg.WarningLossPct)
	haltThreshold := decimal.NewFromFloat(b.cfg.MaxTotalLossPct)

	var signals []contracts.TradingSignal
	switch {
	case totalLossPct.GreaterThanOrEqual(haltThreshold) && !metrics.TradingHalted:
		metrics.TradingHalted = true
		metrics.HaltReason = fmt.Sprintf("total loss %.2f%% >= ceiling %.2f%%", mustFloat(totalLossPct), b.cfg.MaxTotalLossPct)
		metrics.HaltStartedAt = &now
		result.Halted = true

		if err := b.portfolio.SetHalt(ctx, user, metrics.HaltReason); err != nil {
			return nil, nil, fmt.Errorf("breaker: set halt: %w", err)
		}
		signals = liquidationSignals(user, openPositions, now)
		b.log.WithFields(map[string]interface{}{
			"user":       user,
			"loss_pct":   mustFloat(totalLossPct),
			"open_count": len(openPositions),
		}).Error("circuit breaker tripped: trading halted, liquidating all open positions")

	case totalLossPct.GreaterThanOrEqual(warningThreshold):
		result.Warning = true
		b.log.WithFields(map[string]interface{}{
			"user":     user,
			"loss_pct": mustFloat(totalLossPct),
		}).Warn("portfolio loss approaching circuit breaker ceiling")
	}

	if err := b.portfolio.SaveRiskMetrics(ctx, *metrics); err != nil {
		return nil, nil, fmt.Errorf("breaker: save risk metrics: %w", err)
	}

	return result, signals, nil
}

// liquidationSignals builds one critical, market-order exit signal per
// open position, per spec's halt-and-liquidate-all behavior.
func liquidationSignals(user string, positions []contracts.Position, at time.Time) []contracts.TradingSignal {
	signals := make([]contracts.TradingSignal, 0, len(positions))
	for _, p := range positions {
		signals = append(signals, contracts.TradingSignal{
			SignalID:          contracts.ExitOrderID("emergency_liquidation", p.Ticker, at),
			Kind:              contracts.SignalEmergencyLiquidation,
			User:              user,
			Ticker:            p.Ticker,
			GeneratedAt:       at,
			CurrentPrice:      p.CurrentPrice,
			RecommendedShares: p.Quantity,
			OrderType:         contracts.OrderTypeMarket,
			Urgency:           contracts.UrgencyCritical,
			Strength:          contracts.StrengthStrong,
			Reasons:           []string{"circuit breaker: total loss ceiling breached"},
			Valid:             true,
		})
	}
	return signals
}

func largestPositionPct(positions []contracts.Position, portfolioValue decimal.Decimal) decimal.Decimal {
	if !portfolioValue.IsPositive() {
		return decimal.Zero
	}
	largest := decimal.Zero
	for _, p := range positions {
		if p.CurrentValue.GreaterThan(largest) {
			largest = p.CurrentValue
		}
	}
	return largest.Div(portfolioValue).Mul(decimal.NewFromInt(100))
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// varRollup builds the portfolio's weighted daily-return series from each
// open position's ticker and hands it to the Engine's historical VaR/CVaR
// check against the Breaker's configured limits. Returns (nil, nil) if too
// few tickers have a usable return series to say anything meaningful.
func (b *Breaker) varRollup(ctx context.Context, positions []contracts.Position, portfolioValue decimal.Decimal) (*RiskCheckResult, error) {
	weights := make(map[string]float64, len(positions))
	assetReturns := make(map[string][]float64, len(positions))
	for _, p := range positions {
		w, _ := p.CurrentValue.Div(portfolioValue).Float64()
		weights[p.Ticker] = w

		returns, err := b.returns.DailyReturns(ctx, p.Ticker)
		if err != nil {
			return nil, fmt.Errorf("daily returns for %s: %w", p.Ticker, err)
		}
		if len(returns) > 0 {
			assetReturns[p.Ticker] = returns
		}
	}

	portReturns := CalculatePortfolioReturns(weights, assetReturns)
	if len(portReturns) < 2 {
		return nil, nil
	}

	input := RiskCheckInput{PortfolioReturns: portReturns, ReturnType: ReturnSimple}
	return b.engine.CheckLimits(input, b.limits), nil
}
