// Package signals implements the Signal Generator (C6): entry signals
// from a candidate list plus C3/C4/C5, and exit signals from the
// Position Monitor (C9) and fundamental deterioration checks.
package signals

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/minjunpark/kquant/internal/contracts"
	"github.com/minjunpark/kquant/internal/conviction"
	"github.com/minjunpark/kquant/internal/monitor"
	"github.com/minjunpark/kquant/internal/sizing"
)

// EntryFilters gates which candidates are even considered.
type EntryFilters struct {
	MinCompositeScore float64
	MinMomentumScore  float64
}

// EntryDefaults holds the entry-signal configuration knobs.
type EntryDefaults struct {
	StopLossPct                 float64 // default 10
	TakeProfitPct               float64 // default 20
	MinConvictionScore          float64 // default 60
	LimitOrderDiscountPct       float64 // default 1
	UseMarketOrders             bool
	SizingMethod                sizing.Method
	MaxPositionSizePct          float64
	ScoreDeteriorationThreshold float64 // default 20
	// Stats feeds the Kelly sizing methods with the user's historical
	// win rate and average win/loss percentages. Zero-valued for a
	// non-Kelly SizingMethod, or before enough trade history exists.
	Stats sizing.HistoricalStats
}

// Generator produces entry and exit TradingSignals.
type Generator struct {
	scores    contracts.ScoreReader
	scorer    *conviction.Scorer
	monitor   *monitor.Monitor
	portfolio contracts.PortfolioStore
	prices    contracts.PriceProvider
	defaults  EntryDefaults
}

// New creates a Generator.
func New(scores contracts.ScoreReader, scorer *conviction.Scorer, mon *monitor.Monitor, portfolio contracts.PortfolioStore, prices contracts.PriceProvider, defaults EntryDefaults) *Generator {
	if defaults.StopLossPct == 0 {
		defaults.StopLossPct = 10
	}
	if defaults.TakeProfitPct == 0 {
		defaults.TakeProfitPct = 20
	}
	if defaults.MinConvictionScore == 0 {
		defaults.MinConvictionScore = 60
	}
	if defaults.LimitOrderDiscountPct == 0 {
		defaults.LimitOrderDiscountPct = 1
	}
	if defaults.ScoreDeteriorationThreshold == 0 {
		defaults.ScoreDeteriorationThreshold = 20
	}
	return &Generator{scores: scores, scorer: scorer, monitor: mon, portfolio: portfolio, prices: prices, defaults: defaults}
}

// GenerateEntrySignals evaluates candidateTickers in order and returns a
// signal for each that clears every gate. Ordering is deterministic:
// signals are produced in the same order as candidateTickers.
func (g *Generator) GenerateEntrySignals(ctx context.Context, user string, candidateTickers []string, filters EntryFilters, portfolioValue, availableCash decimal.Decimal, now time.Time) ([]contracts.TradingSignal, error) {
	var out []contracts.TradingSignal
	for _, ticker := range candidateTickers {
		sig, ok, err := g.generateOneEntry(ctx, user, ticker, filters, portfolioValue, availableCash, now)
		if err != nil {
			return nil, fmt.Errorf("signals: entry %s: %w", ticker, err)
		}
		if ok {
			out = append(out, sig)
		}
	}
	return out, nil
}

func (g *Generator) generateOneEntry(ctx context.Context, user, ticker string, filters EntryFilters, portfolioValue, availableCash decimal.Decimal, now time.Time) (contracts.TradingSignal, bool, error) {
	composite, err := g.scores.LatestComposite(ctx, ticker)
	if err != nil {
		return contracts.TradingSignal{}, false, nil // stale or missing data: skip, not an error
	}
	if composite.Composite < filters.MinCompositeScore {
		return contracts.TradingSignal{}, false, nil
	}
	if composite.MomentumScore < filters.MinMomentumScore {
		return contracts.TradingSignal{}, false, nil
	}

	tech, _ := g.scores.LatestTechnical(ctx, ticker)
	var currentVolume, volumeMA20 int64
	if tech != nil {
		currentVolume, volumeMA20 = tech.Volume, tech.VolumeMA20
	}
	conv := g.scorer.Score(*composite, currentVolume, volumeMA20)
	if conv.ConvictionScore < g.defaults.MinConvictionScore {
		return contracts.TradingSignal{}, false, nil
	}

	entryPrice, err := g.prices.GetPrice(ctx, ticker)
	if err != nil {
		return contracts.TradingSignal{}, false, nil
	}

	stopLoss := entryPrice.Mul(decimal.NewFromFloat(1 - g.defaults.StopLossPct/100))
	takeProfit := entryPrice.Mul(decimal.NewFromFloat(1 + g.defaults.TakeProfitPct/100))

	sizeResult, err := sizing.Calculate(sizing.Params{
		PortfolioValue:     portfolioValue,
		EntryPrice:         entryPrice,
		StopLossPrice:      stopLoss,
		Method:             g.defaults.SizingMethod,
		MaxPositionSizePct: g.defaults.MaxPositionSizePct,
		Stats:              g.defaults.Stats,
		AvailableCash:      availableCash,
		ConvictionScore:    conv.ConvictionScore,
	})
	if err != nil {
		return contracts.TradingSignal{}, false, fmt.Errorf("sizing: %w", err)
	}
	if sizeResult.RecommendedShares == 0 {
		return contracts.TradingSignal{}, false, nil
	}

	orderType := contracts.OrderTypeLimit
	limitPrice := entryPrice.Mul(decimal.NewFromFloat(1 - g.defaults.LimitOrderDiscountPct/100))
	if g.defaults.UseMarketOrders {
		orderType = contracts.OrderTypeMarket
		limitPrice = decimal.Zero
	}

	reasons := append([]string{
		fmt.Sprintf("Composite score: %.1f/100", composite.Composite),
		fmt.Sprintf("Conviction score: %.1f/100", conv.ConvictionScore),
	}, conv.Reasons...)

	expectedReturnPct := takeProfit.Sub(entryPrice).Div(entryPrice).Mul(decimal.NewFromInt(100))
	riskRewardRatio := decimal.Zero
	if risk := entryPrice.Sub(stopLoss); risk.IsPositive() {
		riskRewardRatio = takeProfit.Sub(entryPrice).Div(risk)
	}

	sig := contracts.TradingSignal{
		SignalID:          contracts.EntryOrderID(ticker, now),
		Kind:              contracts.SignalEntryBuy,
		User:              user,
		Ticker:            ticker,
		GeneratedAt:       now,
		CurrentPrice:      entryPrice,
		TargetPrice:       takeProfit,
		StopLossPrice:     stopLoss,
		TakeProfitPrice:   takeProfit,
		RecommendedShares: sizeResult.RecommendedShares,
		PositionPct:       decimal.NewFromFloat(sizeResult.PositionPct),
		OrderType:         orderType,
		LimitPrice:        limitPrice,
		ConvictionScore:   conv.ConvictionScore,
		Urgency:           contracts.UrgencyNormal,
		Strength:          contracts.StrengthForConviction(conv.ConvictionScore),
		Reasons:           reasons,
		ExpectedReturnPct: expectedReturnPct,
		RiskRewardRatio:   riskRewardRatio,
		Valid:             true,
	}
	return sig, true, nil
}

// GenerateExitSignals converts the Position Monitor's triggers and any
// fundamental-deterioration checks into exit TradingSignals, ordered by
// (user, ticker).
func (g *Generator) GenerateExitSignals(ctx context.Context, user string, now time.Time) ([]contracts.TradingSignal, error) {
	triggers, err := g.monitor.Tick(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("signals: monitor tick: %w", err)
	}

	out := make([]contracts.TradingSignal, 0, len(triggers))
	for _, trig := range triggers {
		out = append(out, contracts.TradingSignal{
			SignalID:          contracts.ExitOrderID(string(trig.Kind), trig.Ticker, now),
			Kind:              contracts.SignalExitSell,
			User:              trig.User,
			Ticker:            trig.Ticker,
			GeneratedAt:       now,
			RecommendedShares: trig.Quantity,
			OrderType:         trig.OrderType,
			LimitPrice:        trig.LimitPrice,
			Urgency:           trig.Urgency,
			Reasons:           []string{trig.Reason},
			Valid:             true,
		})
	}

	deteriorated, err := g.fundamentalDeteriorationExits(ctx, user, now)
	if err != nil {
		return nil, err
	}
	out = append(out, deteriorated...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].User != out[j].User {
			return out[i].User < out[j].User
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out, nil
}

func (g *Generator) fundamentalDeteriorationExits(ctx context.Context, user string, now time.Time) ([]contracts.TradingSignal, error) {
	positions, err := g.portfolio.ListPositions(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}

	var out []contracts.TradingSignal
	for _, pos := range positions {
		composite, err := g.scores.LatestComposite(ctx, pos.Ticker)
		if err != nil {
			continue
		}
		if pos.CompositeAtEntry-composite.Composite < g.defaults.ScoreDeteriorationThreshold {
			continue
		}
		out = append(out, contracts.TradingSignal{
			SignalID:          contracts.ExitOrderID("fundamentals", pos.Ticker, now),
			Kind:              contracts.SignalExitSell,
			User:              pos.User,
			Ticker:            pos.Ticker,
			GeneratedAt:       now,
			RecommendedShares: pos.Quantity,
			OrderType:         contracts.OrderTypeMarket,
			Urgency:           contracts.UrgencyNormal,
			Reasons:           []string{fmt.Sprintf("composite score dropped %.1f points since entry", pos.CompositeAtEntry-composite.Composite)},
			Valid:             true,
		})
	}
	return out, nil
}
