// Package monitor implements the Position Monitor (C9): a periodic sweep
// over open positions that advances trailing stops and evaluates exit
// triggers in strict priority order.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/minjunpark/kquant/internal/contracts"
	"github.com/minjunpark/kquant/pkg/redis"
)

// maxParallelPositions bounds the worker pool to 10 positions evaluated
// in parallel per sweep.
const maxParallelPositions = 10

// TriggerKind names which of the priority-ordered checks fired.
type TriggerKind string

const (
	TriggerStopLoss            TriggerKind = "stop_loss"
	TriggerTrailingStop        TriggerKind = "trailing_stop"
	TriggerTakeProfitPrice     TriggerKind = "take_profit_price"
	TriggerTakeProfitTechnical TriggerKind = "take_profit_technical"
)

// ExitTrigger is the result of evaluating one position's snapshot.
type ExitTrigger struct {
	User       string
	Ticker     string
	Kind       TriggerKind
	Urgency    contracts.Urgency
	OrderType  contracts.OrderType
	LimitPrice decimal.Decimal
	Quantity   int64
	Reason     string
}

// Monitor sweeps a user's open positions every tick.
type Monitor struct {
	store  contracts.PortfolioStore
	prices contracts.PriceProvider
	scores contracts.ScoreReader
	events contracts.EventPublisher
}

// New creates a Monitor. events may be nil, in which case exit triggers
// are never announced over pub/sub.
func New(store contracts.PortfolioStore, prices contracts.PriceProvider, scores contracts.ScoreReader, events contracts.EventPublisher) *Monitor {
	return &Monitor{store: store, prices: prices, scores: scores, events: events}
}

// Tick fetches every open position for user, updates its trailing stop,
// and evaluates exit triggers, running up to maxParallelPositions
// positions concurrently. Each position emits at most one trigger.
func (m *Monitor) Tick(ctx context.Context, user string) ([]ExitTrigger, error) {
	positions, err := m.store.ListPositions(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("monitor: list positions: %w", err)
	}

	results := make([]ExitTrigger, len(positions))
	found := make([]bool, len(positions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelPositions)

	for i, pos := range positions {
		i, pos := i, pos
		g.Go(func() error {
			trigger, ok, err := m.evaluateOne(gctx, pos)
			if err != nil {
				return fmt.Errorf("monitor: evaluate %s/%s: %w", pos.User, pos.Ticker, err)
			}
			if ok {
				results[i] = trigger
				found[i] = true
				m.publishTrigger(gctx, trigger)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []ExitTrigger
	for i, ok := range found {
		if ok {
			out = append(out, results[i])
		}
	}
	return out, nil
}

// evaluateOne updates the trailing stop for one position and evaluates
// the priority-ordered exit triggers against a snapshot taken at the
// start of the tick, to avoid a torn read against a concurrently moving
// price.
func (m *Monitor) evaluateOne(ctx context.Context, pos contracts.Position) (ExitTrigger, bool, error) {
	lastPrice, err := m.prices.GetPrice(ctx, pos.Ticker)
	if err != nil {
		return ExitTrigger{}, false, fmt.Errorf("get price: %w", err)
	}

	if err := m.store.UpdateTrailing(ctx, pos.User, pos.Ticker, lastPrice); err != nil {
		return ExitTrigger{}, false, fmt.Errorf("update trailing: %w", err)
	}

	m.publishPriceTick(ctx, pos, lastPrice)

	snap := pos
	snap.CurrentPrice = lastPrice

	if trigger, ok := m.checkStopLoss(snap); ok {
		return trigger, true, nil
	}
	if trigger, ok := m.checkTrailingStop(snap); ok {
		return trigger, true, nil
	}
	if trigger, ok := m.checkTakeProfitPrice(snap); ok {
		return trigger, true, nil
	}
	if snap.TakeProfitUseTechnical {
		if trigger, ok := m.checkTakeProfitTechnical(ctx, snap); ok {
			return trigger, true, nil
		}
	}
	return ExitTrigger{}, false, nil
}

// significantMoveThresholdPct is how far a position's price has to move
// against the previous tick before publishPriceTick escalates the update onto
// the significant-change channel instead of just the plain one.
const significantMoveThresholdPct = 3

// publishPriceTick announces the freshly observed price for one position,
// once on the general price-update channel and again on the
// significant-change channel when it moved at least
// significantMoveThresholdPct since the prior tick.
func (m *Monitor) publishPriceTick(ctx context.Context, pos contracts.Position, lastPrice decimal.Decimal) {
	if m.events == nil {
		return
	}
	event := redis.PriceEvent{
		EventType: "price_update",
		Ticker:    pos.Ticker,
		Timestamp: time.Now(),
		Data:      lastPrice.String(),
	}
	_ = m.events.Publish(ctx, redis.ChannelPriceUpdate, event)

	if pos.CurrentPrice.IsZero() {
		return
	}
	moved := lastPrice.Sub(pos.CurrentPrice).Div(pos.CurrentPrice).Abs().Mul(decimal.NewFromInt(100))
	if moved.GreaterThanOrEqual(decimal.NewFromInt(significantMoveThresholdPct)) {
		event.EventType = "significant_change"
		_ = m.events.Publish(ctx, redis.ChannelPriceSigChange, event)
	}
}

// publishTrigger announces an exit trigger on the price alert channel so
// any interested subscriber (a dashboard, an ops alerting hook) hears
// about it without polling the portfolio store. Publication failures are
// swallowed: a missed alert must never fail the sweep that found it.
func (m *Monitor) publishTrigger(ctx context.Context, trigger ExitTrigger) {
	if m.events == nil {
		return
	}
	event := redis.PriceEvent{
		EventType: string(trigger.Kind),
		Ticker:    trigger.Ticker,
		Timestamp: time.Now(),
		Data:      trigger,
	}
	_ = m.events.Publish(ctx, redis.ChannelPriceAlert, event)
}

func (m *Monitor) checkStopLoss(pos contracts.Position) (ExitTrigger, bool) {
	if pos.StopLossPrice.IsZero() || pos.CurrentPrice.GreaterThan(pos.StopLossPrice) {
		return ExitTrigger{}, false
	}
	return ExitTrigger{
		User: pos.User, Ticker: pos.Ticker, Kind: TriggerStopLoss,
		Urgency: contracts.UrgencyHigh, OrderType: contracts.OrderTypeMarket,
		Quantity: pos.Quantity, Reason: "stop-loss triggered",
	}, true
}

func (m *Monitor) checkTrailingStop(pos contracts.Position) (ExitTrigger, bool) {
	if !pos.TrailingStopEnabled || pos.TrailingStopPrice.IsZero() || pos.CurrentPrice.GreaterThan(pos.TrailingStopPrice) {
		return ExitTrigger{}, false
	}
	return ExitTrigger{
		User: pos.User, Ticker: pos.Ticker, Kind: TriggerTrailingStop,
		Urgency: contracts.UrgencyHigh, OrderType: contracts.OrderTypeMarket,
		Quantity: pos.Quantity, Reason: "trailing stop triggered",
	}, true
}

func (m *Monitor) checkTakeProfitPrice(pos contracts.Position) (ExitTrigger, bool) {
	if pos.TakeProfitPrice.IsZero() || pos.CurrentPrice.LessThan(pos.TakeProfitPrice) {
		return ExitTrigger{}, false
	}
	return ExitTrigger{
		User: pos.User, Ticker: pos.Ticker, Kind: TriggerTakeProfitPrice,
		Urgency: contracts.UrgencyNormal, OrderType: contracts.OrderTypeLimit,
		LimitPrice: pos.TakeProfitPrice, Quantity: pos.Quantity, Reason: "take-profit price reached",
	}, true
}

// checkTakeProfitTechnical requires at least 2 of {RSI>70, MACD bearish
// crossover, price>BB upper, price>=1.1*SMA20}. It only fires when a
// technical snapshot is available; missing data is not a trigger. Callers
// must gate this on Position.TakeProfitUseTechnical: it is opt-in.
func (m *Monitor) checkTakeProfitTechnical(ctx context.Context, pos contracts.Position) (ExitTrigger, bool) {
	tech, err := m.scores.LatestTechnical(ctx, pos.Ticker)
	if err != nil || tech == nil {
		return ExitTrigger{}, false
	}

	count := 0
	if tech.RSI14.GreaterThan(decimal.NewFromInt(70)) {
		count++
	}
	if tech.MACD.LessThan(tech.MACDSignal) {
		count++
	}
	if pos.CurrentPrice.GreaterThan(tech.BollingerUp) {
		count++
	}
	if pos.CurrentPrice.GreaterThanOrEqual(tech.SMA20.Mul(decimal.NewFromFloat(1.1))) {
		count++
	}

	if count < 2 {
		return ExitTrigger{}, false
	}
	return ExitTrigger{
		User: pos.User, Ticker: pos.Ticker, Kind: TriggerTakeProfitTechnical,
		Urgency: contracts.UrgencyNormal, OrderType: contracts.OrderTypeLimit,
		LimitPrice: pos.CurrentPrice, Quantity: pos.Quantity,
		Reason: "technical exhaustion take-profit",
	}, true
}
