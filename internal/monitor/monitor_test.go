package monitor

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/minjunpark/kquant/internal/contracts"
	"github.com/minjunpark/kquant/pkg/redis"
)

type fakeStore struct {
	positions []contracts.Position
	updated   map[string]decimal.Decimal
}

func (f *fakeStore) GetPosition(ctx context.Context, user, ticker string) (*contracts.Position, error) {
	for _, p := range f.positions {
		if p.User == user && p.Ticker == ticker {
			return &p, nil
		}
	}
	return nil, nil
}
func (f *fakeStore) ListPositions(ctx context.Context, user string) ([]contracts.Position, error) {
	return f.positions, nil
}
func (f *fakeStore) ApplyFill(ctx context.Context, fill contracts.Fill) (*contracts.Position, error) {
	return nil, nil
}
func (f *fakeStore) InitializeLimits(ctx context.Context, user, ticker string, stopLossPct, takeProfitPct decimal.Decimal, trailingEnabled bool, trailingDistancePct decimal.Decimal, takeProfitUseTechnical bool) error {
	return nil
}
func (f *fakeStore) UpdateTrailing(ctx context.Context, user, ticker string, lastPrice decimal.Decimal) error {
	if f.updated == nil {
		f.updated = map[string]decimal.Decimal{}
	}
	f.updated[user+"/"+ticker] = lastPrice
	return nil
}
func (f *fakeStore) SetHalt(ctx context.Context, user, reason string) error   { return nil }
func (f *fakeStore) ClearHalt(ctx context.Context, user string) error        { return nil }
func (f *fakeStore) GetRiskMetrics(ctx context.Context, user string) (*contracts.RiskMetrics, error) {
	return nil, nil
}
func (f *fakeStore) SaveRiskMetrics(ctx context.Context, m contracts.RiskMetrics) error { return nil }

type fakePrices struct {
	price decimal.Decimal
}

func (f *fakePrices) GetPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	return f.price, nil
}
func (f *fakePrices) AvgDailyVolume(ctx context.Context, ticker string) (int64, error) { return 0, nil }
func (f *fakePrices) AnnualizedVolatility(ctx context.Context, ticker string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

type fakeScores struct{}

func (fakeScores) LatestComposite(ctx context.Context, ticker string) (*contracts.CompositeScore, error) {
	return nil, nil
}
func (fakeScores) LatestTechnical(ctx context.Context, ticker string) (*contracts.TechnicalSnapshot, error) {
	return nil, nil
}
func (fakeScores) LatestFundamental(ctx context.Context, ticker string) (*contracts.FundamentalSnapshot, error) {
	return nil, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	channels []string
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	return nil
}

func (f *fakePublisher) saw(channel string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.channels {
		if c == channel {
			return true
		}
	}
	return false
}

func TestTick_PublishesTriggerOnAlertChannel(t *testing.T) {
	store := &fakeStore{positions: []contracts.Position{
		{
			User: "u1", Ticker: "005930", Quantity: 10,
			CurrentPrice:    decimal.NewFromInt(70000),
			StopLossPrice:   decimal.NewFromInt(63000),
			TakeProfitPrice: decimal.NewFromInt(84000),
		},
	}}
	prices := &fakePrices{price: decimal.NewFromInt(62000)}
	events := &fakePublisher{}
	m := New(store, prices, fakeScores{}, events)

	if _, err := m.Tick(context.Background(), "u1"); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	if !events.saw(redis.ChannelPriceUpdate) {
		t.Errorf("expected a publish on %s", redis.ChannelPriceUpdate)
	}
	if !events.saw(redis.ChannelPriceAlert) {
		t.Errorf("expected a publish on %s for the fired stop-loss trigger", redis.ChannelPriceAlert)
	}
}

func TestTick_PublishesSignificantChangeOnLargeMove(t *testing.T) {
	store := &fakeStore{positions: []contracts.Position{
		{
			User: "u1", Ticker: "005930", Quantity: 10,
			CurrentPrice:    decimal.NewFromInt(70000),
			StopLossPrice:   decimal.NewFromInt(50000),
			TakeProfitPrice: decimal.NewFromInt(90000),
		},
	}}
	// A 10% jump from the previous tick's 70000 easily clears the 3% threshold.
	prices := &fakePrices{price: decimal.NewFromInt(77000)}
	events := &fakePublisher{}
	m := New(store, prices, fakeScores{}, events)

	if _, err := m.Tick(context.Background(), "u1"); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	if !events.saw(redis.ChannelPriceSigChange) {
		t.Errorf("expected a publish on %s for a 10%% move", redis.ChannelPriceSigChange)
	}
}

func TestTick_StopLossPriority(t *testing.T) {
	store := &fakeStore{positions: []contracts.Position{
		{
			User: "u1", Ticker: "005930", Quantity: 10,
			StopLossPrice:   decimal.NewFromInt(63000),
			TakeProfitPrice: decimal.NewFromInt(84000),
		},
	}}
	prices := &fakePrices{price: decimal.NewFromInt(62000)}
	m := New(store, prices, fakeScores{}, nil)

	triggers, err := m.Tick(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if len(triggers) != 1 || triggers[0].Kind != TriggerStopLoss {
		t.Fatalf("triggers = %+v, want single stop_loss trigger", triggers)
	}
}

func TestTick_NoTriggerWhenPriceBetweenBounds(t *testing.T) {
	store := &fakeStore{positions: []contracts.Position{
		{
			User: "u1", Ticker: "005930", Quantity: 10,
			StopLossPrice:   decimal.NewFromInt(63000),
			TakeProfitPrice: decimal.NewFromInt(84000),
		},
	}}
	prices := &fakePrices{price: decimal.NewFromInt(70000)}
	m := New(store, prices, fakeScores{}, nil)

	triggers, err := m.Tick(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if len(triggers) != 0 {
		t.Fatalf("triggers = %+v, want none", triggers)
	}
}

type fakeTechnicalScores struct {
	tech *contracts.TechnicalSnapshot
}

func (fakeTechnicalScores) LatestComposite(ctx context.Context, ticker string) (*contracts.CompositeScore, error) {
	return nil, nil
}
func (f fakeTechnicalScores) LatestTechnical(ctx context.Context, ticker string) (*contracts.TechnicalSnapshot, error) {
	return f.tech, nil
}
func (fakeTechnicalScores) LatestFundamental(ctx context.Context, ticker string) (*contracts.FundamentalSnapshot, error) {
	return nil, nil
}

// exhaustedTechnicals clears all 4 technical take-profit conditions.
func exhaustedTechnicals() *contracts.TechnicalSnapshot {
	return &contracts.TechnicalSnapshot{
		RSI14:       decimal.NewFromInt(80),
		MACD:        decimal.NewFromInt(-1),
		MACDSignal:  decimal.NewFromInt(1),
		BollingerUp: decimal.NewFromInt(70000),
		SMA20:       decimal.NewFromInt(60000),
	}
}

func TestTick_TakeProfitTechnical_FiresOnlyWhenOptedIn(t *testing.T) {
	pos := contracts.Position{
		User: "u1", Ticker: "005930", Quantity: 10,
		CurrentPrice: decimal.NewFromInt(75000),
	}
	prices := &fakePrices{price: decimal.NewFromInt(75000)}
	tech := fakeTechnicalScores{tech: exhaustedTechnicals()}

	optedOut := &fakeStore{positions: []contracts.Position{pos}}
	m := New(optedOut, prices, tech, nil)
	triggers, err := m.Tick(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if len(triggers) != 0 {
		t.Fatalf("triggers = %+v, want none when TakeProfitUseTechnical is unset", triggers)
	}

	pos.TakeProfitUseTechnical = true
	optedIn := &fakeStore{positions: []contracts.Position{pos}}
	m = New(optedIn, prices, tech, nil)
	triggers, err = m.Tick(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if len(triggers) != 1 || triggers[0].Kind != TriggerTakeProfitTechnical {
		t.Fatalf("triggers = %+v, want single take_profit_technical trigger once opted in", triggers)
	}
}

func TestTick_TakeProfitPrice(t *testing.T) {
	store := &fakeStore{positions: []contracts.Position{
		{
			User: "u1", Ticker: "005930", Quantity: 10,
			StopLossPrice:   decimal.NewFromInt(63000),
			TakeProfitPrice: decimal.NewFromInt(84000),
		},
	}}
	prices := &fakePrices{price: decimal.NewFromInt(85000)}
	m := New(store, prices, fakeScores{}, nil)

	triggers, err := m.Tick(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if len(triggers) != 1 || triggers[0].Kind != TriggerTakeProfitPrice {
		t.Fatalf("triggers = %+v, want single take_profit_price trigger", triggers)
	}
}
