// Package scores implements the read-only Score/Indicator Reader (C3): a
// lookup over precomputed composite scores and technical/fundamental
// snapshots, guarded by a staleness bound expressed in KRX trading hours
// rather than wall-clock time.
package scores

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/minjunpark/kquant/internal/calendar"
	"github.com/minjunpark/kquant/internal/contracts"
)

// DefaultMaxDataAge is the default staleness bound: 48 hours of KRX
// trading time, not wall-clock time.
const DefaultMaxDataAge = 48 * time.Hour

// ErrStale is returned when the latest reading for a ticker is older than
// the configured staleness bound.
var ErrStale = fmt.Errorf("scores: latest reading is stale")

// Reader is the pgx-backed implementation of contracts.ScoreReader.
type Reader struct {
	pool       *pgxpool.Pool
	cal        *calendar.KRXCalendar
	maxDataAge time.Duration
}

// NewReader creates a Reader with the given staleness bound. Passing zero
// selects DefaultMaxDataAge.
func NewReader(pool *pgxpool.Pool, cal *calendar.KRXCalendar, maxDataAge time.Duration) *Reader {
	if maxDataAge == 0 {
		maxDataAge = DefaultMaxDataAge
	}
	return &Reader{pool: pool, cal: cal, maxDataAge: maxDataAge}
}

var _ contracts.ScoreReader = (*Reader)(nil)

// LatestComposite returns the most recent CompositeScore for ticker, or
// ErrStale if its trading-hours age exceeds the staleness bound.
func (r *Reader) LatestComposite(ctx context.Context, ticker string) (*contracts.CompositeScore, error) {
	const query = `
		SELECT value_score, growth_score, quality_score, momentum_score, composite, percentile_rank, as_of
		FROM scores.composite
		WHERE ticker = $1
		ORDER BY as_of DESC
		LIMIT 1
	`
	var s contracts.CompositeScore
	var asOf time.Time
	err := r.pool.QueryRow(ctx, query, ticker).Scan(
		&s.ValueScore, &s.GrowthScore, &s.QualityScore, &s.MomentumScore, &s.Composite, &s.PercentileRank, &asOf,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("scores: no composite score for %s: %w", ticker, err)
		}
		return nil, fmt.Errorf("scores: query composite for %s: %w", ticker, err)
	}
	s.Ticker = ticker
	s.Date = asOf
	if r.isStale(asOf) {
		return nil, fmt.Errorf("%w: %s as of %s", ErrStale, ticker, asOf)
	}
	return &s, nil
}

// LatestTechnical returns the most recent TechnicalSnapshot for ticker.
func (r *Reader) LatestTechnical(ctx context.Context, ticker string) (*contracts.TechnicalSnapshot, error) {
	const query = `
		SELECT rsi14, macd, macd_signal, bollinger_up, bollinger_low, sma20, volume_ma20, volume, as_of
		FROM scores.technical_snapshot
		WHERE ticker = $1
		ORDER BY as_of DESC
		LIMIT 1
	`
	var t contracts.TechnicalSnapshot
	var asOf time.Time
	err := r.pool.QueryRow(ctx, query, ticker).Scan(
		&t.RSI14, &t.MACD, &t.MACDSignal, &t.BollingerUp, &t.BollingerLow, &t.SMA20, &t.VolumeMA20, &t.Volume, &asOf,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("scores: no technical snapshot for %s: %w", ticker, err)
		}
		return nil, fmt.Errorf("scores: query technical for %s: %w", ticker, err)
	}
	t.Ticker = ticker
	t.Date = asOf
	if r.isStale(asOf) {
		return nil, fmt.Errorf("%w: %s as of %s", ErrStale, ticker, asOf)
	}
	return &t, nil
}

// LatestFundamental returns the most recent FundamentalSnapshot for ticker.
// Fundamentals are not subject to the trading-hours staleness bound: a
// quarterly report does not go stale over a weekend.
func (r *Reader) LatestFundamental(ctx context.Context, ticker string) (*contracts.FundamentalSnapshot, error) {
	const query = `
		SELECT per, pbr, roe, debt_ratio
		FROM scores.fundamental_snapshot
		WHERE ticker = $1
		ORDER BY as_of DESC
		LIMIT 1
	`
	var f contracts.FundamentalSnapshot
	err := r.pool.QueryRow(ctx, query, ticker).Scan(&f.PER, &f.PBR, &f.ROE, &f.DebtRatio)
	if err != nil {
		return nil, fmt.Errorf("scores: query fundamental for %s: %w", ticker, err)
	}
	f.Ticker = ticker
	return &f, nil
}

func (r *Reader) isStale(asOf time.Time) bool {
	age := r.cal.TradingDuration(asOf, timeNow())
	return age > r.maxDataAge
}

// timeNow is a var so tests can override "now" without depending on wall
// clock.
var timeNow = time.Now

// DataQuality computes the [0,100] quality score for a ticker's latest
// reading as the fraction of its non-null inputs, weighted the way the
// upstream quality gate weights price/volume/fundamentals coverage.
func DataQuality(tech *contracts.TechnicalSnapshot, fund *contracts.FundamentalSnapshot) float64 {
	type field struct {
		present bool
		weight  float64
	}
	fields := []field{
		{tech != nil && !tech.RSI14.IsZero(), 0.20},
		{tech != nil && !tech.MACD.IsZero(), 0.15},
		{tech != nil && !tech.SMA20.IsZero(), 0.15},
		{tech != nil && tech.Volume > 0, 0.20},
		{fund != nil && !fund.PER.IsZero(), 0.15},
		{fund != nil && !fund.ROE.IsZero(), 0.15},
	}
	score := 0.0
	for _, f := range fields {
		if f.present {
			score += f.weight * 100
		}
	}
	return score
}
