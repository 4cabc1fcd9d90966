package scores

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/minjunpark/kquant/internal/contracts"
	"github.com/minjunpark/kquant/pkg/redis"
)

// annualizedTradingDays is the KRX trading-day count used to annualize a
// daily return series' standard deviation.
const annualizedTradingDays = 252

// volatilityLookbackDays is how many trailing daily bars feed the
// annualized volatility estimate the paper broker's slippage model uses.
const volatilityLookbackDays = 60

// PriceReader is the pgx/Redis-backed implementation of
// contracts.PriceProvider: the Order Executor and Position Monitor's
// external collaborator for current prices, average volume, and realized
// volatility. Grounded on Reader's pgx query idiom, reading through the
// price:latest:{ticker} Redis cache (pkg/redis.PriceLatestKey) the way
// the cache's own TTLPriceLatest comment describes.
type PriceReader struct {
	pool  *pgxpool.Pool
	cache *redis.Cache
}

// NewPriceReader creates a PriceReader. cache may be nil, in which case
// every lookup falls through to Postgres.
func NewPriceReader(pool *pgxpool.Pool, cache *redis.Cache) *PriceReader {
	return &PriceReader{pool: pool, cache: cache}
}

var _ contracts.PriceProvider = (*PriceReader)(nil)
var _ contracts.ReturnSeriesProvider = (*PriceReader)(nil)

// GetPrice returns the latest close, preferring the Redis price:latest
// cache and falling back to the most recent price bar in Postgres.
func (r *PriceReader) GetPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if r.cache != nil {
		var raw string
		found, err := r.cache.Get(ctx, redis.PriceLatestKey(ticker), &raw)
		if err == nil && found {
			if price, perr := decimal.NewFromString(raw); perr == nil {
				return price, nil
			}
		}
	}

	const query = `
		SELECT close FROM market.price_bar
		WHERE ticker = $1
		ORDER BY trading_day DESC
		LIMIT 1
	`
	var price decimal.Decimal
	err := r.pool.QueryRow(ctx, query, ticker).Scan(&price)
	if err != nil {
		if err == pgx.ErrNoRows {
			return decimal.Zero, fmt.Errorf("scores: no price bar for %s: %w", ticker, err)
		}
		return decimal.Zero, fmt.Errorf("scores: query latest price for %s: %w", ticker, err)
	}

	if r.cache != nil {
		_ = r.cache.Set(ctx, redis.PriceLatestKey(ticker), price.String(), redis.TTLPriceLatest)
	}
	return price, nil
}

// AvgDailyVolume returns the 20-day volume moving average already
// maintained by the technical snapshot pipeline.
func (r *PriceReader) AvgDailyVolume(ctx context.Context, ticker string) (int64, error) {
	const query = `
		SELECT volume_ma20 FROM scores.technical_snapshot
		WHERE ticker = $1
		ORDER BY as_of DESC
		LIMIT 1
	`
	var avgVolume int64
	err := r.pool.QueryRow(ctx, query, ticker).Scan(&avgVolume)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, fmt.Errorf("scores: no technical snapshot for %s: %w", ticker, err)
		}
		return 0, fmt.Errorf("scores: query avg volume for %s: %w", ticker, err)
	}
	return avgVolume, nil
}

// AnnualizedVolatility computes the annualized standard deviation of daily
// close-to-close returns over the trailing lookback window.
func (r *PriceReader) AnnualizedVolatility(ctx context.Context, ticker string) (decimal.Decimal, error) {
	closes, err := r.trailingCloses(ctx, ticker, volatilityLookbackDays+1)
	if err != nil {
		return decimal.Zero, err
	}
	annualizedPct, err := annualizedVolatilityFromCloses(closes)
	if err != nil {
		return decimal.Zero, fmt.Errorf("scores: %s: %w", ticker, err)
	}
	return decimal.NewFromFloat(annualizedPct), nil
}

// returnSeriesLookbackDays is how many trailing daily bars feed
// DailyReturns, the Risk Engine's VaR/CVaR input.
const returnSeriesLookbackDays = 120

// DailyReturns returns a ticker's trailing daily close-to-close simple
// returns, most-recent-last, for the Risk Engine's Monte Carlo and VaR/CVaR
// calculators.
func (r *PriceReader) DailyReturns(ctx context.Context, ticker string) ([]float64, error) {
	closesDescending, err := r.trailingCloses(ctx, ticker, returnSeriesLookbackDays+1)
	if err != nil {
		return nil, err
	}
	if len(closesDescending) < 2 {
		return nil, nil
	}
	returns := make([]float64, 0, len(closesDescending)-1)
	for i := len(closesDescending) - 1; i > 0; i-- {
		prior := closesDescending[i]
		if prior == 0 {
			continue
		}
		returns = append(returns, (closesDescending[i-1]-prior)/prior)
	}
	return returns, nil
}

// trailingCloses returns up to limit most-recent-first daily closes.
func (r *PriceReader) trailingCloses(ctx context.Context, ticker string, limit int) ([]float64, error) {
	const query = `
		SELECT close FROM market.price_bar
		WHERE ticker = $1
		ORDER BY trading_day DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("scores: query price history for %s: %w", ticker, err)
	}
	defer rows.Close()

	var closes []float64
	for rows.Next() {
		var c decimal.Decimal
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scores: scan close for %s: %w", ticker, err)
		}
		f, _ := c.Float64()
		closes = append(closes, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scores: iterate price history for %s: %w", ticker, err)
	}
	return closes, nil
}

// annualizedVolatilityFromCloses turns a most-recent-first close series
// into an annualized percentage standard deviation of daily returns.
func annualizedVolatilityFromCloses(closesDescending []float64) (float64, error) {
	if len(closesDescending) < 2 {
		return 0, fmt.Errorf("insufficient price history to compute volatility")
	}

	returns := make([]float64, 0, len(closesDescending)-1)
	for i := 0; i < len(closesDescending)-1; i++ {
		prior := closesDescending[i+1]
		if prior == 0 {
			continue
		}
		returns = append(returns, (closesDescending[i]-prior)/prior)
	}
	if len(returns) < 2 {
		return 0, fmt.Errorf("insufficient returns to compute volatility")
	}

	dailyStdDev := stat.StdDev(returns, nil)
	return dailyStdDev * math.Sqrt(annualizedTradingDays) * 100, nil
}
