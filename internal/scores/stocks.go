package scores

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/minjunpark/kquant/internal/contracts"
	"github.com/minjunpark/kquant/pkg/redis"
)

// StockReader is the pgx-backed StockLookup the Order Executor and Signal
// Validator use to resolve a ticker's listing market and sector. Master
// data changes rarely, so lookups are cached in Redis under a long TTL.
// Grounded on the same pgx/Redis idiom as PriceReader.
type StockReader struct {
	pool  *pgxpool.Pool
	cache *redis.Cache
}

// NewStockReader creates a StockReader. cache may be nil, in which case
// every lookup falls through to Postgres.
func NewStockReader(pool *pgxpool.Pool, cache *redis.Cache) *StockReader {
	return &StockReader{pool: pool, cache: cache}
}

// GetStock resolves a ticker's master record from the market.stock table,
// preferring the Redis stock:info cache.
func (r *StockReader) GetStock(ctx context.Context, ticker string) (*contracts.Stock, error) {
	if r.cache != nil {
		var cached contracts.Stock
		found, err := r.cache.Get(ctx, redis.StockInfoKey(ticker), &cached)
		if err == nil && found {
			return &cached, nil
		}
	}

	const query = `
		SELECT ticker, name_kr, name_en, market, sector, industry, listed_shares, active
		FROM market.stock
		WHERE ticker = $1
	`
	var stock contracts.Stock
	err := r.pool.QueryRow(ctx, query, ticker).Scan(
		&stock.Ticker, &stock.NameKR, &stock.NameEN, &stock.Market,
		&stock.Sector, &stock.Industry, &stock.ListedShares, &stock.Active,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("scores: no stock master record for %s: %w", ticker, err)
		}
		return nil, fmt.Errorf("scores: query stock %s: %w", ticker, err)
	}

	if r.cache != nil {
		_ = r.cache.Set(ctx, redis.StockInfoKey(ticker), stock, redis.TTLDaily)
	}
	return &stock, nil
}
