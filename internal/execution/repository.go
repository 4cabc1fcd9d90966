package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/minjunpark/kquant/internal/contracts"
	"github.com/minjunpark/kquant/internal/sizing"
)

// Repository persists Trade records, keyed by OrderID. SaveTrade is an
// idempotent upsert: retrying the same OrderID after a crash overwrites
// the row in place instead of duplicating it, via an
// ON CONFLICT (order_id) DO UPDATE.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveTrade upserts a trade keyed by order_id.
func (r *Repository) SaveTrade(ctx context.Context, t *contracts.Trade) error {
	query := `
		INSERT INTO execution.trades (
			order_id, "user", ticker, side, order_type,
			requested_qty, requested_price, executed_qty, executed_price,
			total_amount, commission, tax, status, reason, strategy,
			created_at, executed_at, cancelled_at, realized_pnl, realized_pnl_pct
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (order_id) DO UPDATE SET
			executed_qty     = EXCLUDED.executed_qty,
			executed_price   = EXCLUDED.executed_price,
			total_amount     = EXCLUDED.total_amount,
			commission       = EXCLUDED.commission,
			tax              = EXCLUDED.tax,
			status           = EXCLUDED.status,
			executed_at      = EXCLUDED.executed_at,
			cancelled_at     = EXCLUDED.cancelled_at,
			realized_pnl     = EXCLUDED.realized_pnl,
			realized_pnl_pct = EXCLUDED.realized_pnl_pct
	`
	_, err := r.pool.Exec(ctx, query,
		t.OrderID, t.User, t.Ticker, t.Side, t.OrderType,
		t.RequestedQty, t.RequestedPrice, t.ExecutedQty, t.ExecutedPrice,
		t.TotalAmount, t.Commission, t.Tax, t.Status, t.Reason, t.Strategy,
		t.CreatedAt, t.ExecutedAt, t.CancelledAt, t.RealizedPnL, t.RealizedPnLPct,
	)
	if err != nil {
		return fmt.Errorf("save trade %s: %w", t.OrderID, err)
	}
	return nil
}

// GetTrade retrieves a trade by its order id, returning (nil, nil) when the
// order has never been submitted, so callers can distinguish "not seen yet"
// from a genuine lookup failure — the idempotency check the Order Executor
// runs before every submission relies on this.
func (r *Repository) GetTrade(ctx context.Context, orderID string) (*contracts.Trade, error) {
	query := `
		SELECT order_id, "user", ticker, side, order_type,
		       requested_qty, requested_price, executed_qty, executed_price,
		       total_amount, commission, tax, status, reason, strategy,
		       created_at, executed_at, cancelled_at, realized_pnl, realized_pnl_pct
		FROM execution.trades
		WHERE order_id = $1
	`
	var t contracts.Trade
	err := r.pool.QueryRow(ctx, query, orderID).Scan(
		&t.OrderID, &t.User, &t.Ticker, &t.Side, &t.OrderType,
		&t.RequestedQty, &t.RequestedPrice, &t.ExecutedQty, &t.ExecutedPrice,
		&t.TotalAmount, &t.Commission, &t.Tax, &t.Status, &t.Reason, &t.Strategy,
		&t.CreatedAt, &t.ExecutedAt, &t.CancelledAt, &t.RealizedPnL, &t.RealizedPnLPct,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trade %s: %w", orderID, err)
	}
	return &t, nil
}

// GetTradesByUserAndDate lists trades placed for a user on a given day, in
// submission order.
func (r *Repository) GetTradesByUserAndDate(ctx context.Context, user string, date time.Time) ([]contracts.Trade, error) {
	query := `
		SELECT order_id, "user", ticker, side, order_type,
		       requested_qty, requested_price, executed_qty, executed_price,
		       total_amount, commission, tax, status, reason, strategy,
		       created_at, executed_at, cancelled_at, realized_pnl, realized_pnl_pct
		FROM execution.trades
		WHERE "user" = $1 AND created_at::date = $2::date
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, user, date)
	if err != nil {
		return nil, fmt.Errorf("query trades for %s on %s: %w", user, date.Format("2006-01-02"), err)
	}
	defer rows.Close()

	trades := make([]contracts.Trade, 0)
	for rows.Next() {
		var t contracts.Trade
		if err := rows.Scan(
			&t.OrderID, &t.User, &t.Ticker, &t.Side, &t.OrderType,
			&t.RequestedQty, &t.RequestedPrice, &t.ExecutedQty, &t.ExecutedPrice,
			&t.TotalAmount, &t.Commission, &t.Tax, &t.Status, &t.Reason, &t.Strategy,
			&t.CreatedAt, &t.ExecutedAt, &t.CancelledAt, &t.RealizedPnL, &t.RealizedPnLPct,
		); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return trades, nil
}

// DailySummary aggregates a user's trade activity for a given day.
type DailySummary struct {
	Date            time.Time
	TotalTrades     int
	FilledTrades    int
	RejectedTrades  int
	CancelledTrades int
}

// GetDailySummary computes a DailySummary for a user's trades on date.
func (r *Repository) GetDailySummary(ctx context.Context, user string, date time.Time) (*DailySummary, error) {
	query := `
		SELECT
			COUNT(*) AS total_trades,
			COUNT(*) FILTER (WHERE status = 'FILLED') AS filled_trades,
			COUNT(*) FILTER (WHERE status = 'REJECTED') AS rejected_trades,
			COUNT(*) FILTER (WHERE status = 'CANCELLED') AS cancelled_trades
		FROM execution.trades
		WHERE "user" = $1 AND created_at::date = $2::date
	`
	var s DailySummary
	err := r.pool.QueryRow(ctx, query, user, date).Scan(
		&s.TotalTrades, &s.FilledTrades, &s.RejectedTrades, &s.CancelledTrades,
	)
	if err != nil {
		return nil, fmt.Errorf("get daily summary for %s: %w", user, err)
	}
	s.Date = date
	return &s, nil
}

// tradeStatsLookbackDays bounds GetTradeStats to recent trading history, so a
// user's Kelly sizing tracks their current edge rather than averaging over
// years of stale performance.
const tradeStatsLookbackDays = 180

// GetTradeStats aggregates a user's closed SELL trades into the
// win-rate/average-win/average-loss triple the Kelly sizing methods need.
// Samples reports how many closed trades fed the aggregate; callers should
// treat a small sample as unreliable and fall back to a non-Kelly method.
func (r *Repository) GetTradeStats(ctx context.Context, user string) (sizing.HistoricalStats, int, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE realized_pnl_pct > 0) AS wins,
			COUNT(*) AS total,
			COALESCE(AVG(realized_pnl_pct) FILTER (WHERE realized_pnl_pct > 0), 0) AS avg_win_pct,
			COALESCE(AVG(ABS(realized_pnl_pct)) FILTER (WHERE realized_pnl_pct <= 0), 0) AS avg_loss_pct
		FROM execution.trades
		WHERE "user" = $1 AND side = 'SELL' AND status = 'FILLED'
		  AND created_at >= now() - ($2 || ' days')::interval
	`
	var wins, total int
	var avgWinPct, avgLossPct float64
	err := r.pool.QueryRow(ctx, query, user, tradeStatsLookbackDays).Scan(&wins, &total, &avgWinPct, &avgLossPct)
	if err != nil {
		return sizing.HistoricalStats{}, 0, fmt.Errorf("get trade stats for %s: %w", user, err)
	}
	if total == 0 {
		return sizing.HistoricalStats{}, 0, nil
	}
	return sizing.HistoricalStats{
		WinRate:    float64(wins) / float64(total),
		AvgWinPct:  avgWinPct,
		AvgLossPct: avgLossPct,
	}, total, nil
}
