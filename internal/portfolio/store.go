// Package portfolio implements the Portfolio Store (C2): the durable
// record of positions, cash, and the trading-halt flag, keyed by
// (user, ticker).
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/minjunpark/kquant/internal/contracts"
)

// ErrPositionNotFound is returned by GetPosition when no row exists for
// (user, ticker).
var ErrPositionNotFound = errors.New("portfolio: position not found")

// Store is the pgx-backed implementation of contracts.PortfolioStore.
// ApplyFill runs inside a serializable transaction and is idempotent on
// the fill's order id; the other writes are single statements at the
// pool's default isolation level with no order-id idempotency check.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store bound to a connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ contracts.PortfolioStore = (*Store)(nil)

func (s *Store) beginSerializable(ctx context.Context) (pgx.Tx, error) {
	return s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
}

// GetPosition returns the open position for (user, ticker), or
// ErrPositionNotFound if none exists.
func (s *Store) GetPosition(ctx context.Context, user, ticker string) (*contracts.Position, error) {
	const query = `
		SELECT user_id, ticker, quantity, avg_price, current_price, current_value,
		       invested_amount, realized_pnl, unrealized_pnl, unrealized_pnl_pct,
		       stop_loss_price, stop_loss_pct, take_profit_price, take_profit_pct,
		       trailing_stop_enabled, trailing_stop_distance_pct, trailing_stop_price,
		       highest_price_since_purchase, composite_at_entry,
		       first_purchase_at, last_transaction_at, archived, take_profit_use_technical
		FROM portfolio.positions
		WHERE user_id = $1 AND ticker = $2 AND archived = false
	`
	row := s.pool.QueryRow(ctx, query, user, ticker)
	pos, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("portfolio: get position: %w", err)
	}
	return pos, nil
}

// ListPositions returns every open position for a user.
func (s *Store) ListPositions(ctx context.Context, user string) ([]contracts.Position, error) {
	const query = `
		SELECT user_id, ticker, quantity, avg_price, current_price, current_value,
		       invested_amount, realized_pnl, unrealized_pnl, unrealized_pnl_pct,
		       stop_loss_price, stop_loss_pct, take_profit_price, take_profit_pct,
		       trailing_stop_enabled, trailing_stop_distance_pct, trailing_stop_price,
		       highest_price_since_purchase, composite_at_entry,
		       first_purchase_at, last_transaction_at, archived, take_profit_use_technical
		FROM portfolio.positions
		WHERE user_id = $1 AND archived = false
		ORDER BY ticker
	`
	rows, err := s.pool.Query(ctx, query, user)
	if err != nil {
		return nil, fmt.Errorf("portfolio: list positions: %w", err)
	}
	defer rows.Close()

	var out []contracts.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("portfolio: scan position: %w", err)
		}
		out = append(out, *pos)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*contracts.Position, error) {
	var p contracts.Position
	err := row.Scan(
		&p.User, &p.Ticker, &p.Quantity, &p.AvgPrice, &p.CurrentPrice, &p.CurrentValue,
		&p.InvestedAmount, &p.RealizedPnL, &p.UnrealizedPnL, &p.UnrealizedPnLPct,
		&p.StopLossPrice, &p.StopLossPct, &p.TakeProfitPrice, &p.TakeProfitPct,
		&p.TrailingStopEnabled, &p.TrailingStopDistancePct, &p.TrailingStopPrice,
		&p.HighestPriceSincePurchase, &p.CompositeAtEntry,
		&p.FirstPurchaseAt, &p.LastTransactionAt, &p.Archived, &p.TakeProfitUseTechnical,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ApplyFill transactionally applies a fill to a position and to the user's
// cash balance — debiting price*quantity+fees on a BUY, crediting
// price*quantity-fees on a SELL — creating a position on the first BUY, and
// is idempotent on fill.OrderID: a fill already recorded is a no-op that
// returns the position unchanged.
func (s *Store) ApplyFill(ctx context.Context, fill contracts.Fill) (*contracts.Position, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var alreadyApplied bool
	err = tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM portfolio.applied_fills WHERE order_id = $1)`, fill.OrderID).Scan(&alreadyApplied)
	if err != nil {
		return nil, fmt.Errorf("portfolio: check fill idempotency: %w", err)
	}
	if alreadyApplied {
		pos, err := s.GetPosition(ctx, fill.User, fill.Ticker)
		if err != nil {
			return nil, err
		}
		return pos, nil
	}

	row := tx.QueryRow(ctx, `
		SELECT user_id, ticker, quantity, avg_price, current_price, current_value,
		       invested_amount, realized_pnl, unrealized_pnl, unrealized_pnl_pct,
		       stop_loss_price, stop_loss_pct, take_profit_price, take_profit_pct,
		       trailing_stop_enabled, trailing_stop_distance_pct, trailing_stop_price,
		       highest_price_since_purchase, composite_at_entry,
		       first_purchase_at, last_transaction_at, archived, take_profit_use_technical
		FROM portfolio.positions
		WHERE user_id = $1 AND ticker = $2 AND archived = false
		FOR UPDATE
	`, fill.User, fill.Ticker)
	existing, err := scanPosition(row)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("portfolio: lock position: %w", err)
	}

	var next contracts.Position
	switch fill.Side {
	case contracts.SideBuy:
		if existing == nil {
			next = contracts.Position{
				User: fill.User, Ticker: fill.Ticker,
				Quantity:                  fill.Quantity,
				AvgPrice:                  fill.Price,
				InvestedAmount:            fill.Price.Mul(decimal.NewFromInt(fill.Quantity)),
				HighestPriceSincePurchase: fill.Price,
				FirstPurchaseAt:           fill.FilledAt,
			}
		} else {
			next = *existing
			next.AvgPrice = recomputeBuyAvgPrice(existing.Quantity, existing.AvgPrice, fill.Quantity, fill.Price)
			next.Quantity = existing.Quantity + fill.Quantity
			next.InvestedAmount = next.AvgPrice.Mul(decimal.NewFromInt(next.Quantity))
		}
	case contracts.SideSell:
		if existing == nil {
			return nil, fmt.Errorf("portfolio: sell fill for %s/%s with no open position", fill.User, fill.Ticker)
		}
		next = *existing
		pnl := realizedPnLOnSell(fill.Price, existing.AvgPrice, fill.Quantity, fill.Fees)
		next.RealizedPnL = existing.RealizedPnL.Add(pnl)
		next.Quantity = existing.Quantity - fill.Quantity
		if next.Quantity < 0 {
			return nil, fmt.Errorf("portfolio: sell fill for %s/%s oversells position (have %d, sold %d)", fill.User, fill.Ticker, existing.Quantity, fill.Quantity)
		}
		next.InvestedAmount = next.AvgPrice.Mul(decimal.NewFromInt(next.Quantity))
		if next.Quantity == 0 {
			next.Archived = true
		}
	default:
		return nil, fmt.Errorf("portfolio: unknown fill side %q", fill.Side)
	}
	next.LastTransactionAt = fill.FilledAt

	if _, err := tx.Exec(ctx, `
		INSERT INTO portfolio.positions (
			user_id, ticker, quantity, avg_price, invested_amount, realized_pnl,
			highest_price_since_purchase, first_purchase_at, last_transaction_at, archived,
			take_profit_use_technical
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (user_id, ticker) WHERE archived = false DO UPDATE SET
			quantity = EXCLUDED.quantity,
			avg_price = EXCLUDED.avg_price,
			invested_amount = EXCLUDED.invested_amount,
			realized_pnl = EXCLUDED.realized_pnl,
			last_transaction_at = EXCLUDED.last_transaction_at,
			archived = EXCLUDED.archived
	`, next.User, next.Ticker, next.Quantity, next.AvgPrice, next.InvestedAmount, next.RealizedPnL,
		next.HighestPriceSincePurchase, next.FirstPurchaseAt, next.LastTransactionAt, next.Archived,
		next.TakeProfitUseTechnical); err != nil {
		return nil, fmt.Errorf("portfolio: upsert position: %w", err)
	}

	cashDelta := cashDeltaForFill(fill)
	if _, err := tx.Exec(ctx, `
		INSERT INTO portfolio.risk_metrics (user_id, cash_balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET cash_balance = portfolio.risk_metrics.cash_balance + $2
	`, fill.User, cashDelta); err != nil {
		return nil, fmt.Errorf("portfolio: debit cash for fill: %w", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO portfolio.applied_fills (order_id, applied_at) VALUES ($1, $2)`, fill.OrderID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("portfolio: record applied fill: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("portfolio: commit fill: %w", err)
	}
	return &next, nil
}

// InitializeLimits seeds a position's stop/take/trailing parameters
// relative to its average price, and whether its take-profit also honors
// the technical exhaustion trigger.
func (s *Store) InitializeLimits(ctx context.Context, user, ticker string, stopLossPct, takeProfitPct decimal.Decimal, trailingEnabled bool, trailingDistancePct decimal.Decimal, takeProfitUseTechnical bool) error {
	pos, err := s.GetPosition(ctx, user, ticker)
	if err != nil {
		return err
	}
	stopLoss, takeProfit := initialStopPrices(pos.AvgPrice, stopLossPct, takeProfitPct)
	trailingStop := pos.AvgPrice.Mul(decimal.NewFromInt(1).Sub(trailingDistancePct.Div(decimal.NewFromInt(100))))

	_, err = s.pool.Exec(ctx, `
		UPDATE portfolio.positions SET
			stop_loss_price = $1, stop_loss_pct = $2,
			take_profit_price = $3, take_profit_pct = $4,
			trailing_stop_enabled = $5, trailing_stop_distance_pct = $6,
			trailing_stop_price = $7, highest_price_since_purchase = avg_price,
			take_profit_use_technical = $8
		WHERE user_id = $9 AND ticker = $10 AND archived = false
	`, stopLoss, stopLossPct, takeProfit, takeProfitPct, trailingEnabled, trailingDistancePct, trailingStop, takeProfitUseTechnical, user, ticker)
	if err != nil {
		return fmt.Errorf("portfolio: initialize limits: %w", err)
	}
	return nil
}

// UpdateTrailing advances the trailing-stop high-water mark. The write is
// clamped so trailing_stop_price never decreases even under concurrent
// retries.
func (s *Store) UpdateTrailing(ctx context.Context, user, ticker string, lastPrice decimal.Decimal) error {
	pos, err := s.GetPosition(ctx, user, ticker)
	if err != nil {
		return err
	}
	if !pos.TrailingStopEnabled {
		return nil
	}
	newHighest, newTrailing := advanceTrailingStop(pos.HighestPriceSincePurchase, pos.TrailingStopPrice, lastPrice, pos.TrailingStopDistancePct)

	_, err = s.pool.Exec(ctx, `
		UPDATE portfolio.positions SET
			highest_price_since_purchase = GREATEST(highest_price_since_purchase, $1),
			trailing_stop_price = GREATEST(trailing_stop_price, $2),
			current_price = $3
		WHERE user_id = $4 AND ticker = $5 AND archived = false
	`, newHighest, newTrailing, lastPrice, user, ticker)
	if err != nil {
		return fmt.Errorf("portfolio: update trailing: %w", err)
	}
	return nil
}

// SetHalt sets the trading-halt flag for a user. The Risk Engine (C10) is
// the only caller expected to invoke this.
func (s *Store) SetHalt(ctx context.Context, user, reason string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO portfolio.risk_metrics (user_id, trading_halted, halt_reason, halt_started_at)
		VALUES ($1, true, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			trading_halted = true, halt_reason = EXCLUDED.halt_reason, halt_started_at = EXCLUDED.halt_started_at
	`, user, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("portfolio: set halt: %w", err)
	}
	return nil
}

// ClearHalt clears the trading-halt flag. Only an explicit operator action
// is expected to call this.
func (s *Store) ClearHalt(ctx context.Context, user string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE portfolio.risk_metrics SET trading_halted = false, halt_reason = '', halt_started_at = NULL
		WHERE user_id = $1
	`, user)
	if err != nil {
		return fmt.Errorf("portfolio: clear halt: %w", err)
	}
	return nil
}

// GetRiskMetrics returns the persisted portfolio risk rollup for a user.
func (s *Store) GetRiskMetrics(ctx context.Context, user string) (*contracts.RiskMetrics, error) {
	const query = `
		SELECT user_id, total_value, cash_balance, invested_amount, peak_value, initial_capital,
		       realized_pnl, unrealized_pnl, daily_pnl, current_drawdown, max_drawdown,
		       drawdown_duration_days, position_count, largest_position_pct,
		       total_loss_from_initial_pct, trading_halted, halt_reason, halt_started_at
		FROM portfolio.risk_metrics WHERE user_id = $1
	`
	var m contracts.RiskMetrics
	err := s.pool.QueryRow(ctx, query, user).Scan(
		&m.User, &m.TotalValue, &m.CashBalance, &m.InvestedAmount, &m.PeakValue, &m.InitialCapital,
		&m.RealizedPnL, &m.UnrealizedPnL, &m.DailyPnL, &m.CurrentDrawdown, &m.MaxDrawdown,
		&m.DrawdownDurationDays, &m.PositionCount, &m.LargestPositionPct,
		&m.TotalLossFromInitialPct, &m.TradingHalted, &m.HaltReason, &m.HaltStartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("portfolio: get risk metrics: %w", err)
	}
	return &m, nil
}

// SaveRiskMetrics upserts the portfolio risk rollup, preserving
// peak_value's monotonic non-decreasing invariant at the SQL level.
func (s *Store) SaveRiskMetrics(ctx context.Context, m contracts.RiskMetrics) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO portfolio.risk_metrics (
			user_id, total_value, cash_balance, invested_amount, peak_value, initial_capital,
			realized_pnl, unrealized_pnl, daily_pnl, current_drawdown, max_drawdown,
			drawdown_duration_days, position_count, largest_position_pct,
			total_loss_from_initial_pct, trading_halted, halt_reason, halt_started_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (user_id) DO UPDATE SET
			total_value = EXCLUDED.total_value,
			cash_balance = EXCLUDED.cash_balance,
			invested_amount = EXCLUDED.invested_amount,
			peak_value = GREATEST(portfolio.risk_metrics.peak_value, EXCLUDED.peak_value),
			realized_pnl = EXCLUDED.realized_pnl,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			daily_pnl = EXCLUDED.daily_pnl,
			current_drawdown = EXCLUDED.current_drawdown,
			max_drawdown = GREATEST(portfolio.risk_metrics.max_drawdown, EXCLUDED.max_drawdown),
			drawdown_duration_days = EXCLUDED.drawdown_duration_days,
			position_count = EXCLUDED.position_count,
			largest_position_pct = EXCLUDED.largest_position_pct,
			total_loss_from_initial_pct = EXCLUDED.total_loss_from_initial_pct,
			trading_halted = EXCLUDED.trading_halted,
			halt_reason = EXCLUDED.halt_reason,
			halt_started_at = EXCLUDED.halt_started_at
	`, m.User, m.TotalValue, m.CashBalance, m.InvestedAmount, m.PeakValue, m.InitialCapital,
		m.RealizedPnL, m.UnrealizedPnL, m.DailyPnL, m.CurrentDrawdown, m.MaxDrawdown,
		m.DrawdownDurationDays, m.PositionCount, m.LargestPositionPct,
		m.TotalLossFromInitialPct, m.TradingHalted, m.HaltReason, m.HaltStartedAt)
	if err != nil {
		return fmt.Errorf("portfolio: save risk metrics: %w", err)
	}
	return nil
}
