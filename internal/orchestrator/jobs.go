package orchestrator

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/minjunpark/kquant/internal/contracts"
	"github.com/minjunpark/kquant/internal/execution"
	"github.com/minjunpark/kquant/internal/risk"
	"github.com/minjunpark/kquant/internal/signals"
	"github.com/minjunpark/kquant/internal/validate"
	"github.com/minjunpark/kquant/pkg/logger"
)

// Universe supplies the accounts and candidate tickers the daily and
// intraday jobs iterate over. It is intentionally thin: onboarding,
// watchlist curation and account provisioning have no dedicated store in
// this build, so a fixed roster is the simplest thing that lets every
// scheduled job in this package actually run end to end.
type Universe interface {
	Users(ctx context.Context) ([]string, error)
	CandidateTickers(ctx context.Context, user string) ([]string, error)
}

// StaticUniverse is a Universe backed by a fixed roster and watchlist,
// suitable for a single-account paper-trading deployment.
type StaticUniverse struct {
	users      []string
	watchlists map[string][]string
}

// NewStaticUniverse builds a Universe where every user shares the same
// candidate ticker list.
func NewStaticUniverse(users []string, sharedWatchlist []string) *StaticUniverse {
	watchlists := make(map[string][]string, len(users))
	for _, u := range users {
		watchlists[u] = sharedWatchlist
	}
	return &StaticUniverse{users: users, watchlists: watchlists}
}

func (u *StaticUniverse) Users(ctx context.Context) ([]string, error) { return u.users, nil }

func (u *StaticUniverse) CandidateTickers(ctx context.Context, user string) ([]string, error) {
	return u.watchlists[user], nil
}

func submitValid(ctx context.Context, validator *validate.Validator, executor *execution.Executor, log *logger.Logger, sig contracts.TradingSignal) {
	validated, err := validator.Validate(ctx, sig)
	if err != nil {
		log.WithFields(map[string]interface{}{"signal_id": sig.SignalID, "error": err.Error()}).Error("validation failed")
		return
	}
	if !validated.Valid {
		log.WithFields(map[string]interface{}{
			"signal_id": sig.SignalID, "ticker": sig.Ticker, "reason": validated.RejectionReason,
		}).Info("signal rejected")
		return
	}
	if _, err := executor.SubmitOrder(ctx, validated); err != nil {
		log.WithFields(map[string]interface{}{"signal_id": sig.SignalID, "error": err.Error()}).Error("order submission failed")
	}
}

// SignalGenerationJob is the once-daily entry and exit signal pass,
// cron-triggered at 08:45 KST, just ahead of the 09:00 open.
type SignalGenerationJob struct {
	generator *signals.Generator
	validator *validate.Validator
	executor  *execution.Executor
	portfolio contracts.PortfolioStore
	universe  Universe
	filters   signals.EntryFilters
	log       *logger.Logger
}

func NewSignalGenerationJob(
	generator *signals.Generator,
	validator *validate.Validator,
	executor *execution.Executor,
	portfolio contracts.PortfolioStore,
	universe Universe,
	filters signals.EntryFilters,
	log *logger.Logger,
) *SignalGenerationJob {
	return &SignalGenerationJob{
		generator: generator,
		validator: validator,
		executor:  executor,
		portfolio: portfolio,
		universe:  universe,
		filters:   filters,
		log:       log,
	}
}

func (j *SignalGenerationJob) Name() string          { return "signal_generation" }
func (j *SignalGenerationJob) Trigger() Trigger      { return Cron("45 8 * * MON-FRI") }
func (j *SignalGenerationJob) GracePeriod() time.Duration { return 5 * time.Minute }

func (j *SignalGenerationJob) Run(ctx context.Context) error {
	users, err := j.universe.Users(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		now := time.Now().In(seoul)

		exits, err := j.generator.GenerateExitSignals(ctx, user, now)
		if err != nil {
			j.log.WithFields(map[string]interface{}{"user": user, "error": err.Error()}).Error("exit signal generation failed")
		}
		for _, sig := range exits {
			submitValid(ctx, j.validator, j.executor, j.log, sig)
		}

		tickers, err := j.universe.CandidateTickers(ctx, user)
		if err != nil {
			j.log.WithFields(map[string]interface{}{"user": user, "error": err.Error()}).Error("candidate lookup failed")
			continue
		}
		metrics, err := j.portfolio.GetRiskMetrics(ctx, user)
		if err != nil {
			j.log.WithFields(map[string]interface{}{"user": user, "error": err.Error()}).Error("risk metrics lookup failed")
			continue
		}
		portfolioValue, availableCash := decimal.Zero, decimal.Zero
		if metrics != nil {
			portfolioValue, availableCash = metrics.TotalValue, metrics.CashBalance
		}
		entries, err := j.generator.GenerateEntrySignals(ctx, user, tickers, j.filters, portfolioValue, availableCash, now)
		if err != nil {
			j.log.WithFields(map[string]interface{}{"user": user, "error": err.Error()}).Error("entry signal generation failed")
			continue
		}
		for _, sig := range entries {
			submitValid(ctx, j.validator, j.executor, j.log, sig)
		}
	}
	return nil
}

// PositionMonitorJob polls open positions for exit triggers every 15
// minutes during trading hours, gated by the market calendar.
type PositionMonitorJob struct {
	generator *signals.Generator
	validator *validate.Validator
	executor  *execution.Executor
	universe  Universe
	log       *logger.Logger
}

func NewPositionMonitorJob(generator *signals.Generator, validator *validate.Validator, executor *execution.Executor, universe Universe, log *logger.Logger) *PositionMonitorJob {
	return &PositionMonitorJob{generator: generator, validator: validator, executor: executor, universe: universe, log: log}
}

func (j *PositionMonitorJob) Name() string { return "position_monitor" }
func (j *PositionMonitorJob) Trigger() Trigger {
	return Interval(15 * time.Minute).WithWindow("09:00", "15:30").GatedBy()
}
func (j *PositionMonitorJob) GracePeriod() time.Duration { return 5 * time.Minute }

func (j *PositionMonitorJob) Run(ctx context.Context) error {
	users, err := j.universe.Users(ctx)
	if err != nil {
		return err
	}
	now := time.Now().In(seoul)
	for _, user := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		exits, err := j.generator.GenerateExitSignals(ctx, user, now)
		if err != nil {
			j.log.WithFields(map[string]interface{}{"user": user, "error": err.Error()}).Error("position monitor tick failed")
			continue
		}
		for _, sig := range exits {
			submitValid(ctx, j.validator, j.executor, j.log, sig)
		}
	}
	return nil
}

// RiskCheckJob recomputes portfolio-wide loss metrics every 30 minutes,
// independent of the market calendar since drawdown from an overnight
// gap must still trip the breaker before the open.
type RiskCheckJob struct {
	breaker  *risk.Breaker
	executor *execution.Executor
	universe Universe
	log      *logger.Logger
}

func NewRiskCheckJob(breaker *risk.Breaker, executor *execution.Executor, universe Universe, log *logger.Logger) *RiskCheckJob {
	return &RiskCheckJob{breaker: breaker, executor: executor, universe: universe, log: log}
}

func (j *RiskCheckJob) Name() string          { return "risk_check" }
func (j *RiskCheckJob) Trigger() Trigger      { return Interval(30 * time.Minute) }
func (j *RiskCheckJob) GracePeriod() time.Duration { return 5 * time.Minute }

func (j *RiskCheckJob) Run(ctx context.Context) error {
	users, err := j.universe.Users(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, liquidations, err := j.breaker.Check(ctx, user)
		if err != nil {
			j.log.WithFields(map[string]interface{}{"user": user, "error": err.Error()}).Error("risk check failed")
			continue
		}
		for _, sig := range liquidations {
			if _, err := j.executor.SubmitOrder(ctx, sig); err != nil {
				j.log.WithFields(map[string]interface{}{"signal_id": sig.SignalID, "error": err.Error()}).Error("emergency liquidation order failed")
			}
		}
	}
	return nil
}
