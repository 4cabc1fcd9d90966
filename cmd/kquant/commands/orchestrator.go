package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/minjunpark/kquant/internal/calendar"
	"github.com/minjunpark/kquant/internal/contracts"
	"github.com/minjunpark/kquant/internal/conviction"
	"github.com/minjunpark/kquant/internal/execution"
	"github.com/minjunpark/kquant/internal/monitor"
	"github.com/minjunpark/kquant/internal/orchestrator"
	"github.com/minjunpark/kquant/internal/portfolio"
	"github.com/minjunpark/kquant/internal/risk"
	"github.com/minjunpark/kquant/internal/scores"
	"github.com/minjunpark/kquant/internal/signals"
	"github.com/minjunpark/kquant/internal/sizing"
	"github.com/minjunpark/kquant/internal/validate"
	"github.com/minjunpark/kquant/pkg/config"
	"github.com/minjunpark/kquant/pkg/database"
	"github.com/minjunpark/kquant/pkg/logger"
	"github.com/minjunpark/kquant/pkg/redis"
)

// orchestratorCmd groups the daemon's job-scheduling subcommands.
var orchestratorCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "시그널 생성, 포지션 모니터링, 리스크 체크 스케줄러",
}

var orchestratorStartCmd = &cobra.Command{
	Use:   "start",
	Short: "오케스트레이터를 실행하여 등록된 작업을 스케줄대로 구동합니다",
	Long: `장 시작 전 시그널 생성, 장중 포지션 모니터링, 30분 간격 리스크
체크를 크론/인터벌 트리거로 구동하는 상주 프로세스입니다.

Example:
  go run ./cmd/kquant orchestrator start`,
	RunE: runOrchestratorStart,
}

var orchestratorStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "등록된 작업과 최근 실행 이력을 조회합니다 (start와 별도 프로세스에서는 이력이 비어 있습니다)",
	RunE:  runOrchestratorStatus,
}

func init() {
	rootCmd.AddCommand(orchestratorCmd)
	orchestratorCmd.AddCommand(orchestratorStartCmd)
	orchestratorCmd.AddCommand(orchestratorStatusCmd)
}

// minKellySamples is the fewest closed trades wireOrchestrator trusts before
// handing GetTradeStats' win rate to Kelly sizing.
const minKellySamples = 20

// wiredDeps holds every collaborator the three orchestrator jobs share,
// assembled once at process start from a single config load.
type wiredDeps struct {
	orch      *orchestrator.Orchestrator
	log       *logger.Logger
	db        *database.DB
	universe  *orchestrator.StaticUniverse
	portfolio *portfolio.Store
	prices    *scores.PriceReader
	scoreRdr  *scores.Reader
	stocks    *scores.StockReader
	validator *validate.Validator
	executor  *execution.Executor
	breaker   *risk.Breaker
}

func wireOrchestrator(cfg *config.Config, log *logger.Logger) (*wiredDeps, error) {
	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	var cache *redis.Cache
	var events contracts.EventPublisher
	if redisClient, err := redis.New(cfg); err == nil {
		cache = redis.NewCache(redisClient, "kquant")
		events = redisClient
	} else {
		log.WithError(err).Warn("redis unavailable, running without price/stock cache or alert publishing")
	}

	cal := calendar.New(2020, 2030)
	store := portfolio.NewStore(db.Pool)
	priceReader := scores.NewPriceReader(db.Pool, cache)
	scoreReader := scores.NewReader(db.Pool, cal, 0)
	stockReader := scores.NewStockReader(db.Pool, cache)

	scorer, err := conviction.NewScorer(contracts.DefaultScoreWeights())
	if err != nil {
		return nil, fmt.Errorf("build conviction scorer: %w", err)
	}
	trades := execution.NewRepository(db.Pool)

	stats, samples, err := trades.GetTradeStats(context.Background(), "default")
	if err != nil {
		log.WithError(err).Warn("trade history unavailable, Kelly sizing starts from a zero win rate")
	} else if samples < minKellySamples {
		log.WithField("samples", samples).Info("too few closed trades for Kelly sizing yet, starts from a zero win rate")
		stats = sizing.HistoricalStats{}
	}

	mon := monitor.New(store, priceReader, scoreReader, events)
	generator := signals.New(scoreReader, scorer, mon, store, priceReader, signals.EntryDefaults{
		StopLossPct:                 cfg.Signal.DefaultStopLossPct,
		TakeProfitPct:               cfg.Signal.DefaultTakeProfitPct,
		MinConvictionScore:          cfg.Risk.MinConvictionScore,
		LimitOrderDiscountPct:       1,
		UseMarketOrders:             false,
		SizingMethod:                sizing.MethodKellyHalf,
		MaxPositionSizePct:          cfg.Risk.MaxPositionSizePct,
		ScoreDeteriorationThreshold: 20,
		Stats:                       stats,
	})

	validator := validate.New(scoreReader, store, stockReader, validate.Config{
		RequireRecentDataHours:    cfg.Risk.RequireRecentDataFor.Hours(),
		MinDataQualityScore:       cfg.Risk.MinDataQualityScore,
		MaxPositions:              cfg.Risk.MaxPositions,
		MaxConcentrationPct:       cfg.Risk.MaxConcentrationPct,
		MaxSectorConcentrationPct: cfg.Risk.MaxSectorConcentration,
		MaxTotalLossPct:           cfg.Risk.MaxTotalLossPct,
		EstimatedFeeRate:          validate.DefaultConfig().EstimatedFeeRate,
	})
	broker := execution.NewPaperBroker(priceReader, cfg.Paper)
	executor := execution.NewExecutor(broker, trades, stockReader, store, log)
	breaker := risk.NewBreaker(store, risk.BreakerConfig{
		CheckInterval:   cfg.Risk.RiskCheckInterval,
		MaxTotalLossPct: cfg.Risk.MaxTotalLossPct,
		WarningLossPct:  cfg.Risk.WarningLossPct,
	}, priceReader, risk.RiskLimits{
		MaxVaR95:    cfg.Risk.MaxVaR95Pct / 100,
		MaxCVaR95:   cfg.Risk.MaxCVaR95Pct / 100,
		MaxDrawdown: risk.DefaultRiskLimits().MaxDrawdown,
	}, log)

	universe := orchestrator.NewStaticUniverse(
		[]string{"default"},
		[]string{"005930", "000660", "035420", "051910", "005380"},
	)

	orch := orchestrator.New(cal, log, cfg.Scheduler.ShutdownDeadline)

	filters := signals.EntryFilters{MinCompositeScore: cfg.Risk.MinConvictionScore, MinMomentumScore: cfg.Risk.MinMomentumScore}
	if err := orch.Register(orchestrator.NewSignalGenerationJob(generator, validator, executor, store, universe, filters, log)); err != nil {
		return nil, fmt.Errorf("register signal_generation: %w", err)
	}
	if err := orch.Register(orchestrator.NewPositionMonitorJob(generator, validator, executor, universe, log)); err != nil {
		return nil, fmt.Errorf("register position_monitor: %w", err)
	}
	if err := orch.Register(orchestrator.NewRiskCheckJob(breaker, executor, universe, log)); err != nil {
		return nil, fmt.Errorf("register risk_check: %w", err)
	}

	return &wiredDeps{
		orch: orch, log: log, db: db, universe: universe, portfolio: store,
		prices: priceReader, scoreRdr: scoreReader, stocks: stockReader,
		validator: validator, executor: executor, breaker: breaker,
	}, nil
}

func runOrchestratorStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return configErrorf("load config: %w", err)
	}
	log := logger.New(cfg)

	deps, err := wireOrchestrator(cfg, log)
	if err != nil {
		return err
	}
	defer deps.db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := deps.orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	log.Info("orchestrator started, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, draining in-flight jobs")
	deps.orch.Stop()
	return nil
}

func runOrchestratorStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return configErrorf("load config: %w", err)
	}
	log := logger.New(cfg)

	deps, err := wireOrchestrator(cfg, log)
	if err != nil {
		return err
	}
	defer deps.db.Close()

	widths := []int{20, 20}
	PrintTableHeader([]string{"job", "status"}, widths)
	for _, name := range []string{"signal_generation", "position_monitor", "risk_check"} {
		results, err := deps.orch.History(name)
		if err != nil {
			PrintTableRow([]string{name, "registered, no history yet"}, widths)
			continue
		}
		PrintTableRow([]string{name, fmt.Sprintf("%d recorded runs", len(results))}, widths)
	}
	return nil
}
