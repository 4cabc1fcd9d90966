package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/minjunpark/kquant/internal/contracts"
	"github.com/minjunpark/kquant/pkg/config"
	"github.com/minjunpark/kquant/pkg/logger"
)

var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "수동 시그널 제출",
}

var (
	tradeUser   string
	tradeTicker string
	tradeSide   string
	tradeQty    int64
)

var tradeSubmitCmd = &cobra.Command{
	Use:   "submit --user <user> --ticker <code> --side buy|sell --qty <shares>",
	Short: "검증 파이프라인을 거쳐 수동으로 시그널을 하나 제출합니다",
	Long: `현재가를 조회하고, 시장가 매수/매도 시그널을 만들어 Validator ->
Executor 파이프라인에 그대로 통과시킵니다. 자동 생성 없이 운영자가
직접 개입해야 하는 상황(예: 수동 리밸런싱)을 위한 명령입니다.

Example:
  go run ./cmd/kquant trade submit --user u1 --ticker 005930 --side buy --qty 10`,
	RunE: runTradeSubmit,
}

func init() {
	rootCmd.AddCommand(tradeCmd)
	tradeCmd.AddCommand(tradeSubmitCmd)

	tradeSubmitCmd.Flags().StringVar(&tradeUser, "user", "", "user id (required)")
	tradeSubmitCmd.Flags().StringVar(&tradeTicker, "ticker", "", "6-digit ticker (required)")
	tradeSubmitCmd.Flags().StringVar(&tradeSide, "side", "", "buy or sell (required)")
	tradeSubmitCmd.Flags().Int64Var(&tradeQty, "qty", 0, "share count (required)")
	_ = tradeSubmitCmd.MarkFlagRequired("user")
	_ = tradeSubmitCmd.MarkFlagRequired("ticker")
	_ = tradeSubmitCmd.MarkFlagRequired("side")
	_ = tradeSubmitCmd.MarkFlagRequired("qty")
}

func runTradeSubmit(cmd *cobra.Command, args []string) error {
	if tradeUser == "" || tradeTicker == "" || tradeQty <= 0 {
		return fmt.Errorf("--user, --ticker and a positive --qty are required")
	}

	var kind contracts.SignalKind
	switch tradeSide {
	case "buy":
		kind = contracts.SignalEntryBuy
	case "sell":
		kind = contracts.SignalExitSell
	default:
		return fmt.Errorf("--side must be buy or sell, got %q", tradeSide)
	}

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

	ctx := context.Background()
	price, err := deps.prices.GetPrice(ctx, tradeTicker)
	if err != nil {
		return fmt.Errorf("look up current price: %w", err)
	}

	sig := contracts.TradingSignal{
		SignalID:          fmt.Sprintf("manual-%s-%s-%d", tradeUser, tradeTicker, time.Now().Unix()),
		Kind:              kind,
		User:              tradeUser,
		Ticker:            tradeTicker,
		GeneratedAt:       time.Now(),
		CurrentPrice:      price,
		RecommendedShares: tradeQty,
		OrderType:         contracts.OrderTypeMarket,
		Urgency:           contracts.UrgencyNormal,
		Strength:          contracts.StrengthModerate,
		Reasons:           []string{"manual submission via CLI"},
		Valid:             true,
	}

	validated, err := deps.validator.Validate(ctx, sig)
	if err != nil {
		return fmt.Errorf("validate signal: %w", err)
	}
	if !validated.Valid {
		PrintWarning(fmt.Sprintf("signal rejected: %s", validated.RejectionReason))
		return nil
	}

	trade, err := deps.executor.SubmitOrder(ctx, validated)
	if err != nil {
		return fmt.Errorf("submit order: %w", err)
	}

	PrintSuccess(fmt.Sprintf("order submitted: %s %s x%d @ %s (order %s)",
		tradeSide, tradeTicker, tradeQty, trade.ExecutedPrice.String(), trade.OrderID))
	return nil
}
