package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/minjunpark/kquant/pkg/config"
	"github.com/minjunpark/kquant/pkg/logger"
)

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "리스크 서킷 브레이커 점검",
}

var riskCheckUser string

var riskCheckCmd = &cobra.Command{
	Use:   "check --user <user>",
	Short: "지정한 사용자에 대해 즉시 서킷 브레이커를 점검합니다",
	Long: `RiskCheckJob이 30분마다 자동으로 수행하는 것과 동일한 점검을
즉시 실행합니다. 손절 한도를 넘었다면 청산 시그널을 검증기 없이
바로 체결까지 제출합니다.

Example:
  go run ./cmd/kquant risk check --user u1`,
	RunE: runRiskCheck,
}

func init() {
	rootCmd.AddCommand(riskCmd)
	riskCmd.AddCommand(riskCheckCmd)

	riskCheckCmd.Flags().StringVar(&riskCheckUser, "user", "", "user id (required)")
	_ = riskCheckCmd.MarkFlagRequired("user")
}

func runRiskCheck(cmd *cobra.Command, args []string) error {
	if riskCheckUser == "" {
		return fmt.Errorf("--user is required")
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
	result, liquidations, err := deps.breaker.Check(ctx, riskCheckUser)
	if err != nil {
		return fmt.Errorf("check breaker: %w", err)
	}

	const keyWidth = 18
	PrintDoubleSeparator()
	PrintKeyValue("portfolio value", fmt.Sprintf("%.2f", result.PortfolioValue), keyWidth)
	PrintKeyValue("peak value", fmt.Sprintf("%.2f", result.PeakValue), keyWidth)
	PrintKeyValue("current drawdown", fmt.Sprintf("%.2f%%", result.CurrentDrawdown), keyWidth)
	PrintKeyValue("loss from initial", fmt.Sprintf("%.2f%%", result.TotalLossFromInitialPct), keyWidth)
	PrintKeyValue("warning", fmt.Sprintf("%v", result.Warning), keyWidth)
	PrintKeyValue("halted", fmt.Sprintf("%v", result.Halted), keyWidth)
	if result.RiskChecked {
		PrintKeyValue("VaR 95%", fmt.Sprintf("%.2f%%", result.VaR95*100), keyWidth)
		PrintKeyValue("CVaR 95%", fmt.Sprintf("%.2f%%", result.CVaR95*100), keyWidth)
		if len(result.RiskViolations) > 0 {
			PrintWarning("risk violations detected")
			PrintList(result.RiskViolations)
		}
	} else {
		PrintKeyValue("VaR/CVaR", "skipped (no return series provider wired)", keyWidth)
	}
	PrintSeparator()

	if len(liquidations) == 0 {
		PrintInfo("no emergency liquidation triggered")
		return nil
	}

	for _, sig := range liquidations {
		trade, err := deps.executor.SubmitOrder(ctx, sig)
		if err != nil {
			log.WithError(err).WithField("ticker", sig.Ticker).Error("emergency liquidation failed")
			PrintError(fmt.Sprintf("liquidation failed for %s: %v", sig.Ticker, err))
			continue
		}
		PrintSuccess(fmt.Sprintf("liquidated %s x%d @ %s (order %s)", sig.Ticker, sig.RecommendedShares, trade.ExecutedPrice.String(), trade.OrderID))
	}
	return nil
}
