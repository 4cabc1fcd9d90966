package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kquant",
	Short: "kquant - 코스피/코스닥 알고리즘 트레이딩 엔진",
	Long: `kquant Unified CLI

포지션 사이징, 시그널 생성, 리스크 서킷 브레이커를 갖춘
페이퍼 트레이딩 엔진.

Usage:
  go run ./cmd/kquant [command]

Examples:
  go run ./cmd/kquant orchestrator start
  go run ./cmd/kquant trade submit --user u1 --ticker 005930 --side buy --qty 10
  go run ./cmd/kquant risk check --user u1
  go run ./cmd/kquant test-db
  go run ./cmd/kquant test-logger`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "development", "environment (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
