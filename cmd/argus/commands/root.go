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
	Use:   "argus",
	Short: "Argus - 바이어스 판단 리플레이 & 평가 파이프라인",
	Long: `Argus Unified CLI

과거 시점 그대로 판단 엔진을 재실행하고, 실제 결과로 라벨링하여
판단 품질을 집계하는 평가 파이프라인.

Usage:
  go run ./cmd/argus [command]

Examples:
  go run ./cmd/argus api
  go run ./cmd/argus replay create BTCUSDT --start 2025-01-01T00:00:00Z --end 2025-02-01T00:00:00Z --step 4h
  go run ./cmd/argus label run --horizon medium
  go run ./cmd/argus scoreboard show`,
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
