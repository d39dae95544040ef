package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/argus/internal/contracts"
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync [symbol...]",
	Short: "로컬 캔들 스토어 동기화",
	Long: `벤더에서 캔들/미결제약정/펀딩 데이터를 받아 로컬 스토어를 채웁니다.

심볼을 생략하면 config의 추적 심볼 전체를 동기화합니다.
이미 최신인 시리즈는 건너뜁니다.

Example:
  go run ./cmd/argus sync
  go run ./cmd/argus sync BTCUSDT
  go run ./cmd/argus sync BTCUSDT --timeframes 1h,4h`,
	RunE: runSync,
}

var syncTimeframes []string

func init() {
	rootCmd.AddCommand(syncCmd)

	// Flags
	syncCmd.Flags().StringSliceVar(&syncTimeframes, "timeframes", []string{"5m", "1h", "4h", "1d"}, "동기화할 타임프레임")
}

func runSync(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Argus Candle Sync ===")

	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.Close()

	symbols := args
	if len(symbols) == 0 {
		symbols = a.cfg.Vendor.Symbols
	}

	var tfs []contracts.Timeframe
	for _, raw := range syncTimeframes {
		tf := contracts.Timeframe(raw)
		if !tf.Valid() {
			return fmt.Errorf("invalid timeframe %q", raw)
		}
		tfs = append(tfs, tf)
	}

	ctx := context.Background()
	until := time.Now().UTC()
	failed := 0

	for _, symbol := range symbols {
		fmt.Printf("\n📊 %s\n", symbol)
		for _, result := range a.syncer.SyncAll(ctx, symbol, tfs, until) {
			if result.Error != nil {
				failed++
				PrintError(fmt.Sprintf("%-4s %v", result.Timeframe, result.Error))
				continue
			}
			fmt.Printf("   %-4s %d candles\n", result.Timeframe, result.Candles)
		}
	}

	fmt.Println()
	if failed > 0 {
		PrintWarning(fmt.Sprintf("Sync finished with %d failure(s)", failed))
		return fmt.Errorf("sync: %d timeframe(s) failed", failed)
	}
	PrintSuccess("Sync completed")
	return nil
}
