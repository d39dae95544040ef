package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// labelCmd represents the label command
var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "결과 라벨링 관리",
	Long: `성숙한 리플레이 상태에 실제 결과 라벨을 기록합니다.

이 명령어는:
- 호라이즌별 라벨링 실행 (CONTINUATION / REVERSAL / NOISE)
- 배치/심볼별 라벨링 커버리지 조회

라벨은 한 번 기록되면 불변입니다.

Subcommands:
  run     - 라벨링 실행
  status  - 라벨링 커버리지 조회

Example:
  go run ./cmd/argus label run --horizon medium
  go run ./cmd/argus label run --horizon short --symbol BTCUSDT --limit 200
  go run ./cmd/argus label status --batch <batch-id>`,
}

var (
	labelHorizon string
	labelSymbol  string
	labelLimit   int
	labelBatchID string

	labelRunCmd = &cobra.Command{
		Use:   "run",
		Short: "라벨링 실행",
		RunE:  runLabeling,
	}

	labelStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "라벨링 커버리지 조회",
		RunE:  showLabelStatus,
	}
)

func init() {
	rootCmd.AddCommand(labelCmd)
	labelCmd.AddCommand(labelRunCmd)
	labelCmd.AddCommand(labelStatusCmd)

	// Flags
	labelRunCmd.Flags().StringVar(&labelHorizon, "horizon", "", "평가 호라이즌 (short|medium|long, 생략 시 전체)")
	labelRunCmd.Flags().StringVar(&labelSymbol, "symbol", "", "심볼 (생략 시 전체)")
	labelRunCmd.Flags().IntVar(&labelLimit, "limit", 0, "라벨링 개수 상한 (0 = 기본값)")

	labelStatusCmd.Flags().StringVar(&labelBatchID, "batch", "", "배치 ID")
	labelStatusCmd.Flags().StringVar(&labelSymbol, "symbol", "", "심볼")
}

func runLabeling(cmd *cobra.Command, args []string) error {
	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()

	horizons := []string{labelHorizon}
	if labelHorizon == "" {
		horizons = horizons[:0]
		for _, h := range a.policy.Horizons {
			horizons = append(horizons, h.Name)
		}
	}

	for _, horizon := range horizons {
		stats, err := a.labeler.LabelPending(ctx, horizon, labelSymbol, labelLimit)
		if err != nil {
			return fmt.Errorf("label horizon %s: %w", horizon, err)
		}
		fmt.Printf("📊 %s\n", horizon)
		PrintKeyValue("Labeled", fmt.Sprintf("%d", stats.Labeled), 8)
		PrintKeyValue("Skipped", fmt.Sprintf("%d", stats.Skipped), 8)
		PrintKeyValue("Failed", fmt.Sprintf("%d", stats.Failed), 8)
		fmt.Println()
	}

	PrintSuccess("Labeling pass completed")
	return nil
}

func showLabelStatus(cmd *cobra.Command, args []string) error {
	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.Close()

	progress, err := a.states.LabelProgress(context.Background(), labelBatchID, labelSymbol)
	if err != nil {
		return fmt.Errorf("label progress: %w", err)
	}

	PrintDoubleSeparator()
	fmt.Println("  Labeling Coverage")
	PrintSeparator()
	PrintKeyValue("Completed states", fmt.Sprintf("%d", progress.Total), 16)
	PrintKeyValue("Labeled", fmt.Sprintf("%d", progress.Labeled), 16)
	PrintKeyValue("Unlabeled", fmt.Sprintf("%d", progress.Unlabeled), 16)
	if progress.Total > 0 {
		PrintKeyValue("Coverage", formatPct(float64(progress.Labeled)/float64(progress.Total)), 16)
	}
	PrintSeparator()
	return nil
}
