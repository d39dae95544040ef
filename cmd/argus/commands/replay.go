package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/argus/internal/contracts"
	"github.com/wonny/argus/internal/replay"
)

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "리플레이 배치 관리",
	Long: `과거 구간에 대한 리플레이 배치를 생성하고 실행합니다.

이 명령어는:
- 배치 생성 (구간을 스텝 간격의 샘플로 분할)
- 배치 실행/재개 (완료된 샘플은 재실행하지 않음)
- 배치 일시정지 및 진행 상황 조회

Subcommands:
  create   - 배치 생성
  run      - 배치 실행 (PAUSED 배치 재개 포함)
  pause    - 실행 중인 배치 일시정지
  status   - 배치 진행 상황 조회
  results  - 리플레이 결과(상태) 조회
  failures - 실패 샘플만 조회
  list     - 전체 배치 목록

Example:
  go run ./cmd/argus replay create BTCUSDT --start 2025-01-01T00:00:00Z --end 2025-02-01T00:00:00Z --step 4h
  go run ./cmd/argus replay run <batch-id>
  go run ./cmd/argus replay status <batch-id>`,
}

var (
	replayStart      string
	replayEnd        string
	replayStep       string
	replayMaxSamples int
	replayMode       string
	replayRunNow     bool
	replayLimit      int
	replayOffset     int

	replayCreateCmd = &cobra.Command{
		Use:   "create [symbol]",
		Short: "배치 생성",
		Args:  cobra.ExactArgs(1),
		RunE:  createReplayBatch,
	}

	replayRunCmd = &cobra.Command{
		Use:   "run [batch_id]",
		Short: "배치 실행/재개",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplayBatch,
	}

	replayPauseCmd = &cobra.Command{
		Use:   "pause [batch_id]",
		Short: "배치 일시정지",
		Args:  cobra.ExactArgs(1),
		RunE:  pauseReplayBatch,
	}

	replayStatusCmd = &cobra.Command{
		Use:   "status [batch_id]",
		Short: "배치 진행 상황 조회",
		Args:  cobra.ExactArgs(1),
		RunE:  showReplayStatus,
	}

	replayResultsCmd = &cobra.Command{
		Use:   "results [batch_id]",
		Short: "리플레이 결과 조회",
		Args:  cobra.ExactArgs(1),
		RunE:  showReplayResults,
	}

	replayFailuresCmd = &cobra.Command{
		Use:   "failures [batch_id]",
		Short: "실패 샘플 조회",
		Args:  cobra.ExactArgs(1),
		RunE:  showReplayFailures,
	}

	replayListCmd = &cobra.Command{
		Use:   "list",
		Short: "전체 배치 목록",
		RunE:  listReplayBatches,
	}
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.AddCommand(replayCreateCmd)
	replayCmd.AddCommand(replayRunCmd)
	replayCmd.AddCommand(replayPauseCmd)
	replayCmd.AddCommand(replayStatusCmd)
	replayCmd.AddCommand(replayResultsCmd)
	replayCmd.AddCommand(replayFailuresCmd)
	replayCmd.AddCommand(replayListCmd)

	// Flags
	replayCreateCmd.Flags().StringVar(&replayStart, "start", "", "구간 시작 (RFC3339)")
	replayCreateCmd.Flags().StringVar(&replayEnd, "end", "", "구간 끝 (RFC3339)")
	replayCreateCmd.Flags().StringVar(&replayStep, "step", "4h", "샘플 간격 (Go duration)")
	replayCreateCmd.Flags().IntVar(&replayMaxSamples, "max-samples", 0, "샘플 수 상한 (0 = 제한 없음)")
	replayCreateCmd.Flags().StringVar(&replayMode, "mode", "LOCAL", "데이터 소스 (LOCAL|VENDOR_FALLBACK)")
	replayCreateCmd.Flags().BoolVar(&replayRunNow, "run", false, "생성 직후 실행")
	replayCreateCmd.MarkFlagRequired("start")
	replayCreateCmd.MarkFlagRequired("end")

	replayResultsCmd.Flags().IntVar(&replayLimit, "limit", 20, "출력 개수")
	replayResultsCmd.Flags().IntVar(&replayOffset, "offset", 0, "출력 오프셋")
}

func createReplayBatch(cmd *cobra.Command, args []string) error {
	symbol := args[0]

	start, err := time.Parse(time.RFC3339, replayStart)
	if err != nil {
		return fmt.Errorf("parse --start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, replayEnd)
	if err != nil {
		return fmt.Errorf("parse --end: %w", err)
	}
	step, err := time.ParseDuration(replayStep)
	if err != nil {
		return fmt.Errorf("parse --step: %w", err)
	}

	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.Close()

	orch := a.newOrchestrator(nil)
	ctx := context.Background()

	batch, err := orch.CreateBatch(ctx, replay.CreateBatchRequest{
		Symbol:     symbol,
		Start:      start,
		End:        end,
		Step:       step,
		MaxSamples: replayMaxSamples,
		Mode:       contracts.DataSourceMode(replayMode),
	})
	if err != nil {
		return fmt.Errorf("create batch: %w", err)
	}

	PrintSuccess(fmt.Sprintf("Batch created: %s", batch.ID))
	PrintKeyValue("Symbol", batch.Symbol, 10)
	PrintKeyValue("Samples", fmt.Sprintf("%d", len(batch.Samples)), 10)
	PrintKeyValue("Mode", string(batch.Mode), 10)

	if replayRunNow {
		return driveBatch(ctx, orch, batch.ID)
	}

	fmt.Printf("\nRun it with: go run ./cmd/argus replay run %s\n", batch.ID)
	return nil
}

func runReplayBatch(cmd *cobra.Command, args []string) error {
	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.Close()

	orch := a.newOrchestrator(nil)
	return driveBatch(context.Background(), orch, args[0])
}

// driveBatch runs a batch to a terminal or paused status and prints the summary
func driveBatch(ctx context.Context, orch *replay.Orchestrator, batchID string) error {
	fmt.Printf("Running batch %s ...\n", batchID)

	batch, err := orch.Run(ctx, batchID)
	if err != nil {
		return fmt.Errorf("run batch: %w", err)
	}

	fmt.Println()
	switch batch.Status {
	case contracts.BatchCompleted:
		PrintSuccess(fmt.Sprintf("Batch %s completed", batch.ID))
	case contracts.BatchPaused:
		PrintWarning(fmt.Sprintf("Batch %s paused", batch.ID))
	default:
		PrintError(fmt.Sprintf("Batch %s %s: %s", batch.ID, batch.Status, batch.Error))
	}
	PrintKeyValue("Completed", fmt.Sprintf("%d/%d", batch.Completed, len(batch.Samples)), 10)
	PrintKeyValue("Failed", fmt.Sprintf("%d", batch.Failed), 10)
	return nil
}

func pauseReplayBatch(cmd *cobra.Command, args []string) error {
	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.Close()

	orch := a.newOrchestrator(nil)
	if err := orch.Pause(context.Background(), args[0]); err != nil {
		return fmt.Errorf("pause batch: %w", err)
	}

	PrintSuccess("Pause requested (honored at the next sample boundary)")
	return nil
}

func showReplayStatus(cmd *cobra.Command, args []string) error {
	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.Close()

	batch, err := a.registry.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("get batch: %w", err)
	}

	PrintDoubleSeparator()
	fmt.Printf("  Batch %s\n", batch.ID)
	PrintSeparator()
	PrintKeyValue("Symbol", batch.Symbol, 10)
	PrintKeyValue("Status", string(batch.Status), 10)
	PrintKeyValue("Mode", string(batch.Mode), 10)
	PrintKeyValue("Range", fmt.Sprintf("%s ~ %s", batch.Start.Format(time.RFC3339), batch.End.Format(time.RFC3339)), 10)
	PrintKeyValue("Step", batch.Step.String(), 10)
	PrintKeyValue("Samples", fmt.Sprintf("%d", len(batch.Samples)), 10)
	PrintKeyValue("Completed", fmt.Sprintf("%d", batch.Completed), 10)
	PrintKeyValue("Failed", fmt.Sprintf("%d", batch.Failed), 10)
	if batch.Error != "" {
		PrintKeyValue("Error", batch.Error, 10)
	}
	PrintSeparator()
	return nil
}

func showReplayResults(cmd *cobra.Command, args []string) error {
	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.Close()

	states, err := a.states.List(context.Background(), contracts.StateFilter{BatchID: args[0]})
	if err != nil {
		return fmt.Errorf("list states: %w", err)
	}

	total := len(states)
	offset := replayOffset
	if offset > total {
		offset = total
	}
	end := offset + replayLimit
	if end > total {
		end = total
	}
	states = states[offset:end]

	fmt.Printf("Results %d-%d of %d\n\n", offset, end, total)
	widths := []int{22, 6, 6, 12, 10, 14}
	PrintTableHeader([]string{"AS OF", "BIAS", "CONF", "PRICE", "STATUS", "LABEL"}, widths)
	for _, s := range states {
		label := "-"
		if s.Labeled() {
			label = string(s.Outcome.Label)
		}
		PrintTableRow([]string{
			s.AsOf.Format("2006-01-02 15:04"),
			string(s.Decision.Bias),
			fmt.Sprintf("%.1f", s.Decision.Confidence),
			fmt.Sprintf("%.2f", s.Price),
			string(s.Status),
			label,
		}, widths)
	}
	return nil
}

func showReplayFailures(cmd *cobra.Command, args []string) error {
	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.Close()

	batch, err := a.registry.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("get batch: %w", err)
	}

	count := 0
	for _, s := range batch.Samples {
		if s.Status != contracts.SampleFailed && s.Status != contracts.SampleInsufficientData {
			continue
		}
		count++
		fmt.Printf("❌ %s  %s\n   %s\n", s.AsOf.Format(time.RFC3339), s.Status, s.Error)
	}

	if count == 0 {
		PrintSuccess("No failed samples")
	} else {
		fmt.Printf("\n%d failed sample(s)\n", count)
	}
	return nil
}

func listReplayBatches(cmd *cobra.Command, args []string) error {
	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.Close()

	batches, err := a.registry.List(context.Background())
	if err != nil {
		return fmt.Errorf("list batches: %w", err)
	}

	if len(batches) == 0 {
		PrintInfo("No batches")
		return nil
	}

	widths := []int{36, 10, 10, 16, 10}
	PrintTableHeader([]string{"ID", "SYMBOL", "STATUS", "PROGRESS", "MODE"}, widths)
	for _, b := range batches {
		PrintTableRow([]string{
			b.ID,
			b.Symbol,
			string(b.Status),
			fmt.Sprintf("%d/%d", b.Completed, len(b.Samples)),
			string(b.Mode),
		}, widths)
	}
	return nil
}
