package commands

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/argus/internal/contracts"
	"github.com/wonny/argus/internal/scoreboard"
)

// scoreboardCmd represents the scoreboard command
var scoreboardCmd = &cobra.Command{
	Use:   "scoreboard",
	Short: "스코어보드 및 베이스라인 관리",
	Long: `라벨된 리플레이 상태를 집계하여 판단 품질을 보여줍니다.

이 명령어는:
- 바이어스/신뢰도 버킷/레짐/시나리오별 정확도 집계
- 캘리브레이션(신뢰도 단조성) 검사
- WAIT 유효성 및 실패 원인 분류
- 튜닝 전후 비교를 위한 베이스라인 저장/비교

Subcommands:
  show      - 스코어보드 출력
  baseline  - 베이스라인 save/list/diff

Example:
  go run ./cmd/argus scoreboard show --symbol BTCUSDT
  go run ./cmd/argus scoreboard baseline save before-tuning
  go run ./cmd/argus scoreboard baseline diff <baseline-id>`,
}

var (
	sbBatchID string
	sbSymbol  string
	sbFrom    string
	sbTo      string

	scoreboardShowCmd = &cobra.Command{
		Use:   "show",
		Short: "스코어보드 출력",
		RunE:  showScoreboard,
	}

	baselineCmd = &cobra.Command{
		Use:   "baseline",
		Short: "베이스라인 관리",
	}

	baselineSaveCmd = &cobra.Command{
		Use:   "save [name]",
		Short: "현재 스코어보드 지표를 베이스라인으로 저장",
		Args:  cobra.ExactArgs(1),
		RunE:  saveBaseline,
	}

	baselineListCmd = &cobra.Command{
		Use:   "list",
		Short: "저장된 베이스라인 목록",
		RunE:  listBaselines,
	}

	baselineDiffCmd = &cobra.Command{
		Use:   "diff [baseline_id]",
		Short: "현재 스코어보드와 베이스라인 비교",
		Args:  cobra.ExactArgs(1),
		RunE:  diffBaseline,
	}
)

func init() {
	rootCmd.AddCommand(scoreboardCmd)
	scoreboardCmd.AddCommand(scoreboardShowCmd)
	scoreboardCmd.AddCommand(baselineCmd)
	baselineCmd.AddCommand(baselineSaveCmd)
	baselineCmd.AddCommand(baselineListCmd)
	baselineCmd.AddCommand(baselineDiffCmd)

	// Shared filter flags
	for _, c := range []*cobra.Command{scoreboardShowCmd, baselineSaveCmd, baselineDiffCmd} {
		c.Flags().StringVar(&sbBatchID, "batch", "", "배치 ID 필터")
		c.Flags().StringVar(&sbSymbol, "symbol", "", "심볼 필터")
		c.Flags().StringVar(&sbFrom, "from", "", "as-of 시작 (RFC3339)")
		c.Flags().StringVar(&sbTo, "to", "", "as-of 끝 (RFC3339)")
	}
}

// buildScoreboard aggregates labeled states matching the CLI filter
func buildScoreboard(a *app) (*contracts.ScoreboardReport, error) {
	filter := contracts.StateFilter{
		BatchID:     sbBatchID,
		Symbol:      sbSymbol,
		LabeledOnly: true,
	}
	if sbFrom != "" {
		t, err := time.Parse(time.RFC3339, sbFrom)
		if err != nil {
			return nil, fmt.Errorf("parse --from: %w", err)
		}
		filter.From = t
	}
	if sbTo != "" {
		t, err := time.Parse(time.RFC3339, sbTo)
		if err != nil {
			return nil, fmt.Errorf("parse --to: %w", err)
		}
		filter.To = t
	}

	states, err := a.states.List(context.Background(), filter)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	return scoreboard.BuildReport(states, a.policy, a.policyHash), nil
}

func showScoreboard(cmd *cobra.Command, args []string) error {
	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := buildScoreboard(a)
	if err != nil {
		return err
	}

	PrintDoubleSeparator()
	fmt.Println("  Argus Scoreboard")
	PrintSeparator()
	PrintKeyValue("Samples", fmt.Sprintf("%d", report.SampleCount), 18)
	PrintKeyValue("Overall accuracy", formatPct(report.OverallAccuracy), 18)
	PrintKeyValue("Policy hash", shortHash(report.PolicyHash), 18)
	PrintSeparator()

	if report.SampleCount == 0 {
		PrintInfo("No labeled samples match the filter")
		return nil
	}

	// Accuracy by bias
	fmt.Println("\n📊 By bias")
	for _, bias := range []contracts.Bias{contracts.BiasLong, contracts.BiasShort, contracts.BiasWait} {
		group, ok := report.ByBias[bias]
		if !ok {
			continue
		}
		printGroup(string(bias), group)
	}

	// Calibration
	fmt.Println("\n📊 Confidence calibration")
	for _, b := range report.ByBucket {
		fmt.Printf("   %-8s %4d samples  accuracy %s\n", b.Bucket, b.Total, formatPct(b.Accuracy))
	}
	if report.Calibration.Monotonic {
		PrintSuccess("Calibration monotonic")
	} else {
		PrintWarning("Calibration NOT monotonic — confidence is misleading")
	}

	// Regime / scenario
	fmt.Println("\n📊 By regime")
	for _, key := range sortedKeys(report.ByRegime) {
		printGroup(key, report.ByRegime[key])
	}
	fmt.Println("\n📊 By scenario")
	for _, key := range sortedKeys(report.ByScenario) {
		printGroup(key, report.ByScenario[key])
	}

	// Wait effectiveness
	fmt.Println("\n📊 WAIT effectiveness")
	PrintKeyValue("Wait avg |move|", fmt.Sprintf("%.2f%%", report.Wait.WaitAvgAbsMovePct), 18)
	PrintKeyValue("Directional", fmt.Sprintf("%.2f%%", report.Wait.DirectionalAvgAbsMovePct), 18)
	PrintKeyValue("Ratio", fmt.Sprintf("%.2f", report.Wait.Ratio), 18)
	if report.Wait.Inverted {
		PrintWarning("WAIT effectiveness inverted — WAIT is filtering out good opportunities")
	}

	// Alignment
	fmt.Println("\n📊 Timeframe alignment")
	printGroup("aligned", report.Alignment.Aligned)
	printGroup("conflicted", report.Alignment.Conflicted)

	// Failures
	if len(report.Failures) > 0 {
		fmt.Println("\n📊 Failure categories (REVERSAL on directional calls)")
		for _, cat := range []contracts.FailureCategory{
			contracts.FailureRegimeMisread,
			contracts.FailureContradictingSignals,
			contracts.FailureHorizonConflict,
			contracts.FailureUnknown,
		} {
			if n := report.Failures[cat]; n > 0 {
				fmt.Printf("   %-24s %d\n", cat, n)
			}
		}
	}

	return nil
}

// printGroup prints one accuracy group, flagging thin samples
func printGroup(name string, g contracts.GroupAccuracy) {
	suffix := ""
	if !g.Reported {
		suffix = "  (thin sample, not reported)"
	}
	fmt.Printf("   %-14s %4d samples  accuracy %s%s\n", name, g.Total, formatPct(g.Accuracy), suffix)
}

func saveBaseline(cmd *cobra.Command, args []string) error {
	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := buildScoreboard(a)
	if err != nil {
		return err
	}

	baseline := &contracts.Baseline{
		Name:       args[0],
		PolicyHash: a.policyHash,
		Metrics:    scoreboard.Metrics(report),
	}
	id, err := a.baselines.Save(context.Background(), baseline)
	if err != nil {
		return fmt.Errorf("save baseline: %w", err)
	}

	PrintSuccess(fmt.Sprintf("Baseline %q saved: %s", args[0], id))
	PrintKeyValue("Samples", fmt.Sprintf("%d", baseline.Metrics.SampleCount), 16)
	PrintKeyValue("Overall", formatPct(baseline.Metrics.OverallAccuracy), 16)
	return nil
}

func listBaselines(cmd *cobra.Command, args []string) error {
	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.Close()

	baselines, err := a.baselines.List(context.Background())
	if err != nil {
		return fmt.Errorf("list baselines: %w", err)
	}

	if len(baselines) == 0 {
		PrintInfo("No baselines saved")
		return nil
	}

	widths := []int{36, 20, 20, 10, 10}
	PrintTableHeader([]string{"ID", "NAME", "CREATED", "SAMPLES", "OVERALL"}, widths)
	for _, b := range baselines {
		PrintTableRow([]string{
			b.ID,
			b.Name,
			b.CreatedAt.Format("2006-01-02 15:04"),
			fmt.Sprintf("%d", b.Metrics.SampleCount),
			formatPct(b.Metrics.OverallAccuracy),
		}, widths)
	}
	return nil
}

func diffBaseline(cmd *cobra.Command, args []string) error {
	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.Close()

	baseline, err := a.baselines.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("get baseline: %w", err)
	}

	report, err := buildScoreboard(a)
	if err != nil {
		return err
	}
	diff := scoreboard.Diff(scoreboard.Metrics(report), baseline)

	PrintDoubleSeparator()
	fmt.Printf("  Current vs baseline %q\n", baseline.Name)
	PrintSeparator()
	widths := []int{26, 10, 10, 10}
	PrintTableHeader([]string{"METRIC", "BASELINE", "CURRENT", "DELTA"}, widths)
	for _, d := range diff.Deltas {
		PrintTableRow([]string{
			d.Metric,
			fmt.Sprintf("%.3f", d.Baseline),
			fmt.Sprintf("%.3f", d.Current),
			fmt.Sprintf("%+.3f", d.Delta),
		}, widths)
	}
	PrintSeparator()

	switch diff.Verdict {
	case "improved":
		PrintSuccess("Verdict: improved")
	case "declined":
		PrintError("Verdict: declined")
	case "mixed":
		PrintWarning("Verdict: mixed")
	default:
		PrintInfo("Verdict: unchanged")
	}
	return nil
}

// sortedKeys returns map keys in stable order for printing
func sortedKeys(m map[string]contracts.GroupAccuracy) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// shortHash truncates a policy hash for display
func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
