package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/argus/internal/api"
	"github.com/wonny/argus/internal/api/handlers"
	"github.com/wonny/argus/internal/replay"
	"github.com/wonny/argus/internal/scheduler"
	"github.com/wonny/argus/internal/scheduler/jobs"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- HTTP API 서버 시작
- 리플레이 배치 생성/실행/일시정지 엔드포인트 제공
- 라벨링 트리거 및 스코어보드 조회 제공
- 백그라운드 스케줄러(캔들 동기화, 자동 라벨링) 구동

Endpoints:
  GET  /health                          - Health check
  GET  /metrics                         - Prometheus metrics
  POST /api/replay/batches              - 배치 생성
  POST /api/replay/batches/:id/run      - 배치 실행/재개
  POST /api/replay/batches/:id/pause    - 배치 일시정지
  GET  /api/replay/batches/:id/results  - 리플레이 결과 조회
  POST /api/label/run                   - 라벨링 실행
  GET  /api/scoreboard                  - 스코어보드 조회

Example:
  go run ./cmd/argus api
  go run ./cmd/argus api --port 8091`,
	RunE: runAPIServer,
}

var (
	apiPort        string
	apiNoScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본값: config)")
	apiCmd.Flags().BoolVar(&apiNoScheduler, "no-scheduler", false, "백그라운드 스케줄러 비활성화")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Argus API Server ===")

	// 1. Wire the pipeline
	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.Close()

	// Override port if flag is set
	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	a.log.WithFields(map[string]interface{}{
		"port": a.cfg.Port,
		"env":  a.cfg.Env,
	}).Info("Initializing API server")

	// 2. Create scheduler with background jobs. Vendor-mode batches pause
	// it while they hold the shared request quota.
	var sched *scheduler.Scheduler
	if !apiNoScheduler {
		sched = scheduler.New(a.log)
		if err := sched.AddJob(jobs.NewCandleSyncJob(a.syncer, a.cfg, a.log)); err != nil {
			return fmt.Errorf("add candle sync job: %w", err)
		}
		if err := sched.AddJob(jobs.NewAutoLabelJob(a.labeler, a.policy, a.log)); err != nil {
			return fmt.Errorf("add auto label job: %w", err)
		}
	}

	// 3. Create orchestrator and handlers
	orch := a.newOrchestrator(schedControl(sched))
	replayHandler := handlers.NewReplayHandler(orch, a.registry, a.states, a.log)
	labelHandler := handlers.NewLabelHandler(a.labeler, a.states, a.log)
	scoreboardHandler := handlers.NewScoreboardHandler(a.states, a.baselines, a.policy, a.policyHash, a.log)

	// 4. Create router and server
	router := api.NewRouter(replayHandler, labelHandler, scoreboardHandler, a.log)
	server := api.New(a.cfg, a.log, router)

	// 5. Start scheduler and server
	if sched != nil {
		sched.Start()
	}

	go func() {
		if err := server.Start(); err != nil {
			a.log.WithError(err).Fatal("Failed to start server")
		}
	}()

	a.log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /metrics")
	fmt.Println("  POST /api/replay/batches")
	fmt.Println("  GET  /api/scoreboard")
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	a.log.Info("Shutting down server...")

	if sched != nil {
		sched.Stop()
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}

// schedControl avoids a typed-nil interface when the scheduler is disabled
func schedControl(sched *scheduler.Scheduler) replay.SchedulerControl {
	if sched == nil {
		return nil
	}
	return sched
}
