package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/argus/internal/contracts"
	"github.com/wonny/argus/internal/marketdata"
	"github.com/wonny/argus/pkg/config"
	"github.com/wonny/argus/pkg/logger"
)

// CandleSyncJob keeps the local candle store current for all tracked
// symbols so replay batches can run in LOCAL mode.
// ⭐ SSOT: 캔들 동기화 스케줄은 이 Job에서만
type CandleSyncJob struct {
	sync   *marketdata.SyncService
	config *config.Config
	logger *logger.Logger
}

// NewCandleSyncJob creates a new candle sync job
func NewCandleSyncJob(sync *marketdata.SyncService, cfg *config.Config, log *logger.Logger) *CandleSyncJob {
	return &CandleSyncJob{
		sync:   sync,
		config: cfg,
		logger: log,
	}
}

// Name returns the job name
func (j *CandleSyncJob) Name() string {
	return "candle_sync"
}

// Schedule returns the cron schedule (five minutes past every hour,
// after the hourly candle has closed)
func (j *CandleSyncJob) Schedule() string {
	return "0 5 * * * *"
}

// Run executes the candle sync for all tracked symbols
func (j *CandleSyncJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled candle sync")

	timeframes := []contracts.Timeframe{
		contracts.Timeframe5m,
		contracts.Timeframe1h,
		contracts.Timeframe4h,
		contracts.Timeframe1d,
	}
	until := time.Now().UTC()

	var failed int
	for _, symbol := range j.config.Vendor.Symbols {
		for _, result := range j.sync.SyncAll(ctx, symbol, timeframes, until) {
			if result.Error != nil {
				failed++
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("candle sync: %d timeframe(s) failed", failed)
	}

	j.logger.Info("Scheduled candle sync completed successfully")
	return nil
}
