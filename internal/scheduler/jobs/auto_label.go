package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/argus/internal/outcome"
	"github.com/wonny/argus/internal/policy"
	"github.com/wonny/argus/pkg/logger"
)

// AutoLabelJob sweeps mature unlabeled replay states across all horizons.
// States that lack forward candles are skipped and retried next pass.
// ⭐ SSOT: 자동 라벨링 스케줄은 이 Job에서만
type AutoLabelJob struct {
	labeler *outcome.Labeler
	policy  *policy.Evaluation
	logger  *logger.Logger
}

// NewAutoLabelJob creates a new auto label job
func NewAutoLabelJob(labeler *outcome.Labeler, pol *policy.Evaluation, log *logger.Logger) *AutoLabelJob {
	return &AutoLabelJob{
		labeler: labeler,
		policy:  pol,
		logger:  log,
	}
}

// Name returns the job name
func (j *AutoLabelJob) Name() string {
	return "auto_label"
}

// Schedule returns the cron schedule (every 30 minutes)
func (j *AutoLabelJob) Schedule() string {
	return "0 */30 * * * *"
}

// Run labels pending states for every configured horizon
func (j *AutoLabelJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled labeling pass")

	for _, horizon := range j.policy.Horizons {
		stats, err := j.labeler.LabelPending(ctx, horizon.Name, "", 0)
		if err != nil {
			return fmt.Errorf("label horizon %s: %w", horizon.Name, err)
		}

		j.logger.WithFields(map[string]interface{}{
			"horizon": horizon.Name,
			"labeled": stats.Labeled,
			"skipped": stats.Skipped,
			"failed":  stats.Failed,
		}).Info("Horizon labeling completed")
	}

	j.logger.Info("Scheduled labeling pass completed successfully")
	return nil
}
