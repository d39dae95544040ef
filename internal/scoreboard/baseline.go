package scoreboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/argus/internal/contracts"
)

// BaselineRepository persists named metric snapshots in Postgres.
// ⭐ SSOT: 베이스라인 영속화는 여기서만
type BaselineRepository struct {
	pool *pgxpool.Pool
}

// NewBaselineRepository creates a new baseline repository
func NewBaselineRepository(pool *pgxpool.Pool) *BaselineRepository {
	return &BaselineRepository{pool: pool}
}

// Save stores a baseline and returns its ID
func (r *BaselineRepository) Save(ctx context.Context, baseline *contracts.Baseline) (string, error) {
	if baseline.Name == "" {
		return "", fmt.Errorf("%w: baseline name required", contracts.ErrValidation)
	}

	metricsJSON, err := json.Marshal(baseline.Metrics)
	if err != nil {
		return "", fmt.Errorf("%w: marshal metrics: %v", contracts.ErrPersistence, err)
	}

	id := baseline.ID
	if id == "" {
		id = uuid.New().String()
	}

	query := `
		INSERT INTO replay.baselines (id, name, policy_hash, metrics, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	if _, err := r.pool.Exec(ctx, query, id, baseline.Name, baseline.PolicyHash, metricsJSON); err != nil {
		return "", fmt.Errorf("%w: save baseline: %v", contracts.ErrPersistence, err)
	}
	return id, nil
}

// Get returns one baseline by ID, or ErrNotFound
func (r *BaselineRepository) Get(ctx context.Context, id string) (*contracts.Baseline, error) {
	query := `
		SELECT id, name, policy_hash, metrics, created_at
		FROM replay.baselines
		WHERE id = $1
	`

	var baseline contracts.Baseline
	var metricsJSON []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&baseline.ID, &baseline.Name, &baseline.PolicyHash, &metricsJSON, &baseline.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get baseline: %v", contracts.ErrPersistence, err)
	}
	if err := json.Unmarshal(metricsJSON, &baseline.Metrics); err != nil {
		return nil, fmt.Errorf("%w: unmarshal metrics: %v", contracts.ErrPersistence, err)
	}
	return &baseline, nil
}

// List returns all baselines, newest first
func (r *BaselineRepository) List(ctx context.Context) ([]*contracts.Baseline, error) {
	query := `
		SELECT id, name, policy_hash, metrics, created_at
		FROM replay.baselines
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list baselines: %v", contracts.ErrPersistence, err)
	}
	defer rows.Close()

	var baselines []*contracts.Baseline
	for rows.Next() {
		var baseline contracts.Baseline
		var metricsJSON []byte
		if err := rows.Scan(&baseline.ID, &baseline.Name, &baseline.PolicyHash, &metricsJSON, &baseline.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan baseline: %v", contracts.ErrPersistence, err)
		}
		if err := json.Unmarshal(metricsJSON, &baseline.Metrics); err != nil {
			return nil, fmt.Errorf("%w: unmarshal metrics: %v", contracts.ErrPersistence, err)
		}
		baselines = append(baselines, &baseline)
	}
	return baselines, rows.Err()
}

// deltaEpsilon: accuracy shifts below this are treated as unchanged
const deltaEpsilon = 0.005

// Diff compares current report metrics against a saved baseline.
// Verdict: 모든 지표 개선 → improved, 모두 악화 → declined,
// 변화 없음 → unchanged, 그 외 → mixed.
func Diff(current contracts.BaselineMetrics, baseline *contracts.Baseline) contracts.BaselineDiff {
	diff := contracts.BaselineDiff{
		BaselineID:   baseline.ID,
		BaselineName: baseline.Name,
	}

	// The wait ratio follows the inversion rule: below the threshold WAIT
	// is filtering out good opportunities, so a higher ratio is better.
	type metric struct {
		name         string
		baseline     float64
		current      float64
		higherBetter bool
	}
	metrics := []metric{
		{"overall_accuracy", baseline.Metrics.OverallAccuracy, current.OverallAccuracy, true},
		{"directional_accuracy", baseline.Metrics.DirectionalAccuracy, current.DirectionalAccuracy, true},
		{"wait_accuracy", baseline.Metrics.WaitAccuracy, current.WaitAccuracy, true},
		{"high_confidence_accuracy", baseline.Metrics.HighConfidenceAccuracy, current.HighConfidenceAccuracy, true},
		{"wait_effectiveness_ratio", baseline.Metrics.WaitEffectivenessRatio, current.WaitEffectivenessRatio, true},
	}

	improved, declined := 0, 0
	for _, m := range metrics {
		delta := m.current - m.baseline
		diff.Deltas = append(diff.Deltas, contracts.MetricDelta{
			Metric:   m.name,
			Baseline: m.baseline,
			Current:  m.current,
			Delta:    delta,
		})

		if math.Abs(delta) < deltaEpsilon {
			continue
		}
		better := delta > 0
		if !m.higherBetter {
			better = !better
		}
		if better {
			improved++
		} else {
			declined++
		}
	}

	switch {
	case improved > 0 && declined == 0:
		diff.Verdict = "improved"
	case declined > 0 && improved == 0:
		diff.Verdict = "declined"
	case improved == 0 && declined == 0:
		diff.Verdict = "unchanged"
	default:
		diff.Verdict = "mixed"
	}
	return diff
}
