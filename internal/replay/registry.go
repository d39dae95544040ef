package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/argus/internal/contracts"
)

// PostgresRegistry is the durable batch registry; batches survive
// process restarts so PAUSED work can be resumed later.
// ⭐ SSOT: 배치 영속화는 여기서만
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry creates a new durable batch registry
func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

// Put upserts the full batch document
func (r *PostgresRegistry) Put(ctx context.Context, batch *contracts.ReplayBatch) error {
	samplesJSON, err := json.Marshal(batch.Samples)
	if err != nil {
		return fmt.Errorf("%w: marshal samples: %v", contracts.ErrPersistence, err)
	}

	query := `
		INSERT INTO replay.batches
			(id, symbol, start_at, end_at, step_ns, max_samples, mode, status,
			 samples, completed, failed, error, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			samples = EXCLUDED.samples,
			completed = EXCLUDED.completed,
			failed = EXCLUDED.failed,
			error = EXCLUDED.error,
			started_at = EXCLUDED.started_at,
			updated_at = NOW()
	`

	_, err = r.pool.Exec(ctx, query,
		batch.ID, batch.Symbol, batch.Start, batch.End, batch.Step.Nanoseconds(),
		batch.MaxSamples, string(batch.Mode), string(batch.Status),
		samplesJSON, batch.Completed, batch.Failed, batch.Error, batch.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: put batch: %v", contracts.ErrPersistence, err)
	}
	return nil
}

const batchColumns = `id, symbol, start_at, end_at, step_ns, max_samples, mode, status, samples, completed, failed, error, started_at, updated_at`

// Get returns one batch by ID, or ErrNotFound
func (r *PostgresRegistry) Get(ctx context.Context, id string) (*contracts.ReplayBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM replay.batches WHERE id = $1`
	return scanBatch(r.pool.QueryRow(ctx, query, id))
}

// List returns all batches, newest first
func (r *PostgresRegistry) List(ctx context.Context) ([]*contracts.ReplayBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM replay.batches ORDER BY started_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list batches: %v", contracts.ErrPersistence, err)
	}
	defer rows.Close()

	var batches []*contracts.ReplayBatch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

func scanBatch(row rowScanner) (*contracts.ReplayBatch, error) {
	var batch contracts.ReplayBatch
	var stepNs int64
	var mode, status string
	var samplesJSON []byte

	err := row.Scan(
		&batch.ID, &batch.Symbol, &batch.Start, &batch.End, &stepNs,
		&batch.MaxSamples, &mode, &status, &samplesJSON,
		&batch.Completed, &batch.Failed, &batch.Error,
		&batch.StartedAt, &batch.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan batch: %v", contracts.ErrPersistence, err)
	}

	batch.Step = time.Duration(stepNs)
	batch.Mode = contracts.DataSourceMode(mode)
	batch.Status = contracts.BatchStatus(status)
	if err := json.Unmarshal(samplesJSON, &batch.Samples); err != nil {
		return nil, fmt.Errorf("%w: unmarshal samples: %v", contracts.ErrPersistence, err)
	}
	return &batch, nil
}

// MemoryRegistry is the in-memory registry for tests and one-shot CLI runs
type MemoryRegistry struct {
	mu      sync.RWMutex
	batches map[string]*contracts.ReplayBatch
}

// NewMemoryRegistry creates an empty in-memory registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{batches: make(map[string]*contracts.ReplayBatch)}
}

// Put stores a deep copy so callers cannot mutate registry state
func (r *MemoryRegistry) Put(_ context.Context, batch *contracts.ReplayBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[batch.ID] = copyBatch(batch)
	return nil
}

// Get returns a copy of the batch, or ErrNotFound
func (r *MemoryRegistry) Get(_ context.Context, id string) (*contracts.ReplayBatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	batch, ok := r.batches[id]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return copyBatch(batch), nil
}

// List returns copies of all batches, newest first
func (r *MemoryRegistry) List(_ context.Context) ([]*contracts.ReplayBatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	batches := make([]*contracts.ReplayBatch, 0, len(r.batches))
	for _, b := range r.batches {
		batches = append(batches, copyBatch(b))
	}
	sort.Slice(batches, func(i, j int) bool {
		return batches[i].StartedAt.After(batches[j].StartedAt)
	})
	return batches, nil
}

func copyBatch(b *contracts.ReplayBatch) *contracts.ReplayBatch {
	clone := *b
	clone.Samples = append([]contracts.ReplaySample(nil), b.Samples...)
	return &clone
}
