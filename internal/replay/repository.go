package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/argus/internal/contracts"
)

// StateRepository implements contracts.ReplayStateRepository on Postgres.
// ⭐ SSOT: 리플레이 상태 저장소는 여기서만
//
// Idempotency rests on the UNIQUE(batch_id, symbol, as_of) constraint,
// not on application-level locks: concurrent inserts race safely.
type StateRepository struct {
	pool *pgxpool.Pool
}

// NewStateRepository creates a new replay state repository
func NewStateRepository(pool *pgxpool.Pool) *StateRepository {
	return &StateRepository{pool: pool}
}

// Insert persists a state. A duplicate idempotency key returns the
// existing row's ID with inserted=false and writes nothing.
func (r *StateRepository) Insert(ctx context.Context, state *contracts.ReplayState) (string, bool, error) {
	decisionJSON, err := json.Marshal(state.Decision)
	if err != nil {
		return "", false, fmt.Errorf("%w: marshal decision: %v", contracts.ErrPersistence, err)
	}

	id := state.ID
	if id == "" {
		id = uuid.New().String()
	}

	query := `
		INSERT INTO replay.replay_states
			(id, batch_id, symbol, as_of, price, decision, config_version, status, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (batch_id, symbol, as_of) DO NOTHING
		RETURNING id
	`

	var returned string
	err = r.pool.QueryRow(ctx, query,
		id, state.BatchID, state.Symbol, state.AsOf, state.Price,
		decisionJSON, state.ConfigVersion, string(state.Status), state.ErrorMessage,
	).Scan(&returned)
	if err == nil {
		return returned, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("%w: insert state: %v", contracts.ErrPersistence, err)
	}

	// Conflict path: someone else won the race, hand back their row
	existing, err := r.GetByKey(ctx, state.BatchID, state.Symbol, state.AsOf)
	if err != nil {
		return "", false, err
	}
	return existing.ID, false, nil
}

const stateColumns = `id, batch_id, symbol, as_of, price, decision, config_version, outcome, status, error_message, created_at`

// GetByKey returns the state for an idempotency key, or ErrNotFound
func (r *StateRepository) GetByKey(ctx context.Context, batchID, symbol string, asOf time.Time) (*contracts.ReplayState, error) {
	query := `
		SELECT ` + stateColumns + `
		FROM replay.replay_states
		WHERE batch_id = $1 AND symbol = $2 AND as_of = $3
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, batchID, symbol, asOf))
}

// GetByID returns one state by ID, or ErrNotFound
func (r *StateRepository) GetByID(ctx context.Context, id string) (*contracts.ReplayState, error) {
	query := `
		SELECT ` + stateColumns + `
		FROM replay.replay_states
		WHERE id = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// ListUnlabeled returns mature COMPLETED states without an outcome,
// oldest first. symbol이 비어 있으면 전체 심볼.
func (r *StateRepository) ListUnlabeled(ctx context.Context, symbol string, matureBefore time.Time, limit int) ([]*contracts.ReplayState, error) {
	query := `
		SELECT ` + stateColumns + `
		FROM replay.replay_states
		WHERE status = 'COMPLETED'
		  AND outcome IS NULL
		  AND as_of <= $1
		  AND ($2 = '' OR symbol = $2)
		ORDER BY as_of ASC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, matureBefore, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list unlabeled: %v", contracts.ErrPersistence, err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// SetOutcome records the outcome exactly once. A second write returns
// ErrOutcomeImmutable — 라벨은 불변이다.
func (r *StateRepository) SetOutcome(ctx context.Context, id string, outcome contracts.SampleOutcome) error {
	outcomeJSON, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("%w: marshal outcome: %v", contracts.ErrPersistence, err)
	}

	query := `
		UPDATE replay.replay_states
		SET outcome = $2
		WHERE id = $1 AND outcome IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, id, outcomeJSON)
	if err != nil {
		return fmt.Errorf("%w: set outcome: %v", contracts.ErrPersistence, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Zero rows: either the state is missing or already labeled
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: state %s", contracts.ErrOutcomeImmutable, id)
}

// List returns states matching the filter, oldest first
func (r *StateRepository) List(ctx context.Context, filter contracts.StateFilter) ([]*contracts.ReplayState, error) {
	query := `
		SELECT ` + stateColumns + `
		FROM replay.replay_states
		WHERE ($1 = '' OR batch_id = $1)
		  AND ($2 = '' OR symbol = $2)
		  AND ($3::timestamptz IS NULL OR as_of >= $3)
		  AND ($4::timestamptz IS NULL OR as_of <= $4)
		  AND (NOT $5 OR outcome IS NOT NULL)
		ORDER BY as_of ASC
	`

	var from, to interface{}
	if !filter.From.IsZero() {
		from = filter.From
	}
	if !filter.To.IsZero() {
		to = filter.To
	}

	rows, err := r.pool.Query(ctx, query, filter.BatchID, filter.Symbol, from, to, filter.LabeledOnly)
	if err != nil {
		return nil, fmt.Errorf("%w: list states: %v", contracts.ErrPersistence, err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// LabelProgress reports labeling coverage for a batch and/or symbol
func (r *StateRepository) LabelProgress(ctx context.Context, batchID, symbol string) (contracts.LabelProgress, error) {
	query := `
		SELECT COUNT(*) FILTER (WHERE status = 'COMPLETED'),
		       COUNT(*) FILTER (WHERE status = 'COMPLETED' AND outcome IS NOT NULL)
		FROM replay.replay_states
		WHERE ($1 = '' OR batch_id = $1)
		  AND ($2 = '' OR symbol = $2)
	`

	var progress contracts.LabelProgress
	if err := r.pool.QueryRow(ctx, query, batchID, symbol).Scan(&progress.Total, &progress.Labeled); err != nil {
		return progress, fmt.Errorf("%w: label progress: %v", contracts.ErrPersistence, err)
	}
	progress.Unlabeled = progress.Total - progress.Labeled
	return progress, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *StateRepository) scanOne(row rowScanner) (*contracts.ReplayState, error) {
	var state contracts.ReplayState
	var decisionJSON []byte
	var outcomeJSON []byte
	var status string

	err := row.Scan(
		&state.ID, &state.BatchID, &state.Symbol, &state.AsOf, &state.Price,
		&decisionJSON, &state.ConfigVersion, &outcomeJSON, &status,
		&state.ErrorMessage, &state.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan state: %v", contracts.ErrPersistence, err)
	}

	state.Status = contracts.SampleStatus(status)
	if err := json.Unmarshal(decisionJSON, &state.Decision); err != nil {
		return nil, fmt.Errorf("%w: unmarshal decision: %v", contracts.ErrPersistence, err)
	}
	if len(outcomeJSON) > 0 {
		var outcome contracts.SampleOutcome
		if err := json.Unmarshal(outcomeJSON, &outcome); err != nil {
			return nil, fmt.Errorf("%w: unmarshal outcome: %v", contracts.ErrPersistence, err)
		}
		state.Outcome = &outcome
	}
	return &state, nil
}

func (r *StateRepository) scanAll(rows pgx.Rows) ([]*contracts.ReplayState, error) {
	var states []*contracts.ReplayState
	for rows.Next() {
		state, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}
