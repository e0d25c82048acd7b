package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/vocepta/pkg/callstore"
	"github.com/MrWong99/vocepta/pkg/types"
)

// Postgres error codes that map onto callstore sentinels.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Store is the PostgreSQL-backed call store. Obtain one via [NewStore].
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Compile-time interface check.
var _ callstore.Store = (*Store)(nil)

// NewStore creates a Store, establishes a connection pool to the database at
// dsn, verifies connectivity and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Ping verifies database connectivity. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// Calls
// ─────────────────────────────────────────────────────────────────────────────

// CreateCall implements [callstore.Store].
func (s *Store) CreateCall(ctx context.Context, call *callstore.Call) error {
	if err := call.Validate(); err != nil {
		return err
	}
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if call.Status == "" {
		call.Status = callstore.StatusInit
	}
	costs, err := marshalCosts(call.Costs)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO calls
		    (id, from_number, language, customer_type, intent, status, summary, transcript, costs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err = s.pool.QueryRow(ctx, q,
		call.ID,
		call.FromNumber,
		string(call.Language),
		string(call.CustomerType),
		call.Intent,
		string(call.Status),
		call.Summary,
		call.Transcript,
		costs,
	).Scan(&call.CreatedAt, &call.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres store: create call: %w", mapPgError(err))
	}
	return nil
}

// GetCall implements [callstore.Store].
func (s *Store) GetCall(ctx context.Context, id string) (*callstore.Call, error) {
	const q = `
		SELECT id, from_number, language, customer_type, intent, status, summary, transcript, costs, created_at, updated_at
		FROM   calls
		WHERE  id = $1`

	call, err := scanCall(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, callstore.ErrNotFound
		}
		return nil, fmt.Errorf("postgres store: get call: %w", err)
	}
	return call, nil
}

// UpdateCall implements [callstore.Store]. The row is locked for the span of
// the transaction so concurrent webhook writers serialize and the status
// graph is checked against a current value.
func (s *Store) UpdateCall(ctx context.Context, id string, upd callstore.CallUpdate) (*callstore.Call, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres store: update call: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const sel = `
		SELECT id, from_number, language, customer_type, intent, status, summary, transcript, costs, created_at, updated_at
		FROM   calls
		WHERE  id = $1
		FOR UPDATE`

	call, err := scanCall(tx.QueryRow(ctx, sel, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, callstore.ErrNotFound
		}
		return nil, fmt.Errorf("postgres store: update call: load: %w", err)
	}

	if err := upd.Apply(call); err != nil {
		return nil, err
	}
	costs, err := marshalCosts(call.Costs)
	if err != nil {
		return nil, err
	}

	const up = `
		UPDATE calls
		SET    language = $2, customer_type = $3, intent = $4, status = $5,
		       summary = $6, transcript = $7, costs = $8, updated_at = now()
		WHERE  id = $1
		RETURNING updated_at`

	if err := tx.QueryRow(ctx, up,
		call.ID,
		string(call.Language),
		string(call.CustomerType),
		call.Intent,
		string(call.Status),
		call.Summary,
		call.Transcript,
		costs,
	).Scan(&call.UpdatedAt); err != nil {
		return nil, fmt.Errorf("postgres store: update call: write: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres store: update call: commit: %w", err)
	}
	return call, nil
}

// SaveTranscript implements [callstore.Store].
func (s *Store) SaveTranscript(ctx context.Context, callID, transcriptJSON string) error {
	const q = `UPDATE calls SET transcript = $2, updated_at = now() WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, callID, transcriptJSON)
	if err != nil {
		return fmt.Errorf("postgres store: save transcript: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return callstore.ErrNotFound
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Callback tasks
// ─────────────────────────────────────────────────────────────────────────────

// CreateCallbackTask implements [callstore.Store]. The unique constraint on
// call_id enforces the one-task-per-call rule at the database level, so a
// race between two creators resolves to exactly one task.
func (s *Store) CreateCallbackTask(ctx context.Context, task *callstore.CallbackTask) error {
	if err := task.Validate(); err != nil {
		return err
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = callstore.TaskPending
	}

	const q = `
		INSERT INTO callback_tasks
		    (id, call_id, priority, name, callback_number, best_time_window, notes, assignee, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err := s.pool.QueryRow(ctx, q,
		task.ID,
		task.CallID,
		int(task.Priority),
		task.Name,
		task.CallbackNumber,
		task.BestTimeWindow,
		task.Notes,
		task.Assignee,
		string(task.Status),
	).Scan(&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres store: create callback task: %w", mapPgError(err))
	}
	return nil
}

// GetCallbackTaskByCall implements [callstore.Store].
func (s *Store) GetCallbackTaskByCall(ctx context.Context, callID string) (*callstore.CallbackTask, error) {
	const q = `
		SELECT id, call_id, priority, name, callback_number, best_time_window, notes, assignee, status, created_at, updated_at
		FROM   callback_tasks
		WHERE  call_id = $1`

	task, err := scanTask(s.pool.QueryRow(ctx, q, callID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, callstore.ErrNotFound
		}
		return nil, fmt.Errorf("postgres store: get callback task: %w", err)
	}
	return task, nil
}

// UpdateCallbackTask implements [callstore.Store].
func (s *Store) UpdateCallbackTask(ctx context.Context, id string, upd callstore.TaskUpdate) (*callstore.CallbackTask, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres store: update callback task: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const sel = `
		SELECT id, call_id, priority, name, callback_number, best_time_window, notes, assignee, status, created_at, updated_at
		FROM   callback_tasks
		WHERE  id = $1
		FOR UPDATE`

	task, err := scanTask(tx.QueryRow(ctx, sel, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, callstore.ErrNotFound
		}
		return nil, fmt.Errorf("postgres store: update callback task: load: %w", err)
	}

	if err := upd.Apply(task); err != nil {
		return nil, err
	}

	const up = `
		UPDATE callback_tasks
		SET    priority = $2, name = $3, callback_number = $4, best_time_window = $5,
		       notes = $6, assignee = $7, status = $8, updated_at = now()
		WHERE  id = $1
		RETURNING updated_at`

	if err := tx.QueryRow(ctx, up,
		task.ID,
		int(task.Priority),
		task.Name,
		task.CallbackNumber,
		task.BestTimeWindow,
		task.Notes,
		task.Assignee,
		string(task.Status),
	).Scan(&task.UpdatedAt); err != nil {
		return nil, fmt.Errorf("postgres store: update callback task: write: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres store: update callback task: commit: %w", err)
	}
	return task, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Row scanning
// ─────────────────────────────────────────────────────────────────────────────

// row is the subset of pgx.Row both QueryRow results satisfy.
type row interface {
	Scan(dest ...any) error
}

// scanCall scans one calls row in column order.
func scanCall(r row) (*callstore.Call, error) {
	var (
		c         callstore.Call
		language  string
		custType  string
		status    string
		costsJSON []byte
	)
	if err := r.Scan(
		&c.ID,
		&c.FromNumber,
		&language,
		&custType,
		&c.Intent,
		&status,
		&c.Summary,
		&c.Transcript,
		&costsJSON,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.Language = types.Language(language)
	c.CustomerType = callstore.CustomerType(custType)
	c.Status = callstore.CallStatus(status)
	if len(costsJSON) > 0 {
		if err := json.Unmarshal(costsJSON, &c.Costs); err != nil {
			return nil, fmt.Errorf("unmarshal costs: %w", err)
		}
	}
	return &c, nil
}

// scanTask scans one callback_tasks row in column order.
func scanTask(r row) (*callstore.CallbackTask, error) {
	var (
		t        callstore.CallbackTask
		priority int
		status   string
	)
	if err := r.Scan(
		&t.ID,
		&t.CallID,
		&priority,
		&t.Name,
		&t.CallbackNumber,
		&t.BestTimeWindow,
		&t.Notes,
		&t.Assignee,
		&status,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.Priority = callstore.Priority(priority)
	t.Status = callstore.TaskStatus(status)
	return &t, nil
}

// marshalCosts serializes the costs map for the JSONB column. A nil map
// stores as an empty object.
func marshalCosts(costs map[string]float64) ([]byte, error) {
	if costs == nil {
		return []byte("{}"), nil
	}
	out, err := json.Marshal(costs)
	if err != nil {
		return nil, fmt.Errorf("postgres store: marshal costs: %w", err)
	}
	return out, nil
}

// mapPgError converts constraint violations into callstore sentinels so
// callers never match on SQLSTATE codes. The call_id unique constraint is
// how the one-task-per-call rule surfaces under race.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		if strings.Contains(pgErr.ConstraintName, "call_id") {
			return fmt.Errorf("%w (%s)", callstore.ErrTaskExists, pgErr.ConstraintName)
		}
		return err
	case codeForeignKeyViolation:
		return fmt.Errorf("%w (%s)", callstore.ErrNotFound, pgErr.ConstraintName)
	default:
		return err
	}
}
