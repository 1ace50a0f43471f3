// Package postgres is the relational checkpoint backend over
// github.com/jackc/pgx/v5, grounded on this codebase's
// store/postgres.PostgresCheckpointStore, including its DBPool interface
// seam that lets tests substitute pgxmock for a live database.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nodeforge/graphrun/checkpoint"
)

// row is satisfied by both pgx.Row and pgx.Rows.
type row interface {
	Scan(dest ...any) error
}

// DBPool is the subset of *pgxpool.Pool this store needs, kept as an
// interface so tests can substitute pgxmock's PgxPoolIface.
type DBPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db        DBPool
	tableName string
}

var _ checkpoint.Store = (*Store)(nil)

type Options struct {
	TableName string // default "checkpoints"
}

func New(ctx context.Context, connString string, opts Options) (*Store, error) {
	p, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("checkpoint/postgres: connect: %w", err)
	}
	return NewWithPool(ctx, p, opts)
}

// NewWithPool wraps an already-constructed DBPool, letting tests supply a
// pgxmock.PgxPoolIface value.
func NewWithPool(ctx context.Context, db DBPool, opts Options) (*Store, error) {
	tableName := opts.TableName
	if tableName == "" {
		tableName = "checkpoints"
	}
	s := &Store{db: db, tableName: tableName}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			parent_id TEXT NOT NULL DEFAULT '',
			thread_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			state JSONB NOT NULL,
			frontier JSONB NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			written_seq BIGSERIAL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_thread_step ON %s (thread_id, step);
		CREATE INDEX IF NOT EXISTS idx_%s_thread_written ON %s (thread_id, written_seq);
	`, s.tableName, s.tableName, s.tableName, s.tableName, s.tableName)
	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("checkpoint/postgres: init schema: %w", err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, cp *checkpoint.Checkpoint) error {
	frontierJSON, err := json.Marshal(cp.Frontier)
	if err != nil {
		return fmt.Errorf("checkpoint/postgres: marshal frontier: %w", err)
	}
	metadataJSON, err := json.Marshal(cp.Metadata)
	if err != nil {
		return fmt.Errorf("checkpoint/postgres: marshal metadata: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, parent_id, thread_id, step, state, frontier, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			parent_id = excluded.parent_id,
			thread_id = excluded.thread_id,
			step = excluded.step,
			state = excluded.state,
			frontier = excluded.frontier,
			metadata = excluded.metadata,
			created_at = excluded.created_at
	`, s.tableName)

	_, err = s.db.Exec(ctx, query,
		cp.ID, cp.ParentID, cp.ThreadID, cp.Step, cp.State,
		frontierJSON, metadataJSON, cp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("checkpoint/postgres: insert: %w", err)
	}
	return nil
}

func scan(r row) (*checkpoint.Checkpoint, error) {
	var cp checkpoint.Checkpoint
	var frontierJSON, metadataJSON []byte
	if err := r.Scan(&cp.ID, &cp.ParentID, &cp.ThreadID, &cp.Step, &cp.State, &frontierJSON, &metadataJSON, &cp.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(frontierJSON, &cp.Frontier); err != nil {
		return nil, fmt.Errorf("checkpoint/postgres: unmarshal frontier: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &cp.Metadata); err != nil {
			return nil, fmt.Errorf("checkpoint/postgres: unmarshal metadata: %w", err)
		}
	}
	return &cp, nil
}

const selectColumns = "id, parent_id, thread_id, step, state, frontier, metadata, created_at"

func (s *Store) Get(ctx context.Context, checkpointID string) (*checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, selectColumns, s.tableName)
	cp, err := scan(s.db.QueryRow(ctx, query, checkpointID))
	if err == pgx.ErrNoRows {
		return nil, checkpoint.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint/postgres: get: %w", err)
	}
	return cp, nil
}

// GetLatest and List order by written_seq, a BIGSERIAL populated at
// insert time, rather than step: a caller that resumes from an older
// checkpoint and writes a new branch can produce a step number lower
// than an abandoned forward branch's, and the most recently written
// checkpoint must still win regardless of branch.
func (s *Store) GetLatest(ctx context.Context, threadID string) (*checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE thread_id = $1 ORDER BY written_seq DESC LIMIT 1`, selectColumns, s.tableName)
	cp, err := scan(s.db.QueryRow(ctx, query, threadID))
	if err == pgx.ErrNoRows {
		return nil, checkpoint.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint/postgres: get latest: %w", err)
	}
	return cp, nil
}

func (s *Store) List(ctx context.Context, threadID string, limit int) ([]*checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE thread_id = $1 ORDER BY written_seq DESC`, selectColumns, s.tableName)
	args := []any{threadID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("checkpoint/postgres: list: %w", err)
	}
	defer rows.Close()

	var out []*checkpoint.Checkpoint
	for rows.Next() {
		cp, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("checkpoint/postgres: scan: %w", err)
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint/postgres: iterate rows: %w", err)
	}
	return out, nil
}

func (s *Store) Ancestors(ctx context.Context, checkpointID string) ([]*checkpoint.Checkpoint, error) {
	var chain []*checkpoint.Checkpoint
	seen := make(map[string]bool)
	id := checkpointID
	for id != "" {
		cp, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, checkpoint.ErrCycle
		}
		seen[id] = true
		chain = append([]*checkpoint.Checkpoint{cp}, chain...)
		id = cp.ParentID
	}
	return chain, nil
}
