// Package sqlite is the on-disk relational checkpoint backend, grounded
// on this codebase's store/sqlite.SqliteCheckpointStore, adapted from its
// execution-id/node-name schema to thread-id/step/parent-id chains.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nodeforge/graphrun/checkpoint"
)

type Store struct {
	db        *sql.DB
	tableName string
}

var _ checkpoint.Store = (*Store)(nil)

type Options struct {
	Path      string
	TableName string // default "checkpoints"
}

func New(opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint/sqlite: open: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "checkpoints"
	}
	s := &Store{db: db, tableName: tableName}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
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
			state BLOB NOT NULL,
			frontier TEXT NOT NULL,
			metadata TEXT,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_thread_step ON %s (thread_id, step);
	`, s.tableName, s.tableName, s.tableName)

	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("checkpoint/sqlite: init schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Put(ctx context.Context, cp *checkpoint.Checkpoint) error {
	frontierJSON, err := json.Marshal(cp.Frontier)
	if err != nil {
		return fmt.Errorf("checkpoint/sqlite: marshal frontier: %w", err)
	}
	metadataJSON, err := json.Marshal(cp.Metadata)
	if err != nil {
		return fmt.Errorf("checkpoint/sqlite: marshal metadata: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, parent_id, thread_id, step, state, frontier, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id = excluded.parent_id,
			thread_id = excluded.thread_id,
			step = excluded.step,
			state = excluded.state,
			frontier = excluded.frontier,
			metadata = excluded.metadata,
			created_at = excluded.created_at
	`, s.tableName)

	_, err = s.db.ExecContext(ctx, query,
		cp.ID, cp.ParentID, cp.ThreadID, cp.Step, cp.State,
		string(frontierJSON), string(metadataJSON), cp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("checkpoint/sqlite: insert: %w", err)
	}
	return nil
}

func (s *Store) scanRow(row interface{ Scan(...any) error }) (*checkpoint.Checkpoint, error) {
	var cp checkpoint.Checkpoint
	var frontierJSON, metadataJSON string
	err := row.Scan(&cp.ID, &cp.ParentID, &cp.ThreadID, &cp.Step, &cp.State, &frontierJSON, &metadataJSON, &cp.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(frontierJSON), &cp.Frontier); err != nil {
		return nil, fmt.Errorf("checkpoint/sqlite: unmarshal frontier: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal([]byte(metadataJSON), &cp.Metadata); err != nil {
			return nil, fmt.Errorf("checkpoint/sqlite: unmarshal metadata: %w", err)
		}
	}
	return &cp, nil
}

func (s *Store) Get(ctx context.Context, checkpointID string) (*checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`SELECT id, parent_id, thread_id, step, state, frontier, metadata, created_at FROM %s WHERE id = ?`, s.tableName)
	row := s.db.QueryRowContext(ctx, query, checkpointID)
	cp, err := s.scanRow(row)
	if err == sql.ErrNoRows {
		return nil, checkpoint.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint/sqlite: get: %w", err)
	}
	return cp, nil
}

// GetLatest and List order by rowid, sqlite's implicit monotonically
// increasing insert sequence, rather than step: a caller that resumes
// from an older checkpoint and writes a new branch can produce a step
// number lower than an abandoned forward branch's, and the most
// recently written checkpoint must still win regardless.
func (s *Store) GetLatest(ctx context.Context, threadID string) (*checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`SELECT id, parent_id, thread_id, step, state, frontier, metadata, created_at FROM %s WHERE thread_id = ? ORDER BY rowid DESC LIMIT 1`, s.tableName)
	row := s.db.QueryRowContext(ctx, query, threadID)
	cp, err := s.scanRow(row)
	if err == sql.ErrNoRows {
		return nil, checkpoint.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint/sqlite: get latest: %w", err)
	}
	return cp, nil
}

func (s *Store) List(ctx context.Context, threadID string, limit int) ([]*checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`SELECT id, parent_id, thread_id, step, state, frontier, metadata, created_at FROM %s WHERE thread_id = ? ORDER BY rowid DESC`, s.tableName)
	args := []any{threadID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("checkpoint/sqlite: list: %w", err)
	}
	defer rows.Close()

	var out []*checkpoint.Checkpoint
	for rows.Next() {
		cp, err := s.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("checkpoint/sqlite: scan: %w", err)
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint/sqlite: iterate rows: %w", err)
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
