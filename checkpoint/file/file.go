// Package file is the on-disk checkpoint backend: one JSON file per
// checkpoint under a thread-scoped directory plus a per-thread index file
// recording write order, grounded on this system's memory backend layout
// and this codebase's JSON-based checkpoint serialization convention.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/nodeforge/graphrun/checkpoint"
)

type Store struct {
	mu   sync.Mutex
	root string
}

var _ checkpoint.Store = (*Store)(nil)

func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint/file: create root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) threadDir(threadID string) string {
	return filepath.Join(s.root, safeName(threadID))
}

func (s *Store) checkpointPath(threadID, id string) string {
	return filepath.Join(s.threadDir(threadID), safeName(id)+".json")
}

func (s *Store) indexPath(threadID string) string {
	return filepath.Join(s.threadDir(threadID), "index.json")
}

func safeName(s string) string {
	return filepath.Base(filepath.Clean(s))
}

func (s *Store) readIndex(threadID string) ([]string, error) {
	data, err := os.ReadFile(s.indexPath(threadID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) writeIndex(threadID string, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return os.WriteFile(s.indexPath(threadID), data, 0o644)
}

func (s *Store) Put(_ context.Context, cp *checkpoint.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.threadDir(cp.ThreadID), 0o755); err != nil {
		return fmt.Errorf("checkpoint/file: create thread dir: %w", err)
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("checkpoint/file: marshal: %w", err)
	}
	if err := os.WriteFile(s.checkpointPath(cp.ThreadID, cp.ID), data, 0o644); err != nil {
		return fmt.Errorf("checkpoint/file: write: %w", err)
	}

	ids, err := s.readIndex(cp.ThreadID)
	if err != nil {
		return fmt.Errorf("checkpoint/file: read index: %w", err)
	}
	ids = append(ids, cp.ID)
	if err := s.writeIndex(cp.ThreadID, ids); err != nil {
		return fmt.Errorf("checkpoint/file: write index: %w", err)
	}
	return nil
}

func (s *Store) loadByID(threadID, id string) (*checkpoint.Checkpoint, error) {
	data, err := os.ReadFile(s.checkpointPath(threadID, id))
	if os.IsNotExist(err) {
		return nil, checkpoint.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint/file: read: %w", err)
	}
	var cp checkpoint.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("checkpoint/file: unmarshal: %w", err)
	}
	return &cp, nil
}

// Get scans every thread directory since checkpoint IDs alone don't
// identify their thread; callers that know the thread should prefer List.
func (s *Store) Get(_ context.Context, checkpointID string) (*checkpoint.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, checkpoint.ErrNotFound
		}
		return nil, fmt.Errorf("checkpoint/file: list threads: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		cp, err := s.loadByID(e.Name(), checkpointID)
		if err == nil {
			return cp, nil
		}
	}
	return nil, checkpoint.ErrNotFound
}

func (s *Store) GetLatest(_ context.Context, threadID string) (*checkpoint.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.readIndex(threadID)
	if err != nil {
		return nil, fmt.Errorf("checkpoint/file: read index: %w", err)
	}
	if len(ids) == 0 {
		return nil, checkpoint.ErrNotFound
	}
	return s.loadByID(threadID, ids[len(ids)-1])
}

func (s *Store) List(_ context.Context, threadID string, limit int) ([]*checkpoint.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.readIndex(threadID)
	if err != nil {
		return nil, fmt.Errorf("checkpoint/file: read index: %w", err)
	}
	out := make([]*checkpoint.Checkpoint, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		cp, err := s.loadByID(threadID, ids[i])
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
		if limit > 0 && len(out) >= limit {
			break
		}
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
		chain = append(chain, cp)
		id = cp.ParentID
	}
	sort.SliceStable(chain, func(i, j int) bool { return chain[i].Step < chain[j].Step })
	return chain, nil
}
