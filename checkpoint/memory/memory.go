// Package memory is the in-process checkpoint backend, grounded on
// flowgraph's checkpoint.MemoryStore (a RWMutex-guarded map keyed by run,
// holding an ordered history) adapted to this system's thread-id scoping
// and parent-id chained checkpoints.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/nodeforge/graphrun/checkpoint"
)

type Store struct {
	mu       sync.RWMutex
	byID     map[string]*checkpoint.Checkpoint
	byThread map[string][]string // thread -> checkpoint IDs in write order
}

var _ checkpoint.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		byID:     make(map[string]*checkpoint.Checkpoint),
		byThread: make(map[string][]string),
	}
}

func clone(cp *checkpoint.Checkpoint) *checkpoint.Checkpoint {
	out := *cp
	out.State = append([]byte(nil), cp.State...)
	out.Frontier = append([]string(nil), cp.Frontier...)
	if cp.Metadata != nil {
		out.Metadata = make(map[string]string, len(cp.Metadata))
		for k, v := range cp.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

func (s *Store) Put(_ context.Context, cp *checkpoint.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := clone(cp)
	s.byID[stored.ID] = stored
	s.byThread[stored.ThreadID] = append(s.byThread[stored.ThreadID], stored.ID)
	return nil
}

func (s *Store) GetLatest(_ context.Context, threadID string) (*checkpoint.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byThread[threadID]
	if len(ids) == 0 {
		return nil, checkpoint.ErrNotFound
	}
	return clone(s.byID[ids[len(ids)-1]]), nil
}

func (s *Store) Get(_ context.Context, checkpointID string) (*checkpoint.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.byID[checkpointID]
	if !ok {
		return nil, checkpoint.ErrNotFound
	}
	return clone(cp), nil
}

func (s *Store) List(_ context.Context, threadID string, limit int) ([]*checkpoint.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byThread[threadID]
	out := make([]*checkpoint.Checkpoint, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, clone(s.byID[ids[i]]))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Ancestors(_ context.Context, checkpointID string) ([]*checkpoint.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var chain []*checkpoint.Checkpoint
	seen := make(map[string]bool)
	id := checkpointID
	for id != "" {
		cp, ok := s.byID[id]
		if !ok {
			return nil, checkpoint.ErrNotFound
		}
		if seen[id] {
			return nil, checkpoint.ErrCycle
		}
		seen[id] = true
		chain = append(chain, clone(cp))
		id = cp.ParentID
	}
	sort.SliceStable(chain, func(i, j int) bool { return chain[i].Step < chain[j].Step })
	return chain, nil
}
