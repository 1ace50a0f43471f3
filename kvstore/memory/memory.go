// Package memory is the always-available, zero-configuration kvstore
// backend, grounded on this codebase's in-process store patterns
// (a RWMutex-guarded map, same shape as the type registry singleton).
package memory

import (
	"context"
	"sync"

	"github.com/nodeforge/graphrun/kvstore"
)

type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ kvstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[key] = cp
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Store) Scope(threadID string) kvstore.Store {
	return &scoped{parent: s, prefix: threadID + "/"}
}

type scoped struct {
	parent *Store
	prefix string
}

var _ kvstore.Store = (*scoped)(nil)

func (s *scoped) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.parent.Get(ctx, s.prefix+key)
}

func (s *scoped) Put(ctx context.Context, key string, value []byte) error {
	return s.parent.Put(ctx, s.prefix+key, value)
}

func (s *scoped) Delete(ctx context.Context, key string) error {
	return s.parent.Delete(ctx, s.prefix+key)
}

func (s *scoped) Scope(threadID string) kvstore.Store {
	return &scoped{parent: s.parent, prefix: s.prefix + threadID + "/"}
}
