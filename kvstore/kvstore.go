// Package kvstore is the shared side-channel store nodes reach through
// NodeContext: caches and cross-node data that is deliberately outside
// the reduced graph state and carries no ordering guarantee across nodes
// in the same round.
package kvstore

import "context"

// Store is a small namespaced key/value interface.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Scope returns a Store whose keys are implicitly prefixed by
	// threadID, so nodes serving different threads never collide.
	Scope(threadID string) Store
}
