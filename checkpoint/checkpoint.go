// Package checkpoint defines the pluggable persistence contract for
// (thread, step) -> state snapshots, grounded on this codebase's
// store.CheckpointStore interface and Checkpoint struct but reshaped
// around thread-id scoping and parent-id chained history per the
// stateful graph execution model.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

// Checkpoint is an immutable snapshot written once by the executor at
// the end of a round. State and Frontier are opaque serialized bytes
// whose schema is owned by the caller's state type and Codec.
type Checkpoint struct {
	ID        string
	ParentID  string // empty for the first checkpoint of a thread
	ThreadID  string
	Step      int
	State     []byte
	Frontier  []string // label strings, as returned by label.AsStr
	Metadata  map[string]string
	CreatedAt time.Time
}

// ErrNotFound is returned by Get/GetLatest when no matching checkpoint
// exists.
var ErrNotFound = errors.New("checkpoint: not found")

// ErrCycle is returned by Ancestors when a checkpoint's parent chain
// loops back on itself instead of terminating at a root checkpoint.
var ErrCycle = errors.New("checkpoint: cycle in parent chain")

// Store is implemented by every persistence backend under this package's
// subdirectories (memory, file, sqlite, redis, postgres).
type Store interface {
	Put(ctx context.Context, cp *Checkpoint) error
	GetLatest(ctx context.Context, threadID string) (*Checkpoint, error)
	Get(ctx context.Context, checkpointID string) (*Checkpoint, error)
	List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error)
	Ancestors(ctx context.Context, checkpointID string) ([]*Checkpoint, error)
}

// Codec serializes and deserializes state values into a Checkpoint's
// opaque State bytes. The core does not prescribe a format; JSONCodec is
// the default.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}
