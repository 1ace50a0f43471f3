// Package redis is the Redis-backed checkpoint store, grounded on this
// codebase's store/redis.RedisCheckpointStore (checkpoint hash keys plus
// a per-execution index) adapted to thread-id scoping via a per-thread
// list recording write order, so GetLatest/List reflect the order
// checkpoints were actually written rather than their step numbers —
// those diverge once a caller resumes from an older checkpoint and
// writes a new branch with a lower step than an abandoned one.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nodeforge/graphrun/checkpoint"
)

type Store struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

var _ checkpoint.Store = (*Store)(nil)

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // default "graphrun:checkpoint:"
	TTL      time.Duration
}

func New(opts Options) *Store {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewWithClient(client, opts.Prefix, opts.TTL)
}

func NewWithClient(client *goredis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "graphrun:checkpoint:"
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

func (s *Store) checkpointKey(id string) string {
	return fmt.Sprintf("%sdata:%s", s.prefix, id)
}

// orderKey holds a list of checkpoint IDs for threadID in the order they
// were written via Put, independent of their step numbers.
func (s *Store) orderKey(threadID string) string {
	return fmt.Sprintf("%sorder:%s", s.prefix, threadID)
}

func (s *Store) Put(ctx context.Context, cp *checkpoint.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("checkpoint/redis: marshal: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.checkpointKey(cp.ID), data, s.ttl)
	pipe.RPush(ctx, s.orderKey(cp.ThreadID), cp.ID)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.orderKey(cp.ThreadID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("checkpoint/redis: put: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, checkpointID string) (*checkpoint.Checkpoint, error) {
	data, err := s.client.Get(ctx, s.checkpointKey(checkpointID)).Bytes()
	if err == goredis.Nil {
		return nil, checkpoint.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint/redis: get: %w", err)
	}
	var cp checkpoint.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("checkpoint/redis: unmarshal: %w", err)
	}
	return &cp, nil
}

func (s *Store) GetLatest(ctx context.Context, threadID string) (*checkpoint.Checkpoint, error) {
	id, err := s.client.LIndex(ctx, s.orderKey(threadID), -1).Result()
	if err == goredis.Nil {
		return nil, checkpoint.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint/redis: get latest: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Store) List(ctx context.Context, threadID string, limit int) ([]*checkpoint.Checkpoint, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	ids, err := s.client.LRange(ctx, s.orderKey(threadID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("checkpoint/redis: list: %w", err)
	}
	out := make([]*checkpoint.Checkpoint, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- { // reverse to newest-first
		cp, err := s.Get(ctx, ids[i])
		if err != nil {
			continue // expired between LRANGE and GET; skip rather than fail the whole list
		}
		out = append(out, cp)
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
