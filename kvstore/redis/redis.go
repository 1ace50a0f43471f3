// Package redis is a kvstore backend over github.com/redis/go-redis/v9,
// grounded on this codebase's store/redis checkpoint backend (key
// prefixing convention, Options struct with Addr/Password/DB).
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nodeforge/graphrun/kvstore"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // default "graphrun:kv:"
}

type Store struct {
	client *goredis.Client
	prefix string
}

var _ kvstore.Store = (*Store)(nil)

func New(opts Options) *Store {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "graphrun:kv:"
	}
	return &Store{client: client, prefix: prefix}
}

// NewWithClient wraps an already-configured client, letting tests point
// it at a miniredis instance.
func NewWithClient(client *goredis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "graphrun:kv:"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("kvstore/redis: get %s: %w", key, err)
	}
	return data, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("kvstore/redis: put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("kvstore/redis: delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) Scope(threadID string) kvstore.Store {
	return &Store{client: s.client, prefix: s.prefix + threadID + ":"}
}
