// Package redisstate keeps cursor state in Redis.
package redisstate

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Martian-dev/mailpoll/internal/platform"
)

// KeyPrefix namespaces cursor keys
const KeyPrefix = "mailpoll:cursor:"

// Options configures the Redis connection
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Store implements platform.StateStore on Redis. A SET replaces the value
// atomically, so a failed write leaves the previous cursor in place.
type Store struct {
	rdb *redis.Client
}

// New connects to Redis
func New(opts Options) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})}
}

// NewWithClient wraps an existing client
func NewWithClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Key returns the Redis key of a cursor
func Key(name string) string {
	return KeyPrefix + name
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) LoadState(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) PersistState(ctx context.Context, key string, state []byte) error {
	if err := s.rdb.Set(ctx, Key(key), state, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Store) DeleteState(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, Key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Close closes the client
func (s *Store) Close() error {
	return s.rdb.Close()
}

var _ platform.StateStore = (*Store)(nil)
