package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// takeScript applies one hit to a window stored as a hash.
// KEYS[1] = key
// ARGV[1] = now in unix milliseconds
// ARGV[2] = window in milliseconds
// ARGV[3] = limit
// Returns {allowed, count, resetAtMillis}.
var takeScript = redis.NewScript(`
	local now = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local count = tonumber(redis.call('HGET', KEYS[1], 'count'))
	local reset = tonumber(redis.call('HGET', KEYS[1], 'reset'))
	if count == nil or reset == nil or now >= reset then
		reset = now + window
		redis.call('HSET', KEYS[1], 'count', 1, 'reset', reset)
		redis.call('PEXPIRE', KEYS[1], window)
		return {1, 1, reset}
	end
	if count < limit then
		count = redis.call('HINCRBY', KEYS[1], 'count', 1)
		return {1, count, reset}
	end
	return {0, count, reset}
`)

// RedisConfig holds configuration for the Redis store.
type RedisConfig struct {
	// URL is a redis:// or rediss:// connection URL.
	URL    string
	Prefix string
	Logger *zap.Logger
}

// RedisStore keeps counters in Redis so several edge instances share them.
// Keys expire with their window.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
	mu     sync.Mutex
	closed bool
}

// NewRedisStore creates a Redis store from a connection URL.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisStoreWithClient(redis.NewClient(opts), cfg.Prefix, cfg.Logger), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Take implements Store.
func (s *RedisStore) Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Window, error) {
	if s.isClosed() {
		return Window{}, ErrStoreClosed
	}

	res, err := takeScript.Run(ctx, s.client, []string{s.prefix + key},
		now.UnixMilli(), window.Milliseconds(), limit,
	).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("redis take %s: %w", key, err)
	}
	if len(res) != 3 {
		return Window{}, fmt.Errorf("redis take %s: unexpected reply length %d", key, len(res))
	}

	return Window{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
		ResetAt: time.UnixMilli(res[2]),
	}, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	return s.client.Del(ctx, s.prefix+key).Err()
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	return s.client.Ping(ctx).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Debug("closing redis rate limit store")
	return s.client.Close()
}

func (s *RedisStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
