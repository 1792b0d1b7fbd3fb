package jobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a go-redis client.
type RedisStore struct {
	rdb *redis.Client
}

// Open parses redisURL, opens a raw client and verifies the connection.
// Callers that also need direct command access (the vector sink) share one
// client between the store and themselves.
func Open(ctx context.Context, redisURL, password string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// Connect opens a client via Open and wraps it in a RedisStore.
func Connect(ctx context.Context, redisURL, password string) (*RedisStore, error) {
	rdb, err := Open(ctx, redisURL, password)
	if err != nil {
		return nil, err
	}
	return &RedisStore{rdb: rdb}, nil
}

// NewFromClient wraps an existing client. The caller keeps ownership of the
// client's lifecycle when constructed this way; Close is still safe to call.
func NewFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read hash %s: %w", key, err)
	}
	return fields, nil
}

func (s *RedisStore) HashSet(ctx context.Context, key string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	if err := s.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("failed to write hash %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) ListPush(ctx context.Context, key string, value string) error {
	if err := s.rdb.RPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("failed to push to list %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) ListPushHead(ctx context.Context, key string, value string) error {
	if err := s.rdb.LPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("failed to push to list %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) ListPop(ctx context.Context, key string) (string, bool, error) {
	value, err := s.rdb.LPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to pop from list %s: %w", key, err)
	}
	return value, true, nil
}

func (s *RedisStore) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	values, err := s.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to range list %s: %w", key, err)
	}
	return values, nil
}

func (s *RedisStore) ListTrim(ctx context.Context, key string, start, stop int64) error {
	if err := s.rdb.LTrim(ctx, key, start, stop).Err(); err != nil {
		return fmt.Errorf("failed to trim list %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check key %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys %s: %w", pattern, err)
	}
	return keys, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
