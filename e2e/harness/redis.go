// Package harness provides the shared infrastructure for the end-to-end
// tests: a Redis connection scoped to the import key space and a runner
// for a vecimport binary built outside the test process.
package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/openvectors/vecimport/internal/jobstore"
)

// RedisHarness wraps a live Redis connection for tests that exercise the
// real job store. Construction fails fast when Redis is unreachable so
// callers can skip instead of hanging.
type RedisHarness struct {
	store *jobstore.RedisStore
}

// NewRedisHarness connects to Redis at the given URL and verifies the
// connection with a ping.
func NewRedisHarness(redisURL string) (*RedisHarness, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := jobstore.Connect(ctx, redisURL, "")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisHarness{store: store}, nil
}

// Store returns the underlying job store.
func (h *RedisHarness) Store() *jobstore.RedisStore {
	return h.store
}

// StatusFields returns the raw progress hash for a job, or an empty map
// when the job has no status key.
func (h *RedisHarness) StatusFields(ctx context.Context, jobID string) (map[string]string, error) {
	return h.store.HashGetAll(ctx, jobstore.StatusKey(jobID))
}

// QueueLen counts the items still waiting on a job's queue.
func (h *RedisHarness) QueueLen(ctx context.Context, jobID string) (int64, error) {
	items, err := h.store.ListRange(ctx, jobstore.QueueKey(jobID), 0, -1)
	if err != nil {
		return 0, err
	}
	return int64(len(items)), nil
}

// JobKeys lists every key a job still holds in Redis.
func (h *RedisHarness) JobKeys(ctx context.Context, jobID string) ([]string, error) {
	return h.store.ScanKeys(ctx, fmt.Sprintf("import:job:%s:*", jobID))
}

// CompletionLog returns the newest-first completion log entries.
func (h *RedisHarness) CompletionLog(ctx context.Context) ([]string, error) {
	return h.store.ListRange(ctx, jobstore.CompletionLogKey, 0, -1)
}

// Cleanup deletes every key matching the given patterns. Tests call it
// deferred so a failed run does not leave job keys behind.
func (h *RedisHarness) Cleanup(ctx context.Context, patterns ...string) error {
	for _, pattern := range patterns {
		keys, err := h.store.ScanKeys(ctx, pattern)
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", pattern, err)
		}
		if len(keys) == 0 {
			continue
		}
		if err := h.store.Delete(ctx, keys...); err != nil {
			return fmt.Errorf("failed to delete keys for %s: %w", pattern, err)
		}
	}
	return nil
}

// Close releases the Redis connection.
func (h *RedisHarness) Close() error {
	return h.store.Close()
}
