// Package jobstore provides durable storage for import job state.
//
// All job state (configuration snapshot, progress, queued records) lives in
// Redis rather than in process memory, so job progress survives daemon
// restarts and can be observed by other processes polling the same keys.
//
// Key layout, namespaced per job:
//
//	import:job:<jobID>:queue     list of queued records, consumed FIFO
//	import:job:<jobID>:status    hash holding the mutable progress record
//	import:job:<jobID>:metadata  hash holding the immutable job configuration
//	import:log:completed         shared completion audit log, length-bounded
package jobstore

import (
	"context"
	"fmt"
	"strings"
)

// Store is the persistence contract the job pipeline runs against. It is the
// small fixed vocabulary the import subsystem needs from Redis: hash
// get/set, FIFO list push/pop, key existence, deletion and list trimming.
// Implementations must be safe for concurrent use.
type Store interface {
	// HashGetAll returns every field of the hash at key. A missing key
	// yields an empty map, not an error.
	HashGetAll(ctx context.Context, key string) (map[string]string, error)

	// HashSet writes the given fields into the hash at key, creating the
	// key if needed. Existing fields not named in fields are left alone.
	HashSet(ctx context.Context, key string, fields map[string]any) error

	// ListPush appends value to the tail of the list at key.
	ListPush(ctx context.Context, key string, value string) error

	// ListPushHead prepends value to the head of the list at key. Paired
	// with ListTrim it implements the bounded newest-first audit log.
	ListPushHead(ctx context.Context, key string, value string) error

	// ListPop removes and returns the head of the list at key. The second
	// return is false when the list is empty or missing.
	ListPop(ctx context.Context, key string) (string, bool, error)

	// ListRange returns the elements of the list at key between start and
	// stop (inclusive, negative indices count from the tail).
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// ListTrim constrains the list at key to the elements between start
	// and stop (inclusive).
	ListTrim(ctx context.Context, key string, start, stop int64) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// ScanKeys returns every key matching the glob pattern. Order is
	// unspecified.
	ScanKeys(ctx context.Context, pattern string) ([]string, error)

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the connection to the backing store.
	Close() error
}

// Key builders. Every component that touches job state goes through these so
// the naming scheme lives in exactly one place.

// QueueKey returns the key of a job's record queue.
func QueueKey(jobID string) string {
	return fmt.Sprintf("import:job:%s:queue", jobID)
}

// StatusKey returns the key of a job's progress hash.
func StatusKey(jobID string) string {
	return fmt.Sprintf("import:job:%s:status", jobID)
}

// MetadataKey returns the key of a job's configuration hash.
func MetadataKey(jobID string) string {
	return fmt.Sprintf("import:job:%s:metadata", jobID)
}

// StatusKeyPattern matches every job's progress hash.
const StatusKeyPattern = "import:job:*:status"

// JobIDFromStatusKey recovers the job ID from a status key. The second
// return is false for keys outside the scheme.
func JobIDFromStatusKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, "import:job:")
	if !ok {
		return "", false
	}
	jobID, ok := strings.CutSuffix(rest, ":status")
	if !ok || jobID == "" || strings.Contains(jobID, ":") {
		return "", false
	}
	return jobID, true
}

// CompletionLogKey is the shared audit log of finished imports.
const CompletionLogKey = "import:log:completed"
