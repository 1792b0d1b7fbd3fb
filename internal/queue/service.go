// Package queue implements the import job lifecycle against the job store:
// creation, progress read/update, dequeue and terminal cleanup, plus the
// shared completion log. Pause, resume and cancel are plain progress status
// writes; interpreting them is the processor's business, not this
// package's.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/openvectors/vecimport/internal/jobs"
	"github.com/openvectors/vecimport/internal/jobstore"
	"github.com/openvectors/vecimport/internal/normalize"
)

// completionLogLimit bounds the shared completed-import audit log.
const completionLogLimit = 100

// ValidationError reports a bad job configuration, detected synchronously
// at creation before any state is persisted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid job configuration: " + e.Reason
}

// Service owns job lifecycle state in the job store.
type Service struct {
	store jobstore.Store
	now   func() time.Time
}

// NewService builds a Service over the given store.
func NewService(store jobstore.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// CreateJob normalizes the source, fills metadata defaults, persists the
// metadata snapshot and initial progress, then enqueues every item in
// source order. Metadata and status are written strictly before any queue
// item so a reader never observes queue items without their job.
func (s *Service) CreateJob(ctx context.Context, src normalize.Source, meta jobs.Metadata) (string, error) {
	meta.Format = src.Format
	if meta.ExportMode == "" {
		meta.ExportMode = jobs.ExportStore
	}
	if meta.ExportMode == jobs.ExportFile && meta.OutputName == "" {
		return "", &ValidationError{Reason: "file export requires an output name"}
	}
	if meta.ExportMode == jobs.ExportStore && meta.Destination == "" {
		return "", &ValidationError{Reason: "store export requires a destination vector set"}
	}

	result, err := normalize.Normalize(src)
	if err != nil {
		return "", &ValidationError{Reason: err.Error()}
	}

	if meta.JobID == "" {
		meta.JobID = uuid.New().String()
	}
	meta.Total = len(result.Items)
	meta.CreatedAt = s.now().UnixMilli()

	if meta.ElementColumn == "" && meta.ElementTemplate == "" {
		meta.ElementColumn = normalize.DefaultElementColumn(result.Columns)
	}
	if meta.TextColumn == "" && meta.TextTemplate == "" {
		meta.TextColumn = normalize.DefaultTextColumn(result.Columns)
	}
	if meta.AttributeColumns == nil && meta.Format == jobs.FormatJSON {
		meta.AttributeColumns = normalize.DefaultAttributeColumns(result.Columns, meta.ElementColumn, meta.TextColumn)
	}

	fields, err := meta.Fields()
	if err != nil {
		return "", err
	}
	if err := s.store.HashSet(ctx, jobstore.MetadataKey(meta.JobID), fields); err != nil {
		return "", fmt.Errorf("failed to persist job metadata: %w", err)
	}

	initial := jobs.Progress{
		Status:    jobs.StatusPending,
		Current:   0,
		Total:     meta.Total,
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.store.HashSet(ctx, jobstore.StatusKey(meta.JobID), initial.Fields()); err != nil {
		return "", fmt.Errorf("failed to persist job status: %w", err)
	}

	queueKey := jobstore.QueueKey(meta.JobID)
	for _, item := range result.Items {
		encoded, err := json.Marshal(item)
		if err != nil {
			return "", fmt.Errorf("failed to encode queue item %d: %w", item.Index, err)
		}
		if err := s.store.ListPush(ctx, queueKey, string(encoded)); err != nil {
			return "", fmt.Errorf("failed to enqueue item %d: %w", item.Index, err)
		}
	}

	return meta.JobID, nil
}

// UpdateProgress performs a read-modify-write merge against the persisted
// progress, refreshing the timestamp. A missing progress record is
// synthesized before merging, so progress writes are self-healing.
func (s *Service) UpdateProgress(ctx context.Context, jobID string, patch jobs.ProgressPatch) (jobs.Progress, error) {
	key := jobstore.StatusKey(jobID)
	fields, err := s.store.HashGetAll(ctx, key)
	if err != nil {
		return jobs.Progress{}, err
	}

	current := jobs.Progress{Status: jobs.StatusPending}
	if len(fields) > 0 {
		current, err = jobs.ProgressFromFields(fields)
		if err != nil {
			return jobs.Progress{}, err
		}
	}

	merged := current.Merge(patch)
	merged.Timestamp = s.now().UnixMilli()
	if err := s.store.HashSet(ctx, key, merged.Fields()); err != nil {
		return jobs.Progress{}, err
	}
	return merged, nil
}

// GetProgress returns the persisted progress, or nil when the job has no
// status record.
func (s *Service) GetProgress(ctx context.Context, jobID string) (*jobs.Progress, error) {
	fields, err := s.store.HashGetAll(ctx, jobstore.StatusKey(jobID))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	progress, err := jobs.ProgressFromFields(fields)
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// GetMetadata returns the metadata snapshot, or nil when the job is
// unknown.
func (s *Service) GetMetadata(ctx context.Context, jobID string) (*jobs.Metadata, error) {
	fields, err := s.store.HashGetAll(ctx, jobstore.MetadataKey(jobID))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	meta, err := jobs.MetadataFromFields(fields)
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// NextItem destructively pops the head of the job's queue. It returns nil
// when the queue is drained. A popped item is never re-enqueued.
func (s *Service) NextItem(ctx context.Context, jobID string) (*jobs.QueueItem, error) {
	raw, ok, err := s.store.ListPop(ctx, jobstore.QueueKey(jobID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var item jobs.QueueItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("failed to decode queue item: %w", err)
	}
	return &item, nil
}

// HasStatus reports whether the job's status record exists.
func (s *Service) HasStatus(ctx context.Context, jobID string) (bool, error) {
	return s.store.Exists(ctx, jobstore.StatusKey(jobID))
}

// HasMetadata reports whether the job's metadata record exists.
func (s *Service) HasMetadata(ctx context.Context, jobID string) (bool, error) {
	return s.store.Exists(ctx, jobstore.MetadataKey(jobID))
}

// DeleteStatus removes only the status record. Used to heal orphaned
// status left behind by partial external deletion.
func (s *Service) DeleteStatus(ctx context.Context, jobID string) error {
	return s.store.Delete(ctx, jobstore.StatusKey(jobID))
}

// CleanupJob deletes the job's queue, status and metadata keys together.
func (s *Service) CleanupJob(ctx context.Context, jobID string) error {
	return s.store.Delete(ctx,
		jobstore.QueueKey(jobID),
		jobstore.StatusKey(jobID),
		jobstore.MetadataKey(jobID),
	)
}

// AppendCompletion pushes an entry onto the shared completion log and trims
// the log to its bound.
func (s *Service) AppendCompletion(ctx context.Context, entry jobs.CompletionEntry) error {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode completion entry: %w", err)
	}
	if err := s.store.ListPushHead(ctx, jobstore.CompletionLogKey, string(encoded)); err != nil {
		return err
	}
	return s.store.ListTrim(ctx, jobstore.CompletionLogKey, 0, completionLogLimit-1)
}

// JobListing pairs a job ID with its current progress.
type JobListing struct {
	JobID    string
	Progress jobs.Progress
}

// ListJobs returns every job with persisted status, most recently updated
// first. Jobs deleted between the key scan and the read are skipped.
func (s *Service) ListJobs(ctx context.Context) ([]JobListing, error) {
	keys, err := s.store.ScanKeys(ctx, jobstore.StatusKeyPattern)
	if err != nil {
		return nil, err
	}
	listings := make([]JobListing, 0, len(keys))
	for _, key := range keys {
		jobID, ok := jobstore.JobIDFromStatusKey(key)
		if !ok {
			continue
		}
		progress, err := s.GetProgress(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if progress == nil {
			continue
		}
		listings = append(listings, JobListing{JobID: jobID, Progress: *progress})
	}
	sort.Slice(listings, func(i, j int) bool {
		return listings[i].Progress.Timestamp > listings[j].Progress.Timestamp
	})
	return listings, nil
}

// RecentCompletions returns up to limit completion entries, newest first.
// A non-positive limit returns the whole retained log.
func (s *Service) RecentCompletions(ctx context.Context, limit int) ([]jobs.CompletionEntry, error) {
	if limit <= 0 || limit > completionLogLimit {
		limit = completionLogLimit
	}
	raw, err := s.store.ListRange(ctx, jobstore.CompletionLogKey, 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	entries := make([]jobs.CompletionEntry, 0, len(raw))
	for _, line := range raw {
		var entry jobs.CompletionEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			// Unreadable lines are skipped rather than failing the
			// whole listing.
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
