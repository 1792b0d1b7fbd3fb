// Package processor runs one import job to completion: a single-threaded
// control loop that drains the job's queue, embeds each record, writes it
// to the destination sink and updates progress after every item.
//
// The loop is cooperative. Pause, resume and cancel arrive as externally
// written status values, observed once per iteration before the next
// dequeue; a dequeued item is always carried to completion (success or
// per-item error) first. The two timed waits (pause polling, post-error
// backoff) go through an injected Clock.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/openvectors/vecimport/internal/embed"
	"github.com/openvectors/vecimport/internal/jobs"
	"github.com/openvectors/vecimport/internal/queue"
	"github.com/openvectors/vecimport/internal/usage"
	"github.com/openvectors/vecimport/internal/vectorstore"
)

// ErrJobNotFound is returned by Run when the job has no metadata record.
var ErrJobNotFound = errors.New("job not found")

// Config holds the loop's timing knobs.
type Config struct {
	// PauseInterval is how long the loop sleeps between status re-reads
	// while paused. Pause/cancel latency is bounded by it.
	PauseInterval time.Duration

	// ErrorBackoff is the fixed delay after a per-item failure before
	// the loop moves to the next item.
	ErrorBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.PauseInterval <= 0 {
		c.PauseInterval = time.Second
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = time.Second
	}
	return c
}

// Options wires a Processor's collaborators.
type Options struct {
	Queue    *queue.Service
	Sink     vectorstore.Sink
	Exporter *vectorstore.Exporter

	// NewGenerator builds the embedding generator from the job's
	// provider snapshot. Defaults to embed.NewGenerator.
	NewGenerator func(cfg embed.Config) (embed.Generator, error)

	// RecordFn, when set, is called once with the job's outcome after the
	// loop observes it (completed, failed or cancelled).
	RecordFn func(usage.Record)

	Clock  Clock
	Config Config
	Logger *slog.Logger
}

// Processor drives exactly one job. Exactly one Processor may run per job;
// a second concurrent Run on the same instance is a no-op.
type Processor struct {
	jobID    string
	queue    *queue.Service
	sink     vectorstore.Sink
	exporter *vectorstore.Exporter
	newGen   func(cfg embed.Config) (embed.Generator, error)
	recordFn func(usage.Record)
	clock    Clock
	cfg      Config
	logger   *slog.Logger

	// gen is built lazily on the first item that needs embedding, so
	// fully precomputed jobs never touch the provider. Only the loop
	// goroutine reads or writes it.
	gen embed.Generator

	// Loop-goroutine state for the usage record.
	meta      *jobs.Metadata
	startedAt time.Time
	processed int

	mu      sync.Mutex
	running bool
	paused  bool
}

// New builds a Processor for jobID.
func New(jobID string, opts Options) *Processor {
	if opts.NewGenerator == nil {
		opts.NewGenerator = embed.NewGenerator
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Processor{
		jobID:    jobID,
		queue:    opts.Queue,
		sink:     opts.Sink,
		exporter: opts.Exporter,
		newGen:   opts.NewGenerator,
		recordFn: opts.RecordFn,
		clock:    opts.Clock,
		cfg:      opts.Config.withDefaults(),
		logger:   opts.Logger.With("jobId", jobID),
	}
}

// JobID returns the job this processor is bound to.
func (p *Processor) JobID() string {
	return p.jobID
}

// Running reports whether the loop is active.
func (p *Processor) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Pause flags the loop to idle and persists the paused status.
func (p *Processor) Pause(ctx context.Context) error {
	p.setPaused(true)
	status := jobs.StatusPaused
	_, err := p.queue.UpdateProgress(ctx, p.jobID, jobs.ProgressPatch{Status: &status})
	return err
}

// Resume clears the pause flag and persists the processing status.
func (p *Processor) Resume(ctx context.Context) error {
	p.setPaused(false)
	status := jobs.StatusProcessing
	_, err := p.queue.UpdateProgress(ctx, p.jobID, jobs.ProgressPatch{Status: &status})
	return err
}

// Stop persists the cancelled status. The loop observes it before its next
// dequeue and exits; job keys are retained for inspection.
func (p *Processor) Stop(ctx context.Context) error {
	status := jobs.StatusCancelled
	_, err := p.queue.UpdateProgress(ctx, p.jobID, jobs.ProgressPatch{Status: &status})
	return err
}

// Run executes the control loop until the queue drains or a terminal
// status stops it. Run on an already-running processor returns nil
// immediately. A missing metadata record fails with ErrJobNotFound.
func (p *Processor) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.paused = false
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	meta, err := p.queue.GetMetadata(ctx, p.jobID)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("%w: %s", ErrJobNotFound, p.jobID)
	}
	p.meta = meta
	p.startedAt = p.clock.Now()

	fresh, err := p.queue.GetProgress(ctx, p.jobID)
	if err != nil {
		return err
	}
	if fresh != nil {
		p.processed = fresh.Current
	}
	if fresh != nil && fresh.Status.Terminal() {
		// Cancelled or failed before we started; never resurrect.
		return nil
	}
	if fresh != nil && fresh.Status == jobs.StatusPaused {
		// A persisted pause survives daemon restarts: hold until an
		// explicit resume instead of silently resuming.
		p.setPaused(true)
	} else {
		status := jobs.StatusProcessing
		if _, err := p.queue.UpdateProgress(ctx, p.jobID, jobs.ProgressPatch{Status: &status}); err != nil {
			return err
		}
	}

	p.logger.Info("processor started", "destination", meta.Destination, "format", meta.Format, "total", meta.Total)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if p.isPaused() {
			fresh, err := p.queue.GetProgress(ctx, p.jobID)
			if err != nil {
				return p.fail(ctx, err)
			}
			if fresh == nil {
				return nil
			}
			switch fresh.Status {
			case jobs.StatusPaused:
				if err := p.clock.Sleep(ctx, p.cfg.PauseInterval); err != nil {
					return err
				}
				continue
			case jobs.StatusProcessing:
				p.setPaused(false)
			case jobs.StatusCancelled:
				p.logger.Info("job cancelled while paused")
				p.record(jobs.StatusCancelled, "", "")
				return nil
			default:
				return nil
			}
		}

		// Health check: heal the orphaned-status case, stop silently
		// when the job was deleted externally.
		hasStatus, err := p.queue.HasStatus(ctx, p.jobID)
		if err != nil {
			return p.fail(ctx, err)
		}
		if !hasStatus {
			p.logger.Info("status record removed externally, stopping")
			return nil
		}
		hasMeta, err := p.queue.HasMetadata(ctx, p.jobID)
		if err != nil {
			return p.fail(ctx, err)
		}
		if !hasMeta {
			p.logger.Warn("metadata removed externally, deleting orphaned status")
			if err := p.queue.DeleteStatus(ctx, p.jobID); err != nil {
				return p.fail(ctx, err)
			}
			return nil
		}

		// Freshness check before dequeue: pause and cancel take effect
		// here, never against an item already popped.
		fresh, err := p.queue.GetProgress(ctx, p.jobID)
		if err != nil {
			return p.fail(ctx, err)
		}
		if fresh == nil {
			return nil
		}
		if fresh.Status == jobs.StatusCancelled {
			p.logger.Info("job cancelled", "processed", fresh.Current, "total", fresh.Total)
			p.record(jobs.StatusCancelled, "", "")
			return nil
		}
		if fresh.Status == jobs.StatusPaused {
			p.setPaused(true)
			continue
		}

		item, err := p.queue.NextItem(ctx, p.jobID)
		if err != nil {
			return p.fail(ctx, err)
		}
		if item == nil {
			return p.finalize(ctx, meta)
		}

		message, itemErr := p.handleItem(ctx, meta, item)
		if itemErr != nil {
			message = fmt.Sprintf("Error processing item %d: %v", item.Index+1, itemErr)
			p.logger.Warn("item failed", "index", item.Index, "error", itemErr)
		} else {
			p.logger.Debug("item done", "index", item.Index, "message", message)
		}

		current := item.Index + 1
		if _, err := p.queue.UpdateProgress(ctx, p.jobID, jobs.ProgressPatch{Current: &current, Message: &message}); err != nil {
			return p.fail(ctx, err)
		}
		p.processed = current

		if itemErr != nil {
			if err := p.clock.Sleep(ctx, p.cfg.ErrorBackoff); err != nil {
				return err
			}
		}
	}
}

// handleItem carries one dequeued item to completion. A returned error is
// per-item and recoverable: the loop records it, backs off and moves on.
func (p *Processor) handleItem(ctx context.Context, meta *jobs.Metadata, item *jobs.QueueItem) (string, error) {
	n := item.Index + 1

	element := resolveField(meta.ElementTemplate, meta.ElementColumn, item.Fields)
	if strings.TrimSpace(element) == "" {
		return fmt.Sprintf("Skipped item %d: Missing element identifier", n), nil
	}

	vector := item.Vector
	if len(vector) == 0 {
		text := resolveField(meta.TextTemplate, meta.TextColumn, item.Fields)
		if strings.TrimSpace(text) == "" {
			return fmt.Sprintf("Skipped item %d: no text to embed", n), nil
		}
		gen, err := p.generator(meta)
		if err != nil {
			return "", err
		}
		vector, err = gen.EmbedText(ctx, text)
		if err != nil {
			return "", err
		}
	}

	attributes := extractAttributes(meta.AttributeColumns, item.Fields)

	if meta.ExportMode == jobs.ExportFile {
		p.exporter.Append(element, vector, attributes)
	} else {
		if err := p.sink.Insert(ctx, meta.Destination, element, vector, attributes); err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("Processed item %d", n), nil
}

// finalize runs when the queue drains: flush the export buffer, record the
// completion, persist the terminal status and remove the job keys.
func (p *Processor) finalize(ctx context.Context, meta *jobs.Metadata) error {
	var outputPath string
	if meta.ExportMode == jobs.ExportFile {
		path, err := p.exporter.Flush(meta.OutputName)
		if err != nil {
			return p.fail(ctx, err)
		}
		outputPath = path
	}

	entry := jobs.CompletionEntry{
		JobID:       p.jobID,
		Destination: meta.Destination,
		Format:      meta.Format,
		Total:       meta.Total,
		OutputPath:  outputPath,
		FinishedAt:  p.clock.Now().UnixMilli(),
	}
	if err := p.queue.AppendCompletion(ctx, entry); err != nil {
		// The import itself succeeded; a lost audit line is not worth
		// failing the job over.
		p.logger.Warn("failed to record completion", "error", err)
	}

	status := jobs.StatusCompleted
	current := meta.Total
	message := "Import complete"
	if _, err := p.queue.UpdateProgress(ctx, p.jobID, jobs.ProgressPatch{Status: &status, Current: &current, Message: &message}); err != nil {
		return p.fail(ctx, err)
	}
	p.processed = meta.Total
	p.record(jobs.StatusCompleted, "", outputPath)

	if err := p.queue.CleanupJob(ctx, p.jobID); err != nil {
		p.logger.Error("failed to clean up job keys", "error", err)
		return nil
	}

	p.logger.Info("job completed", "total", meta.Total, "output", outputPath)
	return nil
}

// fail persists the failed status with the captured error and returns the
// cause. Job keys are retained for inspection. Nothing is written when ctx
// is already dead: a shutdown must not mark jobs failed.
func (p *Processor) fail(ctx context.Context, cause error) error {
	if ctx.Err() != nil {
		return cause
	}
	status := jobs.StatusFailed
	errText := cause.Error()
	if _, err := p.queue.UpdateProgress(ctx, p.jobID, jobs.ProgressPatch{Status: &status, Error: &errText}); err != nil {
		p.logger.Error("failed to persist failure", "error", err)
	}
	p.record(jobs.StatusFailed, errText, "")
	p.logger.Error("job failed", "error", cause)
	return cause
}

// record emits the job's usage record, once the outcome is known. No-op
// without a configured sink.
func (p *Processor) record(status jobs.Status, errMsg, outputPath string) {
	if p.recordFn == nil || p.meta == nil {
		return
	}
	completed := p.clock.Now()
	p.recordFn(usage.Record{
		JobID:        p.jobID,
		Destination:  p.meta.Destination,
		Format:       string(p.meta.Format),
		Provider:     p.meta.Embedding.Provider,
		Model:        p.meta.Embedding.Model,
		Status:       string(status),
		ErrorMessage: errMsg,
		Elements:     int64(p.processed),
		Total:        int64(p.meta.Total),
		StartedAt:    p.startedAt,
		CompletedAt:  completed,
		DurationMs:   completed.Sub(p.startedAt).Milliseconds(),
		OutputPath:   outputPath,
	})
}

func (p *Processor) generator(meta *jobs.Metadata) (embed.Generator, error) {
	if p.gen != nil {
		return p.gen, nil
	}
	gen, err := p.newGen(meta.Embedding)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	p.gen = gen
	return gen, nil
}

func (p *Processor) isPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Processor) setPaused(v bool) {
	p.mu.Lock()
	p.paused = v
	p.mu.Unlock()
}

// extractAttributes copies the configured attribute columns present in the
// item's fields. Absent columns are omitted, not defaulted.
func extractAttributes(columns []string, fields map[string]string) map[string]string {
	var attributes map[string]string
	for _, col := range columns {
		value, ok := fields[col]
		if !ok {
			continue
		}
		if attributes == nil {
			attributes = make(map[string]string, len(columns))
		}
		attributes[col] = value
	}
	return attributes
}
