// Package manager runs import jobs concurrently: one processor per active
// job, scheduled on a shared worker pool. Within a job processing stays
// strictly sequential; across jobs nothing is serialized beyond the pool
// size.
//
// The manager is also the interpretation layer for job control. Pause,
// resume and cancel reach a live processor directly when one is running,
// and fall back to plain status writes when none is (a job persisted by an
// earlier daemon run can still be resumed or cancelled).
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/openvectors/vecimport/internal/embed"
	"github.com/openvectors/vecimport/internal/jobs"
	"github.com/openvectors/vecimport/internal/processor"
	"github.com/openvectors/vecimport/internal/queue"
	"github.com/openvectors/vecimport/internal/usage"
	"github.com/openvectors/vecimport/internal/vectorstore"
)

// ErrUnknownJob is returned for control calls on jobs with no status record.
var ErrUnknownJob = errors.New("unknown job")

// ErrJobFinished is returned for control calls on jobs already in a
// terminal status.
var ErrJobFinished = errors.New("job already finished")

const defaultMaxConcurrent = 4

// Options wires a Manager.
type Options struct {
	Queue *queue.Service
	Sink  vectorstore.Sink

	// ExportDir is where file-export jobs write their JSON output.
	ExportDir string

	// MaxConcurrent bounds the number of jobs processing at once.
	MaxConcurrent int

	// NewGenerator defaults to embed.NewGenerator.
	NewGenerator func(cfg embed.Config) (embed.Generator, error)

	// RecordUsage, when set, receives a usage record for every job a
	// processor carries to an outcome.
	RecordUsage func(usage.Record)

	Clock     processor.Clock
	Processor processor.Config
	Logger    *slog.Logger
}

// Manager owns the worker pool and the set of live processors.
type Manager struct {
	svc       *queue.Service
	sink      vectorstore.Sink
	exportDir string
	newGen    func(cfg embed.Config) (embed.Generator, error)
	recordFn  func(usage.Record)
	clock     processor.Clock
	procCfg   processor.Config
	logger    *slog.Logger
	pool      *ants.Pool

	// ctx governs every job this manager schedules; jobs are background
	// work and must not die with the request that started them.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[string]*processor.Processor
}

// New builds a Manager and its worker pool.
func New(opts Options) (*Manager, error) {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.NewGenerator == nil {
		opts.NewGenerator = embed.NewGenerator
	}
	if opts.Clock == nil {
		opts.Clock = processor.SystemClock
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	pool, err := ants.NewPool(opts.MaxConcurrent, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		svc:       opts.Queue,
		sink:      opts.Sink,
		exportDir: opts.ExportDir,
		newGen:    opts.NewGenerator,
		recordFn:  opts.RecordUsage,
		clock:     opts.Clock,
		procCfg:   opts.Processor,
		logger:    opts.Logger,
		pool:      pool,
		ctx:       ctx,
		cancel:    cancel,
		active:    make(map[string]*processor.Processor),
	}, nil
}

// StartJob schedules a processor for jobID. Starting a job that is already
// scheduled or running is a no-op. When the pool is saturated the job is
// not scheduled and an error is returned; its state in the store is
// untouched, so it can be started again later.
func (m *Manager) StartJob(jobID string) error {
	m.mu.Lock()
	if _, ok := m.active[jobID]; ok {
		m.mu.Unlock()
		return nil
	}
	p := processor.New(jobID, processor.Options{
		Queue:        m.svc,
		Sink:         m.sink,
		Exporter:     vectorstore.NewExporter(m.exportDir),
		NewGenerator: m.newGen,
		RecordFn:     m.recordFn,
		Clock:        m.clock,
		Config:       m.procCfg,
		Logger:       m.logger,
	})
	m.active[jobID] = p
	m.mu.Unlock()

	err := m.pool.Submit(func() {
		defer m.remove(jobID)
		if err := p.Run(m.ctx); err != nil {
			m.logger.Error("job run ended with error", "jobId", jobID, "error", err)
		}
	})
	if err != nil {
		m.remove(jobID)
		return fmt.Errorf("failed to schedule job %s: %w", jobID, err)
	}
	return nil
}

// Pause suspends a job. Live processors get their flag set for immediate
// effect; otherwise the paused status is written directly.
func (m *Manager) Pause(ctx context.Context, jobID string) error {
	if err := m.checkControllable(ctx, jobID); err != nil {
		return err
	}
	if p := m.get(jobID); p != nil {
		return p.Pause(ctx)
	}
	status := jobs.StatusPaused
	_, err := m.svc.UpdateProgress(ctx, jobID, jobs.ProgressPatch{Status: &status})
	return err
}

// Resume continues a paused job, starting a fresh processor when none is
// live (the daemon may have restarted since the job was paused).
func (m *Manager) Resume(ctx context.Context, jobID string) error {
	if err := m.checkControllable(ctx, jobID); err != nil {
		return err
	}
	if p := m.get(jobID); p != nil {
		return p.Resume(ctx)
	}
	status := jobs.StatusProcessing
	if _, err := m.svc.UpdateProgress(ctx, jobID, jobs.ProgressPatch{Status: &status}); err != nil {
		return err
	}
	return m.StartJob(jobID)
}

// Cancel stops a job terminally. Job keys are retained for inspection.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	if err := m.checkControllable(ctx, jobID); err != nil {
		return err
	}
	if p := m.get(jobID); p != nil {
		return p.Stop(ctx)
	}
	status := jobs.StatusCancelled
	_, err := m.svc.UpdateProgress(ctx, jobID, jobs.ProgressPatch{Status: &status})
	return err
}

// ActiveJobs lists the jobs with a scheduled or running processor.
func (m *Manager) ActiveJobs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.active))
	for jobID := range m.active {
		out = append(out, jobID)
	}
	sort.Strings(out)
	return out
}

// Running reports whether jobID has a scheduled or running processor.
func (m *Manager) Running(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[jobID]
	return ok
}

// Close cancels every running job's context and tears down the pool.
// In-store job state is left as-is for the next daemon run.
func (m *Manager) Close() error {
	m.cancel()
	if err := m.pool.ReleaseTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("worker pool shutdown: %w", err)
	}
	return nil
}

// checkControllable rejects control calls on unknown or finished jobs
// before any status write happens, so a stray control call can never
// synthesize orphan state.
func (m *Manager) checkControllable(ctx context.Context, jobID string) error {
	progress, err := m.svc.GetProgress(ctx, jobID)
	if err != nil {
		return err
	}
	if progress == nil {
		return fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	if progress.Status.Terminal() {
		return fmt.Errorf("%w: job %s is %s", ErrJobFinished, jobID, progress.Status)
	}
	return nil
}

func (m *Manager) get(jobID string) *processor.Processor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[jobID]
}

func (m *Manager) remove(jobID string) {
	m.mu.Lock()
	delete(m.active, jobID)
	m.mu.Unlock()
}
