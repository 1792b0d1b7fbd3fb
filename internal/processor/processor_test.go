package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/openvectors/vecimport/internal/embed"
	"github.com/openvectors/vecimport/internal/jobs"
	"github.com/openvectors/vecimport/internal/jobstore"
	"github.com/openvectors/vecimport/internal/normalize"
	"github.com/openvectors/vecimport/internal/queue"
	"github.com/openvectors/vecimport/internal/usage"
	"github.com/openvectors/vecimport/internal/vectorstore"
)

// fakeClock advances instantly and reports every sleep through an optional
// hook, which tests use as their scheduling point.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  int
	onSleep func(n int)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1724400000000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps++
	n := c.sleeps
	c.now = c.now.Add(d)
	hook := c.onSleep
	c.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

func (c *fakeClock) sleepCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeps
}

type insertCall struct {
	set        string
	element    string
	vector     []float32
	attributes map[string]string
}

// fakeSink records inserts and reports each through an optional hook.
type fakeSink struct {
	mu       sync.Mutex
	calls    []insertCall
	onInsert func(n int, element string)
	failFor  map[string]error
}

func (s *fakeSink) Insert(ctx context.Context, set, element string, vector []float32, attributes map[string]string) error {
	s.mu.Lock()
	if err := s.failFor[element]; err != nil {
		s.mu.Unlock()
		return err
	}
	s.calls = append(s.calls, insertCall{set: set, element: element, vector: vector, attributes: attributes})
	n := len(s.calls)
	hook := s.onInsert
	s.mu.Unlock()
	if hook != nil {
		hook(n, element)
	}
	return nil
}

func (s *fakeSink) elements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.element
	}
	return out
}

func (s *fakeSink) call(i int) insertCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}

type fixture struct {
	mr    *miniredis.Miniredis
	store *jobstore.RedisStore
	svc   *queue.Service
	sink  *fakeSink
	clock *fakeClock
}

func setup(t *testing.T) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	store, err := jobstore.Connect(context.Background(), "redis://"+mr.Addr(), "")
	if err != nil {
		t.Fatalf("failed to connect store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return &fixture{
		mr:    mr,
		store: store,
		svc:   queue.NewService(store),
		sink:  &fakeSink{},
		clock: newFakeClock(),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (f *fixture) processor(jobID string, exporter *vectorstore.Exporter, newGen func(embed.Config) (embed.Generator, error)) *Processor {
	if newGen == nil {
		newGen = func(embed.Config) (embed.Generator, error) { return embed.NewFake(4), nil }
	}
	return New(jobID, Options{
		Queue:        f.svc,
		Sink:         f.sink,
		Exporter:     exporter,
		NewGenerator: newGen,
		Clock:        f.clock,
		Config:       Config{PauseInterval: time.Second, ErrorBackoff: time.Second},
		Logger:       discardLogger(),
	})
}

func (f *fixture) createCSV(t *testing.T, data string, meta jobs.Metadata) string {
	t.Helper()
	if meta.Destination == "" && meta.ExportMode != jobs.ExportFile {
		meta.Destination = "dest"
	}
	jobID, err := f.svc.CreateJob(context.Background(), normalize.CSV(data, jobs.ParseOptions{}), meta)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return jobID
}

func csvOf(n int) string {
	var b strings.Builder
	b.WriteString("id,text\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "e%d,some text %d\n", i, i)
	}
	return b.String()
}

func TestRunDrainsToCompletion(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	jobID := f.createCSV(t, "id,text\na,alpha\nb,beta\nc,gamma\n", jobs.Metadata{})
	p := f.processor(jobID, nil, nil)

	if err := p.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := f.sink.elements(); len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("inserted elements = %v", got)
	}
	if len(f.sink.call(0).vector) != 4 {
		t.Errorf("vector width = %d, want 4", len(f.sink.call(0).vector))
	}
	if f.sink.call(0).set != "dest" {
		t.Errorf("set = %q", f.sink.call(0).set)
	}

	keys := f.mr.Keys()
	if len(keys) != 1 || keys[0] != jobstore.CompletionLogKey {
		t.Errorf("job keys should be cleaned after completion, got %v", keys)
	}

	entries, err := f.svc.RecentCompletions(ctx, 0)
	if err != nil {
		t.Fatalf("list completions failed: %v", err)
	}
	if len(entries) != 1 || entries[0].JobID != jobID || entries[0].Total != 3 {
		t.Errorf("completion entries = %+v", entries)
	}
}

func TestRunFileExport(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	exporter := vectorstore.NewExporter(t.TempDir())
	jobID := f.createCSV(t, "id,text\na,alpha\nb,beta\n", jobs.Metadata{
		ExportMode: jobs.ExportFile,
		OutputName: "catalog",
	})
	p := f.processor(jobID, exporter, nil)

	if err := p.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(f.sink.elements()) != 0 {
		t.Error("file export should not touch the vector store")
	}

	entries, err := f.svc.RecentCompletions(ctx, 1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("completion entry missing: %v", err)
	}
	if entries[0].OutputPath == "" {
		t.Fatal("completion entry has no output path")
	}
	data, err := os.ReadFile(entries[0].OutputPath)
	if err != nil {
		t.Fatalf("export file unreadable: %v", err)
	}
	if !strings.Contains(string(data), `"element": "a"`) || !strings.Contains(string(data), `"element": "b"`) {
		t.Errorf("export content = %s", data)
	}
}

func TestRunSkipsMissingIdentifier(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	jobID := f.createCSV(t, "id,text\na,alpha\n,beta\nc,gamma\n", jobs.Metadata{})

	var skippedMessage string
	var currentAtThird int
	f.sink.onInsert = func(n int, element string) {
		if element == "c" {
			if progress, err := f.svc.GetProgress(ctx, jobID); err == nil && progress != nil {
				skippedMessage = progress.Message
				currentAtThird = progress.Current
			}
		}
	}

	p := f.processor(jobID, nil, nil)
	if err := p.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := f.sink.elements(); len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("inserted elements = %v", got)
	}
	if !strings.Contains(skippedMessage, "Missing element identifier") {
		t.Errorf("skip message = %q", skippedMessage)
	}
	if currentAtThird != 2 {
		t.Errorf("current after skipped item = %d, want 2", currentAtThird)
	}
	if f.clock.sleepCount() != 0 {
		t.Errorf("skips must not back off, slept %d times", f.clock.sleepCount())
	}
}

func TestRunPerItemErrorAdvances(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	jobID := f.createCSV(t, "id,text\na,alpha\nb,beta\nc,gamma\n", jobs.Metadata{})

	newGen := func(embed.Config) (embed.Generator, error) {
		fake := embed.NewFake(4)
		fake.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
			if strings.Contains(text, "beta") {
				return nil, errors.New("provider exploded")
			}
			return embed.NewFake(4).EmbedText(ctx, text)
		}
		return fake, nil
	}

	var errorMessage string
	f.sink.onInsert = func(n int, element string) {
		if element == "c" {
			if progress, err := f.svc.GetProgress(ctx, jobID); err == nil && progress != nil {
				errorMessage = progress.Message
			}
		}
	}

	p := f.processor(jobID, nil, newGen)
	if err := p.Run(ctx); err != nil {
		t.Fatalf("per-item failure must not fail the job: %v", err)
	}

	if got := f.sink.elements(); len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("inserted elements = %v", got)
	}
	if !strings.Contains(errorMessage, "Error processing item 2") || !strings.Contains(errorMessage, "provider exploded") {
		t.Errorf("error message = %q", errorMessage)
	}
	if f.clock.sleepCount() != 1 {
		t.Errorf("expected exactly one backoff sleep, got %d", f.clock.sleepCount())
	}

	entries, err := f.svc.RecentCompletions(ctx, 1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("job should still complete: %v", err)
	}
}

func TestRunPrecomputedVectorSkipsEmbedding(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	raw := []byte(`[{"id":"pre","text":"ignored","vector":[0.25,0.5]}]`)
	jobID, err := f.svc.CreateJob(ctx, normalize.JSON(raw), jobs.Metadata{Destination: "dest"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	newGen := func(embed.Config) (embed.Generator, error) {
		return nil, errors.New("generator must not be constructed")
	}

	p := f.processor(jobID, nil, newGen)
	if err := p.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(f.sink.elements()) != 1 {
		t.Fatalf("elements = %v", f.sink.elements())
	}
	vec := f.sink.call(0).vector
	if len(vec) != 2 || vec[0] != 0.25 || vec[1] != 0.5 {
		t.Errorf("precomputed vector altered: %v", vec)
	}
}

func TestRunAttributeExtraction(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	jobID := f.createCSV(t, "id,text,price,category\na,alpha,9.99,tools\n", jobs.Metadata{
		AttributeColumns: []string{"price", "category", "warehouse"},
	})

	p := f.processor(jobID, nil, nil)
	if err := p.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	attrs := f.sink.call(0).attributes
	if attrs["price"] != "9.99" || attrs["category"] != "tools" {
		t.Errorf("attributes = %v", attrs)
	}
	if _, present := attrs["warehouse"]; present {
		t.Error("absent column must be omitted, not defaulted")
	}
}

func TestRunPauseResume(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	jobID := f.createCSV(t, csvOf(10), jobs.Metadata{})
	var p *Processor

	f.sink.onInsert = func(n int, element string) {
		if n == 3 {
			if err := p.Pause(ctx); err != nil {
				t.Errorf("pause failed: %v", err)
			}
		}
	}

	var pausedCurrents []int
	var resumeOnce sync.Once
	f.clock.onSleep = func(n int) {
		progress, err := f.svc.GetProgress(ctx, jobID)
		if err == nil && progress != nil {
			pausedCurrents = append(pausedCurrents, progress.Current)
		}
		if n >= 3 {
			resumeOnce.Do(func() {
				if err := p.Resume(ctx); err != nil {
					t.Errorf("resume failed: %v", err)
				}
			})
		}
	}

	p = f.processor(jobID, nil, nil)
	if err := p.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got := f.sink.elements()
	if len(got) != 10 {
		t.Fatalf("inserted %d elements, want 10: %v", len(got), got)
	}
	for i, element := range got {
		if element != fmt.Sprintf("e%d", i) {
			t.Errorf("element %d = %q, processed out of order or twice", i, element)
		}
	}

	if len(pausedCurrents) < 3 {
		t.Fatalf("expected at least 3 pause polls, got %d", len(pausedCurrents))
	}
	for i, current := range pausedCurrents[:3] {
		if current != 3 {
			t.Errorf("current advanced to %d during pause poll %d", current, i+1)
		}
	}
}

func TestRunCancelKeepsKeys(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	jobID := f.createCSV(t, csvOf(5), jobs.Metadata{})
	var p *Processor

	f.sink.onInsert = func(n int, element string) {
		if n == 2 {
			if err := p.Stop(ctx); err != nil {
				t.Errorf("stop failed: %v", err)
			}
		}
	}

	p = f.processor(jobID, nil, nil)
	if err := p.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(f.sink.elements()) != 2 {
		t.Errorf("inserted %d elements after cancel, want 2", len(f.sink.elements()))
	}

	progress, err := f.svc.GetProgress(ctx, jobID)
	if err != nil || progress == nil {
		t.Fatalf("status must survive cancellation: %v", err)
	}
	if progress.Status != jobs.StatusCancelled || progress.Current != 2 {
		t.Errorf("progress = %+v", progress)
	}

	meta, err := f.svc.GetMetadata(ctx, jobID)
	if err != nil || meta == nil {
		t.Error("metadata must survive cancellation")
	}
	item, err := f.svc.NextItem(ctx, jobID)
	if err != nil || item == nil {
		t.Fatalf("queue must survive cancellation: %v", err)
	}
	if item.Index != 2 {
		t.Errorf("next queued item index = %d, want 2", item.Index)
	}
}

func TestRunCancelWhilePaused(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	jobID := f.createCSV(t, csvOf(3), jobs.Metadata{})
	var p *Processor

	f.sink.onInsert = func(n int, element string) {
		if n == 1 {
			if err := p.Pause(ctx); err != nil {
				t.Errorf("pause failed: %v", err)
			}
		}
	}
	var stopOnce sync.Once
	f.clock.onSleep = func(n int) {
		if n >= 2 {
			stopOnce.Do(func() {
				if err := p.Stop(ctx); err != nil {
					t.Errorf("stop failed: %v", err)
				}
			})
		}
	}

	p = f.processor(jobID, nil, nil)
	if err := p.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	progress, err := f.svc.GetProgress(ctx, jobID)
	if err != nil || progress == nil {
		t.Fatalf("progress missing: %v", err)
	}
	if progress.Status != jobs.StatusCancelled || progress.Current != 1 {
		t.Errorf("progress = %+v", progress)
	}
}

func TestRunOrphanHealing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	jobID := f.createCSV(t, csvOf(3), jobs.Metadata{})

	f.sink.onInsert = func(n int, element string) {
		if n == 1 {
			if err := f.store.Delete(ctx, jobstore.MetadataKey(jobID)); err != nil {
				t.Errorf("delete metadata failed: %v", err)
			}
		}
	}

	p := f.processor(jobID, nil, nil)
	if err := p.Run(ctx); err != nil {
		t.Fatalf("healing must not report failure: %v", err)
	}

	hasStatus, err := f.svc.HasStatus(ctx, jobID)
	if err != nil {
		t.Fatalf("has status failed: %v", err)
	}
	if hasStatus {
		t.Error("orphaned status should be deleted")
	}
	if len(f.sink.elements()) != 1 {
		t.Errorf("inserted %d elements, want 1", len(f.sink.elements()))
	}
}

func TestRunStopsWhenDeletedExternally(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	jobID := f.createCSV(t, csvOf(3), jobs.Metadata{})

	f.sink.onInsert = func(n int, element string) {
		if n == 1 {
			if err := f.svc.CleanupJob(ctx, jobID); err != nil {
				t.Errorf("cleanup failed: %v", err)
			}
		}
	}

	p := f.processor(jobID, nil, nil)
	if err := p.Run(ctx); err != nil {
		t.Fatalf("external deletion must stop silently: %v", err)
	}
	if len(f.sink.elements()) != 1 {
		t.Errorf("inserted %d elements, want 1", len(f.sink.elements()))
	}
	if keys := f.mr.Keys(); len(keys) != 0 {
		t.Errorf("keys = %v", keys)
	}
}

func TestRunJobNotFound(t *testing.T) {
	f := setup(t)

	p := f.processor("ghost", nil, nil)
	err := p.Run(context.Background())
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
	if keys := f.mr.Keys(); len(keys) != 0 {
		t.Errorf("missing job must not create state: %v", keys)
	}
}

func TestRunTerminalStatusNotResurrected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	jobID := f.createCSV(t, csvOf(2), jobs.Metadata{})
	status := jobs.StatusCancelled
	if _, err := f.svc.UpdateProgress(ctx, jobID, jobs.ProgressPatch{Status: &status}); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	p := f.processor(jobID, nil, nil)
	if err := p.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	progress, err := f.svc.GetProgress(ctx, jobID)
	if err != nil || progress == nil {
		t.Fatalf("progress missing: %v", err)
	}
	if progress.Status != jobs.StatusCancelled {
		t.Errorf("status = %v, cancelled job must not restart", progress.Status)
	}
	if len(f.sink.elements()) != 0 {
		t.Errorf("cancelled job processed %d items", len(f.sink.elements()))
	}
}

func TestRunZeroItemJob(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	jobID := f.createCSV(t, "id,text\n", jobs.Metadata{})
	p := f.processor(jobID, nil, nil)

	if err := p.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	entries, err := f.svc.RecentCompletions(ctx, 1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("zero-item job should complete: %v", err)
	}
	if entries[0].Total != 0 {
		t.Errorf("total = %d, want 0", entries[0].Total)
	}
	if keys := f.mr.Keys(); len(keys) != 1 {
		t.Errorf("keys = %v", keys)
	}
}

func TestRunIdempotentWhileRunning(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	jobID := f.createCSV(t, csvOf(2), jobs.Metadata{})
	status := jobs.StatusPaused
	if _, err := f.svc.UpdateProgress(ctx, jobID, jobs.ProgressPatch{Status: &status}); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	p := f.processor(jobID, nil, nil)

	started := make(chan struct{})
	var startOnce sync.Once
	f.clock.onSleep = func(n int) {
		startOnce.Do(func() { close(started) })
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	<-started
	if !p.Running() {
		t.Error("processor should report running")
	}
	if err := p.Run(ctx); err != nil {
		t.Errorf("second Run must be a no-op, got %v", err)
	}

	if err := p.Resume(ctx); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := f.sink.elements(); len(got) != 2 {
		t.Errorf("inserted %d elements, want 2 (no double processing)", len(got))
	}
}

func TestPauseResumeStatusIdempotence(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	jobID := f.createCSV(t, csvOf(1), jobs.Metadata{})
	p := f.processor(jobID, nil, nil)

	for i := 0; i < 2; i++ {
		if err := p.Pause(ctx); err != nil {
			t.Fatalf("pause %d failed: %v", i, err)
		}
	}
	progress, err := f.svc.GetProgress(ctx, jobID)
	if err != nil || progress == nil {
		t.Fatalf("progress missing: %v", err)
	}
	if progress.Status != jobs.StatusPaused {
		t.Errorf("status after double pause = %v", progress.Status)
	}

	for i := 0; i < 2; i++ {
		if err := p.Resume(ctx); err != nil {
			t.Fatalf("resume %d failed: %v", i, err)
		}
	}
	progress, err = f.svc.GetProgress(ctx, jobID)
	if err != nil || progress == nil {
		t.Fatalf("progress missing: %v", err)
	}
	if progress.Status != jobs.StatusProcessing {
		t.Errorf("status after double resume = %v", progress.Status)
	}
}

func TestRunSinkFailureIsRecoverable(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	jobID := f.createCSV(t, "id,text\na,alpha\nb,beta\n", jobs.Metadata{})
	f.sink.failFor = map[string]error{"a": errors.New("set is busy")}

	p := f.processor(jobID, nil, nil)
	if err := p.Run(ctx); err != nil {
		t.Fatalf("sink failure on one item must not fail the job: %v", err)
	}

	if got := f.sink.elements(); len(got) != 1 || got[0] != "b" {
		t.Errorf("elements = %v", got)
	}
	if f.clock.sleepCount() != 1 {
		t.Errorf("expected one backoff, got %d sleeps", f.clock.sleepCount())
	}
}

func (f *fixture) recordingProcessor(jobID string, records *[]usage.Record) *Processor {
	return New(jobID, Options{
		Queue:        f.svc,
		Sink:         f.sink,
		NewGenerator: func(embed.Config) (embed.Generator, error) { return embed.NewFake(4), nil },
		RecordFn:     func(r usage.Record) { *records = append(*records, r) },
		Clock:        f.clock,
		Config:       Config{PauseInterval: time.Second, ErrorBackoff: time.Second},
		Logger:       discardLogger(),
	})
}

func TestRunRecordsCompletedUsage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	jobID := f.createCSV(t, "id,text\na,alpha\nb,beta\nc,gamma\n", jobs.Metadata{
		Embedding: embed.Config{Provider: "fake", Model: "fake-4"},
	})

	var records []usage.Record
	p := f.recordingProcessor(jobID, &records)
	if err := p.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("expected 1 usage record, got %d", len(records))
	}
	r := records[0]
	if r.JobID != jobID || r.Status != "completed" {
		t.Errorf("record = %+v", r)
	}
	if r.Elements != 3 || r.Total != 3 {
		t.Errorf("elements = %d/%d, want 3/3", r.Elements, r.Total)
	}
	if r.Destination != "dest" || r.Format != "csv" {
		t.Errorf("destination/format = %q/%q", r.Destination, r.Format)
	}
	if r.Provider != "fake" || r.Model != "fake-4" {
		t.Errorf("provider/model = %q/%q", r.Provider, r.Model)
	}
	if r.StartedAt.IsZero() || r.CompletedAt.Before(r.StartedAt) {
		t.Errorf("timing = %v .. %v", r.StartedAt, r.CompletedAt)
	}
}

func TestRunRecordsCancelledUsage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	jobID := f.createCSV(t, csvOf(5), jobs.Metadata{})
	var records []usage.Record
	var p *Processor

	f.sink.onInsert = func(n int, element string) {
		if n == 2 {
			if err := p.Stop(ctx); err != nil {
				t.Errorf("stop failed: %v", err)
			}
		}
	}

	p = f.recordingProcessor(jobID, &records)
	if err := p.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("expected 1 usage record, got %d", len(records))
	}
	r := records[0]
	if r.Status != "cancelled" {
		t.Errorf("status = %q, want cancelled", r.Status)
	}
	if r.Elements != 2 || r.Total != 5 {
		t.Errorf("elements = %d/%d, want 2/5", r.Elements, r.Total)
	}
}

func TestRunRecordsFailedUsage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	jobID := f.createCSV(t, csvOf(3), jobs.Metadata{})
	var records []usage.Record

	f.sink.onInsert = func(n int, element string) {
		if n == 1 {
			f.mr.SetError("connection refused")
		}
	}

	p := f.recordingProcessor(jobID, &records)
	if err := p.Run(ctx); err == nil {
		t.Fatal("store failure should fail the run")
	}
	f.mr.SetError("")

	if len(records) != 1 {
		t.Fatalf("expected 1 usage record, got %d", len(records))
	}
	r := records[0]
	if r.Status != "failed" {
		t.Errorf("status = %q, want failed", r.Status)
	}
	if r.ErrorMessage == "" {
		t.Error("failed record should carry the error message")
	}
}

func TestRunTerminalAtStartNotRecorded(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	jobID := f.createCSV(t, csvOf(2), jobs.Metadata{})
	status := jobs.StatusCancelled
	if _, err := f.svc.UpdateProgress(ctx, jobID, jobs.ProgressPatch{Status: &status}); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	var records []usage.Record
	p := f.recordingProcessor(jobID, &records)
	if err := p.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("job that never ran produced %d usage records", len(records))
	}
}
