package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openvectors/vecimport/internal/embed"
	"github.com/openvectors/vecimport/internal/jobs"
	"github.com/openvectors/vecimport/internal/normalize"
)

func watchServer(t *testing.T) (*fixture, *httptest.Server) {
	t.Helper()
	f := setupServer(t)
	ts := httptest.NewServer(f.handler)
	t.Cleanup(ts.Close)
	return f, ts
}

func pendingJob(t *testing.T, f *fixture) string {
	t.Helper()
	// Created directly so no processor is scheduled.
	jobID, err := f.svc.CreateJob(context.Background(),
		normalize.CSV("id,text\na,one\nb,two\nc,three\n", jobs.ParseOptions{}),
		jobs.Metadata{Destination: "products", Embedding: embed.Config{Provider: "fake"}})
	if err != nil {
		t.Fatalf("failed to create job: %v", err)
	}
	return jobID
}

func dialWatch(t *testing.T, ts *httptest.Server, jobID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/jobs/" + jobID + "/watch"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial watch socket: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) WatchEvent {
	t.Helper()
	var event WatchEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("failed to read watch event: %v", err)
	}
	return event
}

func expectNormalClose(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal close, got %v", err)
	}
}

func TestWatchStreamsProgressUpdates(t *testing.T) {
	f, ts := watchServer(t)
	ctx := context.Background()
	jobID := pendingJob(t, f)

	conn := dialWatch(t, ts, jobID)

	event := readEvent(t, conn)
	if event.Type != "progress" || event.JobID != jobID {
		t.Fatalf("first event = %s %s, want progress %s", event.Type, event.JobID, jobID)
	}
	if event.Progress == nil || event.Progress.Status != jobs.StatusPending {
		t.Fatalf("first event progress = %+v, want pending", event.Progress)
	}

	processing := jobs.StatusProcessing
	current := 1
	if _, err := f.svc.UpdateProgress(ctx, jobID, jobs.ProgressPatch{Status: &processing, Current: &current}); err != nil {
		t.Fatalf("failed to update progress: %v", err)
	}

	event = readEvent(t, conn)
	if event.Type != "progress" || event.Progress == nil || event.Progress.Status != jobs.StatusProcessing || event.Progress.Current != 1 {
		t.Fatalf("second event = %+v, want processing 1", event)
	}

	cancelled := jobs.StatusCancelled
	reason := "cancelled by operator"
	if _, err := f.svc.UpdateProgress(ctx, jobID, jobs.ProgressPatch{Status: &cancelled, Error: &reason}); err != nil {
		t.Fatalf("failed to cancel: %v", err)
	}

	event = readEvent(t, conn)
	if event.Type != "done" {
		t.Fatalf("final event type = %s, want done", event.Type)
	}
	if event.Progress == nil || event.Progress.Status != jobs.StatusCancelled {
		t.Fatalf("final event progress = %+v, want cancelled", event.Progress)
	}
	if event.Progress.Error != reason {
		t.Errorf("final event error = %q, want %q", event.Progress.Error, reason)
	}

	expectNormalClose(t, conn)
}

func TestWatchReportsCompletionAfterCleanup(t *testing.T) {
	f, ts := watchServer(t)
	ctx := context.Background()
	jobID := pendingJob(t, f)

	conn := dialWatch(t, ts, jobID)
	readEvent(t, conn)

	// Mirror the processor's finalize order: log first, then remove keys.
	entry := jobs.CompletionEntry{
		JobID:       jobID,
		Destination: "products",
		Format:      jobs.FormatCSV,
		Total:       3,
		FinishedAt:  time.Now().UnixMilli(),
	}
	if err := f.svc.AppendCompletion(ctx, entry); err != nil {
		t.Fatalf("failed to append completion: %v", err)
	}
	if err := f.svc.CleanupJob(ctx, jobID); err != nil {
		t.Fatalf("failed to clean up job: %v", err)
	}

	event := readEvent(t, conn)
	if event.Type != "done" {
		t.Fatalf("event type = %s, want done", event.Type)
	}
	if event.Completion == nil {
		t.Fatal("done event should carry the completion entry")
	}
	if event.Completion.JobID != jobID || event.Completion.Total != 3 {
		t.Errorf("completion = %+v, want job %s with 3 elements", event.Completion, jobID)
	}

	expectNormalClose(t, conn)
}

func TestWatchFinishedJobClosesImmediately(t *testing.T) {
	f, ts := watchServer(t)
	ctx := context.Background()
	jobID := pendingJob(t, f)

	cancelled := jobs.StatusCancelled
	if _, err := f.svc.UpdateProgress(ctx, jobID, jobs.ProgressPatch{Status: &cancelled}); err != nil {
		t.Fatalf("failed to cancel: %v", err)
	}

	conn := dialWatch(t, ts, jobID)

	event := readEvent(t, conn)
	if event.Type != "done" || event.Progress == nil || event.Progress.Status != jobs.StatusCancelled {
		t.Fatalf("event = %+v, want immediate done/cancelled", event)
	}

	expectNormalClose(t, conn)
}

func TestWatchUnknownJobRejectedBeforeUpgrade(t *testing.T) {
	f, _ := watchServer(t)

	rec := f.do(t, http.MethodGet, "/api/jobs/ghost/watch", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body := decodeError(t, rec); body.Error.Code != codeNotFound {
		t.Errorf("error code = %s, want %s", body.Error.Code, codeNotFound)
	}
}
