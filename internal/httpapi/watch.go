package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/openvectors/vecimport/internal/jobs"
)

// watchWriteTimeout bounds each socket write.
const watchWriteTimeout = 10 * time.Second

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local daemon; no origin restrictions.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WatchEvent is one message on a job watch socket. Type is "progress" while
// the job runs and "done" exactly once at the end. Completion is set on
// "done" when the job finished and was cleaned up before the final progress
// could be observed.
type WatchEvent struct {
	Type       string                `json:"type"`
	JobID      string                `json:"jobId"`
	Progress   *jobs.Progress        `json:"progress,omitempty"`
	Completion *jobs.CompletionEntry `json:"completion,omitempty"`
}

// watchJob streams progress updates over a WebSocket until the job reaches
// a terminal state or its keys are removed.
func (s *Server) watchJob(w http.ResponseWriter, req *http.Request) {
	jobID := chi.URLParam(req, "jobID")

	progress, err := s.svc.GetProgress(req.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternalError, err.Error())
		return
	}
	if progress == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "unknown job "+jobID)
		return
	}

	conn, err := watchUpgrader.Upgrade(w, req, nil)
	if err != nil {
		// Upgrade writes its own error response.
		s.logger.Warn("watch upgrade failed", "job", jobID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	// Reads only serve to notice the client hanging up.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	send := func(event WatchEvent) error {
		conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
		return conn.WriteJSON(event)
	}

	last := *progress
	initialType := "progress"
	if last.Status.Terminal() {
		initialType = "done"
	}
	if err := send(WatchEvent{Type: initialType, JobID: jobID, Progress: progress}); err != nil {
		return
	}
	if last.Status.Terminal() {
		s.closeWatch(conn)
		return
	}

	ticker := time.NewTicker(s.watchEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		progress, err := s.svc.GetProgress(ctx, jobID)
		if err != nil {
			return
		}

		if progress == nil {
			// Completed jobs are cleaned up; the completion log has the
			// final word.
			event := WatchEvent{Type: "done", JobID: jobID}
			event.Completion = s.findCompletion(ctx, jobID)
			send(event)
			s.closeWatch(conn)
			return
		}

		if *progress == last {
			continue
		}
		last = *progress

		eventType := "progress"
		if progress.Status.Terminal() {
			eventType = "done"
		}
		if err := send(WatchEvent{Type: eventType, JobID: jobID, Progress: progress}); err != nil {
			return
		}
		if progress.Status.Terminal() {
			s.closeWatch(conn)
			return
		}
	}
}

func (s *Server) findCompletion(ctx context.Context, jobID string) *jobs.CompletionEntry {
	entries, err := s.svc.RecentCompletions(ctx, 0)
	if err != nil {
		return nil
	}
	for i := range entries {
		if entries[i].JobID == jobID {
			return &entries[i]
		}
	}
	return nil
}

func (s *Server) closeWatch(conn *websocket.Conn) {
	conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
