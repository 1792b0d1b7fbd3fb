package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openvectors/vecimport/internal/embed"
	"github.com/openvectors/vecimport/internal/jobs"
	"github.com/openvectors/vecimport/internal/manager"
	"github.com/openvectors/vecimport/internal/normalize"
	"github.com/openvectors/vecimport/internal/queue"
)

const defaultImportLogLimit = 20

// createJobRequest carries one inline import source plus its job options.
// Exactly one of CSV, Records or Vectors should be set, matching Format.
type createJobRequest struct {
	Format jobs.SourceFormat `json:"format"`

	// CSV is the raw CSV text for csv jobs.
	CSV string `json:"csv,omitempty"`

	// Records is the raw JSON document (object or array) for json jobs.
	Records json.RawMessage `json:"records,omitempty"`

	// Vectors holds pre-embedded vectors for image jobs.
	Vectors [][]float32 `json:"vectors,omitempty"`

	Destination string       `json:"destination,omitempty"`
	Embedding   embed.Config `json:"embedding,omitempty"`

	ElementColumn    string            `json:"elementColumn,omitempty"`
	ElementTemplate  string            `json:"elementTemplate,omitempty"`
	TextColumn       string            `json:"textColumn,omitempty"`
	TextTemplate     string            `json:"textTemplate,omitempty"`
	AttributeColumns []string          `json:"attributeColumns,omitempty"`
	Parsing          jobs.ParseOptions `json:"parsing,omitempty"`
	ExportMode       jobs.ExportMode   `json:"exportMode,omitempty"`
	OutputName       string            `json:"outputName,omitempty"`
}

type createJobResponse struct {
	JobID string `json:"jobId"`
	Total int    `json:"total"`
}

func (s *Server) createJob(w http.ResponseWriter, req *http.Request) {
	var body createJobRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, "malformed request body: "+err.Error())
		return
	}

	var src normalize.Source
	switch body.Format {
	case jobs.FormatCSV:
		src = normalize.CSV(body.CSV, body.Parsing)
	case jobs.FormatJSON:
		src = normalize.JSON(body.Records)
	case jobs.FormatImage:
		src = normalize.Images(body.Vectors, body.AttributeColumns)
	default:
		writeError(w, http.StatusBadRequest, codeValidationError, "unknown source format: "+string(body.Format))
		return
	}

	meta := jobs.Metadata{
		Destination:      body.Destination,
		Embedding:        body.Embedding,
		ElementColumn:    body.ElementColumn,
		ElementTemplate:  body.ElementTemplate,
		TextColumn:       body.TextColumn,
		TextTemplate:     body.TextTemplate,
		AttributeColumns: body.AttributeColumns,
		Parsing:          body.Parsing,
		ExportMode:       body.ExportMode,
		OutputName:       body.OutputName,
	}

	jobID, err := s.svc.CreateJob(req.Context(), src, meta)
	if err != nil {
		var verr *queue.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, codeValidationError, verr.Reason)
			return
		}
		s.logger.Error("job creation failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to create job")
		return
	}

	progress, err := s.svc.GetProgress(req.Context(), jobID)
	if err != nil || progress == nil {
		s.logger.Error("progress missing after create", "jobId", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to create job")
		return
	}

	// The job exists either way; a saturated pool only delays it.
	if err := s.mgr.StartJob(jobID); err != nil {
		s.logger.Warn("job created but not scheduled", "jobId", jobID, "error", err)
	}

	writeJSON(w, http.StatusAccepted, createJobResponse{JobID: jobID, Total: progress.Total})
}

func (s *Server) getProgress(w http.ResponseWriter, req *http.Request) {
	jobID := chi.URLParam(req, "jobID")

	progress, err := s.svc.GetProgress(req.Context(), jobID)
	if err != nil {
		s.logger.Error("progress read failed", "jobId", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to read job progress")
		return
	}
	if progress == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "unknown job: "+jobID)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) getMetadata(w http.ResponseWriter, req *http.Request) {
	jobID := chi.URLParam(req, "jobID")

	meta, err := s.svc.GetMetadata(req.Context(), jobID)
	if err != nil {
		s.logger.Error("metadata read failed", "jobId", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to read job metadata")
		return
	}
	if meta == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "unknown job: "+jobID)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// controlJob adapts a manager control call into a handler. On success the
// fresh progress record is returned so callers see the effect immediately.
func (s *Server) controlJob(control func(ctx context.Context, jobID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		jobID := chi.URLParam(req, "jobID")

		if err := control(req.Context(), jobID); err != nil {
			switch {
			case errors.Is(err, manager.ErrUnknownJob):
				writeError(w, http.StatusNotFound, codeNotFound, "unknown job: "+jobID)
			case errors.Is(err, manager.ErrJobFinished):
				writeError(w, http.StatusConflict, codeConflict, err.Error())
			default:
				s.logger.Error("job control failed", "jobId", jobID, "error", err)
				writeError(w, http.StatusInternalServerError, codeInternalError, "job control failed")
			}
			return
		}

		progress, err := s.svc.GetProgress(req.Context(), jobID)
		if err != nil || progress == nil {
			s.logger.Error("progress read after control failed", "jobId", jobID, "error", err)
			writeError(w, http.StatusInternalServerError, codeInternalError, "failed to read job progress")
			return
		}
		writeJSON(w, http.StatusOK, progress)
	}
}

func (s *Server) listImports(w http.ResponseWriter, req *http.Request) {
	limit := defaultImportLogLimit
	if raw := req.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, codeValidationError, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.svc.RecentCompletions(req.Context(), limit)
	if err != nil {
		s.logger.Error("completion log read failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to read import log")
		return
	}
	if entries == nil {
		entries = []jobs.CompletionEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"imports": entries})
}

func (s *Server) healthz(w http.ResponseWriter, req *http.Request) {
	snapshot := s.collector.Collect(req.Context())
	code := http.StatusOK
	if !snapshot.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, snapshot)
}
