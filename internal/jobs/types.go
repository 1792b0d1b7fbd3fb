// Package jobs contains the shared type definitions for import jobs: the
// status state machine, the progress record, the immutable metadata
// snapshot and the queued record shape, together with the hash-field
// codecs used to persist them.
package jobs

import "github.com/openvectors/vecimport/internal/embed"

// Status represents the lifecycle state of an import job.
type Status string

const (
	// StatusPending is set at creation, before a processor picks the job up.
	StatusPending Status = "pending"

	// StatusProcessing means a processor is actively draining the queue.
	StatusProcessing Status = "processing"

	// StatusPaused means the processor is idling until resumed.
	StatusPaused Status = "paused"

	// StatusCompleted means every item was processed and job keys were removed.
	StatusCompleted Status = "completed"

	// StatusCancelled means the job was stopped externally; keys are retained.
	StatusCancelled Status = "cancelled"

	// StatusFailed means the processor hit a non-recoverable error; keys are retained.
	StatusFailed Status = "failed"
)

// Terminal reports whether a job in this status will never run again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// SourceFormat identifies the shape of the input data.
type SourceFormat string

const (
	FormatCSV   SourceFormat = "csv"
	FormatJSON  SourceFormat = "json"
	FormatImage SourceFormat = "image"
)

// ExportMode selects the destination sink.
type ExportMode string

const (
	// ExportStore writes each element into the destination vector set.
	ExportStore ExportMode = "store"

	// ExportFile accumulates elements in memory and writes one JSON file
	// at completion.
	ExportFile ExportMode = "file"
)

// ParseOptions carries the CSV parsing knobs captured at job creation.
type ParseOptions struct {
	// Delimiter is the column separator; empty means ",". Only the first
	// rune is used.
	Delimiter string `json:"delimiter,omitempty"`

	// NoHeader marks the first data row as a record rather than a header
	// row; columns are then named by position ("0", "1", ...).
	NoHeader bool `json:"noHeader,omitempty"`

	// SkipRows drops this many raw rows from the top of the input before
	// header detection.
	SkipRows int `json:"skipRows,omitempty"`
}

// Progress is the mutable, persisted job state. It is the only externally
// observable record of a running job; UI and CLI callers poll it.
type Progress struct {
	Status  Status `json:"status"`
	Current int    `json:"current"`
	Total   int    `json:"total"`

	// Message is free text describing the last step taken.
	Message string `json:"message,omitempty"`

	// Error carries the failure or cancellation reason on terminal states.
	Error string `json:"error,omitempty"`

	// Timestamp is the unix-millisecond time of the last update.
	Timestamp int64 `json:"timestamp"`
}

// ProgressPatch is a partial progress update; nil fields are left unchanged
// by Merge.
type ProgressPatch struct {
	Status  *Status
	Current *int
	Total   *int
	Message *string
	Error   *string
}

// Merge applies patch onto p and returns the result. The Timestamp is not
// touched here; the queue service stamps it on every write.
func (p Progress) Merge(patch ProgressPatch) Progress {
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.Current != nil {
		p.Current = *patch.Current
	}
	if patch.Total != nil {
		p.Total = *patch.Total
	}
	if patch.Message != nil {
		p.Message = *patch.Message
	}
	if patch.Error != nil {
		p.Error = *patch.Error
	}
	return p
}

// Metadata is the immutable configuration snapshot captured at creation.
type Metadata struct {
	JobID string `json:"jobId"`

	// Destination is the vector set name (store mode) or the logical
	// export name (file mode).
	Destination string `json:"destination"`

	Format SourceFormat `json:"format"`

	// Embedding is the provider snapshot the job keeps embedding with,
	// regardless of later daemon configuration changes.
	Embedding embed.Config `json:"embedding"`

	// ElementColumn / ElementTemplate select the element identifier per
	// record; the template wins when both are set.
	ElementColumn   string `json:"elementColumn,omitempty"`
	ElementTemplate string `json:"elementTemplate,omitempty"`

	// TextColumn / TextTemplate select the embeddable text per record;
	// the template wins when both are set.
	TextColumn   string `json:"textColumn,omitempty"`
	TextTemplate string `json:"textTemplate,omitempty"`

	// AttributeColumns lists the record fields stored as element
	// attributes alongside the vector.
	AttributeColumns []string `json:"attributeColumns,omitempty"`

	Parsing ParseOptions `json:"parsing,omitempty"`

	ExportMode ExportMode `json:"exportMode"`

	// OutputName is the file name stem for file exports; required when
	// ExportMode is ExportFile.
	OutputName string `json:"outputName,omitempty"`

	// Total is the record count enqueued at creation.
	Total int `json:"total"`

	// CreatedAt is the unix-millisecond creation time.
	CreatedAt int64 `json:"createdAt"`
}

// QueueItem is one normalized input record.
type QueueItem struct {
	// Index is the 0-based ordinal of the record in its source, used for
	// progress reporting and deterministic logging.
	Index int `json:"index"`

	// Fields maps column/field names to string values.
	Fields map[string]string `json:"fields"`

	// Vector, when present, is a precomputed embedding; the processor
	// skips the embedding call for such items.
	Vector []float32 `json:"vector,omitempty"`
}

// CompletionEntry is one line of the shared completed-import audit log.
type CompletionEntry struct {
	JobID       string       `json:"jobId"`
	Destination string       `json:"destination"`
	Format      SourceFormat `json:"format"`
	Total       int          `json:"total"`

	// OutputPath is set for file exports: the absolute path written.
	OutputPath string `json:"outputPath,omitempty"`

	// FinishedAt is the unix-millisecond completion time.
	FinishedAt int64 `json:"finishedAt"`
}
