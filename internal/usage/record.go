package usage

import "time"

// Record captures the outcome of a single import job.
type Record struct {
	// Database ID (set after insert)
	ID int64

	// Job identification
	JobID       string
	Destination string
	Format      string
	Provider    string
	Model       string

	// Outcome
	Status       string // "completed", "failed", "cancelled"
	ErrorMessage string

	// Work done
	Elements int64 // items carried to completion
	Total    int64 // items the job was created with

	// Timing
	StartedAt   time.Time
	CompletedAt time.Time
	DurationMs  int64

	OutputPath string
}
