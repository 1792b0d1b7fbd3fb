package usage

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "usage_test.db")
}

func TestOpen(t *testing.T) {
	store, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
}

func TestOpenCreatesFile(t *testing.T) {
	path := tempDBPath(t)
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatal("database file should exist after Open")
	}
}

func TestInsertAndRecent(t *testing.T) {
	store, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	now := time.Now().UTC().Truncate(time.Second)
	record := Record{
		JobID:       "job-001",
		Destination: "products",
		Format:      "csv",
		Provider:    "openai",
		Model:       "text-embedding-3-small",
		Status:      "completed",
		Elements:    150,
		Total:       150,
		StartedAt:   now,
		CompletedAt: now.Add(3 * time.Second),
		DurationMs:  3000,
	}

	if err := store.Insert(record); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	records, err := store.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	r := records[0]
	if r.JobID != "job-001" {
		t.Errorf("JobID = %q, want %q", r.JobID, "job-001")
	}
	if r.Destination != "products" {
		t.Errorf("Destination = %q, want %q", r.Destination, "products")
	}
	if r.Provider != "openai" {
		t.Errorf("Provider = %q, want %q", r.Provider, "openai")
	}
	if r.Elements != 150 {
		t.Errorf("Elements = %d, want 150", r.Elements)
	}
	if r.DurationMs != 3000 {
		t.Errorf("DurationMs = %d, want 3000", r.DurationMs)
	}
	if !r.StartedAt.Equal(now) {
		t.Errorf("StartedAt = %v, want %v", r.StartedAt, now)
	}
	if r.ID == 0 {
		t.Error("ID should be set after insert")
	}
}

func TestInsertDuplicateIgnored(t *testing.T) {
	store, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	now := time.Now().UTC()
	record := Record{
		JobID:       "dup-job",
		Destination: "products",
		Status:      "completed",
		StartedAt:   now,
		CompletedAt: now,
		DurationMs:  100,
	}

	if err := store.Insert(record); err != nil {
		t.Fatalf("first Insert: %v", err)
	}

	// Second insert with same job_id should not error
	if err := store.Insert(record); err != nil {
		t.Fatalf("duplicate Insert should not error: %v", err)
	}

	records, err := store.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 record after duplicate insert, got %d", len(records))
	}
}

func TestRecentOrderAndLimit(t *testing.T) {
	store, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	now := time.Now().UTC()
	for i := range 5 {
		if err := store.Insert(Record{
			JobID:       fmt.Sprintf("job-%d", i),
			Destination: "products",
			Status:      "completed",
			StartedAt:   now,
			CompletedAt: now,
			DurationMs:  100,
		}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	records, err := store.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records with limit=2, got %d", len(records))
	}
	if records[0].JobID != "job-4" {
		t.Errorf("newest first: JobID = %q, want job-4", records[0].JobID)
	}
}

func TestSummarize(t *testing.T) {
	store, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	empty, err := store.Summarize()
	if err != nil {
		t.Fatalf("Summarize empty: %v", err)
	}
	if empty.Jobs != 0 || empty.Elements != 0 {
		t.Errorf("empty summary = %+v, want zeros", empty)
	}

	now := time.Now().UTC()
	inserts := []Record{
		{JobID: "a", Destination: "products", Status: "completed", Elements: 100},
		{JobID: "b", Destination: "products", Status: "completed", Elements: 50},
		{JobID: "c", Destination: "docs", Status: "failed", Elements: 10, ErrorMessage: "provider down"},
		{JobID: "d", Destination: "docs", Status: "cancelled", Elements: 5},
	}
	for _, r := range inserts {
		r.StartedAt = now
		r.CompletedAt = now
		if err := store.Insert(r); err != nil {
			t.Fatalf("Insert %s: %v", r.JobID, err)
		}
	}

	sum, err := store.Summarize()
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Jobs != 4 {
		t.Errorf("Jobs = %d, want 4", sum.Jobs)
	}
	if sum.Completed != 2 {
		t.Errorf("Completed = %d, want 2", sum.Completed)
	}
	if sum.Failed != 1 {
		t.Errorf("Failed = %d, want 1", sum.Failed)
	}
	if sum.Cancelled != 1 {
		t.Errorf("Cancelled = %d, want 1", sum.Cancelled)
	}
	if sum.Elements != 165 {
		t.Errorf("Elements = %d, want 165", sum.Elements)
	}
}

func TestByProvider(t *testing.T) {
	store, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	now := time.Now().UTC()
	inserts := []Record{
		{JobID: "a", Destination: "products", Provider: "openai", Model: "text-embedding-3-small", Status: "completed", Elements: 20},
		{JobID: "b", Destination: "products", Provider: "openai", Model: "text-embedding-3-small", Status: "completed", Elements: 80},
		{JobID: "c", Destination: "docs", Provider: "ollama", Model: "nomic-embed-text", Status: "completed", Elements: 30},
		{JobID: "d", Destination: "vectors", Provider: "", Model: "", Status: "completed", Elements: 7},
	}
	for _, r := range inserts {
		r.StartedAt = now
		r.CompletedAt = now
		if err := store.Insert(r); err != nil {
			t.Fatalf("Insert %s: %v", r.JobID, err)
		}
	}

	rows, err := store.ByProvider()
	if err != nil {
		t.Fatalf("ByProvider: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 provider groups, got %d", len(rows))
	}
	if rows[0].Provider != "openai" || rows[0].Jobs != 2 || rows[0].Elements != 100 {
		t.Errorf("top group = %+v, want openai with 2 jobs and 100 elements", rows[0])
	}
	for _, row := range rows {
		if row.Provider == "" && row.Elements != 7 {
			t.Errorf("precomputed group elements = %d, want 7", row.Elements)
		}
	}
}

func TestInsertWithErrorMessage(t *testing.T) {
	store, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	now := time.Now().UTC()
	record := Record{
		JobID:        "fail-job",
		Destination:  "products",
		Status:       "failed",
		StartedAt:    now,
		CompletedAt:  now,
		DurationMs:   50,
		ErrorMessage: "embedding failed: provider unreachable",
	}

	if err := store.Insert(record); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	records, err := store.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if records[0].ErrorMessage != "embedding failed: provider unreachable" {
		t.Errorf("ErrorMessage = %q", records[0].ErrorMessage)
	}
}
