package vectorstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ExportRecord is one exported element.
type ExportRecord struct {
	Element    string            `json:"element"`
	Vector     []float32         `json:"vector"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Exporter accumulates export records in memory for a single bulk write at
// job completion. The buffer only exists in process memory: a crash before
// Flush loses it, which the pipeline accepts for file exports.
type Exporter struct {
	mu      sync.Mutex
	dir     string
	records []ExportRecord
}

// NewExporter writes files under dir.
func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir}
}

// Append buffers one record.
func (e *Exporter) Append(element string, vector []float32, attributes map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, ExportRecord{Element: element, Vector: vector, Attributes: attributes})
}

// Len reports the buffered record count.
func (e *Exporter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.records)
}

// Flush writes the buffered records as pretty-printed JSON to
// <dir>/<name>.json, resets the buffer and returns the written path. The
// name is reduced to its base so callers cannot write outside dir.
func (e *Exporter) Flush(outputName string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := strings.TrimSpace(filepath.Base(outputName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid export name %q", outputName)
	}
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	records := e.records
	if records == nil {
		records = []ExportRecord{}
	}
	encoded, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode export: %w", err)
	}

	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	e.records = nil
	return path, nil
}
