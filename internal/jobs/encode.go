package jobs

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/openvectors/vecimport/internal/embed"
)

// The job store speaks hashes, so progress and metadata flatten into
// field maps. Scalars are stored as plain strings; metadata's nested
// structures are JSON-encoded into single fields.

// Fields flattens the progress record into hash fields.
func (p Progress) Fields() map[string]any {
	return map[string]any{
		"status":    string(p.Status),
		"current":   p.Current,
		"total":     p.Total,
		"message":   p.Message,
		"error":     p.Error,
		"timestamp": p.Timestamp,
	}
}

// ProgressFromFields rebuilds a progress record from hash fields.
func ProgressFromFields(fields map[string]string) (Progress, error) {
	p := Progress{
		Status:  Status(fields["status"]),
		Message: fields["message"],
		Error:   fields["error"],
	}
	var err error
	if p.Current, err = fieldInt(fields, "current"); err != nil {
		return Progress{}, err
	}
	if p.Total, err = fieldInt(fields, "total"); err != nil {
		return Progress{}, err
	}
	if p.Timestamp, err = fieldInt64(fields, "timestamp"); err != nil {
		return Progress{}, err
	}
	return p, nil
}

// Fields flattens the metadata snapshot into hash fields.
func (m Metadata) Fields() (map[string]any, error) {
	embedding, err := json.Marshal(m.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding config: %w", err)
	}
	parsing, err := json.Marshal(m.Parsing)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parse options: %w", err)
	}
	attrs, err := json.Marshal(m.AttributeColumns)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attribute columns: %w", err)
	}
	return map[string]any{
		"jobId":            m.JobID,
		"destination":      m.Destination,
		"format":           string(m.Format),
		"embedding":        string(embedding),
		"elementColumn":    m.ElementColumn,
		"elementTemplate":  m.ElementTemplate,
		"textColumn":       m.TextColumn,
		"textTemplate":     m.TextTemplate,
		"attributeColumns": string(attrs),
		"parsing":          string(parsing),
		"exportMode":       string(m.ExportMode),
		"outputName":       m.OutputName,
		"total":            m.Total,
		"createdAt":        m.CreatedAt,
	}, nil
}

// MetadataFromFields rebuilds a metadata snapshot from hash fields.
func MetadataFromFields(fields map[string]string) (Metadata, error) {
	m := Metadata{
		JobID:           fields["jobId"],
		Destination:     fields["destination"],
		Format:          SourceFormat(fields["format"]),
		ElementColumn:   fields["elementColumn"],
		ElementTemplate: fields["elementTemplate"],
		TextColumn:      fields["textColumn"],
		TextTemplate:    fields["textTemplate"],
		ExportMode:      ExportMode(fields["exportMode"]),
		OutputName:      fields["outputName"],
	}
	var err error
	if m.Total, err = fieldInt(fields, "total"); err != nil {
		return Metadata{}, err
	}
	if m.CreatedAt, err = fieldInt64(fields, "createdAt"); err != nil {
		return Metadata{}, err
	}
	if raw := fields["embedding"]; raw != "" {
		var cfg embed.Config
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return Metadata{}, fmt.Errorf("failed to decode embedding config: %w", err)
		}
		m.Embedding = cfg
	}
	if raw := fields["parsing"]; raw != "" {
		var opts ParseOptions
		if err := json.Unmarshal([]byte(raw), &opts); err != nil {
			return Metadata{}, fmt.Errorf("failed to decode parse options: %w", err)
		}
		m.Parsing = opts
	}
	if raw := fields["attributeColumns"]; raw != "" {
		var cols []string
		if err := json.Unmarshal([]byte(raw), &cols); err != nil {
			return Metadata{}, fmt.Errorf("failed to decode attribute columns: %w", err)
		}
		m.AttributeColumns = cols
	}
	return m, nil
}

func fieldInt(fields map[string]string, name string) (int, error) {
	raw, ok := fields[name]
	if !ok || raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s field %q: %w", name, raw, err)
	}
	return n, nil
}

func fieldInt64(fields map[string]string, name string) (int64, error) {
	raw, ok := fields[name]
	if !ok || raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s field %q: %w", name, raw, err)
	}
	return n, nil
}
