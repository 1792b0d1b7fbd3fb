// Package normalize converts heterogeneous import sources (CSV text, JSON
// records, pre-embedded image batches) into the uniform queue-item shape
// the job pipeline processes. It also owns the column-defaulting rules used
// when a job does not configure element/text columns explicitly.
package normalize

import (
	"fmt"

	"github.com/openvectors/vecimport/internal/jobs"
)

// Source is a tagged variant: exactly one payload matching Format is set.
type Source struct {
	Format jobs.SourceFormat

	CSV    *CSVSource
	JSON   *JSONSource
	Images *ImageSource
}

// CSVSource is raw CSV text plus its parsing options.
type CSVSource struct {
	Data    string
	Options jobs.ParseOptions
}

// JSONSource is a raw JSON document: a single object or an array of objects.
type JSONSource struct {
	Raw []byte
}

// ImageSource is a batch of vectors precomputed by the caller, one per
// image, paired positionally with synthetic records.
type ImageSource struct {
	Vectors          [][]float32
	AttributeColumns []string
}

// CSV wraps CSV text as a Source.
func CSV(data string, opts jobs.ParseOptions) Source {
	return Source{Format: jobs.FormatCSV, CSV: &CSVSource{Data: data, Options: opts}}
}

// JSON wraps a raw JSON document as a Source.
func JSON(raw []byte) Source {
	return Source{Format: jobs.FormatJSON, JSON: &JSONSource{Raw: raw}}
}

// Images wraps a precomputed vector batch as a Source.
func Images(vectors [][]float32, attributeColumns []string) Source {
	return Source{Format: jobs.FormatImage, Images: &ImageSource{Vectors: vectors, AttributeColumns: attributeColumns}}
}

// Result is the normalized output: items in source order plus the ordered
// column names used for default column selection.
type Result struct {
	Items   []jobs.QueueItem
	Columns []string
}

// Normalize dispatches on the source format. A malformed source fails here,
// before any job state is created.
func Normalize(src Source) (*Result, error) {
	switch src.Format {
	case jobs.FormatCSV:
		if src.CSV == nil {
			return nil, fmt.Errorf("csv source payload missing")
		}
		return normalizeCSV(src.CSV)
	case jobs.FormatJSON:
		if src.JSON == nil {
			return nil, fmt.Errorf("json source payload missing")
		}
		return normalizeJSON(src.JSON)
	case jobs.FormatImage:
		if src.Images == nil {
			return nil, fmt.Errorf("image source payload missing")
		}
		return normalizeImages(src.Images)
	default:
		return nil, fmt.Errorf("unsupported source format %q", src.Format)
	}
}
