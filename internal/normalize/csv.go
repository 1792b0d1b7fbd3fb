package normalize

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/openvectors/vecimport/internal/jobs"
)

func normalizeCSV(src *CSVSource) (*Result, error) {
	reader := csv.NewReader(strings.NewReader(src.Data))
	if src.Options.Delimiter != "" {
		reader.Comma = []rune(src.Options.Delimiter)[0]
	}
	// Ragged rows are tolerated; cells map positionally onto whatever
	// columns exist.
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("malformed CSV: %w", err)
	}

	if skip := src.Options.SkipRows; skip > 0 {
		if skip >= len(rows) {
			rows = nil
		} else {
			rows = rows[skip:]
		}
	}

	var columns []string
	if !src.Options.NoHeader {
		if len(rows) == 0 {
			return &Result{}, nil
		}
		header := rows[0]
		rows = rows[1:]
		columns = make([]string, len(header))
		for i, name := range header {
			columns[i] = strings.TrimSpace(name)
		}
	}

	items := make([]jobs.QueueItem, 0, len(rows))
	width := len(columns)
	for i, row := range rows {
		fields := make(map[string]string, len(row))
		for j, cell := range row {
			fields[columnName(columns, j)] = cell
		}
		if len(row) > width {
			width = len(row)
		}
		items = append(items, jobs.QueueItem{Index: i, Fields: fields})
	}

	if src.Options.NoHeader {
		// Positional column names, wide enough for the widest row.
		columns = make([]string, width)
		for i := range columns {
			columns[i] = strconv.Itoa(i)
		}
	}

	return &Result{Items: items, Columns: columns}, nil
}

// columnName resolves position j to a header name, falling back to the
// positional name for headerless input or rows wider than the header.
func columnName(columns []string, j int) string {
	if j < len(columns) && columns[j] != "" {
		return columns[j]
	}
	return strconv.Itoa(j)
}
