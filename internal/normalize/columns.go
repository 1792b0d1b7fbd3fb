package normalize

import "strings"

// Preferred column names for the two derived selections, checked in order,
// case-insensitively.
var (
	elementCandidates = []string{"id", "identifier", "key", "name", "title"}
	textCandidates    = []string{"text", "title", "description", "content", "body"}
)

// DefaultElementColumn picks the element-identifier column when a job does
// not configure one: a conventionally named column if present, else the
// first column.
func DefaultElementColumn(columns []string) string {
	if match := firstCandidate(columns, elementCandidates); match != "" {
		return match
	}
	if len(columns) > 0 {
		return columns[0]
	}
	return ""
}

// DefaultTextColumn picks the embeddable-text column when a job does not
// configure one: a conventionally named column if present, else the second
// column, else whatever single column exists.
func DefaultTextColumn(columns []string) string {
	if match := firstCandidate(columns, textCandidates); match != "" {
		return match
	}
	if len(columns) > 1 {
		return columns[1]
	}
	if len(columns) == 1 {
		return columns[0]
	}
	return ""
}

// DefaultAttributeColumns returns every column except vector carriers and
// the given exclusions (normally the chosen element and text columns).
func DefaultAttributeColumns(columns []string, exclude ...string) []string {
	var out []string
	for _, col := range columns {
		if isVectorKey(col) || contains(exclude, col) {
			continue
		}
		out = append(out, col)
	}
	return out
}

func firstCandidate(columns, candidates []string) string {
	for _, candidate := range candidates {
		for _, col := range columns {
			if strings.EqualFold(col, candidate) {
				return col
			}
		}
	}
	return ""
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
