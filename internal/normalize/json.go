package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openvectors/vecimport/internal/jobs"
)

func normalizeJSON(src *JSONSource) (*Result, error) {
	trimmed := bytes.TrimSpace(src.Raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty JSON source")
	}

	records, err := decodeRecords(trimmed)
	if err != nil {
		return nil, err
	}

	items := make([]jobs.QueueItem, 0, len(records))
	for i, record := range records {
		fields := make(map[string]string, len(record))
		var vector []float32
		for key, value := range record {
			if isVectorKey(key) {
				if vec, ok := toVector(value); ok {
					vector = vec
					continue
				}
				// A vector-named field that is not a numeric array
				// is treated as ordinary data.
			}
			fields[key] = stringifyValue(value)
		}
		items = append(items, jobs.QueueItem{Index: i, Fields: fields, Vector: vector})
	}

	return &Result{Items: items, Columns: documentKeys(trimmed)}, nil
}

// decodeRecords accepts a single object or an array of objects. Numbers are
// kept as json.Number so values like prices and IDs survive verbatim.
func decodeRecords(data []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if data[0] == '[' {
		var records []map[string]any
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("malformed JSON: %w", err)
		}
		return records, nil
	}

	var one map[string]any
	if err := dec.Decode(&one); err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}
	return []map[string]any{one}, nil
}

// isVectorKey reports whether a field carries a precomputed embedding.
func isVectorKey(key string) bool {
	switch strings.ToLower(key) {
	case "vector", "embedding":
		return true
	}
	return false
}

// toVector converts a JSON numeric array into a []float32.
func toVector(value any) ([]float32, bool) {
	raw, ok := value.([]any)
	if !ok || len(raw) == 0 {
		return nil, false
	}
	vec := make([]float32, len(raw))
	for i, v := range raw {
		num, ok := v.(json.Number)
		if !ok {
			return nil, false
		}
		f, err := num.Float64()
		if err != nil {
			return nil, false
		}
		vec[i] = float32(f)
	}
	return vec, true
}

// stringifyValue renders a JSON value as a flat field string. Nested
// structures are re-encoded as compact JSON.
func stringifyValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}

// documentKeys extracts the first object's keys in document order, which
// Go's map decoding discards. Default column selection depends on source
// ordering ("first column", "second column"), so it is recovered here with
// a token walk.
func documentKeys(data []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); ok && delim == '[' {
		tok, err = dec.Token()
		if err != nil {
			return nil
		}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, ok := tok.(string)
		if !ok {
			return nil
		}
		keys = append(keys, key)
		if err := skipValue(dec); err != nil {
			return nil
		}
	}
	return keys
}

func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || (delim != '{' && delim != '[') {
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}
