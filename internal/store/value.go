package store

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// encode marshals a record and returns its document together with the
// top level fields used for keys and index columns.
func encode(record any) ([]byte, map[string]any, error) {
	var doc []byte
	switch r := record.(type) {
	case json.RawMessage:
		doc = r
	case []byte:
		doc = r
	default:
		b, err := json.Marshal(record)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal record: %w", err)
		}
		doc = b
	}

	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, nil, fmt.Errorf("record is not a JSON object: %w", err)
	}
	return doc, fields, nil
}

// normalize maps a decoded JSON value onto the representation SQLite's
// json_extract produces, so stored index columns and query arguments compare equal.
func normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	case string:
		return t
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// arg converts a Go value supplied by a caller into an index or key argument.
func arg(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal lookup value: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return normalize(out), nil
}

func isZeroKey(k any) bool {
	switch t := k.(type) {
	case nil:
		return true
	case int64:
		return t == 0
	case float64:
		return t == 0
	case string:
		return t == ""
	}
	return false
}
