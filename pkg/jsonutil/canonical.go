// Package jsonutil provides the canonical JSON encoding used wherever
// bytes must be reproducible: manifest signing, verdict comparison, and
// audit record hashing. Canonical form is whitespace-free JSON with
// lexicographically sorted object keys.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// CanonicalMarshal encodes v deterministically. Two values that are
// structurally equal after a JSON round trip encode byte-identically,
// whatever the field order or formatting of their source.
func CanonicalMarshal(v any) ([]byte, error) {
	// Round-trip through encoding/json so struct tags, omitempty, and
	// number formatting all normalize before key sorting.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonical unmarshal: %w", err)
	}

	var buf bytes.Buffer
	if err := encodeValue(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		return encodeObject(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		// string, float64, bool, nil
		raw, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(raw)
		return nil
	}
}

func encodeObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		if err := encodeValue(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}
