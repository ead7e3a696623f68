package router

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// eachMember calls fn for every member of a JSON object in document order.
// encoding/json maps lose key order, and recommendation ties resolve by it.
func eachMember(raw json.RawMessage, fn func(key string, value json.RawMessage) error) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

// writeMembers encodes an object whose members appear in the given order.
func writeMembers(keys []string, value func(i int) any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(value(i))
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// field is a generated member written over an authored object.
type field struct {
	key   string
	value any
	omit  bool
}

// patchMembers rewrites the given members of raw where they sit and appends
// the ones raw lacks. Every other member is copied as authored. An omitted
// field is skipped only when raw does not already carry it.
func patchMembers(raw json.RawMessage, fields []field) ([]byte, error) {
	var keys []string
	values := make(map[string]json.RawMessage)
	err := eachMember(raw, func(key string, value json.RawMessage) error {
		if _, dup := values[key]; !dup {
			keys = append(keys, key)
		}
		values[key] = value
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if _, had := values[f.key]; !had {
			if f.omit {
				continue
			}
			keys = append(keys, f.key)
		}
		b, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", f.key, err)
		}
		values[f.key] = b
	}
	return writeMembers(keys, func(i int) any { return values[keys[i]] })
}
