// Package model defines typed representations of Mattermost entities
// and their conversions between the server JSON form, the compact
// archive JSON form, and the in-memory form.
//
// Every entity carries an Extra bag holding server fields the decoder
// did not recognize, so archives round-trip through future server
// versions without silent loss.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Extra is the misc bag: per-entity map of JSON fields the decoder did
// not consume. It is preserved verbatim through archive round trips.
type Extra map[string]json.RawMessage

// Equal compares two bags by their compacted JSON content.
func (e Extra) Equal(other Extra) bool {
	if len(e) != len(other) {
		return false
	}
	for k, v := range e {
		ov, ok := other[k]
		if !ok || !bytes.Equal(compact(v), compact(ov)) {
			return false
		}
	}
	return true
}

func compact(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

// jsonFields wraps a decoded JSON object while recognized fields are
// peeled off it; whatever remains becomes the entity's Extra bag.
type jsonFields struct {
	m map[string]json.RawMessage
}

func decodeObject(data []byte) (*jsonFields, error) {
	m := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("not a JSON object: %w", err)
	}
	return &jsonFields{m: m}, nil
}

// take removes the raw value for key, reporting whether it was present.
func (f *jsonFields) take(key string) (json.RawMessage, bool) {
	raw, ok := f.m[key]
	if ok {
		delete(f.m, key)
	}
	return raw, ok
}

func (f *jsonFields) takeString(key string) string {
	raw, ok := f.take(key)
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func (f *jsonFields) takeID(key string) Id {
	return Id(f.takeString(key))
}

func (f *jsonFields) takeInt(key string) int64 {
	raw, ok := f.take(key)
	if !ok {
		return 0
	}
	var n int64
	if json.Unmarshal(raw, &n) != nil {
		return 0
	}
	return n
}

func (f *jsonFields) takeBool(key string) bool {
	raw, ok := f.take(key)
	if !ok {
		return false
	}
	var b bool
	if json.Unmarshal(raw, &b) != nil {
		return false
	}
	return b
}

// takeTime reads a unix-millisecond timestamp field.
func (f *jsonFields) takeTime(key string) Time {
	return Time(f.takeInt(key))
}

func (f *jsonFields) drop(keys ...string) {
	for _, key := range keys {
		delete(f.m, key)
	}
}

// bag returns the leftover fields, stripping values that look like
// defaults (null, empty string, empty object).
func (f *jsonFields) bag() Extra {
	out := Extra{}
	for key, raw := range f.m {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 ||
			bytes.Equal(trimmed, []byte("null")) ||
			bytes.Equal(trimmed, []byte(`""`)) ||
			bytes.Equal(compact(trimmed), []byte("{}")) {
			continue
		}
		out[key] = raw
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// archiveObject accumulates the archive JSON form of an entity. Empty
// values are never emitted; the bag is merged in last, with typed
// fields winning on key conflicts.
type archiveObject map[string]any

func (o archiveObject) set(key string, v any) {
	switch t := v.(type) {
	case nil:
		return
	case string:
		if t == "" {
			return
		}
	case Id:
		if t == "" {
			return
		}
	case Time:
		if t.IsZero() {
			return
		}
	case bool:
		if !t {
			return
		}
	}
	o[key] = v
}

func (o archiveObject) setList(key string, length int, v any) {
	if length == 0 {
		return
	}
	o[key] = v
}

func (o archiveObject) mergeExtra(extra Extra) {
	for key, raw := range extra {
		if _, taken := o[key]; taken {
			continue
		}
		o[key] = raw
	}
}
