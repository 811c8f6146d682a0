// Package jsondoc is a small walker over loosely-typed JSON values. API
// responses are consumed as documents and probed at known field paths
// instead of being deserialized into per-endpoint record types.
package jsondoc

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Doc wraps a decoded JSON value.
type Doc struct {
	v any
}

// From wraps an already-decoded value.
func From(v any) Doc { return Doc{v: v} }

// Parse decodes raw bytes. A non-JSON body becomes {"raw": <text>} so the
// caller always holds a document.
func Parse(b []byte) Doc {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return Doc{v: map[string]any{"raw": string(b)}}
	}
	return Doc{v: v}
}

// Value returns the underlying decoded value.
func (d Doc) Value() any { return d.v }

// Map returns the document as an object, or an empty map when it is not one.
func (d Doc) Map() map[string]any {
	if m, ok := d.v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// Get resolves a dot-path like "user.user_type" or "result[0].price".
func (d Doc) Get(path string) (any, bool) {
	cur := d.v
	for _, seg := range splitPath(path) {
		field, idx, hasIdx := splitIndex(seg)
		if field != "" {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur, ok = m[field]
			if !ok {
				return nil, false
			}
		}
		if hasIdx {
			arr, ok := cur.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			cur = arr[idx]
		}
	}
	return cur, true
}

// First returns the value at the first path that resolves to a non-empty
// value. Combinator for responses that move the same datum around.
func (d Doc) First(paths ...string) (any, bool) {
	for _, p := range paths {
		if v, ok := d.Get(p); ok && !empty(v) {
			return v, true
		}
	}
	return nil, false
}

// Str returns the string form of the value at path, or "".
func (d Doc) Str(path string) string {
	v, ok := d.Get(path)
	if !ok || v == nil {
		return ""
	}
	return Stringify(v)
}

// FirstStr is First with string conversion.
func (d Doc) FirstStr(paths ...string) string {
	v, ok := d.First(paths...)
	if !ok {
		return ""
	}
	return Stringify(v)
}

// Int coerces the value at path to an integer, stripping non-digits from
// strings ("1300cc" -> 1300, "656,000 km" -> 656000).
func (d Doc) Int(path string) (int, bool) {
	v, ok := d.Get(path)
	if !ok {
		return 0, false
	}
	return CoerceInt(v)
}

// FirstInt is First with integer coercion.
func (d Doc) FirstInt(paths ...string) (int, bool) {
	for _, p := range paths {
		if n, ok := d.Int(p); ok {
			return n, true
		}
	}
	return 0, false
}

// Array returns the slice at path.
func (d Doc) Array(path string) ([]any, bool) {
	v, ok := d.Get(path)
	if !ok {
		return nil, false
	}
	arr, ok := v.([]any)
	return arr, ok
}

// Stringify renders scalars without JSON ceremony; 2.2e+06 style floats
// that are whole numbers render as integers.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// CoerceInt extracts an integer from numbers or digit-bearing strings.
// Returns false when no digits survive.
func CoerceInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case int64:
		return int(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return int(f), true
	case string:
		digits := Digits(t)
		if digits == "" {
			return 0, false
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Digits strips every non-digit rune from s.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DeepCopy clones a decoded JSON value so templates are never mutated.
func DeepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = DeepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = DeepCopy(val)
		}
		return out
	default:
		return t
	}
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// splitIndex parses "field[3]" into ("field", 3, true).
func splitIndex(seg string) (string, int, bool) {
	open := strings.Index(seg, "[")
	if open < 0 || !strings.HasSuffix(seg, "]") {
		return seg, 0, false
	}
	idx, err := strconv.Atoi(seg[open+1 : len(seg)-1])
	if err != nil {
		return seg, 0, false
	}
	return seg[:open], idx, true
}
