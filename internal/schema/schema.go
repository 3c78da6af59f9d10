// Package schema reads untrusted JSON objects one field at a time. A field
// that is missing leaves the destination untouched; a field of the wrong
// type also leaves it untouched and records a Diagnostic. Nothing aborts.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrNotObject is returned by Parse when the input is not a JSON object.
var ErrNotObject = errors.New("schema: not a JSON object")

// Diagnostic records one skipped field.
type Diagnostic struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (d Diagnostic) String() string { return d.Field + ": " + d.Reason }

// Object is a decoded JSON object whose fields are read lazily.
type Object struct {
	path   string
	fields map[string]json.RawMessage
	diags  *[]Diagnostic
}

// Parse decodes data as a JSON object.
func Parse(data []byte) (Object, error) {
	var fields map[string]json.RawMessage
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Object{}, ErrNotObject
	}
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Object{}, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	return Object{fields: fields, diags: new([]Diagnostic)}, nil
}

// Empty returns an object with no fields.
func Empty() Object {
	return Object{fields: map[string]json.RawMessage{}, diags: new([]Diagnostic)}
}

func (o Object) name(key string) string {
	if o.path == "" {
		return key
	}
	return o.path + "." + key
}

func (o Object) skip(key, reason string) {
	if o.diags != nil {
		*o.diags = append(*o.diags, Diagnostic{Field: o.name(key), Reason: reason})
	}
}

func kind(raw json.RawMessage) byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	switch c := raw[0]; c {
	case 't', 'f':
		return 'b'
	case 'n':
		return 'n'
	case '"', '{', '[':
		return c
	default:
		return '0'
	}
}

// Has reports whether key is present, whatever its type.
func (o Object) Has(key string) bool {
	_, ok := o.fields[key]
	return ok
}

// Raw returns the undecoded value of key.
func (o Object) Raw(key string) (json.RawMessage, bool) {
	raw, ok := o.fields[key]
	return raw, ok
}

// Bool copies a boolean field into dst.
func (o Object) Bool(key string, dst *bool) bool {
	raw, ok := o.fields[key]
	if !ok {
		return false
	}
	if kind(raw) != 'b' {
		o.skip(key, "expected boolean")
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// Number copies a finite numeric field into dst.
func (o Object) Number(key string, dst *float64) bool {
	raw, ok := o.fields[key]
	if !ok {
		return false
	}
	var v float64
	if kind(raw) != '0' || json.Unmarshal(raw, &v) != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		o.skip(key, "expected finite number")
		return false
	}
	*dst = v
	return true
}

// String copies a string field into dst.
func (o Object) String(key string, dst *string) bool {
	raw, ok := o.fields[key]
	if !ok {
		return false
	}
	if kind(raw) != '"' {
		o.skip(key, "expected string")
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// NullableString copies a string or null field into dst; null becomes "".
func (o Object) NullableString(key string, dst *string) bool {
	raw, ok := o.fields[key]
	if !ok {
		return false
	}
	if kind(raw) == 'n' {
		*dst = ""
		return true
	}
	return o.String(key, dst)
}

// Object returns a nested object field. Diagnostics are shared with o.
func (o Object) Object(key string) (Object, bool) {
	raw, ok := o.fields[key]
	if !ok {
		return Object{}, false
	}
	var fields map[string]json.RawMessage
	if kind(raw) != '{' || json.Unmarshal(raw, &fields) != nil {
		o.skip(key, "expected object")
		return Object{}, false
	}
	return Object{path: o.name(key), fields: fields, diags: o.diags}, true
}

// Array returns the elements of an array field.
func (o Object) Array(key string) ([]json.RawMessage, bool) {
	raw, ok := o.fields[key]
	if !ok {
		return nil, false
	}
	var items []json.RawMessage
	if kind(raw) != '[' || json.Unmarshal(raw, &items) != nil {
		o.skip(key, "expected array")
		return nil, false
	}
	return items, true
}

// Diagnostics returns every field skipped so far, across nested objects.
func (o Object) Diagnostics() []Diagnostic {
	if o.diags == nil {
		return nil
	}
	return *o.diags
}

// Element parses one array element as an object sharing o's diagnostics.
func (o Object) Element(key string, i int, raw json.RawMessage) (Object, bool) {
	var fields map[string]json.RawMessage
	if kind(raw) != '{' || json.Unmarshal(raw, &fields) != nil {
		o.skip(fmt.Sprintf("%s[%d]", key, i), "expected object")
		return Object{}, false
	}
	return Object{path: fmt.Sprintf("%s[%d]", o.name(key), i), fields: fields, diags: o.diags}, true
}

// Clamp bounds v to [lo, hi], mapping NaN to fallback.
func Clamp(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return math.Min(hi, math.Max(lo, v))
}

// ClampRound rounds v then bounds it to [lo, hi]. Non-finite input yields
// fallback.
func ClampRound(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return math.Min(hi, math.Max(lo, math.Round(v)))
}
