package models

import (
	"strconv"
	"strings"
	"time"
)

// Kind enumerates the variants a Value can hold.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindTime
	KindRaw
)

// Value is a tagged variant holding one of the types produced by record
// coercion. The zero Value is an empty string.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	t    time.Time
}

// StringValue wraps a plain string.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// IntValue wraps an integer.
func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }

// FloatValue wraps a floating point number.
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// TimeValue wraps a timestamp.
func TimeValue(t time.Time) Value { return Value{kind: KindTime, t: t} }

// RawValue wraps a source value that should be preserved verbatim.
func RawValue(s string) Value { return Value{kind: KindRaw, s: s} }

// Kind reports which variant the value holds.
func (v Value) Kind() Kind { return v.kind }

// IsEmpty reports whether the value carries no usable content.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindString, KindRaw:
		return v.s == ""
	case KindTime:
		return v.t.IsZero()
	}
	return false
}

// AsFloat returns the value as a float64. String and raw variants are parsed;
// time variants do not coerce.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	case KindString, KindRaw:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// AsTime returns the value as a timestamp. String and raw variants are parsed
// against the known layouts.
func (v Value) AsTime() (time.Time, bool) {
	switch v.kind {
	case KindTime:
		return v.t, !v.t.IsZero()
	case KindString, KindRaw:
		return ParseTime(v.s)
	}
	return time.Time{}, false
}

// AsString renders the value for display and interning.
func (v Value) AsString() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindTime:
		return v.t.Format(time.RFC3339)
	}
	return v.s
}

// Equal reports whether two values hold the same variant and content.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	if v.kind == KindTime {
		return v.t.Equal(other.t)
	}
	return v == other
}

// timeLayouts are tried in order by ParseTime. Date-only and time-only forms
// come last so fully qualified timestamps win.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"2006-01-02",
	"01/02/2006",
	"15:04:05",
}

// ParseTime attempts to interpret s as a timestamp using the known layouts.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Coerce converts a raw source string using the fixed precedence
// DateTime, integer, float, string. It never fails; unparseable input is
// returned as a string value unmodified. A column that is usually numeric but
// occasionally date-like will therefore coerce inconsistently per row, and
// consumers must tolerate mixed kinds under one field name.
func Coerce(raw string) Value {
	trimmed := strings.TrimSpace(raw)
	if t, ok := ParseTime(trimmed); ok {
		return TimeValue(t)
	}
	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return IntValue(i)
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return FloatValue(f)
	}
	return StringValue(raw)
}
