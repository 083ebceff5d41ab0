package frame

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ── Kind ───────────────────────────────────────────────────
// The semantic type of a column. Every Kind has exactly one missing marker,
// carried by Value.IsNull.

// Kind enumerates the column types a Table can hold.
type Kind uint8

const (
	KindText Kind = iota
	KindCategory
	KindBool
	KindInt
	KindFloat
	KindTime
	KindList
)

var kindNames = [...]string{
	KindText:     "text",
	KindCategory: "category",
	KindBool:     "boolean",
	KindInt:      "integer",
	KindFloat:    "float",
	KindTime:     "timestamp",
	KindList:     "list",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// ParseKind resolves the lowercase name used in configuration files.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "string":
		return KindText, nil
	case "category":
		return KindCategory, nil
	case "boolean", "bool":
		return KindBool, nil
	case "integer", "int":
		return KindInt, nil
	case "float", "number":
		return KindFloat, nil
	case "timestamp", "datetime", "date":
		return KindTime, nil
	case "list":
		return KindList, nil
	}
	return 0, fmt.Errorf("unknown column kind: %q", s)
}

// MarshalText lets kinds appear as names in YAML and JSON.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ── Value ──────────────────────────────────────────────────

// Value is a single nullable cell. The zero Value is a null text cell.
type Value struct {
	kind  Kind
	valid bool
	s     string
	b     bool
	i     int64
	f     float64
	t     time.Time
	l     []string
}

// Null returns the missing marker for kind k.
func Null(k Kind) Value { return Value{kind: k} }

func Text(s string) Value     { return Value{kind: KindText, valid: true, s: s} }
func Category(s string) Value { return Value{kind: KindCategory, valid: true, s: s} }
func Bool(b bool) Value       { return Value{kind: KindBool, valid: true, b: b} }
func Int(i int64) Value       { return Value{kind: KindInt, valid: true, i: i} }
func Time(t time.Time) Value  { return Value{kind: KindTime, valid: true, t: t} }

// Float returns a float cell. NaN is the float missing marker.
func Float(f float64) Value {
	if math.IsNaN(f) {
		return Null(KindFloat)
	}
	return Value{kind: KindFloat, valid: true, f: f}
}

// List returns a list cell. A nil slice is stored as an empty list.
func List(items []string) Value {
	if items == nil {
		items = []string{}
	}
	return Value{kind: KindList, valid: true, l: slices.Clone(items)}
}

// Kind reports the semantic type of the cell.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the cell holds its kind's missing marker.
func (v Value) IsNull() bool { return !v.valid }

// Str returns the text of a text or category cell.
func (v Value) Str() (string, bool) {
	if !v.valid || (v.kind != KindText && v.kind != KindCategory) {
		return "", false
	}
	return v.s, true
}

func (v Value) Bool() (bool, bool) {
	if !v.valid || v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) Int() (int64, bool) {
	if !v.valid || v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// Float returns the numeric value of an integer or float cell.
// A missing number reads as NaN.
func (v Value) Float() (float64, bool) {
	if !v.valid {
		return math.NaN(), false
	}
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return math.NaN(), false
}

func (v Value) Time() (time.Time, bool) {
	if !v.valid || v.kind != KindTime {
		return time.Time{}, false
	}
	return v.t, true
}

func (v Value) List() ([]string, bool) {
	if !v.valid || v.kind != KindList {
		return nil, false
	}
	return slices.Clone(v.l), true
}

// String formats the cell for display and CSV export. Nulls render empty.
func (v Value) String() string {
	if !v.valid {
		return ""
	}
	switch v.kind {
	case KindText, KindCategory:
		return v.s
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindTime:
		if v.t.Hour() == 0 && v.t.Minute() == 0 && v.t.Second() == 0 && v.t.Nanosecond() == 0 {
			return v.t.Format(time.DateOnly)
		}
		return v.t.Format(time.DateTime)
	case KindList:
		return strings.Join(v.l, ", ")
	}
	return ""
}

// Native returns the cell as a plain Go value (nil for null), suitable for
// JSON encoding and database drivers.
func (v Value) Native() any {
	if !v.valid {
		return nil
	}
	switch v.kind {
	case KindText, KindCategory:
		return v.s
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindTime:
		return v.t
	case KindList:
		return slices.Clone(v.l)
	}
	return nil
}

// Equal reports whether two cells hold the same kind and value.
// Two nulls of the same kind are equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind || v.valid != o.valid {
		return false
	}
	if !v.valid {
		return true
	}
	switch v.kind {
	case KindText, KindCategory:
		return v.s == o.s
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindTime:
		return v.t.Equal(o.t)
	case KindList:
		return slices.Equal(v.l, o.l)
	}
	return false
}
