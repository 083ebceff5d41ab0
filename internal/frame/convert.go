package frame

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimeLayouts are the timestamp formats accepted when parsing text. REDCap
// exports dates as Y-M-D and datetimes with minute or second precision.
var TimeLayouts = []string{
	time.DateOnly,
	"2006-01-02 15:04",
	time.DateTime,
	time.RFC3339,
	"01/02/2006",
	"01/02/2006 15:04",
}

// ParseTime parses s with the first matching layout in TimeLayouts.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range TimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q: no matching layout", s)
}

// Convert converts v to kind k. Nulls convert to k's missing marker.
// Category targets produce an unchecked Category value; Cast builds the label set.
func Convert(v Value, k Kind) (Value, error) {
	if v.IsNull() {
		return Null(k), nil
	}
	if v.Kind() == k {
		return v, nil
	}
	switch k {
	case KindText:
		return Text(v.String()), nil
	case KindCategory:
		return Category(v.String()), nil
	case KindBool:
		return toBool(v)
	case KindInt:
		return toInt(v)
	case KindFloat:
		return toFloat(v)
	case KindTime:
		return toTime(v)
	case KindList:
		return toList(v)
	}
	return Value{}, fmt.Errorf("convert %s to %s: unsupported", v.Kind(), k)
}

func toBool(v Value) (Value, error) {
	switch v.Kind() {
	case KindText, KindCategory:
		b, err := strconv.ParseBool(strings.TrimSpace(v.s))
		if err != nil {
			return Value{}, fmt.Errorf("convert %q to boolean: %w", v.s, err)
		}
		return Bool(b), nil
	case KindInt:
		return Bool(v.i != 0), nil
	case KindFloat:
		return Bool(v.f != 0), nil
	}
	return Value{}, fmt.Errorf("convert %s to boolean: unsupported", v.Kind())
}

func toInt(v Value) (Value, error) {
	switch v.Kind() {
	case KindText, KindCategory:
		s := strings.TrimSpace(v.s)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) {
			return Value{}, fmt.Errorf("convert %q to integer: not an integer", v.s)
		}
		return Int(int64(f)), nil
	case KindFloat:
		if v.f != math.Trunc(v.f) {
			return Value{}, fmt.Errorf("convert %v to integer: fractional value", v.f)
		}
		return Int(int64(v.f)), nil
	case KindBool:
		if v.b {
			return Int(1), nil
		}
		return Int(0), nil
	}
	return Value{}, fmt.Errorf("convert %s to integer: unsupported", v.Kind())
}

func toFloat(v Value) (Value, error) {
	switch v.Kind() {
	case KindText, KindCategory:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil {
			return Value{}, fmt.Errorf("convert %q to float: %w", v.s, err)
		}
		return Float(f), nil
	case KindInt:
		return Float(float64(v.i)), nil
	case KindBool:
		if v.b {
			return Float(1), nil
		}
		return Float(0), nil
	}
	return Value{}, fmt.Errorf("convert %s to float: unsupported", v.Kind())
}

func toTime(v Value) (Value, error) {
	if v.Kind() != KindText && v.Kind() != KindCategory {
		return Value{}, fmt.Errorf("convert %s to timestamp: unsupported", v.Kind())
	}
	t, err := ParseTime(v.s)
	if err != nil {
		return Value{}, err
	}
	return Time(t), nil
}

func toList(v Value) (Value, error) {
	if v.Kind() != KindText && v.Kind() != KindCategory {
		return List([]string{v.String()}), nil
	}
	var items []string
	for _, part := range strings.Split(v.s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			items = append(items, p)
		}
	}
	return List(items), nil
}

// Cast returns a new column of kind k. It is all-or-nothing: on the first
// unconvertible cell it returns an error and the receiver is untouched.
// Casting to category derives a sorted label set from the distinct values.
func (c *Column) Cast(k Kind) (*Column, error) {
	out, bad, err := c.cast(k, true)
	if err != nil {
		return nil, fmt.Errorf("cast %q row %d: %w", c.Name, bad[0], err)
	}
	return out, nil
}

// CastOrNull is Cast that stores k's missing marker for every unconvertible
// cell instead of failing. It returns the indices of those cells.
func (c *Column) CastOrNull(k Kind) (*Column, []int) {
	out, bad, _ := c.cast(k, false)
	return out, bad
}

func (c *Column) cast(k Kind, strict bool) (*Column, []int, error) {
	if c.kind == k {
		return c.Clone(), nil, nil
	}
	out := NewColumn(c.Name, k, len(c.values))
	var bad []int
	for i, v := range c.values {
		nv, err := Convert(v, k)
		if err != nil {
			bad = append(bad, i)
			if strict {
				return nil, bad, err
			}
			nv = Null(k)
		}
		out.values[i] = nv
	}
	if k == KindCategory {
		out.categories = distinct(out.values)
		sort.Strings(out.categories)
	}
	return out, bad, nil
}

// CastCategories converts to a category column over the given label set.
// Labels outside the set fail the cast.
func (c *Column) CastCategories(categories []string, ordered bool) (*Column, error) {
	out, bad := c.CastCategoriesOrNull(categories, ordered)
	if len(bad) > 0 {
		return nil, fmt.Errorf("cast %q row %d: %w: %q", c.Name, bad[0], ErrUnknownCategory, c.values[bad[0]].String())
	}
	return out, nil
}

// CastCategoriesOrNull converts to a category column over the given label
// set, leaving labels outside the set null. It returns their indices.
func (c *Column) CastCategoriesOrNull(categories []string, ordered bool) (*Column, []int) {
	out := NewCategoryColumn(c.Name, categories, ordered, len(c.values))
	var bad []int
	for i, v := range c.values {
		if v.IsNull() {
			continue
		}
		label := v.String()
		if !slices.Contains(categories, label) {
			bad = append(bad, i)
			continue
		}
		out.values[i] = Category(label)
	}
	return out, bad
}

func distinct(values []Value) []string {
	var out []string
	seen := map[string]bool{}
	for _, v := range values {
		if v.IsNull() || seen[v.s] {
			continue
		}
		seen[v.s] = true
		out = append(out, v.s)
	}
	return out
}
