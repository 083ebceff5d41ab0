package etl

import (
	"fmt"
	"strconv"
	"strings"
)

// ── Transformer ────────────────────────────────────────────
// Transformers reshape rows between the source read and the table build.
// Each takes a record and returns the (possibly modified) record plus a
// boolean telling the engine whether to keep it.
//
// Pattern: Benthos processor chain.

// Transformer processes a single record.
// Returns (transformed record, keep). If keep is false, the record is dropped.
type Transformer interface {
	Transform(Record) (Record, bool)
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc func(Record) (Record, bool)

func (f TransformerFunc) Transform(r Record) (Record, bool) { return f(r) }

// ── Built-in Transforms ────────────────────────────────────

// FilterTransform keeps records whose field satisfies the comparison.
// The "not_null" op ignores Value and drops blank cells, which is how lab
// sheets with trailing empty rows are cleaned up.
type FilterTransform struct {
	Field string
	Op    string // "eq" | "neq" | "gt" | "lt" | "contains" | "not_null"
	Value any
}

func (t *FilterTransform) Transform(r Record) (Record, bool) {
	v, ok := r.Data[t.Field]
	if t.Op == "not_null" {
		return r, ok && !isBlank(v)
	}
	if !ok {
		return r, false
	}
	switch t.Op {
	case "eq":
		return r, fmt.Sprint(v) == fmt.Sprint(t.Value)
	case "neq":
		return r, fmt.Sprint(v) != fmt.Sprint(t.Value)
	case "contains":
		return r, strings.Contains(fmt.Sprint(v), fmt.Sprint(t.Value))
	case "gt":
		a, aok := toFloat(v)
		b, bok := toFloat(t.Value)
		return r, aok && bok && a > b
	case "lt":
		a, aok := toFloat(v)
		b, bok := toFloat(t.Value)
		return r, aok && bok && a < b
	default:
		return r, true
	}
}

// RenameTransform renames fields in a record.
type RenameTransform struct {
	Mapping map[string]string // oldName → newName
}

func (t *RenameTransform) Transform(r Record) (Record, bool) {
	for from, to := range t.Mapping {
		if v, ok := r.Data[from]; ok {
			delete(r.Data, from)
			r.Data[to] = v
		}
	}
	return r, true
}

// SelectTransform keeps only the specified fields. Missing fields come
// through as nil so every row carries the same keys.
type SelectTransform struct {
	Fields []string
}

func (t *SelectTransform) Transform(r Record) (Record, bool) {
	kept := make(map[string]any, len(t.Fields))
	for _, f := range t.Fields {
		kept[f] = r.Data[f]
	}
	r.Data = kept
	return r, true
}

// DedupeTransform keeps the first record seen for each key value.
type DedupeTransform struct {
	Key  string
	seen map[string]bool
}

func NewDedupeTransform(key string) *DedupeTransform {
	return &DedupeTransform{Key: key, seen: make(map[string]bool)}
}

func (t *DedupeTransform) Transform(r Record) (Record, bool) {
	v := fmt.Sprint(r.Data[t.Key])
	if t.seen[v] {
		return r, false
	}
	t.seen[v] = true
	return r, true
}

// TypeCastTransform converts a field's value in place. Values that do not
// parse become nil rather than a zero.
type TypeCastTransform struct {
	Field    string
	CastType string // "number" | "integer" | "string" | "bool"
}

func (t *TypeCastTransform) Transform(r Record) (Record, bool) {
	v, ok := r.Data[t.Field]
	if !ok || isBlank(v) {
		return r, true
	}
	switch t.CastType {
	case "number":
		if f, ok := toFloat(v); ok {
			r.Data[t.Field] = f
		} else {
			r.Data[t.Field] = nil
		}
	case "integer":
		if f, ok := toFloat(v); ok {
			r.Data[t.Field] = int64(f)
		} else {
			r.Data[t.Field] = nil
		}
	case "string":
		r.Data[t.Field] = fmt.Sprint(v)
	case "bool":
		if b, ok := toBool(v); ok {
			r.Data[t.Field] = b
		} else {
			r.Data[t.Field] = nil
		}
	}
	return r, true
}

// DefaultValueTransform fills blank or missing fields with a constant.
type DefaultValueTransform struct {
	Field string
	Value any
}

func (t *DefaultValueTransform) Transform(r Record) (Record, bool) {
	if v, ok := r.Data[t.Field]; !ok || isBlank(v) {
		r.Data[t.Field] = t.Value
	}
	return r, true
}

// ── Helpers ────────────────────────────────────────────────

// ApplyTransformers runs a chain of transformers on a record.
func ApplyTransformers(r Record, ts []Transformer) (Record, bool) {
	for _, t := range ts {
		var keep bool
		r, keep = t.Transform(r)
		if !keep {
			return r, false
		}
	}
	return r, true
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "1", "y":
			return true, true
		case "false", "no", "0", "n":
			return false, true
		}
	case float64:
		return b != 0, true
	case int64:
		return b != 0, true
	case int:
		return b != 0, true
	}
	return false, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
