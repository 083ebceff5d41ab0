package etl

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"fluve/internal/frame"
)

// ToTable collects records into a table with one column per schema field.
// Cells that do not convert to the field's kind become null.
func ToTable(schema *Schema, records []Record) *frame.Table {
	if schema == nil || len(schema.Fields) == 0 {
		return frame.Empty(len(records))
	}
	cols := make([]*frame.Column, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		kind := f.Kind()
		values := make([]frame.Value, len(records))
		for i, r := range records {
			values[i] = valueOf(r.Data[f.Name], kind)
		}
		c, err := frame.FromValues(f.Name, kind, values)
		if err != nil {
			continue
		}
		cols = append(cols, c)
	}
	t, err := frame.NewTable(cols...)
	if err != nil {
		return frame.Empty(len(records))
	}
	return t
}

// valueOf lifts a decoded source value into the table's value model.
func valueOf(v any, kind frame.Kind) frame.Value {
	var fv frame.Value
	switch x := v.(type) {
	case nil:
		return frame.Null(kind)
	case string:
		if strings.TrimSpace(x) == "" {
			return frame.Null(kind)
		}
		fv = frame.Text(x)
	case bool:
		fv = frame.Bool(x)
	case int:
		fv = frame.Int(int64(x))
	case int64:
		fv = frame.Int(x)
	case float64:
		fv = frame.Float(x)
	case time.Time:
		fv = frame.Time(x)
	case []byte:
		fv = frame.Text(string(x))
	default:
		fv = frame.Text(fmt.Sprint(x))
	}
	out, err := frame.Convert(fv, kind)
	if err != nil {
		return frame.Null(kind)
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
