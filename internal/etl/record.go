package etl

import "fluve/internal/frame"

// ── Record ─────────────────────────────────────────────────
// Intermediate row format between a source and the table it becomes.
// Sources emit Records; the engine collects them into a frame.Table.

// Field describes a single column in a dataset.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"` // "text" | "number" | "integer" | "boolean" | "datetime"
}

// Kind maps the source-level type to a table column kind.
func (f Field) Kind() frame.Kind {
	switch f.Type {
	case "number":
		return frame.KindFloat
	case "integer":
		return frame.KindInt
	case "boolean":
		return frame.KindBool
	case "datetime":
		return frame.KindTime
	default:
		return frame.KindText
	}
}

// Schema describes the shape of records coming from a source.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Lookup returns the named field.
func (s *Schema) Lookup(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Record is a single row of data flowing through extraction.
type Record struct {
	Data map[string]any `json:"data"`
}
