package redcap

import (
	"strings"

	"go.uber.org/zap"

	"fluve/internal/frame"
	"fluve/internal/recode"
)

// Field is one row of a project's data dictionary.
type Field struct {
	Name       string `json:"field_name"`
	Form       string `json:"form_name"`
	Type       string `json:"field_type"`
	Label      string `json:"field_label"`
	Choices    string `json:"select_choices_or_calculations"`
	Validation string `json:"text_validation_type_or_show_slider_number"`
}

// Choice is one coded answer of a radio, dropdown or checkbox field.
type Choice struct {
	Code  string
	Label string
}

// ParseChoices splits the "1, Yes | 0, No" choice encoding.
func (f Field) ParseChoices() []Choice {
	var out []Choice
	for _, part := range strings.Split(f.Choices, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, label, ok := strings.Cut(part, ",")
		if !ok {
			continue
		}
		out = append(out, Choice{Code: strings.TrimSpace(code), Label: strings.TrimSpace(label)})
	}
	return out
}

// Metadata is a project's data dictionary.
type Metadata []Field

// Field returns the named field.
func (m Metadata) Field(name string) (Field, bool) {
	for _, f := range m {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ColumnType is the dtype the dictionary assigns to an export column.
type ColumnType struct {
	Kind       frame.Kind
	Categories []string
}

// Types maps export column names to their dtype. Checkbox fields expand to
// one text column per option, named field___code.
func (m Metadata) Types() map[string]ColumnType {
	out := map[string]ColumnType{}
	for _, f := range m {
		switch f.Type {
		case "descriptive":
		case "checkbox":
			for _, c := range f.ParseChoices() {
				out[CheckboxColumn(f.Name, c.Code)] = ColumnType{Kind: frame.KindText}
			}
		case "radio", "dropdown":
			out[f.Name] = ColumnType{Kind: frame.KindCategory, Categories: labels(f.ParseChoices())}
		case "yesno":
			out[f.Name] = ColumnType{Kind: frame.KindCategory, Categories: []string{"Yes", "No"}}
		case "truefalse":
			out[f.Name] = ColumnType{Kind: frame.KindCategory, Categories: []string{"True", "False"}}
		case "calc":
			out[f.Name] = ColumnType{Kind: frame.KindFloat}
		case "slider":
			out[f.Name] = ColumnType{Kind: frame.KindInt}
		case "text":
			out[f.Name] = ColumnType{Kind: validationKind(f.Validation)}
		default:
			out[f.Name] = ColumnType{Kind: frame.KindText}
		}
	}
	return out
}

func validationKind(v string) frame.Kind {
	switch {
	case strings.HasPrefix(v, "date"):
		return frame.KindTime
	case v == "integer":
		return frame.KindInt
	case v == "number" || strings.HasPrefix(v, "number_"):
		return frame.KindFloat
	}
	return frame.KindText
}

func labels(choices []Choice) []string {
	out := make([]string, len(choices))
	for i, c := range choices {
		out[i] = c.Label
	}
	return out
}

// CheckboxColumn returns the export column name of one checkbox option.
func CheckboxColumn(field, code string) string {
	code = strings.ToLower(strings.ReplaceAll(code, "-", "_"))
	return field + "___" + code
}

// Checklist returns the option columns and labels of a checkbox field, in
// dictionary order, ready for a checklist recode.
func (m Metadata) Checklist(field string) []recode.Option {
	f, ok := m.Field(field)
	if !ok || f.Type != "checkbox" {
		return nil
	}
	var out []recode.Option
	for _, c := range f.ParseChoices() {
		out = append(out, recode.Option{Source: CheckboxColumn(f.Name, c.Code), Label: c.Label})
	}
	return out
}

// Assign casts each column of t to the dtype the dictionary gives it,
// best-effort: a column that fails to cast keeps its text values. Category
// labels found in the data but not in the dictionary fail the cast.
func Assign(log *zap.Logger, t *frame.Table, types map[string]ColumnType) {
	for _, c := range t.Columns() {
		ct, ok := types[c.Name]
		if !ok || ct.Kind == c.Kind() {
			continue
		}
		var (
			cast *frame.Column
			err  error
		)
		if ct.Kind == frame.KindCategory && len(ct.Categories) > 0 {
			cast, err = c.CastCategories(ct.Categories, false)
		} else {
			cast, err = c.Cast(ct.Kind)
		}
		if err != nil {
			log.Debug("dtype assignment failed", zap.String("column", c.Name), zap.Stringer("kind", ct.Kind), zap.Error(err))
			continue
		}
		_ = t.SetColumn(cast)
	}
}

// metadataColumns is the column layout of a dictionary stored as a table.
var metadataColumns = []string{"field_name", "form_name", "field_type", "field_label", "select_choices", "validation"}

// Table stores the dictionary as a text table, one row per field, so it can
// sit in the same cache as the records.
func (m Metadata) Table() *frame.Table {
	cols := make([][]string, len(metadataColumns))
	for _, f := range m {
		for j, v := range []string{f.Name, f.Form, f.Type, f.Label, f.Choices, f.Validation} {
			cols[j] = append(cols[j], v)
		}
	}
	out := frame.Empty(len(m))
	for j, name := range metadataColumns {
		_ = out.SetColumn(frame.TextColumn(name, cols[j]...))
	}
	return out
}

// MetadataFromTable reverses Metadata.Table.
func MetadataFromTable(t *frame.Table) Metadata {
	out := make(Metadata, t.Len())
	for i := range out {
		r := t.Row(i)
		out[i] = Field{
			Name:       r.TextOr("field_name", ""),
			Form:       r.TextOr("form_name", ""),
			Type:       r.TextOr("field_type", ""),
			Label:      r.TextOr("field_label", ""),
			Choices:    r.TextOr("select_choices", ""),
			Validation: r.TextOr("validation", ""),
		}
	}
	return out
}
