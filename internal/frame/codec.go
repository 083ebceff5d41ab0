package frame

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ── JSON ───────────────────────────────────────────────────
// Tables round-trip through JSON with their kinds, category sets and order
// intact, so a cached table reads back exactly as it was written.

type columnJSON struct {
	Name       string            `json:"name"`
	Kind       Kind              `json:"kind"`
	Categories []string          `json:"categories,omitempty"`
	Ordered    bool              `json:"ordered,omitempty"`
	Values     []json.RawMessage `json:"values"`
}

type tableJSON struct {
	Rows    int          `json:"rows"`
	Columns []columnJSON `json:"columns"`
}

func (t *Table) MarshalJSON() ([]byte, error) {
	out := tableJSON{Rows: t.rows, Columns: make([]columnJSON, 0, len(t.cols))}
	for _, c := range t.cols {
		cj := columnJSON{
			Name:       c.Name,
			Kind:       c.kind,
			Categories: c.categories,
			Ordered:    c.ordered,
			Values:     make([]json.RawMessage, len(c.values)),
		}
		for i, v := range c.values {
			native := v.Native()
			if tm, ok := native.(time.Time); ok {
				native = tm.Format(time.RFC3339Nano)
			}
			raw, err := json.Marshal(native)
			if err != nil {
				return nil, fmt.Errorf("encode %q row %d: %w", c.Name, i, err)
			}
			cj.Values[i] = raw
		}
		out.Columns = append(out.Columns, cj)
	}
	return json.Marshal(out)
}

func (t *Table) UnmarshalJSON(data []byte) error {
	var in tableJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	decoded := Empty(in.Rows)
	for _, cj := range in.Columns {
		c := NewColumn(cj.Name, cj.Kind, len(cj.Values))
		c.categories = cj.Categories
		c.ordered = cj.Ordered
		for i, raw := range cj.Values {
			v, err := decodeValue(cj.Kind, raw)
			if err != nil {
				return fmt.Errorf("decode %q row %d: %w", cj.Name, i, err)
			}
			c.values[i] = v
		}
		if err := decoded.SetColumn(c); err != nil {
			return err
		}
	}
	*t = *decoded
	return nil
}

func decodeValue(k Kind, raw json.RawMessage) (Value, error) {
	if string(raw) == "null" {
		return Null(k), nil
	}
	switch k {
	case KindText, KindCategory:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		if k == KindCategory {
			return Category(s), nil
		}
		return Text(s), nil
	case KindBool:
		var b bool
		err := json.Unmarshal(raw, &b)
		return Bool(b), err
	case KindInt:
		var i int64
		err := json.Unmarshal(raw, &i)
		return Int(i), err
	case KindFloat:
		var f float64
		err := json.Unmarshal(raw, &f)
		return Float(f), err
	case KindTime:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		tm, err := time.Parse(time.RFC3339Nano, s)
		return Time(tm), err
	case KindList:
		var l []string
		err := json.Unmarshal(raw, &l)
		return List(l), err
	}
	return Value{}, fmt.Errorf("unknown kind %s", k)
}

// ── Export ─────────────────────────────────────────────────

// WriteCSV writes a header row followed by every row, nulls as empty fields.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(t.cols))
	for i := 0; i < t.rows; i++ {
		for j, c := range t.cols {
			row[j] = c.values[i].String()
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Records returns the rows as maps of plain Go values, for previews.
// A limit of zero or less returns every row.
func (t *Table) Records(limit int) []map[string]any {
	n := t.rows
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		rec := make(map[string]any, len(t.cols))
		for _, c := range t.cols {
			rec[c.Name] = c.values[i].Native()
		}
		out[i] = rec
	}
	return out
}

// Schema describes a column for reports.
type Schema struct {
	Name       string   `json:"name"`
	Kind       Kind     `json:"kind"`
	Categories []string `json:"categories,omitempty"`
	Nulls      int      `json:"nulls"`
}

// Describe summarizes every column.
func (t *Table) Describe() []Schema {
	out := make([]Schema, len(t.cols))
	for i, c := range t.cols {
		out[i] = Schema{Name: c.Name, Kind: c.kind, Categories: c.Categories(), Nulls: c.NullCount()}
	}
	return out
}
