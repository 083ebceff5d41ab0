package frame

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"
)

// ErrLengthMismatch is returned when a column does not match the table length.
var ErrLengthMismatch = errors.New("column length does not match table")

// ── Table ──────────────────────────────────────────────────
// An ordered set of equal-length columns. Tables are mutated in place by the
// pipeline stages; Clone before mutating a table someone else holds.

// Table is a column-oriented record table.
type Table struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// NewTable builds a table from columns of equal length.
func NewTable(cols ...*Column) (*Table, error) {
	t := &Table{index: map[string]int{}}
	for _, c := range cols {
		if err := t.SetColumn(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Empty returns a table with n rows and no columns.
func Empty(n int) *Table {
	return &Table{index: map[string]int{}, rows: n}
}

func (t *Table) Len() int { return t.rows }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.cols) }

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Columns returns the columns in order. The slice is a copy; the columns are not.
func (t *Table) Columns() []*Column { return slices.Clone(t.cols) }

// SetColumn adds c, or replaces the column of the same name in place.
// The first column added to a column-less table fixes the row count.
func (t *Table) SetColumn(c *Column) error {
	if t.index == nil {
		t.index = map[string]int{}
	}
	if len(t.cols) == 0 && t.rows == 0 {
		t.rows = c.Len()
	}
	if c.Len() != t.rows {
		return fmt.Errorf("set column %q: %w (%d != %d)", c.Name, ErrLengthMismatch, c.Len(), t.rows)
	}
	if i, ok := t.index[c.Name]; ok {
		t.cols[i] = c
		return nil
	}
	t.index[c.Name] = len(t.cols)
	t.cols = append(t.cols, c)
	return nil
}

// Drop removes the named columns. Absent names are ignored.
func (t *Table) Drop(names ...string) {
	if len(names) == 0 {
		return
	}
	kept := t.cols[:0]
	for _, c := range t.cols {
		if !slices.Contains(names, c.Name) {
			kept = append(kept, c)
		}
	}
	t.cols = kept
	t.reindex()
}

// Rename renames columns via mapping (old → new). Absent names are ignored.
func (t *Table) Rename(mapping map[string]string) {
	for _, c := range t.cols {
		if to, ok := mapping[c.Name]; ok && to != "" {
			c.Name = to
		}
	}
	t.reindex()
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.cols))
	for i, c := range t.cols {
		t.index[c.Name] = i
	}
}

// Select returns a copy of the named columns, in the given order.
// Absent names are skipped.
func (t *Table) Select(names ...string) *Table {
	out := Empty(t.rows)
	for _, n := range names {
		if c, ok := t.Column(n); ok {
			_ = out.SetColumn(c.Clone())
		}
	}
	return out
}

// Row returns a typed accessor for row i.
func (t *Table) Row(i int) Row { return Row{t: t, i: i} }

// Take returns a new table holding copies of the given rows in order.
func (t *Table) Take(rows []int) *Table {
	out := Empty(len(rows))
	for _, c := range t.cols {
		nc := c.emptyLike(len(rows))
		for j, r := range rows {
			nc.values[j] = c.values[r]
		}
		_ = out.SetColumn(nc)
	}
	return out
}

// Filter returns the rows for which keep is true as a new table with the
// same schema.
func (t *Table) Filter(keep func(Row) bool) *Table {
	var rows []int
	for i := 0; i < t.rows; i++ {
		if keep(t.Row(i)) {
			rows = append(rows, i)
		}
	}
	return t.Take(rows)
}

// Head returns the first n rows.
func (t *Table) Head(n int) *Table {
	if n > t.rows {
		n = t.rows
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return t.Take(rows)
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := Empty(t.rows)
	for _, c := range t.cols {
		_ = out.SetColumn(c.Clone())
	}
	return out
}

// ── Sorting ────────────────────────────────────────────────

// SortBy stably reorders rows by the named column. Category columns sort by
// category position; nulls sort last in either direction.
func (t *Table) SortBy(name string, desc bool) error {
	c, ok := t.Column(name)
	if !ok {
		return fmt.Errorf("sort: unknown column %q", name)
	}
	order := make([]int, t.rows)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		va, vb := c.values[order[a]], c.values[order[b]]
		if va.IsNull() || vb.IsNull() {
			return !va.IsNull() && vb.IsNull()
		}
		cmp := compare(c, va, vb)
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
	sorted := t.Take(order)
	t.cols = sorted.cols
	t.reindex()
	return nil
}

func compare(c *Column, a, b Value) int {
	switch c.kind {
	case KindCategory:
		return c.rankOf(a.s) - c.rankOf(b.s)
	case KindText:
		return strings.Compare(a.s, b.s)
	case KindBool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		}
		return 1
	case KindInt:
		return cmpOrdered(a.i, b.i)
	case KindFloat:
		return cmpOrdered(a.f, b.f)
	case KindTime:
		return a.t.Compare(b.t)
	case KindList:
		return strings.Compare(strings.Join(a.l, ","), strings.Join(b.l, ","))
	}
	return 0
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// ── Duplicates ─────────────────────────────────────────────

// Duplicated marks every row whose key was already seen in an earlier row.
// Rows with a null key are never marked.
func (t *Table) Duplicated(keys ...string) []bool {
	out := make([]bool, t.rows)
	seen := map[string]bool{}
	for i := 0; i < t.rows; i++ {
		k, ok := t.rowKey(i, keys)
		if !ok {
			continue
		}
		if seen[k] {
			out[i] = true
		}
		seen[k] = true
	}
	return out
}

// DuplicatedAll marks every row whose key occurs more than once, including
// the first occurrence.
func (t *Table) DuplicatedAll(keys ...string) []bool {
	counts := map[string]int{}
	for i := 0; i < t.rows; i++ {
		if k, ok := t.rowKey(i, keys); ok {
			counts[k]++
		}
	}
	out := make([]bool, t.rows)
	for i := 0; i < t.rows; i++ {
		if k, ok := t.rowKey(i, keys); ok {
			out[i] = counts[k] > 1
		}
	}
	return out
}

func (t *Table) rowKey(i int, keys []string) (string, bool) {
	parts := make([]string, len(keys))
	for j, k := range keys {
		v := t.Row(i).Get(k)
		if v.IsNull() {
			return "", false
		}
		parts[j] = v.String()
	}
	return strings.Join(parts, "\x1f"), true
}

// ── Row ────────────────────────────────────────────────────

// Row is a read-only view of one table row.
type Row struct {
	t *Table
	i int
}

// Index returns the row position within its table.
func (r Row) Index() int { return r.i }

// Get returns the named cell, or a null text cell when the column is absent.
func (r Row) Get(name string) Value {
	c, ok := r.t.Column(name)
	if !ok {
		return Null(KindText)
	}
	return c.values[r.i]
}

// IsNull reports whether the cell is missing or the column absent.
func (r Row) IsNull(name string) bool { return r.Get(name).IsNull() }

// BoolOr returns the boolean cell, or fill when it is missing.
func (r Row) BoolOr(name string, fill bool) bool {
	if b, ok := r.Get(name).Bool(); ok {
		return b
	}
	return fill
}

// IntOr returns the integer cell, or fill when it is missing.
func (r Row) IntOr(name string, fill int64) int64 {
	v := r.Get(name)
	if i, ok := v.Int(); ok {
		return i
	}
	if f, ok := v.Float(); ok && f == math.Trunc(f) {
		return int64(f)
	}
	return fill
}

// FloatOr returns the numeric cell, or fill when it is missing.
func (r Row) FloatOr(name string, fill float64) float64 {
	if f, ok := r.Get(name).Float(); ok {
		return f
	}
	return fill
}

// TextOr returns the text or category cell, or fill when it is missing.
func (r Row) TextOr(name string, fill string) string {
	if s, ok := r.Get(name).Str(); ok {
		return s
	}
	return fill
}

// TimeOr returns the timestamp cell, or fill when it is missing.
func (r Row) TimeOr(name string, fill time.Time) time.Time {
	if t, ok := r.Get(name).Time(); ok {
		return t
	}
	return fill
}
