package frame

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrUnknownCategory is returned when a category cell is set to a label
	// outside the column's category set.
	ErrUnknownCategory = errors.New("value is not a declared category")

	// ErrKindMismatch is returned when a cell of the wrong kind is stored.
	ErrKindMismatch = errors.New("value kind does not match column kind")
)

// Column is a named, typed sequence of cells.
type Column struct {
	Name string

	kind       Kind
	categories []string
	ordered    bool
	values     []Value
}

// NewColumn returns a column of n missing cells.
func NewColumn(name string, kind Kind, n int) *Column {
	c := &Column{Name: name, kind: kind, values: make([]Value, n)}
	for i := range c.values {
		c.values[i] = Null(kind)
	}
	return c
}

// NewCategoryColumn returns a column of n missing cells over a fixed label set.
func NewCategoryColumn(name string, categories []string, ordered bool, n int) *Column {
	c := NewColumn(name, KindCategory, n)
	c.categories = slices.Clone(categories)
	c.ordered = ordered
	return c
}

// TextColumn builds a text column; empty strings become null.
func TextColumn(name string, values ...string) *Column {
	c := NewColumn(name, KindText, len(values))
	for i, s := range values {
		if s != "" {
			c.values[i] = Text(s)
		}
	}
	return c
}

// FromValues builds a column from cells that must all be of kind.
// Category columns derive their label set from first appearance.
func FromValues(name string, kind Kind, values []Value) (*Column, error) {
	c := NewColumn(name, kind, len(values))
	for i, v := range values {
		if v.IsNull() {
			continue
		}
		if v.Kind() != kind {
			return nil, fmt.Errorf("column %q row %d: %w (%s into %s)", name, i, ErrKindMismatch, v.Kind(), kind)
		}
		if kind == KindCategory && !slices.Contains(c.categories, v.s) {
			c.categories = append(c.categories, v.s)
		}
		c.values[i] = v
	}
	return c, nil
}

func (c *Column) Kind() Kind { return c.kind }
func (c *Column) Len() int   { return len(c.values) }

// At returns the cell at row i.
func (c *Column) At(i int) Value { return c.values[i] }

// Categories returns the ordered label set of a category column.
func (c *Column) Categories() []string { return slices.Clone(c.categories) }

// Ordered reports whether category order is meaningful for sorting.
func (c *Column) Ordered() bool { return c.ordered }

// Set stores v at row i. A null of any kind is accepted and stored as this
// column's missing marker.
func (c *Column) Set(i int, v Value) error {
	if v.IsNull() {
		c.values[i] = Null(c.kind)
		return nil
	}
	if v.Kind() != c.kind {
		return fmt.Errorf("column %q: %w (%s into %s)", c.Name, ErrKindMismatch, v.Kind(), c.kind)
	}
	if c.kind == KindCategory && !slices.Contains(c.categories, v.s) {
		return fmt.Errorf("column %q: %w: %q", c.Name, ErrUnknownCategory, v.s)
	}
	c.values[i] = v
	return nil
}

// NullCount returns the number of missing cells.
func (c *Column) NullCount() int {
	n := 0
	for _, v := range c.values {
		if v.IsNull() {
			n++
		}
	}
	return n
}

// SetCategories replaces the label set. Cells whose label is not in the new
// set become null.
func (c *Column) SetCategories(categories []string, ordered bool) {
	c.categories = slices.Clone(categories)
	c.ordered = ordered
	for i, v := range c.values {
		if v.valid && !slices.Contains(c.categories, v.s) {
			c.values[i] = Null(KindCategory)
		}
	}
}

// RenameCategories relabels categories via mapping. Labels that collide after
// renaming are merged, keeping the position of the first occurrence.
func (c *Column) RenameCategories(mapping map[string]string) {
	var renamed []string
	for _, cat := range c.categories {
		if to, ok := mapping[cat]; ok {
			cat = to
		}
		if !slices.Contains(renamed, cat) {
			renamed = append(renamed, cat)
		}
	}
	c.categories = renamed
	for i, v := range c.values {
		if !v.valid {
			continue
		}
		if to, ok := mapping[v.s]; ok {
			c.values[i] = Category(to)
		}
	}
}

// Clone returns a deep copy.
func (c *Column) Clone() *Column {
	out := &Column{
		Name:       c.Name,
		kind:       c.kind,
		categories: slices.Clone(c.categories),
		ordered:    c.ordered,
		values:     make([]Value, len(c.values)),
	}
	copy(out.values, c.values)
	return out
}

// emptyLike returns a column with the same schema and n missing cells.
func (c *Column) emptyLike(n int) *Column {
	out := NewColumn(c.Name, c.kind, n)
	out.categories = slices.Clone(c.categories)
	out.ordered = c.ordered
	return out
}

// rankOf returns the category position used for ordered comparisons.
func (c *Column) rankOf(label string) int {
	return slices.Index(c.categories, label)
}
