package recode

import (
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"fluve/internal/frame"
)

// ── Recode ─────────────────────────────────────────────────
// A Recode rewrites survey codings into analysis-ready columns. Each variant
// is a concrete type tagged with its Kind; Apply runs a list of them
// best-effort over one table.

// ErrColumnAbsent marks a recode skipped because its input is not in the table.
var ErrColumnAbsent = errors.New("column absent")

// DefaultChecked is the marker REDCap exports for a ticked checkbox option.
const DefaultChecked = "Checked"

// Kind discriminates the recode variants.
type Kind int

const (
	KindBooleanMap Kind = iota + 1
	KindChecklistToBool
	KindChecklistToList
	KindChecklistToCategory
	KindCategoryRelabel
	KindCoerce
)

func (k Kind) String() string {
	switch k {
	case KindBooleanMap:
		return "boolean_map"
	case KindChecklistToBool:
		return "checklist_bool"
	case KindChecklistToList:
		return "checklist_list"
	case KindChecklistToCategory:
		return "checklist_category"
	case KindCategoryRelabel:
		return "category"
	case KindCoerce:
		return "coerce"
	}
	return fmt.Sprintf("recode(%d)", int(k))
}

// Recode is one column rewrite.
type Recode interface {
	Kind() Kind
	// Target names the column the recode writes.
	Target() string
	Apply(t *frame.Table) error
}

// Apply runs every recode against t in order. Failures are local: an absent
// column or a failed coercion is logged at debug level and the table is left
// as it was for that recode.
func Apply(log *zap.Logger, t *frame.Table, recodes []Recode) *frame.Table {
	for _, r := range recodes {
		err := r.Apply(t)
		switch {
		case err == nil:
		case errors.Is(err, ErrColumnAbsent):
			log.Debug("recode skipped", zap.Stringer("kind", r.Kind()), zap.String("target", r.Target()), zap.Error(err))
		default:
			log.Debug("recode failed, column left unmodified", zap.Stringer("kind", r.Kind()), zap.String("target", r.Target()), zap.Error(err))
		}
	}
	return t
}

// ── BooleanMap ─────────────────────────────────────────────

// BooleanMap maps tokens to true or false. Tokens in neither list become null.
type BooleanMap struct {
	Column string
	True   []string
	False  []string
}

func (r BooleanMap) Kind() Kind     { return KindBooleanMap }
func (r BooleanMap) Target() string { return r.Column }

func (r BooleanMap) Apply(t *frame.Table) error {
	src, ok := t.Column(r.Column)
	if !ok {
		return fmt.Errorf("%s: %w", r.Column, ErrColumnAbsent)
	}
	if src.Kind() == frame.KindBool {
		return nil
	}
	out := frame.NewColumn(r.Column, frame.KindBool, src.Len())
	for i := 0; i < src.Len(); i++ {
		v := src.At(i)
		if v.IsNull() {
			continue
		}
		token := v.String()
		switch {
		case slices.Contains(r.True, token):
			_ = out.Set(i, frame.Bool(true))
		case slices.Contains(r.False, token):
			_ = out.Set(i, frame.Bool(false))
		}
	}
	return t.SetColumn(out)
}

// ── Checklists ─────────────────────────────────────────────
// A checklist question arrives as one column per option holding the checked
// marker or not. The three checklist recodes fold those columns into one and
// drop the option columns.

// Option is one checklist option column and its display label.
type Option struct {
	Source string `yaml:"source"`
	Label  string `yaml:"label"`
}

func checked(marker string) string {
	if marker == "" {
		return DefaultChecked
	}
	return marker
}

func presentSources(t *frame.Table, sources []string) []*frame.Column {
	var cols []*frame.Column
	for _, s := range sources {
		if c, ok := t.Column(s); ok {
			cols = append(cols, c)
		}
	}
	return cols
}

func isChecked(c *frame.Column, i int, marker string) bool {
	v := c.At(i)
	if b, ok := v.Bool(); ok {
		return b
	}
	return !v.IsNull() && v.String() == marker
}

// ChecklistToBool sets Target true when any source option is checked and
// false otherwise.
type ChecklistToBool struct {
	Column  string
	Sources []string
	Checked string
}

func (r ChecklistToBool) Kind() Kind     { return KindChecklistToBool }
func (r ChecklistToBool) Target() string { return r.Column }

func (r ChecklistToBool) Apply(t *frame.Table) error {
	cols := presentSources(t, r.Sources)
	if len(cols) == 0 {
		return fmt.Errorf("%s sources: %w", r.Column, ErrColumnAbsent)
	}
	marker := checked(r.Checked)
	out := frame.NewColumn(r.Column, frame.KindBool, t.Len())
	for i := 0; i < t.Len(); i++ {
		hit := false
		for _, c := range cols {
			if isChecked(c, i, marker) {
				hit = true
				break
			}
		}
		_ = out.Set(i, frame.Bool(hit))
	}
	t.Drop(r.Sources...)
	return t.SetColumn(out)
}

// ChecklistToList collects the labels of checked options into a list. Rows
// with nothing checked hold an empty list.
type ChecklistToList struct {
	Column  string
	Options []Option
	Checked string
}

func (r ChecklistToList) Kind() Kind     { return KindChecklistToList }
func (r ChecklistToList) Target() string { return r.Column }

func (r ChecklistToList) Apply(t *frame.Table) error {
	type present struct {
		col   *frame.Column
		label string
	}
	var opts []present
	var sources []string
	for _, o := range r.Options {
		sources = append(sources, o.Source)
		if c, ok := t.Column(o.Source); ok && o.Label != "" {
			opts = append(opts, present{col: c, label: o.Label})
		}
	}
	if len(opts) == 0 {
		return fmt.Errorf("%s options: %w", r.Column, ErrColumnAbsent)
	}
	marker := checked(r.Checked)
	out := frame.NewColumn(r.Column, frame.KindList, t.Len())
	for i := 0; i < t.Len(); i++ {
		labels := []string{}
		for _, o := range opts {
			if isChecked(o.col, i, marker) {
				labels = append(labels, o.label)
			}
		}
		_ = out.Set(i, frame.List(labels))
	}
	t.Drop(sources...)
	return t.SetColumn(out)
}

// CategoryOption maps a category label to the options that select it.
type CategoryOption struct {
	Name    string   `yaml:"name"`
	Sources []string `yaml:"sources"`
}

// ChecklistToCategory resolves a checklist to a single category: the first
// category, in declared order, with any checked source. Rows that resolve to
// nothing are null.
type ChecklistToCategory struct {
	Column     string
	Categories []CategoryOption
	Checked    string
	Ordered    bool
}

func (r ChecklistToCategory) Kind() Kind     { return KindChecklistToCategory }
func (r ChecklistToCategory) Target() string { return r.Column }

func (r ChecklistToCategory) Apply(t *frame.Table) error {
	var all, labels []string
	for _, c := range r.Categories {
		all = append(all, c.Sources...)
		labels = append(labels, c.Name)
	}
	if len(presentSources(t, all)) == 0 {
		return fmt.Errorf("%s sources: %w", r.Column, ErrColumnAbsent)
	}
	marker := checked(r.Checked)
	out := frame.NewCategoryColumn(r.Column, labels, r.Ordered, t.Len())
	for i := 0; i < t.Len(); i++ {
	categories:
		for _, cat := range r.Categories {
			for _, c := range presentSources(t, cat.Sources) {
				if isChecked(c, i, marker) {
					_ = out.Set(i, frame.Category(cat.Name))
					break categories
				}
			}
		}
	}
	t.Drop(all...)
	return t.SetColumn(out)
}

// ── CategoryRelabel ────────────────────────────────────────

// Relabel renames one category label.
type Relabel struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// CategoryRelabel rewrites a category column. Rename relabels categories in
// the given order; with Reorder the rename targets also become the category
// order, followed by any labels not mentioned. Order, when set, replaces the
// category sequence outright and labels outside it become null.
type CategoryRelabel struct {
	Column  string
	Rename  []Relabel
	Reorder bool
	Order   []string
	Ordered bool
}

func (r CategoryRelabel) Kind() Kind     { return KindCategoryRelabel }
func (r CategoryRelabel) Target() string { return r.Column }

func (r CategoryRelabel) Apply(t *frame.Table) error {
	src, ok := t.Column(r.Column)
	if !ok {
		return fmt.Errorf("%s: %w", r.Column, ErrColumnAbsent)
	}
	c, err := src.Cast(frame.KindCategory)
	if err != nil {
		return err
	}

	if len(r.Rename) > 0 {
		mapping := make(map[string]string, len(r.Rename))
		for _, rl := range r.Rename {
			mapping[rl.From] = rl.To
		}
		c.RenameCategories(mapping)
		if r.Reorder {
			var order []string
			for _, rl := range r.Rename {
				if !slices.Contains(order, rl.To) {
					order = append(order, rl.To)
				}
			}
			for _, cat := range c.Categories() {
				if !slices.Contains(order, cat) {
					order = append(order, cat)
				}
			}
			c.SetCategories(order, true)
		}
	}
	if len(r.Order) > 0 {
		c.SetCategories(r.Order, true)
	}
	if r.Ordered && !c.Ordered() {
		c.SetCategories(c.Categories(), true)
	}
	return t.SetColumn(c)
}

// ── Coerce ─────────────────────────────────────────────────

// Coerce casts a column to another kind. A failed cast leaves it unmodified.
type Coerce struct {
	Column string
	To     frame.Kind
}

func (r Coerce) Kind() Kind     { return KindCoerce }
func (r Coerce) Target() string { return r.Column }

func (r Coerce) Apply(t *frame.Table) error {
	src, ok := t.Column(r.Column)
	if !ok {
		return fmt.Errorf("%s: %w", r.Column, ErrColumnAbsent)
	}
	c, err := src.Cast(r.To)
	if err != nil {
		return err
	}
	return t.SetColumn(c)
}
