// Package indicator derives analysis columns from the joined record table.
package indicator

import (
	"fmt"
	"math"
	"strconv"

	"fluve/internal/frame"
)

// Rule produces one derived column from a table.
type Rule interface {
	Column(t *frame.Table) (*frame.Column, error)
}

// Apply evaluates rules in order and stores each result in t, replacing any
// column of the same name. Later rules may read earlier results.
func Apply(t *frame.Table, rules []Rule) error {
	for _, r := range rules {
		c, err := r.Column(t)
		if err != nil {
			return err
		}
		if err := t.SetColumn(c); err != nil {
			return fmt.Errorf("indicator %q: %w", c.Name, err)
		}
	}
	return nil
}

// ── Indicator ──────────────────────────────────────────────

// Predicate decides one branch of an Indicator for a row. Predicates pick
// their own fill for missing inputs through the Row accessors, so the true
// and false branches can treat a missing answer differently.
type Predicate func(frame.Row) bool

// Indicator is a two-sided boolean rule. Each branch is evaluated on its own;
// rows matched by True are set true, then rows matched by False are set false,
// so False wins where both match. Rows matched by neither stay null.
type Indicator struct {
	Name  string
	True  Predicate
	False Predicate
}

func (ind Indicator) Column(t *frame.Table) (*frame.Column, error) {
	out := frame.NewColumn(ind.Name, frame.KindBool, t.Len())
	for i := 0; i < t.Len(); i++ {
		r := t.Row(i)
		if ind.True != nil && ind.True(r) {
			_ = out.Set(i, frame.Bool(true))
		}
		if ind.False != nil && ind.False(r) {
			_ = out.Set(i, frame.Bool(false))
		}
	}
	return out, nil
}

// Flag is an Indicator whose false branch is the complement of its true one.
func Flag(name string, when Predicate) Indicator {
	return Indicator{Name: name, True: when, False: func(r frame.Row) bool { return !when(r) }}
}

// ── Derived ────────────────────────────────────────────────

// Derived computes an arbitrary column cell by cell.
type Derived struct {
	Name       string
	Kind       frame.Kind
	Categories []string
	Ordered    bool
	Compute    func(frame.Row) frame.Value
}

func (d Derived) Column(t *frame.Table) (*frame.Column, error) {
	out := frame.NewColumn(d.Name, d.Kind, t.Len())
	if d.Kind == frame.KindCategory {
		out = frame.NewCategoryColumn(d.Name, d.Categories, d.Ordered, t.Len())
	}
	for i := 0; i < t.Len(); i++ {
		if err := out.Set(i, d.Compute(t.Row(i))); err != nil {
			return nil, fmt.Errorf("derive %q row %d: %w", d.Name, i, err)
		}
	}
	return out, nil
}

// ── AgeBins ────────────────────────────────────────────────

// AgeBins bins a numeric column into an ordered category. Bins are
// right-inclusive: label i covers (Edges[i], Edges[i+1]]. Values outside every
// bin are null.
type AgeBins struct {
	Source string
	Target string
	Edges  []float64
	Labels []string
}

func (b AgeBins) Column(t *frame.Table) (*frame.Column, error) {
	if len(b.Edges) != len(b.Labels)+1 {
		return nil, fmt.Errorf("bins %q: %d edges for %d labels", b.Target, len(b.Edges), len(b.Labels))
	}
	out := frame.NewCategoryColumn(b.Target, b.Labels, true, t.Len())
	for i := 0; i < t.Len(); i++ {
		v := t.Row(i).FloatOr(b.Source, math.NaN())
		if math.IsNaN(v) {
			continue
		}
		for j := range b.Labels {
			if v > b.Edges[j] && v <= b.Edges[j+1] {
				_ = out.Set(i, frame.Category(b.Labels[j]))
				break
			}
		}
	}
	return out, nil
}

// AgeLabels builds labels like "0-4", "5-17", "65+" from integer edges,
// where the last edge may be +Inf.
func AgeLabels(edges []float64) []string {
	var labels []string
	for i := 0; i+1 < len(edges); i++ {
		lo := int(edges[i]) + 1
		if math.IsInf(edges[i+1], 1) {
			labels = append(labels, strconv.Itoa(lo)+"+")
			continue
		}
		labels = append(labels, strconv.Itoa(lo)+"-"+strconv.Itoa(int(edges[i+1])))
	}
	return labels
}
