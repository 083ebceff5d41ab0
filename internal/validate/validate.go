// Package validate runs labelled data-quality checks over pipeline tables.
package validate

import (
	"slices"
	"sort"

	"go.uber.org/zap"

	"fluve/internal/frame"
)

// Case pairs a human-readable label with the rows that violate it.
// An empty Rows table means the check passed.
type Case struct {
	Label string
	Rows  *frame.Table
}

// Failures maps a check label to its offending rows.
type Failures map[string]*frame.Table

// Labels returns the failed check labels in sorted order.
func (f Failures) Labels() []string {
	labels := make([]string, 0, len(f))
	for l := range f {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Rows returns the total number of offending rows across all checks.
func (f Failures) Rows() int {
	n := 0
	for _, t := range f {
		n += t.Len()
	}
	return n
}

// Run evaluates every case. A non-empty case is logged as a warning and
// recorded under its label unchanged; an empty one is logged as a pass.
// Run never fails and never modifies the case tables.
func Run(log *zap.Logger, cases []Case) Failures {
	failures := Failures{}
	for _, c := range cases {
		if c.Rows == nil || c.Rows.Len() == 0 {
			log.Info("validation passed", zap.String("check", c.Label))
			continue
		}
		log.Warn("validation failed", zap.String("check", c.Label), zap.Int("rows", c.Rows.Len()))
		failures[c.Label] = c.Rows
	}
	return failures
}

// Query builds a case from the rows of t matching bad.
func Query(label string, t *frame.Table, bad func(frame.Row) bool) Case {
	return Case{Label: label, Rows: t.Filter(bad)}
}

// Duplicates builds a case from every row whose key occurs more than once,
// ignoring keys listed in except.
func Duplicates(label string, t *frame.Table, except []string, keys ...string) Case {
	dup := t.DuplicatedAll(keys...)
	return Case{Label: label, Rows: t.Filter(func(r frame.Row) bool {
		if !dup[r.Index()] {
			return false
		}
		return len(keys) != 1 || !slices.Contains(except, r.Get(keys[0]).String())
	})}
}
