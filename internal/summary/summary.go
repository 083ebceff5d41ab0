// Package summary aggregates the record table into the enrollment report.
package summary

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"fluve/internal/fluve"
	"fluve/internal/frame"
)

// TotalLabel names the margin row.
const TotalLabel = "Total"

// UnknownLabel groups rows whose group value is missing. When the group
// column has a real "Unknown" answer, missing values are shown under
// MissingLabel instead so the two stay apart.
const (
	UnknownLabel = "Unknown"
	MissingLabel = "Missing"
)

// missingKey tallies rows with no group value. It cannot collide with a
// cell's text.
const missingKey = "\x00missing"

// counted are the boolean indicators summed per group, in output order.
var counted = []string{
	fluve.IndScreened, fluve.IndAgree, fluve.IndEligible, fluve.IndEnrolled, fluve.IndWithdrew,
	fluve.IndHighCt, fluve.IndGt30Ct, fluve.IndFluAPos, fluve.IndFluBPos,
}

// ratio is one percentage column: 100 * num / den, rounded to one decimal.
type ratio struct {
	name, num, den string
}

var ratios = []ratio{
	{"agreePct", fluve.IndAgree, fluve.IndScreened},
	{"enrollPct", fluve.IndEnrolled, fluve.IndScreened},
	{"conversionPct", fluve.IndEnrolled, fluve.IndEligible},
	{"withdrewPct", fluve.IndWithdrew, fluve.IndEnrolled},
	{"gt30CtPct", fluve.IndGt30Ct, "withCt"},
	{"highCtPct", fluve.IndHighCt, "withCt"},
}

type tally struct {
	counts map[string]int64
	ctSum  float64
	ctN    int64
}

func newTally() *tally { return &tally{counts: map[string]int64{}} }

func (t *tally) add(r frame.Row) {
	for _, name := range counted {
		if r.BoolOr(name, false) {
			t.counts[name]++
		}
	}
	if ct := r.FloatOr(fluve.IndAvgCt, math.NaN()); !math.IsNaN(ct) {
		t.ctSum += ct
		t.ctN++
		t.counts["withCt"]++
	}
}

func (t *tally) merge(o *tally) {
	for k, v := range o.counts {
		t.counts[k] += v
	}
	t.ctSum += o.ctSum
	t.ctN += o.ctN
}

// Enrollment counts screening outcomes per value of group. Groups follow
// category order for category columns and sort lexically otherwise; rows
// with no group value are collected last under UnknownLabel, or
// MissingLabel when "Unknown" is itself a group. With margins a Total row
// is appended.
func Enrollment(records *frame.Table, group string, margins bool) (*frame.Table, error) {
	gc, ok := records.Column(group)
	if !ok {
		return nil, fmt.Errorf("summary: no column %q", group)
	}

	tallies := map[string]*tally{}
	for i := 0; i < records.Len(); i++ {
		key := missingKey
		if v := gc.At(i); !v.IsNull() {
			key = v.String()
		}
		if tallies[key] == nil {
			tallies[key] = newTally()
		}
		tallies[key].add(records.Row(i))
	}

	groups := groupOrder(gc, tallies)
	rows := make([]*tally, len(groups))
	for i, g := range groups {
		rows[i] = tallies[g]
	}
	if n := len(groups); n > 0 && groups[n-1] == missingKey {
		groups[n-1] = UnknownLabel
		if tallies[UnknownLabel] != nil {
			groups[n-1] = MissingLabel
		}
	}
	if margins {
		total := newTally()
		for _, t := range rows {
			total.merge(t)
		}
		groups = append(groups, TotalLabel)
		rows = append(rows, total)
	}

	out := frame.Empty(len(rows))
	_ = out.SetColumn(frame.TextColumn(group, groups...))
	for _, name := range counted {
		c := frame.NewColumn(name, frame.KindInt, len(rows))
		for i, t := range rows {
			_ = c.Set(i, frame.Int(t.counts[name]))
		}
		_ = out.SetColumn(c)
	}

	avg := frame.NewColumn(fluve.IndAvgCt, frame.KindFloat, len(rows))
	for i, t := range rows {
		if t.ctN > 0 {
			_ = avg.Set(i, frame.Float(round1(t.ctSum/float64(t.ctN))))
		}
	}
	_ = out.SetColumn(avg)

	for _, r := range ratios {
		c := frame.NewColumn(r.name, frame.KindFloat, len(rows))
		for i, t := range rows {
			if den := t.counts[r.den]; den > 0 {
				_ = c.Set(i, frame.Float(round1(100*float64(t.counts[r.num])/float64(den))))
			}
		}
		_ = out.SetColumn(c)
	}
	return out, nil
}

func groupOrder(gc *frame.Column, tallies map[string]*tally) []string {
	var groups []string
	if gc.Kind() == frame.KindCategory {
		for _, c := range gc.Categories() {
			if tallies[c] != nil {
				groups = append(groups, c)
			}
		}
	}
	var rest []string
	for g := range tallies {
		if g != missingKey && !slices.Contains(groups, g) {
			rest = append(rest, g)
		}
	}
	sort.Strings(rest)
	groups = append(groups, rest...)
	if tallies[missingKey] != nil {
		groups = append(groups, missingKey)
	}
	return groups
}

func round1(f float64) float64 { return math.Round(f*10) / 10 }
