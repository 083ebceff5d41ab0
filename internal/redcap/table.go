package redcap

import (
	"sort"
	"strings"

	"fluve/internal/frame"
)

// ToTable turns an export into an all-text table. Empty strings are null.
func ToTable(records []map[string]string, order []string) *frame.Table {
	names := columnOrder(records, order)
	cols := make([]*frame.Column, len(names))
	for j, name := range names {
		values := make([]string, len(records))
		for i, rec := range records {
			values[i] = strings.TrimSpace(rec[name])
		}
		cols[j] = frame.TextColumn(name, values...)
	}
	t, _ := frame.NewTable(cols...)
	if t.Width() == 0 {
		return frame.Empty(len(records))
	}
	return t
}

// columnOrder keeps the requested field order, then appends the remaining
// columns (checkbox options, identifiers) sorted.
func columnOrder(records []map[string]string, requested []string) []string {
	seen := map[string]bool{}
	var names []string
	for _, r := range requested {
		for _, rec := range records {
			if _, ok := rec[r]; ok {
				seen[r] = true
				names = append(names, r)
				break
			}
		}
	}
	var rest []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				rest = append(rest, k)
			}
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}
