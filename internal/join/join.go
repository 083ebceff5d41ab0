// Package join merges a secondary table into a primary one by key.
package join

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"fluve/internal/frame"
)

// ErrDuplicateKey is the sentinel matched by DuplicateKeyError.
var ErrDuplicateKey = errors.New("duplicate key in secondary table")

// DuplicateKeyError lists the keys that appear more than once in the
// secondary table. It aborts the merge.
type DuplicateKeyError struct {
	Key  string
	Dups []string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrDuplicateKey, e.Key, strings.Join(e.Dups, ", "))
}

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }

// Merge updates a copy of primary with the non-null cells of secondary,
// matching rows on key. Columns only the secondary has are created first,
// filled with missing values, so every primary row carries them. Every column
// keeps the kind it had before the merge: incoming cells are converted to the
// destination kind. The inputs are never modified.
func Merge(primary, secondary *frame.Table, key string) (*frame.Table, error) {
	if !primary.Has(key) {
		return nil, fmt.Errorf("merge: primary has no key column %q", key)
	}
	if !secondary.Has(key) {
		return nil, fmt.Errorf("merge: secondary has no key column %q", key)
	}
	if err := checkUnique(secondary, key); err != nil {
		return nil, err
	}

	out := primary.Clone()
	for _, sc := range secondary.Columns() {
		if sc.Name == key || out.Has(sc.Name) {
			continue
		}
		placeholder := frame.NewColumn(sc.Name, sc.Kind(), out.Len())
		if sc.Kind() == frame.KindCategory {
			placeholder = frame.NewCategoryColumn(sc.Name, sc.Categories(), sc.Ordered(), out.Len())
		}
		if err := out.SetColumn(placeholder); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
	}

	rowsByKey := map[string][]int{}
	pk, _ := out.Column(key)
	for i := 0; i < pk.Len(); i++ {
		if v := pk.At(i); !v.IsNull() {
			rowsByKey[v.String()] = append(rowsByKey[v.String()], i)
		}
	}

	sk, _ := secondary.Column(key)
	for _, sc := range secondary.Columns() {
		if sc.Name == key {
			continue
		}
		dst, _ := out.Column(sc.Name)
		widenCategories(dst, sc)
		for j := 0; j < sc.Len(); j++ {
			v := sc.At(j)
			if v.IsNull() || sk.At(j).IsNull() {
				continue
			}
			targets := rowsByKey[sk.At(j).String()]
			if len(targets) == 0 {
				continue
			}
			cv, err := frame.Convert(v, dst.Kind())
			if err != nil {
				return nil, fmt.Errorf("merge %q key %s: %w", sc.Name, sk.At(j), err)
			}
			for _, i := range targets {
				if err := dst.Set(i, cv); err != nil {
					return nil, fmt.Errorf("merge %q key %s: %w", sc.Name, sk.At(j), err)
				}
			}
		}
	}
	return out, nil
}

func checkUnique(t *frame.Table, key string) error {
	dup := t.Duplicated(key)
	kc, _ := t.Column(key)
	seen := map[string]bool{}
	var dups []string
	for i, d := range dup {
		if !d {
			continue
		}
		k := kc.At(i).String()
		if !seen[k] {
			seen[k] = true
			dups = append(dups, k)
		}
	}
	if len(dups) == 0 {
		return nil
	}
	sort.Strings(dups)
	return &DuplicateKeyError{Key: key, Dups: dups}
}

// widenCategories appends the incoming category labels a category
// destination does not know yet, preserving its existing order.
func widenCategories(dst, src *frame.Column) {
	if dst.Kind() != frame.KindCategory {
		return
	}
	cats := dst.Categories()
	known := map[string]bool{}
	for _, c := range cats {
		known[c] = true
	}
	for i := 0; i < src.Len(); i++ {
		v := src.At(i)
		if v.IsNull() {
			continue
		}
		if s := v.String(); !known[s] {
			known[s] = true
			cats = append(cats, s)
		}
	}
	dst.SetCategories(cats, dst.Ordered())
}
