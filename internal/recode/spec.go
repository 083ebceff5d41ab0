package recode

import (
	"fmt"

	"fluve/internal/frame"
)

// Spec is the declarative form of a Recode, as written in YAML config:
//
//	recodes:
//	  - kind: boolean_map
//	    column: flu_meds
//	    true: ["Yes"]
//	    false: ["No"]
type Spec struct {
	Kind       string           `yaml:"kind"`
	Column     string           `yaml:"column"`
	True       []string         `yaml:"true,omitempty"`
	False      []string         `yaml:"false,omitempty"`
	Sources    []string         `yaml:"sources,omitempty"`
	Options    []Option         `yaml:"options,omitempty"`
	Categories []CategoryOption `yaml:"categories,omitempty"`
	Checked    string           `yaml:"checked,omitempty"`
	Rename     []Relabel        `yaml:"rename,omitempty"`
	Reorder    bool             `yaml:"reorder,omitempty"`
	Order      []string         `yaml:"order,omitempty"`
	Ordered    bool             `yaml:"ordered,omitempty"`
	To         string           `yaml:"to,omitempty"`
}

// Recode builds the concrete variant named by Kind.
func (s Spec) Recode() (Recode, error) {
	if s.Column == "" {
		return nil, fmt.Errorf("recode %q: column is required", s.Kind)
	}
	switch s.Kind {
	case KindBooleanMap.String():
		return BooleanMap{Column: s.Column, True: s.True, False: s.False}, nil
	case KindChecklistToBool.String():
		return ChecklistToBool{Column: s.Column, Sources: s.Sources, Checked: s.Checked}, nil
	case KindChecklistToList.String():
		return ChecklistToList{Column: s.Column, Options: s.Options, Checked: s.Checked}, nil
	case KindChecklistToCategory.String():
		return ChecklistToCategory{Column: s.Column, Categories: s.Categories, Checked: s.Checked, Ordered: s.Ordered}, nil
	case KindCategoryRelabel.String():
		return CategoryRelabel{Column: s.Column, Rename: s.Rename, Reorder: s.Reorder, Order: s.Order, Ordered: s.Ordered}, nil
	case KindCoerce.String():
		k, err := frame.ParseKind(s.To)
		if err != nil {
			return nil, fmt.Errorf("recode %s: %w", s.Column, err)
		}
		return Coerce{Column: s.Column, To: k}, nil
	}
	return nil, fmt.Errorf("recode %s: unknown kind %q", s.Column, s.Kind)
}

// Build converts a list of specs, failing on the first invalid one.
func Build(specs []Spec) ([]Recode, error) {
	out := make([]Recode, 0, len(specs))
	for _, s := range specs {
		r, err := s.Recode()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
