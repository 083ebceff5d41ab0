// Package pipeline builds a Project: the joined, recoded and indicator-
// augmented record table of one study run, with its validation failures.
package pipeline

import (
	"time"

	"fluve/internal/etl"
	"fluve/internal/frame"
	"fluve/internal/indicator"
	"fluve/internal/recode"
	"fluve/internal/redcap"
	"fluve/internal/validate"
)

// SurveySpec describes one REDCap project and how to clean it.
type SurveySpec struct {
	Project redcap.Project
	// Renames maps export names to analysis names. It runs after dtype
	// assignment, which is keyed by export names.
	Renames map[string]string
	// DictionaryRecodes builds recodes that need the data dictionary, such
	// as checklists whose options come from the choice list. They run
	// before Recodes.
	DictionaryRecodes func(redcap.Metadata) []recode.Recode
	Recodes           []recode.Recode
}

// LabColumn is one column of the fixed lab-results layout.
type LabColumn struct {
	Name       string
	Kind       frame.Kind
	Categories []string
}

// LabSpec says where the lab results come from and what they must contain.
type LabSpec struct {
	Source     string
	Config     etl.SourceConfig
	Transforms []etl.TransformConfig
	Columns    []LabColumn
}

// Study is the full definition of one pipeline run.
type Study struct {
	Staffing   SurveySpec
	Enrollment SurveySpec
	Lab        LabSpec

	// IDColumn joins lab results onto enrollment records.
	IDColumn string
	// DateColumn holds the enrollment date the study window applies to.
	DateColumn string
	// First and Last bound the window, inclusive by day. Zero means open.
	First time.Time
	Last  time.Time

	Rules  []indicator.Rule
	Checks func(records, staffing *frame.Table) []validate.Case
}

// inWindow reports whether ts falls on a day inside the study window.
func (s Study) inWindow(ts time.Time) bool {
	if !s.First.IsZero() && ts.Before(s.First) {
		return false
	}
	if !s.Last.IsZero() && !ts.Before(s.Last.AddDate(0, 0, 1)) {
		return false
	}
	return true
}

func (s Study) windowed() bool {
	return s.DateColumn != "" && (!s.First.IsZero() || !s.Last.IsZero())
}
