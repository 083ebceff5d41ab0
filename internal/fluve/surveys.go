// Package fluve defines the FluVE study: which REDCap fields to pull, how
// to recode them, the lab sheet layout, the derived indicators and the
// data-quality checks.
package fluve

import (
	"fluve/internal/frame"
	"fluve/internal/pipeline"
	"fluve/internal/recode"
	"fluve/internal/redcap"
)

// Column names shared by recodes, rules and checks.
const (
	ColStudyID    = "study_id"
	ColScreenDate = "screen_date"
	ColClinic     = "clinic"
	ColTeam       = "team"
	ColCollector  = "collector"
	ColAge        = "age"
	ColConsent    = "consent"
	ColTooYoung   = "too_young"
	ColILI        = "ili"
	ColSymptoms   = "symptoms"
	ColOnsetDays  = "onset_days"
	ColPriorVax   = "prior_vax"
	ColFluMeds    = "flu_meds"
	ColEnroll     = "enroll"
	ColWithdrawal = "withdrawal"
	ColRace       = "race"
	ColEducation  = "education"
	ColSwabDate   = "swab_date"

	ColShiftID    = "shift_id"
	ColShiftDate  = "shift_date"
	ColStaffName  = "staff_name"
	ColShiftHours = "hours"
)

// Clinics in reporting order.
var Clinics = []string{"Adult Urgent Care", "Family Medicine", "Pediatrics", "Emergency"}

func yesNo(col string) recode.Recode {
	return recode.BooleanMap{Column: col, True: []string{"Yes"}, False: []string{"No"}}
}

// StaffingSurvey is the clinic staffing log.
func StaffingSurvey(token string) pipeline.SurveySpec {
	return pipeline.SurveySpec{
		Project: redcap.Project{
			Name:   "staffing",
			Token:  token,
			Fields: []string{"record_id", "shift_dt", "staff", "clinic", "shift_hrs"},
		},
		Renames: map[string]string{
			"record_id": ColShiftID,
			"shift_dt":  ColShiftDate,
			"staff":     ColStaffName,
			"shift_hrs": ColShiftHours,
		},
		Recodes: []recode.Recode{
			recode.CategoryRelabel{Column: ColClinic, Order: Clinics},
		},
	}
}

// EnrollmentSurvey is the screening and enrollment form.
func EnrollmentSurvey(token string) pipeline.SurveySpec {
	return pipeline.SurveySpec{
		Project: redcap.Project{
			Name:  "enrollment",
			Token: token,
			Fields: []string{
				"record_id", "scrndt_tm", "clinic", "team", "enrolled_by", "age",
				"consent", "lt6mo", "ili_crit", "sx", "onset_days", "vax_prior",
				"flu_meds", "enroll", "withdraw", "race", "educ", "swab_dt",
			},
			Events: []string{"screening_arm_1", "enrollment_arm_1"},
		},
		Renames: map[string]string{
			"record_id":   ColStudyID,
			"scrndt_tm":   ColScreenDate,
			"enrolled_by": ColCollector,
			"lt6mo":       ColTooYoung,
			"vax_prior":   ColPriorVax,
			"withdraw":    ColWithdrawal,
			"educ":        ColEducation,
			"swab_dt":     ColSwabDate,
		},
		DictionaryRecodes: enrollmentChecklists,
		Recodes: []recode.Recode{
			recode.CategoryRelabel{Column: ColConsent, Order: []string{"Yes", "No", "Later"}},
			recode.CategoryRelabel{
				Column:  ColPriorVax,
				Rename:  []recode.Relabel{{From: "No", To: "No"}, {From: "Yes", To: "Yes"}, {From: "Don't know", To: "Unknown"}},
				Reorder: true,
			},
			yesNo(ColTooYoung),
			yesNo(ColFluMeds),
			yesNo(ColEnroll),
			yesNo(ColWithdrawal),
			recode.CategoryRelabel{Column: ColClinic, Order: Clinics},
			recode.CategoryRelabel{Column: ColTeam, Ordered: true},
			recode.CategoryRelabel{
				Column: ColEducation,
				Order:  []string{"Less than high school", "High school", "Some college", "College graduate", "Postgraduate"},
			},
			recode.Coerce{Column: ColOnsetDays, To: frame.KindInt},
		},
	}
}

// enrollmentChecklists folds the checkbox questions using the dictionary's
// option lists. "None of the above" never counts as a qualifying symptom.
func enrollmentChecklists(md redcap.Metadata) []recode.Recode {
	var (
		qualifying []string
		symptoms   []recode.Option
	)
	for _, o := range md.Checklist("ili_crit") {
		if o.Label != "None of the above" {
			qualifying = append(qualifying, o.Source)
		}
	}
	for _, o := range md.Checklist("sx") {
		if o.Label != "None of the above" {
			symptoms = append(symptoms, o)
		}
	}

	race := []recode.CategoryOption{
		{Name: "Multiracial", Sources: []string{redcap.CheckboxColumn("race", "7")}},
		{Name: "White", Sources: []string{redcap.CheckboxColumn("race", "1")}},
		{Name: "Black", Sources: []string{redcap.CheckboxColumn("race", "2")}},
		{Name: "Asian", Sources: []string{redcap.CheckboxColumn("race", "3")}},
		{Name: "Other", Sources: []string{
			redcap.CheckboxColumn("race", "4"),
			redcap.CheckboxColumn("race", "5"),
			redcap.CheckboxColumn("race", "6"),
		}},
	}

	out := []recode.Recode{
		recode.ChecklistToCategory{Column: ColRace, Categories: race},
	}
	if len(qualifying) > 0 {
		out = append(out, recode.ChecklistToBool{Column: ColILI, Sources: qualifying})
	}
	if len(symptoms) > 0 {
		out = append(out, recode.ChecklistToList{Column: ColSymptoms, Options: symptoms})
	}
	return out
}
