package fluve_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"fluve/internal/config"
	"fluve/internal/etl"
	_ "fluve/internal/etl/sources"
	"fluve/internal/fluve"
	"fluve/internal/frame"
	"fluve/internal/indicator"
	"fluve/internal/pipeline"
	"fluve/internal/recode"
	"fluve/internal/redcap"
)

func col(t *testing.T, name string, kind frame.Kind, vals ...frame.Value) *frame.Column {
	t.Helper()
	c, err := frame.FromValues(name, kind, vals)
	require.NoError(t, err)
	return c
}

func boolAt(t *testing.T, tbl *frame.Table, name string, i int) (bool, bool) {
	t.Helper()
	c, ok := tbl.Column(name)
	require.True(t, ok, "column %s", name)
	return c.At(i).Bool()
}

// ─────────────────────────────────────────────────────────────
// Eligibility
// ─────────────────────────────────────────────────────────────

func TestEligible(t *testing.T) {
	var (
		yes  = frame.Bool(true)
		no   = frame.Bool(false)
		null = frame.Null(frame.KindBool)
	)
	tbl, err := frame.NewTable(
		col(t, fluve.ColTooYoung, frame.KindBool, no, yes, no, no),
		col(t, fluve.ColILI, frame.KindBool, yes, yes, null, yes),
		col(t, fluve.ColOnsetDays, frame.KindInt, frame.Int(5), frame.Int(5), frame.Int(5), frame.Int(9)),
		col(t, fluve.ColPriorVax, frame.KindCategory, frame.Category("No"), frame.Category("No"), frame.Category("No"), frame.Category("No")),
		col(t, fluve.ColFluMeds, frame.KindBool, no, no, no, no),
	)
	require.NoError(t, err)
	require.NoError(t, indicator.Apply(tbl, []indicator.Rule{fluve.Eligible}))

	b, ok := boolAt(t, tbl, fluve.IndEligible, 0)
	assert.True(t, ok && b, "all criteria met")
	b, ok = boolAt(t, tbl, fluve.IndEligible, 1)
	assert.True(t, ok && !b, "too young")
	_, ok = boolAt(t, tbl, fluve.IndEligible, 2)
	assert.False(t, ok, "missing illness answer is undetermined")
	b, ok = boolAt(t, tbl, fluve.IndEligible, 3)
	assert.True(t, ok && !b, "onset too long ago")
}

// ─────────────────────────────────────────────────────────────
// Lab-derived rules
// ─────────────────────────────────────────────────────────────

func TestRules_LabResults(t *testing.T) {
	results := []frame.Value{frame.Category("Positive"), frame.Category("Negative"), frame.Null(frame.KindCategory)}
	tbl, err := frame.NewTable(
		col(t, fluve.ColFluA, frame.KindCategory, results...),
		col(t, fluve.ColCtA, frame.KindFloat, frame.Float(28), frame.Null(frame.KindFloat), frame.Null(frame.KindFloat)),
		col(t, fluve.ColCtB, frame.KindFloat, frame.Float(34), frame.Float(36), frame.Null(frame.KindFloat)),
		col(t, fluve.ColRNPCt, frame.KindFloat, frame.Float(25), frame.Float(33), frame.Float(40)),
		col(t, fluve.ColAge, frame.KindInt, frame.Int(3), frame.Int(40), frame.Int(70)),
	)
	require.NoError(t, err)
	require.NoError(t, indicator.Apply(tbl, fluve.Rules()))

	b, ok := boolAt(t, tbl, fluve.IndFluAPos, 0)
	assert.True(t, ok && b)
	b, ok = boolAt(t, tbl, fluve.IndFluAPos, 1)
	assert.True(t, ok && !b)
	_, ok = boolAt(t, tbl, fluve.IndFluAPos, 2)
	assert.False(t, ok)

	avg, _ := tbl.Column(fluve.IndAvgCt)
	v, _ := avg.At(0).Float()
	assert.InDelta(t, 31.0, v, 1e-9)
	assert.True(t, avg.At(2).IsNull())

	b, _ = boolAt(t, tbl, fluve.IndGt30Ct, 0)
	assert.True(t, b)
	b, _ = boolAt(t, tbl, fluve.IndHighCt, 0)
	assert.False(t, b)
	b, _ = boolAt(t, tbl, fluve.IndHighCt, 1)
	assert.True(t, b)
	_, ok = boolAt(t, tbl, fluve.IndHighCt, 2)
	assert.False(t, ok, "no Ct, no flag")

	swabs, _ := tbl.Column(fluve.IndSwabs)
	assert.Equal(t, []string{"Good", "Fair", "Poor"}, []string{swabs.At(0).String(), swabs.At(1).String(), swabs.At(2).String()})
	assert.True(t, swabs.Ordered())

	ages, _ := tbl.Column(fluve.IndAgeGroup)
	assert.Equal(t, "0-4", ages.At(0).String())
	assert.Equal(t, "18-49", ages.At(1).String())
	assert.Equal(t, "65+", ages.At(2).String())
}

// ─────────────────────────────────────────────────────────────
// Study end to end
// ─────────────────────────────────────────────────────────────

type stubSurvey struct {
	dicts   map[string]redcap.Metadata
	records map[string][]map[string]string
}

func (s stubSurvey) ExportMetadata(_ context.Context, p redcap.Project) (redcap.Metadata, error) {
	return s.dicts[p.Name], nil
}

func (s stubSurvey) ExportRecords(_ context.Context, p redcap.Project) ([]map[string]string, error) {
	return s.records[p.Name], nil
}

func survey() stubSurvey {
	yesno := func(name string) redcap.Field { return redcap.Field{Name: name, Type: "yesno"} }
	return stubSurvey{
		dicts: map[string]redcap.Metadata{
			"staffing": {
				{Name: "record_id", Type: "text"},
				{Name: "shift_dt", Type: "text", Validation: "date_ymd"},
				{Name: "staff", Type: "text"},
				{Name: "clinic", Type: "radio", Choices: "1, Adult Urgent Care | 2, Family Medicine | 3, Pediatrics | 4, Emergency"},
				{Name: "shift_hrs", Type: "text", Validation: "number"},
			},
			"enrollment": {
				{Name: "record_id", Type: "text"},
				{Name: "scrndt_tm", Type: "text", Validation: "datetime_ymd"},
				{Name: "enrolled_by", Type: "text"},
				{Name: "age", Type: "text", Validation: "integer"},
				{Name: "consent", Type: "radio", Choices: "1, Yes | 0, No | 2, Later"},
				yesno("lt6mo"),
				{Name: "ili_crit", Type: "checkbox", Choices: "1, Fever and cough | 2, Fever and sore throat | 99, None of the above"},
				{Name: "sx", Type: "checkbox", Choices: "1, Fever | 2, Cough | 3, Sore throat"},
				{Name: "onset_days", Type: "text", Validation: "integer"},
				{Name: "vax_prior", Type: "radio", Choices: "1, Yes | 0, No | 9, Don't know"},
				yesno("flu_meds"),
				yesno("enroll"),
				yesno("withdraw"),
				{Name: "swab_dt", Type: "text", Validation: "date_ymd"},
			},
		},
		records: map[string][]map[string]string{
			"staffing": {
				{"record_id": "1", "shift_dt": "2024-10-05", "staff": "AB", "clinic": "Pediatrics", "shift_hrs": "8"},
				{"record_id": "2", "shift_dt": "2024-10-05", "staff": "CD", "clinic": "", "shift_hrs": "4.5"},
			},
			"enrollment": {
				{
					"record_id": "F001", "scrndt_tm": "2024-10-05 09:30", "enrolled_by": "AB", "age": "34",
					"consent": "Yes", "lt6mo": "No", "ili_crit___1": "Checked", "ili_crit___2": "Unchecked", "ili_crit___99": "Unchecked",
					"sx___1": "Checked", "sx___2": "Checked", "sx___3": "Unchecked",
					"onset_days": "3", "vax_prior": "No", "flu_meds": "No", "enroll": "Yes", "withdraw": "No", "swab_dt": "2024-10-05",
				},
				{
					"record_id": "F002", "scrndt_tm": "2024-10-06 10:00", "age": "2",
					"consent": "Yes", "lt6mo": "Yes", "ili_crit___1": "Checked", "ili_crit___2": "Unchecked", "ili_crit___99": "Unchecked",
					"sx___1": "Checked", "sx___2": "Unchecked", "sx___3": "Unchecked",
					"onset_days": "2", "vax_prior": "No", "flu_meds": "No", "enroll": "No", "withdraw": "No",
				},
				{
					"record_id": "F003", "scrndt_tm": "2024-10-07 14:15", "age": "61",
					"consent": "Yes", "lt6mo": "No", "ili_crit___1": "Unchecked", "ili_crit___2": "Checked", "ili_crit___99": "Unchecked",
					"sx___1": "Unchecked", "sx___2": "Unchecked", "sx___3": "Checked",
					"onset_days": "", "vax_prior": "Don't know", "flu_meds": "No", "enroll": "", "withdraw": "",
				},
			},
		},
	}
}

func writeLabSheet(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	header := []any{"Study ID", "Collection Date", "Influenza A", "A/H3", "A/pdm09", "A/H1pdm09",
		"Influenza B", "B/Victoria", "B/Yamagata", "Flu A Ct", "Flu B Ct", "RNP Ct"}
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &header))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"F001", "2024-10-05", "Positive", "Positive", "Negative", "Negative",
		"Negative", "Not tested", "Not tested", 24.5, "", 27.1}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"F002", "2024-10-06", "Negative", "Not tested", "Not tested", "Not tested",
		"Negative", "Not tested", "Not tested", "", "", 31.0}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]any{"", "", "", "", "", "", "", "", "", "", "", ""}))
	path := filepath.Join(t.TempDir(), "lab_results.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
	return path
}

func TestStudy_Build(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LabResults.Path = writeLabSheet(t)
	cfg.Study.FirstDate = "2024-10-01"

	study, err := fluve.Study(cfg)
	require.NoError(t, err)

	p, err := pipeline.Build(context.Background(), pipeline.Deps{
		Survey: survey(),
		Engine: etl.NewEngine(zap.NewNop()),
		Log:    zap.NewNop(),
	}, study)
	require.NoError(t, err)
	require.Equal(t, 3, p.Records.Len())

	b, ok := boolAt(t, p.Records, fluve.IndEligible, 0)
	assert.True(t, ok && b)
	b, ok = boolAt(t, p.Records, fluve.IndEnrolled, 0)
	assert.True(t, ok && b)
	b, ok = boolAt(t, p.Records, fluve.IndEligible, 1)
	assert.True(t, ok && !b, "too young")
	_, ok = boolAt(t, p.Records, fluve.IndEligible, 2)
	assert.False(t, ok, "onset missing")

	b, _ = boolAt(t, p.Records, fluve.IndH3Pos, 0)
	assert.True(t, b)

	sym, _ := p.Records.Column(fluve.ColSymptoms)
	items, _ := sym.At(0).List()
	assert.Equal(t, []string{"Fever", "Cough"}, items)

	prior, _ := p.Records.Column(fluve.ColPriorVax)
	assert.Equal(t, []string{"No", "Yes", "Unknown"}, prior.Categories())
	assert.Equal(t, "Unknown", prior.At(2).String())

	assert.Equal(t, []string{
		"Eligibility undetermined",
		"Lab result without enrollment",
		"Staffing shift without clinic",
	}, p.Failures.Labels())
}

func TestStudy_BadWindow(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Study.FirstDate = "yesterday"
	_, err := fluve.Study(cfg)
	assert.Error(t, err)
}

func TestStudy_ConfiguredRecodes(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Study.Recodes = []recode.Spec{{Kind: "coerce", Column: "household_size", To: "integer"}}
	study, err := fluve.Study(cfg)
	require.NoError(t, err)
	last := study.Enrollment.Recodes[len(study.Enrollment.Recodes)-1]
	assert.Equal(t, recode.KindCoerce, last.Kind())

	cfg.Study.Recodes = []recode.Spec{{Kind: "magic", Column: "x"}}
	_, err = fluve.Study(cfg)
	assert.ErrorContains(t, err, "study recodes")
}

func TestChecks_DuplicateExceptions(t *testing.T) {
	records, err := frame.NewTable(frame.TextColumn(fluve.ColStudyID, "F001", "F001", "F002", "F002"))
	require.NoError(t, err)
	staffing := frame.Empty(0)

	cases := fluve.Checks([]string{"F001"})(records, staffing)
	for _, c := range cases {
		if c.Label == "Duplicate study IDs" {
			assert.Equal(t, 2, c.Rows.Len())
			return
		}
	}
	t.Fatal("duplicate check missing")
}
