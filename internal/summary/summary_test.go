package summary_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluve/internal/fluve"
	"fluve/internal/frame"
	"fluve/internal/summary"
)

func boolCol(t *testing.T, name string, vals ...bool) *frame.Column {
	t.Helper()
	values := make([]frame.Value, len(vals))
	for i, v := range vals {
		values[i] = frame.Bool(v)
	}
	c, err := frame.FromValues(name, frame.KindBool, values)
	require.NoError(t, err)
	return c
}

func records(t *testing.T) *frame.Table {
	t.Helper()
	clinic := frame.NewCategoryColumn(fluve.ColClinic, []string{"Pediatrics", "Adult Urgent Care"}, true, 5)
	for i, v := range []string{"Adult Urgent Care", "Pediatrics", "Pediatrics", "Adult Urgent Care", ""} {
		if v != "" {
			require.NoError(t, clinic.Set(i, frame.Category(v)))
		}
	}
	avg, err := frame.FromValues(fluve.IndAvgCt, frame.KindFloat, []frame.Value{
		frame.Float(25), frame.Float(32), frame.Null(frame.KindFloat), frame.Null(frame.KindFloat), frame.Null(frame.KindFloat),
	})
	require.NoError(t, err)

	tbl, err := frame.NewTable(
		clinic,
		boolCol(t, fluve.IndScreened, true, true, true, true, true),
		boolCol(t, fluve.IndAgree, true, true, true, false, true),
		boolCol(t, fluve.IndEligible, true, true, false, false, false),
		boolCol(t, fluve.IndEnrolled, true, true, false, false, false),
		boolCol(t, fluve.IndGt30Ct, false, true, false, false, false),
		avg,
	)
	require.NoError(t, err)
	return tbl
}

func TestEnrollment_GroupsFollowCategoryOrder(t *testing.T) {
	out, err := summary.Enrollment(records(t), fluve.ColClinic, true)
	require.NoError(t, err)
	require.Equal(t, 4, out.Len())

	groups, _ := out.Column(fluve.ColClinic)
	assert.Equal(t, "Pediatrics", groups.At(0).String())
	assert.Equal(t, "Adult Urgent Care", groups.At(1).String())
	assert.Equal(t, summary.UnknownLabel, groups.At(2).String())
	assert.Equal(t, summary.TotalLabel, groups.At(3).String())

	total := out.Row(3)
	assert.EqualValues(t, 5, total.IntOr(fluve.IndScreened, -1))
	assert.EqualValues(t, 4, total.IntOr(fluve.IndAgree, -1))
	assert.EqualValues(t, 2, total.IntOr(fluve.IndEnrolled, -1))
	assert.EqualValues(t, 0, total.IntOr(fluve.IndWithdrew, -1), "absent indicator counts zero")
	assert.InDelta(t, 28.5, total.FloatOr(fluve.IndAvgCt, 0), 1e-9)
	assert.InDelta(t, 80.0, total.FloatOr("agreePct", 0), 1e-9)
	assert.InDelta(t, 40.0, total.FloatOr("enrollPct", 0), 1e-9)
	assert.InDelta(t, 100.0, total.FloatOr("conversionPct", 0), 1e-9)
	assert.InDelta(t, 50.0, total.FloatOr("gt30CtPct", 0), 1e-9)
	assert.False(t, total.IsNull("withdrewPct"))

	peds := out.Row(0)
	assert.EqualValues(t, 2, peds.IntOr(fluve.IndScreened, -1))
	assert.InDelta(t, 50.0, peds.FloatOr("enrollPct", 0), 1e-9)

	unknown := out.Row(2)
	assert.True(t, unknown.IsNull("conversionPct"), "no eligible rows, no ratio")
}

func TestEnrollment_RealUnknownAnswerKeptApartFromMissing(t *testing.T) {
	prior := frame.NewCategoryColumn(fluve.ColPriorVax, []string{"No", "Yes", "Unknown"}, false, 3)
	require.NoError(t, prior.Set(0, frame.Category("No")))
	require.NoError(t, prior.Set(1, frame.Category("Unknown")))
	tbl, err := frame.NewTable(prior, boolCol(t, fluve.IndScreened, true, true, true))
	require.NoError(t, err)

	out, err := summary.Enrollment(tbl, fluve.ColPriorVax, true)
	require.NoError(t, err)
	require.Equal(t, 4, out.Len())

	groups, _ := out.Column(fluve.ColPriorVax)
	var labels []string
	for i := 0; i < groups.Len(); i++ {
		labels = append(labels, groups.At(i).String())
	}
	assert.Equal(t, []string{"No", "Unknown", summary.MissingLabel, summary.TotalLabel}, labels)
	for i := 0; i < 3; i++ {
		assert.EqualValues(t, 1, out.Row(i).IntOr(fluve.IndScreened, -1), labels[i])
	}
	assert.EqualValues(t, 3, out.Row(3).IntOr(fluve.IndScreened, -1))
}

func TestEnrollment_NoMargins(t *testing.T) {
	out, err := summary.Enrollment(records(t), fluve.ColClinic, false)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Len())
}

func TestEnrollment_UnknownColumn(t *testing.T) {
	_, err := summary.Enrollment(records(t), "team", true)
	assert.ErrorContains(t, err, "team")
}
