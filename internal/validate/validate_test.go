package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fluve/internal/frame"
	"fluve/internal/validate"
)

func records(t *testing.T) *frame.Table {
	t.Helper()
	tbl, err := frame.NewTable(
		frame.TextColumn("id", "F001", "F002", "F002", "F003", "TEST", "TEST"),
		frame.TextColumn("coll_by", "AB", "", "CD", "EF", "", ""),
	)
	require.NoError(t, err)
	return tbl
}

// ─────────────────────────────────────────────────────────────
// Run
// ─────────────────────────────────────────────────────────────

func TestRun_FailuresOnlyNonEmpty(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tbl := records(t)

	cases := []validate.Case{
		validate.Query("Missing collector", tbl, func(r frame.Row) bool { return r.IsNull("coll_by") }),
		validate.Query("Unknown id prefix", tbl, func(r frame.Row) bool { return r.TextOr("id", "") == "X" }),
	}
	failures := validate.Run(zap.New(core), cases)

	require.Equal(t, []string{"Missing collector"}, failures.Labels())
	assert.Equal(t, 3, failures["Missing collector"].Len())
	assert.Equal(t, 3, failures.Rows())

	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.InfoLevel).Len())
}

func TestRun_DoesNotMutate(t *testing.T) {
	tbl := records(t)
	failing := validate.Query("Missing collector", tbl, func(r frame.Row) bool { return r.IsNull("coll_by") })

	failures := validate.Run(zap.NewNop(), []validate.Case{failing})

	assert.Same(t, failing.Rows, failures["Missing collector"])
	assert.Equal(t, 6, tbl.Len())
}

func TestRun_NilRowsIsPass(t *testing.T) {
	failures := validate.Run(zap.NewNop(), []validate.Case{{Label: "nothing"}})
	assert.Empty(t, failures)
}

// ─────────────────────────────────────────────────────────────
// Duplicates
// ─────────────────────────────────────────────────────────────

func TestDuplicates_WithExceptions(t *testing.T) {
	c := validate.Duplicates("Duplicate study ids", records(t), []string{"TEST"}, "id")

	require.Equal(t, 2, c.Rows.Len())
	ids, _ := c.Rows.Column("id")
	assert.Equal(t, "F002", ids.At(0).String())
	assert.Equal(t, "F002", ids.At(1).String())
}
