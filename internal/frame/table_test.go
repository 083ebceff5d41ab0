package frame_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"fluve/internal/frame"
)

// ─────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────

func mustTable(t *testing.T, cols ...*frame.Column) *frame.Table {
	t.Helper()
	tbl, err := frame.NewTable(cols...)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return tbl
}

func mustColumn(t *testing.T, name string, kind frame.Kind, values ...frame.Value) *frame.Column {
	t.Helper()
	c, err := frame.FromValues(name, kind, values)
	if err != nil {
		t.Fatalf("FromValues: %v", err)
	}
	return c
}

// ─────────────────────────────────────────────────────────────
// Values
// ─────────────────────────────────────────────────────────────

func TestFloat_NaNIsNull(t *testing.T) {
	v := frame.Float(math.NaN())
	if !v.IsNull() {
		t.Fatal("NaN float should be null")
	}
	f, ok := v.Float()
	if ok || !math.IsNaN(f) {
		t.Fatalf("null float should read back as NaN, got %v ok=%v", f, ok)
	}
}

func TestBool_TriState(t *testing.T) {
	null := frame.Null(frame.KindBool)
	if _, ok := null.Bool(); ok {
		t.Fatal("null boolean should not report a value")
	}
	if b, ok := frame.Bool(false).Bool(); !ok || b {
		t.Fatal("false should be a known false")
	}
}

// ─────────────────────────────────────────────────────────────
// Table structure
// ─────────────────────────────────────────────────────────────

func TestNewTable_LengthMismatch(t *testing.T) {
	_, err := frame.NewTable(
		frame.TextColumn("a", "x", "y"),
		frame.TextColumn("b", "x"),
	)
	if !errors.Is(err, frame.ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestTable_RenameDropSelect(t *testing.T) {
	tbl := mustTable(t,
		frame.TextColumn("record_id", "1", "2"),
		frame.TextColumn("scrn_clinic", "A", "B"),
		frame.TextColumn("junk", "x", "y"),
	)
	tbl.Rename(map[string]string{"record_id": "id", "scrn_clinic": "clinic", "missing": "ignored"})
	tbl.Drop("junk", "not-there")

	if got := strings.Join(tbl.Names(), ","); got != "id,clinic" {
		t.Fatalf("names = %s", got)
	}

	sel := tbl.Select("clinic", "nope")
	if sel.Width() != 1 || sel.Len() != 2 {
		t.Fatalf("select: width=%d len=%d", sel.Width(), sel.Len())
	}
}

func TestTable_FilterKeepsSchema(t *testing.T) {
	clinic := frame.NewCategoryColumn("clinic", []string{"North", "South"}, true, 3)
	_ = clinic.Set(0, frame.Category("South"))
	_ = clinic.Set(1, frame.Category("North"))
	tbl := mustTable(t, frame.TextColumn("id", "1", "2", "3"), clinic)

	sub := tbl.Filter(func(r frame.Row) bool { return !r.IsNull("clinic") })
	if sub.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", sub.Len())
	}
	c, _ := sub.Column("clinic")
	if c.Kind() != frame.KindCategory || !c.Ordered() {
		t.Fatal("filtered column lost its category schema")
	}
	if got := strings.Join(c.Categories(), ","); got != "North,South" {
		t.Fatalf("categories = %s", got)
	}
}

func TestColumn_SetUnknownCategory(t *testing.T) {
	c := frame.NewCategoryColumn("consent", []string{"Yes", "No"}, false, 1)
	if err := c.Set(0, frame.Category("Maybe")); !errors.Is(err, frame.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	if err := c.Set(0, frame.Text("Yes")); !errors.Is(err, frame.ErrKindMismatch) {
		t.Fatalf("expected ErrKindMismatch, got %v", err)
	}
}

// ─────────────────────────────────────────────────────────────
// Sorting follows category order, not lexical order
// ─────────────────────────────────────────────────────────────

func TestSortBy_CategoryOrder(t *testing.T) {
	grp := frame.NewCategoryColumn("agegrp", []string{"0-4", "5-17", "18-49", "50-64", "65+"}, true, 5)
	for i, label := range []string{"65+", "18-49", "0-4", "50-64", "5-17"} {
		if err := grp.Set(i, frame.Category(label)); err != nil {
			t.Fatal(err)
		}
	}
	tbl := mustTable(t, grp)

	if err := tbl.SortBy("agegrp", false); err != nil {
		t.Fatal(err)
	}
	c, _ := tbl.Column("agegrp")
	var got []string
	for i := 0; i < c.Len(); i++ {
		got = append(got, c.At(i).String())
	}
	if strings.Join(got, " ") != "0-4 5-17 18-49 50-64 65+" {
		t.Fatalf("sorted = %v", got)
	}
}

func TestSortBy_NullsLast(t *testing.T) {
	c := mustColumn(t, "ct", frame.KindFloat, frame.Float(31), frame.Null(frame.KindFloat), frame.Float(12))
	tbl := mustTable(t, c)
	if err := tbl.SortBy("ct", true); err != nil {
		t.Fatal(err)
	}
	sorted, _ := tbl.Column("ct")
	if sorted.At(0).String() != "31" || !sorted.At(2).IsNull() {
		t.Fatalf("unexpected order: %v %v %v", sorted.At(0), sorted.At(1), sorted.At(2))
	}
}

// ─────────────────────────────────────────────────────────────
// Duplicates
// ─────────────────────────────────────────────────────────────

func TestDuplicated(t *testing.T) {
	tbl := mustTable(t, frame.TextColumn("id", "a", "b", "a", "", "a"))

	first := tbl.Duplicated("id")
	all := tbl.DuplicatedAll("id")
	wantFirst := []bool{false, false, true, false, true}
	wantAll := []bool{true, false, true, false, true}
	for i := range wantFirst {
		if first[i] != wantFirst[i] {
			t.Errorf("Duplicated[%d] = %v", i, first[i])
		}
		if all[i] != wantAll[i] {
			t.Errorf("DuplicatedAll[%d] = %v", i, all[i])
		}
	}
}

// ─────────────────────────────────────────────────────────────
// Conversion
// ─────────────────────────────────────────────────────────────

func TestCast_AllOrNothing(t *testing.T) {
	c := frame.TextColumn("onset_days", "2", "x", "4")
	if _, err := c.Cast(frame.KindInt); err == nil {
		t.Fatal("expected cast error")
	}
	if c.Kind() != frame.KindText || c.At(1).String() != "x" {
		t.Fatal("failed cast modified the source column")
	}

	ok := frame.TextColumn("onset_days", "2", "", "4.0")
	ints, err := ok.Cast(frame.KindInt)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := ints.At(2).Int(); v != 4 {
		t.Fatalf("expected 4, got %v", ints.At(2))
	}
	if !ints.At(1).IsNull() {
		t.Fatal("empty text should cast to null")
	}
}

func TestCastOrNull_MarksUnconvertibleCells(t *testing.T) {
	c := frame.TextColumn("ct", "24.5", "Undetermined", "", "31")
	floats, bad := c.CastOrNull(frame.KindFloat)
	if floats.Kind() != frame.KindFloat {
		t.Fatalf("expected float column, got %s", floats.Kind())
	}
	if len(bad) != 1 || bad[0] != 1 {
		t.Fatalf("expected row 1 unconvertible, got %v", bad)
	}
	if f, ok := floats.At(1).Float(); ok || !math.IsNaN(f) {
		t.Fatalf("unconvertible cell should read as NaN, got %v", floats.At(1))
	}
	if f, _ := floats.At(3).Float(); f != 31 {
		t.Fatalf("expected 31, got %v", f)
	}
	if c.At(1).String() != "Undetermined" {
		t.Fatal("CastOrNull modified the source column")
	}
}

func TestCastCategoriesOrNull(t *testing.T) {
	c := frame.TextColumn("result", "Positive", "positive", "", "Negative")
	cats, bad := c.CastCategoriesOrNull([]string{"Negative", "Positive"}, false)
	if len(bad) != 1 || bad[0] != 1 {
		t.Fatalf("expected row 1 outside the label set, got %v", bad)
	}
	if !cats.At(1).IsNull() || cats.At(0).String() != "Positive" {
		t.Fatalf("unexpected values: %v %v", cats.At(0), cats.At(1))
	}

	if _, err := c.CastCategories([]string{"Negative", "Positive"}, false); !errors.Is(err, frame.ErrUnknownCategory) {
		t.Fatalf("strict cast: expected ErrUnknownCategory, got %v", err)
	}
}

func TestParseTime_RedcapLayouts(t *testing.T) {
	for _, s := range []string{"2023-10-02", "2023-10-02 14:30", "2023-10-02 14:30:05"} {
		if _, err := frame.ParseTime(s); err != nil {
			t.Errorf("ParseTime(%q): %v", s, err)
		}
	}
}

// ─────────────────────────────────────────────────────────────
// Serialization
// ─────────────────────────────────────────────────────────────

func TestJSON_PreservesSchema(t *testing.T) {
	clinic := frame.NewCategoryColumn("clinic", []string{"South", "North"}, true, 2)
	_ = clinic.Set(1, frame.Category("North"))
	when := time.Date(2023, 10, 2, 9, 15, 0, 0, time.UTC)
	tbl := mustTable(t,
		clinic,
		mustColumn(t, "eligible", frame.KindBool, frame.Bool(true), frame.Null(frame.KindBool)),
		mustColumn(t, "avgCt", frame.KindFloat, frame.Null(frame.KindFloat), frame.Float(28.5)),
		mustColumn(t, "scrndt_tm", frame.KindTime, frame.Time(when), frame.Null(frame.KindTime)),
		mustColumn(t, "symptoms", frame.KindList, frame.List([]string{"Fever", "Cough"}), frame.List(nil)),
	)

	data, err := json.Marshal(tbl)
	if err != nil {
		t.Fatal(err)
	}
	var back frame.Table
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}

	for _, name := range tbl.Names() {
		a, _ := tbl.Column(name)
		b, ok := back.Column(name)
		if !ok {
			t.Fatalf("column %q lost", name)
		}
		if a.Kind() != b.Kind() || a.Ordered() != b.Ordered() {
			t.Fatalf("column %q schema changed", name)
		}
		for i := 0; i < a.Len(); i++ {
			if !a.At(i).Equal(b.At(i)) {
				t.Errorf("%s[%d]: %v != %v", name, i, a.At(i), b.At(i))
			}
		}
	}
}

func TestWriteCSV(t *testing.T) {
	tbl := mustTable(t,
		frame.TextColumn("id", "1", "2"),
		mustColumn(t, "enrolled", frame.KindBool, frame.Bool(true), frame.Null(frame.KindBool)),
	)
	var buf bytes.Buffer
	if err := frame.WriteCSV(&buf, tbl); err != nil {
		t.Fatal(err)
	}
	want := "id,enrolled\n1,true\n2,\n"
	if buf.String() != want {
		t.Fatalf("csv = %q", buf.String())
	}
}
