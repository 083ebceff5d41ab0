package etl_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"fluve/internal/etl"
	"fluve/internal/frame"
)

func rec(kv ...any) etl.Record {
	data := map[string]any{}
	for i := 0; i+1 < len(kv); i += 2 {
		data[kv[i].(string)] = kv[i+1]
	}
	return etl.Record{Data: data}
}

func TestFilterTransform(t *testing.T) {
	tests := []struct {
		name string
		tr   etl.FilterTransform
		in   etl.Record
		keep bool
	}{
		{"eq", etl.FilterTransform{Field: "result", Op: "eq", Value: "Positive"}, rec("result", "Positive"), true},
		{"neq", etl.FilterTransform{Field: "result", Op: "neq", Value: "Positive"}, rec("result", "Positive"), false},
		{"gt numeric", etl.FilterTransform{Field: "ct", Op: "gt", Value: 30}, rec("ct", "31.2"), true},
		{"gt non numeric", etl.FilterTransform{Field: "ct", Op: "gt", Value: 30}, rec("ct", "n/a"), false},
		{"lt", etl.FilterTransform{Field: "ct", Op: "lt", Value: 30.0}, rec("ct", 24.0), true},
		{"contains", etl.FilterTransform{Field: "subtype", Op: "contains", Value: "H3"}, rec("subtype", "A/H3N2"), true},
		{"missing field", etl.FilterTransform{Field: "ct", Op: "eq", Value: "1"}, rec(), false},
		{"not_null blank", etl.FilterTransform{Field: "id", Op: "not_null"}, rec("id", "  "), false},
		{"not_null nil", etl.FilterTransform{Field: "id", Op: "not_null"}, rec("id", nil), false},
		{"not_null set", etl.FilterTransform{Field: "id", Op: "not_null"}, rec("id", "F1"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, keep := tt.tr.Transform(tt.in)
			if keep != tt.keep {
				t.Errorf("keep = %v, want %v", keep, tt.keep)
			}
		})
	}
}

func TestTypeCastTransform(t *testing.T) {
	r, _ := (&etl.TypeCastTransform{Field: "ct", CastType: "number"}).Transform(rec("ct", "33.5"))
	if r.Data["ct"] != 33.5 {
		t.Errorf("ct = %v", r.Data["ct"])
	}
	r, _ = (&etl.TypeCastTransform{Field: "ct", CastType: "number"}).Transform(rec("ct", "pending"))
	if r.Data["ct"] != nil {
		t.Errorf("unparseable number should become nil, got %v", r.Data["ct"])
	}
	r, _ = (&etl.TypeCastTransform{Field: "pos", CastType: "bool"}).Transform(rec("pos", "Yes"))
	if r.Data["pos"] != true {
		t.Errorf("pos = %v", r.Data["pos"])
	}
	r, _ = (&etl.TypeCastTransform{Field: "n", CastType: "integer"}).Transform(rec("n", "4"))
	if r.Data["n"] != int64(4) {
		t.Errorf("n = %#v", r.Data["n"])
	}
}

func TestSelectAndRename(t *testing.T) {
	r, _ := (&etl.SelectTransform{Fields: []string{"a", "c"}}).Transform(rec("a", 1, "b", 2))
	if len(r.Data) != 2 || r.Data["c"] != nil {
		t.Errorf("select = %v", r.Data)
	}
	r, _ = (&etl.RenameTransform{Mapping: map[string]string{"a": "z"}}).Transform(rec("a", 1))
	if _, ok := r.Data["a"]; ok || r.Data["z"] != 1 {
		t.Errorf("rename = %v", r.Data)
	}
}

func TestDedupeKeepsFirst(t *testing.T) {
	d := etl.NewDedupeTransform("id")
	_, k1 := d.Transform(rec("id", "F1"))
	_, k2 := d.Transform(rec("id", "F1"))
	_, k3 := d.Transform(rec("id", "F2"))
	if !k1 || k2 || !k3 {
		t.Errorf("keeps = %v %v %v", k1, k2, k3)
	}
}

// ─────────────────────────────────────────────────────────────
// Destinations
// ─────────────────────────────────────────────────────────────

func TestCSVDirWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "processed")
	tbl, err := frame.NewTable(frame.TextColumn("study_id", "F001", "F002"), frame.TextColumn("lab", "state", ""))
	if err != nil {
		t.Fatal(err)
	}
	w := &etl.CSVDirWriter{Dir: dir}

	n, err := w.Write(context.Background(), "records", tbl, etl.SyncReplace)
	if err != nil || n != 2 {
		t.Fatalf("write = %d, %v", n, err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "records.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "study_id,lab\nF001,state\nF002,\n" {
		t.Errorf("csv = %q", got)
	}

	if _, err := w.Write(context.Background(), "records", tbl, etl.SyncAppend); err == nil {
		t.Error("append should be rejected")
	}
}
