package service_test

import (
	"context"
	"path/filepath"
	"testing"

	"fluve/internal/dbclient"
	"fluve/internal/etl"
	"fluve/internal/frame"
	"fluve/internal/service"
)

func TestPublishService_WriteThenQuery(t *testing.T) {
	ctx := context.Background()
	svc := service.NewPublishService(dbclient.ConnConfig{
		Driver: dbclient.DriverSQLite,
		Host:   filepath.Join(t.TempDir(), "analysts.db"),
	}, "", nil)
	defer svc.Close()

	if err := svc.TestConnection(ctx); err != nil {
		t.Fatalf("TestConnection: %v", err)
	}

	records, err := frame.NewTable(frame.TextColumn("study_id", "F001", "F002", "F003"))
	if err != nil {
		t.Fatal(err)
	}
	n, err := svc.Write(ctx, "fluve_records", records, etl.SyncReplace)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows written, got %d", n)
	}

	page, err := svc.Query(ctx, "SELECT study_id FROM fluve_records ORDER BY study_id", 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page.Rows) != 2 || !page.HasMore {
		t.Fatalf("expected a first page of 2 with more, got %+v", page)
	}
	more, err := svc.FetchMore(ctx, 2)
	if err != nil {
		t.Fatalf("FetchMore: %v", err)
	}
	if len(more.Rows) != 1 || more.Rows[0][0] != "F003" {
		t.Fatalf("unexpected second page: %+v", more)
	}
}

func TestPublishService_FetchMoreWithoutQuery(t *testing.T) {
	svc := service.NewPublishService(dbclient.ConnConfig{Driver: dbclient.DriverSQLite}, "", nil)
	if _, err := svc.FetchMore(context.Background(), 10); err == nil {
		t.Fatal("expected error without an open connection")
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close on unopened service: %v", err)
	}
}
