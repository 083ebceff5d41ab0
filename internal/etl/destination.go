package etl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"fluve/internal/frame"
)

// ── Destination ────────────────────────────────────────────
// A Destination writes a finished table into a target system: a database
// table for analysts, or a CSV file under the processed-data folder.
//
// Pattern: Singer target protocol.

// SyncMode determines how rows are written to the destination.
type SyncMode string

const (
	SyncReplace SyncMode = "replace" // drop existing rows, write fresh
	SyncAppend  SyncMode = "append"  // add rows without deleting existing
)

// Destination writes a table to a target system.
type Destination interface {
	Write(ctx context.Context, target string, t *frame.Table, mode SyncMode) (int, error)
}

// TableWriter is the slice of a database connector a destination needs.
type TableWriter interface {
	WriteTable(ctx context.Context, name string, t *frame.Table, replace bool) (int, error)
}

// ── Database Destination ───────────────────────────────────

// ConnectorWriter implements Destination on top of a database connector.
type ConnectorWriter struct {
	Conn TableWriter
}

func (w *ConnectorWriter) Write(ctx context.Context, target string, t *frame.Table, mode SyncMode) (int, error) {
	if t.Len() == 0 && mode == SyncAppend {
		return 0, nil
	}
	return w.Conn.WriteTable(ctx, target, t, mode == SyncReplace)
}

// ── CSV Destination ────────────────────────────────────────

// CSVDirWriter writes each target as <Dir>/<target>.csv. Append mode is not
// supported for CSV: the file is always rewritten.
type CSVDirWriter struct {
	Dir string
}

func (w *CSVDirWriter) Write(ctx context.Context, target string, t *frame.Table, mode SyncMode) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if mode == SyncAppend {
		return 0, fmt.Errorf("csv destination: append mode unsupported")
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return 0, fmt.Errorf("create dir: %w", err)
	}
	path := filepath.Join(w.Dir, target+".csv")
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	if err := frame.WriteCSV(f, t); err != nil {
		f.Close()
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	return t.Len(), nil
}
