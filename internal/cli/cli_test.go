package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fluve/internal/config"
	"fluve/internal/frame"
	"fluve/internal/redcap"
	"fluve/internal/storage"
)

// setup points the globals at a fresh config rooted in a temp dir.
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg = config.DefaultConfig()
	cfg.Paths.RawData = filepath.Join(dir, "raw")
	cfg.Paths.ProcessedData = filepath.Join(dir, "processed")
	logger = zap.NewNop()

	t.Setenv(config.StaffingTokenKey, "")
	t.Setenv(config.EnrollmentTokenKey, "")
	t.Cleanup(func() {
		cfg = nil
		logger = nil
	})
	return dir
}

func testCmd() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	cmd.SetContext(context.Background())
	return cmd, &buf
}

type failingSurvey struct{}

func (failingSurvey) ExportMetadata(context.Context, redcap.Project) (redcap.Metadata, error) {
	return nil, &redcap.APIError{Status: 403, Message: "You do not have permissions to use the API"}
}

func (failingSurvey) ExportRecords(context.Context, redcap.Project) ([]map[string]string, error) {
	return nil, &redcap.APIError{Status: 403, Message: "You do not have permissions to use the API"}
}

func TestClearCache(t *testing.T) {
	setup(t)

	db, err := openStorage()
	if err != nil {
		t.Fatal(err)
	}
	tbl, err := frame.NewTable(frame.TextColumn("record_id", "1", "2"))
	if err != nil {
		t.Fatal(err)
	}
	if err := storage.NewTableCache(db).Put("staffing", tbl); err != nil {
		t.Fatal(err)
	}
	db.Close()

	cacheList = true
	defer func() { cacheList = false }()

	cmd, out := testCmd()
	if err := clearCacheCmd.RunE(cmd, nil); err != nil {
		t.Fatalf("clear-cache failed: %v", err)
	}
	if !strings.Contains(out.String(), "staffing\t2 rows") {
		t.Errorf("expected listed entry, got %q", out.String())
	}
	if !strings.Contains(out.String(), "Removed 1 cached tables") {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestRuns_Empty(t *testing.T) {
	setup(t)
	cmd, out := testCmd()
	if err := runsCmd.RunE(cmd, nil); err != nil {
		t.Fatalf("runs failed: %v", err)
	}
	if strings.TrimSpace(out.String()) != "No runs yet" {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestBuild_RequiresREDCapConfig(t *testing.T) {
	setup(t)
	cmd, _ := testCmd()
	err := runBuild(cmd, nil)
	if err == nil || !strings.Contains(err.Error(), "REDCap not configured") {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestBuild_ExportFailureIsRecorded(t *testing.T) {
	setup(t)
	cfg.REDCap.APIURL = "https://redcap.example.org/api/"
	cfg.REDCap.StaffingToken = "staffing-token"
	cfg.REDCap.EnrollmentToken = "enrollment-token"

	orig := newSurveyClient
	newSurveyClient = func(*config.Config, *zap.Logger) redcap.Client { return failingSurvey{} }
	defer func() { newSurveyClient = orig }()

	cmd, _ := testCmd()
	if err := runBuild(cmd, nil); err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected export error, got %v", err)
	}

	cmd, out := testCmd()
	if err := runsCmd.RunE(cmd, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "manual") || !strings.Contains(out.String(), "error") {
		t.Errorf("expected failed manual run in history, got %q", out.String())
	}
}

func TestBuild_UnknownPublishDestination(t *testing.T) {
	setup(t)
	cfg.REDCap.APIURL = "https://redcap.example.org/api/"
	cfg.REDCap.StaffingToken = "staffing-token"
	cfg.REDCap.EnrollmentToken = "enrollment-token"
	cfg.Publish.Enabled = true
	cfg.Publish.Destination = "s3"

	cmd, _ := testCmd()
	if err := runBuild(cmd, nil); err == nil || !strings.Contains(err.Error(), "unknown publish destination") {
		t.Fatalf("expected destination error, got %v", err)
	}
}

func TestSchedule_NothingToSchedule(t *testing.T) {
	setup(t)
	cmd, _ := testCmd()
	if err := runSchedule(cmd, nil); err == nil || !strings.Contains(err.Error(), "nothing to schedule") {
		t.Fatalf("expected error, got %v", err)
	}
}

func TestSummary_InvalidFormat(t *testing.T) {
	setup(t)
	summaryFormat = "xml"
	defer func() { summaryFormat = "table" }()

	cmd, _ := testCmd()
	if err := runSummary(cmd, nil); err == nil || !strings.Contains(err.Error(), "invalid format") {
		t.Fatalf("expected format error, got %v", err)
	}
}

func TestRootCommand_LoadsConfigAndVerbosity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fluve.yaml")
	yaml := "paths:\n  raw_data: " + filepath.Join(dir, "raw") + "\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		cfg, logger, verbosity, configPath = nil, nil, 0, ""
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", path, "-vv", "runs"})
	if err := Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if cfg.Logging.Verbosity != 2 {
		t.Errorf("expected verbosity 2 from -vv, got %d", cfg.Logging.Verbosity)
	}
	if cfg.CachePath() != filepath.Join(dir, "raw", "fluve_cache.db") {
		t.Errorf("unexpected cache path %s", cfg.CachePath())
	}
	if !strings.Contains(out.String(), "No runs yet") {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Duplicate study IDs":                            "duplicate_study_ids",
		"Duplicate staffing shifts (shift_date + staff)": "duplicate_staffing_shifts_shift_date_staff",
		"  Negative days since onset ":                   "negative_days_since_onset",
	}
	for in, want := range tests {
		if got := slug(in); got != want {
			t.Errorf("slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPrintTable(t *testing.T) {
	n := frame.NewColumn("enrolled", frame.KindInt, 2)
	if err := n.Set(0, frame.Int(4)); err != nil {
		t.Fatal(err)
	}
	tbl, err := frame.NewTable(frame.TextColumn("clinic", "Pediatrics", "Total"), n)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := printTable(&out, tbl); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %q", out.String())
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[2]), "-") {
		t.Errorf("expected null rendered as '-', got %q", lines[2])
	}
}
