package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"fluve/internal/etl"
	"fluve/internal/frame"
	"fluve/internal/pipeline"
	"fluve/internal/service"
	"fluve/internal/storage"
	"fluve/internal/validate"
)

// ─────────────────────────────────────────────────────────────
// PipelineService unit tests
// ─────────────────────────────────────────────────────────────

func project(t *testing.T) *pipeline.Project {
	t.Helper()
	records, err := frame.NewTable(frame.TextColumn("study_id", "F001", "F002"))
	if err != nil {
		t.Fatal(err)
	}
	return &pipeline.Project{
		RunID:    "run-1",
		Staffing: frame.Empty(3),
		Records:  records,
		Failures: validate.Failures{"Duplicate study IDs": records},
	}
}

func runStore(t *testing.T) *storage.RunLogStore {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "fluve.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return storage.NewRunLogStore(db)
}

type recordingPublisher struct {
	target string
	rows   int
	mode   etl.SyncMode
}

func (p *recordingPublisher) Publish(_ context.Context, target string, t *frame.Table, mode etl.SyncMode) (int, error) {
	p.target, p.rows, p.mode = target, t.Len(), mode
	return t.Len(), nil
}

func TestPipelineService_RunOnceSuccess(t *testing.T) {
	emitter := &service.MockEmitter{}
	runs := runStore(t)
	pub := &recordingPublisher{}

	svc := service.NewPipelineService(func(context.Context) (*pipeline.Project, error) {
		return project(t), nil
	}, runs, emitter, zap.NewNop())
	svc.PublishTo(pub, "fluve_records", etl.SyncReplace)

	p, err := svc.RunOnce(context.Background(), service.TriggerManual)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if svc.Latest() != p {
		t.Error("expected latest project to be kept")
	}
	if pub.target != "fluve_records" || pub.rows != 2 || pub.mode != etl.SyncReplace {
		t.Errorf("unexpected publish: %+v", pub)
	}
	if names := emitter.Names(); len(names) != 1 || names[0] != service.EventPipelineCompleted {
		t.Errorf("unexpected events: %v", names)
	}

	logs, err := svc.ListRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 run log, got %d", len(logs))
	}
	l := logs[0]
	if l.ID != "run-1" || l.Status != "success" || l.RecordRows != 2 || l.StaffingRows != 3 {
		t.Errorf("unexpected run log: %+v", l)
	}
	if len(l.FailedChecks) != 1 || l.FailedChecks[0] != "Duplicate study IDs" {
		t.Errorf("unexpected failed checks: %v", l.FailedChecks)
	}
}

func TestPipelineService_RunOnceFailure(t *testing.T) {
	emitter := &service.MockEmitter{}
	runs := runStore(t)
	boom := errors.New("redcap api 403: bad token")

	svc := service.NewPipelineService(func(context.Context) (*pipeline.Project, error) {
		return nil, boom
	}, runs, emitter, zap.NewNop())

	if _, err := svc.RunOnce(context.Background(), service.TriggerCron); !errors.Is(err, boom) {
		t.Fatalf("expected build error, got %v", err)
	}
	if svc.Latest() != nil {
		t.Error("failed run must not replace the latest project")
	}
	if names := emitter.Names(); len(names) != 1 || names[0] != service.EventPipelineFailed {
		t.Errorf("unexpected events: %v", names)
	}
	logs, _ := svc.ListRuns(10)
	if len(logs) != 1 || logs[0].Status != "error" || logs[0].Trigger != service.TriggerCron {
		t.Errorf("unexpected run logs: %+v", logs)
	}
}

func TestPipelineService_RejectsOverlappingRuns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	svc := service.NewPipelineService(func(context.Context) (*pipeline.Project, error) {
		close(started)
		<-release
		return project(t), nil
	}, nil, &service.MockEmitter{}, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := svc.RunOnce(context.Background(), service.TriggerManual)
		errCh <- err
	}()
	<-started

	if !svc.Running() {
		t.Error("expected service to report running")
	}
	if _, err := svc.RunOnce(context.Background(), service.TriggerManual); !errors.Is(err, service.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("first run: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	svc.WaitRunning(ctx)
	if svc.Running() {
		t.Error("expected no run after WaitRunning")
	}
}

func TestPipelineService_InvalidCron(t *testing.T) {
	svc := service.NewPipelineService(nil, nil, nil, nil)
	defer svc.Stop()
	if err := svc.StartTriggers(context.Background(), "every tuesday", ""); err == nil {
		t.Fatal("expected invalid cron expression error")
	}
}

func TestPipelineService_Stop_Idempotent(t *testing.T) {
	// Stop with nothing started should not panic
	svc := service.NewPipelineService(nil, nil, nil, nil)
	svc.Stop()
	svc.Stop()
}

func TestPipelineService_FileWatchTriggersRun(t *testing.T) {
	dir := t.TempDir()
	lab := filepath.Join(dir, "lab_results.xlsx")
	if err := os.WriteFile(lab, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	ran := make(chan struct{}, 4)
	svc := service.NewPipelineService(func(context.Context) (*pipeline.Project, error) {
		ran <- struct{}{}
		return project(t), nil
	}, nil, &service.MockEmitter{}, zap.NewNop())
	defer svc.Stop()

	if err := svc.StartTriggers(context.Background(), "", lab); err != nil {
		t.Fatalf("StartTriggers: %v", err)
	}
	// unrelated files in the same folder are ignored
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(lab, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("file change did not trigger a run")
	}
}
