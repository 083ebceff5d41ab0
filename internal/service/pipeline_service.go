package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"fluve/internal/etl"
	"fluve/internal/frame"
	"fluve/internal/pipeline"
	"fluve/internal/storage"
)

// ErrAlreadyRunning is returned when a run is requested while one is active.
var ErrAlreadyRunning = errors.New("pipeline is already running")

// Run triggers, as recorded in the run log.
const (
	TriggerManual = "manual"
	TriggerCron   = "schedule"
	TriggerFile   = "file_watch"
)

const (
	pipelineKey   = "pipeline"
	runTimeout    = 10 * time.Minute
	watchDebounce = 500 * time.Millisecond
)

// Builder produces one Project. It wraps pipeline.Build with the deps and
// study already bound.
type Builder func(ctx context.Context) (*pipeline.Project, error)

// RunLogger stores run history.
type RunLogger interface {
	Create(l *storage.RunLog) error
	List(limit int) ([]storage.RunLog, error)
}

// Publisher writes the final table somewhere analysts can reach it.
// *etl.Engine satisfies it once a Destination is set.
type Publisher interface {
	Publish(ctx context.Context, target string, t *frame.Table, mode etl.SyncMode) (int, error)
}

// ─────────────────────────────────────────────────────────────
// Pipeline Service: guarded runs and their triggers
// ─────────────────────────────────────────────────────────────

// PipelineService runs the pipeline on demand, on a cron schedule or when
// the lab-results file changes, and keeps the latest successful Project.
type PipelineService struct {
	build   Builder
	runs    RunLogger
	emitter EventEmitter
	log     *zap.Logger
	guard   runningGuard

	publisher    Publisher
	publishTable string
	publishMode  etl.SyncMode

	mu     sync.RWMutex
	latest *pipeline.Project

	// watcher / cron lifecycle
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewPipelineService creates a service. runs may be nil to skip history.
func NewPipelineService(build Builder, runs RunLogger, emitter EventEmitter, log *zap.Logger) *PipelineService {
	if log == nil {
		log = zap.NewNop()
	}
	if emitter == nil {
		emitter = LogEmitter{Log: log}
	}
	return &PipelineService{build: build, runs: runs, emitter: emitter, log: log}
}

// PublishTo writes the record table to table after every successful run.
func (s *PipelineService) PublishTo(p Publisher, table string, mode etl.SyncMode) {
	s.publisher = p
	s.publishTable = table
	s.publishMode = mode
}

// ── Run ────────────────────────────────────────────────────

// RunOnce builds the project synchronously. It fails with ErrAlreadyRunning
// when another run is in progress.
func (s *PipelineService) RunOnce(ctx context.Context, trigger string) (*pipeline.Project, error) {
	if !s.guard.TryLock(pipelineKey) {
		return nil, ErrAlreadyRunning
	}
	defer s.guard.Unlock(pipelineKey)

	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	runLog := &storage.RunLog{Trigger: trigger, StartedAt: time.Now().UTC()}
	project, err := s.build(runCtx)
	if err == nil && s.publisher != nil {
		_, err = s.publisher.Publish(runCtx, s.publishTable, project.Records, s.publishMode)
	}
	runLog.FinishedAt = time.Now().UTC()

	if err != nil {
		runLog.Status = "error"
		runLog.Error = err.Error()
	} else {
		runLog.ID = project.RunID
		runLog.Status = "success"
		runLog.StaffingRows = project.Staffing.Len()
		runLog.RecordRows = project.Records.Len()
		runLog.FailedChecks = project.Failures.Labels()
	}
	if s.runs != nil {
		if lerr := s.runs.Create(runLog); lerr != nil {
			s.log.Warn("failed to record run", zap.Error(lerr))
		}
	}

	if err != nil {
		s.log.Error("pipeline run failed", zap.String("trigger", trigger), zap.Error(err))
		s.emitter.Emit(ctx, EventPipelineFailed, map[string]string{"trigger": trigger, "error": err.Error()})
		return nil, err
	}

	s.mu.Lock()
	s.latest = project
	s.mu.Unlock()

	s.emitter.Emit(ctx, EventPipelineCompleted, map[string]any{
		"runId":        project.RunID,
		"trigger":      trigger,
		"records":      project.Records.Len(),
		"failedChecks": runLog.FailedChecks,
	})
	return project, nil
}

// Latest returns the most recent successful Project, or nil.
func (s *PipelineService) Latest() *pipeline.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Running reports whether a run is in progress.
func (s *PipelineService) Running() bool {
	return s.guard.Running(pipelineKey)
}

// ListRuns returns recent run history, newest first.
func (s *PipelineService) ListRuns(limit int) ([]storage.RunLog, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.List(limit)
}

// ── Triggers (cron + file_watch) ──────────────────────────

// StartTriggers replaces any running triggers. An empty cronExpr or
// watchPath disables that trigger.
func (s *PipelineService) StartTriggers(ctx context.Context, cronExpr, watchPath string) error {
	s.stopTriggers()

	if cronExpr != "" {
		c := cron.New()
		_, err := c.AddFunc(cronExpr, func() {
			s.log.Info("cron: running pipeline")
			s.runTriggered(ctx, TriggerCron)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
		}
		c.Start()
		s.cronSched = c
		s.log.Info("cron: scheduled pipeline", zap.String("spec", cronExpr))
	}

	if watchPath == "" {
		return nil
	}
	absPath, err := filepath.Abs(watchPath)
	if err != nil {
		return fmt.Errorf("watch %q: %w", watchPath, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: editors and Excel replace the file on save.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch dir %q: %w", filepath.Dir(absPath), err)
	}
	s.watcher = watcher

	watchCtx, cancel := context.WithCancel(ctx)
	s.watchCancel = cancel

	go func() {
		var timer *time.Timer
		for {
			select {
			case <-watchCtx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if p, _ := filepath.Abs(event.Name); p != absPath {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, func() {
					s.log.Info("watcher: lab results changed", zap.String("path", absPath))
					s.runTriggered(watchCtx, TriggerFile)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn("watcher: error", zap.Error(err))
			}
		}
	}()

	s.log.Info("watcher: watching lab results", zap.String("path", absPath))
	return nil
}

func (s *PipelineService) runTriggered(ctx context.Context, trigger string) {
	if _, err := s.RunOnce(ctx, trigger); errors.Is(err, ErrAlreadyRunning) {
		s.log.Info("skipping triggered run", zap.String("trigger", trigger), zap.Error(err))
	}
}

// WaitRunning blocks until the active run finishes or ctx is cancelled.
// Used for graceful shutdown.
func (s *PipelineService) WaitRunning(ctx context.Context) {
	s.guard.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *PipelineService) Stop() {
	s.stopTriggers()
}

func (s *PipelineService) stopTriggers() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
