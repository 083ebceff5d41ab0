package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fluve/internal/service"
)

var (
	scheduleCron string
	scheduleNow  bool
	scheduleLab  bool
)

// shutdownGrace bounds how long a stopping scheduler waits for a run.
const shutdownGrace = 30 * time.Second

// scheduleCmd keeps the pipeline running in the background
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Rebuild the project on a cron schedule and when the lab file changes",
	Example: `  fluve schedule --cron "0 6 * * 1-5"
  fluve schedule --watch-lab --now`,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "", "cron expression (default: schedule.cron)")
	scheduleCmd.Flags().BoolVar(&scheduleLab, "watch-lab", false, "rebuild when the lab results file changes (default: schedule.watch_lab)")
	scheduleCmd.Flags().BoolVar(&scheduleNow, "now", false, "build once immediately")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cronExpr := cfg.Schedule.Cron
	if scheduleCron != "" {
		cronExpr = scheduleCron
	}
	var watchPath string
	if scheduleLab || cfg.Schedule.WatchLab {
		watchPath = cfg.LabPath()
	}
	if cronExpr == "" && watchPath == "" {
		return errors.New("nothing to schedule (set --cron or --watch-lab)")
	}

	rt, err := openEnv()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rt.pipeline.StartTriggers(ctx, cronExpr, watchPath); err != nil {
		return err
	}
	if scheduleNow {
		if _, err := rt.pipeline.RunOnce(ctx, service.TriggerManual); err != nil {
			logger.Error("initial build failed", zap.Error(err))
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Scheduler running; press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info("shutting down scheduler")
	rt.pipeline.Stop()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer waitCancel()
	rt.pipeline.WaitRunning(waitCtx)
	return nil
}
