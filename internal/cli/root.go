package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fluve/internal/config"
	"fluve/internal/logging"
)

var (
	// Global flags
	configPath string
	verbosity  int

	// Set in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "fluve",
	Short: "FluVE survey pipeline",
	Long: `fluve builds the FluVE influenza vaccine effectiveness project.

It exports the staffing and enrollment surveys from REDCap, recodes them,
joins the lab results, computes indicators and runs the data-quality checks.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbosity > 0 {
			cfg.Logging.Verbosity = verbosity
		}
		logger, err = logging.New(cfg.Logging.Verbosity, cfg.Logging.Mode)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "fluve.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "verbosity (-v info, -vv debug)")

	rootCmd.AddCommand(buildCmd, summaryCmd, exportCmd, scheduleCmd, serveMCPCmd, runsCmd, clearCacheCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}
