package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fluve/internal/etl"
)

var exportDir string

// exportCmd writes the project tables as CSV
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Build the project and write its tables as CSV files",
	Long: `Writes records.csv, staffing.csv and one failures_<check>.csv per
failed validation check to the processed-data folder (or --dir).`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "output folder (default: paths.processed_data)")
}

func runExport(cmd *cobra.Command, args []string) error {
	p, rt, err := buildProject(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.close()

	dir := exportDir
	if dir == "" {
		dir = cfg.Paths.ProcessedData
	}
	dest := &etl.CSVDirWriter{Dir: dir}
	ctx := cmd.Context()

	if _, err := dest.Write(ctx, "records", p.Records, etl.SyncReplace); err != nil {
		return err
	}
	if _, err := dest.Write(ctx, "staffing", p.Staffing, etl.SyncReplace); err != nil {
		return err
	}
	for _, label := range p.Failures.Labels() {
		if _, err := dest.Write(ctx, "failures_"+slug(label), p.Failures[label], etl.SyncReplace); err != nil {
			return err
		}
	}
	logger.Info("exported project", zap.String("dir", dir), zap.Int("failures", len(p.Failures)))
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d tables to %s\n", 2+len(p.Failures), dir)
	return nil
}
