package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"fluve/internal/storage"
)

var (
	runsLimit int
	cacheList bool
)

// runsCmd lists pipeline history
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStorage()
		if err != nil {
			return err
		}
		defer db.Close()

		logs, err := storage.NewRunLogStore(db).List(runsLimit)
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs yet")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STARTED\tTRIGGER\tSTATUS\tRECORDS\tFAILED CHECKS\tERROR")
		for _, l := range logs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
				l.StartedAt.Local().Format(time.DateTime), l.Trigger, l.Status, l.RecordRows, len(l.FailedChecks), l.Error)
		}
		return tw.Flush()
	},
}

// clearCacheCmd empties the survey cache
var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Drop cached survey exports so the next build fetches from REDCap",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStorage()
		if err != nil {
			return err
		}
		defer db.Close()

		cache := storage.NewTableCache(db)
		if cacheList {
			entries, err := cache.List()
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d rows\t%s\n", e.Name, e.Rows, e.FetchedAt.Local().Format(time.DateTime))
			}
		}
		n, err := cache.Clear()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached tables\n", n)
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "number of runs to show")
	clearCacheCmd.Flags().BoolVar(&cacheList, "list", false, "print the cached tables before clearing")
}
