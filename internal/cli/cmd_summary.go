package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fluve/internal/frame"
	"fluve/internal/summary"
)

var (
	summaryGroup     string
	summaryNoMargins bool
	summaryFormat    string
)

// summaryCmd prints the enrollment table
var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print screening and enrollment counts grouped by a column",
	Example: `  fluve summary --group clinic
  fluve summary --group agegrp --format csv > enrollment.csv`,
	RunE: runSummary,
}

func init() {
	summaryCmd.Flags().StringVar(&summaryGroup, "group", "clinic", "record column to group by")
	summaryCmd.Flags().BoolVar(&summaryNoMargins, "no-margins", false, "omit the Total row")
	summaryCmd.Flags().StringVar(&summaryFormat, "format", "table", "output format: table or csv")
}

func runSummary(cmd *cobra.Command, args []string) error {
	if summaryFormat != "table" && summaryFormat != "csv" {
		return fmt.Errorf("invalid format: %s (valid: table, csv)", summaryFormat)
	}
	p, rt, err := buildProject(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.close()

	t, err := summary.Enrollment(p.Records, summaryGroup, !summaryNoMargins)
	if err != nil {
		return err
	}
	if summaryFormat == "csv" {
		return frame.WriteCSV(cmd.OutOrStdout(), t)
	}
	return printTable(cmd.OutOrStdout(), t)
}

// printTable renders t as aligned columns; nulls print as "-".
func printTable(w io.Writer, t *frame.Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, strings.Join(t.Names(), "\t")+"\t")
	cols := t.Columns()
	for i := 0; i < t.Len(); i++ {
		cells := make([]string, len(cols))
		for j, c := range cols {
			if v := c.At(i); v.IsNull() {
				cells[j] = "-"
			} else {
				cells[j] = v.String()
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
	}
	return tw.Flush()
}
