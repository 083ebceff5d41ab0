package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"fluve/internal/pipeline"
	"fluve/internal/service"
)

// buildCmd runs the pipeline once
var buildCmd = &cobra.Command{
	Use:   "build-project",
	Short: "Build the project once and report validation failures",
	Long: `Exports both surveys (or reads them from the cache), joins the lab
results, computes indicators and runs every data-quality check. When
publishing is enabled the record table is written to its destination.`,
	RunE: runBuild,
}

func runBuild(cmd *cobra.Command, args []string) error {
	rt, err := openEnv()
	if err != nil {
		return err
	}
	defer rt.close()

	p, err := rt.pipeline.RunOnce(cmd.Context(), service.TriggerManual)
	if err != nil {
		return err
	}
	printProject(cmd.OutOrStdout(), p)
	return nil
}

// buildProject runs the pipeline for commands that work on its output.
func buildProject(ctx context.Context) (*pipeline.Project, *env, error) {
	rt, err := openEnv()
	if err != nil {
		return nil, nil, err
	}
	p, err := rt.pipeline.RunOnce(ctx, service.TriggerManual)
	if err != nil {
		rt.close()
		return nil, nil, err
	}
	return p, rt, nil
}

func printProject(w io.Writer, p *pipeline.Project) {
	fmt.Fprintf(w, "Run %s\n", p.RunID)
	fmt.Fprintf(w, "  staffing rows: %d\n", p.Staffing.Len())
	fmt.Fprintf(w, "  record rows:   %d\n", p.Records.Len())
	fmt.Fprintf(w, "  lab rows:      %d\n", p.LabRows)

	labels := p.Failures.Labels()
	if len(labels) == 0 {
		fmt.Fprintln(w, "All checks passed")
		return
	}
	fmt.Fprintf(w, "%d checks failed:\n", len(labels))
	for _, label := range labels {
		fmt.Fprintf(w, "  %-40s %d rows\n", label, p.Failures[label].Len())
	}
}

// slug turns a check label into a file name.
func slug(label string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			underscore = false
		case !underscore && b.Len() > 0:
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
