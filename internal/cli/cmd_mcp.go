package cli

import (
	"github.com/spf13/cobra"

	"fluve/internal/fluve"
	mcpserver "fluve/internal/mcp"
)

// serveMCPCmd exposes the pipeline to agents over stdio
var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the pipeline as an MCP server on stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openEnv()
		if err != nil {
			return err
		}
		defer rt.close()

		lab := fluve.Lab(cfg)
		srv := mcpserver.New(mcpserver.Deps{
			Pipeline:  rt.pipeline,
			Publish:   rt.publish,
			Engine:    rt.engine,
			Log:       logger,
			LabSource: lab.Source,
			LabConfig: lab.Config,
		})
		return srv.ServeStdio()
	},
}
