package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"fluve/internal/service"
)

func (s *Server) registerPipelineTools() {
	s.mcp.AddTool(mcp.NewTool("run_pipeline",
		mcp.WithDescription("Build the FluVE project: export both REDCap surveys, recode, join the lab results, compute indicators and run validation checks. Returns a run summary."),
	), s.handleRunPipeline)

	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List recent pipeline runs, newest first"),
		mcp.WithNumber("limit", mcp.Description("Maximum runs to return (default 20)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleListRuns)
}

func (s *Server) handleRunPipeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.pipeline.RunOnce(ctx, service.TriggerManual)
	if errors.Is(err, service.ErrAlreadyRunning) {
		return textResult("A pipeline run is already in progress; try again when it finishes."), nil
	}
	if err != nil {
		return nil, fmt.Errorf("run pipeline: %w", err)
	}
	return jsonResult(map[string]any{
		"runId":        p.RunID,
		"builtAt":      p.BuiltAt,
		"staffingRows": p.Staffing.Len(),
		"recordRows":   p.Records.Len(),
		"labRows":      p.LabRows,
		"failedChecks": p.Failures.Labels(),
	})
}

func (s *Server) handleListRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := s.pipeline.ListRuns(req.GetInt("limit", 20))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return jsonResult(runs)
}
