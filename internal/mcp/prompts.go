package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("weekly_review",
		mcp.WithPromptDescription("Walk through the weekly data-quality review of the FluVE project"),
		mcp.WithArgument("groupBy",
			mcp.ArgumentDescription("Column for the enrollment table (e.g. clinic, team, agegrp)"),
		),
	), s.handleWeeklyReviewPrompt)
}

func (s *Server) handleWeeklyReviewPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	group := req.Params.Arguments["groupBy"]
	if group == "" {
		group = "clinic"
	}
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Weekly FluVE review grouped by %s", group),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Review this week's FluVE data. Follow these steps:

1. Use run_pipeline to build a fresh project and note the run ID
2. Use list_validation_failures to see which checks failed
3. For each failed check, use get_validation_failure and summarize the study IDs a coordinator must fix
4. Use enrollment_summary with groupBy "%s" and report screening, eligibility and enrollment rates
5. Compare with the previous run from list_runs and call out anything that got worse

Write the result as a short report for the study coordinators.`, group),
				},
			},
		},
	}, nil
}
