package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"fluve/internal/summary"
)

const defaultPreviewRows = 50

func (s *Server) registerProjectTools() {
	s.mcp.AddTool(mcp.NewTool("list_validation_failures",
		mcp.WithDescription("List the validation checks that failed in the latest project, with the number of offending rows for each"),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleListValidationFailures)

	s.mcp.AddTool(mcp.NewTool("get_validation_failure",
		mcp.WithDescription("Return the offending rows of one failed validation check"),
		mcp.WithString("label", mcp.Description("Check label as returned by list_validation_failures"), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum rows to return (default 50)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleGetValidationFailure)

	s.mcp.AddTool(mcp.NewTool("preview_records",
		mcp.WithDescription("Preview rows of the latest project, with its column schema"),
		mcp.WithString("table", mcp.Description("records (default) or staffing")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows to return (default 50)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handlePreviewRecords)

	s.mcp.AddTool(mcp.NewTool("enrollment_summary",
		mcp.WithDescription("Screening and enrollment counts and rates, grouped by a record column such as clinic or agegrp"),
		mcp.WithString("groupBy", mcp.Description("Column to group by (default clinic)")),
		mcp.WithBoolean("margins", mcp.Description("Append a Total row (default true)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleEnrollmentSummary)
}

type failureSummary struct {
	Label string `json:"label"`
	Rows  int    `json:"rows"`
}

func (s *Server) handleListValidationFailures(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.latestProject()
	if err != nil {
		return nil, err
	}
	out := make([]failureSummary, 0, len(p.Failures))
	for _, label := range p.Failures.Labels() {
		out = append(out, failureSummary{Label: label, Rows: p.Failures[label].Len()})
	}
	return jsonResult(out)
}

func (s *Server) handleGetValidationFailure(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	label := req.GetString("label", "")
	if label == "" {
		return nil, fmt.Errorf("label is required")
	}
	p, err := s.latestProject()
	if err != nil {
		return nil, err
	}
	rows, ok := p.Failures[label]
	if !ok {
		return textResult(fmt.Sprintf("Check %q did not fail in run %s", label, p.RunID)), nil
	}
	return jsonResult(map[string]any{
		"label": label,
		"total": rows.Len(),
		"rows":  rows.Records(req.GetInt("limit", defaultPreviewRows)),
	})
}

func (s *Server) handlePreviewRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.latestProject()
	if err != nil {
		return nil, err
	}
	t, err := pickTable(p, req.GetString("table", ""))
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{
		"total":  t.Len(),
		"schema": t.Describe(),
		"rows":   t.Records(req.GetInt("limit", defaultPreviewRows)),
	})
}

func (s *Server) handleEnrollmentSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.latestProject()
	if err != nil {
		return nil, err
	}
	group := req.GetString("groupBy", "clinic")
	t, err := summary.Enrollment(p.Records, group, req.GetBool("margins", true))
	if err != nil {
		return nil, fmt.Errorf("enrollment summary: %w", err)
	}
	return jsonResult(t.Records(0))
}
