package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"fluve/internal/etl"
)

func (s *Server) registerSourceTools() {
	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List the source types the lab results can be read from, with their configuration fields"),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleListSources)

	s.mcp.AddTool(mcp.NewTool("preview_source",
		mcp.WithDescription("Read a sample of rows from a source without running the pipeline. Defaults to the configured lab results source."),
		mcp.WithString("sourceType", mcp.Description("Source type (use list_sources); defaults to the lab results source")),
		mcp.WithString("sourceConfigJSON", mcp.Description("Source configuration as JSON; required with sourceType")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows to return (default 20)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handlePreviewSource)
}

func (s *Server) handleListSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(etl.ListSources())
}

func (s *Server) handlePreviewSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceType := req.GetString("sourceType", "")
	cfg := s.labConfig
	if sourceType == "" {
		sourceType = s.labSource
	} else {
		cfg = etl.SourceConfig{}
		raw := req.GetString("sourceConfigJSON", "")
		if raw == "" {
			return nil, fmt.Errorf("sourceConfigJSON is required with sourceType")
		}
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return nil, fmt.Errorf("parse sourceConfig: %w", err)
		}
	}
	if sourceType == "" {
		return nil, fmt.Errorf("sourceType is required (no lab source configured)")
	}

	limit := req.GetInt("limit", 20)
	if limit <= 0 {
		limit = 20
	}
	records, schema, err := s.engine.Preview(ctx, sourceType, cfg, limit)
	if err != nil {
		return nil, fmt.Errorf("preview source: %w", err)
	}
	rows := make([]map[string]any, len(records))
	for i, r := range records {
		rows[i] = r.Data
	}
	return jsonResult(map[string]any{
		"sourceType": sourceType,
		"schema":     schema,
		"rows":       rows,
	})
}

func (s *Server) registerPublishTools() {
	s.mcp.AddTool(mcp.NewTool("query_published",
		mcp.WithDescription("Run a read-only SQL query (or a MongoDB JSON query) against the analyst database the records are published to. Write statements are refused."),
		mcp.WithString("query", mcp.Description("Query to execute"), mcp.Required()),
		mcp.WithNumber("fetchSize", mcp.Description("Number of rows to fetch (default 100)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	), s.handleQueryPublished)
}

func (s *Server) handleQueryPublished(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if isWriteQuery(query) {
		return textResult(fmt.Sprintf("Refused write query: %s", truncate(query, 100))), nil
	}
	page, err := s.publish.Query(ctx, query, req.GetInt("fetchSize", 100))
	if err != nil {
		return nil, err
	}
	return jsonResult(page)
}
