package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	runsURI          = "fluve://runs"
	failurePrefixURI = "fluve://failures/"
)

func (s *Server) registerResources() {
	// ── fluve://runs ───────────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		runsURI,
		"Pipeline Runs",
		mcp.WithMIMEType("application/json"),
	), s.handleRunsResource)

	// ── fluve://failures/{label} ───────────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			failurePrefixURI+"{label}",
			"Rows of a Failed Validation Check",
		),
		s.handleFailureResource,
	)
}

func (s *Server) handleRunsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	runs, err := s.pipeline.ListRuns(20)
	if err != nil {
		return nil, err
	}
	data, _ := json.MarshalIndent(runs, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      runsURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleFailureResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	label := labelFromURI(uri)
	if label == "" {
		return nil, fmt.Errorf("could not extract label from URI: %s", uri)
	}
	p, err := s.latestProject()
	if err != nil {
		return nil, err
	}
	rows, ok := p.Failures[label]
	if !ok {
		return nil, fmt.Errorf("check %q did not fail in run %s", label, p.RunID)
	}
	data, _ := json.MarshalIndent(rows.Records(0), "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// labelFromURI extracts the check label from "fluve://failures/{label}".
// Labels contain spaces, so clients may send them percent- or plus-encoded.
func labelFromURI(uri string) string {
	label, ok := strings.CutPrefix(uri, failurePrefixURI)
	if !ok {
		return ""
	}
	label = strings.ReplaceAll(label, "+", " ")
	return strings.ReplaceAll(label, "%20", " ")
}
