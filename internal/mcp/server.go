package mcpserver

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"fluve/internal/etl"
	"fluve/internal/frame"
	"fluve/internal/pipeline"
	"fluve/internal/service"
)

// Server is the MCP server for the FluVE pipeline.
// It lets an agent run the pipeline and read the latest project: records,
// validation failures and enrollment summaries.
type Server struct {
	mcp *server.MCPServer
	log *zap.Logger

	pipeline *service.PipelineService
	publish  *service.PublishService
	engine   *etl.Engine

	labSource string
	labConfig etl.SourceConfig
}

// Deps holds everything the MCP server needs from the CLI layer.
type Deps struct {
	Pipeline *service.PipelineService
	Publish  *service.PublishService // nil when publishing to CSV
	Engine   *etl.Engine
	Log      *zap.Logger

	// Default target of preview_source
	LabSource string
	LabConfig etl.SourceConfig
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		log:       log,
		pipeline:  deps.Pipeline,
		publish:   deps.Publish,
		engine:    deps.Engine,
		labSource: deps.LabSource,
		labConfig: deps.LabConfig,
	}
	if s.engine == nil {
		s.engine = etl.NewEngine(log)
	}

	s.mcp = server.NewMCPServer(
		"fluve-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerPipelineTools()
	s.registerProjectTools()
	s.registerSourceTools()
	if s.publish != nil {
		s.registerPublishTools()
	}
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.log.Info("starting mcp stdio server")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// latestProject returns the last built project, or an error telling the
// agent to run the pipeline first.
func (s *Server) latestProject() (*pipeline.Project, error) {
	p := s.pipeline.Latest()
	if p == nil {
		return nil, fmt.Errorf("no project built yet (use run_pipeline first)")
	}
	return p, nil
}

// pickTable resolves a table argument: "records" (default) or "staffing".
func pickTable(p *pipeline.Project, name string) (*frame.Table, error) {
	switch name {
	case "", "records":
		return p.Records, nil
	case "staffing":
		return p.Staffing, nil
	}
	return nil, fmt.Errorf("unknown table %q (want records or staffing)", name)
}
