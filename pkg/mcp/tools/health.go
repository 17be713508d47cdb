package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
)

// SourceLister describes configured sources without credentials.
type SourceLister interface {
	Describe() []models.SourceInfo
}

type healthResult struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Sources int    `json:"sources"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool returns the server status, version and configured source count.
func RegisterHealthTool(s *server.MCPServer, version string, sources SourceLister) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status and version"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := healthResult{Status: "ok", Version: version}
		if sources != nil {
			res.Sources = len(sources.Describe())
		}
		return jsonResult(res)
	})
}
