// Package mcptools exposes the agenda engine as MCP tools.
//
// Every tool is a struct holding the engine, with Definition returning the
// mcp.Tool schema and Handle processing a call. Domain failures come back as
// tool errors so the calling model can correct its arguments.
package mcptools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tktechnologies/meeting-agent/internal/engine"
)

// Version is reported in the MCP handshake.
var Version = "dev"

const actorID = "mcp"

// New creates the MCP server with every agenda tool registered.
func New(e engine.Engine) *server.MCPServer {
	s := server.NewMCPServer(
		"meeting-agent",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	for _, t := range Tools(e) {
		s.AddTool(t.Definition(), t.Handle)
	}
	return s
}

// Tool is the shape shared by every handler in this package.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

func Tools(e engine.Engine) []Tool {
	return []Tool{
		NewPlanTool(e),
		NewWorkstreamsTool(e),
		NewSearchFactsTool(e),
		NewAddFactTool(e),
	}
}

const instructions = `Meeting agent: plans evidence-backed meeting agendas from an organization's facts and workstreams.
Call plan_agenda with a subject or a free-text prompt. Use list_workstreams and search_facts to inspect context,
and add_fact to record decisions, risks or action items before planning.`

// intArg extracts an integer argument, returning def when the key is missing
// or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, def int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return def
	}
	return int(v)
}

func boolArg(req mcp.CallToolRequest, key string, def bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return def
	}
	return v
}

func csvArg(req mcp.CallToolRequest, key string) []string {
	var out []string
	for _, part := range strings.Split(req.GetString(key, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
