package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tktechnologies/meeting-agent/internal/engine"
	"github.com/tktechnologies/meeting-agent/internal/store"
)

// WorkstreamsTool handles the list_workstreams MCP tool.
type WorkstreamsTool struct {
	engine engine.Engine
}

func NewWorkstreamsTool(e engine.Engine) *WorkstreamsTool {
	return &WorkstreamsTool{engine: e}
}

func (t *WorkstreamsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_workstreams",
		mcp.WithDescription("List an organization's workstreams with health, priority and linked fact counts."),
		mcp.WithString("org_id",
			mcp.Description("Organization id. Defaults to the configured organization."),
		),
		mcp.WithString("status",
			mcp.DefaultString("active"),
			mcp.Enum("active", "paused", "archived", "all"),
		),
		mcp.WithString("query",
			mcp.Description("Filter by title or description text"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 20)"),
		),
	)
}

func (t *WorkstreamsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	org := orgArg(req, t.engine)
	status := req.GetString("status", "active")
	if status == "all" {
		status = ""
	}
	items, err := t.engine.Repo.ListWorkstreams(ctx, org, store.WorkstreamFilters{
		Status: status,
		Query:  req.GetString("query", ""),
		Limit:  intArg(req, "limit", 20),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No workstreams found for %s.", org)), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d workstreams:\n\n", len(items))
	for i, w := range items {
		fmt.Fprintf(&b, "[%d] %s (%s)\n    status: %s | health: %s | priority: %d | facts: %d\n",
			i+1, w.Title, w.ID, w.Status, w.Health, w.Priority, w.FactCount)
		if w.Owner != "" {
			fmt.Fprintf(&b, "    owner: %s\n", w.Owner)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func orgArg(req mcp.CallToolRequest, e engine.Engine) string {
	if org := strings.TrimSpace(req.GetString("org_id", "")); org != "" {
		return org
	}
	if e.Config != nil {
		return e.Config.Org.DefaultID
	}
	return ""
}
