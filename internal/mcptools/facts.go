package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tktechnologies/meeting-agent/internal/compose"
	"github.com/tktechnologies/meeting-agent/internal/domain"
	"github.com/tktechnologies/meeting-agent/internal/engine"
)

// SearchFactsTool handles the search_facts MCP tool.
type SearchFactsTool struct {
	engine engine.Engine
}

func NewSearchFactsTool(e engine.Engine) *SearchFactsTool {
	return &SearchFactsTool{engine: e}
}

func (t *SearchFactsTool) Definition() mcp.Tool {
	return mcp.NewTool("search_facts",
		mcp.WithDescription("Search recorded facts (decisions, risks, action items, status updates, goals) by keyword."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Keywords to search for"),
		),
		mcp.WithString("org_id",
			mcp.Description("Organization id. Defaults to the configured organization."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 10, max: 50)"),
		),
	)
}

func (t *SearchFactsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	limit := intArg(req, "limit", 10)
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	facts, err := t.engine.Repo.SearchFacts(ctx, orgArg(req, t.engine), query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(facts) == 0 {
		return mcp.NewToolResultText("No facts found matching your query."), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d facts:\n\n", len(facts))
	for i, f := range facts {
		fmt.Fprintf(&b, "[%d] %s (%s, %s)\n    %s\n", i+1, f.ID, f.Type, f.Status, compose.Truncate(f.Payload.Text, 300))
		if q := f.FirstQuote(); q != "" {
			fmt.Fprintf(&b, "    evidence: %s\n", compose.Truncate(q, 200))
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

// AddFactTool handles the add_fact MCP tool.
type AddFactTool struct {
	engine engine.Engine
}

func NewAddFactTool(e engine.Engine) *AddFactTool {
	return &AddFactTool{engine: e}
}

func (t *AddFactTool) Definition() mcp.Tool {
	return mcp.NewTool("add_fact",
		mcp.WithDescription("Record a fact so later agendas can cite it. Quote the source in 'evidence' whenever possible."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The fact itself, e.g. 'Approve the Q3 hiring plan'"),
		),
		mcp.WithString("type",
			mcp.DefaultString(string(domain.FactOther)),
			mcp.Enum("decision", "risk", "action_item", "status", "goal", "other"),
		),
		mcp.WithString("status",
			mcp.DefaultString(string(domain.StatusProposed)),
			mcp.Enum("draft", "proposed", "published", "validated"),
		),
		mcp.WithString("evidence",
			mcp.Description("Verbatim quote supporting the fact"),
		),
		mcp.WithString("owner"),
		mcp.WithString("due_at",
			mcp.Description("Due date, RFC 3339 or YYYY-MM-DD"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tags"),
		),
		mcp.WithString("workstream_id",
			mcp.Description("Link the fact to this workstream"),
		),
		mcp.WithString("org_id",
			mcp.Description("Organization id. Defaults to the configured organization."),
		),
	)
}

func (t *AddFactTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}
	var evidence []domain.Evidence
	if q := strings.TrimSpace(req.GetString("evidence", "")); q != "" {
		evidence = append(evidence, domain.Evidence{Quote: q})
	}
	f, err := t.engine.AddFact(ctx, engine.FactCreateOptions{
		OrgID:        orgArg(req, t.engine),
		Type:         req.GetString("type", ""),
		Status:       req.GetString("status", ""),
		Text:         text,
		Owner:        req.GetString("owner", ""),
		Tags:         csvArg(req, "tags"),
		Evidence:     evidence,
		DueAt:        req.GetString("due_at", ""),
		WorkstreamID: req.GetString("workstream_id", ""),
		ActorID:      actorID,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("add fact failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Fact recorded: %s (%s, %s)", f.ID, f.Type, f.Status)), nil
}
