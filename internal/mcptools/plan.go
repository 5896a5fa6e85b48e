package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tktechnologies/meeting-agent/internal/compose"
	"github.com/tktechnologies/meeting-agent/internal/domain"
	"github.com/tktechnologies/meeting-agent/internal/engine"
)

// PlanTool handles the plan_agenda MCP tool.
type PlanTool struct {
	engine engine.Engine
}

func NewPlanTool(e engine.Engine) *PlanTool {
	return &PlanTool{engine: e}
}

func (t *PlanTool) Definition() mcp.Tool {
	return mcp.NewTool("plan_agenda",
		mcp.WithDescription(
			"Plan a meeting agenda grounded in the organization's facts. Every bullet carries a "+
				"justification taken from recorded evidence.",
		),
		mcp.WithString("org_id",
			mcp.Description("Organization id. Defaults to the configured organization."),
		),
		mcp.WithString("subject",
			mcp.Description("Meeting subject, e.g. 'billing migration'"),
		),
		mcp.WithString("prompt",
			mcp.Description("Free-text request such as 'agenda for a 45 minute sync about the BYD rollout'. Duration and language are parsed from it."),
		),
		mcp.WithNumber("duration_minutes",
			mcp.Description("Meeting length in minutes"),
		),
		mcp.WithString("language",
			mcp.Enum("en-US", "pt-BR"),
		),
		mcp.WithString("macro_mode",
			mcp.Description("auto plans without workstreams when none exist, strict refuses, off ignores workstreams"),
			mcp.Enum(engine.MacroAuto, engine.MacroStrict, engine.MacroOff),
		),
		mcp.WithBoolean("persist",
			mcp.Description("Store the proposal (default: false)"),
		),
		mcp.WithString("format",
			mcp.DefaultString("markdown"),
			mcp.Enum("markdown", "json"),
		),
	)
}

func (t *PlanTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subject := req.GetString("subject", "")
	prompt := req.GetString("prompt", "")
	if strings.TrimSpace(subject) == "" && strings.TrimSpace(prompt) == "" {
		return mcp.NewToolResultError("'subject' or 'prompt' is required"), nil
	}
	p, err := t.engine.PlanAgenda(ctx, engine.PlanOptions{
		OrgID:           req.GetString("org_id", ""),
		Subject:         subject,
		Prompt:          prompt,
		DurationMinutes: intArg(req, "duration_minutes", 0),
		Language:        req.GetString("language", ""),
		MacroMode:       req.GetString("macro_mode", ""),
		ActorID:         actorID,
		Persist:         boolArg(req, "persist", false),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("plan failed: %v", err)), nil
	}
	if req.GetString("format", "markdown") == "json" {
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(data)), nil
	}
	return mcp.NewToolResultText(renderProposal(p)), nil
}

func renderProposal(p domain.AgendaProposal) string {
	if p.Status == domain.ProposalUnmetPrecondition {
		return fmt.Sprintf("No agenda planned: %s (nudge: %s). Create a workstream or retry with macro_mode=auto.", p.Reason, p.Metadata.Nudge)
	}
	var b strings.Builder
	b.WriteString(compose.Markdown(p.Agenda, p.Metadata.Language))
	fmt.Fprintf(&b, "\nstatus: %s | choice: %s | facts: %d", p.Status, p.Choice, len(p.SupportingFactIDs))
	if p.Metadata.Nudge != "" {
		fmt.Fprintf(&b, " | nudge: %s", p.Metadata.Nudge)
	}
	if p.ID != "" {
		fmt.Fprintf(&b, " | id: %s", p.ID)
	}
	b.WriteString("\n")
	return b.String()
}
