package mcptools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tktechnologies/meeting-agent/internal/config"
	"github.com/tktechnologies/meeting-agent/internal/db"
	"github.com/tktechnologies/meeting-agent/internal/domain"
	"github.com/tktechnologies/meeting-agent/internal/engine"
	"github.com/tktechnologies/meeting-agent/internal/migrate"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

func newTestEngine(t *testing.T) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Org.DefaultID = "acme"
	return engine.New(conn, cfg)
}

func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func mustNotError(t *testing.T, r *mcp.CallToolResult, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r == nil {
		t.Fatal("nil result")
	}
	if r.IsError {
		t.Fatalf("tool error: %s", resultText(r))
	}
}

// ─── Registration ────────────────────────────────────────────────────────────

func TestToolNamesAreUnique(t *testing.T) {
	e := newTestEngine(t)
	seen := map[string]bool{}
	for _, tool := range Tools(e) {
		name := tool.Definition().Name
		if seen[name] {
			t.Fatalf("duplicate tool %s", name)
		}
		seen[name] = true
	}
	for _, want := range []string{"plan_agenda", "list_workstreams", "search_facts", "add_fact"} {
		if !seen[want] {
			t.Errorf("missing tool %s", want)
		}
	}
	if New(e) == nil {
		t.Fatal("nil server")
	}
}

func TestSearchFactsRequiresQuery(t *testing.T) {
	tool := NewSearchFactsTool(newTestEngine(t))
	def := tool.Definition()
	found := false
	for _, r := range def.InputSchema.Required {
		if r == "query" {
			found = true
		}
	}
	if !found {
		t.Error("'query' should be required")
	}
	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for missing query")
	}
}

// ─── Facts and workstreams ───────────────────────────────────────────────────

func TestAddThenSearchFacts(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	result, err := NewAddFactTool(e).Handle(ctx, makeReq(map[string]interface{}{
		"text":     "Renew the vendor contract before June",
		"type":     "action_item",
		"evidence": "Legal flagged the vendor contract renewal",
		"tags":     "legal, vendor",
		"owner":    "ana",
	}))
	mustNotError(t, result, err)
	if !strings.Contains(resultText(result), "Fact recorded") {
		t.Fatalf("unexpected add result: %s", resultText(result))
	}

	result, err = NewSearchFactsTool(e).Handle(ctx, makeReq(map[string]interface{}{"query": "vendor"}))
	mustNotError(t, result, err)
	text := resultText(result)
	if !strings.Contains(text, "Found 1 facts") || !strings.Contains(text, "evidence: Legal flagged") {
		t.Fatalf("unexpected search result: %s", text)
	}
}

func TestAddFactRejectsBadType(t *testing.T) {
	result, err := NewAddFactTool(newTestEngine(t)).Handle(context.Background(), makeReq(map[string]interface{}{
		"text": "something",
		"type": "rumour",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError || !strings.Contains(resultText(result), "invalid fact type") {
		t.Fatalf("expected invalid type error, got %s", resultText(result))
	}
}

func TestListWorkstreams(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	tool := NewWorkstreamsTool(e)

	result, err := tool.Handle(ctx, makeReq(map[string]interface{}{}))
	mustNotError(t, result, err)
	if !strings.Contains(resultText(result), "No workstreams found for acme") {
		t.Fatalf("unexpected empty result: %s", resultText(result))
	}

	if _, err := e.CreateWorkstream(ctx, engine.WorkstreamCreateOptions{OrgID: "acme", Title: "Billing", Owner: "ana", Priority: 2}); err != nil {
		t.Fatalf("create workstream: %v", err)
	}
	result, err = tool.Handle(ctx, makeReq(map[string]interface{}{"status": "all"}))
	mustNotError(t, result, err)
	text := resultText(result)
	if !strings.Contains(text, "Billing") || !strings.Contains(text, "priority: 2") || !strings.Contains(text, "owner: ana") {
		t.Fatalf("unexpected list: %s", text)
	}
}

// ─── Planning ────────────────────────────────────────────────────────────────

func TestPlanStrictExplainsMissingWorkstreams(t *testing.T) {
	result, err := NewPlanTool(newTestEngine(t)).Handle(context.Background(), makeReq(map[string]interface{}{
		"subject":    "roadmap",
		"macro_mode": "strict",
	}))
	mustNotError(t, result, err)
	if !strings.Contains(resultText(result), "No agenda planned") {
		t.Fatalf("unexpected result: %s", resultText(result))
	}
}

func TestPlanJSONFormat(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.AddFact(ctx, engine.FactCreateOptions{OrgID: "acme", Type: "decision", Status: "validated", Text: "pick the billing provider"}); err != nil {
		t.Fatalf("add fact: %v", err)
	}
	result, err := NewPlanTool(e).Handle(ctx, makeReq(map[string]interface{}{
		"subject": "billing",
		"format":  "json",
	}))
	mustNotError(t, result, err)
	var p domain.AgendaProposal
	if err := json.Unmarshal([]byte(resultText(result)), &p); err != nil {
		t.Fatalf("expected JSON proposal: %v", err)
	}
	if p.OrgID != "acme" || len(p.Agenda.Sections) == 0 {
		t.Fatalf("unexpected proposal %+v", p)
	}
}

func TestPlanRequiresSubjectOrPrompt(t *testing.T) {
	result, err := NewPlanTool(newTestEngine(t)).Handle(context.Background(), makeReq(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}
}
