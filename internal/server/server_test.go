package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tktechnologies/meeting-agent/internal/config"
	"github.com/tktechnologies/meeting-agent/internal/db"
	"github.com/tktechnologies/meeting-agent/internal/domain"
	"github.com/tktechnologies/meeting-agent/internal/engine"
	"github.com/tktechnologies/meeting-agent/internal/migrate"
)

const (
	testSecret = "test-secret"
	testOrg    = "acme"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func signToken(t *testing.T, subject string, scopes ...string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
		Scopes:           scopes,
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func bearer(t *testing.T, scopes ...string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + signToken(t, "alice", scopes...)}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestHealthIsPublic(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health/research", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("research health status %d: %s", res.StatusCode, string(body))
	}
	var h HealthResponse
	if err := json.Unmarshal(body, &h); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if h.Status != "disabled" {
		t.Fatalf("expected disabled research, got %s", h.Status)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/metrics", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", res.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	url := srv.URL + "/v0/orgs/" + testOrg + "/agendas/plan"

	res, body := doJSON(t, srv.Client(), http.MethodPost, url, map[string]any{"subject": "sync"}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, srv.Client(), http.MethodPost, url, map[string]any{"subject": "sync"}, map[string]string{"Authorization": "Bearer not-a-token"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d %s", res.StatusCode, string(body))
	}
	if !strings.Contains(string(body), "invalid_credentials") {
		t.Fatalf("expected error envelope, got %s", string(body))
	}
}

func TestScopeEnforced(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/orgs/"+testOrg+"/facts", map[string]any{
		"type": "risk",
		"text": "vendor contract lapses",
	}, bearer(t, "fact.read"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(body))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Details["scope"] != "fact.write" {
		t.Fatalf("expected fact.write in details, got %v", envelope.Error.Details)
	}

	res, body = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/orgs/"+testOrg+"/facts", map[string]any{
		"type": "risk",
		"text": "vendor contract lapses",
	}, bearer(t, "fact.*"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 with fact.*, got %d %s", res.StatusCode, string(body))
	}
}

func TestPlanWithWorkstream(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers := bearer(t)
	base := srv.URL + "/v0/orgs/" + testOrg

	res, body := doJSON(t, client, http.MethodPost, base+"/workstreams", map[string]any{
		"title":    "Billing migration",
		"priority": 2,
		"tags":     []string{"billing"},
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create workstream status %d: %s", res.StatusCode, string(body))
	}
	var ws domain.Workstream
	if err := json.Unmarshal(body, &ws); err != nil {
		t.Fatalf("unmarshal workstream: %v", err)
	}

	for _, text := range []string{"choose the billing provider", "approve the invoice schema"} {
		res, body := doJSON(t, client, http.MethodPost, base+"/facts", map[string]any{
			"type":          "decision",
			"status":        "validated",
			"text":          text,
			"workstream_id": ws.ID,
			"evidence":      []map[string]any{{"quote": "From the billing review: " + text}},
		}, headers)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create fact status %d: %s", res.StatusCode, string(body))
		}
	}

	res, body = doJSON(t, client, http.MethodGet, base+"/workstreams/"+ws.ID, nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get workstream status %d: %s", res.StatusCode, string(body))
	}
	var detail WorkstreamResponse
	if err := json.Unmarshal(body, &detail); err != nil {
		t.Fatalf("unmarshal workstream detail: %v", err)
	}
	if len(detail.Links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(detail.Links))
	}

	res, body = doJSON(t, client, http.MethodPost, base+"/agendas/plan", map[string]any{
		"subject":          "billing migration",
		"duration_minutes": 30,
		"persist":          true,
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("plan status %d: %s", res.StatusCode, string(body))
	}
	var proposal domain.AgendaProposal
	if err := json.Unmarshal(body, &proposal); err != nil {
		t.Fatalf("unmarshal proposal: %v", err)
	}
	if proposal.ID == "" {
		t.Fatalf("expected persisted proposal id")
	}
	if len(proposal.Agenda.Sections) == 0 {
		t.Fatalf("expected agenda sections")
	}

	res, body = doJSON(t, client, http.MethodGet, base+"/agendas", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list agendas status %d: %s", res.StatusCode, string(body))
	}
	var list ListResponse[domain.AgendaProposal]
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("unmarshal proposals: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].ID != proposal.ID {
		t.Fatalf("expected the persisted proposal, got %+v", list.Items)
	}

	res, body = doJSON(t, client, http.MethodGet, base+"/facts?q=invoice", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("search facts status %d: %s", res.StatusCode, string(body))
	}
	var facts ListResponse[domain.Fact]
	if err := json.Unmarshal(body, &facts); err != nil {
		t.Fatalf("unmarshal facts: %v", err)
	}
	if len(facts.Items) != 1 {
		t.Fatalf("expected 1 matching fact, got %d", len(facts.Items))
	}
}

func TestPlanStrictWithoutWorkstreams(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/orgs/"+testOrg+"/agendas/plan", map[string]any{
		"subject":    "roadmap",
		"macro_mode": "strict",
	}, bearer(t, "agenda.plan"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("plan status %d: %s", res.StatusCode, string(body))
	}
	var proposal domain.AgendaProposal
	if err := json.Unmarshal(body, &proposal); err != nil {
		t.Fatalf("unmarshal proposal: %v", err)
	}
	if proposal.Status != domain.ProposalUnmetPrecondition || proposal.Choice != engine.ChoiceNone {
		t.Fatalf("expected unmet precondition, got %s/%s", proposal.Status, proposal.Choice)
	}
}

func TestPlanRejectsBadMacroMode(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/orgs/"+testOrg+"/agendas/plan", map[string]any{
		"subject":    "roadmap",
		"macro_mode": "sometimes",
	}, bearer(t))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(body))
	}
}

func TestWorkstreamNotFoundAndUpdate(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers := bearer(t)
	base := srv.URL + "/v0/orgs/" + testOrg

	res, body := doJSON(t, client, http.MethodGet, base+"/workstreams/missing", nil, headers)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodPost, base+"/workstreams", map[string]any{"title": "Hiring"}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create workstream status %d: %s", res.StatusCode, string(body))
	}
	var ws domain.Workstream
	_ = json.Unmarshal(body, &ws)

	res, body = doJSON(t, client, http.MethodPatch, base+"/workstreams/"+ws.ID, map[string]any{
		"health": "red",
		"status": "paused",
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update workstream status %d: %s", res.StatusCode, string(body))
	}
	var updated domain.Workstream
	if err := json.Unmarshal(body, &updated); err != nil {
		t.Fatalf("unmarshal workstream: %v", err)
	}
	if updated.Health != domain.HealthRed || updated.Status != "paused" {
		t.Fatalf("unexpected workstream %+v", updated)
	}
	if updated.Title != "Hiring" {
		t.Fatalf("title should be unchanged, got %s", updated.Title)
	}

	res, body = doJSON(t, client, http.MethodGet, base+"/workstreams?status=paused", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list workstreams status %d: %s", res.StatusCode, string(body))
	}
	var list ListResponse[domain.Workstream]
	_ = json.Unmarshal(body, &list)
	if len(list.Items) != 1 {
		t.Fatalf("expected 1 paused workstream, got %d", len(list.Items))
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	plain, _, err := srv.Engine.CreateAPIKey(context.Background(), "bot", "ci")
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}
	res, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/orgs/"+testOrg+"/meetings", map[string]any{
		"title":      "Weekly sync",
		"open_items": []string{"confirm budget"},
	}, map[string]string{"X-Api-Key": plain})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("record meeting status %d: %s", res.StatusCode, string(body))
	}
	var m domain.Meeting
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("unmarshal meeting: %v", err)
	}
	if len(m.OpenItems) != 1 {
		t.Fatalf("expected open items to round trip, got %v", m.OpenItems)
	}

	res, body = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/orgs/"+testOrg+"/events?type=meeting.recorded", nil, map[string]string{"X-Api-Key": plain})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list events status %d: %s", res.StatusCode, string(body))
	}
	var page paginatedEvents
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ActorID != "bot" {
		t.Fatalf("expected one meeting event by bot, got %+v", page.Items)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/orgs/"+testOrg+"/workstreams", nil, map[string]string{"X-Api-Key": "agk_wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown key, got %d", res.StatusCode)
	}
}

func TestScopedAPIKey(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	plain, _, err := srv.Engine.CreateAPIKey(context.Background(), "reader", "dashboard", "workstream.read")
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}
	headers := map[string]string{"X-Api-Key": plain}
	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/orgs/"+testOrg+"/workstreams", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list workstreams status %d: %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/orgs/"+testOrg+"/workstreams", map[string]any{"title": "Nope"}, headers)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for read-only key, got %d: %s", res.StatusCode, string(body))
	}

	keys, err := srv.Engine.Repo.ListAPIKeys(context.Background(), "reader")
	if err != nil || len(keys) != 1 {
		t.Fatalf("list keys: %v %+v", err, keys)
	}
	if keys[0].LastUsedAt == "" {
		t.Fatalf("expected last_used_at to be recorded")
	}
}

func TestOpenAPIMarksHealthPublic(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	var doc struct {
		Paths map[string]map[string]struct {
			Security []map[string][]string `json:"security"`
		} `json:"paths"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("unmarshal openapi: %v", err)
	}
	if op, ok := doc.Paths["/v0/health"]["get"]; !ok || len(op.Security) != 0 {
		t.Fatalf("expected public health operation, got %+v", doc.Paths["/v0/health"])
	}
	if op := doc.Paths["/v0/orgs/{org_id}/agendas/plan"]["post"]; len(op.Security) == 0 {
		t.Fatalf("expected plan operation to require auth")
	}
}
