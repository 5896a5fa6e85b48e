package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/tktechnologies/meeting-agent/internal/config"
	"github.com/tktechnologies/meeting-agent/internal/db"
	"github.com/tktechnologies/meeting-agent/internal/engine"
	"github.com/tktechnologies/meeting-agent/internal/events"
	"github.com/tktechnologies/meeting-agent/internal/migrate"
	"github.com/tktechnologies/meeting-agent/internal/repo"
)

type delivery struct {
	header http.Header
	body   webhookEvent
}

func TestWebhookDelivery(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	got := make(chan delivery, 4)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var evt webhookEvent
		_ = json.Unmarshal(data, &evt)
		got <- delivery{header: r.Header.Clone(), body: evt}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	if _, err := e.AddFact(context.Background(), engine.FactCreateOptions{OrgID: testOrg, Text: "kickoff scheduled"}); err != nil {
		t.Fatalf("add fact: %v", err)
	}
	if _, err := e.CreateWorkstream(context.Background(), engine.WorkstreamCreateOptions{OrgID: testOrg, Title: "Launch"}); err != nil {
		t.Fatalf("create workstream: %v", err)
	}

	d := NewWebhookDispatcher(e.Repo, []config.WebhookConfig{{
		URL:    hook.URL,
		Secret: "s3cret",
		Events: []string{events.TypeWorkstreamSaved},
	}}, nil)
	d.interval = 10 * time.Millisecond
	d.client = &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: time.Second}
	d.cursors[0] = 0
	d.Start(context.Background())
	defer d.Stop()

	select {
	case del := <-got:
		if del.body.Type != events.TypeWorkstreamSaved {
			t.Fatalf("expected filtered event type, got %s", del.body.Type)
		}
		if del.body.OrgID != testOrg {
			t.Fatalf("expected org %s, got %s", testOrg, del.body.OrgID)
		}
		if del.header.Get("X-Agenda-Secret") != "s3cret" || del.header.Get("X-Agenda-Org") != testOrg {
			t.Fatalf("missing delivery headers: %v", del.header)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for webhook delivery")
	}

	select {
	case del := <-got:
		t.Fatalf("unexpected second delivery %s", del.body.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWebhookDispatcherWithoutHooks(t *testing.T) {
	d := NewWebhookDispatcher(repo.Repo{}, []config.WebhookConfig{{URL: "  "}}, nil)
	d.Start(context.Background())
	d.Stop()
}

func TestEventFilter(t *testing.T) {
	all := newEventFilter(nil)
	if !all.match("anything") {
		t.Fatalf("empty filter should match all")
	}
	f := newEventFilter([]string{" agenda.proposed ", ""})
	if !f.match(events.TypeAgendaProposed) || f.match(events.TypeFactCreated) {
		t.Fatalf("unexpected filter behaviour")
	}
}
