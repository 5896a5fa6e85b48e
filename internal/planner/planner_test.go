package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tktechnologies/meeting-agent/internal/domain"
	"github.com/tktechnologies/meeting-agent/internal/ranking"
	"github.com/tktechnologies/meeting-agent/internal/store"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestBuildEmptyInput(t *testing.T) {
	p := Build(Input{})
	require.Len(t, p.Agenda.Sections, 1)
	sec := p.Agenda.Sections[0]
	assert.Equal(t, "General discussion", sec.Title)
	assert.Equal(t, defaultMinutes, sec.Minutes)
	require.Len(t, sec.Items, 1)
	assert.NotEmpty(t, sec.Items[0].Bullets[0].Text)
	assert.Equal(t, domain.LegacyAgendaVersion, p.Metadata.AgendaVersion)
	assert.Equal(t, Generator, p.Choice)
	assert.Equal(t, domain.ProposalDegraded, p.Status)
	assert.NotNil(t, p.SupportingFactIDs)
}

func TestBuildGroupsByWorkstream(t *testing.T) {
	in := Input{
		Subject:         "integration",
		Language:        "pt-BR",
		DurationMinutes: 60,
		Now:             now,
		Workstreams: []domain.Workstream{
			{ID: "w1", Title: "Integration", Priority: 3, Health: domain.HealthRed},
			{ID: "w2", Title: "Billing", Priority: 1, Health: domain.HealthGreen},
		},
		Facts: []domain.Fact{
			{ID: "a", WorkstreamID: "w1", Type: domain.FactDecision, Payload: domain.FactPayload{Text: "escolher fornecedor"}},
			{ID: "b", WorkstreamID: "w1", Type: domain.FactRisk, Payload: domain.FactPayload{Text: "atraso na API"}},
			{ID: "c", WorkstreamID: "w2", Type: domain.FactActionItem, Payload: domain.FactPayload{Text: "enviar contrato", Owner: "Ana"}},
			{ID: "d", Type: domain.FactStatusNote, Payload: domain.FactPayload{Text: "nota solta"}},
		},
	}
	p := Build(in)
	require.Len(t, p.Agenda.Sections, 3)
	assert.Equal(t, "w1", p.Agenda.Sections[0].WorkstreamID)
	assert.Equal(t, "Decisões", p.Agenda.Sections[0].Items[0].Heading)
	assert.Equal(t, "Decidir: escolher fornecedor", p.Agenda.Sections[0].Items[0].Bullets[0].Text)
	assert.Equal(t, "Riscos", p.Agenda.Sections[0].Items[1].Heading)
	assert.Equal(t, "Ana", p.Agenda.Sections[1].Items[0].Bullets[0].Owner)
	assert.Equal(t, "Discussão geral", p.Agenda.Sections[2].Title)

	total := 0
	for _, s := range p.Agenda.Sections {
		total += s.Minutes
	}
	assert.Equal(t, 60, total)
	assert.Greater(t, p.Agenda.Sections[0].Minutes, p.Agenda.Sections[1].Minutes)
	assert.Equal(t, []string{"a", "b", "c", "d"}, p.SupportingFactIDs)
	assert.Equal(t, domain.ProposalOK, p.Status)
	assert.Equal(t, "integration", p.Agenda.Title)
}

func TestPlanReadsStore(t *testing.T) {
	m := store.NewMemory()
	m.PutWorkstream(domain.Workstream{ID: "w1", OrgID: "org", Title: "Integration", Status: "active", Priority: 2, Health: domain.HealthGreen})
	m.PutFact(domain.Fact{ID: "f1", OrgID: "org", Type: domain.FactDecision, Status: domain.StatusValidated,
		Payload: domain.FactPayload{Text: "pick vendor"}, CreatedAt: domain.FormatTime(now)})
	require.NoError(t, m.LinkFacts(context.Background(), "org", "w1", []string{"f1"}, 1))

	pl := Planner{Store: m, Ranker: ranking.New(), Now: func() time.Time { return now }}
	p := pl.Plan(context.Background(), Request{OrgID: "org", Subject: "sync", Nudge: domain.NudgeMacroContextMissing, FallbackReason: "timeout"})
	assert.Equal(t, "Meeting: Integration", p.Agenda.Title)
	assert.Equal(t, []string{"f1"}, p.SupportingFactIDs)
	assert.Equal(t, domain.NudgeMacroContextMissing, p.Metadata.Nudge)
	assert.Equal(t, "timeout", p.Metadata.FallbackReason)
	assert.Equal(t, "workflow fallback: timeout", p.Reason)
}

func TestPlanWithoutStoreStillPlans(t *testing.T) {
	p := Planner{}.Plan(context.Background(), Request{OrgID: "org", Subject: "general sync"})
	assert.NotEmpty(t, p.Agenda.Sections)
	assert.Equal(t, "general sync", p.Agenda.Title)
}

func TestPlanCapsStaleWorkstreamHealth(t *testing.T) {
	m := store.NewMemory()
	m.PutWorkstream(domain.Workstream{ID: "old", OrgID: "org", Title: "Migration", Status: "active", Priority: 2,
		Health: domain.HealthGreen, UpdatedAt: domain.FormatTime(now.AddDate(0, 0, -30))})
	m.PutWorkstream(domain.Workstream{ID: "fresh", OrgID: "org", Title: "Billing", Status: "active", Priority: 1,
		Health: domain.HealthGreen, UpdatedAt: domain.FormatTime(now.AddDate(0, 0, -2))})

	pl := Planner{Store: m, Ranker: ranking.New(), Now: func() time.Time { return now }}
	p := pl.Plan(context.Background(), Request{OrgID: "org", Subject: "sync", Nudge: domain.NudgeMacroContextMissing, FallbackReason: "budget_exceeded"})

	require.Len(t, p.Metadata.Workstreams, 2)
	byID := map[string]domain.WorkstreamSummary{}
	for _, s := range p.Metadata.Workstreams {
		byID[s.ID] = s
	}
	assert.Equal(t, domain.HealthYellow, byID["old"].Status)
	assert.True(t, byID["old"].Stale)
	assert.Equal(t, domain.HealthGreen, byID["fresh"].Status)
	assert.False(t, byID["fresh"].Stale)
	assert.Equal(t, domain.HealthStaleWorkstream, p.Metadata.Health)
	assert.Equal(t, []string{"old"}, p.Metadata.StaleWorkstreams)
}

func TestBuildHonoursStaleWindow(t *testing.T) {
	ws := domain.Workstream{ID: "w", Title: "Ops", Health: domain.HealthGreen, UpdatedAt: domain.FormatTime(now.AddDate(0, 0, -5))}
	p := Build(Input{Now: now, Workstreams: []domain.Workstream{ws}})
	assert.False(t, p.Metadata.Workstreams[0].Stale)
	assert.Empty(t, p.Metadata.Health)

	p = Build(Input{Now: now, StaleAfter: 72 * time.Hour, Workstreams: []domain.Workstream{ws}})
	assert.True(t, p.Metadata.Workstreams[0].Stale)
	assert.Equal(t, domain.HealthYellow, p.Metadata.Workstreams[0].Status)
	assert.Equal(t, []string{"w"}, p.Metadata.StaleWorkstreams)
}
