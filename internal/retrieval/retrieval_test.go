package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tktechnologies/meeting-agent/internal/domain"
	"github.com/tktechnologies/meeting-agent/internal/research"
	"github.com/tktechnologies/meeting-agent/internal/store"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type stubEscalator struct {
	calls int
	facts []domain.Fact
}

func (s *stubEscalator) Escalate(_ context.Context, req research.EscalationRequest) ([]domain.Fact, research.Outcome) {
	s.calls++
	return s.facts, research.OutcomeOK
}

func seedFacts(m *store.Memory, n int, text string) []string {
	var ids []string
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("f%02d", i)
		m.PutFact(domain.Fact{
			ID: id, OrgID: "org", Type: domain.FactStatusNote, Status: domain.StatusPublished,
			Payload:   domain.FactPayload{Text: text},
			CreatedAt: domain.FormatTime(now.Add(-time.Duration(i) * time.Hour)),
		})
		ids = append(ids, id)
	}
	return ids
}

func newRetriever(gw store.Gateway, esc Escalator) Retriever {
	return Retriever{Store: gw, Escalator: esc, Now: func() time.Time { return now }}
}

func TestNoEscalationWithEnoughCandidates(t *testing.T) {
	m := store.NewMemory()
	seedFacts(m, 10, "integration work")
	esc := &stubEscalator{}
	res, err := newRetriever(m, esc).Retrieve(context.Background(), Options{OrgID: "org", Subject: "integration", AllowResearch: true, Target: 40})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Stats.Total)
	assert.Equal(t, 0, esc.calls)
	assert.False(t, res.Stats.Escalated)
}

func TestEscalatesBelowThreshold(t *testing.T) {
	m := store.NewMemory()
	seedFacts(m, 3, "integration work")
	esc := &stubEscalator{facts: []domain.Fact{
		{ID: "dr-1", OrgID: "org", Type: domain.FactRisk, Status: domain.StatusPublished, Source: domain.SourceDeepResearch, CreatedAt: domain.FormatTime(now)},
		{ID: "dr-2", OrgID: "org", Type: domain.FactStatusNote, Status: domain.StatusPublished, Source: domain.SourceDeepResearch, CreatedAt: domain.FormatTime(now)},
	}}
	res, err := newRetriever(m, esc).Retrieve(context.Background(), Options{OrgID: "org", Subject: "integration", AllowResearch: true})
	require.NoError(t, err)
	assert.Equal(t, 1, esc.calls)
	assert.True(t, res.Stats.Escalated)
	assert.Equal(t, 2, res.Stats.DeepResearch)
	assert.Equal(t, 5, res.Stats.Total)
	assert.Contains(t, res.Candidates, "dr-1")
}

func TestResearchDisabledNeverEscalates(t *testing.T) {
	m := store.NewMemory()
	seedFacts(m, 1, "integration")
	esc := &stubEscalator{}
	_, err := newRetriever(m, esc).Retrieve(context.Background(), Options{OrgID: "org", Subject: "integration"})
	require.NoError(t, err)
	assert.Equal(t, 0, esc.calls)
}

func TestWorkstreamStrategyAndDedup(t *testing.T) {
	m := store.NewMemory()
	ids := seedFacts(m, 4, "billing integration")
	m.PutWorkstream(domain.Workstream{ID: "ws1", OrgID: "org", Title: "Billing", Status: "active", Priority: 2, Tags: []string{"billing"}})
	require.NoError(t, m.LinkFacts(context.Background(), "org", "ws1", ids[:2], 0.6))

	res, err := newRetriever(m, nil).Retrieve(context.Background(), Options{OrgID: "org", Subject: "integration"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.Workstream)
	assert.Equal(t, 4, res.Stats.Keyword)
	assert.Equal(t, 4, res.Stats.Total)
	got := res.Candidates[ids[0]]
	require.NotNil(t, got.LinkWeight)
	assert.Equal(t, 0.6, *got.LinkWeight)
	assert.Equal(t, "ws1", got.WorkstreamID)
	assert.Equal(t, []string{"integration", "billing"}, res.Keywords)
}

func TestDisableWorkstreamsSkipsLinkedStrategy(t *testing.T) {
	m := store.NewMemory()
	ids := seedFacts(m, 2, "alpha")
	m.PutWorkstream(domain.Workstream{ID: "ws1", OrgID: "org", Title: "Alpha", Status: "active", Priority: 1})
	require.NoError(t, m.LinkFacts(context.Background(), "org", "ws1", ids, 1))

	res, err := newRetriever(m, nil).Retrieve(context.Background(), Options{OrgID: "org", DisableWorkstreams: true})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Stats.Workstream)
	assert.Empty(t, res.Workstreams)
	assert.Equal(t, 2, res.Stats.Recent)
}

type failingSearch struct{ *store.Memory }

func (f failingSearch) SearchFacts(context.Context, string, string, int) ([]domain.Fact, error) {
	return nil, errors.New("search down")
}

func TestStrategyFailureIsAbsorbed(t *testing.T) {
	m := store.NewMemory()
	past := domain.FormatTime(now.Add(-time.Hour))
	m.PutFact(domain.Fact{ID: "late", OrgID: "org", Type: domain.FactActionItem, Status: domain.StatusProposed, CreatedAt: domain.FormatTime(now), DueAt: &past})

	res, err := newRetriever(failingSearch{m}, nil).Retrieve(context.Background(), Options{OrgID: "org", Subject: "roadmap"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Failures)
	assert.Equal(t, 1, res.Stats.Urgent)
	assert.Contains(t, res.Candidates, "late")
}

func TestNoContext(t *testing.T) {
	res, err := newRetriever(store.NewMemory(), nil).Retrieve(context.Background(), Options{OrgID: "org", Subject: "nothing here"})
	assert.ErrorIs(t, err, ErrNoContext)
	assert.Equal(t, 0, res.Stats.Total)
}

func TestKeywordsCap(t *testing.T) {
	kws := Keywords("one two three four five six seven eight nine ten eleven twelve", nil, []string{"gap"}, 10)
	assert.Len(t, kws, 10)
	assert.Equal(t, "gap", kws[0])
	assert.Contains(t, kws, "nine")
	assert.NotContains(t, kws, "ten")
	assert.Empty(t, Keywords("the agenda for next meeting", nil, nil, 10))
}

func TestPoolPrefersRicherEvidence(t *testing.T) {
	p := newPool()
	w := 0.4
	p.add(domain.Fact{ID: "x", LinkWeight: &w, WorkstreamID: "a"})
	p.add(domain.Fact{ID: "x", Payload: domain.FactPayload{Evidence: []domain.Evidence{{Quote: "q"}}}})
	got := p.facts["x"]
	assert.Equal(t, "a", got.WorkstreamID)
	assert.Len(t, got.Payload.Evidence, 1)
}
