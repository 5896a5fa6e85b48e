package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tktechnologies/meeting-agent/internal/domain"
	"github.com/tktechnologies/meeting-agent/internal/intent"
	"github.com/tktechnologies/meeting-agent/internal/ranking"
	"github.com/tktechnologies/meeting-agent/internal/research"
	"github.com/tktechnologies/meeting-agent/internal/retrieval"
	"github.com/tktechnologies/meeting-agent/internal/store"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func newWorkflow(m *store.Memory, esc retrieval.Escalator) *Workflow {
	rk := ranking.New()
	rk.Now = clock
	return &Workflow{
		Store:     m,
		Retriever: retrieval.Retriever{Store: m, Escalator: esc, Now: clock},
		Ranker:    rk,
		Config:    DefaultConfig(),
		Now:       clock,
	}
}

type recorder struct {
	mu    sync.Mutex
	nodes []Node
}

func (r *recorder) OnNodeEnter(_ context.Context, _ RunInfo, n Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes = append(r.nodes, n)
}

func (r *recorder) OnNodeExit(context.Context, RunInfo, Node, time.Duration, error) {}

func (r *recorder) count(n Node) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := 0
	for _, x := range r.nodes {
		if x == n {
			c++
		}
	}
	return c
}

type fixedScorer struct {
	calls int
	score float64
}

func (s *fixedScorer) ScoreQuality(context.Context, QualityRequest) (Review, error) {
	s.calls++
	return Review{Score: s.score, Issues: []string{"too vague"}}, nil
}

// seedIntegration builds the single-workstream org: 3 validated decisions and
// 12 status notes, all linked and all quoting evidence.
func seedIntegration(t *testing.T, updated time.Time) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	m.PutWorkstream(domain.Workstream{
		ID: "ws-int", OrgID: "org", Title: "Integration", Status: "active", Health: domain.HealthGreen,
		Priority: 2, Tags: []string{"integration"}, CreatedAt: domain.FormatTime(now.Add(-60 * 24 * time.Hour)),
		UpdatedAt: domain.FormatTime(updated),
	})
	var ids []string
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("dec-%d", i)
		m.PutFact(domain.Fact{
			ID: id, OrgID: "org", Type: domain.FactDecision, Status: domain.StatusValidated,
			Payload: domain.FactPayload{
				Text:     fmt.Sprintf("choose integration vendor option %d", i),
				Evidence: []domain.Evidence{{Quote: fmt.Sprintf("Team agreed vendor option %d needs a call this week.", i), Span: &domain.Span{Start: 0, End: 40}}},
			},
			CreatedAt: domain.FormatTime(now.Add(-time.Duration(i+1) * time.Hour)),
		})
		ids = append(ids, id)
	}
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("st-%02d", i)
		m.PutFact(domain.Fact{
			ID: id, OrgID: "org", Type: domain.FactStatusNote, Status: domain.StatusPublished,
			Payload: domain.FactPayload{
				Text:     fmt.Sprintf("integration status update %d", i),
				Evidence: []domain.Evidence{{Quote: "Weekly status: the connector passed staging checks."}},
			},
			CreatedAt: domain.FormatTime(now.Add(-time.Duration(i+4) * time.Hour)),
		})
		ids = append(ids, id)
	}
	require.NoError(t, m.LinkFacts(context.Background(), "org", "ws-int", ids, 1))
	return m
}

func TestScenarioSingleWorkstream(t *testing.T) {
	m := seedIntegration(t, now.Add(-24*time.Hour))
	m.PutMeeting(domain.Meeting{ID: "m1", OrgID: "org", Title: "Weekly", HeldAt: domain.FormatTime(now.Add(-48 * time.Hour)), OpenItems: []string{"Share test plan"}})
	wf := newWorkflow(m, nil)

	p, err := wf.Run(context.Background(), Request{OrgID: "org", Subject: "integration", DurationMinutes: 30})
	require.NoError(t, err)

	scoped := 0
	minutes := 0
	for _, s := range p.Agenda.Sections {
		if s.WorkstreamID != "" {
			scoped++
			assert.Equal(t, "ws-int", s.WorkstreamID)
		}
		minutes += s.Minutes
	}
	assert.Equal(t, 1, scoped)
	assert.Equal(t, 30, minutes)
	assert.Equal(t, "2.0", p.Metadata.AgendaVersion)
	assert.Equal(t, "Meeting: Integration", p.Agenda.Title)

	decisions := 0
	for _, s := range p.Agenda.Sections {
		for _, it := range s.Items {
			for _, b := range it.Bullets {
				if strings.HasPrefix(b.Text, "Decide: ") {
					decisions++
					assert.NotEmpty(t, b.Why, b.Text)
				}
			}
		}
	}
	assert.Equal(t, 3, decisions)
	assert.Contains(t, p.Agenda.Sections[0].Items[len(p.Agenda.Sections[0].Items)-1].Bullets, domain.Bullet{Text: "Share test plan"})

	require.NotNil(t, p.Metadata.RefinementCount)
	assert.Equal(t, 0, *p.Metadata.RefinementCount)
	assert.Equal(t, "workflow-alignment", p.Choice)
	assert.Equal(t, domain.NudgeLowConfidence, p.Metadata.Nudge)
	assert.Equal(t, domain.ProposalOK, p.Status)
	assert.Len(t, p.Metadata.Workstreams, 1)
	assert.Len(t, p.Metadata.Refs, len(p.SupportingFactIDs))
	assert.Equal(t, 15, p.Metadata.RetrievalStats.Workstream)
	for _, n := range []Node{NodeParse, NodeRetrieve, NodeDraft, NodeFinalize} {
		assert.Contains(t, p.Metadata.StepTimes, string(n))
	}
}

func TestRefinementIsBounded(t *testing.T) {
	m := seedIntegration(t, now.Add(-24*time.Hour))
	wf := newWorkflow(m, nil)
	scorer := &fixedScorer{score: 0}
	rec := &recorder{}
	wf.Scorer = scorer
	wf.Observer = rec

	p, err := wf.Run(context.Background(), Request{OrgID: "org", Subject: "integration", DurationMinutes: 30})
	require.NoError(t, err)
	assert.Equal(t, 2, *p.Metadata.RefinementCount)
	assert.Equal(t, 3, scorer.calls)
	assert.Equal(t, 2, rec.count(NodeRefine))
	assert.Equal(t, 3, rec.count(NodeRetrieve))
	assert.Equal(t, 1, rec.count(NodeFinalize))
	assert.Equal(t, NodeFinalize, rec.nodes[len(rec.nodes)-1])
	assert.Equal(t, domain.ProposalDegraded, p.Status)
	assert.Contains(t, p.Metadata.QualityIssues, "too vague")
}

func TestNoRefinementWhenDisabled(t *testing.T) {
	m := seedIntegration(t, now.Add(-24*time.Hour))
	wf := newWorkflow(m, nil)
	wf.Config.MaxRefinements = 0
	wf.Scorer = &fixedScorer{score: 0}
	p, err := wf.Run(context.Background(), Request{OrgID: "org", Subject: "integration"})
	require.NoError(t, err)
	assert.Equal(t, 0, *p.Metadata.RefinementCount)
}

func TestNoContextDraftsPlaceholders(t *testing.T) {
	wf := newWorkflow(store.NewMemory(), nil)
	p, err := wf.Run(context.Background(), Request{OrgID: "org", Subject: "billing", DurationMinutes: 45})
	require.NoError(t, err)
	assert.Equal(t, domain.NudgeNoContext, p.Metadata.Nudge)
	assert.Equal(t, domain.ProposalDegraded, p.Status)
	assert.Empty(t, p.SupportingFactIDs)
	require.NotEmpty(t, p.Agenda.Sections)

	found := false
	for _, s := range p.Agenda.Sections {
		for _, it := range s.Items {
			for _, b := range it.Bullets {
				assert.Empty(t, b.Why)
				if strings.HasPrefix(b.Text, "Collect input on") {
					found = true
				}
			}
		}
	}
	assert.True(t, found)
	assert.Equal(t, "billing", p.Agenda.Title)
}

func TestStaleWorkstreamIsSurfaced(t *testing.T) {
	m := seedIntegration(t, now.Add(-20*24*time.Hour))
	wf := newWorkflow(m, nil)
	p, err := wf.Run(context.Background(), Request{OrgID: "org", Subject: "integration"})
	require.NoError(t, err)
	require.Len(t, p.Metadata.Workstreams, 1)
	assert.Equal(t, domain.HealthYellow, p.Metadata.Workstreams[0].Status)
	assert.True(t, p.Metadata.Workstreams[0].Stale)
	assert.Equal(t, domain.HealthStaleWorkstream, p.Metadata.Health)
	assert.Equal(t, []string{"ws-int"}, p.Metadata.StaleWorkstreams)
	assert.Contains(t, p.Agenda.Sections[0].Items[0].Bullets[1].Text, "Integration has no recent update")
}

type researchStub struct{ facts []domain.Fact }

func (s researchStub) Escalate(context.Context, research.EscalationRequest) ([]domain.Fact, research.Outcome) {
	return s.facts, research.OutcomeOK
}

func TestScenarioDeepResearchFactsReachOutput(t *testing.T) {
	m := store.NewMemory()
	for i := 0; i < 3; i++ {
		m.PutFact(domain.Fact{
			ID: fmt.Sprintf("f%d", i), OrgID: "org", Type: domain.FactStatusNote, Status: domain.StatusProposed,
			Payload:   domain.FactPayload{Text: fmt.Sprintf("billing migration note %d", i)},
			CreatedAt: domain.FormatTime(now.Add(-time.Duration(i+1) * 24 * time.Hour)),
		})
	}
	q := 6.0
	esc := researchStub{facts: []domain.Fact{
		{ID: "dr-1", OrgID: "org", Type: domain.FactRisk, Status: domain.StatusPublished, Source: domain.SourceDeepResearch,
			Payload:   domain.FactPayload{Text: "Billing migrations often stall on tax rules", Quality: &q, Evidence: []domain.Evidence{{Quote: "Tax rule mapping is the most common blocker."}}},
			CreatedAt: domain.FormatTime(now)},
		{ID: "dr-2", OrgID: "org", Type: domain.FactStatusNote, Status: domain.StatusPublished, Source: domain.SourceDeepResearch,
			Payload:   domain.FactPayload{Text: "Industry timelines for billing cutovers", Quality: &q, Evidence: []domain.Evidence{{Quote: "Most teams plan a two week parallel run."}}},
			CreatedAt: domain.FormatTime(now)},
	}}
	wf := newWorkflow(m, esc)
	p, err := wf.Run(context.Background(), Request{OrgID: "org", Subject: "billing", DisableWorkstreams: true})
	require.NoError(t, err)
	assert.True(t, p.Metadata.RetrievalStats.Escalated)
	assert.Equal(t, 2, p.Metadata.RetrievalStats.DeepResearch)
	assert.Contains(t, p.SupportingFactIDs, "dr-1")
	assert.Contains(t, p.SupportingFactIDs, "dr-2")
	assert.Empty(t, p.Metadata.Workstreams)
}

type blockingRetriever struct{}

func (blockingRetriever) Retrieve(ctx context.Context, _ retrieval.Options) (retrieval.Result, error) {
	<-ctx.Done()
	return retrieval.Result{}, ctx.Err()
}

func TestBudgetExceeded(t *testing.T) {
	wf := newWorkflow(store.NewMemory(), nil)
	wf.Retriever = blockingRetriever{}
	wf.Config.Budget = 20 * time.Millisecond
	_, err := wf.Run(context.Background(), Request{OrgID: "org", Subject: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
	var nerr *NodeError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, NodeRetrieve, nerr.Node)
}

type failingRetriever struct{}

func (failingRetriever) Retrieve(context.Context, retrieval.Options) (retrieval.Result, error) {
	return retrieval.Result{}, errors.New("store down")
}

func TestRetrieverFaultIsFatal(t *testing.T) {
	wf := newWorkflow(store.NewMemory(), nil)
	wf.Retriever = failingRetriever{}
	_, err := wf.Run(context.Background(), Request{OrgID: "org", Subject: "x"})
	var nerr *NodeError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, NodeRetrieve, nerr.Node)
	assert.NotErrorIs(t, err, ErrBudgetExceeded)
}

type stubClassifier struct {
	c   intent.Classification
	err error
}

func (s stubClassifier) ClassifyIntent(context.Context, string, string) (intent.Classification, error) {
	return s.c, s.err
}

func TestClassifierFallbacks(t *testing.T) {
	m := seedIntegration(t, now.Add(-24*time.Hour))
	for _, tc := range []struct {
		name string
		cls  stubClassifier
		want string
	}{
		{"model wins", stubClassifier{c: intent.Classification{Intent: intent.Planning, Confidence: 1.4}}, "workflow-planning"},
		{"error falls back", stubClassifier{err: errors.New("quota")}, "workflow-alignment"},
		{"unknown intent falls back", stubClassifier{c: intent.Classification{Intent: "brainstorm", Confidence: 0.9}}, "workflow-alignment"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			wf := newWorkflow(m, nil)
			wf.Classifier = tc.cls
			p, err := wf.Run(context.Background(), Request{OrgID: "org", Subject: "integration"})
			require.NoError(t, err)
			assert.Equal(t, tc.want, p.Choice)
			assert.LessOrEqual(t, *p.Metadata.IntentConfidence, 1.0)
		})
	}
}

type upperDrafter struct{ drop bool }

func (d upperDrafter) DraftSection(_ context.Context, req SectionRequest) ([]string, error) {
	out := make([]string, len(req.Bullets))
	for i, b := range req.Bullets {
		out[i] = strings.ToUpper(b)
	}
	if d.drop {
		out = out[1:]
	}
	return out, nil
}

func TestDrafterPolishKeepsShape(t *testing.T) {
	m := seedIntegration(t, now.Add(-24*time.Hour))
	wf := newWorkflow(m, nil)
	wf.Drafter = upperDrafter{}
	p, err := wf.Run(context.Background(), Request{OrgID: "org", Subject: "integration"})
	require.NoError(t, err)
	first := p.Agenda.Sections[0].Items[0].Bullets[0].Text
	assert.Equal(t, strings.ToUpper(first), first)

	wf.Drafter = upperDrafter{drop: true}
	p, err = wf.Run(context.Background(), Request{OrgID: "org", Subject: "integration"})
	require.NoError(t, err)
	first = p.Agenda.Sections[0].Items[0].Bullets[0].Text
	assert.NotEqual(t, strings.ToUpper(first), first)
}

func TestNextTransitions(t *testing.T) {
	cfg := DefaultConfig()
	st := &state{review: Review{Score: 0.5}}
	assert.Equal(t, NodeRefine, next(NodeReview, st, cfg))
	st.refinements = 2
	assert.Equal(t, NodeFinalize, next(NodeReview, st, cfg))
	st.refinements = 0
	st.review.Score = 0.7
	assert.Equal(t, NodeFinalize, next(NodeReview, st, cfg))
	assert.Equal(t, NodeRetrieve, next(NodeRefine, st, cfg))
	assert.Equal(t, nodeDone, next(NodeFinalize, st, cfg))
}

func TestMultiObserverSkipsNil(t *testing.T) {
	rec := &recorder{}
	obs := MultiObserver{nil, rec}
	obs.OnNodeEnter(context.Background(), RunInfo{}, NodeParse)
	obs.OnNodeExit(context.Background(), RunInfo{}, NodeParse, time.Millisecond, nil)
	assert.Equal(t, []Node{NodeParse}, rec.nodes)
}
