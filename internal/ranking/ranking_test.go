package ranking

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tktechnologies/meeting-agent/internal/domain"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedRanker() Ranker {
	r := New()
	r.Now = func() time.Time { return now }
	return r
}

func fact(id string, typ domain.FactType, status domain.FactStatus, created time.Time) domain.Fact {
	return domain.Fact{ID: id, OrgID: "org", Type: typ, Status: status, CreatedAt: domain.FormatTime(created)}
}

func ids(items []Scored) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = s.Fact.ID
	}
	return out
}

func TestRankSortsByScoreDescending(t *testing.T) {
	r := fixedRanker()
	cands := map[string]domain.Fact{
		"a": fact("a", domain.FactOther, domain.StatusDraft, now.AddDate(0, 0, -90)),
		"b": fact("b", domain.FactDecision, domain.StatusValidated, now.AddDate(0, 0, -1)),
		"c": fact("c", domain.FactRisk, domain.StatusPublished, now.AddDate(0, 0, -10)),
	}
	got := r.Rank(cands, 0)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"b", "c", "a"}, ids(got))
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestRankTieBreakIsDeterministic(t *testing.T) {
	r := fixedRanker()
	created := now.AddDate(0, 0, -3)
	older := now.AddDate(0, 0, -3).Add(-time.Second)
	base := []domain.Fact{
		fact("f3", domain.FactGoal, domain.StatusProposed, created),
		fact("f1", domain.FactGoal, domain.StatusProposed, created),
		fact("f2", domain.FactGoal, domain.StatusProposed, created),
	}
	// f0 is one second older, so it scores marginally lower.
	base = append(base, fact("f0", domain.FactGoal, domain.StatusProposed, older))

	want := []string{"f1", "f2", "f3", "f0"}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		rng.Shuffle(len(base), func(a, b int) { base[a], base[b] = base[b], base[a] })
		cands := map[string]domain.Fact{}
		for _, f := range base {
			cands[f.ID] = f
		}
		got := ids(r.Rank(cands, 0))
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("order mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestRankTruncatesToK(t *testing.T) {
	r := fixedRanker()
	cands := map[string]domain.Fact{}
	for i := 0; i < 50; i++ {
		f := fact(string(rune('a'+i%26))+string(rune('a'+i/26)), domain.FactStatusNote, domain.StatusPublished, now.AddDate(0, 0, -i))
		cands[f.ID] = f
	}
	assert.Len(t, r.Rank(cands, DefaultK), DefaultK)
	assert.Len(t, r.Rank(cands, 5), 5)
	assert.Len(t, r.Rank(cands, 0), 50)
}

func TestResearchBoostAppliesToBlendedScore(t *testing.T) {
	r := fixedRanker()
	internal := fact("i", domain.FactStatusNote, domain.StatusProposed, now)
	research := internal
	research.ID = "r"
	research.Source = domain.SourceDeepResearch

	si := r.Score(internal, now)
	sr := r.Score(research, now)
	assert.Equal(t, si.Components, sr.Components)
	assert.True(t, sr.Boosted)
	assert.InDelta(t, si.Score*DefaultResearchBoost, sr.Score, 1e-12)
}

func TestUrgencyComponent(t *testing.T) {
	f := fact("u", domain.FactActionItem, domain.StatusDraft, now)
	assert.Equal(t, UrgencyBaseline, UrgencyComponent(f, now))

	past := domain.FormatTime(now.Add(-time.Hour))
	f.DueAt = &past
	assert.Equal(t, 1.0, UrgencyComponent(f, now))

	soon := domain.FormatTime(now.AddDate(0, 0, 1))
	later := domain.FormatTime(now.AddDate(0, 0, 30))
	fs, fl := f, f
	fs.DueAt, fl.DueAt = &soon, &later
	assert.Greater(t, UrgencyComponent(fs, now), UrgencyComponent(fl, now))
	assert.Greater(t, UrgencyComponent(fs, now), UrgencyBaseline)
}

func TestRecencyComponentIsBounded(t *testing.T) {
	fresh := fact("n", domain.FactOther, domain.StatusDraft, now)
	ancient := fact("o", domain.FactOther, domain.StatusDraft, now.AddDate(-10, 0, 0))
	assert.InDelta(t, 1.0, RecencyComponent(fresh, now, DefaultRecencyHalfLife), 1e-9)
	assert.Equal(t, recencyFloor, RecencyComponent(ancient, now, DefaultRecencyHalfLife))

	half := fact("h", domain.FactOther, domain.StatusDraft, now.Add(-DefaultRecencyHalfLife))
	assert.InDelta(t, 0.5, RecencyComponent(half, now, DefaultRecencyHalfLife), 1e-9)
}

func TestEvidenceComponentUsesLinkWeight(t *testing.T) {
	f := fact("e", domain.FactDecision, domain.StatusValidated, now)
	assert.Equal(t, 0.0, EvidenceComponent(f))

	f.Payload.Evidence = []domain.Evidence{{Quote: "we agreed to ship", Span: &domain.Span{Start: 0, End: 17}}, {Quote: "second"}}
	assert.InDelta(t, 1.0, EvidenceComponent(f), 1e-12)

	w := 0.5
	f.LinkWeight = &w
	assert.InDelta(t, 0.5, EvidenceComponent(f), 1e-12)
}

func TestStatusAndTypeOrdering(t *testing.T) {
	statuses := []domain.FactStatus{domain.StatusDraft, domain.StatusProposed, domain.StatusPublished, domain.StatusValidated}
	for i := 1; i < len(statuses); i++ {
		assert.Greater(t, StatusComponent(statuses[i]), StatusComponent(statuses[i-1]))
	}
	for i := 1; i < len(domain.FactTypes); i++ {
		assert.Greater(t, TypeComponent(domain.FactTypes[i-1]), TypeComponent(domain.FactTypes[i]))
	}
	assert.False(t, math.IsNaN(StatusComponent("bogus")))
}
