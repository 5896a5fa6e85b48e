package compose

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tktechnologies/meeting-agent/internal/domain"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestTextPrefixes(t *testing.T) {
	dec := domain.Fact{Type: domain.FactDecision, Payload: domain.FactPayload{Text: "Decide: pick the vendor."}}
	assert.Equal(t, "Decide: pick the vendor", Text(dec, "en-US"))
	assert.Equal(t, "Decidir: pick the vendor", Text(dec, "pt-BR"))

	risk := domain.Fact{Type: domain.FactRisk, Payload: domain.FactPayload{Text: "vendor API   rate limits"}}
	assert.Equal(t, "Mitigate risk: vendor API rate limits", Text(risk, "en"))

	long := domain.Fact{Type: domain.FactStatusNote, Payload: domain.FactPayload{Text: strings.Repeat("x", 300)}}
	assert.Equal(t, MaxBulletText, len([]rune(Text(long, "en"))))
}

func TestWhyUsesEvidenceOnly(t *testing.T) {
	f := domain.Fact{Type: domain.FactDecision}
	assert.Equal(t, "", Why(f, now))

	due := "2025-03-01"
	f.DueAt = &due
	f.Payload.Evidence = []domain.Evidence{{Quote: "ok"}, {Quote: "We agreed to ship the connector in March."}}
	assert.Equal(t, "Overdue | We agreed to ship the connector in March.", Why(f, now))

	f.Payload.Evidence = []domain.Evidence{{Quote: strings.Repeat("q", 400)}}
	f.DueAt = nil
	assert.Equal(t, MaxWhy, len([]rune(Why(f, now))))
}

func TestBulletOwnerAndDue(t *testing.T) {
	due := "2025-03-20T10:00:00Z"
	b := Bullet(domain.Fact{Type: domain.FactActionItem, DueAt: &due, Payload: domain.FactPayload{Text: "Send draft", Owner: "Ana"}}, "en", now)
	assert.Equal(t, "Send draft", b.Text)
	assert.Equal(t, "Ana", b.Owner)
	assert.Equal(t, "2025-03-20", b.Due)
}

func TestTitleRules(t *testing.T) {
	ws := []domain.Workstream{{Title: "Integration"}}
	assert.Equal(t, "Meeting: Integration", Title("anything", "alignment", "en", ws))
	assert.Equal(t, "Reunião: Integration", Title("", "alignment", "pt-BR", ws))
	assert.Equal(t, "billing", Title("billing", "planning", "en", nil))
	assert.Equal(t, "Planning Session", Title("", "planning", "en", nil))
	assert.Equal(t, "Meeting", Title("", "unknown", "en", nil))
}

func TestGoalAddsHealth(t *testing.T) {
	ws := []domain.Workstream{{Title: "Integration", Health: domain.HealthRed}}
	assert.Equal(t, "Make decisions about integration (Status: red)", Goal("decision_making", "integration", "en", ws))
	assert.Equal(t, "Align understanding of the next meeting", Goal("alignment", "", "en", nil))
}

func TestAllocateSumsAndCaps(t *testing.T) {
	got := Allocate(30, []float64{0.1, 0.8, 0.1}, 0.4)
	assert.Equal(t, 30, got[0]+got[1]+got[2])
	assert.LessOrEqual(t, got[1], 12)

	got = Allocate(45, []float64{1, 1, 1, 1}, 0.4)
	sum := 0
	for _, m := range got {
		sum += m
	}
	assert.Equal(t, 45, sum)

	assert.Equal(t, []int{0, 0}, Allocate(0, []float64{1, 1}, 0.4))
}

func TestAllocateSkipsCapWhenInfeasible(t *testing.T) {
	got := Allocate(10, []float64{0.9, 0.1}, 0.4)
	assert.Equal(t, []int{9, 1}, got)
}

func TestCoverage(t *testing.T) {
	assert.Equal(t, 0.0, Coverage(nil, 0, 0))
	facts := []domain.Fact{{Type: domain.FactDecision}, {Type: domain.FactRisk}}
	assert.InDelta(t, 0.4+0.4*0.4+0.2*(4.0/6.0), Coverage(facts, 4, 2), 0.01)
}

func TestMarkdown(t *testing.T) {
	a := domain.Agenda{
		Title:   "Meeting: Billing",
		Minutes: 30,
		Sections: []domain.Section{{
			Title:   "Decisions",
			Minutes: 20,
			Items: []domain.Item{{
				Heading: "Decisions",
				Bullets: []domain.Bullet{{Text: "Decide: provider", Why: "Open since March", Owner: "ana"}},
			}},
		}},
	}
	out := Markdown(a, "pt-BR")
	for _, want := range []string{"# Meeting: Billing (30 min)", "## Decisions (20 min)", "- Decide: provider (@ana)", "Por quê: Open since March"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "### Decisions")
}
