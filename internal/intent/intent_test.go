package intent

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tktechnologies/meeting-agent/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		text string
		lang string
		want Intent
	}{
		{"we need to decide on the vendor", LangEN, DecisionMaking},
		{"weekly status update", LangEN, StatusUpdate},
		{"kickoff for the new billing project", LangEN, Kickoff},
		{"resolve the checkout blocker", LangEN, ProblemSolving},
		{"Q3 roadmap planning", LangEN, Planning},
		{"precisamos decidir sobre o fornecedor", LangPT, DecisionMaking},
		{"reunião de alinhamento do time", LangPT, Alignment},
		{"planejar o próximo trimestre", LangPT, Planning},
	}
	for _, tc := range cases {
		got := Classify(tc.text, tc.lang, nil)
		assert.Equal(t, tc.want, got.Intent, tc.text)
		assert.GreaterOrEqual(t, got.Confidence, 0.5, tc.text)
		assert.LessOrEqual(t, got.Confidence, 1.0, tc.text)
	}
}

func TestClassifyWithoutSignalDefaultsToAlignment(t *testing.T) {
	got := Classify("integration", LangEN, nil)
	assert.Equal(t, Alignment, got.Intent)
	assert.Equal(t, DefaultConfidence, got.Confidence)
}

func TestClassifyUsesWorkstreamHealth(t *testing.T) {
	got := Classify("", LangEN, []domain.Workstream{{ID: "ws", Health: domain.HealthRed, Priority: 1}})
	assert.Equal(t, ProblemSolving, got.Intent)
}

func TestHeuristicCapability(t *testing.T) {
	c, err := Heuristic{}.ClassifyIntent(context.Background(), "approve the budget", "en")
	require.NoError(t, err)
	assert.Equal(t, DecisionMaking, c.Intent)
}

func TestTemplatesSharesSumToOne(t *testing.T) {
	for _, in := range All {
		for _, lang := range []string{LangEN, LangPT} {
			tpl := TemplateFor(in, lang)
			sum := 0.0
			for _, s := range tpl.Sections {
				sum += s.Share
				assert.NotEmpty(t, s.Title)
			}
			assert.InDelta(t, 1.0, sum, 1e-9, "%s %s", in, lang)
			_, ok := tpl.Section(RoleOpening)
			assert.True(t, ok)
			_, ok = tpl.Section(RoleClosing)
			assert.True(t, ok)
			assert.GreaterOrEqual(t, tpl.MinSections, 3)
			assert.NotEmpty(t, tpl.Core())
		}
	}
	assert.Equal(t, "Decisões Necessárias", TemplateFor(DecisionMaking, "pt_br").Sections[2].Title)
	assert.Equal(t, Alignment, TemplateFor("bogus", LangEN).Intent)
	assert.False(t, math.IsNaN(TemplateFor(Kickoff, LangEN).Sections[0].Share))
}

func TestNormalizeLanguage(t *testing.T) {
	assert.Equal(t, LangPT, NormalizeLanguage("pt"))
	assert.Equal(t, LangPT, NormalizeLanguage("PT_br"))
	assert.Equal(t, LangEN, NormalizeLanguage(""))
	assert.Equal(t, LangEN, NormalizeLanguage("fr-FR"))
}
