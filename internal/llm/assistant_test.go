package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tktechnologies/meeting-agent/internal/domain"
	"github.com/tktechnologies/meeting-agent/internal/intent"
	"github.com/tktechnologies/meeting-agent/internal/workflow"
)

type stubGen struct {
	calls   int
	reply   string
	err     error
	prompts []string
}

func (s *stubGen) Generate(_ context.Context, _, prompt string) (string, error) {
	s.calls++
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

func newAssistant(t *testing.T, gen Generator) *Assistant {
	t.Helper()
	a, err := NewAssistant(gen, 8, 0, nil)
	require.NoError(t, err)
	return a
}

func TestClassifyIntentCaches(t *testing.T) {
	gen := &stubGen{reply: "```json\n{\"intent\": \"planning\", \"confidence\": 0.8, \"rationale\": \"roadmap\"}\n```"}
	a := newAssistant(t, gen)

	c, err := a.ClassifyIntent(context.Background(), "Q3 roadmap", "en-US")
	require.NoError(t, err)
	assert.Equal(t, intent.Planning, c.Intent)
	assert.Equal(t, 0.8, c.Confidence)

	_, err = a.ClassifyIntent(context.Background(), "  q3 ROADMAP ", "en-US")
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls)

	_, err = a.ClassifyIntent(context.Background(), "Q3 roadmap", "pt-BR")
	require.NoError(t, err)
	assert.Equal(t, 2, gen.calls)
}

func TestClassifyIntentRejectsUnknown(t *testing.T) {
	a := newAssistant(t, &stubGen{reply: `{"intent": "brainstorm", "confidence": 0.9}`})
	_, err := a.ClassifyIntent(context.Background(), "ideas", "en-US")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brainstorm")
}

func TestGeneratorErrorPropagates(t *testing.T) {
	a := newAssistant(t, &stubGen{err: errors.New("quota exceeded")})
	_, err := a.DraftSection(context.Background(), workflow.SectionRequest{Bullets: []string{"a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestDraftSectionRepairsJSON(t *testing.T) {
	gen := &stubGen{reply: `{"bullets": ["Confirm vendor", "Plan cutover",]}`}
	a := newAssistant(t, gen)
	out, err := a.DraftSection(context.Background(), workflow.SectionRequest{
		Section: "Decisions", Bullets: []string{"Decide: vendor", "Plan the cutover"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Confirm vendor", "Plan cutover"}, out)
	assert.True(t, strings.Contains(gen.prompts[0], "2. Plan the cutover"))
}

func TestScoreQuality(t *testing.T) {
	a := newAssistant(t, &stubGen{reply: `{"score": 0.65, "issues": ["opening too long"]}`})
	r, err := a.ScoreQuality(context.Background(), workflow.QualityRequest{
		Agenda: domain.Agenda{Title: "Sync", Minutes: 30, Sections: []domain.Section{{Title: "Opening", Minutes: 5}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.65, r.Score)
	assert.Equal(t, []string{"opening too long"}, r.Issues)
}

func TestSummarizeContextCapsFacts(t *testing.T) {
	gen := &stubGen{reply: `{"summary": " Integration is on track. "}`}
	a := newAssistant(t, gen)
	facts := make([]domain.Fact, 30)
	for i := range facts {
		facts[i] = domain.Fact{Type: domain.FactStatusNote, Payload: domain.FactPayload{Text: "note"}}
	}
	s, err := a.SummarizeContext(context.Background(), workflow.SummaryRequest{Subject: "integration", Facts: facts})
	require.NoError(t, err)
	assert.Equal(t, "Integration is on track.", s)
	assert.Equal(t, maxPromptFacts, strings.Count(gen.prompts[0], "] note"))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(` {"a":1} `))
}
