package research

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tktechnologies/meeting-agent/internal/domain"
)

const (
	DefaultMinQuality = 3.0
	minSectionBody    = 50
	maxQuoteLen       = 200
	maxTextLen        = 500
)

// Accepted reports whether a report passes the quality gate.
func Accepted(r Report, minQuality float64) bool {
	return r.StepsCompleted >= 1 && r.AvgQuality >= minQuality
}

// Convert splits a report on "## " headings and emits one fact per section
// whose body is long enough. A report with no usable section becomes a single
// fact built from its whole body. Reports failing the quality gate convert to
// nil.
func Convert(r Report, orgID, topic string, minQuality float64, now time.Time) []domain.Fact {
	if !Accepted(r, minQuality) {
		return nil
	}
	created := domain.FormatTime(now)
	var facts []domain.Fact
	for i, sec := range splitSections(r.Report) {
		body := strings.TrimSpace(sec.body)
		if utf8.RuneCountInString(body) < minSectionBody {
			continue
		}
		text := sec.title
		if text == "" {
			text = truncate(body, maxTextLen)
		} else {
			text = sec.title + ": " + truncate(firstSentence(body), maxTextLen)
		}
		facts = append(facts, researchFact(orgID, topic, created, r.AvgQuality, classifySection(sec.title), text, body, sec.title, i+1))
	}
	if len(facts) > 0 {
		return facts
	}
	title, body := reportBody(r.Report)
	if utf8.RuneCountInString(body) < minSectionBody {
		return nil
	}
	return []domain.Fact{researchFact(orgID, topic, created, r.AvgQuality, domain.FactStatusNote, truncate(body, maxTextLen), body, title, 0)}
}

func researchFact(orgID, topic, created string, quality float64, typ domain.FactType, text, body, title string, number int) domain.Fact {
	return domain.Fact{
		ID:        "dr-" + uuid.NewString(),
		OrgID:     orgID,
		Type:      typ,
		Status:    domain.StatusPublished,
		Source:    domain.SourceDeepResearch,
		CreatedAt: created,
		UpdatedAt: created,
		Payload: domain.FactPayload{
			Text:     text,
			Tags:     []string{"deep_research"},
			Evidence: []domain.Evidence{{Quote: truncate(firstSentence(body), maxQuoteLen)}},
			Quality:  &quality,
			Extra: map[string]any{
				"topic":          topic,
				"section_title":  title,
				"section_number": number,
			},
		},
	}
}

// reportBody drops markdown heading lines and collapses whitespace. The first
// heading is returned as the title.
func reportBody(report string) (string, string) {
	var title string
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(report, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			if title == "" {
				title = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			}
			continue
		}
		lines = append(lines, trimmed)
	}
	return title, strings.Join(strings.Fields(strings.Join(lines, " ")), " ")
}

type section struct {
	title string
	body  string
}

func splitSections(report string) []section {
	report = strings.ReplaceAll(report, "\r\n", "\n")
	if strings.HasPrefix(report, "## ") {
		report = "\n" + report
	}
	parts := strings.Split(report, "\n## ")
	var out []section
	for _, p := range parts[1:] {
		title, body, _ := strings.Cut(p, "\n")
		out = append(out, section{title: strings.TrimSpace(title), body: body})
	}
	return out
}

func classifySection(title string) domain.FactType {
	t := strings.ToLower(title)
	switch {
	case containsAny(t, []string{"risk", "risco", "threat", "ameaça", "challenge", "desafio"}):
		return domain.FactRisk
	case containsAny(t, []string{"decision", "decisão", "recommendation", "recomendação"}):
		return domain.FactDecision
	case containsAny(t, []string{"next step", "próximos passos", "action", "ações", "plano de ação"}):
		return domain.FactActionItem
	case containsAny(t, []string{"goal", "objective", "objetivo", "meta"}):
		return domain.FactGoal
	case containsAny(t, []string{"summary", "overview", "finding", "result", "analysis", "resumo", "visão geral", "resultado", "análise", "conclusion", "conclusão"}):
		return domain.FactStatusNote
	}
	return domain.FactOther
}

func firstSentence(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	for i, r := range s {
		if (r == '.' || r == '!' || r == '?') && i > 20 {
			return s[:i+1]
		}
	}
	return s
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
