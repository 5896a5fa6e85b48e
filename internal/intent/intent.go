// Package intent classifies meeting requests and holds the section template
// of each intent.
package intent

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/tktechnologies/meeting-agent/internal/domain"
)

type Intent string

const (
	DecisionMaking Intent = "decision_making"
	ProblemSolving Intent = "problem_solving"
	Planning       Intent = "planning"
	Alignment      Intent = "alignment"
	StatusUpdate   Intent = "status_update"
	Kickoff        Intent = "kickoff"
)

// All lists intents in tie-break order.
var All = []Intent{DecisionMaking, ProblemSolving, Planning, Alignment, StatusUpdate, Kickoff}

// Parse returns the intent named by s, or false when s is not one of All.
func Parse(s string) (Intent, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	for _, in := range All {
		if string(in) == s {
			return in, true
		}
	}
	return "", false
}

// DefaultConfidence is reported when no signal points anywhere.
const DefaultConfidence = 0.3

type Classification struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
}

const (
	LangEN = "en-US"
	LangPT = "pt-BR"
)

// NormalizeLanguage maps any Portuguese tag to pt-BR and everything else to en-US.
func NormalizeLanguage(lang string) string {
	l := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(lang), "_", "-"))
	if l == "pt" || strings.HasPrefix(l, "pt-") {
		return LangPT
	}
	return LangEN
}

var patterns = map[string]map[Intent][]*regexp.Regexp{
	LangPT: {
		DecisionMaking: compile(`\b(decidir|aprovar|escolher|definir|selecionar|optar)\b`, `\bdecis[aã]o\b`, `\baprova[çc][aã]o\b`),
		ProblemSolving: compile(`\b(resolver|mitigar|desbloquear|corrigir|solucionar)\b`, `\b(problema|bloqueio|bloqueador|impedimento)\b`, `\brisco\b`),
		Planning:       compile(`\b(planejar|planejamento|roadmap|cronograma|timeline|agendar)\b`, `\bpr[óo]ximos?\s+passos?\b`, `\b(sprint|trimestre|quarter|semestre)\b`),
		Alignment:      compile(`\b(alinhar|sincronizar|revisar|compartilhar)\b`, `\balinhamento\b`, `\bsync\b`),
		StatusUpdate:   compile(`\b(status|atualiza[çc][aã]o|andamento|progresso)\b`, `\breport\b`, `\b(weekly|semanal|mensal)\b`),
		Kickoff:        compile(`\b(in[íi]cio|kickoff|lan[çc]amento|come[çc]ar)\b`, `\bprimeiro\s+contato\b`, `\bintrodu[çc][aã]o\b`),
	},
	LangEN: {
		DecisionMaking: compile(`\b(decide|approve|choose|select|pick)\b`, `\bdecisions?\b`, `\bapproval\b`),
		ProblemSolving: compile(`\b(solve|resolve|mitigate|fix|unblock)\b`, `\b(problems?|blockers?|impediments?|issues?|incident)\b`, `\brisks?\b`),
		Planning:       compile(`\b(plan|planning|roadmap|schedule|timeline)\b`, `\bnext\s+steps?\b`, `\b(sprint|quarter|semester)\b`),
		Alignment:      compile(`\b(align|sync|review|share)\b`, `\balignment\b`, `\b(status|sync)\s+meeting\b`),
		StatusUpdate:   compile(`\b(status|update|progress|report)\b`, `\b(weekly|monthly)\b`),
		Kickoff:        compile(`\b(kickoff|kick-off|start|launch|begin|introduction)\b`, `\bfirst\s+contact\b`),
	},
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// Classify scores text against the language's patterns, adding signals from
// workstream health and priority. It never fails; with no signal it returns
// Alignment at DefaultConfidence.
func Classify(text, language string, workstreams []domain.Workstream) Classification {
	scores := map[Intent]float64{}
	var hits []string
	lower := strings.ToLower(text)
	for _, lang := range []string{NormalizeLanguage(language), LangEN} {
		for _, in := range All {
			for _, re := range patterns[lang][in] {
				if m := re.FindString(lower); m != "" {
					scores[in] += 3
					hits = append(hits, string(in)+":"+m)
				}
			}
		}
		if NormalizeLanguage(language) == LangEN {
			break
		}
	}
	for _, ws := range workstreams {
		if ws.Health == domain.HealthYellow || ws.Health == domain.HealthRed {
			scores[ProblemSolving] += 2
		}
		if ws.Priority >= 3 {
			scores[DecisionMaking]++
		}
	}

	ranked := make([]Intent, len(All))
	copy(ranked, All)
	sort.SliceStable(ranked, func(i, j int) bool { return scores[ranked[i]] > scores[ranked[j]] })
	top, second := scores[ranked[0]], scores[ranked[1]]
	if top == 0 {
		return Classification{Intent: Alignment, Confidence: DefaultConfidence, Rationale: "no intent signal"}
	}
	conf := 0.45 + 0.5*(top-second)/top
	conf = math.Min(0.95, math.Round(conf*100)/100)
	return Classification{
		Intent:     ranked[0],
		Confidence: conf,
		Rationale:  "matched " + strings.Join(dedupe(hits), ", "),
	}
}

func dedupe(items []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range items {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Heuristic adapts Classify to the workflow's classifier capability.
type Heuristic struct{}

func (Heuristic) ClassifyIntent(_ context.Context, text, language string) (Classification, error) {
	return Classify(text, language, nil), nil
}
