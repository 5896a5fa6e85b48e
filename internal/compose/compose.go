// Package compose holds the agenda building blocks shared by the workflow and
// the legacy planner: bullet text, evidence justifications, references,
// titles and minute allocation.
package compose

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tktechnologies/meeting-agent/internal/domain"
)

const (
	MaxBulletText = 120
	MaxWhy        = 150
	overdueMark   = "Overdue | "
)

var (
	decidePrefix   = regexp.MustCompile(`(?i)^(decide|decidir|aprovar|approve)\s*:?\s+`)
	mitigatePrefix = regexp.MustCompile(`(?i)^(mitigate( risk)?|mitigar( risco)?|risco|risk)\s*:?\s+`)
	achievePrefix  = regexp.MustCompile(`(?i)^(achieve|alcançar)\s*:?\s+`)
	spaces         = regexp.MustCompile(`\s+`)
)

func isPT(lang string) bool {
	return strings.HasPrefix(strings.ToLower(lang), "pt")
}

// Text renders the bullet text of a fact with its type prefix, capped at
// MaxBulletText runes.
func Text(f domain.Fact, lang string) string {
	base := strings.TrimSpace(spaces.ReplaceAllString(f.Payload.Text, " "))
	if base == "" {
		base = strings.TrimSpace(f.FirstQuote())
	}
	if base == "" {
		base = string(f.Type)
	}
	pt := isPT(lang)
	switch f.Type {
	case domain.FactDecision:
		base = strings.TrimRight(decidePrefix.ReplaceAllString(base, ""), ". ")
		if pt {
			base = "Decidir: " + base
		} else {
			base = "Decide: " + base
		}
	case domain.FactRisk:
		base = mitigatePrefix.ReplaceAllString(base, "")
		if pt {
			base = "Mitigar risco: " + base
		} else {
			base = "Mitigate risk: " + base
		}
	case domain.FactGoal:
		base = achievePrefix.ReplaceAllString(base, "")
		if pt {
			base = "Alcançar: " + base
		} else {
			base = "Achieve: " + base
		}
	}
	return Truncate(base, MaxBulletText)
}

// Why returns the evidence justification of a fact, or "" when it has no
// quote. Overdue facts are marked.
func Why(f domain.Fact, now time.Time) string {
	q := strings.TrimSpace(f.FirstQuote())
	if q == "" {
		return ""
	}
	q = Truncate(q, MaxWhy)
	if due, ok := f.Due(); ok && due.Before(now) {
		return overdueMark + q
	}
	return q
}

func Bullet(f domain.Fact, lang string, now time.Time) domain.Bullet {
	b := domain.Bullet{
		Text:  Text(f, lang),
		Why:   Why(f, now),
		Owner: strings.TrimSpace(f.Payload.Owner),
	}
	if due, ok := f.Due(); ok {
		b.Due = due.Format("2006-01-02")
	}
	return b
}

func Ref(f domain.Fact) domain.Ref {
	r := domain.Ref{
		FactID:       f.ID,
		Type:         string(f.Type),
		Status:       string(f.Status),
		Quote:        f.FirstQuote(),
		WorkstreamID: f.WorkstreamID,
	}
	for _, ev := range f.Payload.Evidence {
		if ev.Span != nil {
			sp := *ev.Span
			r.Span = &sp
			break
		}
	}
	return r
}

// HasOwnerOrDue reports whether the fact payload supports owner or due.
func HasOwnerOrDue(f domain.Fact) bool {
	_, ok := f.Due()
	return ok || strings.TrimSpace(f.Payload.Owner) != ""
}

func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n-1])) + "…"
}

var goals = map[string][2]string{
	"decision_making": {"Make decisions about %s", "Tomar decisões sobre %s"},
	"problem_solving": {"Resolve problems related to %s", "Resolver problemas relacionados a %s"},
	"planning":        {"Plan actions for %s", "Planejar ações para %s"},
	"alignment":       {"Align understanding of %s", "Alinhar entendimento sobre %s"},
	"status_update":   {"Update status of %s", "Atualizar status de %s"},
	"kickoff":         {"Kickoff work on %s", "Iniciar trabalho em %s"},
}

// Goal renders the opening goal phrase. A single workstream that is not
// green adds its health as a suffix.
func Goal(intent, subject, lang string, workstreams []domain.Workstream) string {
	if subject == "" {
		subject = NextMeeting(lang)
	}
	text := subject
	if g, ok := goals[intent]; ok {
		tmpl := g[0]
		if isPT(lang) {
			tmpl = g[1]
		}
		text = strings.Replace(tmpl, "%s", subject, 1)
	}
	if len(workstreams) == 1 && workstreams[0].Health != domain.HealthGreen && workstreams[0].Health != "" {
		text += " (Status: " + string(workstreams[0].Health) + ")"
	}
	return Truncate(text, MaxBulletText)
}

func NextMeeting(lang string) string {
	if isPT(lang) {
		return "a próxima reunião"
	}
	return "the next meeting"
}

var intentTitles = map[string][2]string{
	"decision_making": {"Decision Meeting", "Reunião de Decisões"},
	"problem_solving": {"Problem Solving", "Resolução de Problemas"},
	"planning":        {"Planning Session", "Planejamento"},
	"alignment":       {"Alignment Meeting", "Alinhamento"},
	"status_update":   {"Status Update", "Atualização de Status"},
	"kickoff":         {"Kickoff Meeting", "Kickoff"},
}

// Title follows the order: single workstream title, subject, intent title.
func Title(subject, intent, lang string, workstreams []domain.Workstream) string {
	pt := isPT(lang)
	if len(workstreams) == 1 && workstreams[0].Title != "" {
		if pt {
			return "Reunião: " + workstreams[0].Title
		}
		return "Meeting: " + workstreams[0].Title
	}
	if s := strings.TrimSpace(subject); s != "" {
		return s
	}
	if t, ok := intentTitles[intent]; ok {
		if pt {
			return t[1]
		}
		return t[0]
	}
	if pt {
		return "Reunião"
	}
	return "Meeting"
}

// Coverage is 0.4 + 0.4·type diversity + 0.2·bullet density, where
// diversity counts distinct fact types out of five and density is bullets
// per section against a target of three.
func Coverage(facts []domain.Fact, bullets, sections int) float64 {
	if len(facts) == 0 {
		return 0
	}
	types := map[domain.FactType]bool{}
	for _, f := range facts {
		types[f.Type] = true
	}
	diversity := math.Min(1, float64(len(types))/5)
	density := 0.0
	if sections > 0 {
		density = math.Min(1, float64(bullets)/float64(sections*3))
	}
	return math.Round((0.4+0.4*diversity+0.2*density)*100) / 100
}

// Allocate splits total minutes across weights. No entry exceeds capShare of
// the total while another entry can still absorb the excess, and the result
// sums exactly to total using largest remainders.
func Allocate(total int, weights []float64, capShare float64) []int {
	n := len(weights)
	out := make([]int, n)
	if n == 0 || total <= 0 {
		return out
	}
	shares := make([]float64, n)
	sum := 0.0
	for i, w := range weights {
		if w > 0 {
			shares[i] = w
			sum += w
		}
	}
	if sum == 0 {
		for i := range shares {
			shares[i] = 1
		}
		sum = float64(n)
	}
	for i := range shares {
		shares[i] /= sum
	}
	if capShare > 0 && capShare*float64(n) >= 1 {
		shares = capShares(shares, capShare)
	}

	type rem struct {
		i    int
		frac float64
	}
	rems := make([]rem, n)
	used := 0
	for i, s := range shares {
		exact := s * float64(total)
		out[i] = int(math.Floor(exact))
		used += out[i]
		rems[i] = rem{i, exact - float64(out[i])}
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].frac > rems[b].frac })
	for k := 0; used < total; k = (k + 1) % n {
		out[rems[k].i]++
		used++
	}
	return out
}

// capShares moves share above c to the uncapped entries in proportion to
// their own share until nothing exceeds c.
func capShares(shares []float64, c float64) []float64 {
	out := append([]float64(nil), shares...)
	capped := make([]bool, len(out))
	for iter := 0; iter < len(out); iter++ {
		excess := 0.0
		for i, s := range out {
			if s > c+1e-9 {
				excess += s - c
				out[i] = c
				capped[i] = true
			}
		}
		if excess == 0 {
			break
		}
		free := 0.0
		for i, s := range out {
			if !capped[i] {
				free += s
			}
		}
		if free == 0 {
			break
		}
		for i, s := range out {
			if !capped[i] {
				out[i] = s + excess*s/free
			}
		}
	}
	return out
}
