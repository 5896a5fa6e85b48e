package retrieval

import (
	"strings"
	"unicode"

	"github.com/tktechnologies/meeting-agent/internal/domain"
)

type pool struct {
	facts map[string]domain.Fact
}

func newPool() *pool {
	return &pool{facts: map[string]domain.Fact{}}
}

func (p *pool) len() int { return len(p.facts) }

func (p *pool) addAll(facts []domain.Fact) {
	for _, f := range facts {
		p.add(f)
	}
}

// add merges a fact into the pool. On collision the heavier workstream link
// and the richer evidence payload win.
func (p *pool) add(f domain.Fact) {
	cur, ok := p.facts[f.ID]
	if !ok {
		p.facts[f.ID] = f
		return
	}
	if f.LinkWeight != nil && (cur.LinkWeight == nil || *f.LinkWeight > *cur.LinkWeight) {
		cur.WorkstreamID = f.WorkstreamID
		cur.LinkWeight = f.LinkWeight
	}
	if richness(f) > richness(cur) {
		cur.Payload = f.Payload
	}
	p.facts[f.ID] = cur
}

func richness(f domain.Fact) int {
	n := 0
	for _, ev := range f.Payload.Evidence {
		if ev.Quote != "" {
			n += 2
		}
		if ev.Span != nil {
			n++
		}
	}
	return n
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "about": true, "meeting": true, "agenda": true, "next": true,
	"our": true, "from": true, "this": true, "that": true, "sync": true, "general": true,
	"para": true, "com": true, "sobre": true, "reunião": true, "reuniao": true, "pauta": true, "das": true, "dos": true, "uma": true, "próxima": true,
}

// Keywords builds the search terms: extra keywords first, then subject words,
// then workstream tags. Words shorter than three letters and stopwords are
// dropped, duplicates collapse, and at most max are kept.
func Keywords(subject string, workstreams []domain.Workstream, extra []string, max int) []string {
	var out []string
	seen := map[string]bool{}
	push := func(w string) {
		w = strings.ToLower(strings.TrimSpace(w))
		if len([]rune(w)) < 3 || stopwords[w] || seen[w] {
			return
		}
		seen[w] = true
		out = append(out, w)
	}
	for _, e := range extra {
		push(e)
	}
	for _, w := range strings.FieldsFunc(subject, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' }) {
		push(w)
	}
	for _, ws := range workstreams {
		for _, t := range ws.Tags {
			push(t)
		}
	}
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}
