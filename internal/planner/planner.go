// Package planner is the deterministic agenda planner used when the workflow
// is disabled, fails, or runs out of budget. It never calls a model and never
// returns an error.
package planner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tktechnologies/meeting-agent/internal/compose"
	"github.com/tktechnologies/meeting-agent/internal/domain"
	"github.com/tktechnologies/meeting-agent/internal/intent"
	"github.com/tktechnologies/meeting-agent/internal/ranking"
	"github.com/tktechnologies/meeting-agent/internal/store"
)

const (
	Generator       = "legacy"
	maxPerItem      = 3
	defaultMinutes  = 30
	candidateLimit  = 40
	perWorkstream   = 20
	maxWorkstreams  = 3
	generalPriority = 1

	DefaultStaleAfter = 14 * 24 * time.Hour
)

type Request struct {
	OrgID              string
	Subject            string
	Language           string
	DurationMinutes    int
	DisableWorkstreams bool
	Nudge              string
	FallbackReason     string
}

type Planner struct {
	Store  store.Gateway
	Ranker ranking.Ranker
	Logger *zap.Logger
	Now    func() time.Time
	// StaleAfter caps the health of workstreams not updated within the
	// window. Zero means DefaultStaleAfter.
	StaleAfter time.Duration
}

// Plan gathers facts straight from the store and builds the agenda. Store
// failures are logged and planning continues with whatever was read.
func (p Planner) Plan(ctx context.Context, req Request) domain.AgendaProposal {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := time.Now().UTC()
	if p.Now != nil {
		now = p.Now().UTC()
	}
	in := Input{
		OrgID:           req.OrgID,
		Subject:         req.Subject,
		Language:        req.Language,
		DurationMinutes: req.DurationMinutes,
		Now:             now,
		StaleAfter:      p.StaleAfter,
		Nudge:           req.Nudge,
		FallbackReason:  req.FallbackReason,
	}
	if p.Store == nil {
		return Build(in)
	}

	candidates := map[string]domain.Fact{}
	if !req.DisableWorkstreams {
		ws, err := p.Store.ListWorkstreams(ctx, req.OrgID, store.WorkstreamFilters{Status: "active", Limit: maxWorkstreams})
		if err != nil {
			log.Warn("legacy planner: list workstreams", zap.Error(err))
		}
		in.Workstreams = ws
		if len(ws) > 0 {
			ids := make([]string, len(ws))
			for i, w := range ws {
				ids[i] = w.ID
			}
			facts, err := p.Store.GetFactsByWorkstreams(ctx, req.OrgID, ids, perWorkstream)
			if err != nil {
				log.Warn("legacy planner: workstream facts", zap.Error(err))
			}
			for _, f := range facts {
				candidates[f.ID] = f
			}
		}
	}
	if req.Subject != "" {
		facts, err := p.Store.SearchFacts(ctx, req.OrgID, req.Subject, candidateLimit)
		if err != nil {
			log.Warn("legacy planner: search", zap.Error(err))
		}
		for _, f := range facts {
			if _, ok := candidates[f.ID]; !ok {
				candidates[f.ID] = f
			}
		}
	}
	if len(candidates) == 0 {
		facts, err := p.Store.GetRecentFacts(ctx, req.OrgID, candidateLimit)
		if err != nil {
			log.Warn("legacy planner: recent facts", zap.Error(err))
		}
		for _, f := range facts {
			candidates[f.ID] = f
		}
	}
	rk := p.Ranker
	if rk.Now == nil {
		rk.Now = func() time.Time { return now }
	}
	in.Facts = ranking.Facts(rk.Rank(candidates, candidateLimit))
	return Build(in)
}

// Input is everything Build needs. Facts are expected in rank order.
type Input struct {
	OrgID           string
	Subject         string
	Language        string
	DurationMinutes int
	Workstreams     []domain.Workstream
	Facts           []domain.Fact
	Now             time.Time
	StaleAfter      time.Duration
	Nudge           string
	FallbackReason  string
}

type bucket struct {
	en, pt   string
	accepted []domain.FactType
}

var buckets = []bucket{
	{"Goals", "Objetivos", []domain.FactType{domain.FactGoal}},
	{"Decisions", "Decisões", []domain.FactType{domain.FactDecision}},
	{"Risks", "Riscos", []domain.FactType{domain.FactRisk}},
	{"Actions", "Ações", []domain.FactType{domain.FactActionItem}},
	{"Updates", "Atualizações", []domain.FactType{domain.FactStatusNote, domain.FactOther}},
}

type group struct {
	section  domain.Section
	priority int
	facts    []domain.Fact
}

// Build assembles one section per workstream with facts, plus a general
// section for unlinked facts. With nothing at all it still returns a single
// placeholder section.
func Build(in Input) domain.AgendaProposal {
	lang := intent.NormalizeLanguage(in.Language)
	pt := lang == intent.LangPT
	minutes := in.DurationMinutes
	if minutes <= 0 {
		minutes = defaultMinutes
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	if in.StaleAfter <= 0 {
		in.StaleAfter = DefaultStaleAfter
	}

	byWS := map[string][]domain.Fact{}
	selected := map[string]bool{}
	for _, w := range in.Workstreams {
		selected[w.ID] = true
	}
	var general []domain.Fact
	for _, f := range in.Facts {
		if selected[f.WorkstreamID] {
			byWS[f.WorkstreamID] = append(byWS[f.WorkstreamID], f)
		} else {
			general = append(general, f)
		}
	}

	var groups []group
	for _, w := range in.Workstreams {
		if fs := byWS[w.ID]; len(fs) > 0 {
			groups = append(groups, group{
				section:  domain.Section{Title: w.Title, WorkstreamID: w.ID},
				priority: max(1, w.Priority),
				facts:    fs,
			})
		}
	}
	generalTitle := "General discussion"
	if pt {
		generalTitle = "Discussão geral"
	}
	if len(general) > 0 || len(groups) == 0 {
		groups = append(groups, group{section: domain.Section{Title: generalTitle}, priority: generalPriority, facts: general})
	}

	var refs []domain.Ref
	var used []domain.Fact
	factIDs := []string{}
	weights := make([]float64, len(groups))
	sections := make([]domain.Section, len(groups))
	for gi, g := range groups {
		sec := g.section
		count := 0
		for _, b := range buckets {
			heading := b.en
			if pt {
				heading = b.pt
			}
			item := domain.Item{Heading: heading}
			for _, f := range g.facts {
				if len(item.Bullets) == maxPerItem {
					break
				}
				if !typeIn(f.Type, b.accepted) {
					continue
				}
				item.Bullets = append(item.Bullets, compose.Bullet(f, lang, in.Now))
				refs = append(refs, compose.Ref(f))
				used = append(used, f)
				factIDs = append(factIDs, f.ID)
				count++
			}
			if len(item.Bullets) > 0 {
				sec.Items = append(sec.Items, item)
			}
		}
		if len(sec.Items) == 0 {
			text := "Review open topics and agree on next steps"
			if pt {
				text = "Revisar tópicos em aberto e combinar próximos passos"
			}
			sec.Items = []domain.Item{{Heading: sec.Title, Bullets: []domain.Bullet{{Text: text}}}}
		}
		sections[gi] = sec
		weights[gi] = float64(g.priority) * float64(2+min(5, count))
	}
	alloc := compose.Allocate(minutes, weights, 0.4)
	for i := range sections {
		sections[i].Minutes = alloc[i]
	}

	agenda := domain.Agenda{
		Title:    compose.Title(in.Subject, "", lang, in.Workstreams),
		Minutes:  minutes,
		Sections: sections,
	}
	summaries := []domain.WorkstreamSummary{}
	var staleIDs []string
	for _, w := range in.Workstreams {
		h, stale := w.EffectiveHealth(in.Now, in.StaleAfter)
		summaries = append(summaries, domain.WorkstreamSummary{ID: w.ID, Title: w.Title, Status: h, Priority: w.Priority, Stale: stale})
		if stale {
			staleIDs = append(staleIDs, w.ID)
		}
	}
	health := ""
	if len(staleIDs) > 0 {
		health = domain.HealthStaleWorkstream
	}
	if refs == nil {
		refs = []domain.Ref{}
	}
	status := domain.ProposalOK
	reason := "deterministic agenda from stored facts"
	if len(used) == 0 {
		status = domain.ProposalDegraded
		reason = "no facts available; agenda holds placeholder guidance"
	}
	if in.FallbackReason != "" {
		reason = "workflow fallback: " + in.FallbackReason
	}
	return domain.AgendaProposal{
		OrgID:  in.OrgID,
		Agenda: agenda,
		Choice: Generator,
		Status: status,
		Reason: reason,
		Subject: domain.SubjectInfo{
			Query:    in.Subject,
			Coverage: compose.Coverage(used, agenda.BulletCount(), len(sections)),
			Facts:    len(used),
		},
		SupportingFactIDs: factIDs,
		Metadata: domain.AgendaMetadata{
			AgendaVersion:    domain.LegacyAgendaVersion,
			Generator:        Generator,
			Workstreams:      summaries,
			Refs:             refs,
			Nudge:            in.Nudge,
			Health:           health,
			StaleWorkstreams: staleIDs,
			FallbackReason:   in.FallbackReason,
		},
		CreatedAt: domain.FormatTime(in.Now),
	}
}

func typeIn(t domain.FactType, set []domain.FactType) bool {
	for _, s := range set {
		if s == t {
			return true
		}
	}
	return false
}
