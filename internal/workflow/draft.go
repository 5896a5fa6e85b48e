package workflow

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/tktechnologies/meeting-agent/internal/compose"
	"github.com/tktechnologies/meeting-agent/internal/domain"
	"github.com/tktechnologies/meeting-agent/internal/intent"
	"github.com/tktechnologies/meeting-agent/internal/ranking"
)

const (
	maxPerItem       = 4
	maxPerSection    = 8
	maxClosing       = 6
	maxCarryOver     = 3
	maxParking       = 4
	minParking       = 2
	parkingLotWeight = 0.05
)

// placement ties a drafted bullet back to the fact it came from.
type placement struct {
	section, item, bullet int
	fact                  domain.Fact
}

type draft struct {
	agenda    domain.Agenda
	placed    []placement
	refs      []domain.Ref
	factIDs   []string
	facts     []domain.Fact
	uncovered []intent.SectionTemplate
	// units counts template sections represented in the agenda, opening and
	// closing included.
	units        int
	placeholders bool
	parkingLot   string
}

type plannedSection struct {
	section domain.Section
	weight  float64
	facts   [][]domain.Fact
}

func (w *Workflow) draftAgenda(ctx context.Context, st *state, cfg Config) error {
	d := buildDraft(st, cfg)
	if w.Drafter != nil {
		w.polish(ctx, st, &d)
	}
	st.draft = d
	return nil
}

// buildDraft lays out Opening, the core sections, the closing section and an
// optional Parking Lot, then allocates minutes. It never calls out.
func buildDraft(st *state, cfg Config) draft {
	tpl := st.template
	lang := st.language
	facts := ranking.Facts(st.ranked)

	var closingFacts, rest []domain.Fact
	for _, f := range facts {
		if f.Type == domain.FactActionItem && compose.HasOwnerOrDue(f) && len(closingFacts) < maxClosing {
			closingFacts = append(closingFacts, f)
			continue
		}
		rest = append(rest, f)
	}

	openTpl, _ := tpl.Section(intent.RoleOpening)
	closeTpl, _ := tpl.Section(intent.RoleClosing)
	coreShare := 1 - openTpl.Share - closeTpl.Share

	var plans []plannedSection
	plans = append(plans, opening(st, openTpl))

	var core []plannedSection
	var leftovers []domain.Fact
	placeholders := false
	switch {
	case st.noContext || len(facts) == 0:
		core = placeholderSections(tpl, lang)
		placeholders = true
	case workstreamMode(st, rest):
		core, leftovers = workstreamSections(st, tpl, rest)
	default:
		core, leftovers = typeSections(tpl, rest)
	}

	parking := parkingFacts(leftovers)
	if len(parking) > 0 {
		coreShare -= parkingLotWeight
	}
	normalize(core, coreShare)
	plans = append(plans, core...)
	plans = append(plans, closing(closeTpl, closingFacts, lang))
	if len(parking) > 0 {
		plans = append(plans, plannedSection{
			section: domain.Section{Title: intent.ParkingLot(lang)},
			weight:  parkingLotWeight,
			facts:   [][]domain.Fact{parking},
		})
	}

	d := draft{placeholders: placeholders, parkingLot: intent.ParkingLot(lang)}
	weights := make([]float64, len(plans))
	for i, p := range plans {
		weights[i] = p.weight
	}
	minutes := compose.Allocate(st.minutes, weights, cfg.DominanceCap)
	d.agenda = domain.Agenda{Minutes: st.minutes}
	for si, p := range plans {
		sec := p.section
		sec.Minutes = minutes[si]
		for ii := range sec.Items {
			if ii >= len(p.facts) {
				continue
			}
			for _, f := range p.facts[ii] {
				sec.Items[ii].Bullets = append(sec.Items[ii].Bullets, compose.Bullet(f, lang, st.now))
				d.placed = append(d.placed, placement{section: si, item: ii, bullet: len(sec.Items[ii].Bullets) - 1, fact: f})
				d.refs = append(d.refs, compose.Ref(f))
				d.factIDs = append(d.factIDs, f.ID)
				d.facts = append(d.facts, f)
			}
		}
		d.agenda.Sections = append(d.agenda.Sections, sec)
	}

	present := map[domain.FactType]bool{}
	for _, f := range d.facts {
		present[f.Type] = true
	}
	for _, sec := range tpl.Core() {
		covered := false
		for _, t := range sec.Accepts {
			if present[t] {
				covered = true
				break
			}
		}
		if !covered {
			d.uncovered = append(d.uncovered, sec)
		}
	}
	d.units = 2 + len(tpl.Core()) - len(d.uncovered)
	return d
}

func opening(st *state, t intent.SectionTemplate) plannedSection {
	pt := st.language == intent.LangPT
	goalHeading, carryHeading := "Goal", "Carry-over"
	if pt {
		goalHeading, carryHeading = "Meta", "Pendências"
	}
	goal := domain.Item{Heading: goalHeading, Bullets: []domain.Bullet{{
		Text: compose.Goal(string(st.class.Intent), st.subject, st.language, st.workstreams),
	}}}
	for _, ws := range st.workstreams {
		if !st.stale[ws.ID] {
			continue
		}
		text := "Refresh status: " + ws.Title + " has no recent update"
		if pt {
			text = "Atualizar status: " + ws.Title + " sem atualização recente"
		}
		goal.Bullets = append(goal.Bullets, domain.Bullet{Text: compose.Truncate(text, compose.MaxBulletText)})
	}
	items := []domain.Item{goal}

	var carry []domain.Bullet
	for _, m := range st.history {
		for _, open := range m.OpenItems {
			if open = strings.TrimSpace(open); open != "" && len(carry) < maxCarryOver {
				carry = append(carry, domain.Bullet{Text: compose.Truncate(open, compose.MaxBulletText)})
			}
		}
	}
	if len(carry) > 0 {
		items = append(items, domain.Item{Heading: carryHeading, Bullets: carry})
	}
	return plannedSection{section: domain.Section{Title: t.Title, Items: items}, weight: t.Share}
}

func closing(t intent.SectionTemplate, facts []domain.Fact, lang string) plannedSection {
	p := plannedSection{section: domain.Section{Title: t.Title}, weight: t.Share}
	if len(facts) == 0 {
		text := "Confirm owners and due dates"
		if lang == intent.LangPT {
			text = "Confirmar responsáveis e prazos"
		}
		p.section.Items = []domain.Item{{Heading: t.Title, Bullets: []domain.Bullet{{Text: text}}}}
		return p
	}
	p.section.Items = []domain.Item{{Heading: t.Title}}
	p.facts = [][]domain.Fact{facts}
	return p
}

func placeholderSections(tpl intent.Template, lang string) []plannedSection {
	var out []plannedSection
	for _, sec := range tpl.Core() {
		text := "Collect input on " + strings.ToLower(sec.Title)
		if lang == intent.LangPT {
			text = "Levantar informações sobre " + strings.ToLower(sec.Title)
		}
		out = append(out, plannedSection{
			section: domain.Section{Title: sec.Title, Items: []domain.Item{{Heading: sec.Title, Bullets: []domain.Bullet{{Text: text}}}}},
			weight:  sec.Share,
		})
	}
	return out
}

// workstreamMode is true when at least one fact is linked to a selected
// workstream.
func workstreamMode(st *state, facts []domain.Fact) bool {
	if len(st.workstreams) == 0 {
		return false
	}
	selected := map[string]bool{}
	for _, ws := range st.workstreams {
		selected[ws.ID] = true
	}
	for _, f := range facts {
		if selected[f.WorkstreamID] {
			return true
		}
	}
	return false
}

// workstreamSections emits one section per selected workstream that has
// linked facts, with items following the intent's core sections. Facts not
// linked to a selected workstream share one related-topics section.
func workstreamSections(st *state, tpl intent.Template, facts []domain.Fact) ([]plannedSection, []domain.Fact) {
	byWS := map[string][]domain.Fact{}
	var unlinked []domain.Fact
	selected := map[string]bool{}
	for _, ws := range st.workstreams {
		selected[ws.ID] = true
	}
	for _, f := range facts {
		if selected[f.WorkstreamID] {
			byWS[f.WorkstreamID] = append(byWS[f.WorkstreamID], f)
		} else {
			unlinked = append(unlinked, f)
		}
	}

	var out []plannedSection
	var leftovers []domain.Fact
	for _, ws := range st.workstreams {
		group := byWS[ws.ID]
		if len(group) == 0 {
			continue
		}
		p, left := groupedSection(ws.Title, tpl, group, st.language)
		p.section.WorkstreamID = ws.ID
		prio := ws.Priority
		if prio < 1 {
			prio = 1
		}
		p.weight = float64(prio) * float64(2+min(5, bulletCount(p)))
		out = append(out, p)
		leftovers = append(leftovers, left...)
	}
	if len(unlinked) > 0 {
		title := "Related Topics"
		if st.language == intent.LangPT {
			title = "Tópicos Relacionados"
		}
		p, left := groupedSection(title, tpl, unlinked, st.language)
		p.weight = float64(2 + min(5, bulletCount(p)))
		out = append(out, p)
		leftovers = append(leftovers, left...)
	}
	return out, leftovers
}

// groupedSection distributes facts across items named after the template's
// core sections. A fact goes to the first core section accepting its type.
func groupedSection(title string, tpl intent.Template, facts []domain.Fact, lang string) (plannedSection, []domain.Fact) {
	core := tpl.Core()
	buckets := make([][]domain.Fact, len(core)+1)
	var leftovers []domain.Fact
	total := 0
	for _, f := range facts {
		idx := len(core)
		for i, sec := range core {
			if accepts(sec, f.Type) {
				idx = i
				break
			}
		}
		if len(buckets[idx]) >= maxPerItem || total >= maxPerSection {
			leftovers = append(leftovers, f)
			continue
		}
		buckets[idx] = append(buckets[idx], f)
		total++
	}
	p := plannedSection{section: domain.Section{Title: title}}
	for i, b := range buckets {
		if len(b) == 0 {
			continue
		}
		heading := "Other"
		if lang == intent.LangPT {
			heading = "Outros"
		}
		if i < len(core) {
			heading = core[i].Title
		}
		p.section.Items = append(p.section.Items, domain.Item{Heading: heading})
		p.facts = append(p.facts, b)
	}
	return p, leftovers
}

// typeSections fills the template's core sections by fact type. Types no
// core section accepts fall into the first section accepting "other".
func typeSections(tpl intent.Template, facts []domain.Fact) ([]plannedSection, []domain.Fact) {
	core := tpl.Core()
	buckets := make([][]domain.Fact, len(core))
	var leftovers []domain.Fact
	fallback := -1
	for i, sec := range core {
		if accepts(sec, domain.FactOther) {
			fallback = i
			break
		}
	}
	for _, f := range facts {
		idx := -1
		for i, sec := range core {
			if accepts(sec, f.Type) {
				idx = i
				break
			}
		}
		if idx < 0 {
			idx = fallback
		}
		if idx < 0 || len(buckets[idx]) >= maxPerSection {
			leftovers = append(leftovers, f)
			continue
		}
		buckets[idx] = append(buckets[idx], f)
	}
	var out []plannedSection
	for i, sec := range core {
		if len(buckets[i]) == 0 {
			continue
		}
		out = append(out, plannedSection{
			section: domain.Section{Title: sec.Title, Items: []domain.Item{{Heading: sec.Title}}},
			weight:  sec.Share,
			facts:   [][]domain.Fact{buckets[i]},
		})
	}
	return out, leftovers
}

// parkingFacts keeps low-stakes leftovers. Decisions, risks and action items
// are never parked; fewer than two leftovers produce no Parking Lot.
func parkingFacts(leftovers []domain.Fact) []domain.Fact {
	var out []domain.Fact
	for _, f := range leftovers {
		switch f.Type {
		case domain.FactDecision, domain.FactRisk, domain.FactActionItem:
			continue
		}
		out = append(out, f)
		if len(out) == maxParking {
			break
		}
	}
	if len(out) < minParking {
		return nil
	}
	return out
}

// normalize scales section weights so they sum to share.
func normalize(sections []plannedSection, share float64) {
	sum := 0.0
	for _, s := range sections {
		sum += s.weight
	}
	if sum <= 0 || share <= 0 {
		return
	}
	for i := range sections {
		sections[i].weight = sections[i].weight / sum * share
	}
}

func accepts(sec intent.SectionTemplate, t domain.FactType) bool {
	for _, a := range sec.Accepts {
		if a == t {
			return true
		}
	}
	return false
}

func bulletCount(p plannedSection) int {
	n := 0
	for _, fs := range p.facts {
		n += len(fs)
	}
	return n
}

// polish asks the drafter to reword each section's bullets. Results with a
// different count are dropped; failures keep the deterministic text.
func (w *Workflow) polish(ctx context.Context, st *state, d *draft) {
	for si := range d.agenda.Sections {
		sec := &d.agenda.Sections[si]
		var texts []string
		for _, it := range sec.Items {
			for _, b := range it.Bullets {
				texts = append(texts, b.Text)
			}
		}
		if len(texts) == 0 {
			continue
		}
		out, err := w.Drafter.DraftSection(ctx, SectionRequest{
			Subject:  st.subject,
			Language: st.language,
			Intent:   st.class.Intent,
			Section:  sec.Title,
			Bullets:  texts,
		})
		if err != nil {
			w.logger().Warn("section drafter failed", zap.String("section", sec.Title), zap.Error(err))
			continue
		}
		if len(out) != len(texts) {
			w.logger().Warn("section drafter changed bullet count", zap.String("section", sec.Title),
				zap.Int("want", len(texts)), zap.Int("got", len(out)))
			continue
		}
		k := 0
		for ii := range sec.Items {
			for bi := range sec.Items[ii].Bullets {
				if s := strings.TrimSpace(out[k]); s != "" {
					sec.Items[ii].Bullets[bi].Text = compose.Truncate(s, compose.MaxBulletText)
				}
				k++
			}
		}
	}
}
