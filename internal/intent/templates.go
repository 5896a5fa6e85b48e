package intent

import "github.com/tktechnologies/meeting-agent/internal/domain"

type Role string

const (
	RoleOpening Role = "opening"
	RoleCore    Role = "core"
	RoleClosing Role = "closing"
)

// SectionTemplate is one suggested section. Share is the fraction of the
// meeting it should take; Accepts lists the fact types drafted into it.
type SectionTemplate struct {
	Key     string
	Title   string
	Share   float64
	Role    Role
	Accepts []domain.FactType
}

type Template struct {
	Intent      Intent
	Language    string
	Focus       string
	Sections    []SectionTemplate
	MinSections int
}

// Core returns the sections between opening and closing.
func (t Template) Core() []SectionTemplate {
	var out []SectionTemplate
	for _, s := range t.Sections {
		if s.Role == RoleCore {
			out = append(out, s)
		}
	}
	return out
}

func (t Template) Section(role Role) (SectionTemplate, bool) {
	for _, s := range t.Sections {
		if s.Role == role {
			return s, true
		}
	}
	return SectionTemplate{}, false
}

var accepts = map[string][]domain.FactType{
	"context":     {domain.FactStatusNote, domain.FactGoal},
	"status":      {domain.FactStatusNote},
	"milestones":  {domain.FactStatusNote, domain.FactGoal},
	"metrics":     {domain.FactStatusNote},
	"objectives":  {domain.FactGoal},
	"decisions":   {domain.FactDecision},
	"impacts":     {domain.FactRisk, domain.FactActionItem},
	"problems":    {domain.FactRisk},
	"blockers":    {domain.FactRisk},
	"solutions":   {domain.FactDecision, domain.FactOther},
	"questions":   {domain.FactOther, domain.FactDecision},
	"actions":     {domain.FactActionItem},
	"roadmap":     {domain.FactActionItem, domain.FactGoal},
	"resources":   {domain.FactOther, domain.FactRisk},
	"next_period": {domain.FactActionItem, domain.FactGoal},
	"scope":       {domain.FactGoal, domain.FactOther},
	"roles":       {domain.FactOther},
	"timeline":    {domain.FactActionItem},
	"next_steps":  {domain.FactActionItem},
}

type row struct {
	key   string
	en    string
	pt    string
	share float64
}

var rows = map[Intent][]row{
	DecisionMaking: {
		{"opening", "Opening", "Abertura", 0.10},
		{"context", "Context", "Contexto", 0.15},
		{"decisions", "Decisions Needed", "Decisões Necessárias", 0.40},
		{"impacts", "Impacts & Risks", "Impactos e Riscos", 0.25},
		{"next_steps", "Action Items", "Próximos Passos", 0.10},
	},
	ProblemSolving: {
		{"opening", "Opening", "Abertura", 0.08},
		{"problems", "Problems & Blockers", "Problemas e Bloqueios", 0.35},
		{"solutions", "Proposed Solutions", "Soluções Propostas", 0.30},
		{"actions", "Actions & Owners", "Ações e Responsáveis", 0.20},
		{"next_steps", "Next Steps", "Próximos Passos", 0.07},
	},
	Planning: {
		{"opening", "Opening", "Abertura", 0.10},
		{"objectives", "Objectives & Milestones", "Objetivos e Marcos", 0.25},
		{"roadmap", "Roadmap & Timeline", "Roadmap e Cronograma", 0.30},
		{"resources", "Resources & Dependencies", "Recursos e Dependências", 0.20},
		{"next_steps", "Next Steps", "Próximos Passos", 0.15},
	},
	Alignment: {
		{"opening", "Opening", "Abertura", 0.10},
		{"status", "Current Status", "Status Atual", 0.25},
		{"questions", "Questions & Alignment", "Dúvidas e Alinhamentos", 0.35},
		{"decisions", "Minor Decisions", "Decisões Menores", 0.20},
		{"next_steps", "Next Steps", "Próximos Passos", 0.10},
	},
	StatusUpdate: {
		{"opening", "Opening", "Abertura", 0.08},
		{"milestones", "Milestones Reached", "Marcos Atingidos", 0.20},
		{"metrics", "Metrics & Progress", "Métricas e Progresso", 0.25},
		{"blockers", "Blockers & Risks", "Bloqueios e Riscos", 0.25},
		{"next_period", "Next Period", "Próximo Período", 0.15},
		{"next_steps", "Actions", "Ações", 0.07},
	},
	Kickoff: {
		{"opening", "Introductions", "Apresentações", 0.15},
		{"objectives", "Project Objectives", "Objetivos do Projeto", 0.20},
		{"scope", "Scope & Deliverables", "Escopo e Entregas", 0.25},
		{"roles", "Roles & Responsibilities", "Papéis e Responsabilidades", 0.15},
		{"timeline", "Initial Timeline", "Cronograma Inicial", 0.15},
		{"next_steps", "First Steps", "Primeiros Passos", 0.10},
	},
}

var focus = map[Intent]string{
	DecisionMaking: "decisions",
	ProblemSolving: "problems",
	Planning:       "planning",
	Alignment:      "alignment",
	StatusUpdate:   "status",
	Kickoff:        "kickoff",
}

// TemplateFor returns the section template of an intent. Unknown intents get
// the alignment template.
func TemplateFor(in Intent, language string) Template {
	lang := NormalizeLanguage(language)
	rs, ok := rows[in]
	if !ok {
		in = Alignment
		rs = rows[Alignment]
	}
	t := Template{Intent: in, Language: lang, Focus: focus[in]}
	for _, r := range rs {
		title := r.en
		if lang == LangPT {
			title = r.pt
		}
		role := RoleCore
		switch r.key {
		case "opening":
			role = RoleOpening
		case "next_steps":
			role = RoleClosing
		}
		t.Sections = append(t.Sections, SectionTemplate{Key: r.key, Title: title, Share: r.share, Role: role, Accepts: accepts[r.key]})
	}
	t.MinSections = len(t.Sections) - 2
	return t
}

// ParkingLot is the title of the trailing catch-all section.
func ParkingLot(language string) string {
	if NormalizeLanguage(language) == LangPT {
		return "Estacionamento"
	}
	return "Parking Lot"
}
