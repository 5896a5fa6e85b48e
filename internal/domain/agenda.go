package domain

// AgendaVersion tags metadata produced by the workflow.
const AgendaVersion = "2.0"

// LegacyAgendaVersion tags metadata produced by the deterministic planner.
const LegacyAgendaVersion = "1.0"

// Nudge and health codes surfaced in metadata.
const (
	NudgeMacroContextMissing = "macro_context_missing"
	NudgeNoWorkstreams       = "no_workstreams_available"
	NudgeNoContext           = "no_context"
	NudgeWorkflowFallback    = "workflow_fallback"
	NudgeLowConfidence       = "low_intent_confidence"
	HealthStaleWorkstream    = "workstream_stale"
)

const (
	ProposalOK                = "ok"
	ProposalDegraded          = "degraded"
	ProposalUnmetPrecondition = "unmet_precondition"
)

type Bullet struct {
	Text  string `json:"text"`
	Why   string `json:"why"`
	Owner string `json:"owner,omitempty"`
	Due   string `json:"due,omitempty"`
}

type Item struct {
	Heading string   `json:"heading"`
	Bullets []Bullet `json:"bullets"`
}

type Section struct {
	Title        string `json:"title"`
	Minutes      int    `json:"minutes"`
	WorkstreamID string `json:"workstream_id,omitempty"`
	Items        []Item `json:"items"`
}

type Agenda struct {
	Title    string    `json:"title"`
	Minutes  int       `json:"minutes"`
	Sections []Section `json:"sections"`
}

// BulletCount counts bullets across all sections.
func (a Agenda) BulletCount() int {
	n := 0
	for _, s := range a.Sections {
		for _, it := range s.Items {
			n += len(it.Bullets)
		}
	}
	return n
}

type WorkstreamSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   Health `json:"status"`
	Priority int    `json:"priority"`
	Stale    bool   `json:"stale,omitempty"`
}

type Ref struct {
	FactID       string `json:"fact_id"`
	Type         string `json:"type"`
	Status       string `json:"status"`
	Quote        string `json:"quote,omitempty"`
	Span         *Span  `json:"span,omitempty"`
	WorkstreamID string `json:"workstream_id,omitempty"`
}

type RetrievalStats struct {
	Workstream   int  `json:"workstream"`
	Keyword      int  `json:"keyword"`
	Urgent       int  `json:"urgent"`
	Recent       int  `json:"recent"`
	DeepResearch int  `json:"deep_research"`
	Total        int  `json:"total"`
	Escalated    bool `json:"escalated"`
	Failures     int  `json:"failures,omitempty"`
}

// AgendaMetadata is the versioned sidecar. Keys are additive across versions.
type AgendaMetadata struct {
	AgendaVersion    string              `json:"agenda_v"`
	Generator        string              `json:"generator"`
	Language         string              `json:"language,omitempty"`
	Workstreams      []WorkstreamSummary `json:"workstreams"`
	Refs             []Ref               `json:"refs"`
	Nudge            string              `json:"nudge,omitempty"`
	Health           string              `json:"health,omitempty"`
	StaleWorkstreams []string            `json:"stale_workstreams,omitempty"`
	Intent           string              `json:"intent,omitempty"`
	IntentConfidence *float64            `json:"intent_confidence,omitempty"`
	QualityScore     *float64            `json:"quality_score,omitempty"`
	QualityIssues    []string            `json:"quality_issues,omitempty"`
	RefinementCount  *int                `json:"refinement_count,omitempty"`
	StepTimes        map[string]float64  `json:"step_times,omitempty"`
	RetrievalStats   *RetrievalStats     `json:"retrieval_stats,omitempty"`
	MacroSummary     string              `json:"macro_summary,omitempty"`
	FallbackReason   string              `json:"fallback_reason,omitempty"`
	RunID            string              `json:"run_id,omitempty"`
}

type SubjectInfo struct {
	Query    string  `json:"query"`
	Coverage float64 `json:"coverage"`
	Facts    int     `json:"facts"`
}

type AgendaProposal struct {
	ID                string         `json:"id,omitempty"`
	OrgID             string         `json:"org_id"`
	Agenda            Agenda         `json:"agenda"`
	Choice            string         `json:"choice"`
	Status            string         `json:"status" enum:"ok,degraded,unmet_precondition"`
	Reason            string         `json:"reason"`
	Subject           SubjectInfo    `json:"subject"`
	SupportingFactIDs []string       `json:"supporting_fact_ids"`
	Metadata          AgendaMetadata `json:"_metadata"`
	CreatedAt         string         `json:"created_at,omitempty" format:"date-time"`
}
