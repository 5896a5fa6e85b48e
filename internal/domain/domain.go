package domain

import "time"

type FactType string

const (
	FactDecision   FactType = "decision"
	FactRisk       FactType = "risk"
	FactActionItem FactType = "action_item"
	FactStatusNote FactType = "status"
	FactGoal       FactType = "goal"
	FactOther      FactType = "other"
)

// FactTypes lists every fact type in ranking preference order.
var FactTypes = []FactType{FactDecision, FactRisk, FactActionItem, FactStatusNote, FactGoal, FactOther}

func (t FactType) Valid() bool {
	for _, ft := range FactTypes {
		if ft == t {
			return true
		}
	}
	return false
}

type FactStatus string

const (
	StatusDraft     FactStatus = "draft"
	StatusProposed  FactStatus = "proposed"
	StatusPublished FactStatus = "published"
	StatusValidated FactStatus = "validated"
)

// Ordinal returns the total order draft < proposed < published < validated.
// Unknown statuses rank with draft.
func (s FactStatus) Ordinal() int {
	switch s {
	case StatusValidated:
		return 3
	case StatusPublished:
		return 2
	case StatusProposed:
		return 1
	default:
		return 0
	}
}

func (s FactStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusProposed, StatusPublished, StatusValidated:
		return true
	}
	return false
}

const (
	SourceInternal     = "internal"
	SourceDeepResearch = "deep_research"
)

// Span is a character range into the source document of a quote.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type Evidence struct {
	Quote string `json:"quote"`
	Span  *Span  `json:"span,omitempty"`
}

type FactPayload struct {
	Text     string         `json:"text"`
	Owner    string         `json:"owner,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
	Evidence []Evidence     `json:"evidence,omitempty"`
	Quality  *float64       `json:"quality,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

type Fact struct {
	ID           string      `json:"id"`
	OrgID        string      `json:"org_id"`
	Type         FactType    `json:"type" enum:"decision,risk,action_item,status,goal,other"`
	Status       FactStatus  `json:"status" enum:"draft,proposed,published,validated"`
	Payload      FactPayload `json:"payload"`
	Source       string      `json:"source,omitempty"`
	CreatedAt    string      `json:"created_at" format:"date-time"`
	UpdatedAt    string      `json:"updated_at,omitempty" format:"date-time"`
	DueAt        *string     `json:"due_at,omitempty" format:"date-time"`
	WorkstreamID string      `json:"workstream_id,omitempty"`
	LinkWeight   *float64    `json:"link_weight,omitempty"`
}

func (f Fact) Created() time.Time {
	return ParseTime(f.CreatedAt)
}

// Due returns the due time when one is set and parseable.
func (f Fact) Due() (time.Time, bool) {
	if f.DueAt == nil || *f.DueAt == "" {
		return time.Time{}, false
	}
	t := ParseTime(*f.DueAt)
	return t, !t.IsZero()
}

func (f Fact) Weight() float64 {
	if f.LinkWeight == nil {
		return 1
	}
	return *f.LinkWeight
}

// FirstQuote returns the first evidence quote longer than 20 characters,
// falling back to the first non-empty quote.
func (f Fact) FirstQuote() string {
	fallback := ""
	for _, ev := range f.Payload.Evidence {
		if len(ev.Quote) > 20 {
			return ev.Quote
		}
		if fallback == "" && ev.Quote != "" {
			fallback = ev.Quote
		}
	}
	return fallback
}

type Health string

const (
	HealthGreen  Health = "green"
	HealthYellow Health = "yellow"
	HealthRed    Health = "red"
)

func (h Health) Valid() bool {
	return h == HealthGreen || h == HealthYellow || h == HealthRed
}

// Severity orders health for selection: red first.
func (h Health) Severity() int {
	switch h {
	case HealthRed:
		return 2
	case HealthYellow:
		return 1
	default:
		return 0
	}
}

type Workstream struct {
	ID          string   `json:"id"`
	OrgID       string   `json:"org_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status" enum:"active,paused,archived"`
	Health      Health   `json:"health" enum:"green,yellow,red"`
	Priority    int      `json:"priority"`
	Owner       string   `json:"owner,omitempty"`
	StartDate   string   `json:"start_date,omitempty"`
	TargetDate  string   `json:"target_date,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Auto        bool     `json:"auto,omitempty"`
	FactCount   int      `json:"fact_count"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

// EffectiveHealth caps the stored health at yellow when the workstream has
// not been updated within staleAfter. The second return reports the cap.
func (w Workstream) EffectiveHealth(now time.Time, staleAfter time.Duration) (Health, bool) {
	updated := ParseTime(w.UpdatedAt)
	if staleAfter <= 0 || updated.IsZero() || now.Sub(updated) <= staleAfter {
		return w.Health, false
	}
	if w.Health == HealthGreen {
		return HealthYellow, true
	}
	return w.Health, true
}

type WorkstreamLink struct {
	WorkstreamID string  `json:"workstream_id"`
	FactID       string  `json:"fact_id"`
	Weight       float64 `json:"weight"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}

type Meeting struct {
	ID        string   `json:"id"`
	OrgID     string   `json:"org_id"`
	Title     string   `json:"title"`
	Subject   string   `json:"subject,omitempty"`
	HeldAt    string   `json:"held_at" format:"date-time"`
	OpenItems []string `json:"open_items,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload,omitempty"`
}

// APIKey grants its actor the listed scopes. No scopes means every scope.
type APIKey struct {
	ID         string   `json:"id"`
	ActorID    string   `json:"actor_id"`
	Name       string   `json:"name,omitempty"`
	KeyHash    string   `json:"-"`
	Scopes     []string `json:"scopes,omitempty"`
	CreatedAt  string   `json:"created_at" format:"date-time"`
	LastUsedAt string   `json:"last_used_at,omitempty" format:"date-time"`
}

// ParseTime accepts RFC3339 timestamps and plain dates. It returns the zero
// time for anything else.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
