// Package ranking scores candidate facts and orders them deterministically.
package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/tktechnologies/meeting-agent/internal/domain"
)

const (
	DefaultK               = 40
	DefaultResearchBoost   = 1.2
	DefaultRecencyHalfLife = 30 * 24 * time.Hour

	// UrgencyBaseline is the urgency component of a fact without a due date.
	UrgencyBaseline = 0.3
	recencyFloor    = 0.05
	scoreTolerance  = 1e-9
)

// Weights are the blend coefficients of the five score components.
type Weights struct {
	Status   float64
	Urgency  float64
	Recency  float64
	Evidence float64
	Type     float64
}

func DefaultWeights() Weights {
	return Weights{Status: 0.35, Urgency: 0.25, Recency: 0.15, Evidence: 0.15, Type: 0.10}
}

// Components holds the per-component values, each in [0,1], before weighting.
type Components struct {
	Status   float64 `json:"status"`
	Urgency  float64 `json:"urgency"`
	Recency  float64 `json:"recency"`
	Evidence float64 `json:"evidence"`
	Type     float64 `json:"type"`
}

type Scored struct {
	Fact       domain.Fact
	Score      float64
	Components Components
	Boosted    bool
}

// Ranker is safe for concurrent use; it holds no mutable state.
type Ranker struct {
	Weights         Weights
	ResearchBoost   float64
	RecencyHalfLife time.Duration
	Now             func() time.Time
}

func New() Ranker {
	return Ranker{
		Weights:         DefaultWeights(),
		ResearchBoost:   DefaultResearchBoost,
		RecencyHalfLife: DefaultRecencyHalfLife,
		Now:             time.Now,
	}
}

// Rank scores every candidate and returns the top k. k <= 0 keeps all.
func (r Ranker) Rank(candidates map[string]domain.Fact, k int) []Scored {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	out := make([]Scored, 0, len(candidates))
	for _, f := range candidates {
		out = append(out, r.Score(f, now))
	}
	sort.Slice(out, func(i, j int) bool { return Less(out[i], out[j]) })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// Score computes the blended score of one fact at the given instant. The
// research boost multiplies the blended score, never a component.
func (r Ranker) Score(f domain.Fact, now time.Time) Scored {
	c := Components{
		Status:   StatusComponent(f.Status),
		Urgency:  UrgencyComponent(f, now),
		Recency:  RecencyComponent(f, now, r.halfLife()),
		Evidence: EvidenceComponent(f),
		Type:     TypeComponent(f.Type),
	}
	w := r.Weights
	score := w.Status*c.Status + w.Urgency*c.Urgency + w.Recency*c.Recency + w.Evidence*c.Evidence + w.Type*c.Type
	boosted := false
	if f.Source == domain.SourceDeepResearch && r.ResearchBoost > 0 {
		score *= r.ResearchBoost
		boosted = true
	}
	return Scored{Fact: f, Score: score, Components: c, Boosted: boosted}
}

func (r Ranker) halfLife() time.Duration {
	if r.RecencyHalfLife <= 0 {
		return DefaultRecencyHalfLife
	}
	return r.RecencyHalfLife
}

// Less orders by score desc; equal scores go newest first, then id asc.
func Less(a, b Scored) bool {
	if math.Abs(a.Score-b.Score) > scoreTolerance {
		return a.Score > b.Score
	}
	ca, cb := a.Fact.Created(), b.Fact.Created()
	if !ca.Equal(cb) {
		return ca.After(cb)
	}
	return a.Fact.ID < b.Fact.ID
}

func StatusComponent(s domain.FactStatus) float64 {
	return float64(s.Ordinal()) / 3
}

// UrgencyComponent is 1 for overdue facts and decays with days until due.
func UrgencyComponent(f domain.Fact, now time.Time) float64 {
	due, ok := f.Due()
	if !ok {
		return UrgencyBaseline
	}
	if !due.After(now) {
		return 1
	}
	days := due.Sub(now).Hours() / 24
	return 1 / (1 + days/7)
}

// RecencyComponent halves every halfLife and never drops below a floor.
func RecencyComponent(f domain.Fact, now time.Time, halfLife time.Duration) float64 {
	created := f.Created()
	if created.IsZero() {
		return recencyFloor
	}
	age := now.Sub(created)
	if age < 0 {
		age = 0
	}
	v := math.Exp(-float64(age) * math.Ln2 / float64(halfLife))
	return math.Max(recencyFloor, v)
}

// EvidenceComponent rewards quotes, multiple quotes and spans, then scales by
// the workstream link weight.
func EvidenceComponent(f domain.Fact) float64 {
	quotes := 0
	spans := false
	for _, ev := range f.Payload.Evidence {
		if ev.Quote != "" {
			quotes++
		}
		if ev.Span != nil {
			spans = true
		}
	}
	if quotes == 0 {
		return 0
	}
	v := 0.6
	if quotes > 1 {
		v += 0.2
	}
	if spans {
		v += 0.2
	}
	return math.Min(1, v) * f.Weight()
}

func TypeComponent(t domain.FactType) float64 {
	switch t {
	case domain.FactDecision:
		return 1
	case domain.FactRisk:
		return 0.8
	case domain.FactActionItem:
		return 0.6
	case domain.FactStatusNote:
		return 0.4
	case domain.FactGoal:
		return 0.2
	default:
		return 0
	}
}

// Facts strips scores, keeping order.
func Facts(items []Scored) []domain.Fact {
	out := make([]domain.Fact, len(items))
	for i, s := range items {
		out[i] = s.Fact
	}
	return out
}
