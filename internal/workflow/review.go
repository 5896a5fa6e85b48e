package workflow

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/tktechnologies/meeting-agent/internal/compose"
	"github.com/tktechnologies/meeting-agent/internal/domain"
)

// Issue codes. Codes that name a section carry it after a colon.
const (
	issueDominant       = "dominant_section"
	issueUnallocated    = "unallocated_section"
	issueTimeMismatch   = "time_mismatch"
	issueTooFewSections = "too_few_sections"
	issueUncovered      = "uncovered_section"
	issueNoEvidence     = "no_evidence"
	issueWeakEvidence   = "weak_evidence"
	issueDecisionNoWhy  = "decision_without_evidence"
	issueMissingOwner   = "missing_owner_or_due"
	issueLowConfidence  = "low_intent_confidence"
)

func (w *Workflow) reviewQuality(ctx context.Context, st *state, cfg Config) error {
	r := structuralReview(st, cfg)
	if w.Scorer != nil {
		llm, err := w.Scorer.ScoreQuality(ctx, QualityRequest{
			Agenda:   st.draft.agenda,
			Intent:   st.class.Intent,
			Subject:  st.subject,
			Language: st.language,
		})
		if err != nil {
			w.logger().Warn("quality scorer failed, using structural score", zap.Error(err))
		} else {
			r.Score = round2(0.5*r.Score + 0.5*clamp01(llm.Score))
			r.Issues = appendUnique(r.Issues, llm.Issues...)
		}
	}
	st.review = r
	return nil
}

// structuralReview scores the draft from 1.0 down. It is deterministic.
func structuralReview(st *state, cfg Config) Review {
	d := st.draft
	a := d.agenda
	score := 1.0
	var issues []string

	total := a.Minutes
	sum := 0
	for _, s := range a.Sections {
		sum += s.Minutes
		if total <= 0 {
			continue
		}
		if float64(s.Minutes) > cfg.DominanceCap*float64(total)+0.5 {
			score -= 0.2
			issues = append(issues, issueDominant+":"+s.Title)
		}
		if s.Minutes == 0 && s.Title != d.parkingLot {
			score -= 0.05
			issues = append(issues, issueUnallocated+":"+s.Title)
		}
	}
	if total > 0 && math.Abs(float64(sum-total)) > 0.1*float64(total) {
		score -= 0.1
		issues = append(issues, issueTimeMismatch)
	}

	if d.units < st.template.MinSections {
		score -= 0.15
		issues = append(issues, fmt.Sprintf("%s:%d<%d", issueTooFewSections, d.units, st.template.MinSections))
	}
	for i, sec := range d.uncovered {
		if i < 3 {
			score -= 0.05
		}
		issues = append(issues, issueUncovered+":"+sec.Title)
	}

	withWhy, decisionsNoWhy, missingOwner := 0, 0, 0
	for _, p := range d.placed {
		b := a.Sections[p.section].Items[p.item].Bullets[p.bullet]
		if b.Why != "" {
			withWhy++
		} else if p.fact.Type == domain.FactDecision {
			decisionsNoWhy++
		}
		if compose.HasOwnerOrDue(p.fact) && b.Owner == "" && b.Due == "" {
			missingOwner++
		}
	}
	switch {
	case len(d.placed) == 0:
		score -= 0.3
		issues = append(issues, issueNoEvidence)
	case float64(withWhy)/float64(len(d.placed)) < 0.3:
		score -= 0.15
		issues = append(issues, issueWeakEvidence)
	}
	if decisionsNoWhy > 0 {
		score -= math.Min(0.15, 0.05*float64(decisionsNoWhy))
		issues = append(issues, fmt.Sprintf("%s:%d", issueDecisionNoWhy, decisionsNoWhy))
	}
	if missingOwner > 0 {
		score -= math.Min(0.15, 0.05*float64(missingOwner))
		issues = append(issues, fmt.Sprintf("%s:%d", issueMissingOwner, missingOwner))
	}
	if st.class.Confidence < cfg.LowConfidence {
		score -= 0.1
		issues = append(issues, issueLowConfidence)
	}
	return Review{Score: round2(clamp01(score)), Issues: issues}
}

func appendUnique(dst []string, items ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range items {
		if s != "" && !seen[s] {
			seen[s] = true
			dst = append(dst, s)
		}
	}
	return dst
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
