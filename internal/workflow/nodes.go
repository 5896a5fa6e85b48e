package workflow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tktechnologies/meeting-agent/internal/compose"
	"github.com/tktechnologies/meeting-agent/internal/domain"
	"github.com/tktechnologies/meeting-agent/internal/intent"
	"github.com/tktechnologies/meeting-agent/internal/nlparse"
	"github.com/tktechnologies/meeting-agent/internal/ranking"
	"github.com/tktechnologies/meeting-agent/internal/retrieval"
	"github.com/tktechnologies/meeting-agent/internal/store"
)

var genericSubjects = map[string]bool{
	"meeting": true, "reunião": true, "reuniao": true, "sync": true, "general": true,
	"general sync": true, "geral": true, "next meeting": true, "próxima reunião": true,
}

func (w *Workflow) parse(st *state, cfg Config) error {
	p := nlparse.Parse(st.req.Text, cfg.DefaultMinutes)
	st.subject = strings.TrimSpace(st.req.Subject)
	if st.subject == "" {
		st.subject = p.Subject
	}
	st.language = p.Language
	if st.req.Language != "" {
		st.language = st.req.Language
	}
	st.language = intent.NormalizeLanguage(st.language)
	st.minutes = p.DurationMinutes
	if st.req.DurationMinutes > 0 {
		st.minutes = st.req.DurationMinutes
	}
	if st.minutes <= 0 {
		st.minutes = cfg.DefaultMinutes
	}
	st.meetingHint = p.MeetingHint
	st.run.Subject = st.subject
	return nil
}

// analyze reads meeting history when the store keeps it and resolves the
// workstream selection. Both lookups are best effort.
func (w *Workflow) analyze(ctx context.Context, st *state, cfg Config) error {
	log := w.logger().With(zap.String("run_id", st.run.RunID))
	if hist, ok := w.Store.(store.MeetingHistory); ok {
		ms, err := hist.RecentMeetings(ctx, st.req.OrgID, cfg.HistoryMeetings)
		if err != nil {
			log.Warn("meeting history unavailable", zap.Error(err))
		} else {
			st.history = ms
		}
	}
	if st.req.DisableWorkstreams {
		return nil
	}
	ws := st.req.Workstreams
	if len(ws) == 0 && st.subject != "" && !genericSubjects[strings.ToLower(st.subject)] {
		matched, err := w.Store.ListWorkstreams(ctx, st.req.OrgID, store.WorkstreamFilters{
			Status: "active",
			Query:  st.subject,
			Limit:  cfg.MaxWorkstreams,
		})
		if err != nil {
			log.Warn("workstream match failed", zap.Error(err))
		}
		ws = matched
	}
	st.selectWorkstreams(ws, cfg)
	return nil
}

// selectWorkstreams caps the selection, applies the staleness health cap and
// resolves a generic subject to the top workstream title.
func (st *state) selectWorkstreams(ws []domain.Workstream, cfg Config) {
	if len(ws) > cfg.MaxWorkstreams {
		ws = ws[:cfg.MaxWorkstreams]
	}
	out := make([]domain.Workstream, len(ws))
	for i, w := range ws {
		h, stale := w.EffectiveHealth(st.now, cfg.StaleAfter)
		w.Health = h
		if stale {
			st.stale[w.ID] = true
		}
		out[i] = w
	}
	store.SortWorkstreams(out)
	st.workstreams = out
	if len(out) > 0 && (st.subject == "" || genericSubjects[strings.ToLower(st.subject)]) {
		st.subject = out[0].Title
		st.run.Subject = st.subject
	}
}

func (w *Workflow) detectIntent(ctx context.Context, st *state) error {
	text := st.subject
	if text == "" {
		text = st.req.Text
	}
	c := intent.Classify(text, st.language, st.workstreams)
	if w.Classifier != nil {
		got, err := w.Classifier.ClassifyIntent(ctx, text, st.language)
		switch {
		case err != nil:
			w.logger().Warn("intent classifier failed, using heuristic", zap.Error(err))
		default:
			if in, ok := intent.Parse(string(got.Intent)); ok {
				got.Intent = in
				got.Confidence = clamp01(got.Confidence)
				c = got
			} else {
				w.logger().Warn("intent classifier returned unknown intent", zap.String("intent", string(got.Intent)))
			}
		}
	}
	st.class = c
	st.template = intent.TemplateFor(c.Intent, st.language)
	return nil
}

func (w *Workflow) retrieve(ctx context.Context, st *state, cfg Config) error {
	budget := time.Duration(0)
	if dl, ok := ctx.Deadline(); ok {
		budget = time.Until(dl)
	}
	res, err := w.Retriever.Retrieve(ctx, retrieval.Options{
		OrgID:              st.req.OrgID,
		Subject:            st.subject,
		Intent:             string(st.class.Intent),
		Workstreams:        st.workstreams,
		DisableWorkstreams: st.req.DisableWorkstreams,
		Target:             cfg.TopK + st.refinements*cfg.WidenStep,
		ExtraKeywords:      st.gapKeywords,
		AllowResearch:      cfg.AllowResearch,
		Budget:             budget,
	})
	if err != nil && !errors.Is(err, retrieval.ErrNoContext) {
		return fmt.Errorf("retrieve candidates: %w", err)
	}
	if len(st.workstreams) == 0 && len(res.Workstreams) > 0 {
		st.selectWorkstreams(res.Workstreams, cfg)
	}
	st.stats = res.Stats
	st.keywords = res.Keywords
	st.noContext = errors.Is(err, retrieval.ErrNoContext) || len(res.Candidates) == 0
	st.ranked = w.Ranker.Rank(res.Candidates, cfg.TopK)
	return nil
}

func (w *Workflow) summarize(ctx context.Context, st *state) error {
	if w.Summarizer != nil && !st.noContext {
		s, err := w.Summarizer.SummarizeContext(ctx, SummaryRequest{
			Subject:     st.subject,
			Language:    st.language,
			Workstreams: st.workstreams,
			Facts:       ranking.Facts(st.ranked),
			Meetings:    st.history,
		})
		if err != nil {
			w.logger().Warn("context summarizer failed", zap.Error(err))
		} else if s = strings.TrimSpace(s); s != "" {
			st.macroSummary = s
			return nil
		}
	}
	st.macroSummary = macroSummary(st)
	return nil
}

func macroSummary(st *state) string {
	pt := st.language == intent.LangPT
	var parts []string
	if len(st.workstreams) == 0 {
		if pt {
			parts = append(parts, "Sem contexto de workstreams.")
		} else {
			parts = append(parts, "No workstream context.")
		}
	} else {
		var ws []string
		for _, w := range st.workstreams {
			ws = append(ws, fmt.Sprintf("%s (%s, P%d)", w.Title, w.Health, w.Priority))
		}
		parts = append(parts, strings.Join(ws, "; ")+".")
	}
	counts := map[domain.FactType]int{}
	overdue := 0
	for _, s := range st.ranked {
		counts[s.Fact.Type]++
		if due, ok := s.Fact.Due(); ok && due.Before(st.now) {
			overdue++
		}
	}
	if pt {
		parts = append(parts, fmt.Sprintf("%d fatos no escopo: %d decisões, %d riscos, %d atrasados.",
			len(st.ranked), counts[domain.FactDecision], counts[domain.FactRisk], overdue))
	} else {
		parts = append(parts, fmt.Sprintf("%d facts in scope: %d decisions, %d risks, %d overdue.",
			len(st.ranked), counts[domain.FactDecision], counts[domain.FactRisk], overdue))
	}
	if len(st.history) > 0 {
		m := st.history[0]
		date := m.HeldAt
		if t := domain.ParseTime(m.HeldAt); !t.IsZero() {
			date = t.Format("2006-01-02")
		}
		if pt {
			parts = append(parts, fmt.Sprintf("Última reunião: %s (%s).", m.Title, date))
		} else {
			parts = append(parts, fmt.Sprintf("Last meeting: %s (%s).", m.Title, date))
		}
	}
	return strings.Join(parts, " ")
}

func (w *Workflow) refine(st *state) error {
	st.refinements++
	st.gapKeywords = gapKeywords(st)
	w.logger().Info("refining agenda",
		zap.String("run_id", st.run.RunID),
		zap.Int("refinement", st.refinements),
		zap.Float64("score", st.review.Score),
		zap.Strings("gap_keywords", st.gapKeywords))
	return nil
}

var typeKeywords = map[domain.FactType][2]string{
	domain.FactDecision:   {"decision", "decisão"},
	domain.FactRisk:       {"risk", "risco"},
	domain.FactActionItem: {"action", "ação"},
	domain.FactStatusNote: {"status", "status"},
	domain.FactGoal:       {"goal", "objetivo"},
}

// gapKeywords turns uncovered template sections into search terms, adding
// workstream tags when evidence was thin.
func gapKeywords(st *state) []string {
	idx := 0
	if st.language == intent.LangPT {
		idx = 1
	}
	seen := map[string]bool{}
	var out []string
	push := func(k string) {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, sec := range st.draft.uncovered {
		for _, t := range sec.Accepts {
			if kw, ok := typeKeywords[t]; ok {
				push(kw[idx])
			}
		}
	}
	for _, issue := range st.review.Issues {
		if strings.HasPrefix(issue, issueWeakEvidence) || strings.HasPrefix(issue, issueNoEvidence) {
			for _, w := range st.workstreams {
				for _, tag := range w.Tags {
					push(tag)
				}
			}
		}
	}
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

func (w *Workflow) finalize(st *state, cfg Config) error {
	d := st.draft
	a := d.agenda
	a.Title = compose.Title(st.subject, string(st.class.Intent), st.language, st.workstreams)

	status := domain.ProposalOK
	if st.noContext || st.review.Score < cfg.QualityThreshold {
		status = domain.ProposalDegraded
	}
	nudge := ""
	switch {
	case st.noContext:
		nudge = domain.NudgeNoContext
	case st.class.Confidence < cfg.LowConfidence:
		nudge = domain.NudgeLowConfidence
	}

	var summaries []domain.WorkstreamSummary
	var staleIDs []string
	for _, ws := range st.workstreams {
		summaries = append(summaries, domain.WorkstreamSummary{
			ID: ws.ID, Title: ws.Title, Status: ws.Health, Priority: ws.Priority, Stale: st.stale[ws.ID],
		})
		if st.stale[ws.ID] {
			staleIDs = append(staleIDs, ws.ID)
		}
	}
	health := ""
	if len(staleIDs) > 0 {
		health = domain.HealthStaleWorkstream
	}

	conf := st.class.Confidence
	score := st.review.Score
	refinements := st.refinements
	stats := st.stats
	refs := d.refs
	if refs == nil {
		refs = []domain.Ref{}
	}
	if summaries == nil {
		summaries = []domain.WorkstreamSummary{}
	}
	factIDs := d.factIDs
	if factIDs == nil {
		factIDs = []string{}
	}

	st.proposal = domain.AgendaProposal{
		OrgID:  st.req.OrgID,
		Agenda: a,
		Choice: "workflow-" + string(st.class.Intent),
		Status: status,
		Reason: reason(st, cfg),
		Subject: domain.SubjectInfo{
			Query:    st.subject,
			Coverage: compose.Coverage(d.facts, a.BulletCount(), len(a.Sections)),
			Facts:    len(factIDs),
		},
		SupportingFactIDs: factIDs,
		Metadata: domain.AgendaMetadata{
			AgendaVersion:    domain.AgendaVersion,
			Generator:        "workflow",
			Workstreams:      summaries,
			Refs:             refs,
			Nudge:            nudge,
			Health:           health,
			StaleWorkstreams: staleIDs,
			Intent:           string(st.class.Intent),
			IntentConfidence: &conf,
			QualityScore:     &score,
			QualityIssues:    st.review.Issues,
			RefinementCount:  &refinements,
			RetrievalStats:   &stats,
			MacroSummary:     st.macroSummary,
			RunID:            st.run.RunID,
		},
		CreatedAt: domain.FormatTime(st.now),
	}
	return nil
}

func reason(st *state, cfg Config) string {
	switch {
	case st.noContext:
		return "no facts found for the subject; agenda holds placeholder guidance"
	case st.review.Score < cfg.QualityThreshold:
		return fmt.Sprintf("%s agenda below quality threshold after %d refinements", st.class.Intent, st.refinements)
	case len(st.workstreams) > 0:
		return fmt.Sprintf("%s agenda from %d workstreams and %d facts", st.class.Intent, len(st.workstreams), len(st.draft.factIDs))
	}
	return fmt.Sprintf("%s agenda from %d facts", st.class.Intent, len(st.draft.factIDs))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func roundTimes(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = math.Round(v*1000) / 1000
	}
	return out
}
