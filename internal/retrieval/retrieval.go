// Package retrieval gathers candidate facts from several strategies and
// merges them into one deduplicated pool.
package retrieval

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tktechnologies/meeting-agent/internal/domain"
	"github.com/tktechnologies/meeting-agent/internal/research"
	"github.com/tktechnologies/meeting-agent/internal/store"
)

// ErrNoContext is returned when every strategy came back empty.
var ErrNoContext = errors.New("no context: zero candidate facts")

type Config struct {
	PerWorkstream       int
	MaxKeywords         int
	EscalationThreshold int
	UrgencyHorizon      time.Duration
	StoreTimeout        time.Duration
	MaxWorkstreams      int
	Concurrency         int
}

func DefaultConfig() Config {
	return Config{
		PerWorkstream:       20,
		MaxKeywords:         10,
		EscalationThreshold: 8,
		UrgencyHorizon:      7 * 24 * time.Hour,
		StoreTimeout:        10 * time.Second,
		MaxWorkstreams:      3,
		Concurrency:         4,
	}
}

// Escalator is the deep research capability. research.Escalator implements it.
type Escalator interface {
	Escalate(ctx context.Context, req research.EscalationRequest) ([]domain.Fact, research.Outcome)
}

type Options struct {
	OrgID   string
	Subject string
	Intent  string
	// Workstreams are the pre-selected workstreams. When empty and
	// DisableWorkstreams is false the top-priority active ones are used.
	Workstreams        []domain.Workstream
	DisableWorkstreams bool
	Target             int
	ExtraKeywords      []string
	AllowResearch      bool
	Budget             time.Duration
}

type Result struct {
	Candidates      map[string]domain.Fact
	Stats           domain.RetrievalStats
	Workstreams     []domain.Workstream
	Keywords        []string
	ResearchOutcome research.Outcome
}

type Retriever struct {
	Store     store.Gateway
	Escalator Escalator
	Config    Config
	Logger    *zap.Logger
	Now       func() time.Time
}

// Retrieve runs the strategies in order: workstream-linked, keyword, urgent,
// recent (only without keywords), then deep research. Each runs only while
// the pool is below Target; deep research runs only below the escalation
// threshold. Strategy failures are logged and counted, never returned.
func (r Retriever) Retrieve(ctx context.Context, opts Options) (Result, error) {
	cfg := r.config()
	log := r.logger().With(zap.String("org_id", opts.OrgID))
	target := opts.Target
	if target <= 0 {
		target = 40
	}
	res := Result{ResearchOutcome: research.OutcomeEmpty}
	p := newPool()

	if !opts.DisableWorkstreams {
		res.Workstreams = opts.Workstreams
		if len(res.Workstreams) == 0 {
			ws, err := r.topWorkstreams(ctx, opts.OrgID, cfg.MaxWorkstreams)
			if err != nil {
				log.Warn("list workstreams failed", zap.Error(err))
				res.Stats.Failures++
			}
			res.Workstreams = ws
		}
	}

	if len(res.Workstreams) > 0 && p.len() < target {
		ids := make([]string, len(res.Workstreams))
		for i, w := range res.Workstreams {
			ids[i] = w.ID
		}
		facts, err := withTimeout(ctx, cfg.StoreTimeout, func(ctx context.Context) ([]domain.Fact, error) {
			return r.Store.GetFactsByWorkstreams(ctx, opts.OrgID, ids, cfg.PerWorkstream)
		})
		if err != nil {
			log.Warn("workstream strategy failed", zap.Error(err))
			res.Stats.Failures++
		}
		res.Stats.Workstream = len(facts)
		p.addAll(facts)
	}

	res.Keywords = Keywords(opts.Subject, res.Workstreams, opts.ExtraKeywords, cfg.MaxKeywords)
	if len(res.Keywords) > 0 && p.len() < target {
		facts, failures := r.searchKeywords(ctx, opts.OrgID, res.Keywords, target, cfg)
		if failures > 0 {
			log.Warn("keyword strategy partially failed", zap.Int("failures", failures))
		}
		res.Stats.Failures += failures
		res.Stats.Keyword = len(facts)
		p.addAll(facts)
	}

	if p.len() < target {
		dueBefore := r.now().Add(cfg.UrgencyHorizon)
		facts, err := withTimeout(ctx, cfg.StoreTimeout, func(ctx context.Context) ([]domain.Fact, error) {
			return r.Store.GetUrgentFacts(ctx, opts.OrgID, dueBefore, target)
		})
		if err != nil {
			log.Warn("urgency strategy failed", zap.Error(err))
			res.Stats.Failures++
		}
		res.Stats.Urgent = len(facts)
		p.addAll(facts)
	}

	if len(res.Keywords) == 0 && p.len() < target {
		facts, err := withTimeout(ctx, cfg.StoreTimeout, func(ctx context.Context) ([]domain.Fact, error) {
			return r.Store.GetRecentFacts(ctx, opts.OrgID, target)
		})
		if err != nil {
			log.Warn("recent strategy failed", zap.Error(err))
			res.Stats.Failures++
		}
		res.Stats.Recent = len(facts)
		p.addAll(facts)
	}

	if opts.AllowResearch && r.Escalator != nil && p.len() < cfg.EscalationThreshold {
		topic := researchTopic(opts.Subject, res.Workstreams)
		if topic != "" {
			res.Stats.Escalated = true
			facts, outcome := r.Escalator.Escalate(ctx, research.EscalationRequest{
				OrgID:  opts.OrgID,
				Topic:  topic,
				Intent: opts.Intent,
				Budget: opts.Budget,
			})
			res.ResearchOutcome = outcome
			res.Stats.DeepResearch = len(facts)
			p.addAll(facts)
			log.Info("deep research escalation", zap.String("outcome", string(outcome)), zap.Int("facts", len(facts)))
		}
	}

	res.Candidates = p.facts
	res.Stats.Total = p.len()
	if p.len() == 0 {
		return res, ErrNoContext
	}
	return res, nil
}

// searchKeywords fans out one search per keyword and merges the results in
// keyword order, so completion order never shows in the output.
func (r Retriever) searchKeywords(ctx context.Context, orgID string, keywords []string, limit int, cfg Config) ([]domain.Fact, int) {
	results := make([][]domain.Fact, len(keywords))
	errs := make([]error, len(keywords))
	var g errgroup.Group
	g.SetLimit(cfg.Concurrency)
	for i, kw := range keywords {
		g.Go(func() error {
			results[i], errs[i] = withTimeout(ctx, cfg.StoreTimeout, func(ctx context.Context) ([]domain.Fact, error) {
				return r.Store.SearchFacts(ctx, orgID, kw, limit)
			})
			return nil
		})
	}
	_ = g.Wait()
	var out []domain.Fact
	failures := 0
	seen := map[string]bool{}
	for i := range keywords {
		if errs[i] != nil {
			failures++
			continue
		}
		for _, f := range results[i] {
			if !seen[f.ID] {
				seen[f.ID] = true
				out = append(out, f)
			}
		}
	}
	return out, failures
}

func (r Retriever) topWorkstreams(ctx context.Context, orgID string, limit int) ([]domain.Workstream, error) {
	return withTimeout(ctx, r.config().StoreTimeout, func(ctx context.Context) ([]domain.Workstream, error) {
		return r.Store.ListWorkstreams(ctx, orgID, store.WorkstreamFilters{Status: "active", Limit: limit})
	})
}

func researchTopic(subject string, ws []domain.Workstream) string {
	if s := strings.TrimSpace(subject); s != "" {
		return s
	}
	var titles []string
	for _, w := range ws {
		titles = append(titles, w.Title)
	}
	return strings.Join(titles, ", ")
}

func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(cctx)
}

func (r Retriever) config() Config {
	c := r.Config
	d := DefaultConfig()
	if c.PerWorkstream <= 0 {
		c.PerWorkstream = d.PerWorkstream
	}
	if c.MaxKeywords <= 0 {
		c.MaxKeywords = d.MaxKeywords
	}
	if c.EscalationThreshold <= 0 {
		c.EscalationThreshold = d.EscalationThreshold
	}
	if c.UrgencyHorizon <= 0 {
		c.UrgencyHorizon = d.UrgencyHorizon
	}
	if c.MaxWorkstreams <= 0 {
		c.MaxWorkstreams = d.MaxWorkstreams
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	return c
}

func (r Retriever) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Retriever) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
