// Package workflow builds agenda proposals by walking a fixed graph of nodes:
// parse, analyze, classify, retrieve and rank, summarize, draft, review, then
// either refine (looping back to retrieval) or finalize.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tktechnologies/meeting-agent/internal/domain"
	"github.com/tktechnologies/meeting-agent/internal/intent"
	"github.com/tktechnologies/meeting-agent/internal/ranking"
	"github.com/tktechnologies/meeting-agent/internal/retrieval"
	"github.com/tktechnologies/meeting-agent/internal/store"
)

type Node string

const (
	NodeParse        Node = "parse_request"
	NodeAnalyze      Node = "analyze_context"
	NodeDetectIntent Node = "detect_intent"
	NodeRetrieve     Node = "retrieve_and_rank_facts"
	NodeSummarize    Node = "summarize_macro_context"
	NodeDraft        Node = "draft_agenda"
	NodeReview       Node = "review_quality"
	NodeRefine       Node = "refine"
	NodeFinalize     Node = "finalize"

	nodeDone Node = ""
)

// ErrBudgetExceeded is returned when the wall-clock budget runs out mid-walk.
var ErrBudgetExceeded = errors.New("workflow budget exceeded")

// NodeError wraps the failure of a single node.
type NodeError struct {
	Node Node
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("workflow node %s: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

type RunInfo struct {
	RunID   string
	OrgID   string
	Subject string
}

// Observer is notified around every node. Implementations must not block.
type Observer interface {
	OnNodeEnter(ctx context.Context, run RunInfo, node Node)
	OnNodeExit(ctx context.Context, run RunInfo, node Node, elapsed time.Duration, err error)
}

// MultiObserver fans notifications out in order. Nil entries are skipped.
type MultiObserver []Observer

func (m MultiObserver) OnNodeEnter(ctx context.Context, run RunInfo, node Node) {
	for _, o := range m {
		if o != nil {
			o.OnNodeEnter(ctx, run, node)
		}
	}
}

func (m MultiObserver) OnNodeExit(ctx context.Context, run RunInfo, node Node, elapsed time.Duration, err error) {
	for _, o := range m {
		if o != nil {
			o.OnNodeExit(ctx, run, node, elapsed, err)
		}
	}
}

// IntentClassifier picks one of the fixed intents for a request.
type IntentClassifier interface {
	ClassifyIntent(ctx context.Context, text, language string) (intent.Classification, error)
}

type SectionRequest struct {
	Subject  string
	Language string
	Intent   intent.Intent
	Section  string
	Bullets  []string
}

// SectionDrafter rewrites bullet texts of one section. It must return the
// same number of texts; anything else is discarded.
type SectionDrafter interface {
	DraftSection(ctx context.Context, req SectionRequest) ([]string, error)
}

type Review struct {
	Score  float64  `json:"score"`
	Issues []string `json:"issues,omitempty"`
}

type QualityRequest struct {
	Agenda   domain.Agenda
	Intent   intent.Intent
	Subject  string
	Language string
}

type QualityScorer interface {
	ScoreQuality(ctx context.Context, req QualityRequest) (Review, error)
}

type SummaryRequest struct {
	Subject     string
	Language    string
	Workstreams []domain.Workstream
	Facts       []domain.Fact
	Meetings    []domain.Meeting
}

type ContextSummarizer interface {
	SummarizeContext(ctx context.Context, req SummaryRequest) (string, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, opts retrieval.Options) (retrieval.Result, error)
}

type Ranker interface {
	Rank(candidates map[string]domain.Fact, k int) []ranking.Scored
}

type Config struct {
	QualityThreshold float64
	MaxRefinements   int
	LowConfidence    float64
	DominanceCap     float64
	Budget           time.Duration
	// TopK is the ranked pool handed to drafting. Retrieval targets
	// TopK plus WidenStep for every refinement so far.
	TopK            int
	WidenStep       int
	StaleAfter      time.Duration
	MaxWorkstreams  int
	DefaultMinutes  int
	AllowResearch   bool
	HistoryMeetings int
}

func DefaultConfig() Config {
	return Config{
		QualityThreshold: 0.7,
		MaxRefinements:   2,
		LowConfidence:    0.5,
		DominanceCap:     0.4,
		Budget:           300 * time.Second,
		TopK:             ranking.DefaultK,
		WidenStep:        20,
		StaleAfter:       14 * 24 * time.Hour,
		MaxWorkstreams:   3,
		DefaultMinutes:   30,
		AllowResearch:    true,
		HistoryMeetings:  5,
	}
}

// Request is one planning call. Text is the free-form request; Subject,
// DurationMinutes and Language override what parsing extracts from it.
type Request struct {
	RunID              string
	OrgID              string
	Text               string
	Subject            string
	DurationMinutes    int
	Language           string
	Workstreams        []domain.Workstream
	DisableWorkstreams bool
}

// Workflow holds the collaborators of a walk. Store, Retriever and Ranker are
// required; every capability left nil falls back to its deterministic form.
type Workflow struct {
	Store      store.Gateway
	Retriever  Retriever
	Ranker     Ranker
	Classifier IntentClassifier
	Drafter    SectionDrafter
	Scorer     QualityScorer
	Summarizer ContextSummarizer
	Observer   Observer
	Config     Config
	Logger     *zap.Logger
	Now        func() time.Time
}

// state is the mutable context threaded through the nodes of one walk.
type state struct {
	req          Request
	run          RunInfo
	now          time.Time
	subject      string
	language     string
	minutes      int
	meetingHint  string
	history      []domain.Meeting
	class        intent.Classification
	template     intent.Template
	workstreams  []domain.Workstream
	stale        map[string]bool
	keywords     []string
	gapKeywords  []string
	stats        domain.RetrievalStats
	ranked       []ranking.Scored
	noContext    bool
	macroSummary string
	draft        draft
	review       Review
	refinements  int
	stepTimes    map[string]float64
	proposal     domain.AgendaProposal
}

// Run walks the graph until finalize. Node failures and an exhausted budget
// are returned; everything recoverable is logged and absorbed inside nodes.
func (w *Workflow) Run(ctx context.Context, req Request) (domain.AgendaProposal, error) {
	if w.Store == nil || w.Retriever == nil || w.Ranker == nil {
		return domain.AgendaProposal{}, errors.New("workflow: store, retriever and ranker are required")
	}
	cfg := w.config()
	ctx, cancel := context.WithTimeout(ctx, cfg.Budget)
	defer cancel()

	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	st := &state{
		req:       req,
		run:       RunInfo{RunID: req.RunID, OrgID: req.OrgID},
		now:       w.now(),
		stale:     map[string]bool{},
		stepTimes: map[string]float64{},
	}
	log := w.logger().With(zap.String("run_id", req.RunID), zap.String("org_id", req.OrgID))
	obs := w.Observer
	if obs == nil {
		obs = MultiObserver(nil)
	}

	for node := NodeParse; node != nodeDone; node = next(node, st, cfg) {
		if err := ctx.Err(); err != nil {
			return domain.AgendaProposal{}, budgetErr(node, err)
		}
		obs.OnNodeEnter(ctx, st.run, node)
		start := time.Now()
		err := w.step(ctx, node, st, cfg)
		elapsed := time.Since(start)
		st.stepTimes[string(node)] += elapsed.Seconds()
		obs.OnNodeExit(ctx, st.run, node, elapsed, err)
		if err != nil {
			log.Warn("workflow node failed", zap.String("node", string(node)), zap.Error(err))
			if ctx.Err() != nil {
				return domain.AgendaProposal{}, budgetErr(node, ctx.Err())
			}
			return domain.AgendaProposal{}, &NodeError{Node: node, Err: err}
		}
		log.Debug("workflow node done", zap.String("node", string(node)), zap.Duration("elapsed", elapsed))
	}

	st.proposal.Metadata.StepTimes = roundTimes(st.stepTimes)
	return st.proposal, nil
}

func budgetErr(node Node, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &NodeError{Node: node, Err: ErrBudgetExceeded}
	}
	return &NodeError{Node: node, Err: err}
}

// next is the transition function. review_quality is the only branch: it
// loops through refine while the score is low and the counter allows it.
func next(n Node, st *state, cfg Config) Node {
	switch n {
	case NodeParse:
		return NodeAnalyze
	case NodeAnalyze:
		return NodeDetectIntent
	case NodeDetectIntent:
		return NodeRetrieve
	case NodeRetrieve:
		return NodeSummarize
	case NodeSummarize:
		return NodeDraft
	case NodeDraft:
		return NodeReview
	case NodeReview:
		if st.review.Score < cfg.QualityThreshold && st.refinements < cfg.MaxRefinements {
			return NodeRefine
		}
		return NodeFinalize
	case NodeRefine:
		return NodeRetrieve
	}
	return nodeDone
}

func (w *Workflow) step(ctx context.Context, n Node, st *state, cfg Config) error {
	switch n {
	case NodeParse:
		return w.parse(st, cfg)
	case NodeAnalyze:
		return w.analyze(ctx, st, cfg)
	case NodeDetectIntent:
		return w.detectIntent(ctx, st)
	case NodeRetrieve:
		return w.retrieve(ctx, st, cfg)
	case NodeSummarize:
		return w.summarize(ctx, st)
	case NodeDraft:
		return w.draftAgenda(ctx, st, cfg)
	case NodeReview:
		return w.reviewQuality(ctx, st, cfg)
	case NodeRefine:
		return w.refine(st)
	case NodeFinalize:
		return w.finalize(st, cfg)
	}
	return fmt.Errorf("unknown node %q", n)
}

func (w *Workflow) config() Config {
	def := DefaultConfig()
	cfg := w.Config
	if cfg == (Config{}) {
		return def
	}
	if cfg.QualityThreshold <= 0 {
		cfg.QualityThreshold = def.QualityThreshold
	}
	if cfg.MaxRefinements < 0 {
		cfg.MaxRefinements = 0
	}
	if cfg.LowConfidence <= 0 {
		cfg.LowConfidence = def.LowConfidence
	}
	if cfg.DominanceCap <= 0 || cfg.DominanceCap > 1 {
		cfg.DominanceCap = def.DominanceCap
	}
	if cfg.Budget <= 0 {
		cfg.Budget = def.Budget
	}
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.WidenStep <= 0 {
		cfg.WidenStep = def.WidenStep
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.MaxWorkstreams <= 0 {
		cfg.MaxWorkstreams = def.MaxWorkstreams
	}
	if cfg.DefaultMinutes <= 0 {
		cfg.DefaultMinutes = def.DefaultMinutes
	}
	if cfg.HistoryMeetings <= 0 {
		cfg.HistoryMeetings = def.HistoryMeetings
	}
	return cfg
}

func (w *Workflow) now() time.Time {
	if w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}

func (w *Workflow) logger() *zap.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return zap.NewNop()
}
