package engine

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tktechnologies/meeting-agent/internal/config"
	"github.com/tktechnologies/meeting-agent/internal/domain"
	"github.com/tktechnologies/meeting-agent/internal/engine/auth"
	"github.com/tktechnologies/meeting-agent/internal/events"
	"github.com/tktechnologies/meeting-agent/internal/metrics"
	"github.com/tktechnologies/meeting-agent/internal/nlparse"
	"github.com/tktechnologies/meeting-agent/internal/planner"
	"github.com/tktechnologies/meeting-agent/internal/ranking"
	"github.com/tktechnologies/meeting-agent/internal/repo"
	"github.com/tktechnologies/meeting-agent/internal/retrieval"
	"github.com/tktechnologies/meeting-agent/internal/store"
	"github.com/tktechnologies/meeting-agent/internal/workflow"
)

const (
	MacroAuto   = "auto"
	MacroStrict = "strict"
	MacroOff    = "off"

	ChoiceNone = "none"
)

var ErrInvalidMacroMode = errors.New("invalid macro_mode: want auto, strict or off")

// Engine is the write side and the planning entry point. Workflow may be
// nil, in which case every plan goes through the legacy planner.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Workflow *workflow.Workflow
	Planner  planner.Planner
	Metrics  *metrics.Prometheus
	Logger   *zap.Logger
	Now      func() time.Time
}

// New wires the engine over a migrated database with default planning
// components. Callers that need research, a model or metrics replace the
// corresponding fields.
func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: db}
	e := Engine{
		DB:     db,
		Repo:   r,
		Events: events.Writer{DB: db},
		Config: cfg,
		Logger: zap.NewNop(),
		Now:    time.Now,
	}
	e.Planner = planner.Planner{Store: r, Ranker: ranking.New(), Logger: e.Logger}
	e.Workflow = &workflow.Workflow{
		Store:     r,
		Retriever: retrieval.Retriever{Store: r, Config: retrieval.DefaultConfig(), Logger: e.Logger},
		Ranker:    ranking.New(),
		Config:    workflow.DefaultConfig(),
		Logger:    e.Logger,
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e Engine) cfg() *config.Config {
	if e.Config == nil {
		return config.Default()
	}
	return e.Config
}

// PlanOptions are the inputs of a planning request. Zero values take the
// configured defaults.
type PlanOptions struct {
	OrgID           string
	Subject         string
	Prompt          string
	DurationMinutes int
	Language        string
	MacroMode       string
	ActorID         string
	Persist         bool
}

// PlanAgenda plans one agenda. Strict mode without workstreams returns an
// unmet_precondition proposal and a nil error. A workflow failure falls back
// to the legacy planner unless fallback is disabled, in which case the
// error is returned.
func (e Engine) PlanAgenda(ctx context.Context, opts PlanOptions) (domain.AgendaProposal, error) {
	cfg := e.cfg()
	opts.OrgID = strings.TrimSpace(opts.OrgID)
	if opts.OrgID == "" {
		opts.OrgID = cfg.Org.DefaultID
	}
	if opts.OrgID == "" {
		return domain.AgendaProposal{}, errors.New("org_id is required")
	}
	mode := strings.ToLower(strings.TrimSpace(opts.MacroMode))
	if mode == "" {
		mode = cfg.Planner.MacroMode
	}
	switch mode {
	case MacroAuto, MacroStrict, MacroOff:
	default:
		return domain.AgendaProposal{}, ErrInvalidMacroMode
	}
	if opts.DurationMinutes < 0 {
		return domain.AgendaProposal{}, errors.New("invalid duration_minutes: must not be negative")
	}
	if opts.Language == "" {
		if strings.TrimSpace(opts.Prompt) != "" {
			opts.Language = nlparse.DetectLanguage(opts.Prompt)
		} else {
			opts.Language = cfg.Planner.DefaultLanguage
		}
	}
	if opts.DurationMinutes == 0 && strings.TrimSpace(opts.Prompt) == "" {
		opts.DurationMinutes = cfg.Planner.DefaultDurationMinutes
	}
	log := e.logger().With(zap.String("org_id", opts.OrgID), zap.String("macro_mode", mode))

	hasWorkstreams := false
	if mode != MacroOff {
		ws, err := e.Repo.ListWorkstreams(ctx, opts.OrgID, store.WorkstreamFilters{Status: "active", Limit: 1})
		if err != nil {
			return domain.AgendaProposal{}, fmt.Errorf("list workstreams: %w", err)
		}
		hasWorkstreams = len(ws) > 0
	}

	var p domain.AgendaProposal
	switch {
	case mode == MacroStrict && !hasWorkstreams:
		p = e.unmetPrecondition(opts)
	case mode == MacroAuto && !hasWorkstreams:
		log.Info("no workstreams; planning from raw facts")
		p = e.legacy(ctx, opts, true, domain.NudgeMacroContextMissing, "")
	case e.Workflow == nil || !cfg.Workflow.Enabled:
		p = e.legacy(ctx, opts, mode == MacroOff, "", "")
	default:
		var err error
		p, err = e.runWorkflow(ctx, opts, mode == MacroOff)
		if err != nil {
			if !cfg.Workflow.FallbackOnError {
				return domain.AgendaProposal{}, err
			}
			reason := fallbackReason(err)
			log.Error("workflow failed; falling back to legacy planner", zap.String("reason", reason), zap.Error(err))
			e.Metrics.RecordFallback(reason)
			p = e.legacy(ctx, opts, mode == MacroOff, domain.NudgeWorkflowFallback, reason)
		}
	}

	if p.Metadata.Language == "" {
		p.Metadata.Language = opts.Language
	}
	e.Metrics.RecordProposal(p.Metadata.Generator, p.Status, p.Metadata.RefinementCount, p.Metadata.QualityScore)
	if !opts.Persist || p.Status == domain.ProposalUnmetPrecondition {
		return p, nil
	}
	return e.persist(ctx, p, opts.ActorID)
}

func (e Engine) runWorkflow(ctx context.Context, opts PlanOptions, disableWorkstreams bool) (domain.AgendaProposal, error) {
	wf := *e.Workflow
	if wf.Now == nil {
		wf.Now = e.Now
	}
	text := opts.Prompt
	if strings.TrimSpace(text) == "" {
		text = opts.Subject
	}
	return wf.Run(ctx, workflow.Request{
		OrgID:              opts.OrgID,
		Text:               text,
		Subject:            opts.Subject,
		DurationMinutes:    opts.DurationMinutes,
		Language:           opts.Language,
		DisableWorkstreams: disableWorkstreams,
	})
}

func (e Engine) legacy(ctx context.Context, opts PlanOptions, disableWorkstreams bool, nudge, reason string) domain.AgendaProposal {
	pl := e.Planner
	if pl.Now == nil {
		pl.Now = e.Now
	}
	if pl.Logger == nil {
		pl.Logger = e.Logger
	}
	subject := opts.Subject
	minutes := opts.DurationMinutes
	if strings.TrimSpace(opts.Prompt) != "" {
		parsed := nlparse.Parse(opts.Prompt, e.cfg().Planner.DefaultDurationMinutes)
		if subject == "" {
			subject = parsed.Subject
		}
		if minutes == 0 {
			minutes = parsed.DurationMinutes
		}
	}
	return pl.Plan(ctx, planner.Request{
		OrgID:              opts.OrgID,
		Subject:            subject,
		Language:           opts.Language,
		DurationMinutes:    minutes,
		DisableWorkstreams: disableWorkstreams,
		Nudge:              nudge,
		FallbackReason:     reason,
	})
}

func (e Engine) unmetPrecondition(opts PlanOptions) domain.AgendaProposal {
	return domain.AgendaProposal{
		OrgID:  opts.OrgID,
		Agenda: domain.Agenda{Title: opts.Subject, Minutes: opts.DurationMinutes, Sections: []domain.Section{}},
		Choice: ChoiceNone,
		Status: domain.ProposalUnmetPrecondition,
		Reason: "macro_mode=strict requires at least one active workstream",
		Subject: domain.SubjectInfo{
			Query: opts.Subject,
		},
		SupportingFactIDs: []string{},
		Metadata: domain.AgendaMetadata{
			AgendaVersion: domain.AgendaVersion,
			Generator:     ChoiceNone,
			Workstreams:   []domain.WorkstreamSummary{},
			Refs:          []domain.Ref{},
			Nudge:         domain.NudgeNoWorkstreams,
		},
		CreatedAt: domain.FormatTime(e.now()),
	}
}

func fallbackReason(err error) string {
	var ne *workflow.NodeError
	switch {
	case errors.Is(err, workflow.ErrBudgetExceeded):
		return "budget_exceeded"
	case errors.As(err, &ne):
		return "node_error:" + string(ne.Node)
	default:
		return "error"
	}
}

// persist stores the proposal under a key derived from org, subject and the
// agenda body, so replaying the same plan returns the first stored id.
func (e Engine) persist(ctx context.Context, p domain.AgendaProposal, actorID string) (domain.AgendaProposal, error) {
	body, err := json.Marshal(p.Agenda)
	if err != nil {
		return p, fmt.Errorf("encode agenda: %w", err)
	}
	sum := sha256.Sum256([]byte(p.OrgID + "|" + p.Subject.Query + "|" + string(body)))
	key := hex.EncodeToString(sum[:])
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if actorID == "" {
		actorID = "system"
	}
	now := domain.FormatTime(e.now())

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureOrg(ctx, tx, p.OrgID, "", now); err != nil {
		return p, fmt.Errorf("ensure org: %w", err)
	}
	id, created, err := e.Repo.InsertProposal(ctx, tx, p, key)
	if err != nil {
		return p, fmt.Errorf("insert proposal: %w", err)
	}
	if !created {
		if err := tx.Commit(); err != nil {
			return p, err
		}
		return e.Repo.GetProposal(ctx, id)
	}
	if err := e.Events.Append(ctx, tx, events.TypeAgendaProposed, p.OrgID, "agenda_proposal", id, actorID, events.EventPayload{
		"choice":  p.Choice,
		"status":  p.Status,
		"subject": p.Subject.Query,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// WorkstreamCreateOptions are parameters for creating a workstream.
type WorkstreamCreateOptions struct {
	ID          string
	OrgID       string
	Title       string
	Description string
	Status      string
	Health      string
	Priority    int
	Owner       string
	StartDate   string
	TargetDate  string
	Tags        []string
	Auto        bool
	ActorID     string
}

func validWorkstreamStatus(s string) bool {
	return s == "active" || s == "paused" || s == "archived"
}

func (e Engine) CreateWorkstream(ctx context.Context, opts WorkstreamCreateOptions) (domain.Workstream, error) {
	if opts.OrgID == "" {
		return domain.Workstream{}, errors.New("org_id is required")
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Workstream{}, errors.New("title is required")
	}
	if opts.Status == "" {
		opts.Status = "active"
	}
	if !validWorkstreamStatus(opts.Status) {
		return domain.Workstream{}, fmt.Errorf("invalid status %q", opts.Status)
	}
	if opts.Health == "" {
		opts.Health = string(domain.HealthGreen)
	}
	if !domain.Health(opts.Health).Valid() {
		return domain.Workstream{}, fmt.Errorf("invalid health %q", opts.Health)
	}
	if opts.Priority == 0 {
		opts.Priority = 1
	}
	if opts.Priority < 0 {
		return domain.Workstream{}, errors.New("invalid priority: must be positive")
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.ActorID == "" {
		opts.ActorID = "system"
	}
	now := domain.FormatTime(e.now())
	w := domain.Workstream{
		ID:          opts.ID,
		OrgID:       opts.OrgID,
		Title:       strings.TrimSpace(opts.Title),
		Description: opts.Description,
		Status:      opts.Status,
		Health:      domain.Health(opts.Health),
		Priority:    opts.Priority,
		Owner:       opts.Owner,
		StartDate:   opts.StartDate,
		TargetDate:  opts.TargetDate,
		Tags:        normalizeTags(opts.Tags),
		Auto:        opts.Auto,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Workstream{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureOrg(ctx, tx, w.OrgID, "", now); err != nil {
		return domain.Workstream{}, fmt.Errorf("ensure org: %w", err)
	}
	if err := e.Repo.InsertWorkstream(ctx, tx, w); err != nil {
		return domain.Workstream{}, fmt.Errorf("insert workstream: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TypeWorkstreamSaved, w.OrgID, "workstream", w.ID, opts.ActorID, events.EventPayload{
		"title":  w.Title,
		"health": w.Health,
		"auto":   w.Auto,
	}); err != nil {
		return domain.Workstream{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Workstream{}, err
	}
	return w, nil
}

// WorkstreamUpdateOptions carries optional field updates. Nil means unchanged.
type WorkstreamUpdateOptions struct {
	OrgID       string
	ID          string
	Title       *string
	Description *string
	Status      *string
	Health      *string
	Priority    *int
	Owner       *string
	TargetDate  *string
	Tags        []string
	SetTags     bool
	ActorID     string
}

func (e Engine) UpdateWorkstream(ctx context.Context, opts WorkstreamUpdateOptions) (domain.Workstream, error) {
	if opts.ActorID == "" {
		opts.ActorID = "system"
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Workstream{}, err
	}
	defer tx.Rollback()
	w, err := e.Repo.Workstream(ctx, opts.OrgID, opts.ID)
	if err != nil {
		return domain.Workstream{}, err
	}
	changed := map[string]any{}
	if opts.Title != nil {
		if strings.TrimSpace(*opts.Title) == "" {
			return domain.Workstream{}, errors.New("title is required")
		}
		w.Title = strings.TrimSpace(*opts.Title)
		changed["title"] = w.Title
	}
	if opts.Description != nil {
		w.Description = *opts.Description
		changed["description"] = w.Description
	}
	if opts.Status != nil {
		if !validWorkstreamStatus(*opts.Status) {
			return domain.Workstream{}, fmt.Errorf("invalid status %q", *opts.Status)
		}
		w.Status = *opts.Status
		changed["status"] = w.Status
	}
	if opts.Health != nil {
		if !domain.Health(*opts.Health).Valid() {
			return domain.Workstream{}, fmt.Errorf("invalid health %q", *opts.Health)
		}
		w.Health = domain.Health(*opts.Health)
		changed["health"] = w.Health
	}
	if opts.Priority != nil {
		if *opts.Priority <= 0 {
			return domain.Workstream{}, errors.New("invalid priority: must be positive")
		}
		w.Priority = *opts.Priority
		changed["priority"] = w.Priority
	}
	if opts.Owner != nil {
		w.Owner = *opts.Owner
		changed["owner"] = w.Owner
	}
	if opts.TargetDate != nil {
		w.TargetDate = *opts.TargetDate
		changed["target_date"] = w.TargetDate
	}
	if opts.SetTags {
		w.Tags = normalizeTags(opts.Tags)
		changed["tags"] = w.Tags
	}
	w.UpdatedAt = domain.FormatTime(e.now())
	if err := e.Repo.UpdateWorkstream(ctx, tx, w); err != nil {
		return domain.Workstream{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeWorkstreamSaved, w.OrgID, "workstream", w.ID, opts.ActorID, events.EventPayload(changed)); err != nil {
		return domain.Workstream{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Workstream{}, err
	}
	return w, nil
}

// LinkFacts links facts to a workstream with a shared weight. Weights are
// clamped into [0,1]; unknown fact ids are skipped.
func (e Engine) LinkFacts(ctx context.Context, orgID, workstreamID string, factIDs []string, weight float64, actorID string) error {
	if len(factIDs) == 0 {
		return errors.New("fact_ids is required")
	}
	if actorID == "" {
		actorID = "system"
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.LinkFactsTx(ctx, tx, orgID, workstreamID, factIDs, weight, domain.FormatTime(e.now())); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.TypeFactsLinked, orgID, "workstream", workstreamID, actorID, events.EventPayload{
		"fact_ids": factIDs,
		"weight":   store.ClampWeight(weight),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// FactCreateOptions are parameters for recording a fact.
type FactCreateOptions struct {
	ID           string
	OrgID        string
	Type         string
	Status       string
	Text         string
	Owner        string
	Tags         []string
	Evidence     []domain.Evidence
	DueAt        string
	Source       string
	WorkstreamID string
	ActorID      string
}

func (e Engine) AddFact(ctx context.Context, opts FactCreateOptions) (domain.Fact, error) {
	if opts.OrgID == "" {
		return domain.Fact{}, errors.New("org_id is required")
	}
	if opts.Type == "" {
		opts.Type = string(domain.FactOther)
	}
	if !domain.FactType(opts.Type).Valid() {
		return domain.Fact{}, fmt.Errorf("invalid fact type %q", opts.Type)
	}
	if opts.Status == "" {
		opts.Status = string(domain.StatusProposed)
	}
	if !domain.FactStatus(opts.Status).Valid() {
		return domain.Fact{}, fmt.Errorf("invalid fact status %q", opts.Status)
	}
	if strings.TrimSpace(opts.Text) == "" && len(opts.Evidence) == 0 {
		return domain.Fact{}, errors.New("text or evidence is required")
	}
	var due *string
	if opts.DueAt != "" {
		t := domain.ParseTime(opts.DueAt)
		if t.IsZero() {
			return domain.Fact{}, fmt.Errorf("invalid due_at %q", opts.DueAt)
		}
		s := domain.FormatTime(t)
		due = &s
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Source == "" {
		opts.Source = domain.SourceInternal
	}
	if opts.ActorID == "" {
		opts.ActorID = "system"
	}
	now := domain.FormatTime(e.now())
	f := domain.Fact{
		ID:     opts.ID,
		OrgID:  opts.OrgID,
		Type:   domain.FactType(opts.Type),
		Status: domain.FactStatus(opts.Status),
		Payload: domain.FactPayload{
			Text:     strings.TrimSpace(opts.Text),
			Owner:    opts.Owner,
			Tags:     normalizeTags(opts.Tags),
			Evidence: opts.Evidence,
		},
		Source:    opts.Source,
		CreatedAt: now,
		UpdatedAt: now,
		DueAt:     due,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Fact{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureOrg(ctx, tx, f.OrgID, "", now); err != nil {
		return domain.Fact{}, fmt.Errorf("ensure org: %w", err)
	}
	if err := e.Repo.InsertFact(ctx, tx, f); err != nil {
		return domain.Fact{}, fmt.Errorf("insert fact: %w", err)
	}
	if opts.WorkstreamID != "" {
		if err := e.Repo.LinkFactsTx(ctx, tx, f.OrgID, opts.WorkstreamID, []string{f.ID}, 1, now); err != nil {
			return domain.Fact{}, fmt.Errorf("link fact: %w", err)
		}
		f.WorkstreamID = opts.WorkstreamID
	}
	if err := e.Events.Append(ctx, tx, events.TypeFactCreated, f.OrgID, "fact", f.ID, opts.ActorID, events.EventPayload{
		"type":          f.Type,
		"status":        f.Status,
		"workstream_id": opts.WorkstreamID,
	}); err != nil {
		return domain.Fact{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Fact{}, err
	}
	return f, nil
}

func (e Engine) SetFactStatus(ctx context.Context, orgID, id, status, actorID string) (domain.Fact, error) {
	if !domain.FactStatus(status).Valid() {
		return domain.Fact{}, fmt.Errorf("invalid fact status %q", status)
	}
	if actorID == "" {
		actorID = "system"
	}
	f, err := e.Repo.GetFact(ctx, id)
	if err != nil {
		return domain.Fact{}, err
	}
	if f.OrgID != orgID {
		return domain.Fact{}, repo.ErrNotFound
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Fact{}, err
	}
	defer tx.Rollback()
	now := domain.FormatTime(e.now())
	if err := e.Repo.UpdateFactStatus(ctx, tx, id, domain.FactStatus(status), now); err != nil {
		return domain.Fact{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeFactUpdated, orgID, "fact", id, actorID, events.EventPayload{
		"from": f.Status,
		"to":   status,
	}); err != nil {
		return domain.Fact{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Fact{}, err
	}
	f.Status = domain.FactStatus(status)
	f.UpdatedAt = now
	return f, nil
}

// MeetingOptions records a held meeting so its open items carry over.
type MeetingOptions struct {
	OrgID     string
	Title     string
	Subject   string
	HeldAt    string
	OpenItems []string
	ActorID   string
}

func (e Engine) RecordMeeting(ctx context.Context, opts MeetingOptions) (domain.Meeting, error) {
	if opts.OrgID == "" {
		return domain.Meeting{}, errors.New("org_id is required")
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Meeting{}, errors.New("title is required")
	}
	now := e.now()
	held := now
	if opts.HeldAt != "" {
		held = domain.ParseTime(opts.HeldAt)
		if held.IsZero() {
			return domain.Meeting{}, fmt.Errorf("invalid held_at %q", opts.HeldAt)
		}
	}
	if opts.ActorID == "" {
		opts.ActorID = "system"
	}
	var items []string
	for _, it := range opts.OpenItems {
		if s := strings.TrimSpace(it); s != "" {
			items = append(items, s)
		}
	}
	m := domain.Meeting{
		ID:        uuid.NewString(),
		OrgID:     opts.OrgID,
		Title:     strings.TrimSpace(opts.Title),
		Subject:   opts.Subject,
		HeldAt:    domain.FormatTime(held),
		OpenItems: items,
		CreatedAt: domain.FormatTime(now),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Meeting{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureOrg(ctx, tx, m.OrgID, "", m.CreatedAt); err != nil {
		return domain.Meeting{}, fmt.Errorf("ensure org: %w", err)
	}
	if err := e.Repo.InsertMeeting(ctx, tx, m); err != nil {
		return domain.Meeting{}, fmt.Errorf("insert meeting: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TypeMeetingRecorded, m.OrgID, "meeting", m.ID, opts.ActorID, events.EventPayload{
		"title":      m.Title,
		"open_items": len(m.OpenItems),
	}); err != nil {
		return domain.Meeting{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Meeting{}, err
	}
	return m, nil
}

// CreateAPIKey returns the plaintext key once; only its hash is stored.
// Without scopes the key grants every scope.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string, scopes ...string) (string, domain.APIKey, error) {
	if strings.TrimSpace(actorID) == "" {
		return "", domain.APIKey{}, errors.New("actor_id is required")
	}
	var granted []string
	for _, sc := range scopes {
		sc = strings.TrimSpace(sc)
		if sc == "" {
			continue
		}
		if !auth.Valid(sc) {
			return "", domain.APIKey{}, fmt.Errorf("invalid scope %q", sc)
		}
		granted = append(granted, sc)
	}
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", domain.APIKey{}, fmt.Errorf("generate key: %w", err)
	}
	plain := "agk_" + hex.EncodeToString(raw)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		Scopes:    granted,
		CreatedAt: domain.FormatTime(e.now()),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return "", domain.APIKey{}, fmt.Errorf("insert api key: %w", err)
	}
	e.logger().Info("api key created", zap.String("id", key.ID), zap.String("actor", actorID), zap.Strings("scopes", granted))
	return plain, key, nil
}

// RevokeAPIKey deletes a key. Only its owner may revoke it.
func (e Engine) RevokeAPIKey(ctx context.Context, id, actorID string) error {
	keys, err := e.Repo.ListAPIKeys(ctx, actorID)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k.ID == id {
			if err := e.Repo.DeleteAPIKey(ctx, id); err != nil {
				return err
			}
			e.logger().Info("api key revoked", zap.String("id", id), zap.String("actor", actorID))
			return nil
		}
	}
	return fmt.Errorf("api key %s: %w", id, repo.ErrNotFound)
}

func normalizeTags(tags []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
