// Package app is the composition root shared by the CLI, the HTTP server and
// the MCP server. It turns agenda.yml into wired components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tktechnologies/meeting-agent/internal/config"
	"github.com/tktechnologies/meeting-agent/internal/db"
	"github.com/tktechnologies/meeting-agent/internal/engine"
	"github.com/tktechnologies/meeting-agent/internal/events"
	"github.com/tktechnologies/meeting-agent/internal/llm"
	"github.com/tktechnologies/meeting-agent/internal/metrics"
	"github.com/tktechnologies/meeting-agent/internal/migrate"
	"github.com/tktechnologies/meeting-agent/internal/planner"
	"github.com/tktechnologies/meeting-agent/internal/ranking"
	"github.com/tktechnologies/meeting-agent/internal/repo"
	"github.com/tktechnologies/meeting-agent/internal/research"
	"github.com/tktechnologies/meeting-agent/internal/retrieval"
	"github.com/tktechnologies/meeting-agent/internal/workflow"
)

// Options carries what the config file does not: secrets and process-level
// collaborators.
type Options struct {
	LLMAPIKey      string
	ResearchAPIKey string
	Logger         *zap.Logger
	// Registry receives the metrics collectors. Nil uses a private registry.
	Registry *prometheus.Registry
}

// App is the wired service. Research is nil when deep research is disabled.
type App struct {
	Engine   engine.Engine
	Research *research.Client
	Metrics  *metrics.Prometheus
	Config   *config.Config
}

// OpenDB opens the workspace database, or store.path when cfg sets one, and
// applies pending migrations.
func OpenDB(ctx context.Context, workspace string, cfg *config.Config) (*sql.DB, error) {
	dbCfg := db.Config{Workspace: workspace}
	if cfg != nil {
		dbCfg.Path = cfg.Store.Path
	}
	conn, err := db.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return conn, nil
}

// LoadConfig reads an explicit file when path is set, otherwise the
// workspace agenda.yml, falling back to defaults when it does not exist.
func LoadConfig(workspace, path string) (*config.Config, error) {
	if path != "" {
		return config.FromFile(path)
	}
	return config.LoadOptional(workspace)
}

// Build wires the engine and its planning collaborators over conn.
func Build(ctx context.Context, conn *sql.DB, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := repo.Repo{DB: conn}
	if cfg.Store.FTSEnabled {
		if err := repo.EnableFTS(ctx, conn); err != nil {
			log.Warn("full-text search unavailable; using LIKE search", zap.Error(err))
		} else {
			r.FTS = true
		}
	}

	m, err := metrics.New(metrics.DefaultNamespace, opts.Registry)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	rk := RankerConfig(cfg)
	rt := retrieval.Retriever{Store: r, Config: RetrievalConfig(cfg), Logger: log.Named("retrieval")}

	var client *research.Client
	if cfg.Research.Enabled {
		client = ResearchClient(cfg, opts.ResearchAPIKey, log.Named("research"))
		rt.Escalator = research.Escalator{
			Researcher:    client,
			MinQuality:    cfg.Research.MinQuality,
			FallbackDepth: cfg.Research.FallbackDepth,
			Logger:        log.Named("research"),
			Recorder:      m,
			Allow:         cfg.Research.EnabledFor,
		}
	}

	eng := engine.New(conn, cfg)
	eng.Repo = r
	eng.Metrics = m
	eng.Logger = log
	eng.Planner = planner.Planner{Store: r, Ranker: rk, Logger: log.Named("planner"), StaleAfter: days(cfg.Workflow.StaleAfterDays)}
	wf := &workflow.Workflow{
		Store:     r,
		Retriever: rt,
		Ranker:    rk,
		Config:    WorkflowConfig(cfg),
		Logger:    log.Named("workflow"),
		Observer: workflow.MultiObserver{
			m,
			events.NodeRecorder{Writer: eng.Events, Logger: log.Named("events")},
		},
	}

	if cfg.LLM.Provider == "gemini" {
		if opts.LLMAPIKey == "" {
			log.Warn("llm provider configured without an API key; using heuristics only")
		} else {
			gen, err := llm.NewGemini(ctx, opts.LLMAPIKey, cfg.LLM.Model, cfg.LLM.Temperature)
			if err != nil {
				return nil, err
			}
			assistant, err := llm.NewAssistant(gen, cfg.LLM.CacheSize, seconds(cfg.LLM.TimeoutSeconds), log.Named("llm"))
			if err != nil {
				return nil, fmt.Errorf("llm assistant: %w", err)
			}
			wf.Classifier = assistant
			wf.Drafter = assistant
			wf.Scorer = assistant
			wf.Summarizer = assistant
		}
	}
	eng.Workflow = wf

	return &App{Engine: eng, Research: client, Metrics: m, Config: cfg}, nil
}

// ResearchClient builds the deep research client with its circuit breaker.
func ResearchClient(cfg *config.Config, apiKey string, log *zap.Logger) *research.Client {
	breaker := research.NewBreaker(research.BreakerConfig{
		FailureThreshold: cfg.Research.FailureThreshold,
		Cooldown:         seconds(cfg.Research.CooldownSeconds),
	})
	c := research.NewClient(cfg.Research.BaseURL, apiKey, breaker)
	if cfg.Research.ModelProvider != "" {
		c.ModelProvider = cfg.Research.ModelProvider
	}
	if cfg.Research.SearchProvider != "" {
		c.SearchProvider = cfg.Research.SearchProvider
	}
	if t := seconds(cfg.Research.TimeoutSeconds); t > 0 {
		c.Timeout = t
	}
	if log != nil {
		c.Logger = log
	}
	return c
}

func WorkflowConfig(cfg *config.Config) workflow.Config {
	w := cfg.Workflow
	out := workflow.DefaultConfig()
	out.QualityThreshold = w.QualityThreshold
	out.MaxRefinements = w.MaxRefinements
	out.LowConfidence = w.LowConfidenceThreshold
	out.DominanceCap = w.DominanceCap
	out.Budget = seconds(w.BudgetSeconds)
	out.TopK = w.TopK
	out.StaleAfter = days(w.StaleAfterDays)
	out.MaxWorkstreams = w.MaxWorkstreams
	out.DefaultMinutes = cfg.Planner.DefaultDurationMinutes
	out.AllowResearch = cfg.Research.Enabled
	return out
}

func RetrievalConfig(cfg *config.Config) retrieval.Config {
	c := cfg.Retrieval
	out := retrieval.DefaultConfig()
	if c.PerWorkstream > 0 {
		out.PerWorkstream = c.PerWorkstream
	}
	if c.MaxKeywords > 0 {
		out.MaxKeywords = c.MaxKeywords
	}
	if c.EscalationThreshold > 0 {
		out.EscalationThreshold = c.EscalationThreshold
	}
	if c.UrgencyHorizonDays > 0 {
		out.UrgencyHorizon = days(c.UrgencyHorizonDays)
	}
	if c.StoreTimeoutSeconds > 0 {
		out.StoreTimeout = seconds(c.StoreTimeoutSeconds)
	}
	if cfg.Workflow.MaxWorkstreams > 0 {
		out.MaxWorkstreams = cfg.Workflow.MaxWorkstreams
	}
	return out
}

func RankerConfig(cfg *config.Config) ranking.Ranker {
	w := cfg.Ranking.Weights
	rk := ranking.New()
	rk.Weights = ranking.Weights{Status: w.Status, Urgency: w.Urgency, Recency: w.Recency, Evidence: w.Evidence, Type: w.Type}
	if cfg.Ranking.ResearchBoost > 0 {
		rk.ResearchBoost = cfg.Ranking.ResearchBoost
	}
	if cfg.Ranking.RecencyHalfLifeDays > 0 {
		rk.RecencyHalfLife = days(cfg.Ranking.RecencyHalfLifeDays)
	}
	return rk
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }
