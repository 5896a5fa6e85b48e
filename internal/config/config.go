package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const FileName = "agenda.yml"

// Config models agenda.yml.
type Config struct {
	Org struct {
		DefaultID string `yaml:"default_id"`
	} `yaml:"org"`
	Planner struct {
		DefaultLanguage        string `yaml:"default_language"`
		DefaultDurationMinutes int    `yaml:"default_duration_minutes"`
		MacroMode              string `yaml:"macro_mode"`
	} `yaml:"planner"`
	Workflow struct {
		Enabled                bool    `yaml:"enabled"`
		FallbackOnError        bool    `yaml:"fallback_on_error"`
		QualityThreshold       float64 `yaml:"quality_threshold"`
		MaxRefinements         int     `yaml:"max_refinements"`
		LowConfidenceThreshold float64 `yaml:"low_confidence_threshold"`
		DominanceCap           float64 `yaml:"dominance_cap"`
		BudgetSeconds          int     `yaml:"budget_seconds"`
		TopK                   int     `yaml:"top_k"`
		StaleAfterDays         int     `yaml:"stale_after_days"`
		MaxWorkstreams         int     `yaml:"max_workstreams"`
	} `yaml:"workflow"`
	Retrieval struct {
		PerWorkstream       int `yaml:"per_workstream"`
		MaxKeywords         int `yaml:"max_keywords"`
		EscalationThreshold int `yaml:"escalation_threshold"`
		UrgencyHorizonDays  int `yaml:"urgency_horizon_days"`
		StoreTimeoutSeconds int `yaml:"store_timeout_seconds"`
	} `yaml:"retrieval"`
	Ranking struct {
		Weights             RankingWeights `yaml:"weights"`
		ResearchBoost       float64        `yaml:"research_boost"`
		RecencyHalfLifeDays int            `yaml:"recency_half_life_days"`
	} `yaml:"ranking"`
	Research ResearchConfig `yaml:"research"`
	LLM      struct {
		Provider       string  `yaml:"provider"`
		Model          string  `yaml:"model"`
		Temperature    float64 `yaml:"temperature"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		CacheSize      int     `yaml:"cache_size"`
	} `yaml:"llm"`
	Store struct {
		FTSEnabled bool `yaml:"fts_enabled"`
		// Path overrides <workspace>/.agenda/agenda.db.
		Path string `yaml:"path"`
	} `yaml:"store"`
	Logging struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"logging"`
	AutoWorkstreams struct {
		Enabled        bool `yaml:"enabled"`
		MinClusterSize int  `yaml:"min_cluster_size"`
		MaxPerOrg      int  `yaml:"max_per_org"`
	} `yaml:"auto_workstreams"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type RankingWeights struct {
	Status   float64 `yaml:"status"`
	Urgency  float64 `yaml:"urgency"`
	Recency  float64 `yaml:"recency"`
	Evidence float64 `yaml:"evidence"`
	Type     float64 `yaml:"type"`
}

type ResearchConfig struct {
	Enabled          bool     `yaml:"enabled"`
	BaseURL          string   `yaml:"base_url"`
	ModelProvider    string   `yaml:"model_provider"`
	SearchProvider   string   `yaml:"search_provider"`
	TimeoutSeconds   int      `yaml:"timeout_seconds"`
	MinQuality       float64  `yaml:"min_quality"`
	FallbackDepth    int      `yaml:"fallback_depth"`
	FailureThreshold int      `yaml:"failure_threshold"`
	CooldownSeconds  int      `yaml:"cooldown_seconds"`
	Orgs             []string `yaml:"orgs"`
}

// EnabledFor reports whether escalation may run for the org.
func (r ResearchConfig) EnabledFor(orgID string) bool {
	if !r.Enabled {
		return false
	}
	if len(r.Orgs) == 0 {
		return true
	}
	for _, o := range r.Orgs {
		if strings.TrimSpace(o) == orgID {
			return true
		}
	}
	return false
}

type WebhookConfig struct {
	URL     string   `yaml:"url"`
	Secret  string   `yaml:"secret"`
	Events  []string `yaml:"events"`
	Enabled *bool    `yaml:"enabled"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Org.DefaultID == "" {
		return fmt.Errorf("config.org.default_id is required")
	}
	switch c.Planner.DefaultLanguage {
	case "en-US", "pt-BR":
	default:
		return fmt.Errorf("config.planner.default_language must be en-US or pt-BR")
	}
	if c.Planner.DefaultDurationMinutes <= 0 {
		return fmt.Errorf("config.planner.default_duration_minutes must be positive")
	}
	switch c.Planner.MacroMode {
	case "auto", "strict", "off":
	default:
		return fmt.Errorf("config.planner.macro_mode must be one of auto, strict, off")
	}
	if c.Workflow.QualityThreshold < 0 || c.Workflow.QualityThreshold > 1 {
		return fmt.Errorf("config.workflow.quality_threshold must be within [0,1]")
	}
	if c.Workflow.MaxRefinements < 0 {
		return fmt.Errorf("config.workflow.max_refinements must not be negative")
	}
	if c.Workflow.DominanceCap <= 0 || c.Workflow.DominanceCap > 1 {
		return fmt.Errorf("config.workflow.dominance_cap must be within (0,1]")
	}
	if c.Workflow.BudgetSeconds <= 0 {
		return fmt.Errorf("config.workflow.budget_seconds must be positive")
	}
	if c.Workflow.TopK <= 0 {
		return fmt.Errorf("config.workflow.top_k must be positive")
	}
	w := c.Ranking.Weights
	for name, v := range map[string]float64{"status": w.Status, "urgency": w.Urgency, "recency": w.Recency, "evidence": w.Evidence, "type": w.Type} {
		if v < 0 {
			return fmt.Errorf("config.ranking.weights.%s must not be negative", name)
		}
	}
	if sum := w.Status + w.Urgency + w.Recency + w.Evidence + w.Type; sum <= 0 {
		return fmt.Errorf("config.ranking.weights must not all be zero")
	}
	if c.Ranking.ResearchBoost <= 0 {
		return fmt.Errorf("config.ranking.research_boost must be positive")
	}
	if c.Research.Enabled && c.Research.BaseURL == "" {
		return fmt.Errorf("config.research.base_url is required when research is enabled")
	}
	if c.Research.TimeoutSeconds >= c.Workflow.BudgetSeconds {
		return fmt.Errorf("config.research.timeout_seconds must be below config.workflow.budget_seconds")
	}
	if c.Research.MinQuality < 0 || c.Research.MinQuality > 10 {
		return fmt.Errorf("config.research.min_quality must be within [0,10]")
	}
	switch c.LLM.Provider {
	case "", "none", "gemini":
	default:
		return fmt.Errorf("config.llm.provider %s is not supported", c.LLM.Provider)
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from the document keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `org:
  default_id: org_demo

planner:
  default_language: en-US
  default_duration_minutes: 30
  macro_mode: auto

workflow:
  enabled: true
  fallback_on_error: true
  quality_threshold: 0.7
  max_refinements: 2
  low_confidence_threshold: 0.5
  dominance_cap: 0.4
  budget_seconds: 300
  top_k: 40
  stale_after_days: 14
  max_workstreams: 3

retrieval:
  per_workstream: 20
  max_keywords: 10
  escalation_threshold: 8
  urgency_horizon_days: 7
  store_timeout_seconds: 10

ranking:
  weights:
    status: 0.35
    urgency: 0.25
    recency: 0.15
    evidence: 0.15
    type: 0.10
  research_boost: 1.2
  recency_half_life_days: 30

research:
  enabled: false
  base_url: http://localhost:8000
  model_provider: gemini
  search_provider: tavily
  timeout_seconds: 240
  min_quality: 3.0
  fallback_depth: 3
  failure_threshold: 5
  cooldown_seconds: 60
  orgs: []

llm:
  provider: none
  model: gemini-2.5-flash
  temperature: 0.2
  timeout_seconds: 30
  cache_size: 256

store:
  fts_enabled: true
  path: ""

logging:
  level: info
  development: false

auto_workstreams:
  enabled: false
  min_cluster_size: 3
  max_per_org: 10

webhooks: []
`
