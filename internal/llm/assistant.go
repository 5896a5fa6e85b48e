package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/tktechnologies/meeting-agent/internal/domain"
	"github.com/tktechnologies/meeting-agent/internal/intent"
	"github.com/tktechnologies/meeting-agent/internal/workflow"
)

const (
	DefaultCacheSize = 256
	DefaultTimeout   = 30 * time.Second
	maxPromptFacts   = 20
)

// Assistant implements the workflow capabilities on top of a Generator.
// Intent classifications are cached by normalized text and language.
type Assistant struct {
	gen     Generator
	cache   *lru.Cache[string, intent.Classification]
	timeout time.Duration
	logger  *zap.Logger
}

func NewAssistant(gen Generator, cacheSize int, timeout time.Duration, logger *zap.Logger) (*Assistant, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New[string, intent.Classification](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Assistant{gen: gen, cache: cache, timeout: timeout, logger: logger}, nil
}

func (a *Assistant) ask(ctx context.Context, system, prompt string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	raw, err := a.gen.Generate(ctx, system, prompt)
	if err != nil {
		return err
	}
	return decodeJSON(raw, out)
}

const classifySystem = `You classify meeting requests. Answer with JSON {"intent": one of ` +
	`decision_making, problem_solving, planning, alignment, status_update, kickoff; "confidence": number 0..1; "rationale": short string}.`

func (a *Assistant) ClassifyIntent(ctx context.Context, text, language string) (intent.Classification, error) {
	key := cacheKey(language, strings.ToLower(strings.TrimSpace(text)))
	if c, ok := a.cache.Get(key); ok {
		return c, nil
	}
	var out struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale"`
	}
	prompt := fmt.Sprintf("Language: %s\nRequest: %s", language, text)
	if err := a.ask(ctx, classifySystem, prompt, &out); err != nil {
		return intent.Classification{}, fmt.Errorf("classify intent: %w", err)
	}
	in, ok := intent.Parse(out.Intent)
	if !ok {
		return intent.Classification{}, fmt.Errorf("classify intent: unknown intent %q", out.Intent)
	}
	c := intent.Classification{Intent: in, Confidence: out.Confidence, Rationale: out.Rationale}
	a.cache.Add(key, c)
	return c, nil
}

const draftSystem = `You rewrite meeting agenda bullets to be short, forward-looking and actionable. ` +
	`Keep every bullet's meaning and order, never add facts, at most 120 characters each. ` +
	`Answer with JSON {"bullets": [strings]} holding exactly as many bullets as given.`

func (a *Assistant) DraftSection(ctx context.Context, req workflow.SectionRequest) ([]string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\nMeeting subject: %s\nIntent: %s\nSection: %s\nBullets:\n", req.Language, req.Subject, req.Intent, req.Section)
	for i, t := range req.Bullets {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t)
	}
	var out struct {
		Bullets []string `json:"bullets"`
	}
	if err := a.ask(ctx, draftSystem, b.String(), &out); err != nil {
		return nil, fmt.Errorf("draft section: %w", err)
	}
	return out.Bullets, nil
}

const scoreSystem = `You review meeting agendas. Judge clarity, focus on the intent, and whether bullets are actionable. ` +
	`Answer with JSON {"score": number 0..1, "issues": [short strings]}.`

func (a *Assistant) ScoreQuality(ctx context.Context, req workflow.QualityRequest) (workflow.Review, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\nSubject: %s\nIntent: %s\nAgenda: %s (%d min)\n", req.Language, req.Subject, req.Intent, req.Agenda.Title, req.Agenda.Minutes)
	for _, s := range req.Agenda.Sections {
		fmt.Fprintf(&b, "## %s (%d min)\n", s.Title, s.Minutes)
		for _, it := range s.Items {
			for _, bl := range it.Bullets {
				fmt.Fprintf(&b, "- %s\n", bl.Text)
			}
		}
	}
	var out workflow.Review
	if err := a.ask(ctx, scoreSystem, b.String(), &out); err != nil {
		return workflow.Review{}, fmt.Errorf("score quality: %w", err)
	}
	return out, nil
}

const summarySystem = `You summarize the strategic context of an upcoming meeting in two or three sentences. ` +
	`Use only the facts given. Answer with JSON {"summary": string}.`

func (a *Assistant) SummarizeContext(ctx context.Context, req workflow.SummaryRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\nSubject: %s\nWorkstreams:\n", req.Language, req.Subject)
	for _, w := range req.Workstreams {
		fmt.Fprintf(&b, "- %s (health %s, priority %d)\n", w.Title, w.Health, w.Priority)
	}
	b.WriteString("Facts:\n")
	for i, f := range req.Facts {
		if i == maxPromptFacts {
			break
		}
		fmt.Fprintf(&b, "- [%s/%s] %s\n", f.Type, f.Status, factLine(f))
	}
	for _, m := range req.Meetings {
		fmt.Fprintf(&b, "Previous meeting: %s, open items: %s\n", m.Title, strings.Join(m.OpenItems, "; "))
	}
	var out struct {
		Summary string `json:"summary"`
	}
	if err := a.ask(ctx, summarySystem, b.String(), &out); err != nil {
		return "", fmt.Errorf("summarize context: %w", err)
	}
	return strings.TrimSpace(out.Summary), nil
}

func factLine(f domain.Fact) string {
	if f.Payload.Text != "" {
		return f.Payload.Text
	}
	return f.FirstQuote()
}

func cacheKey(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:])
}

var (
	_ workflow.IntentClassifier  = (*Assistant)(nil)
	_ workflow.SectionDrafter    = (*Assistant)(nil)
	_ workflow.QualityScorer     = (*Assistant)(nil)
	_ workflow.ContextSummarizer = (*Assistant)(nil)
)
