package research

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tktechnologies/meeting-agent/internal/domain"
)

// Outcome labels one escalation for logs and metrics.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeFallbackOK  Outcome = "fallback_ok"
	OutcomeLowQuality  Outcome = "low_quality"
	OutcomeFailed      Outcome = "failed"
	OutcomeCircuitOpen Outcome = "circuit_open"
	OutcomeEmpty       Outcome = "empty"
	OutcomeDisabled    Outcome = "disabled"
)

// Researcher is the capability the escalator depends on. *Client implements it.
type Researcher interface {
	Research(ctx context.Context, topic string, depth int) (Report, error)
}

// Recorder receives one call per escalation.
type Recorder interface {
	RecordResearch(outcome string, elapsed time.Duration)
}

// Escalator runs a research job, retries once at FallbackDepth on a transient
// failure and converts the report. It never returns an error; every failure
// yields zero facts.
type Escalator struct {
	Researcher    Researcher
	MinQuality    float64
	FallbackDepth int
	Logger        *zap.Logger
	Recorder      Recorder
	// Allow restricts escalation to some orgs. Nil allows every org.
	Allow func(orgID string) bool
	Now   func() time.Time
}

type EscalationRequest struct {
	OrgID  string
	Topic  string
	Intent string
	Budget time.Duration
}

func (e Escalator) Escalate(ctx context.Context, req EscalationRequest) ([]domain.Fact, Outcome) {
	start := time.Now()
	facts, outcome := e.escalate(ctx, req)
	if e.Recorder != nil {
		e.Recorder.RecordResearch(string(outcome), time.Since(start))
	}
	return facts, outcome
}

func (e Escalator) escalate(ctx context.Context, req EscalationRequest) ([]domain.Fact, Outcome) {
	log := e.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if e.Researcher == nil || req.Topic == "" {
		return nil, OutcomeEmpty
	}
	if e.Allow != nil && !e.Allow(req.OrgID) {
		return nil, OutcomeDisabled
	}
	class := ClassifyComplexity(req.Topic, req.Intent)
	depth := DepthFor(class, req.Budget)
	log = log.With(zap.String("org_id", req.OrgID), zap.String("complexity", string(class)), zap.Int("depth", depth))

	outcome := OutcomeOK
	pctx, cancel := primaryContext(ctx)
	report, err := e.Researcher.Research(pctx, req.Topic, depth)
	cancel()
	if err != nil && Transient(err) && ctx.Err() == nil {
		fallback := ClampDepth(e.FallbackDepth)
		log.Warn("deep research retrying at fallback depth", zap.Int("fallback_depth", fallback), zap.Error(err))
		report, err = e.Researcher.Research(ctx, req.Topic, fallback)
		outcome = OutcomeFallbackOK
	}
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			log.Info("deep research skipped", zap.Error(err))
			return nil, OutcomeCircuitOpen
		}
		log.Warn("deep research unavailable", zap.Error(err))
		return nil, OutcomeFailed
	}
	minQuality := e.MinQuality
	if minQuality <= 0 {
		minQuality = DefaultMinQuality
	}
	if !Accepted(report, minQuality) {
		log.Info("deep research below quality gate", zap.Float64("quality", report.AvgQuality), zap.Int("steps", report.StepsCompleted))
		return nil, OutcomeLowQuality
	}
	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}
	facts := Convert(report, req.OrgID, req.Topic, minQuality, now)
	if len(facts) == 0 {
		return nil, OutcomeEmpty
	}
	log.Info("deep research contributed facts", zap.Int("facts", len(facts)), zap.Float64("quality", report.AvgQuality))
	return facts, outcome
}

// primaryContext leaves the fallback attempt at least half of whatever time
// the caller has left.
func primaryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Until(deadline)/2)
}
