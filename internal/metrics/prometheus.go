// Package metrics exports planning metrics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tktechnologies/meeting-agent/internal/research"
	"github.com/tktechnologies/meeting-agent/internal/workflow"
)

const DefaultNamespace = "meeting_agent"

// Prometheus records workflow node latency, node failures, refinement loops,
// planner fallbacks and deep research outcomes. A nil *Prometheus is a valid
// no-op recorder.
type Prometheus struct {
	gatherer     promclient.Gatherer
	nodeDuration *promclient.HistogramVec
	nodeErrors   *promclient.CounterVec
	refinements  promclient.Histogram
	quality      promclient.Histogram
	proposals    *promclient.CounterVec
	fallbacks    *promclient.CounterVec
	research     *promclient.CounterVec
	researchTime promclient.Histogram
}

// New registers the collectors on reg. A nil reg uses a fresh registry so
// tests and multiple engines in one process do not collide.
func New(namespace string, reg *promclient.Registry) (*Prometheus, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = promclient.NewRegistry()
	}
	p := &Prometheus{gatherer: reg}
	var err error
	if p.nodeDuration, err = register(reg, promclient.NewHistogramVec(promclient.HistogramOpts{
		Namespace: namespace,
		Name:      "workflow_node_duration_seconds",
		Help:      "Latency of each workflow node.",
		Buckets:   promclient.DefBuckets,
	}, []string{"node"})); err != nil {
		return nil, err
	}
	if p.nodeErrors, err = register(reg, promclient.NewCounterVec(promclient.CounterOpts{
		Namespace: namespace,
		Name:      "workflow_node_errors_total",
		Help:      "Count of workflow node failures.",
	}, []string{"node"})); err != nil {
		return nil, err
	}
	if p.refinements, err = register(reg, promclient.NewHistogram(promclient.HistogramOpts{
		Namespace: namespace,
		Name:      "workflow_refinements",
		Help:      "Refinement loops per workflow run.",
		Buckets:   []float64{0, 1, 2, 3},
	})); err != nil {
		return nil, err
	}
	if p.quality, err = register(reg, promclient.NewHistogram(promclient.HistogramOpts{
		Namespace: namespace,
		Name:      "agenda_quality_score",
		Help:      "Final review score of generated agendas.",
		Buckets:   []float64{0.3, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
	})); err != nil {
		return nil, err
	}
	if p.proposals, err = register(reg, promclient.NewCounterVec(promclient.CounterOpts{
		Namespace: namespace,
		Name:      "agenda_proposals_total",
		Help:      "Agenda proposals by generator and status.",
	}, []string{"generator", "status"})); err != nil {
		return nil, err
	}
	if p.fallbacks, err = register(reg, promclient.NewCounterVec(promclient.CounterOpts{
		Namespace: namespace,
		Name:      "planner_fallbacks_total",
		Help:      "Times the deterministic planner replaced the workflow.",
	}, []string{"reason"})); err != nil {
		return nil, err
	}
	if p.research, err = register(reg, promclient.NewCounterVec(promclient.CounterOpts{
		Namespace: namespace,
		Name:      "deep_research_total",
		Help:      "Deep research escalations by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if p.researchTime, err = register(reg, promclient.NewHistogram(promclient.HistogramOpts{
		Namespace: namespace,
		Name:      "deep_research_duration_seconds",
		Help:      "Wall time of deep research escalations.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
	})); err != nil {
		return nil, err
	}
	return p, nil
}

func register[C promclient.Collector](reg promclient.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are promclient.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	if p == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

func (p *Prometheus) OnNodeEnter(context.Context, workflow.RunInfo, workflow.Node) {}

func (p *Prometheus) OnNodeExit(_ context.Context, _ workflow.RunInfo, node workflow.Node, elapsed time.Duration, err error) {
	if p == nil {
		return
	}
	p.nodeDuration.WithLabelValues(string(node)).Observe(elapsed.Seconds())
	if err != nil {
		p.nodeErrors.WithLabelValues(string(node)).Inc()
	}
}

func (p *Prometheus) RecordResearch(outcome string, elapsed time.Duration) {
	if p == nil {
		return
	}
	p.research.WithLabelValues(outcome).Inc()
	p.researchTime.Observe(elapsed.Seconds())
}

// RecordProposal counts a finished proposal. Refinements and quality are
// observed only when the workflow produced them.
func (p *Prometheus) RecordProposal(generator, status string, refinements *int, quality *float64) {
	if p == nil {
		return
	}
	p.proposals.WithLabelValues(generator, status).Inc()
	if refinements != nil {
		p.refinements.Observe(float64(*refinements))
	}
	if quality != nil {
		p.quality.Observe(*quality)
	}
}

func (p *Prometheus) RecordFallback(reason string) {
	if p == nil {
		return
	}
	p.fallbacks.WithLabelValues(reason).Inc()
}

var (
	_ workflow.Observer = (*Prometheus)(nil)
	_ research.Recorder = (*Prometheus)(nil)
)
