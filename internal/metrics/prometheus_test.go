package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tktechnologies/meeting-agent/internal/workflow"
)

func TestNodeMetrics(t *testing.T) {
	p, err := New("", nil)
	require.NoError(t, err)
	run := workflow.RunInfo{RunID: "r1", OrgID: "org"}
	p.OnNodeExit(context.Background(), run, workflow.NodeDraft, 20*time.Millisecond, nil)
	p.OnNodeExit(context.Background(), run, workflow.NodeDraft, 10*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(p.nodeErrors.WithLabelValues("draft_agenda")))
	assert.Equal(t, 0.0, testutil.ToFloat64(p.nodeErrors.WithLabelValues("review_quality")))
}

func TestCountersAndHandler(t *testing.T) {
	p, err := New("test", nil)
	require.NoError(t, err)
	refinements := 2
	quality := 0.8
	p.RecordProposal("workflow", "ok", &refinements, &quality)
	p.RecordFallback("timeout")
	p.RecordResearch("ok", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.proposals.WithLabelValues("workflow", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.fallbacks.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.research.WithLabelValues("ok")))

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "test_planner_fallbacks_total"))
}

func TestRegisterReusesExisting(t *testing.T) {
	reg := promclient.NewRegistry()
	a, err := New("dup", reg)
	require.NoError(t, err)
	b, err := New("dup", reg)
	require.NoError(t, err)
	a.RecordFallback("x")
	assert.Equal(t, 1.0, testutil.ToFloat64(b.fallbacks.WithLabelValues("x")))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var p *Prometheus
	p.RecordFallback("x")
	p.RecordResearch("ok", time.Second)
	p.RecordProposal("legacy", "ok", nil, nil)
	p.OnNodeExit(context.Background(), workflow.RunInfo{}, workflow.NodeParse, time.Second, nil)
}
