package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tktechnologies/meeting-agent/internal/workflow"
)

const (
	TypeAgendaProposed  = "agenda.proposed"
	TypeFactCreated     = "fact.created"
	TypeFactUpdated     = "fact.updated"
	TypeWorkstreamSaved = "workstream.saved"
	TypeFactsLinked     = "workstream.linked"
	TypeMeetingRecorded = "meeting.recorded"
	TypeWorkflowNode    = "workflow.node"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one event row. A nil tx writes through the pool.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, orgID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	query := `INSERT INTO events(ts,type,org_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`
	args := []any{ts, evtType, nullable(orgID), entityKind, nullable(entityID), actorID, string(data)}
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = w.DB.ExecContext(ctx, query, args...)
	}
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// NodeRecorder appends a workflow.node event each time a node finishes.
// Write failures are logged and never reach the workflow.
type NodeRecorder struct {
	Writer  Writer
	ActorID string
	Logger  *zap.Logger
}

func (r NodeRecorder) OnNodeEnter(context.Context, workflow.RunInfo, workflow.Node) {}

func (r NodeRecorder) OnNodeExit(ctx context.Context, run workflow.RunInfo, node workflow.Node, elapsed time.Duration, err error) {
	payload := EventPayload{
		"run_id":     run.RunID,
		"node":       string(node),
		"elapsed_ms": elapsed.Milliseconds(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	actor := r.ActorID
	if actor == "" {
		actor = "system"
	}
	if werr := r.Writer.Append(context.WithoutCancel(ctx), nil, TypeWorkflowNode, run.OrgID, "workflow_run", run.RunID, actor, payload); werr != nil && r.Logger != nil {
		r.Logger.Warn("record workflow node", zap.String("node", string(node)), zap.Error(werr))
	}
}

var _ workflow.Observer = NodeRecorder{}
