package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/tktechnologies/meeting-agent/internal/domain"
	"github.com/tktechnologies/meeting-agent/internal/store"
)

const workstreamColumns = `w.id,w.org_id,w.title,COALESCE(w.description,''),w.status,w.health,w.priority,COALESCE(w.owner,''),
COALESCE(w.start_date,''),COALESCE(w.target_date,''),w.tags_json,w.auto,w.created_at,w.updated_at,
(SELECT COUNT(*) FROM workstream_facts wf WHERE wf.workstream_id=w.id)`

func scanWorkstream(scan func(dest ...any) error) (domain.Workstream, error) {
	var w domain.Workstream
	var tags string
	var auto int
	err := scan(&w.ID, &w.OrgID, &w.Title, &w.Description, &w.Status, &w.Health, &w.Priority, &w.Owner,
		&w.StartDate, &w.TargetDate, &tags, &auto, &w.CreatedAt, &w.UpdatedAt, &w.FactCount)
	if err != nil {
		return w, err
	}
	w.Tags = unmarshalStrings(tags)
	w.Auto = auto != 0
	return w, nil
}

func (r Repo) InsertWorkstream(ctx context.Context, tx *sql.Tx, w domain.Workstream) error {
	if w.Status == "" {
		w.Status = "active"
	}
	if w.Health == "" {
		w.Health = domain.HealthGreen
	}
	if w.UpdatedAt == "" {
		w.UpdatedAt = w.CreatedAt
	}
	auto := 0
	if w.Auto {
		auto = 1
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO workstreams(id,org_id,title,description,status,health,priority,owner,start_date,target_date,tags_json,auto,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		w.ID, w.OrgID, w.Title, nullable(w.Description), w.Status, w.Health, w.Priority, nullable(w.Owner),
		nullable(w.StartDate), nullable(w.TargetDate), marshalStrings(w.Tags), auto, w.CreatedAt, w.UpdatedAt)
	return err
}

// UpdateWorkstream rewrites the mutable fields. Identity and created_at are kept.
func (r Repo) UpdateWorkstream(ctx context.Context, tx *sql.Tx, w domain.Workstream) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE workstreams SET title=?, description=?, status=?, health=?, priority=?, owner=?,
start_date=?, target_date=?, tags_json=?, updated_at=? WHERE id=? AND org_id=?`,
		w.Title, nullable(w.Description), w.Status, w.Health, w.Priority, nullable(w.Owner),
		nullable(w.StartDate), nullable(w.TargetDate), marshalStrings(w.Tags), w.UpdatedAt, w.ID, w.OrgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) workstream(ctx context.Context, tx *sql.Tx, orgID, id string) (domain.Workstream, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT `+workstreamColumns+` FROM workstreams w WHERE w.id=? AND w.org_id=?`, id, orgID)
	w, err := scanWorkstream(row.Scan)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	return w, err
}

// Workstream returns ErrNotFound when the id is unknown in the org.
func (r Repo) Workstream(ctx context.Context, orgID, id string) (domain.Workstream, error) {
	return r.workstream(ctx, nil, orgID, id)
}

func (r Repo) GetWorkstream(ctx context.Context, orgID, id string) (domain.Workstream, bool, error) {
	w, err := r.workstream(ctx, nil, orgID, id)
	if err == ErrNotFound {
		return domain.Workstream{}, false, nil
	}
	if err != nil {
		return domain.Workstream{}, false, err
	}
	return w, true, nil
}

func (r Repo) ListWorkstreams(ctx context.Context, orgID string, f store.WorkstreamFilters) ([]domain.Workstream, error) {
	clauses := []string{"w.org_id=?"}
	args := []any{orgID}
	if f.Status != "" {
		clauses = append(clauses, "w.status=?")
		args = append(args, f.Status)
	}
	if f.MinPriority > 0 {
		clauses = append(clauses, "w.priority>=?")
		args = append(args, f.MinPriority)
	}
	if len(f.IDs) > 0 {
		clauses = append(clauses, "w.id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		clauses = append(clauses, `fold(w.title || ' ' || COALESCE(w.description,'') || ' ' || w.tags_json) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(q))+"%")
	}
	query := `SELECT ` + workstreamColumns + ` FROM workstreams w WHERE ` + strings.Join(clauses, " AND ") +
		` ORDER BY w.priority DESC, CASE w.health WHEN 'red' THEN 2 WHEN 'yellow' THEN 1 ELSE 0 END DESC, w.id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Workstream
	for rows.Next() {
		w, err := scanWorkstream(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

// UnlinkFact removes a single link. Missing links are not an error.
func (r Repo) UnlinkFact(ctx context.Context, tx *sql.Tx, workstreamID, factID string) error {
	_, err := r.q(tx).ExecContext(ctx, `DELETE FROM workstream_facts WHERE workstream_id=? AND fact_id=?`, workstreamID, factID)
	return err
}

func (r Repo) ListLinks(ctx context.Context, workstreamID string) ([]domain.WorkstreamLink, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT workstream_id,fact_id,weight,created_at FROM workstream_facts WHERE workstream_id=? ORDER BY weight DESC, fact_id`, workstreamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkstreamLink
	for rows.Next() {
		var l domain.WorkstreamLink
		if err := rows.Scan(&l.WorkstreamID, &l.FactID, &l.Weight, &l.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}
