package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/tktechnologies/meeting-agent/internal/domain"
	"github.com/tktechnologies/meeting-agent/internal/store"
)

const factColumns = `f.id,f.org_id,f.type,f.status,f.payload_json,f.source,f.due_at,f.created_at,f.updated_at`

type FactFilters struct {
	OrgID           string
	Type            string
	Status          string
	Unlinked        bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// EnableFTS creates the full-text index over fact text and backfills it.
// Callers set Repo.FTS only when this succeeds.
func EnableFTS(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE VIRTUAL TABLE IF NOT EXISTS facts_fts USING fts5(fact_id UNINDEXED, org_id UNINDEXED, body)`); err != nil {
		return fmt.Errorf("create facts_fts: %w", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO facts_fts(fact_id,org_id,body) SELECT id,org_id,text FROM facts WHERE id NOT IN (SELECT fact_id FROM facts_fts)`); err != nil {
		return fmt.Errorf("backfill facts_fts: %w", err)
	}
	return nil
}

func scanFact(scan func(dest ...any) error, extra ...any) (domain.Fact, error) {
	var f domain.Fact
	var payload string
	var dueAt sql.NullString
	dest := []any{&f.ID, &f.OrgID, &f.Type, &f.Status, &payload, &f.Source, &dueAt, &f.CreatedAt, &f.UpdatedAt}
	dest = append(dest, extra...)
	if err := scan(dest...); err != nil {
		return f, err
	}
	if err := json.Unmarshal([]byte(payload), &f.Payload); err != nil {
		return f, fmt.Errorf("decode fact %s payload: %w", f.ID, err)
	}
	if dueAt.Valid && dueAt.String != "" {
		due := dueAt.String
		f.DueAt = &due
	}
	return f, nil
}

func collectFacts(rows *sql.Rows) ([]domain.Fact, error) {
	defer rows.Close()
	var res []domain.Fact
	for rows.Next() {
		f, err := scanFact(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

func (r Repo) InsertFact(ctx context.Context, tx *sql.Tx, f domain.Fact) error {
	payload, err := json.Marshal(f.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if f.Source == "" {
		f.Source = domain.SourceInternal
	}
	if f.UpdatedAt == "" {
		f.UpdatedAt = f.CreatedAt
	}
	body := store.SearchText(f)
	if _, err := r.q(tx).ExecContext(ctx, `INSERT INTO facts(id,org_id,type,status,text,payload_json,source,due_at,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		f.ID, f.OrgID, f.Type, f.Status, body, string(payload), f.Source, nullableStringPtr(f.DueAt), f.CreatedAt, f.UpdatedAt); err != nil {
		return err
	}
	if r.FTS {
		if _, err := r.q(tx).ExecContext(ctx, `INSERT INTO facts_fts(fact_id,org_id,body) VALUES (?,?,?)`, f.ID, f.OrgID, body); err != nil {
			return fmt.Errorf("index fact: %w", err)
		}
	}
	return nil
}

func (r Repo) UpdateFactStatus(ctx context.Context, tx *sql.Tx, id string, status domain.FactStatus, now string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE facts SET status=?, updated_at=? WHERE id=?`, status, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetFact(ctx context.Context, id string) (domain.Fact, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+factColumns+` FROM facts f WHERE f.id=?`, id)
	f, err := scanFact(row.Scan)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	return f, err
}

func (r Repo) ListFacts(ctx context.Context, f FactFilters) ([]domain.Fact, error) {
	var clauses []string
	var args []any
	if f.OrgID != "" {
		clauses = append(clauses, "f.org_id=?")
		args = append(args, f.OrgID)
	}
	if f.Type != "" {
		clauses = append(clauses, "f.type=?")
		args = append(args, f.Type)
	}
	if f.Status != "" {
		clauses = append(clauses, "f.status=?")
		args = append(args, f.Status)
	}
	if f.Unlinked {
		clauses = append(clauses, "NOT EXISTS (SELECT 1 FROM workstream_facts wf WHERE wf.fact_id=f.id)")
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(f.created_at < ? OR (f.created_at = ? AND f.id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + factColumns + ` FROM facts f ` + where + ` ORDER BY f.created_at DESC, f.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectFacts(rows)
}

func (r Repo) GetRecentFacts(ctx context.Context, orgID string, limit int) ([]domain.Fact, error) {
	return r.ListFacts(ctx, FactFilters{OrgID: orgID, Limit: limit})
}

// SearchFacts matches the query against fact text. The FTS index is tried
// first when enabled; any FTS error falls back to a LIKE scan.
func (r Repo) SearchFacts(ctx context.Context, orgID, query string, limit int) ([]domain.Fact, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if r.FTS {
		if match := ftsQuery(query); match != "" {
			facts, err := r.searchFTS(ctx, orgID, match, limit)
			if err == nil {
				return facts, nil
			}
		}
	}
	args := []any{orgID, "%" + escapeLike(strings.ToLower(query)) + "%"}
	sqlText := `SELECT ` + factColumns + ` FROM facts f WHERE f.org_id=? AND fold(f.text) LIKE ? ESCAPE '\' ORDER BY f.created_at DESC, f.id DESC`
	if limit > 0 {
		sqlText += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	return collectFacts(rows)
}

func (r Repo) searchFTS(ctx context.Context, orgID, match string, limit int) ([]domain.Fact, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+factColumns+` FROM facts_fts s JOIN facts f ON f.id=s.fact_id
WHERE facts_fts MATCH ? AND s.org_id=? ORDER BY bm25(facts_fts), f.created_at DESC, f.id DESC LIMIT ?`, match, orgID, limit)
	if err != nil {
		return nil, err
	}
	return collectFacts(rows)
}

// ftsQuery quotes every word so user input cannot inject FTS syntax.
func ftsQuery(q string) string {
	words := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var parts []string
	for _, w := range words {
		parts = append(parts, `"`+w+`"`)
	}
	return strings.Join(parts, " OR ")
}

func (r Repo) GetUrgentFacts(ctx context.Context, orgID string, dueBefore time.Time, limit int) ([]domain.Fact, error) {
	args := []any{orgID, domain.FormatTime(dueBefore)}
	query := `SELECT ` + factColumns + ` FROM facts f WHERE f.org_id=? AND f.due_at IS NOT NULL AND f.due_at <= ? ORDER BY f.due_at ASC, f.id ASC`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectFacts(rows)
}

func (r Repo) GetFactsByWorkstreams(ctx context.Context, orgID string, ids []string, limitPerWorkstream int) ([]domain.Fact, error) {
	var res []domain.Fact
	for _, wsID := range ids {
		args := []any{wsID, orgID}
		query := `SELECT ` + factColumns + `, wf.weight FROM workstream_facts wf JOIN facts f ON f.id=wf.fact_id
WHERE wf.workstream_id=? AND f.org_id=? ORDER BY wf.weight DESC, f.created_at DESC, f.id ASC`
		if limitPerWorkstream > 0 {
			query += " LIMIT ?"
			args = append(args, limitPerWorkstream)
		}
		rows, err := r.DB.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("facts for workstream %s: %w", wsID, err)
		}
		for rows.Next() {
			var weight float64
			f, err := scanFact(rows.Scan, &weight)
			if err != nil {
				rows.Close()
				return nil, err
			}
			f.WorkstreamID = wsID
			f.LinkWeight = &weight
			res = append(res, f)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return res, nil
}

// LinkFacts upserts links between a workstream and facts of the same org.
// Unknown fact ids are skipped.
func (r Repo) LinkFacts(ctx context.Context, orgID, workstreamID string, factIDs []string, weight float64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.LinkFactsTx(ctx, tx, orgID, workstreamID, factIDs, weight, domain.FormatTime(time.Now())); err != nil {
		return err
	}
	return tx.Commit()
}

func (r Repo) LinkFactsTx(ctx context.Context, tx *sql.Tx, orgID, workstreamID string, factIDs []string, weight float64, now string) error {
	if _, err := r.workstream(ctx, tx, orgID, workstreamID); err != nil {
		return err
	}
	weight = store.ClampWeight(weight)
	for _, id := range factIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO workstream_facts(workstream_id,fact_id,weight,created_at)
SELECT ?, id, ?, ? FROM facts WHERE id=? AND org_id=?
ON CONFLICT(workstream_id,fact_id) DO UPDATE SET weight=excluded.weight`, workstreamID, weight, now, id, orgID); err != nil {
			return fmt.Errorf("link fact %s: %w", id, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE workstreams SET updated_at=? WHERE id=?`, now, workstreamID); err != nil {
		return err
	}
	return nil
}
