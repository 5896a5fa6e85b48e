package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/tktechnologies/meeting-agent/internal/domain"
)

// InsertProposal stores a proposal under its idempotency key. When the key
// already exists the stored proposal id is returned and created is false.
func (r Repo) InsertProposal(ctx context.Context, tx *sql.Tx, p domain.AgendaProposal, idempotencyKey string) (id string, created bool, err error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", false, fmt.Errorf("encode proposal: %w", err)
	}
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO agenda_proposals(id,org_id,subject,choice,status,idempotency_key,proposal_json,created_at)
VALUES (?,?,?,?,?,?,?,?) ON CONFLICT(idempotency_key) DO NOTHING`,
		p.ID, p.OrgID, nullable(p.Subject.Query), p.Choice, p.Status, idempotencyKey, string(data), p.CreatedAt)
	if err != nil {
		return "", false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return p.ID, true, nil
	}
	err = r.q(tx).QueryRowContext(ctx, `SELECT id FROM agenda_proposals WHERE idempotency_key=?`, idempotencyKey).Scan(&id)
	if err != nil {
		return "", false, err
	}
	return id, false, nil
}

func (r Repo) GetProposal(ctx context.Context, id string) (domain.AgendaProposal, error) {
	var raw string
	err := r.DB.QueryRowContext(ctx, `SELECT proposal_json FROM agenda_proposals WHERE id=?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return domain.AgendaProposal{}, ErrNotFound
	}
	if err != nil {
		return domain.AgendaProposal{}, err
	}
	var p domain.AgendaProposal
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, fmt.Errorf("decode proposal %s: %w", id, err)
	}
	p.ID = id
	return p, nil
}

func (r Repo) ListProposals(ctx context.Context, orgID string, limit int) ([]domain.AgendaProposal, error) {
	query := `SELECT id,proposal_json FROM agenda_proposals WHERE org_id=? ORDER BY created_at DESC, id DESC`
	args := []any{orgID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AgendaProposal
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var p domain.AgendaProposal
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode proposal %s: %w", id, err)
		}
		p.ID = id
		res = append(res, p)
	}
	return res, rows.Err()
}
