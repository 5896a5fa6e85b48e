package repo

import (
	"context"
	"database/sql"

	"github.com/tktechnologies/meeting-agent/internal/domain"
)

func (r Repo) InsertMeeting(ctx context.Context, tx *sql.Tx, m domain.Meeting) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO meetings(id,org_id,title,subject,held_at,open_items_json,created_at) VALUES (?,?,?,?,?,?,?)`,
		m.ID, m.OrgID, m.Title, nullable(m.Subject), m.HeldAt, marshalStrings(m.OpenItems), m.CreatedAt)
	return err
}

// RecentMeetings returns the org's meetings, most recently held first.
func (r Repo) RecentMeetings(ctx context.Context, orgID string, limit int) ([]domain.Meeting, error) {
	query := `SELECT id,org_id,title,COALESCE(subject,''),held_at,open_items_json,created_at FROM meetings WHERE org_id=? ORDER BY held_at DESC, id DESC`
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
	var res []domain.Meeting
	for rows.Next() {
		var m domain.Meeting
		var open string
		if err := rows.Scan(&m.ID, &m.OrgID, &m.Title, &m.Subject, &m.HeldAt, &open, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.OpenItems = unmarshalStrings(open)
		res = append(res, m)
	}
	return res, rows.Err()
}
