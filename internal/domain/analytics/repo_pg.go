package analytics

import (
	"context"

	"github.com/google/uuid"

	"github.com/malariadx/malariadx/internal/platform/db"
)

type repoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository { return &repoPG{q: q} }

func (r *repoPG) CountPatients(ctx context.Context, createdBy *uuid.UUID) (int, error) {
	q := db.NewSelectQuery("patients", "id")
	if createdBy != nil {
		q.Eq("created_by", *createdBy)
	}
	var n int
	err := r.q.QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&n)
	return n, err
}

func (r *repoPG) CountUsers(ctx context.Context) (total, doctors int, err error) {
	err = r.q.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE role = 'doctor') FROM users`,
	).Scan(&total, &doctors)
	return total, doctors, err
}

func (r *repoPG) InsertActivity(ctx context.Context, a *ActivityLog) error {
	a.ID = uuid.New()
	return r.q.QueryRow(ctx, `
		INSERT INTO activity_logs (id, user_id, action, details)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at`,
		a.ID, a.UserID, a.Action, a.Details,
	).Scan(&a.CreatedAt)
}

func (r *repoPG) ListActivity(ctx context.Context, limit int) ([]*ActivityLog, error) {
	rows, err := r.q.Query(ctx, `
		SELECT l.id, l.user_id, COALESCE(u.full_name, ''), COALESCE(u.email, ''), l.action, l.details, l.created_at
		FROM activity_logs l
		LEFT JOIN users u ON u.id = l.user_id
		ORDER BY l.created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ActivityLog
	for rows.Next() {
		var a ActivityLog
		if err := rows.Scan(&a.ID, &a.UserID, &a.UserName, &a.UserEmail, &a.Action, &a.Details, &a.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &a)
	}
	return items, rows.Err()
}
