package organizations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/malariadx/malariadx/internal/platform/db"
)

// -- Organization --

type orgRepoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository { return &orgRepoPG{q: q} }

const orgCols = `id, name, address, phone, email, secret_code, created_at, updated_at`

func scanOrg(row pgx.Row) (*Organization, error) {
	var o Organization
	if err := row.Scan(&o.ID, &o.Name, &o.Address, &o.Phone, &o.Email, &o.SecretCode, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, db.NotFound(err)
	}
	return &o, nil
}

func (r *orgRepoPG) Create(ctx context.Context, o *Organization) error {
	o.ID = uuid.New()
	return r.q.QueryRow(ctx, `
		INSERT INTO organizations (id, name, address, phone, email, secret_code)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		o.ID, o.Name, o.Address, o.Phone, o.Email, o.SecretCode,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
}

func (r *orgRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return scanOrg(r.q.QueryRow(ctx, `SELECT `+orgCols+` FROM organizations WHERE id = $1`, id))
}

func (r *orgRepoPG) List(ctx context.Context) ([]*Organization, error) {
	rows, err := r.q.Query(ctx, `SELECT `+orgCols+` FROM organizations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Organization
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

// -- Doctor --

type doctorRepoPG struct{ q db.Querier }

func NewDoctorRepoPG(q db.Querier) DoctorRepository { return &doctorRepoPG{q: q} }

const (
	doctorCols = `d.id, d.user_id, d.org_id, COALESCE(o.name, ''), d.name, COALESCE(u.email, ''),
	d.specialty, d.license_number, d.hospital, d.phone, d.status, d.is_active, d.last_login, d.created_at`
	doctorFrom = `doctors d
	LEFT JOIN organizations o ON o.id = d.org_id
	LEFT JOIN users u ON u.id = d.user_id`
	doctorSelect = `SELECT ` + doctorCols + ` FROM ` + doctorFrom
)

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.UserID, &d.OrgID, &d.OrgName, &d.Name, &d.Email,
		&d.Specialty, &d.LicenseNumber, &d.Hospital, &d.Phone, &d.Status, &d.IsActive, &d.LastLogin, &d.CreatedAt)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &d, nil
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.q.QueryRow(ctx, doctorSelect+` WHERE d.id = $1`, id))
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.q.QueryRow(ctx, doctorSelect+` WHERE d.user_id = $1`, userID))
}

// ListByOrg orders pending doctors newest first and everything else by name.
func (r *doctorRepoPG) ListByOrg(ctx context.Context, orgID uuid.UUID, active *bool, status string) ([]*Doctor, error) {
	q := db.NewSelectQuery(doctorFrom, doctorCols).Eq("d.org_id", orgID).OrderBy("d.name")
	if active != nil {
		q.Eq("d.is_active", *active)
		if !*active {
			q.OrderBy("d.created_at DESC")
		}
	}
	if status != "" {
		q.Eq("d.status", status)
	}

	rows, err := r.q.Query(ctx, q.AllSQL(), q.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *doctorRepoPG) Approve(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	if err := db.Affected(r.q.Exec(ctx, `
		UPDATE doctors SET is_active = TRUE, status = $2, updated_at = NOW() WHERE id = $1`,
		id, DoctorActive)); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *doctorRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return db.Affected(r.q.Exec(ctx, `DELETE FROM doctors WHERE id = $1`, id))
}

func (r *doctorRepoPG) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return db.Affected(r.q.Exec(ctx, `UPDATE doctors SET last_login = $2 WHERE id = $1`, id, at))
}
