package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/malariadx/malariadx/internal/platform/db"
)

const uniqueViolation = "23505"

type repoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository { return &repoPG{q: q} }

// -- User --

const userCols = `id, email, password_hash, role, full_name, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.FullName, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, db.NotFound(err)
	}
	return &u, nil
}

func (r *repoPG) CreateUser(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	err := r.q.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, role, full_name)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		u.ID, u.Email, u.PasswordHash, u.Role, u.FullName,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrEmailTaken
	}
	return err
}

func (r *repoPG) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.q.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *repoPG) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.q.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email))
}

func (r *repoPG) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return db.Affected(r.q.Exec(ctx, `DELETE FROM users WHERE id = $1`, id))
}

// -- Doctor --

const doctorCols = `id, user_id, org_id, name, phone, specialty, license_number, hospital, status, is_active`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.UserID, &d.OrgID, &d.Name, &d.Phone, &d.Specialty, &d.LicenseNumber,
		&d.Hospital, &d.Status, &d.IsActive)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &d, nil
}

func (r *repoPG) CreateDoctor(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	_, err := r.q.Exec(ctx, `
		INSERT INTO doctors (id, user_id, org_id, name, phone, specialty, license_number, hospital, status, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		d.ID, d.UserID, d.OrgID, d.Name, d.Phone, d.Specialty, d.LicenseNumber, d.Hospital, d.Status, d.IsActive)
	return err
}

func (r *repoPG) GetDoctorByUser(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.q.QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE user_id = $1`, userID))
}

func (r *repoPG) UpdateDoctor(ctx context.Context, d *Doctor) error {
	return db.Affected(r.q.Exec(ctx, `
		UPDATE doctors SET name=$2, phone=$3, specialty=$4, license_number=$5, hospital=$6, updated_at=NOW()
		WHERE id = $1`,
		d.ID, d.Name, d.Phone, d.Specialty, d.LicenseNumber, d.Hospital))
}

// -- Admin --

func (r *repoPG) CreateAdmin(ctx context.Context, a *Admin) error {
	a.ID = uuid.New()
	_, err := r.q.Exec(ctx, `
		INSERT INTO admins (id, user_id, org_id, name, phone) VALUES ($1,$2,$3,$4,$5)`,
		a.ID, a.UserID, a.OrgID, a.Name, a.Phone)
	return err
}

func (r *repoPG) GetAdminByUser(ctx context.Context, userID uuid.UUID) (*Admin, error) {
	var a Admin
	err := r.q.QueryRow(ctx, `SELECT id, user_id, org_id, name, phone FROM admins WHERE user_id = $1`, userID).
		Scan(&a.ID, &a.UserID, &a.OrgID, &a.Name, &a.Phone)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &a, nil
}

func (r *repoPG) UpdateAdmin(ctx context.Context, a *Admin) error {
	return db.Affected(r.q.Exec(ctx, `
		UPDATE admins SET name=$2, phone=$3, updated_at=NOW() WHERE id = $1`, a.ID, a.Name, a.Phone))
}
