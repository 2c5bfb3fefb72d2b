package appointments

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/malariadx/malariadx/internal/platform/db"
)

type repoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository { return &repoPG{q: q} }

const apptCols = `id, patient_id, doctor_id, appointment_date, appointment_type, status,
	notes, cancellation_reason, created_at, updated_at`

func scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.AppointmentDate, &a.AppointmentType, &a.Status,
		&a.Notes, &a.CancellationReason, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return r.q.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_date, appointment_type, status, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.AppointmentDate, a.AppointmentType, a.Status, a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppt(r.q.QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	updated, err := scanAppt(r.q.QueryRow(ctx, `
		UPDATE appointments SET doctor_id=$2, appointment_date=$3, appointment_type=$4, status=$5,
			notes=$6, cancellation_reason=$7, updated_at=NOW()
		WHERE id = $1
		RETURNING `+apptCols,
		a.ID, a.DoctorID, a.AppointmentDate, a.AppointmentType, a.Status, a.Notes, a.CancellationReason))
	if err != nil {
		return err
	}
	*a = *updated
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return db.Affected(r.q.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	q := db.NewSelectQuery("appointments", apptCols).OrderBy("appointment_date ASC")
	if f.PatientID != nil {
		q.Eq("patient_id", *f.PatientID)
	}
	if f.DoctorID != nil {
		q.Eq("doctor_id", *f.DoctorID)
	}
	if len(f.Status) == 1 {
		q.Eq("status", f.Status[0])
	} else if len(f.Status) > 1 {
		q.Any("status", f.Status)
	}
	if f.Start != nil {
		q.Gte("appointment_date", *f.Start)
	}
	if f.End != nil {
		q.Lte("appointment_date", *f.End)
	}

	var total int
	if err := r.q.QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	sql, args := q.AllSQL(), q.Args()
	if limit > 0 {
		sql, args = q.DataSQL(), q.DataArgs(limit, offset)
	}
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Cancel(ctx context.Context, id uuid.UUID, reason *string) (*Appointment, error) {
	return scanAppt(r.q.QueryRow(ctx, `
		UPDATE appointments SET status = $2, cancellation_reason = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+apptCols, id, StatusCancelled, reason))
}
