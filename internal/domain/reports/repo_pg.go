package reports

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/malariadx/malariadx/internal/platform/db"
)

type repoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository { return &repoPG{q: q} }

const reportCols = `id, patient_id, doctor_id, title, description, report_type, file_path, file_url,
	file_name, file_size, posted_to_patient, status, created_at, updated_at`

func scanReport(row pgx.Row) (*Report, error) {
	var r Report
	err := row.Scan(&r.ID, &r.PatientID, &r.DoctorID, &r.Title, &r.Description, &r.ReportType, &r.FilePath, &r.FileURL,
		&r.FileName, &r.FileSize, &r.PostedToPatient, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &r, nil
}

func (p *repoPG) Create(ctx context.Context, r *Report) error {
	r.ID = uuid.New()
	return p.q.QueryRow(ctx, `
		INSERT INTO reports (id, patient_id, doctor_id, title, description, report_type, file_path, file_url,
			file_name, file_size, posted_to_patient, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		r.ID, r.PatientID, r.DoctorID, r.Title, r.Description, r.ReportType, r.FilePath, r.FileURL,
		r.FileName, r.FileSize, r.PostedToPatient, r.Status).Scan(&r.CreatedAt, &r.UpdatedAt)
}

func (p *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Report, error) {
	return scanReport(p.q.QueryRow(ctx, `SELECT `+reportCols+` FROM reports WHERE id = $1`, id))
}

func (p *repoPG) Update(ctx context.Context, r *Report) error {
	updated, err := scanReport(p.q.QueryRow(ctx, `
		UPDATE reports SET title=$2, description=$3, report_type=$4, status=$5, updated_at=NOW()
		WHERE id = $1
		RETURNING `+reportCols,
		r.ID, r.Title, r.Description, r.ReportType, r.Status))
	if err != nil {
		return err
	}
	*r = *updated
	return nil
}

func (p *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return db.Affected(p.q.Exec(ctx, `DELETE FROM reports WHERE id = $1`, id))
}

func applyFilter(q *db.SelectQuery, f Filter) *db.SelectQuery {
	if f.PatientID != nil {
		q.Eq("patient_id", *f.PatientID)
	}
	if f.DoctorID != nil {
		q.Eq("doctor_id", *f.DoctorID)
	}
	if f.ReportType != "" {
		q.Eq("report_type", f.ReportType)
	}
	if f.PostedOnly {
		q.Raw("posted_to_patient")
	}
	return q.OrderBy("created_at DESC")
}

func (p *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Report, int, error) {
	q := applyFilter(db.NewSelectQuery("reports", reportCols), f)

	var total int
	if err := p.q.QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := p.collect(ctx, q.DataSQL(), q.DataArgs(limit, offset))
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (p *repoPG) ListAll(ctx context.Context, f Filter) ([]*Report, error) {
	q := applyFilter(db.NewSelectQuery("reports", reportCols), f)
	return p.collect(ctx, q.AllSQL(), q.Args())
}

func (p *repoPG) collect(ctx context.Context, sql string, args []interface{}) ([]*Report, error) {
	rows, err := p.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

func (p *repoPG) MarkPosted(ctx context.Context, id uuid.UUID) (*Report, error) {
	return scanReport(p.q.QueryRow(ctx, `
		UPDATE reports SET posted_to_patient = TRUE, status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+reportCols, id, StatusPosted))
}
