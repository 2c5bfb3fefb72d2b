package tests

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/malariadx/malariadx/internal/platform/db"
)

type repoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository { return &repoPG{q: q} }

const testCols = `id, patient_id, doctor_id, result, confidence, status, parasite_species,
	image_url, parasitized_probability, uninfected_probability, image_quality,
	additional_notes, posted_to_patient, posted_at, created_at, updated_at`

func scanTest(row pgx.Row) (*Test, error) {
	var t Test
	err := row.Scan(&t.ID, &t.PatientID, &t.DoctorID, &t.Result, &t.Confidence, &t.Status, &t.ParasiteSpecies,
		&t.ImageURL, &t.ParasitizedProbability, &t.UninfectedProbability, &t.ImageQuality,
		&t.AdditionalNotes, &t.PostedToPatient, &t.PostedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &t, nil
}

func (r *repoPG) Create(ctx context.Context, t *Test) error {
	t.ID = uuid.New()
	row := r.q.QueryRow(ctx, `
		INSERT INTO test_results (id, patient_id, doctor_id, result, confidence, status, parasite_species,
			image_url, parasitized_probability, uninfected_probability, image_quality, additional_notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		t.ID, t.PatientID, t.DoctorID, t.Result, t.Confidence, t.Status, t.ParasiteSpecies,
		t.ImageURL, t.ParasitizedProbability, t.UninfectedProbability, t.ImageQuality, t.AdditionalNotes)
	return row.Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Test, error) {
	return scanTest(r.q.QueryRow(ctx, `SELECT `+testCols+` FROM test_results WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, t *Test) error {
	row := r.q.QueryRow(ctx, `
		UPDATE test_results SET result=$2, confidence=$3, status=$4, parasite_species=$5,
			image_url=$6, parasitized_probability=$7, uninfected_probability=$8,
			image_quality=$9, additional_notes=$10, updated_at=NOW()
		WHERE id = $1
		RETURNING `+testCols,
		t.ID, t.Result, t.Confidence, t.Status, t.ParasiteSpecies,
		t.ImageURL, t.ParasitizedProbability, t.UninfectedProbability,
		t.ImageQuality, t.AdditionalNotes)
	updated, err := scanTest(row)
	if err != nil {
		return err
	}
	*t = *updated
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return db.Affected(r.q.Exec(ctx, `DELETE FROM test_results WHERE id = $1`, id))
}

func applyFilter(q *db.SelectQuery, f Filter) *db.SelectQuery {
	if f.PatientID != nil {
		q.Eq("patient_id", *f.PatientID)
	}
	if f.DoctorID != nil {
		q.Eq("doctor_id", *f.DoctorID)
	}
	if f.Result != "" {
		q.Eq("result", f.Result)
	}
	if f.Start != nil {
		q.Gte("created_at", *f.Start)
	}
	if f.End != nil {
		q.Lte("created_at", *f.End)
	}
	if f.PostedOnly {
		q.Raw("posted_to_patient")
	}
	return q.OrderBy("created_at DESC")
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Test, int, error) {
	q := applyFilter(db.NewSelectQuery("test_results", testCols), f)

	var total int
	if err := r.q.QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.collect(ctx, q.DataSQL(), q.DataArgs(limit, offset))
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repoPG) ListAll(ctx context.Context, f Filter) ([]*Test, error) {
	q := applyFilter(db.NewSelectQuery("test_results", testCols), f)
	return r.collect(ctx, q.AllSQL(), q.Args())
}

func (r *repoPG) collect(ctx context.Context, sql string, args []interface{}) ([]*Test, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Test
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *repoPG) MarkPosted(ctx context.Context, id uuid.UUID, at time.Time) (*Test, error) {
	return scanTest(r.q.QueryRow(ctx, `
		UPDATE test_results SET posted_to_patient = TRUE, posted_at = $2, status = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+testCols, id, at, StatusCompleted))
}

func (r *repoPG) SetImageURL(ctx context.Context, id uuid.UUID, url string) error {
	return db.Affected(r.q.Exec(ctx,
		`UPDATE test_results SET image_url = $2, updated_at = NOW() WHERE id = $1`, id, url))
}
