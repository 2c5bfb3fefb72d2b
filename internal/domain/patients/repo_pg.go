package patients

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/malariadx/malariadx/internal/platform/db"
)

type repoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository { return &repoPG{q: q} }

const patientCols = `id, user_id, name, age, gender, phone, email, address, emergency_contact,
	COALESCE(medical_record_number, ''),
	COALESCE(to_char(date_of_birth, 'YYYY-MM-DD'), ''), created_by, date_registered, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Age, &p.Gender, &p.Phone, &p.Email, &p.Address, &p.EmergencyContact,
		&p.MedicalRecordNumber, &p.DateOfBirth, &p.CreatedBy, &p.DateRegistered, &p.UpdatedAt)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return r.q.QueryRow(ctx, `
		INSERT INTO patients (id, user_id, name, age, gender, phone, email, address, emergency_contact,
			medical_record_number, date_of_birth, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''),NULLIF($11,'')::date,$12)
		RETURNING date_registered, updated_at`,
		p.ID, p.UserID, p.Name, p.Age, p.Gender, p.Phone, p.Email, p.Address, p.EmergencyContact,
		p.MedicalRecordNumber, p.DateOfBirth, p.CreatedBy).Scan(&p.DateRegistered, &p.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.q.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) GetByMRN(ctx context.Context, mrn, dateOfBirth string) (*Patient, error) {
	return scanPatient(r.q.QueryRow(ctx, `SELECT `+patientCols+`
		FROM patients WHERE medical_record_number = $1 AND date_of_birth = $2::date`, mrn, dateOfBirth))
}

func (r *repoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	return scanPatient(r.q.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE user_id = $1`, userID))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	updated, err := scanPatient(r.q.QueryRow(ctx, `
		UPDATE patients SET name=$2, age=$3, gender=$4, phone=$5, email=$6, address=$7,
			emergency_contact=$8, medical_record_number=NULLIF($9,''), date_of_birth=NULLIF($10,'')::date,
			updated_at=NOW()
		WHERE id = $1
		RETURNING `+patientCols,
		p.ID, p.Name, p.Age, p.Gender, p.Phone, p.Email, p.Address,
		p.EmergencyContact, p.MedicalRecordNumber, p.DateOfBirth))
	if err != nil {
		return err
	}
	*p = *updated
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return db.Affected(r.q.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, createdBy *uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	q := db.NewSelectQuery("patients", patientCols).OrderBy("date_registered DESC")
	if createdBy != nil {
		q.Eq("created_by", *createdBy)
	}

	var total int
	if err := r.q.QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.q.Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListSamples(ctx context.Context, patientID uuid.UUID) ([]*SampleSummary, error) {
	rows, err := r.q.Query(ctx, `
		SELECT s.id, s.sample_date, s.storage_url,
			COALESCE(array_agg(p.predicted_class) FILTER (WHERE p.id IS NOT NULL), '{}')
		FROM blood_samples s LEFT JOIN predictions p ON p.sample_id = s.id
		WHERE s.patient_id = $1
		GROUP BY s.id
		ORDER BY s.sample_date DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*SampleSummary
	for rows.Next() {
		var s SampleSummary
		if err := rows.Scan(&s.ID, &s.SampleDate, &s.StorageURL, &s.Classes); err != nil {
			return nil, err
		}
		items = append(items, &s)
	}
	return items, rows.Err()
}
