package predictions

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/malariadx/malariadx/internal/platform/db"
)

type repoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository { return &repoPG{q: q} }

const predictionTable = `predictions p LEFT JOIN prediction_details d ON d.prediction_id = p.id`

const predictionCols = `p.id, p.sample_id, p.patient_id, p.doctor_id, p.predicted_class, p.confidence_score,
	p.probabilities, p.model_version, p.prediction_date,
	d.prediction_id, d.species_detected, d.parasite_count, d.grad_cam_path, d.parasite_stage,
	d.attention_regions, d.image_quality_score, d.analysis_duration_sec`

func scanPrediction(row pgx.Row) (*Prediction, error) {
	var p Prediction
	var detailID *uuid.UUID
	var species, gradCAM, stage, modelVersion *string
	var d Details
	err := row.Scan(&p.ID, &p.SampleID, &p.PatientID, &p.DoctorID, &p.PredictedClass, &p.ConfidenceScore,
		&p.Probabilities, &modelVersion, &p.PredictionDate,
		&detailID, &species, &d.ParasiteCount, &gradCAM, &stage,
		&d.AttentionRegions, &d.ImageQualityScore, &d.AnalysisDurationSec)
	if err != nil {
		return nil, db.NotFound(err)
	}
	p.ModelVersion = deref(modelVersion)
	if detailID != nil {
		d.SpeciesDetected = deref(species)
		d.GradCAMPath = deref(gradCAM)
		d.ParasiteStage = deref(stage)
		p.Details = &d
	}
	return &p, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prediction, error) {
	return scanPrediction(r.q.QueryRow(ctx,
		`SELECT `+predictionCols+` FROM `+predictionTable+` WHERE p.id = $1`, id))
}

func applyFilter(q *db.SelectQuery, f Filter) *db.SelectQuery {
	if f.PatientID != nil {
		q.Eq("p.patient_id", *f.PatientID)
	}
	if f.DoctorID != nil {
		q.Eq("p.doctor_id", *f.DoctorID)
	}
	if f.PredictedClass != "" {
		q.Eq("p.predicted_class", f.PredictedClass)
	}
	if f.Start != nil {
		q.Gte("p.prediction_date", *f.Start)
	}
	if f.End != nil {
		q.Lte("p.prediction_date", *f.End)
	}
	return q.OrderBy("p.prediction_date DESC")
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Prediction, int, error) {
	q := applyFilter(db.NewSelectQuery(predictionTable, predictionCols), f)

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

func (r *repoPG) ListAll(ctx context.Context, f Filter) ([]*Prediction, error) {
	q := applyFilter(db.NewSelectQuery(predictionTable, predictionCols), f)
	return r.collect(ctx, q.AllSQL(), q.Args())
}

func (r *repoPG) collect(ctx context.Context, sql string, args []interface{}) ([]*Prediction, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *repoPG) ListSamplesByPatient(ctx context.Context, patientID uuid.UUID) ([]*Sample, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, patient_id, sample_date, storage_url, processing_status, image_metadata
		FROM blood_samples WHERE patient_id = $1 ORDER BY sample_date DESC`, patientID)
	if err != nil {
		return nil, err
	}
	var samples []*Sample
	index := map[uuid.UUID]*Sample{}
	for rows.Next() {
		s := &Sample{Predictions: []*Prediction{}}
		if err := rows.Scan(&s.ID, &s.PatientID, &s.SampleDate, &s.StorageURL, &s.ProcessingStatus, &s.ImageMetadata); err != nil {
			rows.Close()
			return nil, err
		}
		samples = append(samples, s)
		index[s.ID] = s
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	preds, err := r.ListAll(ctx, Filter{PatientID: &patientID})
	if err != nil {
		return nil, err
	}
	for _, p := range preds {
		if p.SampleID == nil {
			continue
		}
		if s, ok := index[*p.SampleID]; ok {
			s.Predictions = append(s.Predictions, p)
		}
	}
	return samples, nil
}

func (r *repoPG) History(ctx context.Context, f HistoryFilter) ([]*HistoryEntry, error) {
	q := db.NewSelectQuery("prediction_history",
		"id, prediction_id, sample_id, doctor_id, status, notes, created_at")
	if f.DoctorID != nil {
		q.Eq("doctor_id", *f.DoctorID)
	}
	if f.Status != "" {
		q.Eq("status", f.Status)
	}
	q.OrderBy("created_at DESC")

	sql, args := q.AllSQL(), q.Args()
	if f.Limit > 0 {
		sql, args = q.DataSQL(), q.DataArgs(f.Limit, 0)
	}
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.PredictionID, &h.SampleID, &h.DoctorID, &h.Status, &h.Notes, &h.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &h)
	}
	return items, rows.Err()
}
