// Package detection runs the sample-analysis flow: hold one uploaded image,
// send it to the model server, show the result and save it as a test record.
package detection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/malariadx/malariadx/internal/domain/patients"
	"github.com/malariadx/malariadx/internal/domain/tests"
	"github.com/malariadx/malariadx/internal/inference"
	"github.com/malariadx/malariadx/internal/intake"
	"github.com/malariadx/malariadx/internal/platform/blobstore"
	"github.com/malariadx/malariadx/internal/reportpdf"
	"github.com/malariadx/malariadx/internal/session"
)

// NoteTimeLayout stamps the notes of saved tests.
const NoteTimeLayout = "1/2/2006, 3:04:05 PM"

const sampleDir = "blood-samples"

// PersistWarning is shown when a result was computed but not saved.
const PersistWarning = "Result computed but not saved. Record it manually or retry later."

type Predictor interface {
	PredictComplete(ctx context.Context, req inference.CompleteRequest) (*inference.DetailedPrediction, error)
}

// TestRecorder saves the test record of a finished analysis.
type TestRecorder interface {
	Create(ctx context.Context, t *tests.Test) error
}

type PatientLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*patients.Patient, error)
}

type ActivityRecorder interface {
	Record(ctx context.Context, userID uuid.UUID, action string, details map[string]interface{})
}

// Observer is told about every analysis; see metrics.DetectionMetrics.
type Observer interface {
	AnalysisStarted() func()
	ObserveOutcome(status string, persisted bool)
}

// Request is what Analyze needs beyond the held image.
type Request struct {
	PatientID  string `json:"patient_id"`
	UseTTA     bool   `json:"use_tta"`
	UseGradCAM bool   `json:"use_gradcam"`
}

type Orchestrator struct {
	predictor  Predictor
	recorder   TestRecorder
	blobs      blobstore.Store
	publicBase string
	maxBytes   int64
	logger     zerolog.Logger

	patients PatientLookup
	activity ActivityRecorder
	observer Observer
	events   Publisher

	flight singleflight.Group
	tick   time.Duration
	now    func() time.Time
}

func NewOrchestrator(p Predictor, rec TestRecorder, blobs blobstore.Store, publicBase string, maxBytes int64, logger zerolog.Logger) *Orchestrator {
	if maxBytes <= 0 {
		maxBytes = intake.DetectionMaxBytes
	}
	return &Orchestrator{
		predictor:  p,
		recorder:   rec,
		blobs:      blobs,
		publicBase: publicBase,
		maxBytes:   maxBytes,
		logger:     logger.With().Str("component", "detection").Logger(),
		tick:       ProgressInterval,
		now:        time.Now,
	}
}

// SetPatientLookup lets reports print the patient's name and record number.
func (o *Orchestrator) SetPatientLookup(p PatientLookup) { o.patients = p }

func (o *Orchestrator) SetActivityRecorder(a ActivityRecorder) { o.activity = a }

func (o *Orchestrator) SetObserver(obs Observer) { o.observer = obs }

// Upload validates f and makes it the workspace image. A rejected file
// leaves the workspace as it was.
func (o *Orchestrator) Upload(ws *Workspace, f intake.File) (Snapshot, error) {
	img, err := intake.Select(f, o.maxBytes)
	if err != nil {
		return Snapshot{}, err
	}
	if err := ws.hold(img, o.now()); err != nil {
		return Snapshot{}, err
	}
	o.publish(ws)
	return ws.snapshot(true), nil
}

// Analyze sends the held image to the model server for req.PatientID.
// Concurrent calls on one workspace share a single dispatch. The call is not
// cancelled when ctx is.
//
// An error means no result was produced; the image stays held for a retry.
// A result that could not be saved is still a success with Persisted false.
func (o *Orchestrator) Analyze(ctx context.Context, ws *Workspace, req Request) (*Outcome, error) {
	raw := strings.TrimSpace(req.PatientID)
	if raw == "" {
		return nil, ErrPatientRequired
	}
	patientID, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatient, err)
	}
	sess, _ := session.FromContext(ctx)
	ctx = context.WithoutCancel(ctx)

	v, err, _ := o.flight.Do(ws.ID.String(), func() (interface{}, error) {
		return o.analyze(ctx, ws, patientID, sess, req)
	})
	if err != nil {
		return nil, err
	}
	out := *v.(*Outcome)
	return &out, nil
}

func (o *Orchestrator) analyze(ctx context.Context, ws *Workspace, patientID uuid.UUID, sess *session.Session, req Request) (*Outcome, error) {
	img, err := ws.begin(o.now())
	if err != nil {
		return nil, err
	}
	o.publish(ws)
	if o.observer != nil {
		defer o.observer.AnalysisStarted()()
	}

	doctorID := doctorOf(sess)
	pred, storageURL, err := o.predict(ctx, ws, img, patientID, doctorID, req)
	if err != nil {
		ws.fail(err, o.now())
		o.publish(ws)
		o.observe("error", false)
		o.logger.Warn().Err(err).
			Str("workspace_id", ws.ID.String()).
			Str("kind", inference.KindOf(err).String()).
			Msg("analysis failed")
		return nil, err
	}

	out := o.persist(ctx, ws, img, pred, storageURL, patientID, doctorID)
	ws.succeed(out, o.now())
	o.publish(ws)
	o.observe(string(out.Result.Status), out.Persisted)
	o.recordActivity(ctx, sess, ws, out)
	return out, nil
}

func doctorOf(sess *session.Session) *uuid.UUID {
	id, err := uuid.Parse(sess.DoctorID())
	if err != nil {
		return nil
	}
	return &id
}

func (o *Orchestrator) predict(ctx context.Context, ws *Workspace, img *intake.UploadedImage, patientID uuid.UUID, doctorID *uuid.UUID, req Request) (*inference.DetailedPrediction, string, error) {
	stop := startProgress(ws, o.tick, func() { o.publish(ws) })
	defer stop()

	key := blobstore.TimestampedKey(sampleDir, patientID.String(), img.FileName, o.now())
	if _, err := o.blobs.Put(ctx, blobstore.BucketSampleImages, key, img.MIMEType, img.Reader()); err != nil {
		return nil, "", fmt.Errorf("upload sample image: %w", err)
	}
	storageURL := blobstore.PublicURL(o.publicBase, blobstore.BucketSampleImages, key)

	cr := inference.CompleteRequest{
		Image:      inference.Image{FileName: img.FileName, ContentType: img.MIMEType, Data: img.Raw},
		PatientID:  patientID.String(),
		ImagePath:  blobstore.BucketSampleImages + "/" + key,
		StorageURL: storageURL,
		ImageMetadata: map[string]any{
			"file_name":  img.FileName,
			"mime_type":  img.MIMEType,
			"size_bytes": img.SizeBytes,
		},
		UseTTA:     req.UseTTA,
		UseGradCAM: req.UseGradCAM,
	}
	if doctorID != nil {
		cr.DoctorID = doctorID.String()
	}
	pred, err := o.predictor.PredictComplete(ctx, cr)
	if err != nil {
		return nil, "", err
	}
	if pred.StorageURL != "" {
		storageURL = pred.StorageURL
	}
	return pred, storageURL, nil
}

func (o *Orchestrator) persist(ctx context.Context, ws *Workspace, img *intake.UploadedImage, pred *inference.DetailedPrediction, storageURL string, patientID uuid.UUID, doctorID *uuid.UUID) *Outcome {
	now := o.now()
	imageURL := storageURL
	if imageURL == "" {
		imageURL = img.PreviewDataURL
	}
	out := &Outcome{
		Result:      inference.ToDetailedResult(pred, imageURL, now),
		PatientID:   patientID,
		StorageURL:  storageURL,
		CompletedAt: now,
	}

	t := TestRecord(out.Result, patientID, doctorID, imageURL, now)
	if err := o.recorder.Create(ctx, t); err != nil {
		out.PersistError = PersistWarning
		o.logger.Warn().Err(err).
			Str("workspace_id", ws.ID.String()).
			Str("patient_id", patientID.String()).
			Msg("failed to save test result")
		return out
	}
	out.Persisted = true
	out.TestID = &t.ID
	return out
}

// TestRecord builds the test row for a displayed result.
func TestRecord(r inference.DisplayResult, patientID uuid.UUID, doctorID *uuid.UUID, imageURL string, now time.Time) *tests.Test {
	result := tests.ResultNegative
	if r.Status == inference.StatusInfected {
		result = tests.ResultPositive
	}
	return &tests.Test{
		PatientID:              patientID,
		DoctorID:               doctorID,
		Result:                 result,
		Confidence:             r.ConfidencePercent,
		Status:                 tests.StatusCompleted,
		ParasiteSpecies:        detail(r, inference.DetailPredictedClass, "General"),
		ImageURL:               imageURL,
		ParasitizedProbability: r.Details[inference.DetailParasitizedProbability],
		UninfectedProbability:  r.Details[inference.DetailUninfectedProbability],
		ImageQuality:           detail(r, inference.DetailImageQuality, "Good"),
		AdditionalNotes:        "Analysis performed on " + now.Format(NoteTimeLayout),
	}
}

func detail(r inference.DisplayResult, key, def string) string {
	if v := r.Details[key]; v != "" {
		return v
	}
	return def
}

func (o *Orchestrator) observe(status string, persisted bool) {
	if o.observer != nil {
		o.observer.ObserveOutcome(status, persisted)
	}
}

func (o *Orchestrator) recordActivity(ctx context.Context, sess *session.Session, ws *Workspace, out *Outcome) {
	if o.activity == nil || sess == nil {
		return
	}
	uid, err := uuid.Parse(sess.UserID)
	if err != nil {
		return
	}
	o.activity.Record(ctx, uid, "detection", map[string]interface{}{
		"workspace_id": ws.ID.String(),
		"patient_id":   out.PatientID.String(),
		"status":       string(out.Result.Status),
		"persisted":    out.Persisted,
	})
}

// Reset discards the image and any result. It fails with ErrBusy while an
// analysis is running.
func (o *Orchestrator) Reset(ws *Workspace) error {
	if err := ws.reset(o.now()); err != nil {
		return err
	}
	o.publish(ws)
	return nil
}

func (o *Orchestrator) Snapshot(ws *Workspace) Snapshot {
	return ws.snapshot(true)
}

// Report lays out the doctor's PDF for the workspace result.
func (o *Orchestrator) Report(ctx context.Context, ws *Workspace, doctor reportpdf.DoctorProfile) (reportpdf.Data, *reportpdf.Document, error) {
	out, err := ws.result()
	if err != nil {
		return reportpdf.Data{}, nil, err
	}
	now := o.now()

	r := out.Result
	result := "Negative"
	if r.Status == inference.StatusInfected {
		result = "Positive"
	}
	notes := "Analysis performed on " + out.CompletedAt.Format(NoteTimeLayout)
	if out.TestID != nil {
		notes = "Test ID: " + out.TestID.String() + " - " + notes
	}
	summary := reportpdf.TestSummary{
		PatientName:     "Patient",
		PatientID:       out.PatientID.String(),
		TestDate:        now.Format(reportpdf.DateLayout),
		TestType:        "Malaria Detection Test",
		Result:          result,
		Confidence:      r.ConfidencePercent,
		Status:          "Completed",
		PredictedClass:  detail(r, inference.DetailPredictedClass, string(r.Status)),
		ParasitizedProb: r.Details[inference.DetailParasitizedProbability],
		UninfectedProb:  r.Details[inference.DetailUninfectedProbability],
		ImageQuality:    r.Details[inference.DetailImageQuality],
		Notes:           notes,
	}
	if o.patients != nil {
		p, err := o.patients.Get(ctx, out.PatientID)
		switch {
		case err == nil:
			summary.PatientName = p.Name
			if p.MedicalRecordNumber != "" {
				summary.PatientID = p.MedicalRecordNumber
			}
		case !errors.Is(err, context.Canceled):
			o.logger.Debug().Err(err).Str("patient_id", out.PatientID.String()).Msg("patient lookup for report failed")
		}
	}

	d := reportpdf.FormatForDoctor(summary, doctor, now)
	return d, reportpdf.Render(d, now), nil
}

// Share is not implemented; it accepts any workspace and does nothing.
func (o *Orchestrator) Share(ws *Workspace) error {
	o.logger.Debug().Str("workspace_id", ws.ID.String()).Msg("share requested")
	return nil
}
