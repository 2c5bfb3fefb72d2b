package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/malariadx/malariadx/internal/platform/blobstore"
)

var (
	ErrNotPDF   = errors.New("only PDF files are allowed")
	ErrTooLarge = errors.New("file size must be less than 10MB")
	ErrHidden   = errors.New("report not posted")
)

type Service struct {
	repo       Repository
	blobs      blobstore.Store
	publicBase string
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(repo Repository, blobs blobstore.Store, publicBase string, logger zerolog.Logger) *Service {
	return &Service{repo: repo, blobs: blobs, publicBase: publicBase, logger: logger, now: time.Now}
}

var validTypes = map[string]bool{
	"general": true, "lab": true, "prescription": true, "diagnostic": true, "consultation": true,
}

var validStatuses = map[string]bool{
	StatusPending: true, StatusPosted: true,
}

// UploadFile stores a PDF under "<patient>-<doctor>-<ms>.pdf" in the
// reports bucket.
func (s *Service) UploadFile(ctx context.Context, patientID, doctorID uuid.UUID, fileName, contentType string, data []byte) (*UploadedFile, error) {
	if !strings.EqualFold(contentType, FileMIMEType) {
		return nil, ErrNotPDF
	}
	if len(data) > MaxFileBytes {
		return nil, ErrTooLarge
	}
	key := blobstore.TimestampedKey("", patientID.String()+"-"+doctorID.String(), fileName, s.now())
	if _, err := s.blobs.Put(ctx, blobstore.BucketReports, key, contentType, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("upload report: %w", err)
	}
	return &UploadedFile{
		Path:     key,
		URL:      blobstore.PublicURL(s.publicBase, blobstore.BucketReports, key),
		FileName: fileName,
		FileSize: int64(len(data)),
	}, nil
}

func (s *Service) Create(ctx context.Context, r *Report) error {
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return fmt.Errorf("title is required")
	}
	if r.ReportType == "" {
		r.ReportType = "general"
	}
	if !validTypes[r.ReportType] {
		return fmt.Errorf("invalid report_type: %s", r.ReportType)
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	if !validStatuses[r.Status] {
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	r.PostedToPatient = r.Status == StatusPosted
	return s.repo.Create(ctx, r)
}

// Submit uploads the file and creates the record pointing at it. The stored
// file is removed again when the record cannot be created.
func (s *Service) Submit(ctx context.Context, r *Report, fileName, contentType string, data []byte) error {
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	var doctor uuid.UUID
	if r.DoctorID != nil {
		doctor = *r.DoctorID
	}
	f, err := s.UploadFile(ctx, r.PatientID, doctor, fileName, contentType, data)
	if err != nil {
		return err
	}
	r.FilePath, r.FileURL, r.FileName, r.FileSize = f.Path, f.URL, f.FileName, f.FileSize
	if err := s.Create(ctx, r); err != nil {
		if derr := s.blobs.Delete(ctx, blobstore.BucketReports, f.Path); derr != nil {
			s.logger.Warn().Err(derr).Str("path", f.Path).Msg("orphaned report file")
		}
		return err
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Report, error) {
	return s.repo.GetByID(ctx, id)
}

// GetForPatient only returns reports posted to patientID.
func (s *Service) GetForPatient(ctx context.Context, id, patientID uuid.UUID) (*Report, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.PatientID != patientID || !r.PostedToPatient {
		return nil, ErrHidden
	}
	return r, nil
}

// Update changes the title, description, type or status of a report. Fields
// left empty in r keep their stored value; r receives the merged record.
func (s *Service) Update(ctx context.Context, r *Report) error {
	if r.ReportType != "" && !validTypes[r.ReportType] {
		return fmt.Errorf("invalid report_type: %s", r.ReportType)
	}
	if r.Status != "" && !validStatuses[r.Status] {
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	existing, err := s.repo.GetByID(ctx, r.ID)
	if err != nil {
		return err
	}
	merged := *existing
	if title := strings.TrimSpace(r.Title); title != "" {
		merged.Title = title
	}
	if r.Description != "" {
		merged.Description = r.Description
	}
	if r.ReportType != "" {
		merged.ReportType = r.ReportType
	}
	if r.Status != "" {
		merged.Status = r.Status
	}
	if err := s.repo.Update(ctx, &merged); err != nil {
		return err
	}
	*r = merged
	return nil
}

// Delete removes the stored file, then the record.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if r.FilePath != "" {
		err := s.blobs.Delete(ctx, blobstore.BucketReports, r.FilePath)
		if err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			return fmt.Errorf("delete report file: %w", err)
		}
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Report, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

// ListForPatient never returns unposted reports.
func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Report, int, error) {
	return s.repo.List(ctx, Filter{PatientID: &patientID, PostedOnly: true}, limit, offset)
}

func (s *Service) PostToPatient(ctx context.Context, id uuid.UUID) (*Report, error) {
	return s.repo.MarkPosted(ctx, id)
}

// Open streams the report's stored file.
func (s *Service) Open(ctx context.Context, r *Report) (io.ReadCloser, *blobstore.Object, error) {
	if r.FilePath == "" {
		return nil, nil, blobstore.ErrNotFound
	}
	return s.blobs.Get(ctx, blobstore.BucketReports, r.FilePath)
}

func (s *Service) Stats(ctx context.Context, doctorID *uuid.UUID) (Stats, error) {
	items, err := s.repo.ListAll(ctx, Filter{DoctorID: doctorID})
	if err != nil {
		return Stats{}, fmt.Errorf("report stats: %w", err)
	}
	return ComputeStats(items), nil
}
