package tests

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/malariadx/malariadx/internal/platform/blobstore"
)

type Service struct {
	repo       Repository
	blobs      blobstore.Store
	publicBase string
	now        func() time.Time
}

func NewService(repo Repository, blobs blobstore.Store, publicBase string) *Service {
	return &Service{repo: repo, blobs: blobs, publicBase: publicBase, now: time.Now}
}

var validResults = map[string]bool{
	ResultPositive: true, ResultNegative: true, ResultPending: true,
}

var validStatuses = map[string]bool{
	StatusPending: true, StatusCompleted: true,
}

func (s *Service) Create(ctx context.Context, t *Test) error {
	if t.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if t.Result == "" {
		t.Result = ResultPending
	}
	if !validResults[t.Result] {
		return fmt.Errorf("invalid result: %s", t.Result)
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if !validStatuses[t.Status] {
		return fmt.Errorf("invalid status: %s", t.Status)
	}
	if t.Confidence < 0 || t.Confidence > 100 {
		return fmt.Errorf("confidence must be between 0 and 100")
	}
	return s.repo.Create(ctx, t)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Test, error) {
	return s.repo.GetByID(ctx, id)
}

// Update applies the set fields of t to the stored test and writes the
// merged row back into t. Empty strings and a zero confidence leave the
// stored value unchanged.
func (s *Service) Update(ctx context.Context, t *Test) error {
	if t.Result != "" && !validResults[t.Result] {
		return fmt.Errorf("invalid result: %s", t.Result)
	}
	if t.Status != "" && !validStatuses[t.Status] {
		return fmt.Errorf("invalid status: %s", t.Status)
	}
	if t.Confidence < 0 || t.Confidence > 100 {
		return fmt.Errorf("confidence must be between 0 and 100")
	}
	existing, err := s.repo.GetByID(ctx, t.ID)
	if err != nil {
		return err
	}
	merged := *existing
	merged.patch(t)
	if err := s.repo.Update(ctx, &merged); err != nil {
		return err
	}
	*t = merged
	return nil
}

func (t *Test) patch(u *Test) {
	setIfSet(&t.Result, u.Result)
	setIfSet(&t.Status, u.Status)
	setIfSet(&t.ParasiteSpecies, u.ParasiteSpecies)
	setIfSet(&t.ImageURL, u.ImageURL)
	setIfSet(&t.ParasitizedProbability, u.ParasitizedProbability)
	setIfSet(&t.UninfectedProbability, u.UninfectedProbability)
	setIfSet(&t.ImageQuality, u.ImageQuality)
	setIfSet(&t.AdditionalNotes, u.AdditionalNotes)
	if u.Confidence != 0 {
		t.Confidence = u.Confidence
	}
}

func setIfSet(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Test, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

// Stats summarises every test matching f.
func (s *Service) Stats(ctx context.Context, f Filter) (Stats, error) {
	items, err := s.repo.ListAll(ctx, f)
	if err != nil {
		return Stats{}, fmt.Errorf("test stats: %w", err)
	}
	return ComputeStats(items), nil
}

// Weekly counts the last seven days of tests, optionally for one doctor.
func (s *Service) Weekly(ctx context.Context, doctorID *uuid.UUID) ([]DayCount, error) {
	start := s.now().AddDate(0, 0, -7)
	items, err := s.repo.ListAll(ctx, Filter{DoctorID: doctorID, Start: &start})
	if err != nil {
		return nil, fmt.Errorf("weekly tests: %w", err)
	}
	return WeeklyCounts(items), nil
}

// PostToPatient makes a test visible to its patient and completes it.
func (s *Service) PostToPatient(ctx context.Context, id uuid.UUID) (*Test, error) {
	return s.repo.MarkPosted(ctx, id, s.now())
}

// ListPostedForPatient is what a signed-in patient may see.
func (s *Service) ListPostedForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Test, int, error) {
	return s.repo.List(ctx, Filter{PatientID: &patientID, PostedOnly: true}, limit, offset)
}

// UploadImage stores a slide image for test id and records its public URL.
func (s *Service) UploadImage(ctx context.Context, id uuid.UUID, fileName, contentType string, data []byte) (string, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return "", err
	}
	key := blobstore.TimestampedKey("test-images", id.String(), fileName, s.now())
	if _, err := s.blobs.Put(ctx, blobstore.BucketTestImages, key, contentType, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("upload test image: %w", err)
	}
	url := blobstore.PublicURL(s.publicBase, blobstore.BucketTestImages, key)
	if err := s.repo.SetImageURL(ctx, id, url); err != nil {
		return "", err
	}
	return url, nil
}
