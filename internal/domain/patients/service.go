package patients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/malariadx/malariadx/internal/platform/db"
)

// ErrInvalidCredentials is returned when no patient matches an MRN and date
// of birth.
var ErrInvalidCredentials = errors.New("invalid medical record number or date of birth")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

var validGenders = map[string]bool{
	"": true, "male": true, "female": true, "other": true,
}

func validate(p *Patient) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.Age != nil && *p.Age <= 0 {
		return fmt.Errorf("valid age is required")
	}
	if p.DateOfBirth != "" {
		if _, err := time.Parse(DateLayout, p.DateOfBirth); err != nil {
			return fmt.Errorf("date_of_birth must be YYYY-MM-DD")
		}
	}
	p.Gender = strings.ToLower(p.Gender)
	if !validGenders[p.Gender] {
		return fmt.Errorf("invalid gender: %s", p.Gender)
	}
	p.MedicalRecordNumber = strings.TrimSpace(p.MedicalRecordNumber)
	return nil
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	if err := validate(p); err != nil {
		return err
	}
	if p.DateOfBirth == "" {
		return fmt.Errorf("date_of_birth is required")
	}
	if strings.TrimSpace(p.Phone) == "" {
		return fmt.Errorf("phone is required")
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByUser returns the patient record linked to a login.
func (s *Service) GetByUser(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// Update applies the non-empty fields of p to the stored patient and
// validates the merged record, which p then receives.
func (s *Service) Update(ctx context.Context, p *Patient) error {
	existing, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	merged := *existing
	setIfPresent(&merged.Name, p.Name)
	setIfPresent(&merged.Gender, p.Gender)
	setIfPresent(&merged.Phone, p.Phone)
	setIfPresent(&merged.Email, p.Email)
	setIfPresent(&merged.Address, p.Address)
	setIfPresent(&merged.EmergencyContact, p.EmergencyContact)
	setIfPresent(&merged.MedicalRecordNumber, p.MedicalRecordNumber)
	setIfPresent(&merged.DateOfBirth, p.DateOfBirth)
	if p.Age != nil {
		merged.Age = p.Age
	}
	if err := validate(&merged); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, &merged); err != nil {
		return err
	}
	*p = merged
	return nil
}

func setIfPresent(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// List returns all patients, or only those registered by createdBy.
func (s *Service) List(ctx context.Context, createdBy *uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, createdBy, limit, offset)
}

func (s *Service) Stats(ctx context.Context, id uuid.UUID) (Stats, error) {
	samples, err := s.repo.ListSamples(ctx, id)
	if err != nil {
		return Stats{}, fmt.Errorf("patient stats: %w", err)
	}
	return ComputeStats(samples), nil
}

// LookupByMRN finds the patient a medical record number and date of birth
// identify.
func (s *Service) LookupByMRN(ctx context.Context, mrn, dateOfBirth string) (*Patient, error) {
	mrn = strings.TrimSpace(mrn)
	if mrn == "" || dateOfBirth == "" {
		return nil, ErrInvalidCredentials
	}
	if _, err := time.Parse(DateLayout, dateOfBirth); err != nil {
		return nil, ErrInvalidCredentials
	}
	p, err := s.repo.GetByMRN(ctx, mrn, dateOfBirth)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	return p, err
}
