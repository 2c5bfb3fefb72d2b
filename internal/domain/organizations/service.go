package organizations

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/malariadx/malariadx/internal/platform/db"
)

// codeAlphabet omits characters that are easy to misread (0/O, 1/I).
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 8
)

type Service struct {
	orgs    Repository
	doctors DoctorRepository
	now     func() time.Time
	code    func() (string, error)
}

func NewService(orgs Repository, doctors DoctorRepository) *Service {
	return &Service{orgs: orgs, doctors: doctors, now: time.Now, code: GenerateSecretCode}
}

// GenerateSecretCode returns a random code of codeLength characters from
// codeAlphabet.
func GenerateSecretCode() (string, error) {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret code: %w", err)
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}

func (s *Service) Create(ctx context.Context, o *Organization) error {
	o.Name = strings.TrimSpace(o.Name)
	if o.Name == "" {
		return fmt.Errorf("organization name is required")
	}
	code, err := s.code()
	if err != nil {
		return err
	}
	o.SecretCode = code
	return s.orgs.Create(ctx, o)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return s.orgs.GetByID(ctx, id)
}

// List returns every organization without its secret code.
func (s *Service) List(ctx context.Context) ([]*Organization, error) {
	items, err := s.orgs.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, o := range items {
		o.SecretCode = ""
	}
	return items, nil
}

// VerifySecretCode reports whether code matches the organization's secret.
// Codes are case-insensitive. An unknown organization never matches.
func (s *Service) VerifySecretCode(ctx context.Context, orgID uuid.UUID, code string) (bool, error) {
	o, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	given := strings.ToUpper(strings.TrimSpace(code))
	return subtle.ConstantTimeCompare([]byte(given), []byte(o.SecretCode)) == 1, nil
}

// -- Doctors --

func (s *Service) PendingDoctors(ctx context.Context, orgID uuid.UUID) ([]*Doctor, error) {
	inactive := false
	return s.doctors.ListByOrg(ctx, orgID, &inactive, "")
}

// ListDoctors returns the organization's active doctors.
func (s *Service) ListDoctors(ctx context.Context, orgID uuid.UUID) ([]*Doctor, error) {
	active := true
	return s.doctors.ListByOrg(ctx, orgID, &active, "")
}

// ListApprovedDoctors returns active doctors whose approval status is active.
func (s *Service) ListApprovedDoctors(ctx context.Context, orgID uuid.UUID) ([]*Doctor, error) {
	active := true
	return s.doctors.ListByOrg(ctx, orgID, &active, DoctorActive)
}

func (s *Service) doctorInOrg(ctx context.Context, orgID, doctorID uuid.UUID) error {
	d, err := s.doctors.GetByID(ctx, doctorID)
	if err != nil {
		return err
	}
	if d.OrgID == nil || *d.OrgID != orgID {
		return db.ErrNotFound
	}
	return nil
}

// ApproveDoctor activates a doctor of orgID. Doctors of other organizations
// are reported as not found.
func (s *Service) ApproveDoctor(ctx context.Context, orgID, doctorID uuid.UUID) (*Doctor, error) {
	if err := s.doctorInOrg(ctx, orgID, doctorID); err != nil {
		return nil, err
	}
	return s.doctors.Approve(ctx, doctorID)
}

// RejectDoctor removes a doctor profile of orgID.
func (s *Service) RejectDoctor(ctx context.Context, orgID, doctorID uuid.UUID) error {
	if err := s.doctorInOrg(ctx, orgID, doctorID); err != nil {
		return err
	}
	return s.doctors.Delete(ctx, doctorID)
}

func (s *Service) DoctorByUser(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByUserID(ctx, userID)
}

func (s *Service) RecordLogin(ctx context.Context, doctorID uuid.UUID) error {
	return s.doctors.TouchLastLogin(ctx, doctorID, s.now())
}
