package appointments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/malariadx/malariadx/internal/session"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

var validStatuses = map[string]bool{
	StatusScheduled: true, StatusConfirmed: true, StatusCompleted: true,
	StatusCancelled: true, StatusNoShow: true,
}

var validTypes = map[string]bool{
	TypeInPerson: true, TypeVideo: true,
}

func (s *Service) Create(ctx context.Context, a *Appointment) error {
	if a.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if a.AppointmentDate.IsZero() {
		return fmt.Errorf("appointment_date is required")
	}
	if a.AppointmentType == "" {
		a.AppointmentType = TypeInPerson
	}
	if !validTypes[a.AppointmentType] {
		return fmt.Errorf("invalid appointment_type: %s", a.AppointmentType)
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if !validStatuses[a.Status] {
		return fmt.Errorf("invalid appointment status: %s", a.Status)
	}
	return s.repo.Create(ctx, a)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// Update reschedules or edits an appointment. Zero-valued fields of a keep
// their stored value; a receives the merged appointment.
func (s *Service) Update(ctx context.Context, a *Appointment) error {
	if a.Status != "" && !validStatuses[a.Status] {
		return fmt.Errorf("invalid appointment status: %s", a.Status)
	}
	if a.AppointmentType != "" && !validTypes[a.AppointmentType] {
		return fmt.Errorf("invalid appointment_type: %s", a.AppointmentType)
	}
	existing, err := s.repo.GetByID(ctx, a.ID)
	if err != nil {
		return err
	}
	merged := *existing
	if a.DoctorID != nil {
		merged.DoctorID = a.DoctorID
	}
	if !a.AppointmentDate.IsZero() {
		merged.AppointmentDate = a.AppointmentDate
	}
	if a.AppointmentType != "" {
		merged.AppointmentType = a.AppointmentType
	}
	if a.Status != "" {
		merged.Status = a.Status
	}
	if a.Notes != nil {
		merged.Notes = a.Notes
	}
	if a.CancellationReason != nil {
		merged.CancellationReason = a.CancellationReason
	}
	if err := s.repo.Update(ctx, &merged); err != nil {
		return err
	}
	*a = merged
	return nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	for _, st := range f.Status {
		if !validStatuses[st] {
			return nil, 0, fmt.Errorf("invalid appointment status: %s", st)
		}
	}
	return s.repo.List(ctx, f, limit, offset)
}

// Cancel records an optional reason. A blank reason is stored as none.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	var r *string
	if reason = strings.TrimSpace(reason); reason != "" {
		r = &reason
	}
	return s.repo.Cancel(ctx, id, r)
}

// Upcoming lists the next scheduled or confirmed appointments for a user.
// Patients see their own, doctors theirs, admins everyone's.
func (s *Service) Upcoming(ctx context.Context, userID uuid.UUID, role session.Role) ([]*Appointment, error) {
	now := s.now()
	f := Filter{Status: []string{StatusScheduled, StatusConfirmed}, Start: &now}
	switch role {
	case session.RolePatient:
		f.PatientID = &userID
	case session.RoleDoctor:
		f.DoctorID = &userID
	}
	items, _, err := s.repo.List(ctx, f, UpcomingLimit, 0)
	return items, err
}
