package appointments

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no-show"

	TypeInPerson = "in-person"
	TypeVideo    = "video"
)

// UpcomingLimit caps Upcoming.
const UpcomingLimit = 5

type Appointment struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID           *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`
	AppointmentDate    time.Time  `db:"appointment_date" json:"appointment_date"`
	AppointmentType    string     `db:"appointment_type" json:"appointment_type"`
	Status             string     `db:"status" json:"status"`
	Notes              *string    `db:"notes" json:"notes,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

type Filter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    []string
	Start     *time.Time
	End       *time.Time
}
