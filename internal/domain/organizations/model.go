package organizations

import (
	"time"

	"github.com/google/uuid"
)

// Doctor approval states.
const (
	DoctorPending = "pending"
	DoctorActive  = "active"
)

// Organization maps to the organizations table. SecretCode is only ever
// returned to admins.
type Organization struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Address    string    `db:"address" json:"address,omitempty"`
	Phone      string    `db:"phone" json:"phone,omitempty"`
	Email      string    `db:"email" json:"email,omitempty"`
	SecretCode string    `db:"secret_code" json:"secret_code,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Doctor is a doctor profile as seen by its organization's admins.
type Doctor struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	UserID        uuid.UUID  `db:"user_id" json:"user_id"`
	OrgID         *uuid.UUID `db:"org_id" json:"org_id,omitempty"`
	OrgName       string     `db:"org_name" json:"org_name,omitempty"`
	Name          string     `db:"name" json:"name"`
	Email         string     `db:"email" json:"email,omitempty"`
	Specialty     string     `db:"specialty" json:"specialty,omitempty"`
	LicenseNumber string     `db:"license_number" json:"license_number,omitempty"`
	Hospital      string     `db:"hospital" json:"hospital,omitempty"`
	Phone         string     `db:"phone" json:"phone,omitempty"`
	Status        string     `db:"status" json:"status"`
	IsActive      bool       `db:"is_active" json:"is_active"`
	LastLogin     *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}
