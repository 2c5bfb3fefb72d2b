// Package identity owns user accounts and the doctor and admin profiles
// attached to them. Patient profiles live in the patients package.
package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/malariadx/malariadx/internal/session"
)

const (
	MinPasswordLength = 6
	DefaultSpecialty  = "General"

	DoctorPending = "pending"
	DoctorActive  = "active"
)

// User maps to the users table.
type User struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	Email        string       `db:"email" json:"email"`
	PasswordHash string       `db:"password_hash" json:"-"`
	Role         session.Role `db:"role" json:"role"`
	FullName     string       `db:"full_name" json:"full_name"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// Doctor maps to the doctors table. New doctors wait for an admin of their
// organization to activate them.
type Doctor struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	UserID        uuid.UUID  `db:"user_id" json:"user_id"`
	OrgID         *uuid.UUID `db:"org_id" json:"org_id,omitempty"`
	Name          string     `db:"name" json:"name"`
	Phone         string     `db:"phone" json:"phone,omitempty"`
	Specialty     string     `db:"specialty" json:"specialty"`
	LicenseNumber string     `db:"license_number" json:"license_number,omitempty"`
	Hospital      string     `db:"hospital" json:"hospital,omitempty"`
	Status        string     `db:"status" json:"status"`
	IsActive      bool       `db:"is_active" json:"is_active"`
}

func (d *Doctor) Profile() session.Profile {
	p := session.Profile{
		ID:            d.ID.String(),
		Name:          d.Name,
		Phone:         d.Phone,
		Specialty:     d.Specialty,
		LicenseNumber: d.LicenseNumber,
		Hospital:      d.Hospital,
	}
	if d.OrgID != nil {
		p.OrganizationID = d.OrgID.String()
	}
	return p
}

// Admin maps to the admins table.
type Admin struct {
	ID     uuid.UUID  `db:"id" json:"id"`
	UserID uuid.UUID  `db:"user_id" json:"user_id"`
	OrgID  *uuid.UUID `db:"org_id" json:"org_id,omitempty"`
	Name   string     `db:"name" json:"name"`
	Phone  string     `db:"phone" json:"phone,omitempty"`
}

func (a *Admin) Profile() session.Profile {
	p := session.Profile{ID: a.ID.String(), Name: a.Name, Phone: a.Phone}
	if a.OrgID != nil {
		p.OrganizationID = a.OrgID.String()
	}
	return p
}
