// Package session holds the authenticated identity a request or CLI run acts
// as, and the Provider that owns sign-in state changes.
package session

import (
	"context"
	"fmt"
	"time"
)

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
	RoleAdmin   Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleDoctor, RolePatient, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Profile is the role-specific profile row loaded at sign-in.
type Profile struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Phone               string `json:"phone,omitempty"`
	Specialty           string `json:"specialty,omitempty"`
	LicenseNumber       string `json:"license_number,omitempty"`
	Hospital            string `json:"hospital,omitempty"`
	OrganizationID      string `json:"org_id,omitempty"`
	MedicalRecordNumber string `json:"medical_record_number,omitempty"`
	DateOfBirth         string `json:"date_of_birth,omitempty"`
}

// Session is the current user. Email is empty for patients signed in by
// medical record number.
type Session struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email,omitempty"`
	Role        Role      `json:"role"`
	Profile     Profile   `json:"profile"`
	AccessToken string    `json:"access_token,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// DoctorID is the user id when acting as a doctor or admin, empty otherwise.
func (s *Session) DoctorID() string {
	if s == nil {
		return ""
	}
	if s.Role == RoleDoctor || s.Role == RoleAdmin {
		return s.UserID
	}
	return ""
}

func (s *Session) IsStaff() bool {
	return s != nil && (s.Role == RoleDoctor || s.Role == RoleAdmin)
}

type ctxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}
