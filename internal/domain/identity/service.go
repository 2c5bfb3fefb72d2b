package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/malariadx/malariadx/internal/domain/patients"
	"github.com/malariadx/malariadx/internal/platform/db"
	"github.com/malariadx/malariadx/internal/session"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrPendingApproval    = errors.New("account is awaiting approval by an organization admin")
	ErrInvalidOrgCode     = errors.New("invalid organization secret code")
)

// PatientDirectory is the slice of the patients service identity needs.
type PatientDirectory interface {
	LookupByMRN(ctx context.Context, mrn, dateOfBirth string) (*patients.Patient, error)
	GetByUser(ctx context.Context, userID uuid.UUID) (*patients.Patient, error)
	Get(ctx context.Context, id uuid.UUID) (*patients.Patient, error)
	Create(ctx context.Context, p *patients.Patient) error
	Update(ctx context.Context, p *patients.Patient) error
}

type OrgDirectory interface {
	VerifySecretCode(ctx context.Context, orgID uuid.UUID, code string) (bool, error)
	RecordLogin(ctx context.Context, doctorID uuid.UUID) error
}

type TokenIssuer interface {
	Issue(s *session.Session) error
}

type TokenRevoker interface {
	RevokeToken(raw string)
}

type ActivityRecorder interface {
	Record(ctx context.Context, userID uuid.UUID, action string, details map[string]interface{})
}

// Service implements session.Authenticator against the local user store.
type Service struct {
	repo     Repository
	patients PatientDirectory
	orgs     OrgDirectory
	issuer   TokenIssuer
	revoker  TokenRevoker
	activity ActivityRecorder
	logger   zerolog.Logger
	cost     int
}

var _ session.Authenticator = (*Service)(nil)

func NewService(repo Repository, pats PatientDirectory, orgs OrgDirectory, issuer TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{repo: repo, patients: pats, orgs: orgs, issuer: issuer, logger: logger, cost: bcrypt.DefaultCost}
}

// SetRevoker attaches the list signed-out tokens are added to.
func (s *Service) SetRevoker(r TokenRevoker) { s.revoker = r }

// SetActivityRecorder attaches an optional activity log.
func (s *Service) SetActivityRecorder(a ActivityRecorder) { s.activity = a }

func (s *Service) record(ctx context.Context, userID string, action string, details map[string]interface{}) {
	if s.activity == nil {
		return
	}
	id, _ := uuid.Parse(userID)
	s.activity.Record(ctx, id, action, details)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) SignIn(ctx context.Context, email, password string) (*session.Session, error) {
	u, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	prof, err := s.loadProfile(ctx, u)
	if err != nil {
		return nil, err
	}
	sess := &session.Session{UserID: u.ID.String(), Email: u.Email, Role: u.Role, Profile: prof}
	if err := s.issuer.Issue(sess); err != nil {
		return nil, err
	}
	if u.Role == session.RoleDoctor && prof.ID != sess.UserID {
		s.recordDoctorLogin(ctx, prof.ID)
	}
	s.record(ctx, sess.UserID, "login", map[string]interface{}{"role": string(u.Role)})
	return sess, nil
}

func (s *Service) recordDoctorLogin(ctx context.Context, doctorID string) {
	id, err := uuid.Parse(doctorID)
	if err != nil || s.orgs == nil {
		return
	}
	if err := s.orgs.RecordLogin(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("doctor_id", doctorID).Msg("failed to record last login")
	}
}

// loadProfile reads the role profile for u. Doctors must be approved. A
// user without a profile row gets one built from the account itself.
func (s *Service) loadProfile(ctx context.Context, u *User) (session.Profile, error) {
	fallback := session.Profile{ID: u.ID.String(), Name: u.FullName}
	if fallback.Name == "" {
		fallback.Name = strings.Split(u.Email, "@")[0]
	}

	switch u.Role {
	case session.RoleDoctor:
		d, err := s.repo.GetDoctorByUser(ctx, u.ID)
		if errors.Is(err, db.ErrNotFound) {
			return fallback, nil
		}
		if err != nil {
			return session.Profile{}, err
		}
		if !d.IsActive {
			return session.Profile{}, ErrPendingApproval
		}
		return d.Profile(), nil
	case session.RoleAdmin:
		a, err := s.repo.GetAdminByUser(ctx, u.ID)
		if errors.Is(err, db.ErrNotFound) {
			return fallback, nil
		}
		if err != nil {
			return session.Profile{}, err
		}
		return a.Profile(), nil
	default:
		p, err := s.patients.GetByUser(ctx, u.ID)
		if errors.Is(err, db.ErrNotFound) {
			return fallback, nil
		}
		if err != nil {
			return session.Profile{}, err
		}
		return patientProfile(p), nil
	}
}

func patientProfile(p *patients.Patient) session.Profile {
	return session.Profile{
		ID:                  p.ID.String(),
		Name:                p.Name,
		Phone:               p.Phone,
		MedicalRecordNumber: p.MedicalRecordNumber,
		DateOfBirth:         p.DateOfBirth,
	}
}

// PatientSignIn signs a patient in by medical record number and date of
// birth. Patients without a login act as their patient record.
func (s *Service) PatientSignIn(ctx context.Context, mrn, dateOfBirth string) (*session.Session, error) {
	p, err := s.patients.LookupByMRN(ctx, mrn, dateOfBirth)
	if err != nil {
		return nil, err
	}
	userID := p.ID
	if p.UserID != nil {
		userID = *p.UserID
	}
	sess := &session.Session{UserID: userID.String(), Role: session.RolePatient, Profile: patientProfile(p)}
	if err := s.issuer.Issue(sess); err != nil {
		return nil, err
	}
	s.record(ctx, sess.UserID, "patient_login", nil)
	return sess, nil
}

func (s *Service) validateSignUp(ctx context.Context, req *session.SignUpRequest) (*uuid.UUID, error) {
	req.Email = normalizeEmail(req.Email)
	if !strings.Contains(req.Email, "@") {
		return nil, fmt.Errorf("valid email is required")
	}
	if len(req.Password) < MinPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if _, err := session.ParseRole(string(req.Role)); err != nil {
		return nil, err
	}
	req.Profile.Name = strings.TrimSpace(req.Profile.Name)
	if req.Profile.Name == "" {
		return nil, fmt.Errorf("name is required")
	}

	if req.Profile.OrganizationID == "" {
		if req.Role == session.RoleAdmin {
			return nil, fmt.Errorf("org_id is required")
		}
		return nil, nil
	}
	orgID, err := uuid.Parse(req.Profile.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("invalid org_id")
	}
	ok, err := s.orgs.VerifySecretCode(ctx, orgID, req.SecretCode)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidOrgCode
	}
	return &orgID, nil
}

// SignUp creates the account and its role profile. If the profile cannot be
// created the account is removed again. Doctors get no token until an admin
// approves them.
func (s *Service) SignUp(ctx context.Context, req session.SignUpRequest) (*session.Session, error) {
	orgID, err := s.validateSignUp(ctx, &req)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{Email: req.Email, PasswordHash: string(hash), Role: req.Role, FullName: req.Profile.Name}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	prof, err := s.provision(ctx, u, req.Profile, orgID)
	if err != nil {
		if derr := s.repo.DeleteUser(ctx, u.ID); derr != nil {
			s.logger.Error().Err(derr).Str("user_id", u.ID.String()).Msg("failed to remove user after profile error")
		}
		return nil, err
	}

	sess := &session.Session{UserID: u.ID.String(), Email: u.Email, Role: u.Role, Profile: prof}
	if u.Role != session.RoleDoctor {
		if err := s.issuer.Issue(sess); err != nil {
			return nil, err
		}
	}
	s.record(ctx, sess.UserID, "signup", map[string]interface{}{"role": string(u.Role)})
	return sess, nil
}

func (s *Service) provision(ctx context.Context, u *User, p session.Profile, orgID *uuid.UUID) (session.Profile, error) {
	switch u.Role {
	case session.RoleDoctor:
		d := &Doctor{
			UserID:        u.ID,
			OrgID:         orgID,
			Name:          p.Name,
			Phone:         p.Phone,
			Specialty:     p.Specialty,
			LicenseNumber: p.LicenseNumber,
			Hospital:      p.Hospital,
			Status:        DoctorPending,
		}
		if d.Specialty == "" {
			d.Specialty = DefaultSpecialty
		}
		if err := s.repo.CreateDoctor(ctx, d); err != nil {
			return session.Profile{}, err
		}
		return d.Profile(), nil
	case session.RoleAdmin:
		a := &Admin{UserID: u.ID, OrgID: orgID, Name: p.Name, Phone: p.Phone}
		if err := s.repo.CreateAdmin(ctx, a); err != nil {
			return session.Profile{}, err
		}
		return a.Profile(), nil
	default:
		pat := &patients.Patient{
			UserID:              &u.ID,
			Name:                p.Name,
			Phone:               p.Phone,
			Email:               u.Email,
			MedicalRecordNumber: p.MedicalRecordNumber,
			DateOfBirth:         p.DateOfBirth,
		}
		if err := s.patients.Create(ctx, pat); err != nil {
			return session.Profile{}, err
		}
		return patientProfile(pat), nil
	}
}

// SignOut revokes the session's token.
func (s *Service) SignOut(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return session.ErrNotSignedIn
	}
	if s.revoker != nil && sess.AccessToken != "" {
		s.revoker.RevokeToken(sess.AccessToken)
	}
	s.record(ctx, sess.UserID, "logout", nil)
	return nil
}

// Profile reloads the profile of a signed-in session.
func (s *Service) Profile(ctx context.Context, sess *session.Session) (session.Profile, error) {
	if sess.Role == session.RolePatient {
		id, err := uuid.Parse(sess.Profile.ID)
		if err != nil {
			return session.Profile{}, fmt.Errorf("invalid patient profile id")
		}
		p, err := s.patients.Get(ctx, id)
		if err != nil {
			return session.Profile{}, err
		}
		return patientProfile(p), nil
	}
	uid, err := uuid.Parse(sess.UserID)
	if err != nil {
		return session.Profile{}, fmt.Errorf("invalid user id")
	}
	u, err := s.repo.GetUserByID(ctx, uid)
	if err != nil {
		return session.Profile{}, err
	}
	return s.loadProfile(ctx, u)
}

func setIfPresent(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// UpdateProfile applies the non-empty editable fields of p to the session's
// profile row.
func (s *Service) UpdateProfile(ctx context.Context, sess *session.Session, p session.Profile) (session.Profile, error) {
	if sess == nil {
		return session.Profile{}, session.ErrNotSignedIn
	}
	var out session.Profile
	switch sess.Role {
	case session.RoleDoctor, session.RoleAdmin:
		uid, err := uuid.Parse(sess.UserID)
		if err != nil {
			return session.Profile{}, fmt.Errorf("invalid user id")
		}
		if sess.Role == session.RoleDoctor {
			d, err := s.repo.GetDoctorByUser(ctx, uid)
			if err != nil {
				return session.Profile{}, err
			}
			setIfPresent(&d.Name, p.Name)
			setIfPresent(&d.Phone, p.Phone)
			setIfPresent(&d.Specialty, p.Specialty)
			setIfPresent(&d.LicenseNumber, p.LicenseNumber)
			setIfPresent(&d.Hospital, p.Hospital)
			if err := s.repo.UpdateDoctor(ctx, d); err != nil {
				return session.Profile{}, err
			}
			out = d.Profile()
		} else {
			a, err := s.repo.GetAdminByUser(ctx, uid)
			if err != nil {
				return session.Profile{}, err
			}
			setIfPresent(&a.Name, p.Name)
			setIfPresent(&a.Phone, p.Phone)
			if err := s.repo.UpdateAdmin(ctx, a); err != nil {
				return session.Profile{}, err
			}
			out = a.Profile()
		}
	default:
		id, err := uuid.Parse(sess.Profile.ID)
		if err != nil {
			return session.Profile{}, fmt.Errorf("invalid patient profile id")
		}
		pat, err := s.patients.Get(ctx, id)
		if err != nil {
			return session.Profile{}, err
		}
		setIfPresent(&pat.Name, p.Name)
		setIfPresent(&pat.Phone, p.Phone)
		if err := s.patients.Update(ctx, pat); err != nil {
			return session.Profile{}, err
		}
		out = patientProfile(pat)
	}
	s.record(ctx, sess.UserID, "profile_updated", nil)
	return out, nil
}
