package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/malariadx/malariadx/internal/session"
)

// RequireRole admits sessions holding one of roles. Admins always pass.
func RequireRole(roles ...session.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, ok := session.FromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if s.Role == session.RoleAdmin {
				return next(c)
			}
			for _, r := range roles {
				if s.Role == r {
					return next(c)
				}
			}
			names := make([]string, len(roles))
			for i, r := range roles {
				names[i] = string(r)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(names, " or ")))
		}
	}
}

// CurrentSession returns the request's session, or a 401 error.
func CurrentSession(c echo.Context) (*session.Session, error) {
	s, ok := session.FromContext(c.Request().Context())
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return s, nil
}

// CurrentUserID parses the session's user id.
func CurrentUserID(c echo.Context) (uuid.UUID, error) {
	s, err := CurrentSession(c)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s.UserID)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid session subject")
	}
	return id, nil
}

// CurrentProfileID parses the id of the session's role profile. For patients
// this is the patient record, not the login.
func CurrentProfileID(c echo.Context) (uuid.UUID, error) {
	s, err := CurrentSession(c)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s.Profile.ID)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "no profile linked to this session")
	}
	return id, nil
}

// DoctorScope is the doctor a listing defaults to: the caller when signed in
// as a doctor, nil for admins and anonymous callers.
func DoctorScope(c echo.Context) *uuid.UUID {
	s, ok := session.FromContext(c.Request().Context())
	if !ok || s.Role != session.RoleDoctor {
		return nil
	}
	id, err := uuid.Parse(s.UserID)
	if err != nil {
		return nil
	}
	return &id
}
