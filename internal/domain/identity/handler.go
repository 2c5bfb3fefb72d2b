package identity

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/malariadx/malariadx/internal/domain/patients"
	"github.com/malariadx/malariadx/internal/platform/auth"
	"github.com/malariadx/malariadx/internal/platform/db"
	"github.com/malariadx/malariadx/internal/session"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the sign-in routes, which are public, and the
// routes that act on the caller's own session.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/auth")
	g.POST("/login", h.Login)
	g.POST("/patient-login", h.PatientLogin)
	g.POST("/signup", h.Signup)

	me := api.Group("/auth", auth.RequireRole(session.RoleDoctor, session.RolePatient))
	me.POST("/logout", h.Logout)
	me.GET("/me", h.Me)
	me.PUT("/profile", h.UpdateProfile)
}

func authError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, patients.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrPendingApproval), errors.Is(err, ErrInvalidOrgCode):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, db.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "profile not found")
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func (h *Handler) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.svc.SignIn(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return authError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) PatientLogin(c echo.Context) error {
	var req struct {
		MedicalRecordNumber string `json:"medical_record_number"`
		DateOfBirth         string `json:"date_of_birth"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.svc.PatientSignIn(c.Request().Context(), req.MedicalRecordNumber, req.DateOfBirth)
	if err != nil {
		return authError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) Signup(c echo.Context) error {
	var req session.SignUpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.svc.SignUp(c.Request().Context(), req)
	if err != nil {
		return authError(err)
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) Logout(c echo.Context) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	if err := h.svc.SignOut(c.Request().Context(), s); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type meResponse struct {
	UserID     string          `json:"user_id"`
	Email      string          `json:"email,omitempty"`
	Role       session.Role    `json:"role"`
	Profile    session.Profile `json:"profile"`
	Navigation []session.Link  `json:"navigation"`
}

func (h *Handler) Me(c echo.Context) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	prof, err := h.svc.Profile(c.Request().Context(), s)
	if err != nil {
		return authError(err)
	}
	return c.JSON(http.StatusOK, meResponse{
		UserID:     s.UserID,
		Email:      s.Email,
		Role:       s.Role,
		Profile:    prof,
		Navigation: session.NavigationFor(s.Role),
	})
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	var p session.Profile
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	prof, err := h.svc.UpdateProfile(c.Request().Context(), s, p)
	if err != nil {
		return authError(err)
	}
	return c.JSON(http.StatusOK, prof)
}
