package organizations

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/malariadx/malariadx/internal/platform/auth"
	"github.com/malariadx/malariadx/internal/platform/db"
	"github.com/malariadx/malariadx/internal/session"
	"github.com/malariadx/malariadx/pkg/params"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the admin routes. Every route requires the admin role.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/organizations", auth.RequireRole(session.RoleAdmin))
	g.POST("", h.Create)
	g.GET("/:id", h.Get)

	d := api.Group("/doctors", auth.RequireRole(session.RoleAdmin))
	d.GET("", h.ListDoctors)
	d.GET("/pending", h.ListPending)
	d.GET("/approved", h.ListApproved)
	d.POST("/:id/approve", h.Approve)
	d.DELETE("/:id", h.Reject)
}

// RegisterPublicRoutes mounts the routes used before sign-up.
func (h *Handler) RegisterPublicRoutes(api *echo.Group) {
	api.GET("/public/organizations", h.List)
	api.POST("/organizations/verify", h.Verify)
}

func (h *Handler) Create(c echo.Context) error {
	var o Organization
	if err := c.Bind(&o); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &o); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	o, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "organization not found")
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) List(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Verify(c echo.Context) error {
	var req struct {
		OrgID      uuid.UUID `json:"org_id"`
		SecretCode string    `json:"secret_code"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ok, err := h.svc.VerifySecretCode(c.Request().Context(), req.OrgID, req.SecretCode)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"valid": ok})
}

// orgScope is the caller's organization, or the org_id query parameter for
// admins not bound to one.
func orgScope(c echo.Context) (uuid.UUID, error) {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return uuid.Nil, err
	}
	if s.Profile.OrganizationID != "" {
		id, err := uuid.Parse(s.Profile.OrganizationID)
		if err != nil {
			return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "invalid organization on session")
		}
		return id, nil
	}
	id, err := params.UUID(c, "org_id")
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if id == nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "org_id is required")
	}
	return *id, nil
}

func (h *Handler) ListDoctors(c echo.Context) error {
	orgID, err := orgScope(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListDoctors(c.Request().Context(), orgID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListPending(c echo.Context) error {
	orgID, err := orgScope(c)
	if err != nil {
		return err
	}
	items, err := h.svc.PendingDoctors(c.Request().Context(), orgID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListApproved(c echo.Context) error {
	orgID, err := orgScope(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListApprovedDoctors(c.Request().Context(), orgID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Approve(c echo.Context) error {
	orgID, err := orgScope(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.ApproveDoctor(c.Request().Context(), orgID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "doctor not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Reject(c echo.Context) error {
	orgID, err := orgScope(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.RejectDoctor(c.Request().Context(), orgID, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "doctor not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
