package analytics

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/malariadx/malariadx/internal/platform/auth"
	"github.com/malariadx/malariadx/internal/session"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/analytics", auth.RequireRole(session.RoleDoctor, session.RolePatient))
	g.GET("/dashboard", h.Dashboard)
	g.GET("/trends", h.Trends)
	g.POST("/activity", h.LogActivity)

	admin := api.Group("/analytics", auth.RequireRole(session.RoleAdmin))
	admin.GET("/system", h.System)
	admin.GET("/activity", h.ActivityLogs)
}

// caller resolves the id statistics are keyed on: the patient record for
// patients and the user otherwise.
func caller(c echo.Context) (uuid.UUID, session.Role, error) {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return uuid.Nil, "", err
	}
	var id uuid.UUID
	if s.Role == session.RolePatient {
		id, err = auth.CurrentProfileID(c)
	} else {
		id, err = auth.CurrentUserID(c)
	}
	return id, s.Role, err
}

func intParam(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return n, nil
}

func (h *Handler) Dashboard(c echo.Context) error {
	id, role, err := caller(c)
	if err != nil {
		return err
	}
	st, err := h.svc.DashboardStats(c.Request().Context(), id, role)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) Trends(c echo.Context) error {
	id, role, err := caller(c)
	if err != nil {
		return err
	}
	days, err := intParam(c, "days")
	if err != nil {
		return err
	}
	items, err := h.svc.TestTrends(c.Request().Context(), id, role, days)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) System(c echo.Context) error {
	st, err := h.svc.SystemStats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) ActivityLogs(c echo.Context) error {
	limit, err := intParam(c, "limit")
	if err != nil {
		return err
	}
	items, err := h.svc.ActivityLogs(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) LogActivity(c echo.Context) error {
	uid, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	var req struct {
		Action  string                 `json:"action"`
		Details map[string]interface{} `json:"details"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.LogActivity(c.Request().Context(), &uid, req.Action, req.Details)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}
