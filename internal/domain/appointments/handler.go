package appointments

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/malariadx/malariadx/internal/platform/auth"
	"github.com/malariadx/malariadx/internal/platform/db"
	"github.com/malariadx/malariadx/internal/session"
	"github.com/malariadx/malariadx/pkg/pagination"
	"github.com/malariadx/malariadx/pkg/params"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("/appointments", auth.RequireRole(session.RoleDoctor))
	staff.GET("", h.List)
	staff.POST("", h.Create)
	staff.GET("/:id", h.Get)
	staff.PUT("/:id", h.Update)
	staff.DELETE("/:id", h.Delete)
	staff.POST("/:id/cancel", h.Cancel)

	all := api.Group("/appointments", auth.RequireRole(session.RoleDoctor, session.RolePatient))
	all.GET("/upcoming", h.Upcoming)

	mine := api.Group("/patient/appointments", auth.RequireRole(session.RolePatient))
	mine.GET("", h.ListMine)
}

func (h *Handler) Create(c echo.Context) error {
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if a.DoctorID == nil {
		a.DoctorID = auth.DoctorScope(c)
	}
	if err := h.svc.Create(c.Request().Context(), &a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f Filter
	var err error
	if f.PatientID, err = params.UUID(c, "patient_id"); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if f.DoctorID, err = params.UUID(c, "doctor_id"); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if f.Start, err = params.Time(c, "start_date"); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if f.End, err = params.Time(c, "end_date"); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if st := c.QueryParam("status"); st != "" {
		f.Status = []string{st}
	}
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return pagination.Respond(c, pg, items, total)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a.ID = id
	if err := h.svc.Update(c.Request().Context(), &a); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Cancel(c.Request().Context(), id, body.Reason)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	return c.JSON(http.StatusOK, a)
}

// Upcoming keys on the profile id for patients and the user id otherwise.
func (h *Handler) Upcoming(c echo.Context) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	var id uuid.UUID
	if s.Role == session.RolePatient {
		id, err = auth.CurrentProfileID(c)
	} else {
		id, err = auth.CurrentUserID(c)
	}
	if err != nil {
		return err
	}
	items, err := h.svc.Upcoming(c.Request().Context(), id, s.Role)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListMine(c echo.Context) error {
	id, err := auth.CurrentProfileID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), Filter{PatientID: &id}, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return pagination.Respond(c, pg, items, total)
}
