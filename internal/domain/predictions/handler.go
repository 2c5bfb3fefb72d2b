package predictions

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/malariadx/malariadx/internal/platform/auth"
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
	g := api.Group("/predictions", auth.RequireRole(session.RoleDoctor))
	g.GET("", h.List)
	g.GET("/stats", h.Stats)
	g.GET("/weekly", h.Weekly)
	g.GET("/history", h.History)
	g.GET("/:id", h.Get)

	api.GET("/patients/:id/samples", h.ListByPatient, auth.RequireRole(session.RoleDoctor))
	api.GET("/patient/samples", h.ListMine, auth.RequireRole(session.RolePatient))
}

func parseFilter(c echo.Context) (Filter, error) {
	var f Filter
	var err error
	if f.PatientID, err = params.UUID(c, "patient_id"); err != nil {
		return f, err
	}
	if f.DoctorID, err = params.UUID(c, "doctor_id"); err != nil {
		return f, err
	}
	if f.DoctorID == nil {
		f.DoctorID = auth.DoctorScope(c)
	}
	if f.Start, err = params.Time(c, "start_date"); err != nil {
		return f, err
	}
	if f.End, err = params.Time(c, "end_date"); err != nil {
		return f, err
	}
	f.PredictedClass = c.QueryParam("predicted_class")
	return f, nil
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "prediction not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f, err := parseFilter(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return pagination.Respond(c, pg, items, total)
}

func (h *Handler) Stats(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	stats, err := h.svc.Stats(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) Weekly(c echo.Context) error {
	doctorID, err := params.UUID(c, "doctor_id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if doctorID == nil {
		doctorID = auth.DoctorScope(c)
	}
	days, err := h.svc.Weekly(c.Request().Context(), doctorID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, days)
}

func (h *Handler) History(c echo.Context) error {
	var f HistoryFilter
	var err error
	if f.DoctorID, err = params.UUID(c, "doctor_id"); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if f.DoctorID == nil {
		f.DoctorID = auth.DoctorScope(c)
	}
	f.Status = c.QueryParam("status")
	if v := c.QueryParam("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
	}
	items, err := h.svc.History(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	samples, err := h.svc.ListByPatient(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, samples)
}

func (h *Handler) ListMine(c echo.Context) error {
	id, err := auth.CurrentProfileID(c)
	if err != nil {
		return err
	}
	samples, err := h.svc.ListByPatient(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, samples)
}
