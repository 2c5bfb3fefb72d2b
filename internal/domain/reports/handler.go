package reports

import (
	"errors"
	"io"
	"mime"
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
	staff := api.Group("/reports", auth.RequireRole(session.RoleDoctor))
	staff.GET("", h.List)
	staff.POST("", h.Create)
	staff.POST("/upload", h.Submit)
	staff.GET("/stats", h.Stats)
	staff.GET("/:id", h.Get)
	staff.PUT("/:id", h.Update)
	staff.DELETE("/:id", h.Delete)
	staff.POST("/:id/post", h.PostToPatient)
	staff.GET("/:id/download", h.Download)

	mine := api.Group("/patient/reports", auth.RequireRole(session.RolePatient))
	mine.GET("", h.ListMine)
	mine.GET("/:id/download", h.DownloadMine)
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
	if f.DoctorID == nil {
		f.DoctorID = auth.DoctorScope(c)
	}
	f.ReportType = c.QueryParam("report_type")
	f.PostedOnly = params.Bool(c, "posted_only")

	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return pagination.Respond(c, pg, items, total)
}

func (h *Handler) Create(c echo.Context) error {
	var r Report
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if r.DoctorID == nil {
		r.DoctorID = auth.DoctorScope(c)
	}
	if err := h.svc.Create(c.Request().Context(), &r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, r)
}

// Submit accepts a multipart form: file, patient_id, title, description,
// report_type.
func (h *Handler) Submit(c echo.Context) error {
	patientID, err := uuid.Parse(c.FormValue("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Please select a patient")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Please upload a PDF file")
	}
	if fh.Size > MaxFileBytes {
		return echo.NewHTTPError(http.StatusBadRequest, ErrTooLarge.Error())
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxFileBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	r := Report{
		PatientID:   patientID,
		DoctorID:    auth.DoctorScope(c),
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		ReportType:  c.FormValue("report_type"),
	}
	if err := h.svc.Submit(c.Request().Context(), &r, fh.Filename, fh.Header.Get("Content-Type"), data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var r Report
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r.ID = id
	if err := h.svc.Update(c.Request().Context(), &r); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "report not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "report not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) PostToPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.PostToPatient(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Stats(c echo.Context) error {
	doctorID, err := params.UUID(c, "doctor_id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if doctorID == nil {
		doctorID = auth.DoctorScope(c)
	}
	stats, err := h.svc.Stats(c.Request().Context(), doctorID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) Download(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	return h.stream(c, r)
}

func (h *Handler) ListMine(c echo.Context) error {
	patientID, err := auth.CurrentProfileID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return pagination.Respond(c, pg, items, total)
}

func (h *Handler) DownloadMine(c echo.Context) error {
	patientID, err := auth.CurrentProfileID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.GetForPatient(c.Request().Context(), id, patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	return h.stream(c, r)
}

func (h *Handler) stream(c echo.Context, r *Report) error {
	rc, obj, err := h.svc.Open(c.Request().Context(), r)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "report file not found")
	}
	defer rc.Close()
	name := r.FileName
	if name == "" {
		name = r.FilePath
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	return c.Stream(http.StatusOK, obj.ContentType, rc)
}
