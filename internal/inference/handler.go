package inference

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/malariadx/malariadx/internal/intake"
	"github.com/malariadx/malariadx/internal/platform/auth"
	"github.com/malariadx/malariadx/internal/session"
)

// Handler exposes the model server's read-backs and prediction variants to
// signed-in users. The caller's own token is forwarded upstream.
type Handler struct {
	client   *Client
	maxBytes int64
}

func NewHandler(client *Client, maxBytes int64) *Handler {
	if maxBytes <= 0 {
		maxBytes = intake.DefaultMaxBytes
	}
	return &Handler{client: client, maxBytes: maxBytes}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/ml")
	g.GET("/health", h.Health)
	g.GET("/model", h.ModelInfo)
	g.GET("/predictions/:id", h.GetPrediction)
	g.GET("/me/predictions", h.MyPredictions, auth.RequireRole(session.RoleDoctor))
	g.GET("/doctor/stats", h.DoctorStats, auth.RequireRole(session.RoleDoctor))
	g.GET("/doctor/profile", h.DoctorProfile, auth.RequireRole(session.RoleDoctor))
	g.GET("/patients/:id/history", h.PatientHistory, auth.RequireRole(session.RoleDoctor))
	g.GET("/patients/:id/predictions", h.PatientPredictions, auth.RequireRole(session.RoleDoctor))
	g.GET("/organizations/:id/stats", h.OrganizationStats, auth.RequireRole(session.RoleAdmin))

	staff := g.Group("", auth.RequireRole(session.RoleDoctor))
	staff.POST("/predict", h.Predict)
	staff.POST("/predict/tta", h.PredictWithTTA)
	staff.POST("/predict/batch", h.PredictBatch)

	api.GET("/public/reports", h.PublicReports)
}

func (h *Handler) Health(c echo.Context) error {
	out, err := h.client.CheckHealth(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) ModelInfo(c echo.Context) error {
	out, err := h.client.ModelInfo(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) GetPrediction(c echo.Context) error {
	out, err := h.client.GetPrediction(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) MyPredictions(c echo.Context) error {
	return passThrough(c)(h.client.GetMyPredictions(c.Request().Context()))
}

func (h *Handler) DoctorStats(c echo.Context) error {
	return passThrough(c)(h.client.GetDoctorStats(c.Request().Context()))
}

func (h *Handler) DoctorProfile(c echo.Context) error {
	return passThrough(c)(h.client.GetDoctorProfile(c.Request().Context()))
}

func (h *Handler) PatientHistory(c echo.Context) error {
	return passThrough(c)(h.client.GetPatientHistory(c.Request().Context(), c.Param("id")))
}

func (h *Handler) PatientPredictions(c echo.Context) error {
	return passThrough(c)(h.client.GetPatientPredictions(c.Request().Context(), c.Param("id")))
}

func (h *Handler) OrganizationStats(c echo.Context) error {
	return passThrough(c)(h.client.GetOrganizationStats(c.Request().Context(), c.Param("id")))
}

func (h *Handler) PublicReports(c echo.Context) error {
	return passThrough(c)(h.client.GetPublicReports(c.Request().Context()))
}

// Predict classifies the "file" part without persisting anything.
func (h *Handler) Predict(c echo.Context) error {
	img, err := h.formImage(c, "file")
	if err != nil {
		return err
	}
	out, err := h.client.Predict(c.Request().Context(), img, c.FormValue("patient_id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) PredictWithTTA(c echo.Context) error {
	img, err := h.formImage(c, "file")
	if err != nil {
		return err
	}
	out, err := h.client.PredictWithTTA(c.Request().Context(), img, c.FormValue("patient_id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

// PredictBatch classifies every "files" part in one upstream call.
func (h *Handler) PredictBatch(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form is required")
	}
	var imgs []Image
	for _, fh := range form.File["files"] {
		u, err := intake.Select(intake.FromFileHeader(fh), h.maxBytes)
		if err != nil {
			return intakeError(err)
		}
		imgs = append(imgs, Image{FileName: u.FileName, ContentType: u.MIMEType, Data: u.Raw})
	}
	out, err := h.client.PredictBatch(c.Request().Context(), imgs, c.FormValue("patient_id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) formImage(c echo.Context, field string) (Image, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return Image{}, echo.NewHTTPError(http.StatusBadRequest, field+" is required")
	}
	u, err := intake.Select(intake.FromFileHeader(fh), h.maxBytes)
	if err != nil {
		return Image{}, intakeError(err)
	}
	return Image{FileName: u.FileName, ContentType: u.MIMEType, Data: u.Raw}, nil
}

func passThrough(c echo.Context) func(json.RawMessage, error) error {
	return func(raw json.RawMessage, err error) error {
		if err != nil {
			return httpError(err)
		}
		return c.JSONBlob(http.StatusOK, raw)
	}
}

func intakeError(err error) error {
	var ve *intake.ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusBadRequest, ve.Message)
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

// httpError maps a client failure onto the status the caller should see.
func httpError(err error) error {
	msg := UserMessage(err)
	switch KindOf(err) {
	case KindValidation:
		return echo.NewHTTPError(http.StatusBadRequest, msg)
	case KindUnauthorized:
		return echo.NewHTTPError(http.StatusUnauthorized, msg)
	case KindNetwork, KindTunnel:
		return echo.NewHTTPError(http.StatusServiceUnavailable, msg)
	default:
		return echo.NewHTTPError(http.StatusBadGateway, msg)
	}
}
