package detection

import (
	"errors"
	"mime"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/malariadx/malariadx/internal/intake"
	"github.com/malariadx/malariadx/internal/platform/auth"
	"github.com/malariadx/malariadx/internal/reportpdf"
	"github.com/malariadx/malariadx/internal/session"
)

type Handler struct {
	orch     *Orchestrator
	registry *Registry
	stream   Streamer
}

func NewHandler(orch *Orchestrator, registry *Registry) *Handler {
	return &Handler{orch: orch, registry: registry}
}

// SetStream enables GET /detections/:id/events.
func (h *Handler) SetStream(s Streamer) { h.stream = s }

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/detections", auth.RequireRole(session.RoleDoctor))
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PUT("/:id/image", h.Replace)
	g.POST("/:id/analyze", h.Analyze)
	g.DELETE("/:id", h.Reset)
	g.GET("/:id/report", h.Report)
	g.POST("/:id/share", h.Share)
	g.GET("/:id/events", h.Events)
}

// Create opens a workspace holding the uploaded "file" part.
func (h *Handler) Create(c echo.Context) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	ws := h.registry.Create(s.UserID)
	snap, err := h.orch.Upload(ws, intake.FromFileHeader(fh))
	if err != nil {
		h.registry.Delete(ws.ID)
		return uploadError(err)
	}
	return c.JSON(http.StatusCreated, snap)
}

// Replace swaps the held image, e.g. after a failed analysis.
func (h *Handler) Replace(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	snap, err := h.orch.Upload(ws, intake.FromFileHeader(fh))
	if err != nil {
		return uploadError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) Get(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.orch.Snapshot(ws))
}

// Analyze answers 200 with the snapshot on success. A failed analysis is
// 502 with the user-facing message; the image stays held.
func (h *Handler) Analyze(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := h.orch.Analyze(c.Request().Context(), ws, req); err != nil {
		switch {
		case errors.Is(err, ErrBusy), errors.Is(err, ErrResultHeld):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, ErrNoImage):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, ErrPatientRequired), errors.Is(err, ErrInvalidPatient):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusBadGateway, h.orch.Snapshot(ws))
	}
	return c.JSON(http.StatusOK, h.orch.Snapshot(ws))
}

func (h *Handler) Reset(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	if err := h.orch.Reset(ws); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, h.orch.Snapshot(ws))
}

func (h *Handler) Report(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	doctor := reportpdf.DoctorProfile{FullName: s.Profile.Name, Hospital: s.Profile.Hospital}
	d, doc, err := h.orch.Report(c.Request().Context(), ws, doctor)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "application/pdf")
	resp.Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": reportpdf.DoctorFileName(d)}))
	resp.WriteHeader(http.StatusOK)
	_, err = doc.WriteTo(resp)
	return err
}

func (h *Handler) Share(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	if err := h.orch.Share(ws); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// Events streams the workspace over a websocket, starting with its current
// snapshot.
func (h *Handler) Events(c echo.Context) error {
	if h.stream == nil {
		return echo.NewHTTPError(http.StatusNotFound, "event stream is disabled")
	}
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	initial := h.orch.event(ws)
	return h.stream.Serve(c, Topic(ws.ID), &initial)
}

// workspace loads the :id workspace. Only its owner or an admin may use it.
func (h *Handler) workspace(c echo.Context) (*Workspace, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ws, err := h.registry.Get(id)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	s, err := auth.CurrentSession(c)
	if err != nil {
		return nil, err
	}
	if ws.OwnerID != s.UserID && s.Role != session.RoleAdmin {
		return nil, echo.NewHTTPError(http.StatusNotFound, ErrWorkspaceNotFound.Error())
	}
	return ws, nil
}

func uploadError(err error) error {
	var ve *intake.ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusBadRequest, ve.Message)
	}
	if errors.Is(err, ErrBusy) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
