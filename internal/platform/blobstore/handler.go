package blobstore

import (
	"errors"
	"fmt"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"
)

// Handler serves stored objects at /storage/:bucket/<key>.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/storage/:bucket/*", h.handleGet)
}

func (h *Handler) handleGet(c echo.Context) error {
	bucket := c.Param("bucket")
	key := c.Param("*")

	rc, obj, err := h.store.Get(c.Request().Context(), bucket, key)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "object not found")
		case errors.Is(err, ErrInvalidKey):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read object")
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, path.Base(obj.Key)))
	return c.Stream(http.StatusOK, obj.ContentType, rc)
}
