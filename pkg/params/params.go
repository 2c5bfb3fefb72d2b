// Package params parses optional filter query parameters.
package params

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const dateLayout = "2006-01-02"

// UUID returns nil when the parameter is absent.
func UUID(c echo.Context, name string) (*uuid.UUID, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", name)
	}
	return &id, nil
}

// Time accepts RFC 3339 or a plain date. Returns nil when absent.
func Time(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: want YYYY-MM-DD or RFC 3339", name)
	}
	return &t, nil
}

// Bool is true for "true" or "1".
func Bool(c echo.Context, name string) bool {
	v := c.QueryParam(name)
	return v == "true" || v == "1"
}
