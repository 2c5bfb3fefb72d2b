package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication.
var publicPaths = map[string]bool{
	"/health":                      true,
	"/metrics":                     true,
	"/api/v1/auth/login":           true,
	"/api/v1/auth/patient-login":   true,
	"/api/v1/auth/signup":          true,
	"/api/v1/public/reports":       true,
	"/api/v1/public/organizations": true,
	"/api/v1/organizations/verify": true,
}

// AuthSkipper matches on the route template, so it only applies after routing.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
