package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/malariadx/malariadx/internal/session"
)

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey selects HS256 verification instead of JWKS.
	SigningKey  []byte
	Revocations *RevocationList
	Skipper     func(echo.Context) bool
}

const defaultJWKSCacheTTL = 5 * time.Minute

// Verifier validates bearer tokens and turns them into sessions.
type Verifier struct {
	cfg  JWTConfig
	jwks *jwksCache
}

func NewVerifier(cfg JWTConfig) *Verifier {
	v := &Verifier{cfg: cfg}
	if len(cfg.SigningKey) == 0 {
		url := cfg.JWKSURL
		if url == "" && cfg.Issuer != "" {
			url = strings.TrimRight(cfg.Issuer, "/") + "/.well-known/jwks.json"
		}
		v.jwks = newJWKSCache(url, defaultJWKSCacheTTL)
	}
	return v
}

func (v *Verifier) Verify(ctx context.Context, tokenStr string) (*session.Session, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	claims := &Claims{}
	var (
		token *jwt.Token
		err   error
	)
	if len(v.cfg.SigningKey) > 0 {
		opts = append(opts, jwt.WithValidMethods([]string{"HS256"}))
		token, err = jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return v.cfg.SigningKey, nil
		}, opts...)
	} else {
		opts = append(opts, jwt.WithValidMethods([]string{"RS256"}))
		token, err = jwt.ParseWithClaims(tokenStr, claims, v.jwks.keyfunc(ctx), opts...)
	}
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if v.cfg.Revocations.IsRevoked(claims.ID) {
		return nil, fmt.Errorf("token revoked")
	}

	role, err := session.ParseRole(claims.Role)
	if err != nil {
		return nil, err
	}

	s := &session.Session{
		UserID:      claims.Subject,
		Email:       claims.Email,
		Role:        role,
		AccessToken: tokenStr,
		Profile: session.Profile{
			ID:             claims.ProfileID,
			Name:           claims.Name,
			OrganizationID: claims.OrgID,
		},
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		// browsers cannot set headers on a websocket handshake
		if c.IsWebSocket() {
			if tok := c.QueryParam("access_token"); tok != "" {
				return tok, nil
			}
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}

func attach(c echo.Context, s *session.Session) {
	c.Set("session", s)
	c.SetRequest(c.Request().WithContext(session.WithSession(c.Request().Context(), s)))
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	v := NewVerifier(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}
			tokenStr, err := bearerToken(c)
			if err != nil {
				return err
			}
			s, err := v.Verify(c.Request().Context(), tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			attach(c, s)
			return next(c)
		}
	}
}

// DevUserID is the identity anonymous requests act as in development mode.
const DevUserID = "00000000-0000-0000-0000-000000000001"

// DevAuthMiddleware lets anonymous requests through as an admin. Requests
// that do carry a token are still verified.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	strict := JWTMiddleware(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		verified := strict(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" {
				return verified(c)
			}
			attach(c, &session.Session{
				UserID:  DevUserID,
				Email:   "dev@localhost",
				Role:    session.RoleAdmin,
				Profile: session.Profile{ID: DevUserID, Name: "Development User"},
			})
			return next(c)
		}
	}
}

func UserIDFromContext(ctx context.Context) string {
	s, _ := session.FromContext(ctx)
	if s == nil {
		return ""
	}
	return s.UserID
}

func RoleFromContext(ctx context.Context) session.Role {
	s, _ := session.FromContext(ctx)
	if s == nil {
		return ""
	}
	return s.Role
}
