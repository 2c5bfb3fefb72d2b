package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/malariadx/malariadx/internal/session"
)

// Claims carry the profile id so patient routes can resolve their record
// without a lookup.
type Claims struct {
	jwt.RegisteredClaims
	Email     string `json:"email,omitempty"`
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	ProfileID string `json:"pid,omitempty"`
	OrgID     string `json:"org,omitempty"`
}

// Issuer mints HS256 access tokens for standalone mode.
type Issuer struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewIssuer(key []byte, issuer, audience string, ttl time.Duration) *Issuer {
	return &Issuer{key: key, issuer: issuer, audience: audience, ttl: ttl, now: time.Now}
}

// Issue signs a token for s and stores it, with its expiry, on s.
func (i *Issuer) Issue(s *session.Session) error {
	now := i.now()
	exp := now.Add(i.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   s.UserID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email:     s.Email,
		Role:      string(s.Role),
		Name:      s.Profile.Name,
		ProfileID: s.Profile.ID,
		OrgID:     s.Profile.OrganizationID,
	}
	if i.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	s.AccessToken = signed
	s.ExpiresAt = exp
	return nil
}
