package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
)

// RevocationList remembers signed-out token IDs until the tokens would have
// expired on their own.
type RevocationList struct {
	c *cache.Cache
}

func NewRevocationList() *RevocationList {
	return &RevocationList{c: cache.New(time.Hour, 5*time.Minute)}
}

func (r *RevocationList) Revoke(jti string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if jti == "" || ttl <= 0 {
		return
	}
	r.c.Set(jti, struct{}{}, ttl)
}

// RevokeToken parses a token without verifying it and revokes its ID. It is
// only called for tokens that already passed the middleware.
func (r *RevocationList) RevokeToken(raw string) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return
	}
	if claims.ExpiresAt == nil {
		return
	}
	r.Revoke(claims.ID, claims.ExpiresAt.Time)
}

func (r *RevocationList) IsRevoked(jti string) bool {
	if r == nil || jti == "" {
		return false
	}
	_, found := r.c.Get(jti)
	return found
}

func (r *RevocationList) Count() int {
	return r.c.ItemCount()
}
