// internal/session/cookie.go
//
// Signed session cookie.
//
// Context
//   The cookie never carries session data, only the random session ID.  We
//   wrap that ID in an HS256 JWT so a tampered or forged cookie is rejected
//   before any store lookup happens.
//
//------------------------------------------------------------------------------

package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrBadCookie is returned when a cookie fails signature or expiry checks.
var ErrBadCookie = errors.New("invalid session cookie")

// CookieCodec signs and verifies session IDs.
type CookieCodec struct {
	secret []byte
}

// NewCookieCodec panics on an empty secret; the loader validates config
// before this point so an empty key is a wiring bug.
func NewCookieCodec(secret string) *CookieCodec {
	if secret == "" {
		panic("session: cookie secret must not be empty")
	}
	return &CookieCodec{secret: []byte(secret)}
}

// Encode returns a signed token carrying id that expires after ttl.
func (c *CookieCodec) Encode(id string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session cookie: %w", err)
	}
	return tok, nil
}

// Decode verifies raw and returns the embedded session ID.
func (c *CookieCodec) Decode(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || claims.ID == "" {
		return "", ErrBadCookie
	}
	return claims.ID, nil
}
