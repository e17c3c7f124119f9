// internal/form/csrf.go
//
// Beacon – Forms subsystem: session-bound CSRF tokens.
//
// Context
//   The browser asks /api/login/access for a token right before each
//   mutating call.  That call mints a fresh per-session secret of the form
//   “<unix-millis>-<uuid>” and returns a token derived from it:
//
//      base64url( nonce | HMAC_SHA256(secret, nonce) )
//
//   •  nonce – 16 random bytes, so two tokens for one secret differ.
//   •  HMAC  – keyed with the session secret.  A token from another session
//      never verifies.
//
//   The secret’s mint time bounds the token lifetime (MaxAge, ten seconds by
//   default).  A token is read from the `X-CSRF-Token` header or the `_csrf`
//   body key.
//
// Workflow
//   •  MintSecret(now)           → new secret for the session.
//   •  Token(secret)             → token handed to the browser.
//   •  VerifyToken(secret, tok)  → constant-time verify.
//   •  CSRF(maxAge, exempt)      → chi middleware for unsafe methods.
//
//------------------------------------------------------------------------------

package form

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yanizio/beacon/internal/reply"
	"github.com/yanizio/beacon/internal/session"
)

const (
	nonceBytes = 16
	tokenBytes = nonceBytes + sha256.Size

	// DefaultCSRFMaxAge is how long a minted secret accepts tokens.
	DefaultCSRFMaxAge = 10 * time.Second

	// CSRFHeader and CSRFField are where a token is looked for.
	CSRFHeader = "X-CSRF-Token"
	CSRFField  = "_csrf"
)

// MintSecret returns a new session secret stamped with now.
func MintSecret(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.NewString()
}

// Token derives a fresh token from secret.
func Token(secret string) (string, error) {
	buf := make([]byte, nonceBytes, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	buf = append(buf, sign(secret, buf)...)
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// VerifyToken reports whether tok was derived from secret.
func VerifyToken(secret, tok string) bool {
	if secret == "" {
		return false
	}
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil || len(raw) != tokenBytes {
		return false
	}
	return hmac.Equal(raw[nonceBytes:], sign(secret, raw[:nonceBytes]))
}

func sign(secret string, nonce []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(nonce)
	return mac.Sum(nil)
}

// CSRF rejects unsafe requests whose token is missing, forged, or older than
// maxAge.  exempt, when non-nil, lets specific requests through (the login
// access route mints secrets and cannot present one).  ParseBody must run
// first so the `_csrf` key is visible.
func CSRF(maxAge time.Duration, exempt func(*http.Request) bool) func(http.Handler) http.Handler {
	if maxAge <= 0 {
		maxAge = DefaultCSRFMaxAge
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			if exempt != nil && exempt(r) {
				next.ServeHTTP(w, r)
				return
			}

			s := session.FromContext(r.Context())
			tok := r.Header.Get(CSRFHeader)
			if tok == "" {
				tok = PayloadFrom(r.Context()).String(CSRFField)
			}
			minted := s.CSRFMintedAt()

			switch {
			case tok == "" || !VerifyToken(s.CSRFSecret, tok):
				zap.S().Infow("csrf token rejected", "path", r.URL.Path)
			case minted.IsZero() || time.Since(minted) > maxAge:
				zap.S().Infow("csrf token expired", "path", r.URL.Path, "minted", minted)
			default:
				next.ServeHTTP(w, r)
				return
			}
			reply.JSON(w, http.StatusForbidden, reply.Obj{"msg": "Invalid CSRF token", "csrfError": true})
		})
	}
}
