// internal/session/manager.go
//
// Session middleware.
//
/*
Context
--------
Manager sits right after request logging in the chi stack.  For each
request it:

  1. Reads the signed cookie and resolves the session ID through the codec.
  2. Loads the Session from the Store, or starts a blank anonymous one.
  3. Attaches the Session to the request context.
  4. Persists the Session and refreshes the cookie just before the first
     byte of the response is written (rolling expiry).  The cookie outlives
     the browser session only for remember-me logins.
  5. When the handler renewed the ID (every login does), deletes the record
     stored under the old ID.

Untouched anonymous sessions are never stored, so crawlers and health
checks do not fill Redis.

Notes
-----
  • Store errors are logged and treated as “no session”.
  • Oxford commas, two spaces after periods.
*/
package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager ties a Store and a CookieCodec to HTTP requests.
type Manager struct {
	store  Store
	codec  *CookieCodec
	name   string
	maxAge time.Duration
	secure bool
}

// NewManager builds a Manager.  cookieName defaults to “beacon_sess”.
func NewManager(store Store, codec *CookieCodec, cookieName string, maxAge time.Duration, secure bool) *Manager {
	if cookieName == "" {
		cookieName = "beacon_sess"
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Manager{store: store, codec: codec, name: cookieName, maxAge: maxAge, secure: secure}
}

// Middleware attaches the current Session to every request.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, stored := m.load(r)
		cw := &commitWriter{ResponseWriter: w}
		cw.commit = func() { m.commit(r.Context(), w, s, stored) }

		next.ServeHTTP(cw, r.WithContext(WithSession(r.Context(), s)))
		cw.flush()
	})
}

// load resolves the cookie to a Session.  The bool is true when the session
// already exists in the store.
func (m *Manager) load(r *http.Request) (*Session, bool) {
	c, err := r.Cookie(m.name)
	if err == nil && c.Value != "" {
		if id, err := m.codec.Decode(c.Value); err == nil {
			s, err := m.store.Load(r.Context(), id)
			if err == nil {
				return s, true
			}
			if !errors.Is(err, ErrNotFound) {
				zap.S().Errorw("session load failed", "err", err)
			}
		}
	}
	return &Session{ID: uuid.NewString()}, false
}

func (m *Manager) commit(ctx context.Context, w http.ResponseWriter, s *Session, stored bool) {
	if !stored && !s.Dirty() {
		return
	}
	if err := m.store.Save(ctx, s, m.maxAge); err != nil {
		zap.S().Errorw("session save failed", "err", err)
		return
	}
	if stored && s.prevID != "" && s.prevID != s.ID {
		if err := m.store.Delete(ctx, s.prevID); err != nil && !errors.Is(err, ErrNotFound) {
			zap.S().Errorw("old session delete failed", "err", err)
		}
	}
	tok, err := m.codec.Encode(s.ID, m.maxAge)
	if err != nil {
		zap.S().Errorw("session cookie sign failed", "err", err)
		return
	}
	c := &http.Cookie{
		Name:     m.name,
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
	// Without remember-me the cookie ends with the browser session.
	if s.RememberMe {
		c.MaxAge = int(m.maxAge.Seconds())
	}
	http.SetCookie(w, c)
}

/*──────────────────────────── writer hook ───────────────────────────────────*/

// commitWriter runs commit once, right before headers are sent.
type commitWriter struct {
	http.ResponseWriter
	commit func()
	done   bool
}

func (c *commitWriter) flush() {
	if c.done {
		return
	}
	c.done = true
	c.commit()
}

func (c *commitWriter) WriteHeader(code int) {
	c.flush()
	c.ResponseWriter.WriteHeader(code)
}

func (c *commitWriter) Write(b []byte) (int, error) {
	c.flush()
	return c.ResponseWriter.Write(b)
}
