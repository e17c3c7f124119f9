// internal/session/session.go
//
// Beacon – per-browser session state.
//
// Context
//   Every request carries one Session, anonymous or logged in.  The struct is
//   what the access checker, form engine, and settings service read to decide
//   who is asking.  It is serialised as JSON into the backing Store (Redis in
//   production, in-memory for tests and single-node development) and only its
//   random ID travels to the browser, wrapped in a signed cookie.
//
// Notes
//   •  JSON keys match the payload the browser client already understands
//      (`_id`, `userLevel`, `loggedIn`, `verified`).
//   •  CSRFSecret is “<unix-millis>-<random>” so the mint time can be read
//      back without a second field.
//   •  Login issues a fresh ID.  An ID the browser held while anonymous is
//      never the ID of a logged-in session; the manager deletes the old
//      record when it commits.
//   •  Two spaces after periods, Oxford commas.
//
//------------------------------------------------------------------------------

package session

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by a Store when the session ID is unknown or expired.
var ErrNotFound = errors.New("session not found")

// Session is the server-side state bound to one browser cookie.
type Session struct {
	ID            string   `json:"-"`
	UserID        string   `json:"_id,omitempty"`
	Username      string   `json:"username,omitempty"`
	UserLevel     int      `json:"userLevel"`
	LoggedIn      bool     `json:"loggedIn"`
	Verified      bool     `json:"verified"`
	Groups        []string `json:"groups,omitempty"`
	BrowserID     string   `json:"browserId,omitempty"`
	CSRFSecret    string   `json:"csrfSecret,omitempty"`
	RememberMe    bool     `json:"rememberMe,omitempty"`
	TwoFactorUser string   `json:"twoFactorUser,omitempty"` // username awaiting a 2FA code

	dirty  bool
	prevID string // ID replaced by Renew during this request
}

// IsLoggedIn reports whether s exists and is authenticated.  A nil Session is
// treated as anonymous.
func (s *Session) IsLoggedIn() bool {
	return s != nil && s.LoggedIn
}

// Level returns the privilege level used for comparisons.  Anonymous
// sessions always rank 0.
func (s *Session) Level() int {
	if !s.IsLoggedIn() {
		return 0
	}
	return s.UserLevel
}

// Login promotes s to an authenticated session under a fresh ID.
func (s *Session) Login(userID, username string, level int, verified bool) {
	s.Renew()
	s.UserID = userID
	s.Username = username
	s.UserLevel = level
	s.LoggedIn = true
	s.Verified = verified
	s.TwoFactorUser = ""
	s.dirty = true
}

// Logout clears identity fields but keeps the browser binding.
func (s *Session) Logout() {
	browser, prev := s.BrowserID, s.prevID
	*s = Session{ID: s.ID, BrowserID: browser, dirty: true, prevID: prev}
}

// Renew moves s to a new random ID.  The first ID replaced during a request
// is kept so the manager can delete its stored record.
func (s *Session) Renew() {
	if s.prevID == "" {
		s.prevID = s.ID
	}
	s.ID = uuid.NewString()
	s.dirty = true
}

// Touch marks the session as modified so the manager persists it.
func (s *Session) Touch() { s.dirty = true }

// Dirty reports whether the session changed during the request.
func (s *Session) Dirty() bool { return s.dirty }

// CSRFMintedAt extracts the mint time from CSRFSecret.  The zero time is
// returned when the secret is missing or malformed.
func (s *Session) CSRFMintedAt() time.Time {
	if s == nil || s.CSRFSecret == "" {
		return time.Time{}
	}
	ms, _, ok := strings.Cut(s.CSRFSecret, "-")
	if !ok {
		return time.Time{}
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(n)
}
