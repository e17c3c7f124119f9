// internal/user/user.go
//
// Beacon – user accounts.
//
// Context
//   A User is the account record behind a logged-in session.  Everything the
//   login flow and the account routes mutate (attempt counters, cooldowns,
//   login logs, reset links, email verification, 2FA codes) lives in the
//   nested Security block, stored as one JSON column.  Security never leaves
//   the server: Public() renders the client view without it.
//
// Notes
//   •  Email is the current address.  While a change awaits verification the
//      previous verified address is kept in Security.VerifyEmail.OldEmail and
//      mail goes there (ContactEmail).
//   •  Exposure holds the user’s own visibility choices, 0 to 2 per field.
//
//------------------------------------------------------------------------------

package user

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/yanizio/beacon/internal/history"
)

// ErrNotFound is returned when no user matches.
var ErrNotFound = errors.New("user not found")

// ErrDuplicate is returned by Create when the username is already taken.
var ErrDuplicate = errors.New("user: duplicate username")

// SuperAdminLevel is the highest level.  It is given to the first account.
const SuperAdminLevel = 9

// User is one account.
type User struct {
	ID           string          `db:"id"            json:"id"`
	Username     string          `db:"username"      json:"username"`
	Email        string          `db:"email"         json:"email"`
	Name         string          `db:"name"          json:"name"`
	UserLevel    int             `db:"user_level"    json:"userLevel"`
	PasswordHash string          `db:"password_hash" json:"-"`
	Exposure     Exposure        `db:"exposure"      json:"exposure"`
	Security     Security        `db:"security"      json:"-"`
	Created      history.Created `db:"created"       json:"created"`
	Edited       history.Log     `db:"edited"        json:"edited"`
}

// Exposure is the user’s own field visibility choices.
type Exposure map[string]int

// Security is server-only account state.
type Security struct {
	LoginAttempts   int          `json:"loginAttempts"`
	CoolDown        bool         `json:"coolDown"`
	CoolDownStarted *time.Time   `json:"coolDownStarted,omitempty"`
	LastLogins      []LoginEntry `json:"lastLogins"`
	LastAttempts    []LoginEntry `json:"lastAttempts"`
	NewPassLink     *NewPassLink `json:"newPassLink,omitempty"`
	VerifyEmail     VerifyEmail  `json:"verifyEmail"`
	TwoFactor       *TwoFactor   `json:"twoFactor,omitempty"`
}

// LoginEntry describes one login or failed attempt.
type LoginEntry struct {
	Date    time.Time `json:"date"`
	IP      string    `json:"ip,omitempty"`
	Browser string    `json:"browser,omitempty"`
	OS      string    `json:"os,omitempty"`
	Device  string    `json:"device,omitempty"`
	Country string    `json:"country,omitempty"`
}

// NewPassLink is a pending password reset.
type NewPassLink struct {
	Token   string    `json:"token"`
	Sent    time.Time `json:"sent"`
	Expires time.Time `json:"expires"`
}

// VerifyEmail tracks address verification.
type VerifyEmail struct {
	Token    string `json:"token,omitempty"`
	OldEmail string `json:"oldEmail,omitempty"`
	Verified bool   `json:"verified"`
}

// TwoFactor is a pending second-factor code.
type TwoFactor struct {
	NextCode string    `json:"nextCode"`
	Expires  time.Time `json:"expires"`
}

// Verified reports whether the current email is verified.
func (u *User) Verified() bool { return u.Security.VerifyEmail.Verified }

// ContactEmail is where mail should go: the current address once verified,
// otherwise the last verified one.
func (u *User) ContactEmail() string {
	if u.Security.VerifyEmail.Verified {
		return u.Email
	}
	return u.Security.VerifyEmail.OldEmail
}

// Public renders u as a loose document for the client and for exposure
// redaction.  Security and the password hash are never included.
func (u *User) Public() map[string]any {
	b, err := json.Marshal(u)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	m["verified"] = u.Verified()
	return m
}

// AppendLoginLog adds e to logs, keeping at most max entries.
func AppendLoginLog(logs []LoginEntry, e LoginEntry, max int) []LoginEntry {
	return history.Append(logs, e, max)
}

// EmailTaken reports whether email belongs to an account other than userID,
// as its current or pending-old address.
func EmailTaken(ctx context.Context, s Store, email, userID string) (bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return false, nil
	}
	for _, find := range []func(context.Context, string) (*User, error){s.FindByEmail, s.FindByOldEmail} {
		u, err := find(ctx, email)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		if u.ID != userID {
			return true, nil
		}
	}
	return false, nil
}

/*──────────────────────────── sql plumbing ─────────────────────────────────*/

func (e Exposure) Value() (driver.Value, error) {
	if e == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(e)
}

func (e *Exposure) Scan(src any) error { return history.ScanJSON(src, e) }

func (s Security) Value() (driver.Value, error) { return json.Marshal(s) }

func (s *Security) Scan(src any) error { return history.ScanJSON(src, s) }
