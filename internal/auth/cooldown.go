// internal/auth/cooldown.go
//
// Failed-attempt counting and login cooldown.
//
// Context
//   Every wrong password or wrong 2FA code bumps Security.LoginAttempts.
//   When the count reaches the `max-login-attempts` admin setting the
//   account enters a cooldown of `login-cooldown-time` minutes and the
//   counter starts over.  While cooling down, login answers 403 without
//   looking at the password.
//
// Notes
//   •  The functions mutate the Security block; the caller persists it.
//   •  A max of zero or less disables the lock.
//
//------------------------------------------------------------------------------

package auth

import (
	"crypto/subtle"
	"time"

	"github.com/yanizio/beacon/internal/user"
)

// Policy holds the two admin limits.
type Policy struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// UnderCooldown reports whether sec is still locked at now.  An expired
// cooldown is cleared in place.
func UnderCooldown(sec *user.Security, p Policy, now time.Time) bool {
	if !sec.CoolDown {
		return false
	}
	if sec.CoolDownStarted != nil && now.Before(sec.CoolDownStarted.Add(p.Cooldown)) {
		return true
	}
	sec.CoolDown = false
	sec.CoolDownStarted = nil
	sec.LoginAttempts = 0
	return false
}

// RegisterFailure counts one failed attempt and starts a cooldown when the
// limit is reached.  It reports whether the cooldown started.
func RegisterFailure(sec *user.Security, p Policy, now time.Time) bool {
	sec.LoginAttempts++
	if p.MaxAttempts <= 0 || sec.LoginAttempts < p.MaxAttempts {
		return false
	}
	started := now.UTC()
	sec.CoolDown = true
	sec.CoolDownStarted = &started
	sec.LoginAttempts = 0
	return true
}

// ClearAttempts resets the counters after a successful login.
func ClearAttempts(sec *user.Security) {
	sec.LoginAttempts = 0
	sec.CoolDown = false
	sec.CoolDownStarted = nil
}

// TwoFactorLifetime is how long an emailed code stays valid.
const TwoFactorLifetime = 15 * time.Minute

// Two-factor modes of the `use-two-factor-authentication` admin setting.
const (
	TwoFactorDisabled      = "disabled"
	TwoFactorEnabled       = "enabled"
	TwoFactorEnabledAlways = "enabled_always"
)

// TwoFactorRequired decides whether a login needs an emailed code.  Codes
// travel by email, so the step is skipped when mail cannot reach the user.
func TwoFactorRequired(mode string, userOptIn, mailReady bool) bool {
	if !mailReady {
		return false
	}
	switch mode {
	case TwoFactorEnabledAlways:
		return true
	case TwoFactorEnabled:
		return userOptIn
	}
	return false
}

// CheckTwoFactor reports whether code matches the pending challenge at now.
func CheckTwoFactor(tf *user.TwoFactor, code string, now time.Time) bool {
	if tf == nil || tf.NextCode == "" || code == "" {
		return false
	}
	match := subtle.ConstantTimeCompare([]byte(tf.NextCode), []byte(code)) == 1
	return match && now.Before(tf.Expires)
}
