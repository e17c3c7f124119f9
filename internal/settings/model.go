// internal/settings/model.go
//
// Beacon – settings records and typed values.
//
// Context
//   Settings are stored as strings with a declared type, the way an operator
//   edits them in the admin form.  ParseValue turns the stored string into
//   the Go value handlers compare against: integers and floats are parsed
//   leniently (leading digits win, garbage is nil), booleans are true only
//   for the literal "true", and anything else stays a string.
//
//   AdminSetting rows are global.  UserSetting rows belong to one user and
//   may be switched off by an admin setting named in EnabledID.
//
//------------------------------------------------------------------------------

package settings

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/yanizio/beacon/internal/history"
)

// ErrNotFound is returned when a setting row does not exist.
var ErrNotFound = errors.New("setting not found")

// Value types.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeFloat   = "float"
	TypeBoolean = "boolean"
)

// Well-known admin setting ids.
const (
	PublicUserRegistration = "public-user-registration"
	UserLevelToRegister    = "user-level-required-to-register"
	UseEmailVerification   = "use-email-verification"
	EmailSending           = "email-sending"
	TableSorting           = "table-sorting-setting"
	UsersCanSetExposure    = "users-can-set-exposure-levels"
	UseUsersExposure       = "use-users-exposure-levels"
	ForgotPasswordFeature  = "forgot-password-feature"
	MaxEditedLogs          = "max-edited-logs"
	MaxLoginLogs           = "max-login-logs"
	MaxLoginAttempts       = "max-login-attempts"
	LoginCooldownTime      = "login-cooldown-time"
	NewPassLinkLifetime    = "new-pass-link-lifetime"
	UseTwoFactorAuth       = "use-two-factor-authentication"
	EnableUserTwoFactor    = "enable-user-2fa-setting"
	EmailHost              = "email-host"
	EmailUsername          = "email-username"
	EmailPassword          = "email-password"
)

// Values of UseTwoFactorAuth.
const (
	TwoFactorDisabled      = "disabled"
	TwoFactorEnabled       = "enabled"
	TwoFactorEnabledAlways = "enabled_always"
)

// Forms that define the settings catalogue.
const (
	UserSettingsFormID  = "user-settings-form"
	AdminSettingsFormID = "admin-settings-form"
)

// AdminSetting is one global setting row.
type AdminSetting struct {
	ID               int64           `db:"id"                 json:"id"`
	SettingID        string          `db:"setting_id"         json:"settingId"`
	Value            string          `db:"value"              json:"value"`
	DefaultValue     string          `db:"default_value"      json:"defaultValue"`
	Type             string          `db:"type"               json:"type"`
	Password         bool            `db:"password"           json:"password,omitempty"`
	SettingReadRight int             `db:"setting_read_right" json:"settingReadRight"`
	Created          history.Created `db:"created"            json:"created"`
	Edited           history.Log     `db:"edited"             json:"edited"`
}

// UserSetting is one per-user setting row.
type UserSetting struct {
	ID           int64  `db:"id"            json:"id"`
	SettingID    string `db:"setting_id"    json:"settingId"`
	UserID       string `db:"user_id"       json:"userId"`
	Value        string `db:"value"         json:"value"`
	DefaultValue string `db:"default_value" json:"defaultValue"`
	Type         string `db:"type"          json:"type"`
	EnabledID    string `db:"enabled_id"    json:"enabledId,omitempty"`
}

// Parsed returns the typed value of s.
func (s *AdminSetting) Parsed() any { return ParseValue(s.Type, s.Value) }

// Parsed returns the typed value of s.
func (s *UserSetting) Parsed() any { return ParseValue(s.Type, s.Value) }

var (
	leadingInt   = regexp.MustCompile(`^[+-]?\d+`)
	leadingFloat = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
)

// ParseValue converts a stored string by type.  Numbers that do not parse
// yield nil.
func ParseValue(typ, raw string) any {
	switch typ {
	case TypeInteger:
		m := leadingInt.FindString(strings.TrimSpace(raw))
		n, err := strconv.Atoi(m)
		if err != nil {
			return nil
		}
		return n
	case TypeFloat:
		m := leadingFloat.FindString(strings.TrimSpace(raw))
		f, err := strconv.ParseFloat(m, 64)
		if err != nil || math.IsNaN(f) {
			return nil
		}
		return f
	case TypeBoolean:
		return raw == "true"
	default:
		return raw
	}
}

// Values is a resolved settings map.  It satisfies acl.Toggles.
type Values map[string]any

// Bool reports whether id is the boolean true.
func (v Values) Bool(id string) bool {
	b, _ := v[id].(bool)
	return b
}

// Int returns id as an int, or 0.
func (v Values) Int(id string) int {
	switch x := v[id].(type) {
	case int:
		return x
	case float64:
		return int(x)
	default:
		return 0
	}
}

// String returns id as a string, or "".
func (v Values) String(id string) string {
	s, _ := v[id].(string)
	return s
}

func (v Values) clone() Values {
	out := make(Values, len(v))
	for k, x := range v {
		out[k] = x
	}
	return out
}
