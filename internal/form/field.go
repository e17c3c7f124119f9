// internal/form/field.go
//
// Beacon – Forms subsystem: per-field validators.
//
// Context
//   A submitted value is checked against the rules of the field it targets.
//   The field kind is a closed set, decoded once from the record’s `type`
//   string, and Validate switches over it.  Validators are pure: no I/O,
//   no session, no settings.
//
// Rules
//   •  textinput, textarea: falsy values become "", then the value is trimmed.
//      Order: required, minLength (non-empty only), maxLength, email
//      (textinput only, non-empty only), regex (non-empty only).
//   •  checkbox: required fails on any falsy value.
//   •  dropdown: value is stringified and trimmed.  Required fails on "".
//      With options the value must match one option; otherwise with both
//      minValue and maxValue it must parse into the closed range; otherwise
//      the field is misconfigured.
//   •  divider, subheading, subdescription: always valid.
//
// Notes
//   Lengths count characters, not bytes.
//
//------------------------------------------------------------------------------

package form

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
)

// -----------------------------------------------------------------------------
// Field kinds
// -----------------------------------------------------------------------------

// FieldKind is the closed set of field types.
type FieldKind uint8

const (
	FieldUnknown FieldKind = iota
	FieldTextInput
	FieldCheckbox
	FieldDropdown
	FieldTextArea
	FieldDivider
	FieldSubheading
	FieldSubdescription
)

var kindNames = [...]string{
	FieldUnknown:        "unknown",
	FieldTextInput:      "textinput",
	FieldCheckbox:       "checkbox",
	FieldDropdown:       "dropdown",
	FieldTextArea:       "textarea",
	FieldDivider:        "divider",
	FieldSubheading:     "subheading",
	FieldSubdescription: "subdescription",
}

// ParseFieldKind maps a type string to its kind.  Unknown strings map to
// FieldUnknown so a bad record fails validation instead of loading.
func ParseFieldKind(s string) FieldKind {
	for k, name := range kindNames {
		if k != int(FieldUnknown) && name == s {
			return FieldKind(k)
		}
	}
	return FieldUnknown
}

func (k FieldKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[FieldUnknown]
}

// Structural reports whether k carries no data.
func (k FieldKind) Structural() bool {
	return k == FieldDivider || k == FieldSubheading || k == FieldSubdescription
}

func (k FieldKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *FieldKind) UnmarshalText(b []byte) error {
	*k = ParseFieldKind(string(b))
	return nil
}

// -----------------------------------------------------------------------------
// Messages
// -----------------------------------------------------------------------------

const (
	MsgRequired     = "Required"
	MsgEmail        = "Email not valid"
	MsgWrongFormat  = "Wrong format"
	MsgUnknownValue = "Unknown value"
	MsgOutOfRange   = "Value is out of validation range."
	MsgNoValidation = "No validation provided. Needs to have options or minValue and maxValue defined."
	MsgTypeNotFound = "Field type not found"
	msgTooShortFmt  = "Value is too short (minimum: %d chars)"
	msgTooLongFmt   = "Value is too long (maximum: %d chars)"
)

// emailRx requires a local part, a domain, and a top-level label of at least
// two characters.
var emailRx = regexp.MustCompile(`^[^\s@]+@[^\s@.]+(\.[^\s@.]+)*\.[^\s@.]{2,}$`)

// ValidEmail reports whether s looks like a deliverable address.
func ValidEmail(s string) bool { return emailRx.MatchString(s) }

// -----------------------------------------------------------------------------
// Dispatch
// -----------------------------------------------------------------------------

// Validate checks value against f and returns a user-facing message, or ""
// when the value is acceptable.
func Validate(f *Field, value any) string {
	switch f.Type {
	case FieldTextInput:
		return validateText(f, value, true)
	case FieldTextArea:
		return validateText(f, value, false)
	case FieldCheckbox:
		return validateCheckbox(f, value)
	case FieldDropdown:
		return validateDropdown(f, value)
	case FieldDivider, FieldSubheading, FieldSubdescription:
		return ""
	default:
		return MsgTypeNotFound
	}
}

func validateText(f *Field, value any, allowEmail bool) string {
	v := ""
	if Truthy(value) {
		v = strings.TrimSpace(Stringify(value))
	}
	n := utf8.RuneCountInString(v)

	if f.Required && v == "" {
		return MsgRequired
	}
	if f.MinLength > 0 && v != "" && n < f.MinLength {
		return fmt.Sprintf(msgTooShortFmt, f.MinLength)
	}
	if f.MaxLength > 0 && n > f.MaxLength {
		return fmt.Sprintf(msgTooLongFmt, f.MaxLength)
	}
	if allowEmail && f.Email && v != "" && !ValidEmail(v) {
		return MsgEmail
	}
	if v != "" && f.Regex != "" {
		rx, err := compileRegex(f.Regex)
		if err != nil {
			zap.S().Errorw("field regex does not compile", "field", f.ID, "regex", f.Regex, "err", err)
			return MsgWrongFormat
		}
		if !rx.MatchString(v) {
			return MsgWrongFormat
		}
	}
	return ""
}

func validateCheckbox(f *Field, value any) string {
	if f.Required && !Truthy(value) {
		return MsgRequired
	}
	return ""
}

func validateDropdown(f *Field, value any) string {
	v := strings.TrimSpace(Stringify(value))
	if f.Required && v == "" {
		return MsgRequired
	}

	switch {
	case f.Options != nil:
		for _, o := range f.Options {
			if strings.TrimSpace(Stringify(o.Value)) == v {
				return ""
			}
		}
		zap.S().Infow("dropdown value is not one of the options", "field", f.ID, "value", v)
		return MsgUnknownValue

	case f.MinValue != nil && f.MaxValue != nil:
		num, ok := ToNumber(v)
		if !ok || num < *f.MinValue || num > *f.MaxValue {
			zap.S().Infow("dropdown value out of range", "field", f.ID, "value", v)
			return MsgOutOfRange
		}
		return ""

	default:
		zap.S().Errorw("dropdown has neither options nor a value range", "field", f.ID)
		return MsgNoValidation
	}
}

/*──────────────────────────── regex cache ──────────────────────────────────*/

var rxCache sync.Map // pattern → *regexp.Regexp

func compileRegex(p string) (*regexp.Regexp, error) {
	if rx, ok := rxCache.Load(p); ok {
		return rx.(*regexp.Regexp), nil
	}
	rx, err := regexp.Compile(p)
	if err != nil {
		return nil, err
	}
	rxCache.Store(p, rx)
	return rx, nil
}
