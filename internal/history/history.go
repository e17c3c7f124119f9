// internal/history/history.go
//
// Bounded audit trails stored inside records.
//
// Context
//   Forms, admin settings, and users keep a short `edited` list of who changed
//   them and when.  Users also keep a list of recent logins.  Both lists are
//   capped by admin settings (`max-edited-logs`, `max-login-logs`) and drop
//   their oldest entries first.  The lists live in JSON columns, so Log
//   implements sql.Scanner and driver.Valuer.
//
//------------------------------------------------------------------------------

package history

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Entry records one edit.
type Entry struct {
	By   string    `json:"by"   yaml:"by"`
	Date time.Time `json:"date" yaml:"date"`
}

// Created records who made a record.  By is empty for preset data and
// public sign-ups.
type Created struct {
	By          string    `json:"by,omitempty"`
	Date        time.Time `json:"date"`
	AutoCreated bool      `json:"autoCreated,omitempty"`
	PublicForm  bool      `json:"publicForm,omitempty"`
}

// Log is an ordered edit trail, oldest first.
type Log []Entry

// Append returns old plus item, trimmed from the front so the result holds at
// most max entries.  A max below 1 keeps only the new item.  old is never
// mutated.
func Append[T any](old []T, item T, max int) []T {
	if max < 1 {
		max = 1
	}
	start := 0
	if len(old) >= max {
		start = len(old) - max + 1
	}
	out := make([]T, 0, len(old)-start+1)
	out = append(out, old[start:]...)
	return append(out, item)
}

// Edited appends an edit by editorID stamped now.
func Edited(old Log, editorID string, max int) Log {
	return Append(old, Entry{By: editorID, Date: time.Now().UTC()}, max)
}

/*──────────────────────────── sql plumbing ─────────────────────────────────*/

// Value implements driver.Valuer.
func (l Log) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *Log) Scan(src any) error {
	return ScanJSON(src, l)
}

// Value implements driver.Valuer.
func (c Created) Value() (driver.Value, error) { return json.Marshal(c) }

// Scan implements sql.Scanner.
func (c *Created) Scan(src any) error { return ScanJSON(src, c) }

// ScanJSON decodes a JSON column into dst.  NULL leaves dst untouched.
func ScanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("history: cannot scan %T into JSON", src)
	}
}
