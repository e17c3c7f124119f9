// internal/component/deps.go
//
// Shared services handed to every component.
//
// Context
//   Components never build their own stores or services.  cmd/web wires one
//   Deps value (SQL stores in production, in-memory stores in tests) and
//   passes it to Init.  Fields a component does not need may be left nil.

package component

import (
	"context"
	"database/sql"
	"time"

	"github.com/yanizio/beacon/internal/auth"
	"github.com/yanizio/beacon/internal/exposure"
	"github.com/yanizio/beacon/internal/form"
	"github.com/yanizio/beacon/internal/settings"
	"github.com/yanizio/beacon/internal/user"
)

// Mailer queues template mail.  *message.Service satisfies it.
type Mailer interface {
	SendByID(ctx context.Context, emailID string, params map[string]string) error
}

// Deps is the service bundle.
type Deps struct {
	Env           string // production, development, or test
	ClientBaseURL string // prefix for links sent by email

	DB            *sql.DB // group lookups; nil disables groups
	Engine        *form.Engine
	Forms         form.Store
	Settings      *settings.Service
	SettingsStore settings.Store
	Crypter       *settings.Crypter
	Users         user.Store
	Exposure      *exposure.Resolver
	Mail          Mailer
	Tokens        auth.Tokens
	Now           func() time.Time
}

// Clock returns Now or time.Now.
func (d Deps) Clock() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// AdminInt reads an integer admin setting, or fallback when it is unset,
// unreadable, or not positive.
func (d Deps) AdminInt(ctx context.Context, id string, fallback int) int {
	if d.Settings == nil {
		return fallback
	}
	vals, err := d.Settings.AdminValues(ctx)
	if err != nil {
		return fallback
	}
	if n := vals.Int(id); n > 0 {
		return n
	}
	return fallback
}
