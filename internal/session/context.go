// internal/session/context.go
//
// Request-context helpers for the current Session.
//
// Usage
// -----
//     // Manager.Middleware attaches the session.
//     ctx = session.WithSession(ctx, s)
//
//     // Handlers and the form engine read it back.
//     s := session.FromContext(ctx)   // never nil
//
// Notes
// -----
// • FromContext returns a fresh anonymous session when none is attached so
//   callers never need a nil check.
// • Oxford commas, two spaces after periods.

package session

import "context"

// ctxKey is unexported to avoid context-key collisions.
type ctxKey struct{}

// WithSession returns a new context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext extracts the Session from ctx.
func FromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(ctxKey{}).(*Session); ok && s != nil {
		return s
	}
	return &Session{}
}
