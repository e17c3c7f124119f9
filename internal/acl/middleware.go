// internal/acl/middleware.go
//
// Chi middleware for route groups that only make sense for a logged-in
// session (own profile, own exposure).  Runs before the form gate, so an
// anonymous caller never reaches a handler that expects an account.

package acl

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/yanizio/beacon/internal/reply"
	"github.com/yanizio/beacon/internal/session"
)

// RequireLogin rejects anonymous sessions with the standard 401 body.
func RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !session.FromContext(r.Context()).IsLoggedIn() {
			zap.S().Infow("anonymous request to protected route", "path", r.URL.Path)
			reply.Unauthenticated(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
