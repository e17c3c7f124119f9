// internal/reply/reply.go
//
// JSON response helpers shared by every component.
//
// Context
//   All Beacon API answers are JSON, success or failure.  Handlers call
//   reply.JSON with the status and body, or reply.Internal when an
//   infrastructure error must be hidden from the client.  Encoding errors are
//   logged, never surfaced, because the status line is already on the wire.
//
//------------------------------------------------------------------------------

package reply

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Obj is the loose body shape used by error answers.
type Obj = map[string]any

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Errorw("reply encode failed", "err", err)
	}
}

// OK writes v with 200.
func OK(w http.ResponseWriter, v any) { JSON(w, http.StatusOK, v) }

// Internal logs err with msg and answers a generic 500 body.
func Internal(w http.ResponseWriter, msg string, err error) {
	zap.S().Errorw(msg, "err", err)
	JSON(w, http.StatusInternalServerError, Obj{
		"msg":           "Internal server error.",
		"internalError": true,
	})
}

// Unauthenticated answers the standard 401 for a missing or expired login.
func Unauthenticated(w http.ResponseWriter) {
	JSON(w, http.StatusUnauthorized, Obj{
		"msg":      "User not authenticated or session has expired",
		"_sess":    false,
		"loggedIn": false,
	})
}

// Unauthorised answers the standard 401 for insufficient privilege.
func Unauthorised(w http.ResponseWriter) {
	JSON(w, http.StatusUnauthorized, Obj{
		"unauthorised": true,
		"msg":          "Unauthorised",
	})
}
