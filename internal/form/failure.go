package form

import (
	"fmt"
	"net/http"

	"github.com/yanizio/beacon/internal/reply"
)

// Failure is a rejected gate: the status and JSON body the caller should send
// unchanged.  A nil *Failure means the request may proceed.
type Failure struct {
	Code int
	Obj  reply.Obj
}

func (f *Failure) Error() string { return fmt.Sprintf("form gate: %d %v", f.Code, f.Obj["msg"]) }

// Write sends f to w.
func (f *Failure) Write(w http.ResponseWriter) { reply.JSON(w, f.Code, f.Obj) }

func fail(code int, obj reply.Obj) *Failure { return &Failure{Code: code, Obj: obj} }

func unauthenticated() *Failure {
	return fail(http.StatusUnauthorized, reply.Obj{
		"msg":      "User not authenticated or session has expired",
		"_sess":    false,
		"loggedIn": false,
	})
}

func unauthorised() *Failure {
	return fail(http.StatusUnauthorized, reply.Obj{"unauthorised": true, "msg": "Unauthorised"})
}

func internal() *Failure {
	return fail(http.StatusInternalServerError, reply.Obj{"msg": "Internal server error.", "internalError": true})
}
