// internal/form/engine.go
//
// Beacon – Forms subsystem: the request gate.
//
// Context
//   Every controller route names the form record that governs it.  Before the
//   handler runs, the engine loads that record, checks the caller against its
//   use rights, and, for methods that carry data, validates the payload
//   against the record’s schema.  The outcome is either nil (proceed) or a
//   *Failure holding the exact status and body to send.
//
// Workflow
//   GetAndValidateForm
//     1.  Load the record.  Unknown → 404 formNotFoundError.
//     2.  GET            → ValidatePrivileges.
//         POST, PUT      → ValidateFormData (privileges, keys, and fields).
//         anything else  → nil.
//
//   ValidatePrivileges
//     •  useRightsLevel > 0 and anonymous → 401 unauthenticated body.
//     •  acl.CheckAccess false            → 401 unauthorised body.
//
//   ValidateFormData
//     •  Missing record or schema         → 404 “Could not find form (<id>).”
//     •  Privileges as above.
//     •  Unless singleEdit, the key set must pass ValidateKeys → 400.
//     •  Every field error is collected   → 400 with `errors`.
//
// Notes
//   Store or settings failures become a logged 500.  Expected rejections
//   never surface as Go errors.
//
//------------------------------------------------------------------------------

package form

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/yanizio/beacon/internal/acl"
	"github.com/yanizio/beacon/internal/metrics"
	"github.com/yanizio/beacon/internal/reply"
	"github.com/yanizio/beacon/internal/session"
)

// SettingsSource resolves the cached setting snapshot for a session.
type SettingsSource interface {
	Toggles(ctx context.Context, s *session.Session) (acl.Toggles, error)
}

// Request is what the gate needs from an HTTP request.
type Request struct {
	Session *session.Session
	Payload Payload
}

// Engine gates requests on form records.
type Engine struct {
	forms    Store
	settings SettingsSource
}

// NewEngine wires the engine to its collaborators.
func NewEngine(forms Store, settings SettingsSource) *Engine {
	if forms == nil || settings == nil {
		panic("form.NewEngine: nil dependency")
	}
	return &Engine{forms: forms, settings: settings}
}

// Forms exposes the underlying store to controllers that need the record.
func (e *Engine) Forms() Store { return e.forms }

// GetAndValidateForm is the single entry point used by controllers.
func (e *Engine) GetAndValidateForm(ctx context.Context, formID, method string, req Request) *Failure {
	f, err := e.forms.FindByFormID(ctx, formID)
	if errors.Is(err, ErrNotFound) {
		zap.S().Infow("form not found", "form", formID)
		return e.outcome(formID, "not_found", fail(http.StatusNotFound, reply.Obj{
			"msg":               "Form not found",
			"formNotFoundError": true,
			"loggedIn":          req.Session.IsLoggedIn(),
		}))
	}
	if err != nil {
		zap.S().Errorw("form lookup failed", "form", formID, "err", err)
		return e.outcome(formID, "error", internal())
	}

	var res *Failure
	switch method {
	case http.MethodGet:
		res = e.ValidatePrivileges(ctx, f, req)
	case http.MethodPost, http.MethodPut:
		res = e.ValidateFormData(ctx, f, req)
	}
	return e.outcome(formID, "", res)
}

// ValidatePrivileges checks the session against f’s use rights.
func (e *Engine) ValidatePrivileges(ctx context.Context, f *Form, req Request) *Failure {
	if f.UseRightsLevel > 0 && !req.Session.IsLoggedIn() {
		zap.S().Infow("anonymous request to protected form", "form", f.FormID)
		return unauthenticated()
	}
	toggles, err := e.settings.Toggles(ctx, req.Session)
	if err != nil {
		zap.S().Errorw("settings lookup failed", "form", f.FormID, "err", err)
		return internal()
	}
	if !acl.CheckAccess(req.Session, f.Rights(), toggles) {
		zap.S().Errorw("access denied", "form", f.FormID, "user", req.Session.Username, "level", req.Session.Level())
		return unauthorised()
	}
	return nil
}

// ValidateFormData runs privileges, the key check, and every field validator.
func (e *Engine) ValidateFormData(ctx context.Context, f *Form, req Request) *Failure {
	if f == nil || f.Schema == nil {
		id := "undefined"
		if req.Payload.Has("id") {
			id = Stringify(req.Payload["id"])
		}
		zap.S().Infow("form has no schema", "id", id)
		return fail(http.StatusNotFound, reply.Obj{"msg": "Could not find form (" + id + ")."})
	}

	if res := e.ValidatePrivileges(ctx, f, req); res != nil {
		return res
	}

	keys := req.Payload.Keys()
	if !f.Schema.SingleEdit && !ValidateKeys(f.Schema, keys) {
		zap.S().Infow("payload missing or incomplete", "form", f.FormID, "keys", keys)
		return fail(http.StatusBadRequest, reply.Obj{"msg": "Bad request. Payload missing or incomplete."})
	}

	errs := make(map[string]string)
	for _, k := range keys {
		if msg := ValidateField(f.Schema, k, req.Payload[k]); msg != "" {
			errs[k] = msg
		}
	}
	if len(errs) > 0 {
		zap.S().Infow("payload validation errors", "form", f.FormID, "errors", errs)
		return fail(http.StatusBadRequest, reply.Obj{"msg": "Bad request. Validation errors.", "errors": errs})
	}
	return nil
}

// ValidateField returns the message for one payload key, or "".  The key
// "id" and keys without a matching field are accepted.
func ValidateField(s *Schema, key string, value any) string {
	if key == "id" || s == nil {
		return ""
	}
	fd := s.FieldByID(key)
	if fd == nil {
		return ""
	}
	return Validate(fd, value)
}

// ValidateKeys reports whether keys is a plausible payload for s: at least
// two keys, and every submit field present.
func ValidateKeys(s *Schema, keys []string) bool {
	if len(keys) < 2 {
		return false
	}
	have := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		have[k] = struct{}{}
	}
	for _, sf := range s.SubmitFields {
		if _, ok := have[sf]; !ok {
			return false
		}
	}
	return true
}

// outcome records the gate decision.  An empty label is derived from res.
func (e *Engine) outcome(formID, label string, res *Failure) *Failure {
	if label == "" {
		switch {
		case res == nil:
			label = "ok"
		case res.Code == http.StatusBadRequest:
			label = "invalid"
		case res.Code == http.StatusNotFound:
			label = "not_found"
		case res.Obj["unauthorised"] == true:
			label = "unauthorised"
		case res.Code == http.StatusUnauthorized:
			label = "unauthenticated"
		default:
			label = "error"
		}
	}
	metrics.FormGateTotal.WithLabelValues(formID, label).Inc()
	return res
}

/*──────────────────────────── HTTP glue ────────────────────────────────────*/

// Check gates r on formID and writes the failure when there is one.  It
// returns true when the handler may continue.
func (e *Engine) Check(w http.ResponseWriter, r *http.Request, formID string) bool {
	return e.CheckAs(w, r, formID, r.Method)
}

// CheckAs is Check with an explicit method, for routes whose gate differs
// from the HTTP verb (for example a POST that only needs read rights).
func (e *Engine) CheckAs(w http.ResponseWriter, r *http.Request, formID, method string) bool {
	req := Request{Session: session.FromContext(r.Context()), Payload: PayloadFrom(r.Context())}
	if res := e.GetAndValidateForm(r.Context(), formID, method, req); res != nil {
		res.Write(w)
		return false
	}
	return true
}

// Gate is Check as chi middleware.
func (e *Engine) Gate(formID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if e.Check(w, r, formID) {
				next.ServeHTTP(w, r)
			}
		})
	}
}
