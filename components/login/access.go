// components/login/access.go
//
// POST /access – session housekeeping for the browser client.
//
// Context
//   The client calls this route on start-up and before every mutating call.
//   The `from` key selects the action:
//
//     checklogin   report the session and bind the browser id
//     getCSRF      mint a new CSRF secret and return a token for it
//     logout       drop the login, keep the browser binding
//     admin        form ids the session may use and edit
//     ids          access map for a list of {from: "form", id} entries
//
//   getCSRF only answers a browser whose id matches the one bound to the
//   session.  A mismatch is a 409 so the client can restart its session.
//
//   The body is copied into accessRequest and checked with the shared
//   validator before any action runs; a malformed body is a 400.
//
//------------------------------------------------------------------------------

package login

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/yanizio/beacon/internal/acl"
	"github.com/yanizio/beacon/internal/config"
	"github.com/yanizio/beacon/internal/form"
	"github.com/yanizio/beacon/internal/reply"
	"github.com/yanizio/beacon/internal/session"
)

// accessRequest is the /access body.
type accessRequest struct {
	From      string     `validate:"required,oneof=checklogin getCSRF logout admin ids"`
	BrowserID string     `validate:"omitempty,max=128,printascii"`
	IDs       []idLookup `validate:"max=500,dive"`
}

// idLookup is one entry of the `ids` action.  Only `form` entries are
// answered; other sources are ignored.
type idLookup struct {
	From string `validate:"required"`
	ID   string `validate:"required_if=From form,max=200"`
}

func decodeAccess(p form.Payload) accessRequest {
	req := accessRequest{From: p.String("from"), BrowserID: p.String("browserId")}
	entries, _ := p["ids"].([]any)
	for _, e := range entries {
		m, _ := e.(map[string]any)
		req.IDs = append(req.IDs, idLookup{From: form.Stringify(m["from"]), ID: form.Stringify(m["id"])})
	}
	return req
}

func (c *Component) handleAccess(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	req := decodeAccess(form.PayloadFrom(r.Context()))
	if err := config.Validate(req); err != nil {
		zap.S().Infow("bad access request", "from", req.From, "err", err)
		reply.JSON(w, http.StatusBadRequest, reply.Obj{"msg": "Bad request", "badRequest": true, "loggedIn": sess.IsLoggedIn()})
		return
	}

	switch req.From {
	case "checklogin":
		if req.BrowserID != "" && sess.BrowserID == "" {
			sess.BrowserID = req.BrowserID
			sess.Touch()
		}
		reply.OK(w, sessionBody(sess))

	case "getCSRF":
		c.getCSRF(w, sess, req.BrowserID)

	case "logout":
		if sess.IsLoggedIn() {
			zap.S().Infow("user logged out", "username", sess.Username)
		}
		sess.Logout()
		reply.OK(w, reply.Obj{"loggedIn": false})

	case "admin":
		c.adminRights(w, r, sess)

	case "ids":
		c.idAccess(w, r, sess, req.IDs)
	}
}

func (c *Component) getCSRF(w http.ResponseWriter, sess *session.Session, browserID string) {
	if browserID == "" || sess.BrowserID == "" || browserID != sess.BrowserID {
		zap.S().Infow("csrf request with foreign browser id", "session", sess.ID)
		reply.JSON(w, http.StatusConflict, reply.Obj{
			"conflictError": true,
			"errorMsg":      "browserId conflict",
			"loggedIn":      sess.IsLoggedIn(),
		})
		return
	}
	sess.CSRFSecret = form.MintSecret(c.deps.Clock())
	tok, err := form.Token(sess.CSRFSecret)
	if err != nil {
		reply.Internal(w, "csrf token mint failed", err)
		return
	}
	sess.Touch()
	reply.OK(w, reply.Obj{"loggedIn": sess.IsLoggedIn(), "csrfToken": tok})
}

func (c *Component) adminRights(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	use, edit := []string{}, []string{}
	if !sess.IsLoggedIn() {
		reply.OK(w, reply.Obj{"loggedIn": false, "useRights": use, "editorRights": edit})
		return
	}
	toggles, err := c.deps.Settings.Toggles(r.Context(), sess)
	if err != nil {
		reply.Internal(w, "settings lookup failed", err)
		return
	}
	all, err := c.deps.Forms.All(r.Context())
	if err != nil {
		reply.Internal(w, "form listing failed", err)
		return
	}
	for i := range all {
		rights := all[i].Rights()
		if acl.CheckAccess(sess, rights, toggles) {
			use = append(use, all[i].FormID)
		}
		if acl.CanEdit(sess, rights, toggles) {
			edit = append(edit, all[i].FormID)
		}
	}
	body := sessionBody(sess)
	body["useRights"] = use
	body["editorRights"] = edit
	reply.OK(w, body)
}

func (c *Component) idAccess(w http.ResponseWriter, r *http.Request, sess *session.Session, entries []idLookup) {
	toggles, err := c.deps.Settings.Toggles(r.Context(), sess)
	if err != nil {
		reply.Internal(w, "settings lookup failed", err)
		return
	}
	access := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.From != "form" {
			continue
		}
		f, err := c.deps.Forms.FindByFormID(r.Context(), e.ID)
		if err != nil {
			access[e.ID] = false
			continue
		}
		access[e.ID] = acl.CheckAccess(sess, f.Rights(), toggles)
	}
	body := sessionBody(sess)
	body["ids"] = access
	reply.OK(w, body)
}

// sessionBody is the client view of a session.
func sessionBody(s *session.Session) reply.Obj {
	if !s.IsLoggedIn() {
		return reply.Obj{"loggedIn": false, "browserId": s.BrowserID}
	}
	return reply.Obj{
		"loggedIn":  true,
		"_id":       s.UserID,
		"username":  s.Username,
		"userLevel": s.UserLevel,
		"verified":  s.Verified,
		"browserId": s.BrowserID,
	}
}
