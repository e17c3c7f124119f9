// components/forms/forms.go
//
// Forms component – serves form definitions to the browser client.
//
// Context
//   The client renders every form from its stored definition.  A definition
//   is readable by whoever may use the form, so the route is gated on the
//   requested record itself with GET semantics.
//
// Workflow
//   GET <api>/forms/{formId}
//     1.  Unknown id                → 404 {id, msg}.
//     2.  Gate the record as GET    → 401 bodies from the engine.
//     3.  Answer the record plus `id`.
//
//------------------------------------------------------------------------------

package forms

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/beacon/internal/component"
	"github.com/yanizio/beacon/internal/form"
	"github.com/yanizio/beacon/internal/reply"
)

var (
	_ component.Component   = (*Component)(nil)
	_ component.Initializer = (*Component)(nil)
)

// Component serves form definitions.
type Component struct {
	deps component.Deps
}

func (c *Component) Name() string         { return "forms" }
func (c *Component) Migrations() []string { return form.Migrations }

// Init keeps the shared services.
func (c *Component) Init(d component.Deps) error {
	if d.Engine == nil || d.Forms == nil {
		return errors.New("forms: engine and form store required")
	}
	c.deps = d
	return nil
}

func (c *Component) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{formId}", c.handleGet)
	return r
}

func init() { component.Register(&Component{}) }

/*──────────────────────────── handlers ─────────────────────────────────────*/

func (c *Component) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "formId")
	f, err := c.deps.Forms.FindByFormID(r.Context(), id)
	if errors.Is(err, form.ErrNotFound) {
		zap.S().Infow("requested form does not exist", "form", id)
		reply.JSON(w, http.StatusNotFound, reply.Obj{"id": id, "msg": "Could not find form."})
		return
	}
	if err != nil {
		reply.Internal(w, "form lookup failed", err)
		return
	}
	if !c.deps.Engine.CheckAs(w, r, id, http.MethodGet) {
		return
	}

	doc, err := withID(f)
	if err != nil {
		reply.Internal(w, "form encode failed", err)
		return
	}
	reply.OK(w, doc)
}

// withID renders f as a loose document carrying the client’s `id` key.
func withID(f *form.Form) (map[string]any, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	doc["id"] = f.FormID
	return doc, nil
}
