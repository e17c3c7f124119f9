// components/health/health.go
//
// Liveness check.  GET <api>/health answers the JSON string "ok" whenever the
// process can serve requests.  It touches no store, so load balancers can
// poll it cheaply while the database is slow.
package health

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/beacon/internal/component"
	"github.com/yanizio/beacon/internal/reply"
)

var _ component.Component = (*Component)(nil)

// Component serves the liveness check.
type Component struct{}

func (c *Component) Name() string                { return "health" }
func (c *Component) Migrations() []string        { return nil }
func (c *Component) Init(_ component.Deps) error { return nil }

func (c *Component) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) { reply.OK(w, "ok") })
	return r
}

func init() { component.Register(&Component{}) }
