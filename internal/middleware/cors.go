// internal/middleware/cors.go
//
// Cross-origin policy for the browser client.
//
// The client is served from its own origin (http.client_origin) and talks
// to the API with credentials, so the policy names that origin exactly and
// allows cookies plus the CSRF header.  An empty origin disables CORS and
// the API is same-origin only.

package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS returns the cross-origin wrapper for origin.
func CORS(origin string, extraHeaders ...string) func(http.Handler) http.Handler {
	if origin == "" {
		return func(h http.Handler) http.Handler { return h }
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{origin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   append([]string{"Accept", "Content-Type"}, extraHeaders...),
		AllowCredentials: true,
		MaxAge:           300,
	})
}
