// internal/form/payload.go
//
// Request bodies as loose JSON objects.
//
// Context
//   The engine validates whatever keys the browser sent, so bodies are decoded
//   into a plain map rather than a struct.  ParseBody decodes the body once
//   per request and parks it in the context; the CSRF check, the gate, and
//   the handler all read the same map.
//
//------------------------------------------------------------------------------

package form

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/yanizio/beacon/internal/reply"
)

// maxBody caps a decoded request body.
const maxBody = 1 << 20

// Payload is one decoded JSON object body.
type Payload map[string]any

// Keys returns the payload keys in sorted order.
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key was sent, even with a null value.
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String returns the trimmed string form of key.
func (p Payload) String(key string) string {
	return strings.TrimSpace(Stringify(p[key]))
}

// Int returns key as an int and whether it was numeric.
func (p Payload) Int(key string) (int, bool) { return ToInt(p[key]) }

// Bool returns the truthiness of key.
func (p Payload) Bool(key string) bool { return Truthy(p[key]) }

// Strings returns key as a list of strings.  A single string is a list of one.
func (p Payload) Strings(key string) []string {
	switch v := p[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, Stringify(e))
		}
		return out
	case string:
		return []string{v}
	default:
		return nil
	}
}

/*──────────────────────────── context plumbing ─────────────────────────────*/

type ctxKey struct{}

// WithPayload attaches p to ctx.
func WithPayload(ctx context.Context, p Payload) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PayloadFrom returns the decoded body, or an empty payload.
func PayloadFrom(ctx context.Context) Payload {
	if p, ok := ctx.Value(ctxKey{}).(Payload); ok {
		return p
	}
	return Payload{}
}

// DecodePayload reads a JSON object from r.  An empty body is an empty payload.
func DecodePayload(r io.Reader) (Payload, error) {
	p := Payload{}
	err := json.NewDecoder(r).Decode(&p)
	if errors.Is(err, io.EOF) {
		return Payload{}, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ParseBody decodes the JSON body of every request that may carry one.
// Malformed JSON is answered with 400 before any handler runs.
func ParseBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		p, err := DecodePayload(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			zap.S().Infow("malformed request body", "path", r.URL.Path, "err", err)
			reply.JSON(w, http.StatusBadRequest, reply.Obj{"msg": "Bad request", "badRequest": true})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPayload(r.Context(), p)))
	})
}
