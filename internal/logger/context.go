// internal/logger/context.go
//
// Request-scoped loggers.
//
// Context
//   RequestLog derives a child of the global logger tagged with the request
//   id and parks it in the request context.  Handlers call FromContext and
//   get that child, or the global sugared logger when no middleware ran
//   (tests, background workers).
//
// Notes
//   Request bodies are never logged.  They may carry passwords and CSRF
//   tokens.
//
//------------------------------------------------------------------------------

package logger

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type ctxKey struct{}

// WithContext returns ctx carrying l.
func WithContext(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the request logger, or zap.S().
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.SugaredLogger); ok && l != nil {
		return l
	}
	return zap.S()
}

// RequestLog logs one INFO line per request with method, path, status, and
// duration.  It expects chi’s RequestID middleware to run first.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		l := zap.S().With("req_id", middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(WithContext(r.Context(), l)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		l.Infow("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"dur", time.Since(start),
		)
	})
}
