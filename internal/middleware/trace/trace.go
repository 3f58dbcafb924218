// Package trace logs and measures every HTTP request.
package trace

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"envelope/internal/log"
	"envelope/internal/metrics"
)

// Middleware attaches a request-scoped logger carrying the request id,
// then records the outcome in the access log and the HTTP metrics. It must
// run after chi's RequestID middleware.
func Middleware(logger *log.Logger, clientIP func(*http.Request) string) func(http.Handler) http.Handler {
	access := log.NewStructuredLogger(logger)
	scope := log.RequestIDMiddleware(func(r *http.Request) string {
		return middleware.GetReqID(r.Context())
	})
	return func(next http.Handler) http.Handler {
		measured := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			metrics.ObserveHTTP(RoutePattern(r), r.Method, status, elapsed)

			ip := ""
			if clientIP != nil {
				ip = clientIP(r)
			}
			access.LogHTTPEnd(r.Context(), r, status, elapsed.Milliseconds(), ip)
		})
		return log.Middleware(logger)(scope(measured))
	}
}

// RoutePattern is the matched chi route, e.g. "/api/v1/accounts/{id}", so
// metric labels stay bounded. Unmatched requests share one label.
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// RequestID returns the id chi assigned to the request, if any.
func RequestID(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}
