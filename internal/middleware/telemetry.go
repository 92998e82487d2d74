package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/medsourcepro/msapi/internal/telemetry"
)

// Metrics records per-request server metrics. Uses the chi route pattern
// rather than the raw path so cardinality stays bounded.
func Metrics(m *telemetry.ServerMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			m.RecordRequest(
				r.Context(),
				r.Method,
				route,
				strconv.Itoa(ww.Status()),
				float64(time.Since(start).Milliseconds()),
			)
		})
	}
}
