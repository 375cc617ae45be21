package middleware

import (
	"net/http"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Logger logs one structured entry per request and records request metrics
func Logger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			duration := time.Since(start)

			metrics.RecordHTTPRequest(r.Method, routePattern(r), status, duration)

			event := logger.Info()
			if status >= http.StatusInternalServerError {
				event = logger.Error()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Float64("duration_ms", float64(duration.Microseconds())/1000).
				Str("request_id", chimiddleware.GetReqID(r.Context())).
				Msg("request completed")
		}
		return http.HandlerFunc(fn)
	}
}

// routePattern keeps metric label cardinality bounded by using the chi
// pattern (/api/calls/{id}) instead of the raw path when one is available.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
