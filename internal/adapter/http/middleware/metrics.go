package middleware

import (
	"net/http"
	"time"

	"github.com/Temutjin2k/hust-run/pkg/metrics"
)

// Metrics records HTTP metrics labelled by the matched route pattern. It must
// wrap the mux directly so the pattern set by ServeMux is visible here.
func (m *Middleware) Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rw := &responseWriter{ResponseWriter: w}

		next.ServeHTTP(rw, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPMetrics(r.Method, path, rw.Status(), time.Since(start))
	})
}
