package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Health reports the health of the gateway on the support listener.
type Health interface {
	Healthy() bool
}

// NewSupportHandler returns the router of the support listener. It
// serves the metrics under /metrics and the health check under /healthz.
// The CodaHale metrics can be filtered by key prefix, e.g.
// /metrics/task.alter.
func NewSupportHandler(m Metrics, h Health) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Method(http.MethodGet, "/metrics/*", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if h != nil && !h.Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unhealthy\n"))
			return
		}

		w.Write([]byte("ok\n"))
	})

	return r
}
