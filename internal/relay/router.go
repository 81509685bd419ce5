package relay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthTimeout = 2 * time.Second

// Pinger is anything /healthz should check, usually the Redis cache
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// RouterOptions selects the auxiliary routes mounted next to the endpoint.
// Nil fields leave the route out.
type RouterOptions struct {
	Path      string
	Health    Pinger
	Gatherer  prometheus.Gatherer
	Broadcast http.Handler
}

// NewRouter mounts the notification endpoint for every method at opts.Path
func NewRouter(endpoint http.Handler, opts RouterOptions) *mux.Router {
	path := opts.Path
	if path == "" {
		path = "/api/callback"
	}

	r := mux.NewRouter()
	r.Handle(path, endpoint)
	r.HandleFunc("/healthz", healthHandler(opts.Health)).Methods(http.MethodGet, http.MethodHead)

	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}
	if opts.Broadcast != nil {
		r.Handle("/ws", opts.Broadcast).Methods(http.MethodGet)
	}
	return r
}

func healthHandler(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()

			if err := p.HealthCheck(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, "unhealthy: %v\n", err)
				return
			}
		}
		fmt.Fprintln(w, "ok")
	}
}
