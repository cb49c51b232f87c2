package httptransport

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"libreg/pkg/platform/httputil"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// RouteRegistrar is implemented by every feature handler.
type RouteRegistrar interface {
	Register(r chi.Router)
}

// NewRouter wires the operational endpoints and every feature handler.
func NewRouter(gatherer prometheus.Gatherer, checks map[string]HealthCheck, handlers ...RouteRegistrar) http.Handler {
	r := chi.NewRouter()
	r.Get("/heartbeat", heartbeat(checks))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	for _, h := range handlers {
		h.Register(r)
	}
	return r
}

type heartbeatResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// heartbeat answers 200 when every check passes and 503 otherwise.
func heartbeat(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp := heartbeatResponse{Status: "ok"}
		status := http.StatusOK
		if len(names) > 0 {
			resp.Checks = make(map[string]string, len(names))
		}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, "application/json", resp)
	}
}
