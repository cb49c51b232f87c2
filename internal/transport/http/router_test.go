package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingHandler struct{}

func (pingHandler) Register(r chi.Router) {
	r.Post("/register", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestHeartbeat(t *testing.T) {
	t.Run("healthy without checks", func(t *testing.T) {
		router := NewRouter(prometheus.NewRegistry(), nil)
		w := serve(router, http.MethodGet, "/heartbeat")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("reports each check", func(t *testing.T) {
		router := NewRouter(prometheus.NewRegistry(), map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		})
		w := serve(router, http.MethodGet, "/heartbeat")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		var resp heartbeatResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "unavailable", resp.Status)
		assert.Equal(t, map[string]string{"postgres": "ok", "redis": "connection refused"}, resp.Checks)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: "libreg_test_total", Help: "test"}).Inc()

	w := serve(NewRouter(reg, nil), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "libreg_test_total 1")
}

func TestFeatureHandlersAreMounted(t *testing.T) {
	router := NewRouter(prometheus.NewRegistry(), nil, pingHandler{})
	assert.Equal(t, http.StatusTeapot, serve(router, http.MethodPost, "/register").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/nowhere").Code)
}
