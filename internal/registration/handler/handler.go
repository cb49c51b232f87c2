package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"

	"libreg/internal/platform/metrics"
	"libreg/internal/platform/middleware"
	"libreg/internal/registration"
	dErrors "libreg/pkg/domain-errors"
	"libreg/pkg/platform/httputil"
)

const maxFormBytes = 1 << 20

// Registrar runs the registration handshake.
type Registrar interface {
	Register(ctx context.Context, opdsURL, bearer string) (*registration.Result, error)
}

// Handler serves the registration endpoint.
type Handler struct {
	logger    *slog.Logger
	registrar Registrar
	metrics   *metrics.Metrics
	timeout   time.Duration
	throttle  func(http.Handler) http.Handler
	proxies   []netip.Prefix
}

type Option func(*Handler)

// WithRateLimit throttles registration attempts. The middleware runs after
// client metadata is in the request context.
func WithRateLimit(throttle func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.throttle = throttle
	}
}

// WithTrustedProxies lists the proxies whose forwarding headers identify the
// client.
func WithTrustedProxies(proxies []netip.Prefix) Option {
	return func(h *Handler) {
		h.proxies = proxies
	}
}

// New creates a registration Handler. timeout bounds a whole handshake and
// must exceed the root fetch timeout.
func New(registrar Registrar, logger *slog.Logger, metrics *metrics.Metrics, timeout time.Duration, opts ...Option) *Handler {
	h := &Handler{
		logger:    logger,
		registrar: registrar,
		metrics:   metrics,
		timeout:   timeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the registration routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.ClientMetadata(h.proxies))
		r.Use(middleware.RequestTime)
		r.Use(middleware.Logger(h.logger))
		if h.throttle != nil {
			r.Use(h.throttle)
		}
		r.Use(middleware.Timeout(h.timeout))
		r.Use(middleware.LatencyMiddleware(h.metrics))
		r.Post("/register", h.handleRegister)
	})
}

// handleRegister takes the catalog URL from the url form field and the
// current shared secret, if any, from a bearer Authorization header.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.logger.WarnContext(ctx, "invalid registration form",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeNoURLSubmitted, "The registration form could not be read."))
		return
	}

	result, err := h.registrar.Register(ctx, r.PostForm.Get("url"), registration.BearerToken(r.Header.Get("Authorization")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, registration.CatalogMediaType, result.Catalog)
}
