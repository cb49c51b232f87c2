// Package middleware throttles registration attempts per client IP.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"libreg/internal/ratelimit/metrics"
	"libreg/internal/ratelimit/models"
	dErrors "libreg/pkg/domain-errors"
	"libreg/pkg/platform/circuit"
	"libreg/pkg/platform/httputil"
	"libreg/pkg/requestcontext"
)

// DegradedHeader is set while answers come from the in-memory fallback.
const DegradedHeader = "X-RateLimit-Status"

// Limiter admits or refuses one request for key.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
}

type Middleware struct {
	primary  Limiter
	fallback Limiter
	breaker  *circuit.Breaker
	limit    int
	window   time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
}

type Option func(*Middleware)

// WithFallback answers from fallback when the primary fails. The breaker
// decides when to trust the primary again.
func WithFallback(fallback Limiter, breaker *circuit.Breaker) Option {
	return func(m *Middleware) {
		m.fallback = fallback
		m.breaker = breaker
	}
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

// WithDisabled disables rate limiting entirely (for local development).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

// New allows limit requests per client IP per window.
func New(primary Limiter, limit int, window time.Duration, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		primary: primary,
		limit:   limit,
		window:  window,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.fallback != nil && m.breaker == nil {
		m.breaker = circuit.New("ratelimit")
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit refuses requests over the limit with a RATE_LIMITED problem.
// Limiter failures without a usable fallback let the request through.
func (m *Middleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		ip := requestcontext.ClientIP(ctx)
		result, degraded, err := m.check(ctx, models.RegistrationKey(ip))
		if err != nil {
			m.logger.ErrorContext(ctx, "rate limit check failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			m.record(metrics.DecisionError)
			next.ServeHTTP(w, r)
			return
		}

		addHeaders(w, result)
		if degraded {
			w.Header().Set(DegradedHeader, "degraded")
		}
		if !result.Allowed {
			m.record(metrics.DecisionLimited)
			m.logger.InfoContext(ctx, "registration rate limited",
				"request_id", requestcontext.RequestID(ctx),
				"client_ip", ip,
			)
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeRateLimited,
				"Too many registration attempts. Try again in %d seconds.", retryAfter))
			return
		}
		m.record(metrics.DecisionAllowed)
		next.ServeHTTP(w, r)
	})
}

// check asks the primary limiter and, when it is failing or the breaker is
// still open, the fallback.
func (m *Middleware) check(ctx context.Context, key string) (*models.Result, bool, error) {
	result, err := m.primary.Allow(ctx, key, m.limit, m.window)
	if m.fallback == nil {
		return result, false, err
	}

	if err != nil {
		_, change := m.breaker.RecordFailure()
		if change.Opened {
			m.logger.WarnContext(ctx, "rate limiter degraded to in-memory fallback", "error", err)
			m.setDegraded(true)
		}
	} else {
		usePrimary, change := m.breaker.RecordSuccess()
		if change.Closed {
			m.logger.InfoContext(ctx, "rate limiter recovered")
			m.setDegraded(false)
		}
		if usePrimary {
			return result, false, nil
		}
	}

	fallbackResult, fallbackErr := m.fallback.Allow(ctx, key, m.limit, m.window)
	if fallbackErr != nil {
		return nil, true, fmt.Errorf("fallback limiter: %w", fallbackErr)
	}
	return fallbackResult, true, nil
}

func (m *Middleware) record(decision string) {
	if m.metrics != nil {
		m.metrics.RecordDecision(decision)
	}
}

func (m *Middleware) setDegraded(degraded bool) {
	if m.metrics != nil {
		m.metrics.SetDegraded(degraded)
	}
}

func addHeaders(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
