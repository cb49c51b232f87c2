package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"libreg/internal/platform/config"
	"libreg/internal/platform/httpserver"
	"libreg/internal/platform/logger"
	platformmetrics "libreg/internal/platform/metrics"
	ratelimitmetrics "libreg/internal/ratelimit/metrics"
	"libreg/internal/registration"
	"libreg/internal/registration/fetch"
	"libreg/internal/registration/handler"
	regmetrics "libreg/internal/registration/metrics"
	httptransport "libreg/internal/transport/http"
)

const (
	shutdownTimeout = 10 * time.Second
	// responseMargin keeps the write deadline clear of the handshake deadline
	// so a timed-out registration still gets its problem response.
	responseMargin = 30 * time.Second
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "libreg: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogLevel)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := platformmetrics.New(reg)
	registrationMetrics := regmetrics.New(reg)

	backends, err := openInfra(ctx, cfg, log, registrationMetrics)
	if err != nil {
		return err
	}
	defer backends.Close()

	g, gctx := errgroup.WithContext(ctx)
	if backends.auditWorker != nil {
		g.Go(func() error {
			if err := backends.auditWorker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("audit worker: %w", err)
			}
			return nil
		})
	}

	defaultNation, err := resolveDefaultNation(ctx, backends.places, cfg.Registration.DefaultNation)
	if err != nil {
		return err
	}

	svc := registration.New(
		fetch.NewHTTPFetcher(),
		backends.libraries,
		backends.places,
		registration.WithLogger(log),
		registration.WithMetrics(registrationMetrics),
		registration.WithAuditPublisher(backends.audit),
		registration.WithDefaultNation(defaultNation),
		registration.WithTimeouts(cfg.Registration.RootFetchTimeout, cfg.Registration.FetchTimeout),
		registration.WithMaxLogoBytes(cfg.Registration.MaxLogoBytes),
		registration.WithMaxFeedBytes(cfg.Registration.MaxFeedBytes),
	)
	// The root plus three candidate fetches; extra candidates share this
	// budget and exhausting it is reported as a feed timeout.
	handshakeTimeout := cfg.Registration.RootFetchTimeout + 3*cfg.Registration.FetchTimeout
	limiter := backends.rateLimiter(cfg.RateLimit, log, ratelimitmetrics.New(reg))
	registrationHandler := handler.New(svc, log, httpMetrics, handshakeTimeout,
		handler.WithRateLimit(limiter.RateLimit),
		handler.WithTrustedProxies(cfg.TrustedProxies),
	)

	router := httptransport.NewRouter(reg, backends.healthChecks, registrationHandler)
	srv := httpserver.New(cfg.Addr, router, httpserver.WithWriteTimeout(handshakeTimeout+responseMargin))

	g.Go(func() error {
		log.Info("starting libreg", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}
