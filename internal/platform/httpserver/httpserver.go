package httpserver

import (
	"net/http"
	"time"
)

const defaultWriteTimeout = 2 * time.Minute

type Option func(*http.Server)

// WithWriteTimeout raises the write timeout to at least d. Registration
// handlers need it above their handshake deadline so a timeout can still be
// reported to the caller.
func WithWriteTimeout(d time.Duration) Option {
	return func(srv *http.Server) {
		srv.WriteTimeout = max(srv.WriteTimeout, d)
	}
}

// New builds an HTTP server with sane defaults for this project.
func New(addr string, handler http.Handler, opts ...Option) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}
