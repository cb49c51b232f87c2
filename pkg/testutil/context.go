package testutil

import (
	"net/http"
	"time"

	"libreg/pkg/requestcontext"
)

// WithRequestID adds a request ID to the request context, as the request ID
// middleware would.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithTime pins the request's notion of now.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
