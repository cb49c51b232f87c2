package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const userAgent = "libreg/1.0 (+https://librarysimplified.org/)"

// HTTPFetcher is the production Fetcher. Requests are traced through an
// otelhttp transport.
type HTTPFetcher struct {
	client *http.Client
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithTransport replaces the base round tripper. The transport is still
// wrapped for tracing.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *HTTPFetcher) {
		f.client.Transport = otelhttp.NewTransport(rt)
	}
}

// NewHTTPFetcher builds a fetcher that follows redirects.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Get performs a GET and reads the whole body before returning.
func (f *HTTPFetcher) Get(ctx context.Context, url string, opts Options) (*Response, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NewError(CategoryFailed, url, "invalid request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(url, "request failed", err)
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if opts.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, opts.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, classify(url, "read body", err)
	}
	if opts.MaxBytes > 0 && int64(len(data)) > opts.MaxBytes {
		return nil, NewError(CategoryFailed, url, fmt.Sprintf("response exceeds %d bytes", opts.MaxBytes), nil)
	}

	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	if !opts.Accepts(resp.StatusCode) {
		fe := NewError(CategoryBadStatus, url, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
		fe.StatusCode = resp.StatusCode
		return nil, fe
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		URL:        finalURL,
	}, nil
}

func classify(url, message string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(CategoryTimeout, url, "timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(CategoryTimeout, url, "timed out", err)
	}
	return NewError(CategoryFailed, url, message, err)
}
