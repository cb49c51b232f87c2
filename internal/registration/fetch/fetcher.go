// Package fetch performs the outbound HTTP requests of the registration
// handshake: root feeds, authentication documents and logos.
package fetch

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// Status classes accepted by Options.Accept.
const (
	Accept2xx = "2xx"
	Accept3xx = "3xx"
)

// Options controls a single fetch.
type Options struct {
	// Accept lists the statuses that count as success. Entries are either a
	// class ("2xx", "3xx") or an exact code ("401"). Empty means 2xx only.
	Accept []string
	// Timeout bounds the whole exchange including reading the body. Zero
	// leaves the context deadline as the only bound.
	Timeout time.Duration
	// MaxBytes caps the body size. Zero means unlimited.
	MaxBytes int64
}

// Accepts reports whether status satisfies the options.
func (o Options) Accepts(status int) bool {
	if len(o.Accept) == 0 {
		return status >= 200 && status < 300
	}
	for _, want := range o.Accept {
		if len(want) == 3 && want[1:] == "xx" {
			if strconv.Itoa(status / 100) == want[:1] {
				return true
			}
			continue
		}
		if code, err := strconv.Atoi(want); err == nil && code == status {
			return true
		}
	}
	return false
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// URL is the final URL after redirects.
	URL string
}

// ContentType returns the response media type as sent by the server.
func (r *Response) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Fetcher retrieves remote documents.
type Fetcher interface {
	Get(ctx context.Context, url string, opts Options) (*Response, error)
}
