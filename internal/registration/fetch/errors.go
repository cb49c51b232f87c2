package fetch

import (
	"errors"
	"fmt"
)

// Category classifies a failed fetch.
type Category string

const (
	// CategoryTimeout means the remote did not answer before the deadline.
	CategoryTimeout Category = "timeout"

	// CategoryFailed covers connection errors, unreadable bodies and oversized responses.
	CategoryFailed Category = "fetch_failed"

	// CategoryBadStatus means the remote answered with a status the caller did not accept.
	CategoryBadStatus Category = "bad_status"
)

// Error wraps fetch failures with a normalized category.
type Error struct {
	Category   Category
	URL        string
	Message    string
	StatusCode int
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("fetch %s [%s]: %s: %v", e.URL, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("fetch %s [%s]: %s", e.URL, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError creates a categorized fetch error.
func NewError(category Category, url, message string, underlying error) *Error {
	return &Error{
		Category:   category,
		URL:        url,
		Message:    message,
		Underlying: underlying,
	}
}

// GetCategory extracts the category from err. Errors that did not come from a
// Fetcher are reported as CategoryFailed.
func GetCategory(err error) Category {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Category
	}
	return CategoryFailed
}

// IsTimeout reports whether err is a fetch timeout.
func IsTimeout(err error) bool {
	return GetCategory(err) == CategoryTimeout
}
