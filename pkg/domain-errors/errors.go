// Package domainerrors defines the problem taxonomy surfaced by the registry.
//
// Every failure that reaches a caller is an *Error carrying a stable Code and a
// human-readable Detail. Services construct them with New or Wrap; the HTTP
// layer renders them as RFC 7807 problem documents via Problem.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable problem kind.
type Code string

const (
	CodeNoURLSubmitted        Code = "NO_URL_SUBMITTED"
	CodeFeedTimeout           Code = "FEED_TIMEOUT"
	CodeFeedFetchFailed       Code = "FEED_FETCH_FAILED"
	CodeAuthDocumentNotFound  Code = "AUTH_DOCUMENT_NOT_FOUND"
	CodeAuthDocumentInvalid   Code = "AUTH_DOCUMENT_INVALID"
	CodeLogoFetchFailed       Code = "LOGO_FETCH_FAILED"
	CodeServiceAreaInvalid    Code = "SERVICE_AREA_INVALID"
	CodeAudienceInvalid       Code = "AUDIENCE_INVALID"
	CodeCollectionSizeInvalid Code = "COLLECTION_SIZE_INVALID"
	CodeRateLimited           Code = "RATE_LIMITED"
	CodeInternal              Code = "INTERNAL"
)

const problemBase = "http://librarysimplified.org/terms/problem/"

type codeInfo struct {
	uri    string
	title  string
	status int
}

var codes = map[Code]codeInfo{
	CodeNoURLSubmitted:        {problemBase + "no-opds-url", "No OPDS URL", http.StatusBadRequest},
	CodeFeedTimeout:           {problemBase + "timeout", "Timeout retrieving OPDS feed", http.StatusBadGateway},
	CodeFeedFetchFailed:       {problemBase + "invalid-opds-feed", "Invalid OPDS feed", http.StatusBadRequest},
	CodeAuthDocumentNotFound:  {problemBase + "auth-document-not-found", "Authentication document not found", http.StatusBadRequest},
	CodeAuthDocumentInvalid:   {problemBase + "invalid-auth-document", "Invalid authentication document", http.StatusBadRequest},
	CodeLogoFetchFailed:       {problemBase + "invalid-logo", "Could not read logo image", http.StatusBadRequest},
	CodeServiceAreaInvalid:    {problemBase + "invalid-integration-document", "Invalid service area", http.StatusBadRequest},
	CodeAudienceInvalid:       {problemBase + "invalid-integration-document", "Invalid audience", http.StatusBadRequest},
	CodeCollectionSizeInvalid: {problemBase + "invalid-integration-document", "Invalid collection size", http.StatusBadRequest},
	CodeRateLimited:           {problemBase + "rate-limited", "Too many registration attempts", http.StatusTooManyRequests},
	CodeInternal:              {problemBase + "internal-error", "Internal server error", http.StatusInternalServerError},
}

// Error is a tagged problem. The zero Code behaves as CodeInternal.
type Error struct {
	Code   Code
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status associated with the problem kind.
func (e *Error) Status() int {
	return info(e.Code).status
}

// New builds a problem of the given kind.
func New(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Newf is New with a formatted detail.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a problem kind to an underlying error. The cause is kept for
// logging and errors.Is but never rendered to callers.
func Wrap(err error, code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail, Err: err}
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether err is a problem of the given kind.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// Problem is the RFC 7807 rendering of an Error.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Code   Code   `json:"code"`
}

// ToProblem renders any error as a problem document. Errors that are not
// *Error become internal problems and their message is withheld.
func ToProblem(err error) Problem {
	de, ok := As(err)
	if !ok {
		de = New(CodeInternal, "")
	}
	ci := info(de.Code)
	p := Problem{Type: ci.uri, Title: ci.title, Status: ci.status, Code: de.Code}
	if de.Code != CodeInternal && de.Code != "" {
		p.Detail = de.Detail
	}
	if p.Code == "" {
		p.Code = CodeInternal
	}
	return p
}

func info(code Code) codeInfo {
	if ci, ok := codes[code]; ok {
		return ci
	}
	return codes[CodeInternal]
}
