package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "libreg/pkg/domain-errors"
)

// ProblemContentType is the media type of RFC 7807 error bodies.
const ProblemContentType = "application/problem+json"

// WriteError renders err as a problem document. Internal errors never leak
// their detail.
func WriteError(w http.ResponseWriter, err error) {
	problem := dErrors.ToProblem(err)
	w.Header().Set("Content-Type", ProblemContentType)
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteJSON writes v with the given content type and status.
func WriteJSON(w http.ResponseWriter, status int, contentType string, v any) {
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
