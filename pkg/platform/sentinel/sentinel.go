package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and caches return these
// (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: a uniqueness constraint (e.g. OPDS URL) was violated
// - ErrUnavailable: backing service temporarily unavailable
//
// For validation problems (bad documents, unknown places), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
