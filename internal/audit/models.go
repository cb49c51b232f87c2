package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a registry action worth recording.
type EventType string

const (
	EventLibraryRegistered    EventType = "library_registered"
	EventLibrarySecretRotated EventType = "library_secret_rotated"
	EventRegistrationRejected EventType = "library_registration_rejected"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	LibraryID string    `json:"library_id,omitempty"`
	OPDSURL   string    `json:"opds_url"`
	// Code and Detail describe a rejection.
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
