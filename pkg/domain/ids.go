// Package domain holds typed identifiers shared across registry packages.
package domain

import "github.com/google/uuid"

// LibraryID identifies a registered library. It is a distinct type so it
// cannot be confused with other UUIDs such as audit event IDs.
type LibraryID uuid.UUID

// NewLibraryID returns a random LibraryID.
func NewLibraryID() LibraryID {
	return LibraryID(uuid.New())
}

// ParseLibraryID parses the canonical string form. The nil UUID is rejected.
func ParseLibraryID(s string) (LibraryID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return LibraryID{}, err
	}
	if parsed == uuid.Nil {
		return LibraryID{}, errNilID
	}
	return LibraryID(parsed), nil
}

func (id LibraryID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether id was never assigned.
func (id LibraryID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id LibraryID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *LibraryID) UnmarshalText(text []byte) error {
	parsed, err := ParseLibraryID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
