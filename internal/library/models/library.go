package models

import (
	"slices"
	"time"

	id "libreg/pkg/domain"
)

// Stage is a library's position in the registry's review lifecycle.
type Stage string

const (
	StageRegistered Stage = "registered"
	StageApproved   Stage = "approved"
	StageLive       Stage = "live"
)

// AreaType distinguishes the two kinds of service area.
type AreaType string

const (
	// AreaEligibility is the broadest region a library may serve.
	AreaEligibility AreaType = "eligibility"
	// AreaFocus is the region a library primarily targets.
	AreaFocus AreaType = "focus"
)

// Audience names a class of patron a library serves.
type Audience string

const (
	AudiencePublic               Audience = "public"
	AudienceEducationalPrimary   Audience = "educational-primary"
	AudienceEducationalSecondary Audience = "educational-secondary"
	AudienceResearch             Audience = "research"
	AudiencePrintDisability      Audience = "print-disability"
	AudienceOther                Audience = "other"
)

var knownAudiences = map[Audience]bool{
	AudiencePublic:               true,
	AudienceEducationalPrimary:   true,
	AudienceEducationalSecondary: true,
	AudienceResearch:             true,
	AudiencePrintDisability:      true,
	AudienceOther:                true,
}

// ParseAudience maps a declared audience name to the enumeration. Matching is
// case-sensitive; anything unrecognised is AudienceOther.
func ParseAudience(name string) Audience {
	a := Audience(name)
	if knownAudiences[a] {
		return a
	}
	return AudienceOther
}

// ServiceArea associates a library with a place. ID is zero until stored.
type ServiceArea struct {
	ID      int64    `json:"id,omitempty"`
	PlaceID int64    `json:"place_id"`
	Type    AreaType `json:"type"`
}

// CollectionSummary records how many titles a library holds in one language.
// An empty Language is the aggregated unknown-language bucket.
type CollectionSummary struct {
	ID       int64  `json:"id,omitempty"`
	Language string `json:"language,omitempty"`
	Size     int64  `json:"size"`
}

// Library is the aggregate root for a registered OPDS server.
//
// Invariants:
//   - OPDSURL is the unique lookup key
//   - ShortName, once assigned, never changes
//   - a place appears at most once per AreaType in ServiceAreas
//   - Audiences holds no duplicates
//   - CollectionSummaries holds at most one row per Language
type Library struct {
	ID                  id.LibraryID        `json:"id"`
	Name                string              `json:"name"`
	Description         string              `json:"description,omitempty"`
	OPDSURL             string              `json:"opds_url"`
	WebURL              string              `json:"web_url,omitempty"`
	Logo                string              `json:"logo,omitempty"`
	ShortName           string              `json:"short_name,omitempty"`
	SharedSecret        string              `json:"-"`
	Stage               Stage               `json:"stage"`
	AnonymousAccess     bool                `json:"anonymous_access"`
	OnlineRegistration  bool                `json:"online_registration"`
	ServiceAreas        []ServiceArea       `json:"service_areas,omitempty"`
	Audiences           []Audience          `json:"audiences,omitempty"`
	CollectionSummaries []CollectionSummary `json:"collection_summaries,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// NewLibrary creates a library in the registered stage.
func NewLibrary(opdsURL string, now time.Time) *Library {
	return &Library{
		ID:        id.NewLibraryID(),
		OPDSURL:   opdsURL,
		Stage:     StageRegistered,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (l *Library) Clone() *Library {
	if l == nil {
		return nil
	}
	c := *l
	c.ServiceAreas = slices.Clone(l.ServiceAreas)
	c.Audiences = slices.Clone(l.Audiences)
	c.CollectionSummaries = slices.Clone(l.CollectionSummaries)
	return &c
}

// HasSharedSecret reports whether a secret has been issued.
func (l *Library) HasSharedSecret() bool {
	return l.SharedSecret != ""
}

// AreaPlaceIDs returns the place IDs of service areas of the given type.
func (l *Library) AreaPlaceIDs(t AreaType) []int64 {
	var ids []int64
	for _, area := range l.ServiceAreas {
		if area.Type == t {
			ids = append(ids, area.PlaceID)
		}
	}
	return ids
}

// HasAudience reports whether a is among the library's audiences.
func (l *Library) HasAudience(a Audience) bool {
	return slices.Contains(l.Audiences, a)
}
