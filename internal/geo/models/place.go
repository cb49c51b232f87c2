package models

// PlaceType is the kind of a node in the geographic hierarchy.
type PlaceType string

const (
	PlaceTypeNation     PlaceType = "nation"
	PlaceTypeState      PlaceType = "state"
	PlaceTypeCounty     PlaceType = "county"
	PlaceTypeCity       PlaceType = "city"
	PlaceTypePostalCode PlaceType = "postal_code"
	// PlaceTypeEverywhere marks the single sentinel place that stands for global coverage.
	PlaceTypeEverywhere PlaceType = "everywhere"
)

// IsValid reports whether t is a known place type.
func (t PlaceType) IsValid() bool {
	switch t {
	case PlaceTypeNation, PlaceTypeState, PlaceTypeCounty, PlaceTypeCity,
		PlaceTypePostalCode, PlaceTypeEverywhere:
		return true
	}
	return false
}

// Place is a canonical geographic entity.
//
// Invariants:
//   - ID is unique within a gazetteer and never zero once stored
//   - ParentID is zero for nations and for the everywhere sentinel
type Place struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	AbbreviatedName string    `json:"abbreviated_name,omitempty"`
	Type            PlaceType `json:"type"`
	ParentID        int64     `json:"parent_id,omitempty"`
}

// Matches reports whether name is this place's canonical name or code.
// Matching is exact.
func (p *Place) Matches(name string) bool {
	return name != "" && (p.Name == name || p.AbbreviatedName == name)
}

// IsEverywhere reports whether p is the global coverage sentinel.
func (p *Place) IsEverywhere() bool {
	return p != nil && p.Type == PlaceTypeEverywhere
}

// Label is the name used in logs and diagnostics.
func (p *Place) Label() string {
	if p.AbbreviatedName != "" {
		return p.Name + " (" + p.AbbreviatedName + ")"
	}
	return p.Name
}
