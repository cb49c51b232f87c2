// Package reconcile applies a library's declared coverage, audiences and
// collection sizes to its stored associations.
//
// Each reconciler validates first and mutates only on success, so a rejected
// declaration leaves the library exactly as it was.
package reconcile

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"libreg/internal/geo/coverage"
	"libreg/internal/library/models"
	dErrors "libreg/pkg/domain-errors"
)

// ServiceAreas replaces lib's service areas with the places of serviceArea
// (eligibility) and focusArea (focus).
//
// An empty focus area means the service area is the focus. A focus area equal
// to the service area is stored once, as focus.
func ServiceAreas(lib *models.Library, serviceArea, focusArea coverage.Result) error {
	if err := unresolvedProblem(serviceArea, focusArea); err != nil {
		return err
	}

	eligibility := serviceArea.PlaceIDs()
	focus := focusArea.PlaceIDs()
	if len(eligibility) == 0 && len(focus) == 0 {
		return nil
	}

	switch {
	case len(focus) == 0:
		focus, eligibility = eligibility, nil
	case sameSet(focus, eligibility):
		eligibility = nil
	}

	var next []models.ServiceArea
	next = append(next, diffAreas(lib.ServiceAreas, models.AreaEligibility, eligibility)...)
	next = append(next, diffAreas(lib.ServiceAreas, models.AreaFocus, focus)...)
	lib.ServiceAreas = next
	return nil
}

// diffAreas keeps existing rows of type t whose place is still wanted and
// appends rows for wanted places that have none.
func diffAreas(existing []models.ServiceArea, t models.AreaType, wanted []int64) []models.ServiceArea {
	var out []models.ServiceArea
	have := make(map[int64]bool)
	for _, area := range existing {
		if area.Type != t || !slices.Contains(wanted, area.PlaceID) || have[area.PlaceID] {
			continue
		}
		have[area.PlaceID] = true
		out = append(out, area)
	}
	for _, placeID := range wanted {
		if have[placeID] {
			continue
		}
		have[placeID] = true
		out = append(out, models.ServiceArea{PlaceID: placeID, Type: t})
	}
	return out
}

func unresolvedProblem(results ...coverage.Result) error {
	unknown := make(map[string][]string)
	ambiguous := make(map[string][]string)
	for _, r := range results {
		mergeNames(unknown, r.Unknown)
		mergeNames(ambiguous, r.Ambiguous)
	}
	if len(unknown) == 0 && len(ambiguous) == 0 {
		return nil
	}

	var sentences []string
	if len(unknown) > 0 {
		sentences = append(sentences, "The following service area was unknown: "+encodeNames(unknown)+".")
	}
	if len(ambiguous) > 0 {
		sentences = append(sentences, "The following service area was ambiguous: "+encodeNames(ambiguous)+".")
	}
	return dErrors.New(dErrors.CodeServiceAreaInvalid, strings.Join(sentences, " "))
}

func mergeNames(dst, src map[string][]string) {
	for _, key := range slices.Sorted(maps.Keys(src)) {
		for _, name := range src[key] {
			if !slices.Contains(dst[key], name) {
				dst[key] = append(dst[key], name)
			}
		}
	}
}

// encodeNames renders a name map as JSON. Keys are sorted by encoding/json.
func encodeNames(names map[string][]string) string {
	raw, err := json.Marshal(names)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func sameSet(a, b []int64) bool {
	as := make(map[int64]bool, len(a))
	for _, v := range a {
		as[v] = true
	}
	bs := make(map[int64]bool, len(b))
	for _, v := range b {
		bs[v] = true
	}
	return maps.Equal(as, bs)
}
