// Package coverage turns free-form coverage declarations into canonical places.
//
// A declaration is whatever JSON value a library published for its service or
// focus area: the marker "everywhere", a map of country code to place names,
// or a bare name or list of names meant for the registry's default nation.
package coverage

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"libreg/internal/geo"
	"libreg/internal/geo/models"
)

const (
	// Everywhere is the declaration marker for global (or country-wide) coverage.
	Everywhere = "everywhere"
	// UnknownNation keys names that could not be scoped to any nation.
	UnknownNation = "??"
)

// Result partitions a declaration into resolved places and the names that
// could not be resolved. A name lands in exactly one of the three fields.
type Result struct {
	Places    []*models.Place     `json:"places"`
	Unknown   map[string][]string `json:"unknown"`
	Ambiguous map[string][]string `json:"ambiguous"`
}

func newResult() Result {
	return Result{
		Unknown:   make(map[string][]string),
		Ambiguous: make(map[string][]string),
	}
}

// Valid reports whether every declared name resolved.
func (r Result) Valid() bool {
	return len(r.Unknown) == 0 && len(r.Ambiguous) == 0
}

// PlaceIDs returns the IDs of the resolved places in declaration order.
func (r Result) PlaceIDs() []int64 {
	ids := make([]int64, 0, len(r.Places))
	for _, p := range r.Places {
		ids = append(ids, p.ID)
	}
	return ids
}

func (r *Result) add(p *models.Place) {
	for _, existing := range r.Places {
		if existing.ID == p.ID {
			return
		}
	}
	r.Places = append(r.Places, p)
}

// Parse resolves declaration with r. defaultNation scopes bare names and may
// be nil. Only resolver failures are returned as errors; unresolvable names
// are reported in the Result.
func Parse(ctx context.Context, r geo.Resolver, declaration any, defaultNation *models.Place) (Result, error) {
	result := newResult()

	switch d := declaration.(type) {
	case nil:
		return result, nil
	case string:
		if d == Everywhere {
			everywhere, err := r.Everywhere(ctx)
			if err != nil {
				return Result{}, fmt.Errorf("resolve everywhere: %w", err)
			}
			result.add(everywhere)
			return result, nil
		}
	case Countries:
		for _, entry := range d {
			if err := parseCountry(ctx, r, &result, entry.Code, entry.Value); err != nil {
				return Result{}, err
			}
		}
		return result, nil
	case map[string]any:
		// Go maps carry no order; walk the codes sorted so results are stable.
		for _, code := range slices.Sorted(maps.Keys(d)) {
			if err := parseCountry(ctx, r, &result, code, d[code]); err != nil {
				return Result{}, err
			}
		}
		return result, nil
	}

	names := namesOf(declaration)
	if defaultNation == nil {
		result.Unknown[UnknownNation] = names
		return result, nil
	}
	if err := resolveInside(ctx, r, &result, nationKey(defaultNation), defaultNation, names); err != nil {
		return Result{}, err
	}
	return result, nil
}

func parseCountry(ctx context.Context, r geo.Resolver, result *Result, code string, value any) error {
	names := namesOf(value)
	country, err := r.Resolve(ctx, code, nil)
	if err != nil {
		return fmt.Errorf("resolve nation %q: %w", code, err)
	}
	switch country.Outcome {
	case geo.NotFound:
		result.Unknown[code] = names
		return nil
	case geo.Ambiguous:
		result.Ambiguous[code] = names
		return nil
	}

	if s, ok := value.(string); ok && s == Everywhere {
		result.add(country.Place)
		return nil
	}
	return resolveInside(ctx, r, result, code, country.Place, names)
}

func resolveInside(ctx context.Context, r geo.Resolver, result *Result, key string, scope *models.Place, names []string) error {
	for _, name := range names {
		res, err := r.Resolve(ctx, name, scope)
		if err != nil {
			return fmt.Errorf("resolve %q in %s: %w", name, scope.Label(), err)
		}
		switch res.Outcome {
		case geo.Found:
			result.add(res.Place)
		case geo.Ambiguous:
			result.Ambiguous[key] = append(result.Ambiguous[key], name)
		default:
			result.Unknown[key] = append(result.Unknown[key], name)
		}
	}
	return nil
}

// namesOf flattens a per-country declaration into a list of names. Values
// that are not strings are kept in printed form so they surface as unknown.
func namesOf(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case []string:
		return append([]string(nil), v...)
	case []any:
		names := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				names = append(names, s)
				continue
			}
			names = append(names, fmt.Sprint(item))
		}
		return names
	default:
		return []string{fmt.Sprint(v)}
	}
}

func nationKey(nation *models.Place) string {
	if nation.AbbreviatedName != "" {
		return nation.AbbreviatedName
	}
	return nation.Name
}
