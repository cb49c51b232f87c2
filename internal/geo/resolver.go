// Package geo resolves free-form place names to canonical places.
package geo

import (
	"context"

	"libreg/internal/geo/models"
)

// Outcome classifies a name lookup.
type Outcome int

const (
	NotFound Outcome = iota
	Found
	Ambiguous
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not_found"
	}
}

// Resolution is the result of resolving one name. Place is set only when
// Outcome is Found.
type Resolution struct {
	Outcome Outcome
	Place   *models.Place
}

// FoundPlace is a convenience constructor for a successful resolution.
func FoundPlace(p *models.Place) Resolution {
	return Resolution{Outcome: Found, Place: p}
}

// Resolver looks up places by exact name or code.
//
// A nil scope searches nations. A non-nil scope searches places inside it.
// Errors are reserved for infrastructure failures; an unknown name is a
// NotFound resolution, not an error.
type Resolver interface {
	Resolve(ctx context.Context, name string, scope *models.Place) (Resolution, error)
	Everywhere(ctx context.Context) (*models.Place, error)
}

// ResolveWithDefault resolves name within scope. When scope is nil and the
// unscoped lookup finds nothing, the lookup is retried inside defaultNation.
func ResolveWithDefault(ctx context.Context, r Resolver, name string, scope, defaultNation *models.Place) (Resolution, error) {
	res, err := r.Resolve(ctx, name, scope)
	if err != nil {
		return Resolution{}, err
	}
	if res.Outcome != NotFound || scope != nil || defaultNation == nil {
		return res, nil
	}
	return r.Resolve(ctx, name, defaultNation)
}
