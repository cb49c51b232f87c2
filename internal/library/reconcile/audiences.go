package reconcile

import (
	"encoding/json"
	"fmt"
	"slices"

	"libreg/internal/library/models"
	dErrors "libreg/pkg/domain-errors"
)

// Audiences replaces lib's audiences with declared. A nil declaration means
// the library serves the public.
func Audiences(lib *models.Library, declared any) error {
	var names []string
	switch d := declared.(type) {
	case nil:
		names = []string{string(models.AudiencePublic)}
	case string:
		names = []string{d}
	case []string:
		names = d
	case []any:
		for _, item := range d {
			s, ok := item.(string)
			if !ok {
				return audienceProblem(declared)
			}
			names = append(names, s)
		}
	default:
		return audienceProblem(declared)
	}

	var wanted []models.Audience
	for _, name := range names {
		a := models.ParseAudience(name)
		if !slices.Contains(wanted, a) {
			wanted = append(wanted, a)
		}
	}

	var next []models.Audience
	for _, a := range lib.Audiences {
		if slices.Contains(wanted, a) && !slices.Contains(next, a) {
			next = append(next, a)
		}
	}
	for _, a := range wanted {
		if !slices.Contains(next, a) {
			next = append(next, a)
		}
	}
	lib.Audiences = next
	return nil
}

func audienceProblem(value any) error {
	return dErrors.New(dErrors.CodeAudienceInvalid, "'audience' must be a list: "+describe(value))
}

// describe renders a declared value the way it appeared in the document.
func describe(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(raw)
}
