package main

import (
	"context"
	"errors"
	"fmt"

	"libreg/internal/geo"
	"libreg/internal/geo/models"
	"libreg/internal/geo/store"
	"libreg/internal/platform/postgres"
)

type globalOptions struct {
	databaseURL string
	gazetteer   string
}

// resolver opens the gazetteer named by the flags. A YAML file wins over the
// database. The returned func releases it.
func (o *globalOptions) resolver(ctx context.Context) (geo.Resolver, func(), error) {
	if o.gazetteer != "" {
		g, err := store.LoadGazetteer(o.gazetteer)
		if err != nil {
			return nil, nil, err
		}
		return g, func() {}, nil
	}
	pg, closeFn, err := o.postgres(ctx)
	if err != nil {
		return nil, nil, err
	}
	return pg, closeFn, nil
}

func (o *globalOptions) postgres(ctx context.Context) (*store.PostgresGazetteer, func(), error) {
	if o.databaseURL == "" {
		return nil, nil, errors.New("either --gazetteer or --database-url is required")
	}
	pool, err := postgres.OpenPool(ctx, o.databaseURL)
	if err != nil {
		return nil, nil, err
	}
	return store.NewPostgres(pool), pool.Close, nil
}

// lookupNation resolves a nation abbreviation. An empty abbreviation yields nil.
func lookupNation(ctx context.Context, r geo.Resolver, abbreviation string) (*models.Place, error) {
	if abbreviation == "" {
		return nil, nil
	}
	res, err := r.Resolve(ctx, abbreviation, nil)
	if err != nil {
		return nil, err
	}
	if res.Outcome != geo.Found {
		return nil, fmt.Errorf("nation %q: %s", abbreviation, res.Outcome)
	}
	return res.Place, nil
}
