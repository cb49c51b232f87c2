// Package postgres opens database connections and owns the registry schema.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
)

// Open connects database/sql to url through lib/pq and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// OpenPool connects a pgx pool to url. The gazetteer uses it for its
// recursive place queries.
func OpenPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pgx pool: %w", err)
	}
	return pool, nil
}

// CreateSchema creates all registry tables. Safe to call multiple times.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const schema = `
-- Places
CREATE TABLE IF NOT EXISTS places (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    abbreviated_name TEXT,
    type TEXT NOT NULL CHECK (type IN ('nation', 'state', 'county', 'city', 'postal_code', 'everywhere')),
    parent_id BIGINT REFERENCES places(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_places_everywhere ON places(type) WHERE type = 'everywhere';
CREATE INDEX IF NOT EXISTS idx_places_parent_id ON places(parent_id);
CREATE INDEX IF NOT EXISTS idx_places_name ON places(name);
CREATE INDEX IF NOT EXISTS idx_places_abbreviated_name ON places(abbreviated_name);

-- Libraries
CREATE TABLE IF NOT EXISTS libraries (
    id UUID PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    description TEXT,
    opds_url TEXT NOT NULL UNIQUE,
    web_url TEXT,
    logo TEXT,
    short_name TEXT UNIQUE,
    shared_secret TEXT,
    stage TEXT NOT NULL DEFAULT 'registered' CHECK (stage IN ('registered', 'approved', 'live')),
    anonymous_access BOOLEAN NOT NULL DEFAULT FALSE,
    online_registration BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Service areas
CREATE TABLE IF NOT EXISTS service_areas (
    id BIGSERIAL PRIMARY KEY,
    library_id UUID NOT NULL REFERENCES libraries(id) ON DELETE CASCADE,
    place_id BIGINT NOT NULL REFERENCES places(id) ON DELETE CASCADE,
    type TEXT NOT NULL CHECK (type IN ('eligibility', 'focus')),
    UNIQUE (library_id, place_id, type)
);

CREATE INDEX IF NOT EXISTS idx_service_areas_library_id ON service_areas(library_id);

-- Audiences
CREATE TABLE IF NOT EXISTS audiences (
    library_id UUID NOT NULL REFERENCES libraries(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    PRIMARY KEY (library_id, name)
);

-- Collection summaries
CREATE TABLE IF NOT EXISTS collection_summaries (
    id BIGSERIAL PRIMARY KEY,
    library_id UUID NOT NULL REFERENCES libraries(id) ON DELETE CASCADE,
    language TEXT,
    size BIGINT NOT NULL CHECK (size >= 0)
);

CREATE INDEX IF NOT EXISTS idx_collection_summaries_library_id ON collection_summaries(library_id);
`
