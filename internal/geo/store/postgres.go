package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"libreg/internal/geo"
	"libreg/internal/geo/models"
	"libreg/pkg/platform/sentinel"
)

const placeColumns = `id, name, COALESCE(abbreviated_name, ''), type, COALESCE(parent_id, 0)`

// PostgresGazetteer resolves places against the places table.
type PostgresGazetteer struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a PostgreSQL-backed gazetteer.
func NewPostgres(pool *pgxpool.Pool) *PostgresGazetteer {
	return &PostgresGazetteer{pool: pool}
}

func (s *PostgresGazetteer) Everywhere(ctx context.Context) (*models.Place, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+placeColumns+` FROM places WHERE type = 'everywhere'`)
	p, err := scanPlace(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("everywhere place: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("everywhere place: %w", err)
	}
	return p, nil
}

func (s *PostgresGazetteer) Resolve(ctx context.Context, name string, scope *models.Place) (geo.Resolution, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if scope == nil || scope.IsEverywhere() {
		rows, err = s.pool.Query(ctx, `
			SELECT `+placeColumns+`
			FROM places
			WHERE type = 'nation' AND (name = $1 OR abbreviated_name = $1)
			LIMIT 2`, name)
	} else {
		rows, err = s.pool.Query(ctx, `
			WITH RECURSIVE inside AS (
				SELECT id FROM places WHERE parent_id = $2
				UNION ALL
				SELECT p.id FROM places p JOIN inside i ON p.parent_id = i.id
			)
			SELECT `+placeColumns+`
			FROM places
			WHERE id IN (SELECT id FROM inside) AND (name = $1 OR abbreviated_name = $1)
			LIMIT 2`, name, scope.ID)
	}
	if err != nil {
		return geo.Resolution{}, fmt.Errorf("resolve place %q: %w", name, err)
	}
	defer rows.Close()

	var matches []*models.Place
	for rows.Next() {
		p, err := scanPlace(rows)
		if err != nil {
			return geo.Resolution{}, fmt.Errorf("scan place: %w", err)
		}
		matches = append(matches, p)
	}
	if err := rows.Err(); err != nil {
		return geo.Resolution{}, fmt.Errorf("resolve place %q: %w", name, err)
	}

	switch len(matches) {
	case 0:
		return geo.Resolution{Outcome: geo.NotFound}, nil
	case 1:
		return geo.FoundPlace(matches[0]), nil
	default:
		return geo.Resolution{Outcome: geo.Ambiguous}, nil
	}
}

// Import inserts a seed tree in one transaction and returns the number of
// places written. The everywhere sentinel is created if missing.
func (s *PostgresGazetteer) Import(ctx context.Context, nodes []Node) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO places (name, type) VALUES ('Everywhere', 'everywhere')
		ON CONFLICT (type) WHERE type = 'everywhere' DO NOTHING`); err != nil {
		return 0, fmt.Errorf("ensure everywhere place: %w", err)
	}

	count, err := importNodes(ctx, tx, nil, nodes)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return count, nil
}

func importNodes(ctx context.Context, tx pgx.Tx, parentID *int64, nodes []Node) (int, error) {
	count := 0
	for _, n := range nodes {
		var placeID int64
		var abbreviation *string
		if n.Abbreviation != "" {
			abbreviation = &n.Abbreviation
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO places (name, abbreviated_name, type, parent_id)
			VALUES ($1, $2, $3, $4)
			RETURNING id`, n.Name, abbreviation, string(n.Type), parentID).Scan(&placeID)
		if err != nil {
			return count, fmt.Errorf("insert place %q: %w", n.Name, err)
		}
		count++
		nested, err := importNodes(ctx, tx, &placeID, n.Inside)
		count += nested
		if err != nil {
			return count, err
		}
	}
	return count, nil
}

func scanPlace(row pgx.Row) (*models.Place, error) {
	var (
		p         models.Place
		placeType string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.AbbreviatedName, &placeType, &p.ParentID); err != nil {
		return nil, err
	}
	p.Type = models.PlaceType(placeType)
	return &p, nil
}
