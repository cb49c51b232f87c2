package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"libreg/internal/library/models"
	id "libreg/pkg/domain"
	"libreg/pkg/platform/sentinel"
	txcontext "libreg/pkg/platform/tx"
)

const libraryColumns = `
	id, name, description, opds_url, web_url, logo, short_name, shared_secret,
	stage, anonymous_access, online_registration, created_at, updated_at`

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresStore persists libraries and their associations in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed library store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) queryer(ctx context.Context) queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) FindByOPDSURL(ctx context.Context, opdsURL string) (*models.Library, error) {
	return s.find(ctx, `SELECT `+libraryColumns+` FROM libraries WHERE opds_url = $1`, opdsURL)
}

func (s *PostgresStore) FindByID(ctx context.Context, libraryID id.LibraryID) (*models.Library, error) {
	return s.find(ctx, `SELECT `+libraryColumns+` FROM libraries WHERE id = $1`, uuid.UUID(libraryID))
}

func (s *PostgresStore) find(ctx context.Context, query string, arg any) (*models.Library, error) {
	q := s.queryer(ctx)
	lib, err := scanLibrary(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find library: %w", err)
	}
	if err := loadAssociations(ctx, q, lib); err != nil {
		return nil, err
	}
	return lib, nil
}

// Save upserts the library row and synchronises its associations in one
// transaction. Rows that survive reconciliation keep their IDs.
func (s *PostgresStore) Save(ctx context.Context, lib *models.Library) error {
	if lib == nil {
		return fmt.Errorf("library is required")
	}
	return txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := upsertLibrary(ctx, tx, lib); err != nil {
			return err
		}
		if err := syncServiceAreas(ctx, tx, lib); err != nil {
			return err
		}
		if err := syncAudiences(ctx, tx, lib); err != nil {
			return err
		}
		return syncCollectionSummaries(ctx, tx, lib)
	})
}

func upsertLibrary(ctx context.Context, tx *sql.Tx, lib *models.Library) error {
	query := `
		INSERT INTO libraries (` + libraryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			opds_url = EXCLUDED.opds_url,
			web_url = EXCLUDED.web_url,
			logo = EXCLUDED.logo,
			short_name = EXCLUDED.short_name,
			shared_secret = EXCLUDED.shared_secret,
			stage = EXCLUDED.stage,
			anonymous_access = EXCLUDED.anonymous_access,
			online_registration = EXCLUDED.online_registration,
			updated_at = EXCLUDED.updated_at
	`
	_, err := tx.ExecContext(ctx, query,
		uuid.UUID(lib.ID),
		lib.Name,
		nullString(lib.Description),
		lib.OPDSURL,
		nullString(lib.WebURL),
		nullString(lib.Logo),
		nullString(lib.ShortName),
		nullString(lib.SharedSecret),
		string(lib.Stage),
		lib.AnonymousAccess,
		lib.OnlineRegistration,
		lib.CreatedAt,
		lib.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("opds url %s: %w", lib.OPDSURL, sentinel.ErrConflict)
		}
		return fmt.Errorf("upsert library: %w", err)
	}
	return nil
}

func syncServiceAreas(ctx context.Context, tx *sql.Tx, lib *models.Library) error {
	kept := []int64{}
	for _, area := range lib.ServiceAreas {
		if area.ID != 0 {
			kept = append(kept, area.ID)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM service_areas WHERE library_id = $1 AND NOT (id = ANY($2))`,
		uuid.UUID(lib.ID), pq.Array(kept),
	); err != nil {
		return fmt.Errorf("prune service areas: %w", err)
	}
	for i := range lib.ServiceAreas {
		area := &lib.ServiceAreas[i]
		if area.ID != 0 {
			continue
		}
		err := tx.QueryRowContext(ctx,
			`INSERT INTO service_areas (library_id, place_id, type) VALUES ($1, $2, $3) RETURNING id`,
			uuid.UUID(lib.ID), area.PlaceID, string(area.Type),
		).Scan(&area.ID)
		if err != nil {
			return fmt.Errorf("insert service area: %w", err)
		}
	}
	return nil
}

func syncAudiences(ctx context.Context, tx *sql.Tx, lib *models.Library) error {
	names := make([]string, 0, len(lib.Audiences))
	for _, a := range lib.Audiences {
		names = append(names, string(a))
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM audiences WHERE library_id = $1 AND NOT (name = ANY($2))`,
		uuid.UUID(lib.ID), pq.Array(names),
	); err != nil {
		return fmt.Errorf("prune audiences: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audiences (library_id, name)
		SELECT $1, unnest($2::text[])
		ON CONFLICT (library_id, name) DO NOTHING`,
		uuid.UUID(lib.ID), pq.Array(names),
	); err != nil {
		return fmt.Errorf("insert audiences: %w", err)
	}
	return nil
}

func syncCollectionSummaries(ctx context.Context, tx *sql.Tx, lib *models.Library) error {
	kept := []int64{}
	for _, summary := range lib.CollectionSummaries {
		if summary.ID != 0 {
			kept = append(kept, summary.ID)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM collection_summaries WHERE library_id = $1 AND NOT (id = ANY($2))`,
		uuid.UUID(lib.ID), pq.Array(kept),
	); err != nil {
		return fmt.Errorf("prune collection summaries: %w", err)
	}
	for i := range lib.CollectionSummaries {
		summary := &lib.CollectionSummaries[i]
		if summary.ID != 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE collection_summaries SET size = $2 WHERE id = $1`,
				summary.ID, summary.Size,
			); err != nil {
				return fmt.Errorf("update collection summary: %w", err)
			}
			continue
		}
		err := tx.QueryRowContext(ctx,
			`INSERT INTO collection_summaries (library_id, language, size) VALUES ($1, $2, $3) RETURNING id`,
			uuid.UUID(lib.ID), nullString(summary.Language), summary.Size,
		).Scan(&summary.ID)
		if err != nil {
			return fmt.Errorf("insert collection summary: %w", err)
		}
	}
	return nil
}

func loadAssociations(ctx context.Context, q queryer, lib *models.Library) error {
	libraryID := uuid.UUID(lib.ID)

	rows, err := q.QueryContext(ctx,
		`SELECT id, place_id, type FROM service_areas WHERE library_id = $1 ORDER BY id`, libraryID)
	if err != nil {
		return fmt.Errorf("load service areas: %w", err)
	}
	for rows.Next() {
		var (
			area     models.ServiceArea
			areaType string
		)
		if err := rows.Scan(&area.ID, &area.PlaceID, &areaType); err != nil {
			rows.Close()
			return fmt.Errorf("scan service area: %w", err)
		}
		area.Type = models.AreaType(areaType)
		lib.ServiceAreas = append(lib.ServiceAreas, area)
	}
	if err := closeRows(rows); err != nil {
		return fmt.Errorf("load service areas: %w", err)
	}

	rows, err = q.QueryContext(ctx,
		`SELECT name FROM audiences WHERE library_id = $1 ORDER BY name`, libraryID)
	if err != nil {
		return fmt.Errorf("load audiences: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("scan audience: %w", err)
		}
		lib.Audiences = append(lib.Audiences, models.Audience(name))
	}
	if err := closeRows(rows); err != nil {
		return fmt.Errorf("load audiences: %w", err)
	}

	rows, err = q.QueryContext(ctx,
		`SELECT id, COALESCE(language, ''), size FROM collection_summaries WHERE library_id = $1 ORDER BY id`, libraryID)
	if err != nil {
		return fmt.Errorf("load collection summaries: %w", err)
	}
	for rows.Next() {
		var summary models.CollectionSummary
		if err := rows.Scan(&summary.ID, &summary.Language, &summary.Size); err != nil {
			rows.Close()
			return fmt.Errorf("scan collection summary: %w", err)
		}
		lib.CollectionSummaries = append(lib.CollectionSummaries, summary)
	}
	if err := closeRows(rows); err != nil {
		return fmt.Errorf("load collection summaries: %w", err)
	}
	return nil
}

func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return err
}

func scanLibrary(row *sql.Row) (*models.Library, error) {
	var (
		lib       models.Library
		libraryID uuid.UUID
		stage     string
	)
	var description, webURL, logo, shortName, secret sql.NullString
	err := row.Scan(
		&libraryID,
		&lib.Name,
		&description,
		&lib.OPDSURL,
		&webURL,
		&logo,
		&shortName,
		&secret,
		&stage,
		&lib.AnonymousAccess,
		&lib.OnlineRegistration,
		&lib.CreatedAt,
		&lib.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	lib.ID = id.LibraryID(libraryID)
	lib.Stage = models.Stage(stage)
	lib.Description = description.String
	lib.WebURL = webURL.String
	lib.Logo = logo.String
	lib.ShortName = shortName.String
	lib.SharedSecret = secret.String
	return &lib, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
