package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/contracheck/contracheck/pkg/models"
)

// SourceRepository defines source-level storage operations. Sources are
// append-only: re-ingesting a URL refreshes metadata on the existing row,
// nothing else is ever updated.
type SourceRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Source, error)
	List(ctx context.Context) ([]*models.Source, error)
}

// PostgresSourceRepository implements SourceRepository using PostgreSQL.
type PostgresSourceRepository struct {
	db *sql.DB
}

// NewPostgresSourceRepository creates a new PostgresSourceRepository.
func NewPostgresSourceRepository(db *sql.DB) *PostgresSourceRepository {
	return &PostgresSourceRepository{db: db}
}

// GetByID retrieves a source by its ID.
func (r *PostgresSourceRepository) GetByID(ctx context.Context, id int64) (*models.Source, error) {
	query := `
		SELECT id, type, title, COALESCE(url, ''), COALESCE(media_path, ''), published_at, created_at
		FROM sources
		WHERE id = $1
	`

	source := &models.Source{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&source.ID,
		&source.Type,
		&source.Title,
		&source.URL,
		&source.MediaPath,
		&source.PublishedAt,
		&source.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, storageErr("get source", err)
	}

	return source, nil
}

// List retrieves all sources, newest first.
func (r *PostgresSourceRepository) List(ctx context.Context) ([]*models.Source, error) {
	query := `
		SELECT id, type, title, COALESCE(url, ''), COALESCE(media_path, ''), published_at, created_at
		FROM sources
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr("list sources", err)
	}
	defer rows.Close()

	var sources []*models.Source
	for rows.Next() {
		source := &models.Source{}
		err := rows.Scan(
			&source.ID,
			&source.Type,
			&source.Title,
			&source.URL,
			&source.MediaPath,
			&source.PublishedAt,
			&source.CreatedAt,
		)
		if err != nil {
			return nil, storageErr("scan source", err)
		}
		sources = append(sources, source)
	}

	if err = rows.Err(); err != nil {
		return nil, storageErr("list sources", err)
	}

	return sources, nil
}

// upsertSource inserts the source row inside tx, or refreshes metadata when a
// row with the same non-empty URL already exists. Returns the source id.
func upsertSource(ctx context.Context, tx *sql.Tx, source *models.Source) (int64, error) {
	if source.CreatedAt.IsZero() {
		source.CreatedAt = time.Now()
	}

	if source.URL != "" {
		var existing int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM sources WHERE url = $1`, source.URL).Scan(&existing)
		if err == nil {
			_, err = tx.ExecContext(ctx, `
				UPDATE sources SET type = $2, title = $3, media_path = $4, published_at = $5
				WHERE id = $1
			`, existing, source.Type, source.Title, source.MediaPath, source.PublishedAt)
			if err != nil {
				return 0, err
			}
			return existing, nil
		}
		if err != sql.ErrNoRows {
			return 0, err
		}
	}

	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO sources (type, title, url, media_path, published_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, source.Type, source.Title, source.URL, source.MediaPath, source.PublishedAt, source.CreatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}
