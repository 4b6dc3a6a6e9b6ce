package storage

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/contracheck/contracheck/pkg/models"
)

// EmbeddedSegment pairs a segment with its stored vector for in-process
// similarity search.
type EmbeddedSegment struct {
	Segment   *models.Segment
	Embedding []float32
}

// SegmentRepository defines segment-level storage operations. Content is
// append-only; attaching or refreshing an embedding is the only update.
type SegmentRepository interface {
	// InsertSourceWithSegments persists a source and its segments in one
	// transaction. A failed batch persists nothing.
	InsertSourceWithSegments(ctx context.Context, source *models.Source, candidates []models.SegmentCandidate) (int64, []int64, error)
	GetByID(ctx context.Context, id int64) (*models.Segment, error)
	ListBySource(ctx context.Context, sourceID int64) ([]*models.Segment, error)
	SiblingsInWindow(ctx context.Context, sourceID, fromMS, toMS int64) ([]*models.Segment, error)
	AttachEmbedding(ctx context.Context, segmentID int64, vec []float32) error
	MissingEmbeddings(ctx context.Context) ([]*models.Segment, error)
	AllWithEmbeddings(ctx context.Context) ([]EmbeddedSegment, error)
	SearchText(ctx context.Context, query string, limit int) ([]*models.Segment, error)
	Count(ctx context.Context) (int64, error)
	Reset(ctx context.Context) error
}

// PostgresSegmentRepository implements SegmentRepository using PostgreSQL
// with pgvector. Writes are serialized per repository instance; reads may run
// concurrently with each other.
type PostgresSegmentRepository struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// NewPostgresSegmentRepository creates a new PostgresSegmentRepository.
func NewPostgresSegmentRepository(db *sql.DB) *PostgresSegmentRepository {
	return &PostgresSegmentRepository{db: db}
}

const segmentColumns = `id, source_id, text, ts_start_ms, ts_end_ms, created_at`

func scanSegment(row interface{ Scan(...any) error }) (*models.Segment, error) {
	segment := &models.Segment{}
	err := row.Scan(
		&segment.ID,
		&segment.SourceID,
		&segment.Text,
		&segment.TsStartMS,
		&segment.TsEndMS,
		&segment.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return segment, nil
}

// InsertSourceWithSegments persists the source row (upserting by URL) and all
// segment rows atomically. Returns the source id and the new segment ids in
// input order.
func (r *PostgresSegmentRepository) InsertSourceWithSegments(ctx context.Context, source *models.Source, candidates []models.SegmentCandidate) (int64, []int64, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	var sourceID int64
	var segmentIDs []int64

	err := withRetry(func() error {
		segmentIDs = segmentIDs[:0]

		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		sourceID, err = upsertSource(ctx, tx, source)
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO segments (source_id, text, ts_start_ms, ts_end_ms, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now()
		for _, c := range candidates {
			var id int64
			if err := stmt.QueryRowContext(ctx, sourceID, c.Text, c.TsStartMS, c.TsEndMS, now).Scan(&id); err != nil {
				return err
			}
			segmentIDs = append(segmentIDs, id)
		}

		return tx.Commit()
	})
	if err != nil {
		if retryableWrapped(err) {
			return 0, nil, err
		}
		return 0, nil, storageErr("insert source with segments", err)
	}

	source.ID = sourceID
	return sourceID, segmentIDs, nil
}

// GetByID retrieves a segment by its ID. Returns nil when not found.
func (r *PostgresSegmentRepository) GetByID(ctx context.Context, id int64) (*models.Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segments WHERE id = $1`

	segment, err := scanSegment(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get segment", err)
	}
	return segment, nil
}

// ListBySource retrieves all segments for a source ordered by timestamp then
// id, the order window expansion relies on.
func (r *PostgresSegmentRepository) ListBySource(ctx context.Context, sourceID int64) ([]*models.Segment, error) {
	query := `
		SELECT ` + segmentColumns + `
		FROM segments
		WHERE source_id = $1
		ORDER BY ts_start_ms ASC NULLS LAST, id ASC
	`
	return r.querySegments(ctx, "list by source", query, sourceID)
}

// SiblingsInWindow retrieves timed segments of a source whose
// [ts_start_ms, ts_end_ms] intersects [fromMS, toMS].
func (r *PostgresSegmentRepository) SiblingsInWindow(ctx context.Context, sourceID, fromMS, toMS int64) ([]*models.Segment, error) {
	query := `
		SELECT ` + segmentColumns + `
		FROM segments
		WHERE source_id = $1
		  AND ts_start_ms IS NOT NULL AND ts_end_ms IS NOT NULL
		  AND ts_start_ms <= $3 AND ts_end_ms >= $2
		ORDER BY ts_start_ms ASC, id ASC
	`
	return r.querySegments(ctx, "siblings in window", query, sourceID, fromMS, toMS)
}

// AttachEmbedding sets or overwrites the embedding vector for a segment.
func (r *PostgresSegmentRepository) AttachEmbedding(ctx context.Context, segmentID int64, vec []float32) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	err := withRetry(func() error {
		_, err := r.db.ExecContext(ctx,
			`UPDATE segments SET embedding = $2 WHERE id = $1`,
			segmentID, pgvector.NewVector(vec),
		)
		return err
	})
	if err != nil {
		if retryableWrapped(err) {
			return err
		}
		return storageErr("attach embedding", err)
	}
	return nil
}

// MissingEmbeddings retrieves segments that still lack a vector.
func (r *PostgresSegmentRepository) MissingEmbeddings(ctx context.Context) ([]*models.Segment, error) {
	query := `
		SELECT ` + segmentColumns + `
		FROM segments
		WHERE embedding IS NULL
		ORDER BY id ASC
	`
	return r.querySegments(ctx, "missing embeddings", query)
}

// AllWithEmbeddings retrieves every indexed segment with its vector, ordered
// by id for deterministic downstream ranking.
func (r *PostgresSegmentRepository) AllWithEmbeddings(ctx context.Context) ([]EmbeddedSegment, error) {
	query := `
		SELECT ` + segmentColumns + `, embedding
		FROM segments
		WHERE embedding IS NOT NULL
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr("all with embeddings", err)
	}
	defer rows.Close()

	var out []EmbeddedSegment
	for rows.Next() {
		segment := &models.Segment{}
		var vec pgvector.Vector
		err := rows.Scan(
			&segment.ID,
			&segment.SourceID,
			&segment.Text,
			&segment.TsStartMS,
			&segment.TsEndMS,
			&segment.CreatedAt,
			&vec,
		)
		if err != nil {
			return nil, storageErr("scan embedded segment", err)
		}
		segment.Embedding = vec.Slice()
		out = append(out, EmbeddedSegment{Segment: segment, Embedding: segment.Embedding})
	}

	if err = rows.Err(); err != nil {
		return nil, storageErr("all with embeddings", err)
	}
	return out, nil
}

// SearchText is the lexical fallback channel: case-insensitive substring
// match ordered by id.
func (r *PostgresSegmentRepository) SearchText(ctx context.Context, query string, limit int) ([]*models.Segment, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := `
		SELECT ` + segmentColumns + `
		FROM segments
		WHERE text ILIKE '%' || $1 || '%'
		ORDER BY id ASC
		LIMIT $2
	`
	return r.querySegments(ctx, "search text", q, query, limit)
}

// Count returns the number of stored segments.
func (r *PostgresSegmentRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM segments`).Scan(&n); err != nil {
		return 0, storageErr("count segments", err)
	}
	return n, nil
}

// Reset destroys the corpus: all segments and sources. The only sanctioned
// path for deleting ingested content.
func (r *PostgresSegmentRepository) Reset(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	err := withRetry(func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM segments`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sources`); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		if retryableWrapped(err) {
			return err
		}
		return storageErr("reset corpus", err)
	}
	return nil
}

func (r *PostgresSegmentRepository) querySegments(ctx context.Context, op, query string, args ...any) ([]*models.Segment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var segments []*models.Segment
	for rows.Next() {
		segment, err := scanSegment(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		segments = append(segments, segment)
	}

	if err = rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return segments, nil
}
