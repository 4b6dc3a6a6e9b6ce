package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates the relational layout the engine relies on: one row
// per source, one row per segment with nullable timestamps and a nullable
// embedding vector, sources 1-N segments. Safe to run repeatedly.
func EnsureSchema(ctx context.Context, db *sql.DB, embeddingDim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sources (
			id BIGSERIAL PRIMARY KEY,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			url TEXT,
			media_path TEXT,
			published_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS sources_url_idx ON sources (url) WHERE url <> ''`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS segments (
			id BIGSERIAL PRIMARY KEY,
			source_id BIGINT NOT NULL REFERENCES sources(id),
			text TEXT NOT NULL,
			ts_start_ms BIGINT,
			ts_end_ms BIGINT,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL
		)`, embeddingDim),
		`CREATE INDEX IF NOT EXISTS segments_source_ts_idx ON segments (source_id, ts_start_ms, id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return storageErr("ensure schema", err)
		}
	}
	return nil
}
