// Package postgres provides a PostgreSQL-backed implementation of
// [store.Store].
//
// Profiles are stored as JSONB documents, the application log and transcript
// archive as plain tables, and postings carry a pgvector embedding column
// with an HNSW index for nearest-neighbour lookup. The pgvector extension must
// be available in the target database; [Migrate] installs it via CREATE
// EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	s, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer s.Close()
//
//	_ = s.PutProfile(ctx, profile)
//	near, _ := s.NearestPostings(ctx, vec, 10)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlProfiles = `
CREATE TABLE IF NOT EXISTS profiles (
    user_id     TEXT         PRIMARY KEY,
    document    JSONB        NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

const ddlApplications = `
CREATE TABLE IF NOT EXISTS applications (
    id          TEXT         PRIMARY KEY,
    user_id     TEXT         NOT NULL,
    posting_id  TEXT         NOT NULL DEFAULT '',
    title       TEXT         NOT NULL,
    company     TEXT         NOT NULL DEFAULT '',
    url         TEXT         NOT NULL DEFAULT '',
    status      TEXT         NOT NULL,
    notes       TEXT         NOT NULL DEFAULT '',
    applied_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_applications_user_applied
    ON applications (user_id, applied_at DESC);
`

const ddlTranscripts = `
CREATE TABLE IF NOT EXISTS transcript_entries (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    user_id     TEXT         NOT NULL DEFAULT '',
    role        TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    at          TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcript_entries_session
    ON transcript_entries (session_id, id);
`

// ddlPostings returns the postings DDL with the embedding dimension
// substituted. The dimension is baked into the column type at creation time.
func ddlPostings(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS postings (
    id          TEXT         PRIMARY KEY,
    title       TEXT         NOT NULL,
    company     TEXT         NOT NULL DEFAULT '',
    location    TEXT         NOT NULL DEFAULT '',
    url         TEXT         NOT NULL DEFAULT '',
    source      TEXT         NOT NULL DEFAULT '',
    salary      TEXT         NOT NULL DEFAULT '',
    thumbnail   TEXT         NOT NULL DEFAULT '',
    embedding   vector(%d),
    indexed_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_postings_embedding
    ON postings USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates every table, index and extension the store needs. It is
// idempotent and safe to call on every start.
//
// embeddingDimensions must match the embedding model (1536 for OpenAI
// text-embedding-3-small, 768 for nomic-embed-text). Changing it after the
// first migration requires a manual schema change.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlProfiles,
		ddlApplications,
		ddlTranscripts,
		ddlPostings(embeddingDimensions),
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
