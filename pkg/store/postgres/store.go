package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/AnsuryX/Autojob-Mvp/pkg/store"
)

var _ store.Store = (*Store)(nil)

// Store is the PostgreSQL-backed persistence layer. It holds a single
// [pgxpool.Pool]; all methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, registers pgvector types on every connection and
// runs [Migrate].
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping implements [store.Store].
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements [store.Store].
func (s *Store) Close() {
	s.pool.Close()
}

// GetProfile implements [store.Profiles].
func (s *Store) GetProfile(ctx context.Context, userID string) (store.Profile, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM profiles WHERE user_id = $1`, userID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Profile{}, store.ErrNotFound
	}
	if err != nil {
		return store.Profile{}, fmt.Errorf("postgres store: get profile: %w", err)
	}
	var p store.Profile
	if err := json.Unmarshal(doc, &p); err != nil {
		return store.Profile{}, fmt.Errorf("postgres store: decode profile: %w", err)
	}
	return p, nil
}

// PutProfile implements [store.Profiles].
func (s *Store) PutProfile(ctx context.Context, p store.Profile) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("postgres store: encode profile: %w", err)
	}
	const q = `
		INSERT INTO profiles (user_id, document, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
		    document   = EXCLUDED.document,
		    updated_at = EXCLUDED.updated_at`
	if _, err := s.pool.Exec(ctx, q, p.UserID, doc, p.UpdatedAt); err != nil {
		return fmt.Errorf("postgres store: put profile: %w", err)
	}
	return nil
}

// LogApplication implements [store.Applications].
func (s *Store) LogApplication(ctx context.Context, a store.Application) error {
	const q = `
		INSERT INTO applications
		    (id, user_id, posting_id, title, company, url, status, notes, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
		    status = EXCLUDED.status,
		    notes  = EXCLUDED.notes`
	_, err := s.pool.Exec(ctx, q,
		a.ID,
		a.UserID,
		a.PostingID,
		a.Title,
		a.Company,
		a.URL,
		string(a.Status),
		a.Notes,
		a.AppliedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres store: log application: %w", err)
	}
	return nil
}

// ListApplications implements [store.Applications].
func (s *Store) ListApplications(ctx context.Context, userID string) ([]store.Application, error) {
	const q = `
		SELECT id, user_id, posting_id, title, company, url, status, notes, applied_at
		FROM   applications
		WHERE  user_id = $1
		ORDER  BY applied_at DESC`
	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list applications: %w", err)
	}
	apps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Application, error) {
		var (
			a      store.Application
			status string
		)
		err := row.Scan(&a.ID, &a.UserID, &a.PostingID, &a.Title, &a.Company, &a.URL, &status, &a.Notes, &a.AppliedAt)
		a.Status = store.ApplicationStatus(status)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan applications: %w", err)
	}
	if apps == nil {
		apps = []store.Application{}
	}
	return apps, nil
}

// WriteTranscript implements [store.Transcripts]. Entries are inserted in one
// batch so a session's archive is never half written.
func (s *Store) WriteTranscript(ctx context.Context, entries []store.TranscriptEntry) error {
	if len(entries) == 0 {
		return nil
	}
	const q = `
		INSERT INTO transcript_entries (session_id, user_id, role, text, at)
		VALUES ($1, $2, $3, $4, $5)`
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(q, e.SessionID, e.UserID, e.Role, e.Text, e.At)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: write transcript: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres store: write transcript: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: write transcript: commit: %w", err)
	}
	return nil
}

// ListTranscript implements [store.Transcripts].
func (s *Store) ListTranscript(ctx context.Context, sessionID string) ([]store.TranscriptEntry, error) {
	const q = `
		SELECT session_id, user_id, role, text, at
		FROM   transcript_entries
		WHERE  session_id = $1
		ORDER  BY id`
	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list transcript: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.TranscriptEntry, error) {
		var e store.TranscriptEntry
		err := row.Scan(&e.SessionID, &e.UserID, &e.Role, &e.Text, &e.At)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan transcript: %w", err)
	}
	if entries == nil {
		entries = []store.TranscriptEntry{}
	}
	return entries, nil
}

// IndexPosting implements [store.Postings]. A posting without an embedding is
// stored with a NULL vector and never returned by NearestPostings.
func (s *Store) IndexPosting(ctx context.Context, p store.Posting) error {
	const q = `
		INSERT INTO postings
		    (id, title, company, location, url, source, salary, thumbnail, embedding, indexed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
		    title      = EXCLUDED.title,
		    company    = EXCLUDED.company,
		    location   = EXCLUDED.location,
		    url        = EXCLUDED.url,
		    source     = EXCLUDED.source,
		    salary     = EXCLUDED.salary,
		    thumbnail  = EXCLUDED.thumbnail,
		    embedding  = EXCLUDED.embedding,
		    indexed_at = EXCLUDED.indexed_at`

	var vec *pgvector.Vector
	if len(p.Embedding) > 0 {
		v := pgvector.NewVector(p.Embedding)
		vec = &v
	}
	if p.IndexedAt.IsZero() {
		p.IndexedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, q,
		p.ID, p.Title, p.Company, p.Location, p.URL, p.Source, p.Salary, p.Thumbnail, vec, p.IndexedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres store: index posting: %w", err)
	}
	return nil
}

// NearestPostings implements [store.Postings] using cosine distance.
func (s *Store) NearestPostings(ctx context.Context, embedding []float32, topK int) ([]store.PostingResult, error) {
	const q = `
		SELECT id, title, company, location, url, source, salary, thumbnail, embedding, indexed_at,
		       embedding <=> $1 AS distance
		FROM   postings
		WHERE  embedding IS NOT NULL
		ORDER  BY distance
		LIMIT  $2`
	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("postgres store: nearest postings: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.PostingResult, error) {
		var (
			r   store.PostingResult
			vec pgvector.Vector
		)
		p := &r.Posting
		if err := row.Scan(&p.ID, &p.Title, &p.Company, &p.Location, &p.URL, &p.Source,
			&p.Salary, &p.Thumbnail, &vec, &p.IndexedAt, &r.Distance); err != nil {
			return store.PostingResult{}, err
		}
		p.Embedding = vec.Slice()
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan postings: %w", err)
	}
	if results == nil {
		results = []store.PostingResult{}
	}
	return results, nil
}
