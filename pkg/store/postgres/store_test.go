package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AnsuryX/Autojob-Mvp/pkg/store"
	"github.com/AnsuryX/Autojob-Mvp/pkg/store/postgres"
)

const testEmbeddingDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if AUTOJOB_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("AUTOJOB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AUTOJOB_TEST_POSTGRES_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] on a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS postings CASCADE",
		"DROP TABLE IF EXISTS transcript_entries CASCADE",
		"DROP TABLE IF EXISTS applications CASCADE",
		"DROP TABLE IF EXISTS profiles CASCADE",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema: %v", err)
		}
	}
	pool.Close()

	s, err := postgres.NewStore(ctx, dsn, testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestMigrate_Idempotent(t *testing.T) {
	newTestStore(t)
	// A second store on the same schema runs Migrate again.
	s2, err := postgres.NewStore(context.Background(), testDSN(t), testEmbeddingDim)
	if err != nil {
		t.Fatalf("second NewStore: %v", err)
	}
	s2.Close()
}

func TestProfiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetProfile(ctx, "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetProfile on empty store: err = %v, want ErrNotFound", err)
	}

	p := store.Profile{
		UserID:      "u1",
		Name:        "Ada",
		TargetRoles: []string{"Backend Engineer"},
		Tracks:      []store.ResumeTrack{{ID: "t1", Name: "Backend", Content: "Go, SQL", Version: 1, Primary: true}},
	}
	if err := s.PutProfile(ctx, p); err != nil {
		t.Fatalf("PutProfile: %v", err)
	}
	p.Name = "Ada L."
	if err := s.PutProfile(ctx, p); err != nil {
		t.Fatalf("PutProfile (update): %v", err)
	}

	got, err := s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.Name != "Ada L." || len(got.Tracks) != 1 || got.Tracks[0].Content != "Go, SQL" {
		t.Errorf("GetProfile = %+v", got)
	}
}

func TestApplications(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, title := range []string{"First", "Second"} {
		err := s.LogApplication(ctx, store.Application{
			ID:        title,
			UserID:    "u1",
			Title:     title,
			Status:    store.StatusApplied,
			AppliedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("LogApplication(%s): %v", title, err)
		}
	}
	if err := s.LogApplication(ctx, store.Application{ID: "First", UserID: "u1", Title: "First", Status: store.StatusOffer, AppliedAt: base}); err != nil {
		t.Fatalf("LogApplication (update): %v", err)
	}

	apps, err := s.ListApplications(ctx, "u1")
	if err != nil {
		t.Fatalf("ListApplications: %v", err)
	}
	if len(apps) != 2 || apps[0].Title != "Second" {
		t.Fatalf("ListApplications = %+v, want newest first", apps)
	}
	if apps[1].Status != store.StatusOffer {
		t.Errorf("updated status = %q, want offer", apps[1].Status)
	}

	empty, err := s.ListApplications(ctx, "nobody")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("ListApplications(nobody) = %v, %v; want empty non-nil", empty, err)
	}
}

func TestTranscripts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	entries := []store.TranscriptEntry{
		{SessionID: "s1", UserID: "u1", Role: "model", Text: "Hello.", At: now},
		{SessionID: "s1", UserID: "u1", Role: "user", Text: "Hi!", At: now.Add(time.Second)},
	}
	if err := s.WriteTranscript(ctx, entries); err != nil {
		t.Fatalf("WriteTranscript: %v", err)
	}
	got, err := s.ListTranscript(ctx, "s1")
	if err != nil {
		t.Fatalf("ListTranscript: %v", err)
	}
	if len(got) != 2 || got[0].Text != "Hello." || got[1].Role != "user" {
		t.Errorf("ListTranscript = %+v", got)
	}
}

func TestPostings_Nearest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	postings := []store.Posting{
		{ID: "go", Title: "Go Engineer", URL: "https://a", Embedding: []float32{1, 0, 0, 0}},
		{ID: "py", Title: "Python Engineer", URL: "https://b", Embedding: []float32{0, 1, 0, 0}},
		{ID: "none", Title: "No Vector", URL: "https://c"},
	}
	for _, p := range postings {
		if err := s.IndexPosting(ctx, p); err != nil {
			t.Fatalf("IndexPosting(%s): %v", p.ID, err)
		}
	}

	got, err := s.NearestPostings(ctx, []float32{0.9, 0.1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("NearestPostings: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("NearestPostings returned %d results, want 2", len(got))
	}
	if got[0].Posting.ID != "go" || got[0].Distance >= got[1].Distance {
		t.Errorf("NearestPostings order = %s (%f), %s (%f)",
			got[0].Posting.ID, got[0].Distance, got[1].Posting.ID, got[1].Distance)
	}
}
