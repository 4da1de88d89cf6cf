// Package memstore provides an in-process [store.Store]. It is the default
// backend when no database is configured; nothing survives a restart.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/embeddings"
	"github.com/AnsuryX/Autojob-Mvp/pkg/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps every record in maps guarded by one mutex.
type Store struct {
	mu           sync.RWMutex
	profiles     map[string]store.Profile
	applications map[string][]store.Application
	transcripts  map[string][]store.TranscriptEntry
	postings     map[string]store.Posting
}

// New returns an empty store.
func New() *Store {
	return &Store{
		profiles:     make(map[string]store.Profile),
		applications: make(map[string][]store.Application),
		transcripts:  make(map[string][]store.TranscriptEntry),
		postings:     make(map[string]store.Posting),
	}
}

// Ping implements [store.Store]. It always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close implements [store.Store].
func (s *Store) Close() {}

// GetProfile implements [store.Profiles].
func (s *Store) GetProfile(_ context.Context, userID string) (store.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return store.Profile{}, store.ErrNotFound
	}
	return cloneProfile(p), nil
}

// PutProfile implements [store.Profiles].
func (s *Store) PutProfile(_ context.Context, p store.Profile) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = cloneProfile(p)
	return nil
}

// LogApplication implements [store.Applications].
func (s *Store) LogApplication(_ context.Context, a store.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	apps := s.applications[a.UserID]
	for i := range apps {
		if apps[i].ID == a.ID {
			apps[i].Status = a.Status
			apps[i].Notes = a.Notes
			return nil
		}
	}
	s.applications[a.UserID] = append(apps, a)
	return nil
}

// ListApplications implements [store.Applications].
func (s *Store) ListApplications(_ context.Context, userID string) ([]store.Application, error) {
	s.mu.RLock()
	out := slices.Clone(s.applications[userID])
	s.mu.RUnlock()
	if out == nil {
		out = []store.Application{}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AppliedAt.After(out[j].AppliedAt) })
	return out, nil
}

// WriteTranscript implements [store.Transcripts].
func (s *Store) WriteTranscript(_ context.Context, entries []store.TranscriptEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.transcripts[e.SessionID] = append(s.transcripts[e.SessionID], e)
	}
	return nil
}

// ListTranscript implements [store.Transcripts].
func (s *Store) ListTranscript(_ context.Context, sessionID string) ([]store.TranscriptEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.transcripts[sessionID])
	if out == nil {
		out = []store.TranscriptEntry{}
	}
	return out, nil
}

// IndexPosting implements [store.Postings].
func (s *Store) IndexPosting(_ context.Context, p store.Posting) error {
	if p.IndexedAt.IsZero() {
		p.IndexedAt = time.Now().UTC()
	}
	p.Embedding = slices.Clone(p.Embedding)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postings[p.ID] = p
	return nil
}

// NearestPostings implements [store.Postings] with a linear cosine scan.
// Distance is 1 - cosine similarity, matching pgvector's <=> operator.
func (s *Store) NearestPostings(_ context.Context, embedding []float32, topK int) ([]store.PostingResult, error) {
	s.mu.RLock()
	out := make([]store.PostingResult, 0, len(s.postings))
	for _, p := range s.postings {
		if len(p.Embedding) == 0 {
			continue
		}
		out = append(out, store.PostingResult{
			Posting:  p,
			Distance: 1 - embeddings.Cosine(embedding, p.Embedding),
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Posting.ID < out[j].Posting.ID
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func cloneProfile(p store.Profile) store.Profile {
	p.TargetRoles = slices.Clone(p.TargetRoles)
	p.Skills = slices.Clone(p.Skills)
	p.Tracks = slices.Clone(p.Tracks)
	return p
}
