// Package mock provides a call-recording test double for [store.Store].
//
// Store keeps records in memory like memstore, records every invocation for
// assertion, and lets tests inject per-method errors:
//
//	s := mock.New()
//	s.Err["PutProfile"] = errors.New("disk full")
//
//	// inject s into the system under test …
//
//	if got := s.CallCount("WriteTranscript"); got != 1 {
//	    t.Errorf("expected 1 WriteTranscript call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/AnsuryX/Autojob-Mvp/pkg/store"
	"github.com/AnsuryX/Autojob-Mvp/pkg/store/memstore"
)

var _ store.Store = (*Store)(nil)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable test double for [store.Store].
type Store struct {
	mu    sync.Mutex
	calls []Call
	data  *memstore.Store

	// Err maps a method name to the error it returns. A matching method does
	// not touch the data.
	Err map[string]error
}

// New returns an empty mock store.
func New() *Store {
	return &Store{data: memstore.New(), Err: make(map[string]error)}
}

func (m *Store) record(method string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: method, Args: args})
	return m.Err[method]
}

// SetErr sets the error returned by method. Thread-safe.
func (m *Store) SetErr(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err[method] = err
}

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls without altering data or errors.
func (m *Store) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Ping implements [store.Store].
func (m *Store) Ping(ctx context.Context) error {
	return m.record("Ping")
}

// Close implements [store.Store].
func (m *Store) Close() {
	_ = m.record("Close")
}

// GetProfile implements [store.Profiles].
func (m *Store) GetProfile(ctx context.Context, userID string) (store.Profile, error) {
	if err := m.record("GetProfile", userID); err != nil {
		return store.Profile{}, err
	}
	return m.data.GetProfile(ctx, userID)
}

// PutProfile implements [store.Profiles].
func (m *Store) PutProfile(ctx context.Context, p store.Profile) error {
	if err := m.record("PutProfile", p); err != nil {
		return err
	}
	return m.data.PutProfile(ctx, p)
}

// LogApplication implements [store.Applications].
func (m *Store) LogApplication(ctx context.Context, a store.Application) error {
	if err := m.record("LogApplication", a); err != nil {
		return err
	}
	return m.data.LogApplication(ctx, a)
}

// ListApplications implements [store.Applications].
func (m *Store) ListApplications(ctx context.Context, userID string) ([]store.Application, error) {
	if err := m.record("ListApplications", userID); err != nil {
		return nil, err
	}
	return m.data.ListApplications(ctx, userID)
}

// WriteTranscript implements [store.Transcripts].
func (m *Store) WriteTranscript(ctx context.Context, entries []store.TranscriptEntry) error {
	if err := m.record("WriteTranscript", entries); err != nil {
		return err
	}
	return m.data.WriteTranscript(ctx, entries)
}

// ListTranscript implements [store.Transcripts].
func (m *Store) ListTranscript(ctx context.Context, sessionID string) ([]store.TranscriptEntry, error) {
	if err := m.record("ListTranscript", sessionID); err != nil {
		return nil, err
	}
	return m.data.ListTranscript(ctx, sessionID)
}

// IndexPosting implements [store.Postings].
func (m *Store) IndexPosting(ctx context.Context, p store.Posting) error {
	if err := m.record("IndexPosting", p); err != nil {
		return err
	}
	return m.data.IndexPosting(ctx, p)
}

// NearestPostings implements [store.Postings].
func (m *Store) NearestPostings(ctx context.Context, embedding []float32, topK int) ([]store.PostingResult, error) {
	if err := m.record("NearestPostings", embedding, topK); err != nil {
		return nil, err
	}
	return m.data.NearestPostings(ctx, embedding, topK)
}
