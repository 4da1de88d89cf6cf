// Package store defines the persistence boundary of the career assistant.
//
// Records are keyed by an opaque user identifier supplied by the caller; the
// store never authenticates. Four narrow interfaces cover what the service
// reads and writes:
//
//   - [Profiles]: the user profile, including resume tracks.
//   - [Applications]: the log of applied postings.
//   - [Transcripts]: archived interview transcripts, per session.
//   - [Postings]: discovered postings with their embeddings, for
//     similarity lookup.
//
// Implementations live in sub-packages: postgres (pgx + pgvector), memstore
// (in-process) and mock. Every implementation must be safe for concurrent use.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("store: not found")

// ResumeTrack is one named version line of a resume ("Backend", "Data").
type ResumeTrack struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Version   int       `json:"version"`
	Primary   bool      `json:"primary"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Profile is the user's career profile.
type Profile struct {
	UserID      string        `json:"user_id"`
	Name        string        `json:"name"`
	Email       string        `json:"email,omitempty"`
	Location    string        `json:"location,omitempty"`
	Summary     string        `json:"summary,omitempty"`
	TargetRoles []string      `json:"target_roles"`
	Skills      []string      `json:"skills"`
	Tracks      []ResumeTrack `json:"tracks"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// PrimaryTrack returns the primary resume track, falling back to the first
// one. ok is false when the profile has no tracks.
func (p Profile) PrimaryTrack() (ResumeTrack, bool) {
	for _, t := range p.Tracks {
		if t.Primary {
			return t, true
		}
	}
	if len(p.Tracks) > 0 {
		return p.Tracks[0], true
	}
	return ResumeTrack{}, false
}

// ApplicationStatus is the stage of an application.
type ApplicationStatus string

const (
	StatusApplied      ApplicationStatus = "applied"
	StatusInterviewing ApplicationStatus = "interviewing"
	StatusOffer        ApplicationStatus = "offer"
	StatusRejected     ApplicationStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case StatusApplied, StatusInterviewing, StatusOffer, StatusRejected:
		return true
	}
	return false
}

// Application is one entry of the application log.
type Application struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	PostingID string            `json:"posting_id,omitempty"`
	Title     string            `json:"title"`
	Company   string            `json:"company"`
	URL       string            `json:"url,omitempty"`
	Status    ApplicationStatus `json:"status"`
	Notes     string            `json:"notes,omitempty"`
	AppliedAt time.Time         `json:"applied_at"`
}

// TranscriptEntry is one archived line of an interview transcript.
type TranscriptEntry struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	At        time.Time `json:"at"`
}

// Posting is a discovered job posting as indexed for similarity search.
type Posting struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Company   string    `json:"company"`
	Location  string    `json:"location,omitempty"`
	URL       string    `json:"url"`
	Source    string    `json:"source,omitempty"`
	Salary    string    `json:"salary,omitempty"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	Embedding []float32 `json:"-"`
	IndexedAt time.Time `json:"indexed_at"`
}

// PostingResult pairs a posting with its cosine distance to the query vector.
// Lower is more similar.
type PostingResult struct {
	Posting  Posting
	Distance float64
}

// Profiles reads and writes user profiles.
type Profiles interface {
	// GetProfile returns the profile of userID or ErrNotFound.
	GetProfile(ctx context.Context, userID string) (Profile, error)

	// PutProfile creates or replaces the profile keyed by p.UserID.
	PutProfile(ctx context.Context, p Profile) error
}

// Applications is the append-mostly application log.
type Applications interface {
	// LogApplication records a or, when a.ID already exists, updates it.
	LogApplication(ctx context.Context, a Application) error

	// ListApplications returns the applications of userID, newest first.
	ListApplications(ctx context.Context, userID string) ([]Application, error)
}

// Transcripts archives interview transcripts.
type Transcripts interface {
	// WriteTranscript appends entries to the archive of their session.
	WriteTranscript(ctx context.Context, entries []TranscriptEntry) error

	// ListTranscript returns the entries of sessionID in order.
	ListTranscript(ctx context.Context, sessionID string) ([]TranscriptEntry, error)
}

// Postings indexes discovered postings for similarity lookup.
type Postings interface {
	// IndexPosting upserts p keyed by p.ID.
	IndexPosting(ctx context.Context, p Posting) error

	// NearestPostings returns up to topK postings closest to embedding,
	// most similar first.
	NearestPostings(ctx context.Context, embedding []float32, topK int) ([]PostingResult, error)
}

// Store bundles every persistence interface with lifecycle methods.
type Store interface {
	Profiles
	Applications
	Transcripts
	Postings

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close()
}
