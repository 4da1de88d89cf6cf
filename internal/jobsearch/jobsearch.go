// Package jobsearch defines the job-board search boundary.
//
// A [Provider] turns a keyword query into discovered postings. Search is a
// best-effort enrichment: callers use [SearchOrEmpty], which degrades every
// failure to an empty list.
package jobsearch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"log/slog"
	"strings"
)

// Query is one job-board search.
type Query struct {
	// Keywords is the free-text query, usually a target role.
	Keywords string

	// Location optionally restricts results ("Berlin", "Remote").
	Location string

	// Limit caps the number of results. Zero uses the provider default.
	Limit int
}

// Posting is one discovered job posting.
type Posting struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Company   string `json:"company"`
	Location  string `json:"location,omitempty"`
	URL       string `json:"url"`
	Source    string `json:"source,omitempty"`
	Salary    string `json:"salary,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`

	// Description is a short excerpt used for ranking. It is not persisted.
	Description string `json:"description,omitempty"`
}

// Provider searches a job board.
type Provider interface {
	Search(ctx context.Context, q Query) ([]Posting, error)
}

// SearchOrEmpty runs q against p and returns an empty, non-nil list on any
// failure, including a nil provider. Failures are logged at warn level.
func SearchOrEmpty(ctx context.Context, p Provider, q Query, logger *slog.Logger) []Posting {
	if p == nil {
		return []Posting{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	postings, err := p.Search(ctx, q)
	if err != nil {
		logger.Warn("job search failed", "query", q.Keywords, "location", q.Location, "err", err)
		return []Posting{}
	}
	if postings == nil {
		return []Posting{}
	}
	return postings
}

// PostingID derives a stable id from a posting URL, or from title and company
// when the URL is empty.
func PostingID(p Posting) string {
	key := strings.TrimSpace(p.URL)
	if key == "" {
		key = strings.ToLower(strings.TrimSpace(p.Title) + "|" + strings.TrimSpace(p.Company))
	}
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:8])
}

// Dedupe drops postings whose id was already seen, keeping first occurrences
// in order. Missing ids are filled in with PostingID.
func Dedupe(postings []Posting) []Posting {
	seen := make(map[string]struct{}, len(postings))
	out := make([]Posting, 0, len(postings))
	for _, p := range postings {
		if p.ID == "" {
			p.ID = PostingID(p)
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}
