// Package mock provides a test double for the jobsearch.Provider interface.
//
// Results are keyed by query keywords; unknown keywords return Default.
//
//	p := &mock.Provider{Results: map[string][]jobsearch.Posting{
//	    "go developer": {{Title: "Go Developer", URL: "https://a"}},
//	}}
package mock

import (
	"context"
	"sync"

	"github.com/AnsuryX/Autojob-Mvp/internal/jobsearch"
)

var _ jobsearch.Provider = (*Provider)(nil)

// Provider is a mock implementation of jobsearch.Provider.
type Provider struct {
	mu sync.Mutex

	// Results maps Query.Keywords to the postings returned for it.
	Results map[string][]jobsearch.Posting

	// Default is returned for keywords missing from Results.
	Default []jobsearch.Posting

	// Errs maps Query.Keywords to an error returned for it.
	Errs map[string]error

	// Err, if non-nil, is returned for every query not in Errs.
	Err error

	// Queries records every query in call order.
	Queries []jobsearch.Query
}

// Search records the call and returns the configured result.
func (p *Provider) Search(ctx context.Context, q jobsearch.Query) ([]jobsearch.Posting, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Queries = append(p.Queries, q)
	if err, ok := p.Errs[q.Keywords]; ok {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, ok := p.Results[q.Keywords]
	if !ok {
		res = p.Default
	}
	return append([]jobsearch.Posting(nil), res...), nil
}

// Calls returns a copy of the recorded queries. Thread-safe.
func (p *Provider) Calls() []jobsearch.Query {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]jobsearch.Query(nil), p.Queries...)
}
