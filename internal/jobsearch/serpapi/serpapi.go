// Package serpapi provides a [jobsearch.Provider] backed by the SerpApi
// google_jobs engine.
package serpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AnsuryX/Autojob-Mvp/internal/jobsearch"
)

const (
	defaultBaseURL = "https://serpapi.com/search.json"
	defaultLimit   = 10
	sourceName     = "google_jobs"
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithBaseURL overrides the search endpoint. Used by tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = u
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements jobsearch.Provider against SerpApi.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ jobsearch.Provider = (*Provider)(nil)

// New creates a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("serpapi: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// searchResponse mirrors the subset of the google_jobs response we read.
type searchResponse struct {
	Error       string      `json:"error"`
	JobsResults []jobResult `json:"jobs_results"`
}

type jobResult struct {
	JobID             string `json:"job_id"`
	Title             string `json:"title"`
	CompanyName       string `json:"company_name"`
	Location          string `json:"location"`
	Via               string `json:"via"`
	Description       string `json:"description"`
	Thumbnail         string `json:"thumbnail"`
	ShareLink         string `json:"share_link"`
	DetectedExtension struct {
		Salary string `json:"salary"`
	} `json:"detected_extensions"`
	ApplyOptions []struct {
		Title string `json:"title"`
		Link  string `json:"link"`
	} `json:"apply_options"`
}

// Search implements [jobsearch.Provider].
func (p *Provider) Search(ctx context.Context, q jobsearch.Query) ([]jobsearch.Posting, error) {
	if strings.TrimSpace(q.Keywords) == "" {
		return []jobsearch.Posting{}, nil
	}
	params := url.Values{}
	params.Set("engine", "google_jobs")
	params.Set("q", q.Keywords)
	if q.Location != "" {
		params.Set("location", q.Location)
	}
	params.Set("api_key", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("serpapi: search: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serpapi: search HTTP: %w", err)
	}
	defer resp.Body.Close()

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("serpapi: search: unexpected status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("serpapi: search decode: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serpapi: search: status %d: %s", resp.StatusCode, sr.Error)
	}
	// SerpApi reports an empty result set as an error string with status 200.
	if sr.Error != "" && len(sr.JobsResults) == 0 {
		return []jobsearch.Posting{}, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	out := make([]jobsearch.Posting, 0, min(limit, len(sr.JobsResults)))
	for _, j := range sr.JobsResults {
		if len(out) == limit {
			break
		}
		link := j.ShareLink
		if len(j.ApplyOptions) > 0 && j.ApplyOptions[0].Link != "" {
			link = j.ApplyOptions[0].Link
		}
		source := strings.TrimPrefix(j.Via, "via ")
		if source == "" {
			source = sourceName
		}
		posting := jobsearch.Posting{
			Title:       j.Title,
			Company:     j.CompanyName,
			Location:    j.Location,
			URL:         link,
			Source:      source,
			Salary:      j.DetectedExtension.Salary,
			Thumbnail:   j.Thumbnail,
			Description: excerpt(j.Description, 600),
		}
		posting.ID = jobsearch.PostingID(posting)
		out = append(out, posting)
	}
	return out, nil
}

func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
