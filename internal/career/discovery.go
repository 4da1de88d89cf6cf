package career

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AnsuryX/Autojob-Mvp/internal/jobsearch"
	"github.com/AnsuryX/Autojob-Mvp/internal/task"
	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/embeddings"
	"github.com/AnsuryX/Autojob-Mvp/pkg/store"
)

// maxDiscoveryQueries bounds how many role queries one discovery runs.
const maxDiscoveryQueries = 5

// DiscoveryRequest parameterises a discovery run.
type DiscoveryRequest struct {
	// Queries overrides the profile's target roles when non-empty.
	Queries []string `json:"queries,omitempty"`

	// Location optionally restricts every query.
	Location string `json:"location,omitempty"`
}

// RankedPosting is a discovered posting with its match score in [-1, 1].
// Score is zero when no embeddings provider is configured.
type RankedPosting struct {
	jobsearch.Posting
	Score float64 `json:"score"`
}

// Discovery is the result of the most recent discovery run of a user.
type Discovery struct {
	Queries    []string        `json:"queries"`
	Postings   []RankedPosting `json:"postings"`
	Ranked     bool            `json:"ranked"`
	FinishedAt time.Time       `json:"finished_at"`
}

// StartDiscovery starts the discovery task for userID. It returns
// task.ErrAlreadyRunning when a discovery of the same user is in flight and
// ErrNoProfile when neither the request nor the profile names a role to
// search for.
func (s *Service) StartDiscovery(ctx context.Context, userID string, req DiscoveryRequest) error {
	queries := cleanQueries(req.Queries)
	var profile store.Profile
	if p, err := s.Profile(ctx, userID); err == nil {
		profile = p
		if len(queries) == 0 {
			queries = cleanQueries(p.TargetRoles)
		}
	} else if len(queries) == 0 {
		return err
	}
	if len(queries) == 0 {
		return fmt.Errorf("%w: discovery needs a query or profile target roles", ErrNoTarget)
	}

	return s.cfg.Tasks.Start(ctx, task.Key(userID, task.Discovery), func(ctx context.Context, rep *task.Reporter) error {
		return s.discover(ctx, rep, userID, profile, queries, req.Location)
	}, task.WithStartMessage("Searching job boards"), task.WithDoneMessage("Discovery complete"))
}

// LastDiscovery returns the most recent discovery result of userID.
func (s *Service) LastDiscovery(userID string) (Discovery, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.discovery[userID]
	return d, ok
}

func (s *Service) discover(ctx context.Context, rep *task.Reporter, userID string, profile store.Profile, queries []string, location string) error {
	// Searching takes the first 70% of the bar, ranking the rest.
	results := make([][]jobsearch.Posting, len(queries))
	var done int
	progress := make(chan string, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SearchConcurrency)
	for i, q := range queries {
		g.Go(func() error {
			results[i] = jobsearch.SearchOrEmpty(gctx, s.cfg.Jobs, jobsearch.Query{Keywords: q, Location: location}, s.logger)
			progress <- q
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(progress)
	}()
	for q := range progress {
		done++
		rep.Progress(done*70/len(queries), fmt.Sprintf("Searched %q (%d/%d)", q, done, len(queries)))
	}

	var all []jobsearch.Posting
	for _, r := range results {
		all = append(all, r...)
	}
	postings := jobsearch.Dedupe(all)

	rep.Progress(75, fmt.Sprintf("Ranking %d postings", len(postings)))
	ranked, vectors, ok := s.rank(ctx, profile, postings)

	rep.Progress(90, "Saving postings")
	now := s.cfg.Now()
	for i, p := range ranked {
		rec := store.Posting{
			ID:        p.ID,
			Title:     p.Title,
			Company:   p.Company,
			Location:  p.Location,
			URL:       p.URL,
			Source:    p.Source,
			Salary:    p.Salary,
			Thumbnail: p.Thumbnail,
			IndexedAt: now,
		}
		if vectors != nil {
			rec.Embedding = vectors[i]
		}
		if err := s.cfg.Store.IndexPosting(ctx, rec); err != nil {
			s.logger.Warn("career: index posting", "posting", p.ID, "err", err)
		}
	}

	s.mu.Lock()
	s.discovery[userID] = Discovery{
		Queries:    queries,
		Postings:   ranked,
		Ranked:     ok,
		FinishedAt: now,
	}
	s.mu.Unlock()

	s.logger.Info("discovery finished", "user", userID, "queries", len(queries), "postings", len(ranked), "ranked", ok)
	return nil
}

// rank orders postings by embedding similarity to the profile. vectors is
// aligned with the returned slice. When ranking is unavailable the postings
// keep their search order and ok is false.
func (s *Service) rank(ctx context.Context, profile store.Profile, postings []jobsearch.Posting) (ranked []RankedPosting, vectors [][]float32, ok bool) {
	unranked := func() []RankedPosting {
		out := make([]RankedPosting, len(postings))
		for i, p := range postings {
			out[i] = RankedPosting{Posting: p}
		}
		return out
	}
	if s.cfg.Embedder == nil || len(postings) == 0 {
		return unranked(), nil, false
	}

	texts := make([]string, 0, len(postings)+1)
	texts = append(texts, profileSummary(profile))
	for _, p := range postings {
		texts = append(texts, postingText(p))
	}
	vecs, err := s.cfg.Embedder.EmbedBatch(ctx, texts)
	if err != nil || len(vecs) != len(texts) {
		s.logger.Warn("career: embed postings", "err", err)
		if m := s.cfg.Metrics; m != nil {
			m.RecordProviderError(ctx, "embeddings", "discovery")
		}
		return unranked(), nil, false
	}

	scores := embeddings.Rank(vecs[0], vecs[1:])
	ranked = make([]RankedPosting, len(scores))
	vectors = make([][]float32, len(scores))
	for i, sc := range scores {
		ranked[i] = RankedPosting{Posting: postings[sc.Index], Score: sc.Score}
		vectors[i] = vecs[1+sc.Index]
	}
	return ranked, vectors, true
}

func postingText(p jobsearch.Posting) string {
	parts := []string{p.Title, p.Company, p.Location, p.Description}
	return strings.Join(parts, "\n")
}

func cleanQueries(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, q := range in {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
		if len(out) == maxDiscoveryQueries {
			break
		}
	}
	return out
}
