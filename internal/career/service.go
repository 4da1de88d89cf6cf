// Package career implements the long-running career operations of the
// assistant: job discovery, roadmap generation and resume improvement, plus
// the best-effort market insights and the application log.
//
// Every long operation runs through the shared [task.Store] under the id
// task.Key(userID, kind), so any surface (HTTP, SSE stream, AMQP fan-out) can
// observe its progress. A second start while the same user's operation is
// running is rejected with [task.ErrAlreadyRunning]. Results are kept per user in memory for the UI to
// fetch once the task completes.
package career

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AnsuryX/Autojob-Mvp/internal/jobsearch"
	"github.com/AnsuryX/Autojob-Mvp/internal/observe"
	"github.com/AnsuryX/Autojob-Mvp/internal/resume"
	"github.com/AnsuryX/Autojob-Mvp/internal/task"
	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/embeddings"
	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/llm"
	"github.com/AnsuryX/Autojob-Mvp/pkg/store"
)

// ErrNoProfile is returned when an operation needs a profile the user has not
// created yet.
var ErrNoProfile = errors.New("career: profile not found")

// ErrNoTarget is returned when neither the request nor the profile names a
// role to work toward.
var ErrNoTarget = errors.New("career: no target role")

// RoadmapCadence configures the simulated progress of roadmap generation.
type RoadmapCadence struct {
	Every   time.Duration
	Step    int
	Ceiling int
}

// DefaultRoadmapCadence advances by 10 every 1.5s up to 90.
var DefaultRoadmapCadence = RoadmapCadence{Every: 1500 * time.Millisecond, Step: 10, Ceiling: 90}

// Config holds the dependencies of a [Service].
type Config struct {
	// Store persists profiles, applications, transcripts and postings. Required.
	Store store.Store

	// Tasks tracks long-running operations. Required.
	Tasks *task.Store

	// LLM powers roadmap, resume and insight generation. Required.
	LLM llm.Provider

	// Jobs searches job boards. Nil yields empty discoveries.
	Jobs jobsearch.Provider

	// Embedder ranks discovered postings against the profile. Optional.
	Embedder embeddings.Provider

	// Archive keeps interview transcripts as objects. Optional.
	Archive *resume.Archive

	// Roadmap overrides DefaultRoadmapCadence when Every is non-zero.
	Roadmap RoadmapCadence

	// SearchConcurrency bounds parallel job-board queries. Zero uses 3.
	SearchConcurrency int

	// LLMTimeout bounds each completion. Zero uses 90s.
	LLMTimeout time.Duration

	Logger  *slog.Logger
	Metrics *observe.Metrics
	Now     func() time.Time
	NewID   func() string
}

// Service runs the career operations. All methods are safe for concurrent use.
type Service struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.RWMutex
	discovery map[string]Discovery
	roadmaps  map[string]Roadmap
	insights  map[string]Insights
	improved  map[string]Improvement

	cadenceMu sync.RWMutex
	cadence   RoadmapCadence
}

// NewService validates cfg and returns a Service.
func NewService(cfg Config) (*Service, error) {
	var errs []error
	if cfg.Store == nil {
		errs = append(errs, errors.New("store is required"))
	}
	if cfg.Tasks == nil {
		errs = append(errs, errors.New("task store is required"))
	}
	if cfg.LLM == nil {
		errs = append(errs, errors.New("llm provider is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("career: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.SearchConcurrency <= 0 {
		cfg.SearchConcurrency = 3
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 90 * time.Second
	}
	cadence := DefaultRoadmapCadence
	if cfg.Roadmap.Every > 0 {
		cadence = cfg.Roadmap
	}
	return &Service{
		cfg:       cfg,
		logger:    cfg.Logger,
		discovery: make(map[string]Discovery),
		roadmaps:  make(map[string]Roadmap),
		insights:  make(map[string]Insights),
		improved:  make(map[string]Improvement),
		cadence:   cadence,
	}, nil
}

// SetRoadmapCadence changes the simulated roadmap progress for future runs.
// The config watcher calls it on reload.
func (s *Service) SetRoadmapCadence(c RoadmapCadence) {
	if c.Every <= 0 {
		return
	}
	s.cadenceMu.Lock()
	defer s.cadenceMu.Unlock()
	s.cadence = c
}

func (s *Service) roadmapCadence() RoadmapCadence {
	s.cadenceMu.RLock()
	defer s.cadenceMu.RUnlock()
	return s.cadence
}

// Profile loads the profile of userID, mapping a missing record to
// ErrNoProfile.
func (s *Service) Profile(ctx context.Context, userID string) (store.Profile, error) {
	p, err := s.cfg.Store.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Profile{}, ErrNoProfile
	}
	if err != nil {
		return store.Profile{}, fmt.Errorf("career: load profile: %w", err)
	}
	return p, nil
}

// complete runs one structured completion with the service timeout and
// records its latency.
func complete[T any](ctx context.Context, s *Service, kind string, req llm.CompletionRequest) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()

	start := time.Now()
	out, err := llm.CompleteJSON[T](ctx, s.cfg.LLM, req)
	if m := s.cfg.Metrics; m != nil {
		m.LLMDuration.Record(ctx, time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
			m.RecordProviderError(ctx, "llm", kind)
		}
		m.RecordProviderRequest(ctx, "llm", kind, status)
	}
	return out, err
}

// profileSummary renders the parts of p every prompt needs.
func profileSummary(p store.Profile) string {
	var sb strings.Builder
	if p.Name != "" {
		fmt.Fprintf(&sb, "Name: %s\n", p.Name)
	}
	if p.Location != "" {
		fmt.Fprintf(&sb, "Location: %s\n", p.Location)
	}
	if len(p.TargetRoles) > 0 {
		fmt.Fprintf(&sb, "Target roles: %s\n", strings.Join(p.TargetRoles, ", "))
	}
	if len(p.Skills) > 0 {
		fmt.Fprintf(&sb, "Skills: %s\n", strings.Join(p.Skills, ", "))
	}
	if p.Summary != "" {
		fmt.Fprintf(&sb, "Summary: %s\n", p.Summary)
	}
	if t, ok := p.PrimaryTrack(); ok && t.Content != "" {
		fmt.Fprintf(&sb, "Resume (%s):\n%s\n", t.Name, t.Content)
	}
	return sb.String()
}
