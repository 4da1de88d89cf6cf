package career

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AnsuryX/Autojob-Mvp/internal/task"
	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/llm"
)

// Milestone is one step of a career roadmap.
type Milestone struct {
	Title  string   `json:"title"`
	Weeks  int      `json:"weeks"`
	Skills []string `json:"skills"`
}

// Roadmap is a generated learning plan toward a goal role. A roadmap whose
// generation failed to parse is empty with Degraded set.
type Roadmap struct {
	Goal        string      `json:"goal"`
	Summary     string      `json:"summary"`
	Milestones  []Milestone `json:"milestones"`
	Degraded    bool        `json:"degraded,omitempty"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// RoadmapRequest parameterises roadmap generation.
type RoadmapRequest struct {
	// Goal is the target role. Empty uses the profile's first target role.
	Goal string `json:"goal,omitempty"`
}

var roadmapFormat = &llm.ResponseFormat{
	Name:        "career_roadmap",
	Description: "A short summary and an ordered list of milestones toward the goal role.",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary": map[string]any{"type": "string"},
			"milestones": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":  map[string]any{"type": "string"},
						"weeks":  map[string]any{"type": "integer"},
						"skills": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
					"required":             []string{"title", "weeks", "skills"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"summary", "milestones"},
		"additionalProperties": false,
	},
}

const roadmapPrompt = `You are a career coach. Build a realistic, ordered learning roadmap that takes
the candidate from their current profile to the goal role. Use between 3 and 8
milestones. Each milestone names the skills it covers and its length in weeks.`

var roadmapMessages = []string{
	"Reviewing your profile",
	"Mapping skill gaps",
	"Drafting milestones",
	"Estimating timelines",
	"Finalising roadmap",
}

// StartRoadmap starts the roadmap task for userID.
func (s *Service) StartRoadmap(ctx context.Context, userID string, req RoadmapRequest) error {
	profile, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	goal := strings.TrimSpace(req.Goal)
	if goal == "" && len(profile.TargetRoles) > 0 {
		goal = profile.TargetRoles[0]
	}
	if goal == "" {
		return fmt.Errorf("%w: roadmap needs a goal", ErrNoTarget)
	}

	cad := s.roadmapCadence()
	summary := profileSummary(profile)
	return s.cfg.Tasks.Start(ctx, task.Key(userID, task.Roadmap), func(ctx context.Context, rep *task.Reporter) error {
		rm, err := s.generateRoadmap(ctx, goal, summary)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.roadmaps[userID] = rm
		s.mu.Unlock()
		return nil
	},
		task.WithStartMessage("Generating roadmap"),
		task.WithDoneMessage("Roadmap ready"),
		task.WithSimulatedProgress(cad.Step, cad.Every, cad.Ceiling, roadmapMessages...),
	)
}

// LastRoadmap returns the most recent roadmap of userID.
func (s *Service) LastRoadmap(userID string) (Roadmap, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rm, ok := s.roadmaps[userID]
	return rm, ok
}

// generateRoadmap asks the model for a roadmap. Output that cannot be decoded
// yields an empty, degraded roadmap; provider and transport failures are
// returned so the task ends in error.
func (s *Service) generateRoadmap(ctx context.Context, goal, profile string) (Roadmap, error) {
	type reply struct {
		Summary    string      `json:"summary"`
		Milestones []Milestone `json:"milestones"`
	}
	out, err := complete[reply](ctx, s, "roadmap", llm.CompletionRequest{
		SystemPrompt: roadmapPrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Goal role: %s\n\nCandidate profile:\n%s", goal, profile),
		}},
		Temperature:    0.4,
		ResponseFormat: roadmapFormat,
	})
	rm := Roadmap{Goal: goal, GeneratedAt: s.cfg.Now()}
	switch {
	case errors.Is(err, llm.ErrDecode):
		s.logger.Warn("career: roadmap degraded to empty", "goal", goal, "err", err)
		rm.Milestones = []Milestone{}
		rm.Degraded = true
		return rm, nil
	case err != nil:
		return Roadmap{}, fmt.Errorf("career: roadmap: %w", err)
	}
	rm.Summary = strings.TrimSpace(out.Summary)
	rm.Milestones = make([]Milestone, 0, len(out.Milestones))
	for _, m := range out.Milestones {
		m.Title = strings.TrimSpace(m.Title)
		if m.Title == "" {
			continue
		}
		if m.Weeks < 1 {
			m.Weeks = 1
		}
		if m.Skills == nil {
			m.Skills = []string{}
		}
		rm.Milestones = append(rm.Milestones, m)
	}
	return rm, nil
}
