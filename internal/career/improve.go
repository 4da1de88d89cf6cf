package career

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AnsuryX/Autojob-Mvp/internal/task"
	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/llm"
	"github.com/AnsuryX/Autojob-Mvp/pkg/store"
)

// ErrNoResume is returned when resume improvement is requested for a profile
// without resume content.
var ErrNoResume = errors.New("career: profile has no resume")

// ImproveRequest parameterises a resume rewrite.
type ImproveRequest struct {
	// Goal describes what the rewrite should aim at, e.g. a posting title or
	// "more quantified impact".
	Goal string `json:"goal"`

	// TrackID selects the track to rewrite. Empty uses the primary track.
	TrackID string `json:"track_id,omitempty"`
}

// Improvement is the outcome of the last resume rewrite of a user.
type Improvement struct {
	Goal    string            `json:"goal"`
	Track   store.ResumeTrack `json:"track"`
	Changes []string          `json:"changes"`
}

var improveFormat = &llm.ResponseFormat{
	Name:        "resume_rewrite",
	Description: "The full rewritten resume and a short list of the changes made.",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{"type": "string"},
			"changes": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required":             []string{"content", "changes"},
		"additionalProperties": false,
	},
}

const improvePrompt = `You are an expert resume writer. Rewrite the resume so it targets the stated
goal. Keep every fact truthful: never invent employers, dates, degrees or
numbers. Prefer concise bullet points with strong verbs and measurable impact.
Return the complete resume as plain text.`

// StartImprove starts the resume task for userID. The rewritten text is
// stored back into the profile as the next version of the selected track.
func (s *Service) StartImprove(ctx context.Context, userID string, req ImproveRequest) error {
	profile, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	track, ok := selectTrack(profile, req.TrackID)
	if !ok || strings.TrimSpace(track.Content) == "" {
		return ErrNoResume
	}
	goal := strings.TrimSpace(req.Goal)
	if goal == "" && len(profile.TargetRoles) > 0 {
		goal = profile.TargetRoles[0]
	}
	if goal == "" {
		goal = "a stronger general-purpose resume"
	}

	return s.cfg.Tasks.Start(ctx, task.Key(userID, task.Resume), func(ctx context.Context, rep *task.Reporter) error {
		return s.improve(ctx, rep, userID, track.ID, goal)
	}, task.WithStartMessage("Reading your resume"), task.WithDoneMessage("Resume updated"))
}

// LastImprovement returns the most recent resume rewrite of userID.
func (s *Service) LastImprovement(userID string) (Improvement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	imp, ok := s.improved[userID]
	return imp, ok
}

func (s *Service) improve(ctx context.Context, rep *task.Reporter, userID, trackID, goal string) error {
	profile, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	track, ok := selectTrack(profile, trackID)
	if !ok {
		return fmt.Errorf("career: improve: track %q no longer exists", trackID)
	}

	rep.Progress(20, "Rewriting for "+goal)
	type reply struct {
		Content string   `json:"content"`
		Changes []string `json:"changes"`
	}
	out, err := complete[reply](ctx, s, "resume", llm.CompletionRequest{
		SystemPrompt: improvePrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Goal: %s\n\nResume:\n%s", goal, track.Content),
		}},
		Temperature:    0.3,
		ResponseFormat: improveFormat,
	})
	if err != nil {
		return fmt.Errorf("career: improve: %w", err)
	}
	content := strings.TrimSpace(out.Content)
	if content == "" {
		return fmt.Errorf("career: improve: %w", llm.ErrEmptyResponse)
	}

	rep.Progress(80, "Saving new version")
	// Reload so edits made while the model was working are kept.
	profile, err = s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	now := s.cfg.Now()
	var updated store.ResumeTrack
	for i := range profile.Tracks {
		if profile.Tracks[i].ID != track.ID {
			continue
		}
		profile.Tracks[i].Content = content
		profile.Tracks[i].Version++
		profile.Tracks[i].UpdatedAt = now
		updated = profile.Tracks[i]
	}
	if updated.ID == "" {
		return fmt.Errorf("career: improve: track %q no longer exists", track.ID)
	}
	profile.UpdatedAt = now
	if err := s.cfg.Store.PutProfile(ctx, profile); err != nil {
		return fmt.Errorf("career: improve: save profile: %w", err)
	}

	changes := make([]string, 0, len(out.Changes))
	for _, c := range out.Changes {
		if c = strings.TrimSpace(c); c != "" {
			changes = append(changes, c)
		}
	}
	s.mu.Lock()
	s.improved[userID] = Improvement{Goal: goal, Track: updated, Changes: changes}
	s.mu.Unlock()

	s.logger.Info("resume improved", "user", userID, "track", updated.ID, "version", updated.Version)
	return nil
}

// selectTrack returns the track with id, or the primary track when id is
// empty.
func selectTrack(p store.Profile, id string) (store.ResumeTrack, bool) {
	if id == "" {
		return p.PrimaryTrack()
	}
	for _, t := range p.Tracks {
		if t.ID == id {
			return t, true
		}
	}
	return store.ResumeTrack{}, false
}
