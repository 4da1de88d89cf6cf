package career

import (
	"context"
	"errors"
	"fmt"

	"github.com/AnsuryX/Autojob-Mvp/internal/interview"
	"github.com/AnsuryX/Autojob-Mvp/internal/resume"
	"github.com/AnsuryX/Autojob-Mvp/pkg/store"
)

// ArchiveInterview returns a stop hook that writes the transcript of a
// finished session to the store and, when object storage is configured, the
// rendered transcript to the archive. Sessions with an empty transcript are
// skipped.
func (s *Service) ArchiveInterview(userID string) interview.StopHook {
	return func(ctx context.Context, sum interview.Summary) error {
		if len(sum.Transcript) == 0 {
			return nil
		}
		entries := make([]store.TranscriptEntry, len(sum.Transcript))
		for i, e := range sum.Transcript {
			entries[i] = store.TranscriptEntry{
				SessionID: sum.SessionID,
				UserID:    userID,
				Role:      string(e.Role),
				Text:      e.Text,
				At:        e.At,
			}
		}

		var errs []error
		if err := s.cfg.Store.WriteTranscript(ctx, entries); err != nil {
			errs = append(errs, fmt.Errorf("write transcript: %w", err))
		}
		if s.cfg.Archive != nil {
			key := resume.TranscriptKey(userID, sum.SessionID)
			if err := s.cfg.Archive.Put(ctx, key, resume.MIMEText, []byte(interview.Render(sum.Transcript))); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			return fmt.Errorf("career: archive interview %s: %w", sum.SessionID, err)
		}
		s.logger.Info("interview archived", "user", userID, "session", sum.SessionID, "entries", len(entries))
		return nil
	}
}

// Transcript returns the archived entries of sessionID.
func (s *Service) Transcript(ctx context.Context, sessionID string) ([]store.TranscriptEntry, error) {
	entries, err := s.cfg.Store.ListTranscript(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("career: list transcript: %w", err)
	}
	return entries, nil
}

// Candidate builds the interview candidate for userID from the profile. A
// missing profile yields an anonymous candidate.
func (s *Service) Candidate(ctx context.Context, userID, focus string) (interview.Candidate, error) {
	p, err := s.Profile(ctx, userID)
	if errors.Is(err, ErrNoProfile) {
		return interview.Candidate{Focus: focus}, nil
	}
	if err != nil {
		return interview.Candidate{}, err
	}
	c := interview.Candidate{Name: p.Name, TargetRoles: p.TargetRoles, Focus: focus}
	if t, ok := p.PrimaryTrack(); ok {
		c.Resume = t.Content
	}
	return c, nil
}
