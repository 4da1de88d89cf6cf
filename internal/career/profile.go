package career

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AnsuryX/Autojob-Mvp/internal/resume"
	"github.com/AnsuryX/Autojob-Mvp/pkg/store"
)

// SaveProfile stores p as the profile of userID. Tracks without an ID get
// one, and exactly one track ends up primary.
func (s *Service) SaveProfile(ctx context.Context, userID string, p store.Profile) (store.Profile, error) {
	p.UserID = userID
	p.Name = strings.TrimSpace(p.Name)
	p.TargetRoles = nonEmpty(p.TargetRoles)
	p.Skills = nonEmpty(p.Skills)
	now := s.cfg.Now()
	for i := range p.Tracks {
		if p.Tracks[i].ID == "" {
			p.Tracks[i].ID = s.cfg.NewID()
		}
		if p.Tracks[i].Version < 1 {
			p.Tracks[i].Version = 1
		}
		if p.Tracks[i].UpdatedAt.IsZero() {
			p.Tracks[i].UpdatedAt = now
		}
	}
	normalizePrimary(p.Tracks)
	if p.Tracks == nil {
		p.Tracks = []store.ResumeTrack{}
	}
	p.UpdatedAt = now
	if err := s.cfg.Store.PutProfile(ctx, p); err != nil {
		return store.Profile{}, fmt.Errorf("career: save profile: %w", err)
	}
	return p, nil
}

// ErrUnreadableResume is returned when an uploaded document cannot be turned
// into text.
var ErrUnreadableResume = errors.New("career: resume document is unreadable")

// Upload is an uploaded resume document.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte

	// Track names the resume track to fill. Empty uses "Main".
	Track string
}

// AttachResume extracts the text of an uploaded document into the named
// track of userID's profile, creating the profile or track as needed. The
// original document is archived when object storage is configured; an
// archive failure is logged and does not fail the upload.
func (s *Service) AttachResume(ctx context.Context, userID string, up Upload) (store.ResumeTrack, error) {
	mime := resume.DetectMIME(up.ContentType, up.Filename)
	text, err := resume.Extract(mime, up.Data)
	if errors.Is(err, resume.ErrUnsupportedType) {
		return store.ResumeTrack{}, err
	}
	if err != nil {
		return store.ResumeTrack{}, fmt.Errorf("%w: %w", ErrUnreadableResume, err)
	}
	if text == "" {
		return store.ResumeTrack{}, fmt.Errorf("%w: document contains no text", ErrUnreadableResume)
	}

	profile, err := s.Profile(ctx, userID)
	if errors.Is(err, ErrNoProfile) {
		profile = store.Profile{UserID: userID, TargetRoles: []string{}, Skills: []string{}}
	} else if err != nil {
		return store.ResumeTrack{}, err
	}

	name := strings.TrimSpace(up.Track)
	if name == "" {
		name = "Main"
	}
	now := s.cfg.Now()
	idx := -1
	for i, t := range profile.Tracks {
		if strings.EqualFold(t.Name, name) {
			idx = i
			break
		}
	}
	if idx < 0 {
		profile.Tracks = append(profile.Tracks, store.ResumeTrack{ID: s.cfg.NewID(), Name: name})
		idx = len(profile.Tracks) - 1
	}
	t := &profile.Tracks[idx]
	t.Content = text
	t.Version++
	t.UpdatedAt = now
	normalizePrimary(profile.Tracks)
	profile.UpdatedAt = now
	if err := s.cfg.Store.PutProfile(ctx, profile); err != nil {
		return store.ResumeTrack{}, fmt.Errorf("career: attach resume: %w", err)
	}

	if s.cfg.Archive != nil {
		key := resume.ResumeKey(userID, t.ID, up.Filename)
		if err := s.cfg.Archive.Put(ctx, key, mime, up.Data); err != nil {
			s.logger.Warn("career: archive resume", "user", userID, "key", key, "err", err)
		}
	}
	return profile.Tracks[idx], nil
}

// normalizePrimary keeps the first primary track and clears the rest. When
// none is primary the first track becomes primary.
func normalizePrimary(tracks []store.ResumeTrack) {
	found := false
	for i := range tracks {
		if tracks[i].Primary && !found {
			found = true
			continue
		}
		tracks[i].Primary = false
	}
	if !found && len(tracks) > 0 {
		tracks[0].Primary = true
	}
}
