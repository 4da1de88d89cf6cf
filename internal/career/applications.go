package career

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AnsuryX/Autojob-Mvp/pkg/store"
)

// ErrInvalidApplication is returned for an application without a title or
// with an unknown status.
var ErrInvalidApplication = errors.New("career: invalid application")

// LogApplication validates a and records it for userID. A missing ID is
// generated, a missing status defaults to applied and a zero AppliedAt is
// set to now.
func (s *Service) LogApplication(ctx context.Context, userID string, a store.Application) (store.Application, error) {
	a.UserID = userID
	a.Title = strings.TrimSpace(a.Title)
	a.Company = strings.TrimSpace(a.Company)
	if a.Title == "" {
		return store.Application{}, fmt.Errorf("%w: title is required", ErrInvalidApplication)
	}
	if a.Status == "" {
		a.Status = store.StatusApplied
	}
	if !a.Status.Valid() {
		return store.Application{}, fmt.Errorf("%w: unknown status %q", ErrInvalidApplication, a.Status)
	}
	if a.ID == "" {
		a.ID = s.cfg.NewID()
	}
	if a.AppliedAt.IsZero() {
		a.AppliedAt = s.cfg.Now()
	}
	if err := s.cfg.Store.LogApplication(ctx, a); err != nil {
		return store.Application{}, fmt.Errorf("career: log application: %w", err)
	}
	return a, nil
}

// ListApplications returns the application log of userID, newest first.
func (s *Service) ListApplications(ctx context.Context, userID string) ([]store.Application, error) {
	apps, err := s.cfg.Store.ListApplications(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("career: list applications: %w", err)
	}
	if apps == nil {
		apps = []store.Application{}
	}
	return apps, nil
}
