package resilience

import (
	"context"

	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/s2s"
)

// S2SFallback is an [s2s.Provider] that fails over across live speech
// backends when a session cannot be opened. An established session is never
// moved to another backend.
type S2SFallback struct {
	group *FallbackGroup[s2s.Provider]
}

var _ s2s.Provider = (*S2SFallback)(nil)

// NewS2SFallback returns an S2SFallback with primary as the preferred backend.
func NewS2SFallback(primary s2s.Provider, primaryName string, cfg FallbackConfig) *S2SFallback {
	if cfg.Kind == "" {
		cfg.Kind = "s2s"
	}
	return &S2SFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *S2SFallback) AddFallback(name string, provider s2s.Provider) {
	f.group.AddFallback(name, provider)
}

// Connect opens a session on the first backend that accepts it. The handle
// implements [s2s.SessionCapabilities] with the capabilities of that backend,
// whose sample rates may differ from the primary's.
func (f *S2SFallback) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	return ExecuteWithResult(f.group, func(p s2s.Provider) (s2s.SessionHandle, error) {
		sess, err := p.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &fallbackSession{SessionHandle: sess, caps: p.Capabilities()}, nil
	})
}

// Capabilities reports the primary's capabilities.
func (f *S2SFallback) Capabilities() s2s.Capabilities {
	return f.group.Primary().Capabilities()
}

type fallbackSession struct {
	s2s.SessionHandle
	caps s2s.Capabilities
}

func (s *fallbackSession) Capabilities() s2s.Capabilities { return s.caps }
