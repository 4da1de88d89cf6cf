package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/AnsuryX/Autojob-Mvp/pkg/provider/s2s"
	s2smock "github.com/AnsuryX/Autojob-Mvp/pkg/provider/s2s/mock"
)

func TestS2SFallback_Connect(t *testing.T) {
	t.Parallel()

	primary := &s2smock.Provider{
		ConnectErr:           errors.New("quota exceeded"),
		ProviderCapabilities: s2s.Capabilities{InputSampleRate: 16000, OutputSampleRate: 24000},
	}
	sess := s2smock.NewSession()
	secondary := &s2smock.Provider{
		Session:              sess,
		ProviderCapabilities: s2s.Capabilities{InputSampleRate: 24000, OutputSampleRate: 24000},
	}
	fb := NewS2SFallback(primary, "gemini-live", FallbackConfig{})
	fb.AddFallback("openai-realtime", secondary)

	handle, err := fb.Connect(context.Background(), s2s.SessionConfig{Instructions: "interview"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	if fb.Capabilities().InputSampleRate != 16000 {
		t.Errorf("provider caps = %+v, want primary's", fb.Capabilities())
	}
	sc, ok := handle.(s2s.SessionCapabilities)
	if !ok {
		t.Fatal("handle does not report its capabilities")
	}
	if sc.Capabilities().InputSampleRate != 24000 {
		t.Errorf("session caps = %+v, want secondary's", sc.Capabilities())
	}

	if err := handle.SendAudio([]byte{1, 2}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if got := sess.Audio(); len(got) != 1 {
		t.Errorf("secondary session audio = %v", got)
	}
	if len(primary.Calls()) != 1 || len(secondary.Calls()) != 1 {
		t.Errorf("connect calls = %d, %d", len(primary.Calls()), len(secondary.Calls()))
	}
}

func TestS2SFallback_AllFail(t *testing.T) {
	t.Parallel()

	fb := NewS2SFallback(&s2smock.Provider{ConnectErr: errors.New("down")}, "gemini-live", FallbackConfig{})
	if _, err := fb.Connect(context.Background(), s2s.SessionConfig{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
